package queue

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winbridge/internal/models"
)

type fakeSender struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
	delay time.Duration
}

func newFakeSender() *fakeSender {
	return &fakeSender{calls: make(map[string]int), fail: make(map[string]bool)}
}

func (f *fakeSender) SendDirect(ctx context.Context, userID string, msg models.OutboundMessage) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[userID+"|"+msg.Content]++
	if f.fail[userID] {
		return errors.New("dm closed")
	}
	return nil
}

func (f *fakeSender) setFail(userID string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[userID] = fail
}

func (f *fakeSender) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type memStore struct {
	mu      sync.Mutex
	saved   []models.ScheduledMessage
	saves   int
	loadErr error
	saveErr error
}

func (m *memStore) Load(context.Context) ([]models.ScheduledMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ScheduledMessage(nil), m.saved...), m.loadErr
}

func (m *memStore) Save(_ context.Context, records []models.ScheduledMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append([]models.ScheduledMessage(nil), records...)
	return nil
}

func (m *memStore) Close() error { return nil }

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var baseTime = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return baseTime }
}

func TestEnqueue_ImmediateDelivers(t *testing.T) {
	store := &memStore{}
	sender := newFakeSender()
	q := New(context.Background(), store, sender, testLogger(), WithClock(fixedClock()))

	rec, err := q.Enqueue(context.Background(), EnqueueRequest{
		TargetUserID: "U1", DisplayName: "Ann", Body: "hello Ann", Trigger: "7", Immediate: true,
	})
	require.NoError(t, err)

	assert.True(t, rec.Sent)
	require.NotNil(t, rec.SentAt)
	assert.Equal(t, baseTime, *rec.SentAt)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, 1, sender.total())

	require.Len(t, store.saved, 1)
	assert.True(t, store.saved[0].Sent)
	assert.Equal(t, Stats{Total: 1, Pending: 0}, q.Stats())
}

func TestEnqueue_ImmediateFailureLeavesUnsent(t *testing.T) {
	store := &memStore{}
	sender := newFakeSender()
	sender.setFail("U1", true)
	q := New(context.Background(), store, sender, testLogger(), WithClock(fixedClock()))

	rec, err := q.Enqueue(context.Background(), EnqueueRequest{TargetUserID: "U1", Body: "hi", Trigger: "30", Immediate: true})
	require.NoError(t, err)
	assert.False(t, rec.Sent)
	assert.Nil(t, rec.SentAt)
	assert.Equal(t, "dm closed", rec.LastError)

	sender.setFail("U1", false)
	assert.Equal(t, 1, q.FlushDue(context.Background(), baseTime))

	got, ok := q.Get(rec.ID)
	require.True(t, ok)
	assert.True(t, got.Sent)
	assert.Empty(t, got.LastError)
	assert.Equal(t, 2, got.Attempts)
}

func TestFlushDue_FailureOnlyTouchesAuditFields(t *testing.T) {
	store := &memStore{}
	sender := newFakeSender()
	sender.setFail("U1", true)
	q := New(context.Background(), store, sender, testLogger(), WithClock(fixedClock()))

	before, err := q.Enqueue(context.Background(), EnqueueRequest{TargetUserID: "U1", Body: "hi", Trigger: "90"})
	require.NoError(t, err)
	assert.Equal(t, 0, q.FlushDue(context.Background(), baseTime))

	after, ok := q.Get(before.ID)
	require.True(t, ok)
	assert.Equal(t, 1, after.Attempts)
	assert.Equal(t, "dm closed", after.LastError)

	after.Attempts, after.LastError = before.Attempts, before.LastError
	assert.Equal(t, before, after)
	require.NotEmpty(t, store.saved)
	assert.False(t, store.saved[len(store.saved)-1].Sent)
}

func TestEnqueue_Validation(t *testing.T) {
	store := &memStore{}
	q := New(context.Background(), store, newFakeSender(), testLogger())

	_, err := q.Enqueue(context.Background(), EnqueueRequest{Body: "x"})
	assert.Error(t, err)
	_, err = q.Enqueue(context.Background(), EnqueueRequest{TargetUserID: "U1", Body: "  "})
	assert.Error(t, err)

	assert.Equal(t, 0, store.saves)
	assert.Equal(t, 0, q.Stats().Total)
}

func TestEnqueue_IDsAreUniqueForRepeatedTriggers(t *testing.T) {
	q := New(context.Background(), &memStore{}, newFakeSender(), testLogger(), WithClock(fixedClock()))

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		rec, err := q.Enqueue(context.Background(), EnqueueRequest{TargetUserID: "U1", Body: "b", Trigger: "7"})
		require.NoError(t, err)
		assert.False(t, seen[rec.ID], "duplicate id %s", rec.ID)
		seen[rec.ID] = true
	}
}

func TestFlushDue_DeliversExactlyDueSubset(t *testing.T) {
	sender := newFakeSender()
	q := New(context.Background(), &memStore{}, sender, testLogger(), WithClock(fixedClock()))

	past := baseTime.Add(-time.Hour)
	future := baseTime.Add(time.Hour)
	ctx := context.Background()

	immediate, _ := q.Enqueue(ctx, EnqueueRequest{TargetUserID: "U1", Body: "now", Trigger: "7"})
	overdue, _ := q.Enqueue(ctx, EnqueueRequest{TargetUserID: "U2", Body: "overdue", Trigger: "30", DueAt: &past})
	exact, _ := q.Enqueue(ctx, EnqueueRequest{TargetUserID: "U3", Body: "exact", Trigger: "90", DueAt: &baseTime})
	later, _ := q.Enqueue(ctx, EnqueueRequest{TargetUserID: "U4", Body: "later", Trigger: "90", DueAt: &future})

	assert.Equal(t, 3, q.FlushDue(ctx, baseTime))
	for _, id := range []string{immediate.ID, overdue.ID, exact.ID} {
		rec, _ := q.Get(id)
		assert.True(t, rec.Sent, id)
	}
	rec, _ := q.Get(later.ID)
	assert.False(t, rec.Sent)

	calls := sender.total()
	assert.Equal(t, 0, q.FlushDue(ctx, baseTime))
	assert.Equal(t, calls, sender.total(), "second flush must not send again")
}

func TestFlushDue_ConcurrentCallsNeverDoubleSend(t *testing.T) {
	sender := newFakeSender()
	sender.delay = 5 * time.Millisecond
	q := New(context.Background(), &memStore{}, sender, testLogger(), WithClock(fixedClock()))

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := q.Enqueue(ctx, EnqueueRequest{TargetUserID: "U" + string(rune('a'+i)), Body: "b", Trigger: "7"})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	results := make([]int, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = q.FlushDue(ctx, baseTime)
		}(i)
	}
	wg.Wait()

	total := 0
	for _, n := range results {
		total += n
	}
	assert.Equal(t, 10, total)
	assert.Equal(t, 10, sender.total())
	for key, n := range sender.calls {
		assert.Equal(t, 1, n, key)
	}
}

func TestSentInvariantHoldsUnderRandomFailures(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	sender := newFakeSender()
	store := &memStore{}
	q := New(context.Background(), store, sender, testLogger(), WithClock(fixedClock()))
	ctx := context.Background()

	users := []string{"U1", "U2", "U3", "U4"}
	for i := 0; i < 20; i++ {
		user := users[rng.IntN(len(users))]
		_, err := q.Enqueue(ctx, EnqueueRequest{TargetUserID: user, Body: "b" + string(rune('a'+i)), Trigger: "7"})
		require.NoError(t, err)
	}

	sentBefore := map[string]bool{}
	for round := 0; round < 10; round++ {
		for _, u := range users {
			sender.setFail(u, rng.IntN(2) == 0)
		}
		q.FlushDue(ctx, baseTime)

		pending, sent := q.Snapshot()
		for _, rec := range pending {
			assert.Nil(t, rec.SentAt)
			assert.False(t, sentBefore[rec.ID], "sent must never revert")
		}
		for _, rec := range sent {
			assert.NotNil(t, rec.SentAt)
			sentBefore[rec.ID] = true
		}
	}

	for _, rec := range store.saved {
		assert.Equal(t, rec.Sent, rec.SentAt != nil)
	}
}

func TestNew_RecoversUnsentFromStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduled_dms.json")
	fs := NewFileStore(path)
	require.NoError(t, fs.Save(context.Background(), []models.ScheduledMessage{
		{ID: "a", TargetUserID: "U1", Body: "pending", Trigger: "7", CreatedAt: baseTime},
		{ID: "b", TargetUserID: "U2", Body: "done", Trigger: "7", Sent: true, SentAt: &baseTime, CreatedAt: baseTime},
	}))

	sender := newFakeSender()
	q := New(context.Background(), fs, sender, testLogger(), WithClock(fixedClock()))
	assert.Equal(t, Stats{Total: 2, Pending: 1}, q.Stats())

	assert.Equal(t, 1, q.FlushDue(context.Background(), baseTime))
	assert.Equal(t, 1, sender.total())

	reloaded, err := fs.Load(context.Background())
	require.NoError(t, err)
	for _, rec := range reloaded {
		assert.True(t, rec.Sent, rec.ID)
	}
}

func TestNew_DuplicateRowsPreferSentCopy(t *testing.T) {
	store := &memStore{saved: []models.ScheduledMessage{
		{ID: "a", TargetUserID: "U1", Body: "x", CreatedAt: baseTime},
		{ID: "a", TargetUserID: "U1", Body: "x", Sent: true, SentAt: &baseTime, CreatedAt: baseTime},
	}}
	sender := newFakeSender()
	q := New(context.Background(), store, sender, testLogger())

	assert.Equal(t, Stats{Total: 1, Pending: 0}, q.Stats())
	assert.Equal(t, 0, q.FlushDue(context.Background(), baseTime))
}

func TestNew_LoadFailureStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduled_dms.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	q := New(context.Background(), NewFileStore(path), newFakeSender(), testLogger())
	assert.Equal(t, 0, q.Stats().Total)

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	store := &memStore{saveErr: errors.New("disk full")}
	q := New(context.Background(), store, newFakeSender(), testLogger(), WithClock(fixedClock()))

	rec, err := q.Enqueue(context.Background(), EnqueueRequest{TargetUserID: "U1", Body: "b", Trigger: "7", Immediate: true})
	require.NoError(t, err)
	assert.True(t, rec.Sent)
	assert.Equal(t, 1, q.Stats().Total)

	store.mu.Lock()
	store.saveErr = nil
	store.mu.Unlock()
	q.FlushDue(context.Background(), baseTime)
	_, err = q.Enqueue(context.Background(), EnqueueRequest{TargetUserID: "U2", Body: "b", Trigger: "7"})
	require.NoError(t, err)
	assert.Len(t, store.saved, 2)
}

func TestStaleCountAndSnapshot(t *testing.T) {
	now := baseTime
	clock := func() time.Time { return now }
	sender := newFakeSender()
	sender.setFail("U1", true)
	q := New(context.Background(), &memStore{}, sender, testLogger(), WithClock(clock))

	_, err := q.Enqueue(context.Background(), EnqueueRequest{TargetUserID: "U1", Body: "old", Trigger: "7", Immediate: true})
	require.NoError(t, err)
	now = baseTime.Add(45 * time.Minute)
	_, err = q.Enqueue(context.Background(), EnqueueRequest{TargetUserID: "U2", Body: "new", Trigger: "7", Immediate: true})
	require.NoError(t, err)

	assert.Equal(t, 1, q.StaleCount(now, 30*time.Minute))

	pending, sent := q.Snapshot()
	assert.Len(t, pending, 1)
	assert.Len(t, sent, 1)
}
