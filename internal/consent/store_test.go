package consent

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winbridge/internal/models"
)

func record(id, author string, created time.Time) models.PendingApproval {
	return models.PendingApproval{
		RequestID:   id,
		AuthorID:    author,
		AuthorName:  "ann",
		SourceLabel: "#wins",
		Content:     models.ContentSnapshot{Text: "closed my first $10k month", AttachmentCount: 1},
		CreatedAt:   created,
	}
}

func TestStore_PutRejectsDuplicateLiveRecord(t *testing.T) {
	s := NewStore()
	require.True(t, s.Put(record("M1", "A1", time.Now())))
	assert.False(t, s.Put(record("M1", "A2", time.Now())))

	rec, ok := s.Get("M1")
	require.True(t, ok)
	assert.Equal(t, "A1", rec.AuthorID)
	assert.Equal(t, 1, s.Len())
}

func TestStore_ReserveBlocksDuplicatesUntilReleased(t *testing.T) {
	s := NewStore()
	require.True(t, s.Reserve("M1"))
	assert.False(t, s.Reserve("M1"))
	assert.False(t, s.Contains("M1"))
	assert.Equal(t, 0, s.Len())

	res, _ := s.Resolve("M1", "A1", models.DecisionApprove)
	assert.Equal(t, models.ResolutionNotFound, res)

	s.Release("M1")
	require.True(t, s.Reserve("M1"))
	require.True(t, s.Put(record("M1", "A1", time.Now())))
	assert.False(t, s.Reserve("M1"), "a live record cannot be reserved")

	s.Remove("M1")
	assert.True(t, s.Reserve("M1"), "Put clears the reservation")
}

func TestStore_RemoveAndContains(t *testing.T) {
	s := NewStore()
	s.Put(record("M1", "A1", time.Now()))
	assert.True(t, s.Contains("M1"))
	assert.True(t, s.Remove("M1"))
	assert.False(t, s.Remove("M1"))
	assert.False(t, s.Contains("M1"))
}

func TestStore_ResolveChecksAuthorThenConsumes(t *testing.T) {
	s := NewStore()
	s.Put(record("M123", "A1", time.Now()))

	res, _ := s.Resolve("M123", "A2", models.DecisionApprove)
	assert.Equal(t, models.ResolutionUnauthorized, res)
	assert.True(t, s.Contains("M123"), "wrong actor must not consume the record")

	res, rec := s.Resolve("M123", "A1", models.DecisionApprove)
	assert.Equal(t, models.ResolutionApproved, res)
	assert.Equal(t, "closed my first $10k month", rec.Content.Text)

	res, _ = s.Resolve("M123", "A1", models.DecisionApprove)
	assert.Equal(t, models.ResolutionNotFound, res)
}

func TestStore_DenyRemoves(t *testing.T) {
	s := NewStore()
	s.Put(record("M1", "A1", time.Now()))

	res, _ := s.Resolve("M1", "A1", models.DecisionDeny)
	assert.Equal(t, models.ResolutionDenied, res)

	res, _ = s.Resolve("M1", "A1", models.DecisionApprove)
	assert.Equal(t, models.ResolutionNotFound, res)
}

func TestStore_UnauthorizedNeverMutates(t *testing.T) {
	s := NewStore()
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("M%d", i)
		s.Put(record(id, "author", time.Now()))
		for j := 0; j < 5; j++ {
			res, _ := s.Resolve(id, fmt.Sprintf("other-%d", j), models.Decision([]string{"approve", "deny"}[j%2]))
			assert.Equal(t, models.ResolutionUnauthorized, res)
		}
		res, _ := s.Resolve(id, "author", models.DecisionDeny)
		assert.Equal(t, models.ResolutionDenied, res)
	}
	assert.Equal(t, 0, s.Len())
}

func TestStore_ConcurrentResolveHasOneWinner(t *testing.T) {
	for round := 0; round < 50; round++ {
		s := NewStore()
		s.Put(record("M1", "A1", time.Now()))

		var terminal atomic.Int32
		var notFound atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				decision := models.DecisionApprove
				if i%2 == 1 {
					decision = models.DecisionDeny
				}
				res, _ := s.Resolve("M1", "A1", decision)
				switch res {
				case models.ResolutionApproved, models.ResolutionDenied:
					terminal.Add(1)
				case models.ResolutionNotFound:
					notFound.Add(1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), terminal.Load())
		assert.Equal(t, int32(7), notFound.Load())
	}
}

func TestStore_Expire(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	s := NewStore()
	s.Put(record("old", "A1", now.Add(-49*time.Hour)))
	s.Put(record("edge", "A1", now.Add(-48*time.Hour)))
	s.Put(record("fresh", "A1", now.Add(-time.Hour)))

	assert.Nil(t, s.Expire(now, 0), "zero ttl keeps everything")
	assert.Equal(t, 3, s.Len())

	expired := s.Expire(now, 48*time.Hour)
	assert.Len(t, expired, 2)
	assert.True(t, s.Contains("fresh"))

	res, _ := s.Resolve("old", "A1", models.DecisionApprove)
	assert.Equal(t, models.ResolutionNotFound, res)
}
