package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winbridge/internal/constants"
	"winbridge/internal/features"
	"winbridge/internal/intake"
	"winbridge/internal/models"
	"winbridge/internal/queue"
)

type stubSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *stubSender) SendDirect(ctx context.Context, userID string, msg models.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, userID)
	return nil
}

type stubPending int

func (p stubPending) PendingCount() int { return int(p) }

type failingIntake struct{}

func (failingIntake) Handle(ctx context.Context, evt models.LifecycleEvent) (intake.Result, error) {
	return intake.Result{}, errors.New("disk full")
}

func newNullLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func testConfig() *models.Config {
	return &models.Config{
		Server: models.ServerConfig{Port: 0, Environment: "development"},
	}
}

func newTestServer(t *testing.T, cfg *models.Config, sender *stubSender) (*Server, *queue.Queue) {
	t.Helper()
	logger := newNullLogger()
	q := queue.New(context.Background(), queue.NewFileStore(filepath.Join(t.TempDir(), "scheduled_dms.json")), sender, logger)
	t.Cleanup(func() { _ = q.Close() })

	svc, err := intake.NewService(q, intake.Defaults{}, logger)
	require.NoError(t, err)
	return NewServer(cfg, features.NewFlagManager(), svc, q, stubPending(2), logger), q
}

func postJSON(t *testing.T, s *Server, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestLifecycleWebhook_SevenDaySent(t *testing.T) {
	sender := &stubSender{}
	s, q := newTestServer(t, testConfig(), sender)

	rec := postJSON(t, s, "/webhook/lifecycle", `{"discordUserId":"U1","firstName":"Ann","count":7}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "7-day DM sent successfully", body["message"])

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "U1", data["discordUserId"])
	assert.Equal(t, "Ann", data["firstName"])
	assert.Equal(t, float64(7), data["count"])
	assert.Equal(t, true, data["sent"])
	assert.NotNil(t, data["sentAt"])

	assert.Equal(t, []string{"U1"}, sender.sent)
	assert.Equal(t, 1, q.Stats().Total)
}

func TestLifecycleWebhook_LegacyPathAndFormBody(t *testing.T) {
	sender := &stubSender{}
	s, q := newTestServer(t, testConfig(), sender)

	form := url.Values{"userId": {"U2"}, "name": {"Bo"}, "count": {"30"}}
	req := httptest.NewRequest(http.MethodPost, "/webhook/gohighlevel", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "U2", data["discordUserId"])
	assert.Equal(t, "Bo", data["firstName"])
	assert.Equal(t, float64(30), data["count"])
	assert.Equal(t, 1, q.Stats().Total)
}

func TestLifecycleWebhook_RejectsWithoutQueueMutation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing target", `{"firstName":"Ann","count":7}`, "Missing discordUserId in webhook payload"},
		{"unknown bucket", `{"discordUserId":"U1","count":14}`, "Invalid or missing count. Must be 7, 30, or 90"},
		{"missing bucket", `{"discordUserId":"U1"}`, "Invalid or missing count. Must be 7, 30, or 90"},
		{"empty body", ``, "Missing discordUserId in webhook payload"},
		{"malformed json", `{"discordUserId":`, "invalid payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &stubSender{}
			s, q := newTestServer(t, testConfig(), sender)

			rec := postJSON(t, s, "/webhook/lifecycle", tt.body, nil)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantErr, body["error"])
			assert.Equal(t, 0, q.Stats().Total)
			assert.Empty(t, sender.sent)
		})
	}
}

func TestLifecycleWebhook_SendFailureStillAccepted(t *testing.T) {
	sender := &stubSender{err: errors.New("dm closed")}
	s, q := newTestServer(t, testConfig(), sender)

	rec := postJSON(t, s, "/webhook/lifecycle", `{"discordUserId":"U1","count":90}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "90-day DM queued for delivery", body["message"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, false, data["sent"])
	assert.Nil(t, data["sentAt"])

	stats := q.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Pending)
}

func TestLifecycleWebhook_UnexpectedFailure(t *testing.T) {
	q := queue.New(context.Background(), queue.NewFileStore(filepath.Join(t.TempDir(), "q.json")), &stubSender{}, newNullLogger())
	t.Cleanup(func() { _ = q.Close() })
	s := NewServer(testConfig(), features.NewFlagManager(), failingIntake{}, q, stubPending(0), newNullLogger())

	rec := postJSON(t, s, "/webhook/lifecycle", `{"discordUserId":"U1","count":7}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])
}

func TestLifecycleWebhook_Signature(t *testing.T) {
	cfg := testConfig()
	cfg.Server.WebhookSecret = strings.Repeat("s", 32)
	payload := `{"discordUserId":"U1","count":7}`

	t.Run("valid", func(t *testing.T) {
		s, _ := newTestServer(t, cfg, &stubSender{})
		rec := postJSON(t, s, "/webhook/lifecycle", payload, map[string]string{
			signatureHeader: signBody(cfg.Server.WebhookSecret, []byte(payload)),
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing", func(t *testing.T) {
		s, q := newTestServer(t, cfg, &stubSender{})
		rec := postJSON(t, s, "/webhook/lifecycle", payload, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, 0, q.Stats().Total)
	})

	t.Run("wrong secret", func(t *testing.T) {
		s, q := newTestServer(t, cfg, &stubSender{})
		rec := postJSON(t, s, "/webhook/lifecycle", payload, map[string]string{
			signatureHeader: signBody("other", []byte(payload)),
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, 0, q.Stats().Total)
	})
}

func TestLifecycleWebhook_BodyTooLarge(t *testing.T) {
	s, q := newTestServer(t, testConfig(), &stubSender{})
	big := `{"discordUserId":"U1","count":7,"name":"` + strings.Repeat("x", 2<<20) + `"}`

	rec := postJSON(t, s, "/webhook/lifecycle", big, nil)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 0, q.Stats().Total)
}

func TestLifecycleWebhook_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), &stubSender{})
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook/lifecycle", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthAndScheduled(t *testing.T) {
	sender := &stubSender{}
	s, _ := newTestServer(t, testConfig(), sender)

	require.Equal(t, http.StatusOK, postJSON(t, s, "/webhook/lifecycle", `{"discordUserId":"U1","count":7}`, nil).Code)
	sender.mu.Lock()
	sender.err = errors.New("offline")
	sender.mu.Unlock()
	require.Equal(t, http.StatusOK, postJSON(t, s, "/webhook/lifecycle", `{"discordUserId":"U2","count":30}`, nil).Code)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","totalQueued":2,"pendingCount":1,"pendingApprovals":2}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scheduled", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var scheduled struct {
		Total   int                       `json:"total"`
		Pending []models.ScheduledMessage `json:"pending"`
		Sent    []models.ScheduledMessage `json:"sent"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scheduled))
	assert.Equal(t, 2, scheduled.Total)
	require.Len(t, scheduled.Pending, 1)
	require.Len(t, scheduled.Sent, 1)
	assert.Equal(t, "U2", scheduled.Pending[0].TargetUserID)
	assert.Equal(t, "U1", scheduled.Sent[0].TargetUserID)
	assert.True(t, scheduled.Sent[0].Sent)
}

func TestScheduled_EmptyListsAreArrays(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), &stubSender{})

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scheduled", nil))

	assert.JSONEq(t, `{"total":0,"pending":[],"sent":[]}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), &stubSender{})
	require.Equal(t, http.StatusOK, postJSON(t, s, "/webhook/lifecycle", `{"discordUserId":"U1","count":7}`, nil).Code)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	body := decodeBody(t, rec)
	counters, ok := body["counters"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, counters, "intake_accepted_total_trigger:7")
}

func TestDecodeLifecycleEvent(t *testing.T) {
	evt, err := decodeLifecycleEvent("application/json; charset=utf-8", []byte(`{"userId":"U9","triggerBucket":"90"}`))
	require.NoError(t, err)
	assert.Equal(t, "U9", evt.Target())
	assert.Equal(t, 90, evt.Bucket())

	evt, err = decodeLifecycleEvent("application/x-www-form-urlencoded", []byte("discordUserId=U3&count=7&calendar_link=https%3A%2F%2Fcal.example"))
	require.NoError(t, err)
	assert.Equal(t, "U3", evt.Target())
	assert.Equal(t, "https://cal.example", evt.Calendar())
}

func TestLifecycleWebhook_RateLimitFlag(t *testing.T) {
	logger := newNullLogger()
	q := queue.New(context.Background(), queue.NewFileStore(filepath.Join(t.TempDir(), "q.json")), &stubSender{}, logger)
	t.Cleanup(func() { _ = q.Close() })
	svc, err := intake.NewService(q, intake.Defaults{}, logger)
	require.NoError(t, err)

	flags := features.NewFlagManager()
	require.NoError(t, flags.Set(features.FlagWebhookRateLimit, false))
	s := NewServer(testConfig(), flags, svc, q, stubPending(0), logger)

	for i := 0; i < constants.WebhookRateLimitRequests+5; i++ {
		rec := postJSON(t, s, "/webhook/lifecycle", `{"discordUserId":"U1","count":7}`, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
