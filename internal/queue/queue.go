package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"winbridge/internal/constants"
	"winbridge/internal/errors"
	"winbridge/internal/metrics"
	"winbridge/internal/models"
	"winbridge/internal/privacy"
	"winbridge/internal/tracing"
)

// Sender delivers a direct message to a user
type Sender interface {
	SendDirect(ctx context.Context, userID string, msg models.OutboundMessage) error
}

// EnqueueRequest describes a new message. A nil DueAt means send as soon as possible.
type EnqueueRequest struct {
	TargetUserID string
	DisplayName  string
	CoachName    string
	Body         string
	Trigger      string
	DueAt        *time.Time
	Immediate    bool
}

// Stats summarises the log
type Stats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
}

// Option configures a Queue
type Option func(*Queue)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithDeliveryTimeout bounds each send attempt
func WithDeliveryTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.deliveryTimeout = d
		}
	}
}

// Queue is the persisted, append-only delivery log.
// mu guards records, inFlight and every Store write so snapshots never interleave.
type Queue struct {
	store           Store
	sender          Sender
	logger          *logrus.Logger
	errLogger       *errors.Logger
	now             func() time.Time
	deliveryTimeout time.Duration

	mu       sync.Mutex
	records  []models.ScheduledMessage
	index    map[string]int
	inFlight map[string]struct{}
}

// New loads the persisted log. A load failure is logged and the queue starts empty.
func New(ctx context.Context, store Store, sender Sender, logger *logrus.Logger, opts ...Option) *Queue {
	q := &Queue{
		store:           store,
		sender:          sender,
		logger:          logger,
		errLogger:       errors.NewLogger(logger),
		now:             time.Now,
		deliveryTimeout: time.Duration(constants.DefaultDeliveryTimeoutSec) * time.Second,
		index:           make(map[string]int),
		inFlight:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		q.errLogger.LogError(errors.NewStorageError("load", err), "Failed to load delivery queue, starting empty")
		loaded = nil
	}
	for _, rec := range loaded {
		if i, dup := q.index[rec.ID]; dup {
			// keep the delivered copy so a duplicate row can never re-send
			if rec.Sent && !q.records[i].Sent {
				q.records[i] = rec
			}
			continue
		}
		q.index[rec.ID] = len(q.records)
		q.records = append(q.records, rec)
	}

	stats := q.Stats()
	logger.WithFields(logrus.Fields{
		"total":   stats.Total,
		"pending": stats.Pending,
	}).Info("Delivery queue loaded")
	return q
}

// Enqueue appends a record and persists the log. With Immediate set, delivery is attempted
// before returning and the returned copy reflects the outcome. Only validation errors are returned.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (models.ScheduledMessage, error) {
	if strings.TrimSpace(req.TargetUserID) == "" {
		return models.ScheduledMessage{}, errors.NewValidationError("target_user_id", "target user id is required")
	}
	if strings.TrimSpace(req.Body) == "" {
		return models.ScheduledMessage{}, errors.NewValidationError("body", "message body is required")
	}

	created := q.now()
	rec := models.ScheduledMessage{
		ID:           newID(req.TargetUserID, req.Trigger, created),
		TargetUserID: req.TargetUserID,
		DisplayName:  req.DisplayName,
		CoachName:    req.CoachName,
		Body:         req.Body,
		Trigger:      req.Trigger,
		DueAt:        req.DueAt,
		CreatedAt:    created,
	}

	q.mu.Lock()
	q.index[rec.ID] = len(q.records)
	q.records = append(q.records, rec)
	q.persistLocked(ctx)
	q.mu.Unlock()

	metrics.IncrementCounter("queue_enqueued_total", map[string]string{"trigger": req.Trigger}, "Messages added to the delivery queue")
	q.logger.WithFields(logrus.Fields{
		"queue_id":  rec.ID,
		"trigger":   rec.Trigger,
		"user_id":   privacy.MaskID(rec.TargetUserID),
		"immediate": req.Immediate,
	}).Info("Message enqueued")

	if req.Immediate {
		q.deliver(ctx, rec.ID)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.records[q.index[rec.ID]], nil
}

// FlushDue attempts every unsent record due at now and returns how many were delivered
func (q *Queue) FlushDue(ctx context.Context, now time.Time) int {
	q.mu.Lock()
	var due []string
	for i := range q.records {
		rec := &q.records[i]
		if _, busy := q.inFlight[rec.ID]; busy {
			continue
		}
		if rec.IsDue(now) {
			due = append(due, rec.ID)
		}
	}
	q.mu.Unlock()

	delivered := 0
	for _, id := range due {
		if ctx.Err() != nil {
			break
		}
		if q.deliver(ctx, id) {
			delivered++
		}
	}

	if len(due) > 0 {
		q.logger.WithFields(logrus.Fields{
			"due":       len(due),
			"delivered": delivered,
		}).Info("Flushed due messages")
	}
	return delivered
}

// deliver claims id, sends it outside the lock, then records the outcome.
// It returns true only when this call flipped the record to sent.
func (q *Queue) deliver(ctx context.Context, id string) bool {
	q.mu.Lock()
	i, ok := q.index[id]
	if !ok || q.records[i].Sent {
		q.mu.Unlock()
		return false
	}
	if _, busy := q.inFlight[id]; busy {
		q.mu.Unlock()
		return false
	}
	q.inFlight[id] = struct{}{}
	rec := q.records[i]
	q.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "queue.deliver",
		attribute.String("queue.id", rec.ID),
		attribute.String("queue.trigger", rec.Trigger),
	)
	defer span.End()

	sendCtx, cancel := context.WithTimeout(ctx, q.deliveryTimeout)
	start := time.Now()
	err := q.sender.SendDirect(sendCtx, rec.TargetUserID, models.OutboundMessage{Content: rec.Body})
	cancel()
	metrics.RecordTimer("queue_delivery_duration", time.Since(start), nil)

	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, id)

	stored := &q.records[q.index[id]]
	stored.Attempts++
	if err != nil {
		stored.LastError = err.Error()
		q.persistLocked(ctx)
		tracing.RecordError(ctx, err)
		metrics.IncrementCounter("queue_deliveries_total", map[string]string{"outcome": "failed"}, "Delivery attempts by outcome")
		q.logger.WithError(err).WithFields(logrus.Fields{
			"queue_id": id,
			"attempt":  stored.Attempts,
		}).Warn("Failed to deliver queued message, will retry")
		return false
	}

	flipped := stored.MarkSent(q.now())
	q.persistLocked(ctx)
	metrics.IncrementCounter("queue_deliveries_total", map[string]string{"outcome": "sent"}, "Delivery attempts by outcome")
	q.logger.WithFields(logrus.Fields{
		"queue_id": id,
		"attempt":  stored.Attempts,
	}).Info("Queued message delivered")
	return flipped
}

// persistLocked writes the full log. Failures are logged; memory stays authoritative until the next successful save.
func (q *Queue) persistLocked(ctx context.Context) {
	snapshot := make([]models.ScheduledMessage, len(q.records))
	copy(snapshot, q.records)
	if err := q.store.Save(context.WithoutCancel(ctx), snapshot); err != nil {
		metrics.IncrementCounter("queue_persist_errors_total", nil, "Failed queue persistence writes")
		q.errLogger.LogError(errors.NewStorageError("write", err), "Failed to persist delivery queue")
	}
}

// Snapshot returns copies of the unsent and sent records, oldest first
func (q *Queue) Snapshot() (pending, sent []models.ScheduledMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending = make([]models.ScheduledMessage, 0)
	sent = make([]models.ScheduledMessage, 0)
	for _, rec := range q.records {
		if rec.Sent {
			sent = append(sent, rec)
		} else {
			pending = append(pending, rec)
		}
	}
	return pending, sent
}

// Get returns a copy of the record with id
func (q *Queue) Get(id string) (models.ScheduledMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i, ok := q.index[id]
	if !ok {
		return models.ScheduledMessage{}, false
	}
	return q.records[i], true
}

// Stats returns record counts
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := Stats{Total: len(q.records)}
	for _, rec := range q.records {
		if !rec.Sent {
			stats.Pending++
		}
	}
	return stats
}

// StaleCount counts unsent records created more than threshold before now
func (q *Queue) StaleCount(now time.Time, threshold time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	cutoff := now.Add(-threshold)
	n := 0
	for _, rec := range q.records {
		if !rec.Sent && rec.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n
}

// Close releases the store
func (q *Queue) Close() error {
	return q.store.Close()
}

func newID(target, trigger string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%d_%s", target, trigger, at.UnixMilli(), uuid.NewString()[:8])
}
