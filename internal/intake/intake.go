package intake

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"winbridge/internal/constants"
	"winbridge/internal/metrics"
	"winbridge/internal/models"
	"winbridge/internal/privacy"
	"winbridge/internal/queue"
	"winbridge/internal/tracing"
	"winbridge/internal/validation"
)

var (
	// ErrMissingTarget rejects an event with no target user id
	ErrMissingTarget = errors.New("Missing discordUserId in webhook payload")
	// ErrUnknownTrigger rejects an event whose bucket has no template
	ErrUnknownTrigger = errors.New("Invalid or missing count. Must be 7, 30, or 90")
)

// Enqueuer is the part of the delivery queue intake depends on
type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (models.ScheduledMessage, error)
}

// Defaults fills fields an event leaves empty
type Defaults struct {
	CoachName    string
	CalendarLink string
}

// Result describes an accepted event
type Result struct {
	Record    models.ScheduledMessage
	FirstName string
	Count     int
}

// Service validates lifecycle events, renders the trigger template and dispatches it immediately
type Service struct {
	queue     Enqueuer
	defaults  Defaults
	templates atomic.Pointer[TemplateSet]
	logger    *logrus.Logger
}

// NewService uses the built-in templates until ReloadTemplates succeeds
func NewService(q Enqueuer, defaults Defaults, logger *logrus.Logger) (*Service, error) {
	if defaults.CoachName == "" {
		defaults.CoachName = constants.DefaultCoachName
	}
	if defaults.CalendarLink == "" {
		defaults.CalendarLink = constants.DefaultCalendarLink
	}

	set, err := NewTemplateSet(DefaultTemplates())
	if err != nil {
		return nil, err
	}
	s := &Service{queue: q, defaults: defaults, logger: logger}
	s.templates.Store(set)
	return s, nil
}

// ReloadTemplates swaps in the overrides from path. On error the current set stays active.
func (s *Service) ReloadTemplates(path string) error {
	set, err := LoadTemplateFile(path)
	if err != nil {
		return err
	}
	s.templates.Store(set)
	s.logger.WithFields(logrus.Fields{
		"path":    path,
		"buckets": len(set.Buckets()),
	}).Info("Trigger templates reloaded")
	return nil
}

// Handle validates evt, renders its template and enqueues it with immediate delivery.
// ErrMissingTarget and ErrUnknownTrigger leave the queue untouched.
func (s *Service) Handle(ctx context.Context, evt models.LifecycleEvent) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "intake.handle")
	defer span.End()

	target := evt.Target()
	if target == "" {
		metrics.IncrementCounter("intake_rejected_total", map[string]string{"reason": "missing_target"}, "Rejected lifecycle events")
		return Result{}, ErrMissingTarget
	}

	bucket := evt.Bucket()
	templates := s.templates.Load()
	if bucket <= 0 || !templates.Has(bucket) {
		metrics.IncrementCounter("intake_rejected_total", map[string]string{"reason": "unknown_trigger"}, "Rejected lifecycle events")
		return Result{}, ErrUnknownTrigger
	}

	data := TemplateData{
		FirstName:    s.safeName("first_name", evt.Display(), constants.DefaultFirstName),
		CoachName:    s.safeName("coach_name", evt.CoachName, s.defaults.CoachName),
		CalendarLink: orDefault(evt.Calendar(), s.defaults.CalendarLink),
	}
	body, err := templates.Render(bucket, data)
	if err != nil {
		tracing.RecordError(ctx, err)
		return Result{}, fmt.Errorf("render %d-day message: %w", bucket, err)
	}

	trigger := strconv.Itoa(bucket)
	tracing.AddSpanAttributes(ctx, attribute.String("intake.trigger", trigger))

	rec, err := s.queue.Enqueue(ctx, queue.EnqueueRequest{
		TargetUserID: target,
		DisplayName:  data.FirstName,
		CoachName:    data.CoachName,
		Body:         body,
		Trigger:      trigger,
		Immediate:    true,
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return Result{}, fmt.Errorf("enqueue %d-day message: %w", bucket, err)
	}

	metrics.IncrementCounter("intake_accepted_total", map[string]string{"trigger": trigger}, "Accepted lifecycle events")
	s.logger.WithFields(logrus.Fields{
		"trigger":  trigger,
		"user_id":  privacy.MaskID(target),
		"queue_id": rec.ID,
		"sent":     rec.Sent,
	}).Info("Lifecycle event dispatched")

	return Result{Record: rec, FirstName: data.FirstName, Count: bucket}, nil
}

// Message is the human-readable summary returned to the webhook caller
func (r Result) Message() string {
	if r.Record.Sent {
		return fmt.Sprintf("%d-day DM sent successfully", r.Count)
	}
	return fmt.Sprintf("%d-day DM queued for delivery", r.Count)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// safeName falls back to def when the CRM sends a name unfit for a message body
func (s *Service) safeName(field, value, def string) string {
	if err := validation.ValidateText(field, value, constants.MaxDisplayNameLength); err != nil {
		s.logger.WithError(err).Warn("Replacing invalid name with default")
		return def
	}
	return orDefault(value, def)
}
