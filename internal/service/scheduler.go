package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"winbridge/internal/constants"
)

// QueueFlusher delivers every due record
type QueueFlusher interface {
	FlushDue(ctx context.Context, now time.Time) int
}

// ApprovalExpirer drops consent requests older than ttl
type ApprovalExpirer interface {
	Expire(now time.Time, ttl time.Duration) int
}

// Scheduler retries unsent deliveries and, when a TTL is set, expires stale consent requests
type Scheduler struct {
	queue       QueueFlusher
	approvals   ApprovalExpirer
	interval    time.Duration
	approvalTTL time.Duration
	logger      *logrus.Logger
	now         func() time.Time
	stopCh      chan struct{}
	stopOnce    sync.Once
}

func NewScheduler(queue QueueFlusher, approvals ApprovalExpirer, interval, approvalTTL time.Duration, logger *logrus.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Duration(constants.DefaultFlushIntervalSec) * time.Second
	}
	return &Scheduler{
		queue:       queue,
		approvals:   approvals,
		interval:    interval,
		approvalTTL: approvalTTL,
		logger:      logger,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
}

// Start runs one pass immediately, then one per interval until ctx is done or Stop is called
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithFields(logrus.Fields{
		"interval":     s.interval.String(),
		"approval_ttl": s.approvalTTL.String(),
	}).Info("Starting delivery scheduler")

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) runOnce(ctx context.Context) {
	now := s.now()
	if delivered := s.queue.FlushDue(ctx, now); delivered > 0 {
		s.logger.WithField(LogFieldCount, delivered).Debug("Scheduler delivered queued messages")
	}
	if s.approvalTTL > 0 && s.approvals != nil {
		s.approvals.Expire(now, s.approvalTTL)
	}
}
