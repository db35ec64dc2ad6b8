package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"winbridge/internal/metrics"
	"winbridge/internal/queue"
)

// QueueInspector exposes queue counts for monitoring
type QueueInspector interface {
	Stats() queue.Stats
	StaleCount(now time.Time, threshold time.Duration) int
}

// PendingCounter reports outstanding consent requests
type PendingCounter interface {
	PendingCount() int
}

// DeliveryMonitor publishes queue and approval gauges and warns about messages stuck unsent
type DeliveryMonitor struct {
	queue          QueueInspector
	approvals      PendingCounter
	checkInterval  time.Duration
	staleThreshold time.Duration
	logger         *logrus.Logger
	now            func() time.Time
	stopCh         chan struct{}
	stopOnce       sync.Once
}

func NewDeliveryMonitor(q QueueInspector, approvals PendingCounter, checkInterval, staleThreshold time.Duration, logger *logrus.Logger) *DeliveryMonitor {
	return &DeliveryMonitor{
		queue:          q,
		approvals:      approvals,
		checkInterval:  checkInterval,
		staleThreshold: staleThreshold,
		logger:         logger,
		now:            time.Now,
		stopCh:         make(chan struct{}),
	}
}

func (m *DeliveryMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	m.logger.WithFields(logrus.Fields{
		"check_interval":  m.checkInterval.String(),
		"stale_threshold": m.staleThreshold.String(),
	}).Info("Starting delivery monitor")

	m.check()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *DeliveryMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *DeliveryMonitor) check() int {
	stats := m.queue.Stats()
	metrics.SetGauge("queue_total", float64(stats.Total), nil, "Records in the delivery log")
	metrics.SetGauge("queue_pending", float64(stats.Pending), nil, "Records not yet delivered")
	if m.approvals != nil {
		metrics.SetGauge("pending_approvals", float64(m.approvals.PendingCount()), nil, "Consent requests awaiting a decision")
	}

	stale := m.queue.StaleCount(m.now(), m.staleThreshold)
	metrics.SetGauge("queue_stale_messages", float64(stale), nil, "Undelivered records older than the stale threshold")
	if stale > 0 {
		m.logger.WithFields(logrus.Fields{
			"stale_count": stale,
			"threshold":   m.staleThreshold.String(),
		}).Warn("Messages waiting for delivery longer than the stale threshold")
	}
	return stale
}
