package classifier

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"winbridge/internal/constants"
	"winbridge/internal/metrics"
	"winbridge/internal/privacy"
	"winbridge/internal/tracing"
	"winbridge/pkg/circuitbreaker"
)

// Path records which branch produced a decision
type Path string

const (
	PathAI       Path = "ai"
	PathFallback Path = "fallback"
)

// Decision is a classification outcome and how it was reached
type Decision struct {
	Significant bool
	Path        Path
}

// Config tunes the Service
type Config struct {
	LeaderName      string
	Timeout         time.Duration
	BreakerFailures int
	BreakerReset    time.Duration
}

// Service decides whether a post is a significant win.
// A nil provider always uses the fallback.
type Service struct {
	provider     Provider
	breaker      *circuitbreaker.CircuitBreaker
	timeout      time.Duration
	systemPrompt string
	logger       *logrus.Logger
}

// NewService wraps provider with a timeout and a circuit breaker
func NewService(provider Provider, cfg Config, logger *logrus.Logger) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Duration(constants.DefaultClassifierTimeoutSec) * time.Second
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = constants.DefaultBreakerMaxFailures
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = time.Duration(constants.DefaultBreakerResetTimeoutSec) * time.Second
	}

	name := "none"
	if provider != nil {
		name = provider.Name()
	}
	return &Service{
		provider:     provider,
		breaker:      circuitbreaker.New("classifier-"+name, cfg.BreakerFailures, cfg.BreakerReset, logger),
		timeout:      cfg.Timeout,
		systemPrompt: SystemPrompt(cfg.LeaderName),
		logger:       logger,
	}
}

// IsSignificant never fails: provider errors, timeouts and an open breaker all fall back
func (s *Service) IsSignificant(ctx context.Context, content string, hasAttachment bool) bool {
	return s.Classify(ctx, content, hasAttachment).Significant
}

// Classify is IsSignificant with the decision path exposed
func (s *Service) Classify(ctx context.Context, content string, hasAttachment bool) Decision {
	ctx, span := tracing.StartSpan(ctx, "classifier.classify",
		attribute.Bool("message.has_attachment", hasAttachment),
		attribute.Int("message.length", len(content)),
	)
	defer span.End()

	decision := s.classify(ctx, content, hasAttachment)

	tracing.AddSpanAttributes(ctx,
		attribute.Bool("classifier.significant", decision.Significant),
		attribute.String("classifier.path", string(decision.Path)),
	)
	metrics.IncrementCounter("classifications_total", map[string]string{
		"path":        string(decision.Path),
		"significant": boolLabel(decision.Significant),
	}, "Classifications by path and outcome")
	return decision
}

func (s *Service) classify(ctx context.Context, content string, hasAttachment bool) Decision {
	fallback := Decision{Significant: Fallback(content, hasAttachment), Path: PathFallback}
	if s.provider == nil {
		return fallback
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var answer string
	start := time.Now()
	err := s.breaker.Execute(callCtx, func(ctx context.Context) error {
		var callErr error
		answer, callErr = s.provider.Complete(ctx, s.systemPrompt, UserPrompt(content, hasAttachment))
		return callErr
	})
	metrics.RecordTimer("classifier_latency", time.Since(start), map[string]string{"provider": s.provider.Name()})

	if err != nil {
		tracing.RecordError(ctx, err)
		entry := s.logger.WithFields(logrus.Fields{
			"provider":            s.provider.Name(),
			"classification_path": PathFallback,
			"significant":         fallback.Significant,
		}).WithError(err)
		if circuitbreaker.IsOpen(err) {
			entry.Debug("Classifier circuit open, using fallback")
		} else {
			entry.Warn("Classifier call failed, using fallback")
		}
		return fallback
	}

	significant := IsPositive(answer)
	s.logger.WithFields(logrus.Fields{
		"provider":            s.provider.Name(),
		"classification_path": PathAI,
		"significant":         significant,
		"answer":              privacy.Truncate(answer, 16),
	}).Debug("Classified message")
	return Decision{Significant: significant, Path: PathAI}
}

// Breaker exposes the circuit breaker state for health reporting
func (s *Service) Breaker() *circuitbreaker.CircuitBreaker {
	return s.breaker
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
