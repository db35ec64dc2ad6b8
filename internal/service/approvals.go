package service

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"winbridge/internal/consent"
	"winbridge/internal/constants"
	"winbridge/internal/errors"
	"winbridge/internal/metrics"
	"winbridge/internal/models"
	"winbridge/internal/privacy"
	"winbridge/internal/tracing"
)

// Replies shown to the author after pressing a consent button
const (
	ReplyExpired      = "❌ This request has expired."
	ReplyOnlyAuthor   = "❌ Only the author can respond to this."
	ReplyDenied       = "❌ No problem! Your win won't be shared."
	replyApprovedFmt  = "✅ Thanks! Sending your win to %s..."
	approveLabel      = "Yes, share it!"
	denyLabel         = "No, keep it private"
	screenshotNote    = "\n📸 Includes screenshot"
	defaultLeaderName = "the team"
)

// ApprovalConfig names the leader approved wins are forwarded to
type ApprovalConfig struct {
	LeaderUserID string
	LeaderName   string
}

// ApprovalService runs the consent flow: prompt the author, then forward or drop on their decision
type ApprovalService struct {
	store      *consent.Store
	notifier   Notifier
	responder  InteractionResponder
	leaderID   string
	leaderName string
	logger     *logrus.Logger
	errLogger  *errors.Logger
	now        func() time.Time
}

func NewApprovalService(store *consent.Store, notifier Notifier, responder InteractionResponder, cfg ApprovalConfig, logger *logrus.Logger) *ApprovalService {
	if cfg.LeaderName == "" {
		cfg.LeaderName = defaultLeaderName
	}
	return &ApprovalService{
		store:      store,
		notifier:   notifier,
		responder:  responder,
		leaderID:   cfg.LeaderUserID,
		leaderName: cfg.LeaderName,
		logger:     logger,
		errLogger:  errors.NewLogger(logger),
		now:        time.Now,
	}
}

// RequestApproval asks the author for consent. The id is reserved before sending so concurrent
// requests for one message prompt once; the record is registered only after the prompt was delivered.
// It reports whether a record was created.
func (s *ApprovalService) RequestApproval(ctx context.Context, msg models.InboundMessage, source string) bool {
	ctx, span := tracing.StartSpan(ctx, "consent.request",
		attribute.String("consent.source", source),
	)
	defer span.End()

	log := LogWithContext(ctx, s.logger).WithFields(logrus.Fields{
		LogFieldApproval: msg.MessageID,
		LogFieldUserID:   SanitizeID(ctx, msg.AuthorID),
		LogFieldSource:   source,
	})

	if !s.store.Reserve(msg.MessageID) {
		log.Debug("Skipping approval request: already pending")
		return false
	}

	prompt := models.OutboundMessage{
		Content: ConsentPrompt(source, msg.Content, s.leaderName),
		Buttons: consentButtons(msg.MessageID),
	}
	if err := s.notifier.SendDirect(ctx, msg.AuthorID, prompt); err != nil {
		s.store.Release(msg.MessageID)
		tracing.RecordError(ctx, err)
		metrics.IncrementCounter("consent_prompts_total", map[string]string{"outcome": "failed"}, "Consent prompts sent to authors")
		s.errLogger.LogError(err, "Failed to send consent prompt", logrus.Fields{
			LogFieldApproval: msg.MessageID,
			LogFieldUserID:   SanitizeID(ctx, msg.AuthorID),
		})
		return false
	}

	created := s.store.Put(models.PendingApproval{
		RequestID:   msg.MessageID,
		AuthorID:    msg.AuthorID,
		AuthorName:  msg.AuthorName,
		SourceLabel: source,
		Content:     msg.Snapshot(),
		CreatedAt:   s.now(),
	})
	metrics.IncrementCounter("consent_prompts_total", map[string]string{"outcome": "sent"}, "Consent prompts sent to authors")
	metrics.SetGauge("pending_approvals", float64(s.store.Len()), nil, "Consent requests awaiting a decision")
	log.WithField("created", created).Info("Consent prompt sent")
	return created
}

// HandleAction resolves a button press. Every outcome is answered to the presser; errors are only logged.
func (s *ApprovalService) HandleAction(ctx context.Context, action models.ActionEvent) models.Resolution {
	ctx, span := tracing.StartSpan(ctx, "consent.resolve")
	defer span.End()

	log := LogWithContext(ctx, s.logger).WithField(LogFieldUserID, SanitizeID(ctx, action.ActingUserID))

	token, err := models.ParseActionToken(action.Token)
	if err != nil {
		log.WithError(err).Warn("Malformed consent token")
		s.reply(ctx, action, ReplyExpired)
		s.countResolution(models.ResolutionNotFound)
		return models.ResolutionNotFound
	}

	resolution, rec := s.store.Resolve(token.RequestID, action.ActingUserID, token.Decision)
	tracing.AddSpanAttributes(ctx,
		attribute.String("consent.decision", string(token.Decision)),
		attribute.String("consent.resolution", string(resolution)),
	)
	s.countResolution(resolution)
	log = log.WithFields(logrus.Fields{
		LogFieldApproval: token.RequestID,
		LogFieldDecision: token.Decision,
	})

	switch resolution {
	case models.ResolutionNotFound:
		log.Info("Consent request not found or already resolved")
		s.reply(ctx, action, ReplyExpired)

	case models.ResolutionUnauthorized:
		log.Warn("Consent action by someone other than the author")
		s.reply(ctx, action, ReplyOnlyAuthor)

	case models.ResolutionApproved:
		s.update(ctx, action, fmt.Sprintf(replyApprovedFmt, s.leaderName))
		s.forwardToLeader(ctx, rec)
		log.Info("Author approved sharing their win")

	case models.ResolutionDenied:
		s.update(ctx, action, ReplyDenied)
		log.Info("Author declined sharing their win")
	}

	metrics.SetGauge("pending_approvals", float64(s.store.Len()), nil, "Consent requests awaiting a decision")
	return resolution
}

// Expire drops requests older than ttl without notifying their authors
func (s *ApprovalService) Expire(now time.Time, ttl time.Duration) int {
	expired := s.store.Expire(now, ttl)
	if len(expired) > 0 {
		metrics.AddToCounter("consent_expired_total", float64(len(expired)), nil, "Consent requests dropped after their TTL")
		metrics.SetGauge("pending_approvals", float64(s.store.Len()), nil, "Consent requests awaiting a decision")
		s.logger.WithFields(logrus.Fields{
			LogFieldCount: len(expired),
			"ttl":         ttl.String(),
		}).Info("Expired pending approvals")
	}
	return len(expired)
}

// PendingCount returns the number of unresolved consent requests
func (s *ApprovalService) PendingCount() int {
	return s.store.Len()
}

func (s *ApprovalService) forwardToLeader(ctx context.Context, rec models.PendingApproval) {
	alert := models.OutboundMessage{Content: LeaderAlert(rec)}
	if err := s.notifier.SendDirect(ctx, s.leaderID, alert); err != nil {
		tracing.RecordError(ctx, err)
		metrics.IncrementCounter("leader_alerts_total", map[string]string{"outcome": "failed"}, "Approved wins forwarded to the leader")
		s.errLogger.LogError(err, "Failed to forward win to leader", logrus.Fields{
			LogFieldApproval: rec.RequestID,
		})
		return
	}
	metrics.IncrementCounter("leader_alerts_total", map[string]string{"outcome": "sent"}, "Approved wins forwarded to the leader")
}

func (s *ApprovalService) reply(ctx context.Context, action models.ActionEvent, content string) {
	if err := s.responder.Reply(ctx, action, content, true); err != nil {
		s.errLogger.LogWarn(err, "Failed to answer consent action")
	}
}

func (s *ApprovalService) update(ctx context.Context, action models.ActionEvent, content string) {
	if err := s.responder.UpdatePrompt(ctx, action, content); err != nil {
		s.errLogger.LogWarn(err, "Failed to update consent prompt")
	}
}

func (s *ApprovalService) countResolution(r models.Resolution) {
	metrics.IncrementCounter("consent_resolutions_total", map[string]string{"resolution": string(r)}, "Consent actions by outcome")
}

// ConsentPrompt is the direct message asking an author to share their win
func ConsentPrompt(source, text, leaderName string) string {
	return fmt.Sprintf("👋 Hey! I noticed your awesome win in **%s**:\n\n\"%s\"\n\n🎉 **Can we share this with %s?** They love seeing significant wins from the community!",
		source, preview(text, constants.PromptPreviewLength), leaderName)
}

// LeaderAlert is the direct message forwarded to the leader after approval
func LeaderAlert(rec models.PendingApproval) string {
	note := ""
	if rec.Content.HasAttachment() {
		note = screenshotNote
	}
	return fmt.Sprintf("🚨 **SIGNIFICANT WIN ALERT**\n\n**From:** @%s in **%s**\n\n**Message:**\n\"%s\"\n%s\n\n📎 **View full message:** %s",
		rec.AuthorName, rec.SourceLabel, preview(rec.Content.Text, constants.AlertPreviewLength), note, rec.Content.URL)
}

func preview(text string, limit int) string {
	if utf8.RuneCountInString(text) > limit {
		return privacy.Truncate(text, limit) + "..."
	}
	return text
}

func consentButtons(requestID string) []models.ActionButton {
	return []models.ActionButton{
		{
			Label: approveLabel,
			Emoji: "✅",
			Style: models.ButtonSuccess,
			Token: models.ActionToken{Decision: models.DecisionApprove, RequestID: requestID}.Encode(),
		},
		{
			Label: denyLabel,
			Emoji: "❌",
			Style: models.ButtonDanger,
			Token: models.ActionToken{Decision: models.DecisionDeny, RequestID: requestID}.Encode(),
		},
	}
}
