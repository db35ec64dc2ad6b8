package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"winbridge/internal/metrics"
	"winbridge/internal/models"
)

// Classifier decides whether a post is a significant win
type Classifier interface {
	IsSignificant(ctx context.Context, content string, hasAttachment bool) bool
}

// ApprovalRequester starts the consent flow for a significant post
type ApprovalRequester interface {
	RequestApproval(ctx context.Context, msg models.InboundMessage, source string) bool
}

// Watcher filters channel messages down to significant wins in watched channels
type Watcher struct {
	channels   *ChannelRegistry
	classifier Classifier
	approvals  ApprovalRequester
	logger     *logrus.Logger
}

func NewWatcher(channels *ChannelRegistry, classifier Classifier, approvals ApprovalRequester, logger *logrus.Logger) *Watcher {
	return &Watcher{
		channels:   channels,
		classifier: classifier,
		approvals:  approvals,
		logger:     logger,
	}
}

// HandleMessage classifies msg when it is a human post in a watched channel and requests
// consent when it is significant. It reports whether a consent request was created.
func (w *Watcher) HandleMessage(ctx context.Context, msg models.InboundMessage) bool {
	if msg.AuthorIsBot {
		return false
	}
	source, watched := w.channels.Label(msg.ChannelID)
	if !watched {
		return false
	}

	log := LogWithContext(ctx, w.logger).WithFields(logrus.Fields{
		LogFieldMessageID: msg.MessageID,
		LogFieldChannelID: msg.ChannelID,
		LogFieldUserID:    SanitizeID(ctx, msg.AuthorID),
		LogFieldSource:    source,
	})
	log.WithField("content", SanitizeContent(ctx, msg.Content)).Debug("New message in watched channel")
	metrics.IncrementCounter("watched_messages_total", map[string]string{"source": source}, "Messages seen in watched channels")

	if !w.classifier.IsSignificant(ctx, msg.Content, msg.HasAttachment()) {
		return false
	}

	log.Info("Significant win detected")
	metrics.IncrementCounter("significant_wins_total", map[string]string{"source": source}, "Posts classified as significant wins")
	return w.approvals.RequestApproval(ctx, msg, source)
}
