package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"winbridge/internal/models"
	"winbridge/internal/tracing"
	"winbridge/pkg/discord/types"
)

// ActionHandler resolves consent button presses
type ActionHandler interface {
	HandleAction(ctx context.Context, action models.ActionEvent) models.Resolution
}

// UserLookup resolves a user by id
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (*types.User, error)
}

// Bot adapts gateway dispatches to the watcher and the approval flow
type Bot struct {
	watcher  *Watcher
	actions  ActionHandler
	users    UserLookup
	leaderID string
	logger   *logrus.Logger
}

func NewBot(watcher *Watcher, actions ActionHandler, users UserLookup, leaderID string, logger *logrus.Logger) *Bot {
	return &Bot{
		watcher:  watcher,
		actions:  actions,
		users:    users,
		leaderID: leaderID,
		logger:   logger,
	}
}

// OnReady checks that the leader can be looked up so a bad id is visible at startup
func (b *Bot) OnReady(ctx context.Context, ready types.Ready) {
	b.logger.WithField("bot_user", ready.User.Username).Info("Bot is online, watching channels for significant wins")

	leader, err := b.users.GetUser(ctx, b.leaderID)
	if err != nil {
		b.logger.WithError(err).WithField("leader_id", SanitizeID(ctx, b.leaderID)).
			Error("Failed to look up leader, approved wins may not be delivered")
		return
	}
	b.logger.WithField("leader", leader.DisplayName()).Info("Leader resolved")
}

func (b *Bot) OnMessageCreate(ctx context.Context, msg types.Message) {
	ctx = tracing.WithFullTracing(tracing.WithEventID(ctx, msg.ID))
	b.watcher.HandleMessage(ctx, ToInboundMessage(msg))
}

func (b *Bot) OnInteractionCreate(ctx context.Context, interaction types.Interaction) {
	if interaction.Type != types.InteractionTypeMessageComponent {
		return
	}
	ctx = tracing.WithFullTracing(tracing.WithEventID(ctx, interaction.ID))
	b.actions.HandleAction(ctx, models.ActionEvent{
		ActingUserID:     interaction.ActingUser().ID,
		Token:            interaction.Data.CustomID,
		InteractionID:    interaction.ID,
		InteractionToken: interaction.Token,
	})
}

// ToInboundMessage converts a gateway message to the domain shape
func ToInboundMessage(msg types.Message) models.InboundMessage {
	return models.InboundMessage{
		ChannelID:       msg.ChannelID,
		GuildID:         msg.GuildID,
		MessageID:       msg.ID,
		AuthorID:        msg.Author.ID,
		AuthorName:      msg.Author.Username,
		AuthorIsBot:     msg.Author.Bot,
		Content:         msg.Content,
		AttachmentCount: len(msg.Attachments),
		URL:             msg.JumpURL(),
	}
}
