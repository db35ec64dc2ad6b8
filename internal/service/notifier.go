package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/sirupsen/logrus"

	"winbridge/internal/errors"
	"winbridge/internal/models"
	"winbridge/pkg/discord"
	"winbridge/pkg/discord/types"
)

// Notifier delivers a direct message to a user
type Notifier interface {
	SendDirect(ctx context.Context, userID string, msg models.OutboundMessage) error
}

// InteractionResponder answers a button press
type InteractionResponder interface {
	// Reply posts a new message visible only to the presser when ephemeral is set
	Reply(ctx context.Context, action models.ActionEvent, content string, ephemeral bool) error
	// UpdatePrompt replaces the prompt text and removes its buttons
	UpdatePrompt(ctx context.Context, action models.ActionEvent, content string) error
}

// DiscordNotifier sends direct messages and interaction responses over the REST API
type DiscordNotifier struct {
	client types.RESTClient
	logger *logrus.Logger
}

func NewDiscordNotifier(client types.RESTClient, logger *logrus.Logger) *DiscordNotifier {
	return &DiscordNotifier{client: client, logger: logger}
}

// SendDirect opens the DM channel for userID and posts msg with its buttons in one action row
func (n *DiscordNotifier) SendDirect(ctx context.Context, userID string, msg models.OutboundMessage) error {
	ch, err := n.client.CreateDM(ctx, userID)
	if err != nil {
		return wrapDiscordError("/users/@me/channels", err)
	}

	create := types.MessageCreate{Content: msg.Content}
	if row := buttonRow(msg.Buttons); row != nil {
		create.Components = []types.Component{*row}
	}
	if _, err := n.client.SendMessage(ctx, ch.ID, create); err != nil {
		return wrapDiscordError("/channels/{id}/messages", err)
	}
	return nil
}

func (n *DiscordNotifier) Reply(ctx context.Context, action models.ActionEvent, content string, ephemeral bool) error {
	data := &types.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = types.MessageFlagEphemeral
	}
	err := n.client.RespondToInteraction(ctx, action.InteractionID, action.InteractionToken, types.InteractionResponse{
		Type: types.ResponseChannelMessage,
		Data: data,
	})
	if err != nil {
		return wrapDiscordError("/interactions/{id}/callback", err)
	}
	return nil
}

func (n *DiscordNotifier) UpdatePrompt(ctx context.Context, action models.ActionEvent, content string) error {
	err := n.client.RespondToInteraction(ctx, action.InteractionID, action.InteractionToken, types.InteractionResponse{
		Type: types.ResponseUpdateMessage,
		Data: &types.InteractionResponseData{Content: content, Components: []types.Component{}},
	})
	if err != nil {
		return wrapDiscordError("/interactions/{id}/callback", err)
	}
	return nil
}

func buttonRow(buttons []models.ActionButton) *types.Component {
	if len(buttons) == 0 {
		return nil
	}
	row := &types.Component{Type: types.ComponentActionRow}
	for _, b := range buttons {
		c := types.Component{
			Type:     types.ComponentButton,
			Style:    int(b.Style),
			Label:    b.Label,
			CustomID: b.Token,
		}
		if b.Emoji != "" {
			c.Emoji = &types.Emoji{Name: b.Emoji}
		}
		row.Components = append(row.Components, c)
	}
	return row
}

func wrapDiscordError(endpoint string, err error) error {
	var apiErr *discord.APIError
	if stderrors.As(err, &apiErr) {
		return errors.NewAPIError("discord", endpoint, apiErr.StatusCode, err)
	}
	return errors.NewAPIError("discord", endpoint, 0, err)
}

// ReadyGate holds sends until the chat transport reports ready, for at most wait
type ReadyGate struct {
	next  Notifier
	ready <-chan struct{}
	wait  time.Duration
}

func NewReadyGate(next Notifier, ready <-chan struct{}, wait time.Duration) *ReadyGate {
	return &ReadyGate{next: next, ready: ready, wait: wait}
}

// SendDirect fails with NOT_READY if the transport is not ready in time, leaving the caller to retry later
func (g *ReadyGate) SendDirect(ctx context.Context, userID string, msg models.OutboundMessage) error {
	select {
	case <-g.ready:
		return g.next.SendDirect(ctx, userID, msg)
	default:
	}

	timer := time.NewTimer(g.wait)
	defer timer.Stop()

	select {
	case <-g.ready:
		return g.next.SendDirect(ctx, userID, msg)
	case <-timer.C:
		return errors.New(errors.ErrCodeNotReady, "chat transport not ready").
			WithContext("waited", g.wait.String())
	case <-ctx.Done():
		return ctx.Err()
	}
}
