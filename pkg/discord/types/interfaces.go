package types

import "context"

// RESTClient is the subset of the REST API the bot uses
type RESTClient interface {
	CreateDM(ctx context.Context, recipientID string) (*Channel, error)
	SendMessage(ctx context.Context, channelID string, msg MessageCreate) (*Message, error)
	GetUser(ctx context.Context, userID string) (*User, error)
	RespondToInteraction(ctx context.Context, interactionID, token string, resp InteractionResponse) error
}

// Handler receives gateway dispatches. Each call runs in its own goroutine.
type Handler interface {
	OnReady(ctx context.Context, ready Ready)
	OnMessageCreate(ctx context.Context, msg Message)
	OnInteractionCreate(ctx context.Context, interaction Interaction)
}
