package models

// InboundMessage is a channel message observed on the chat gateway
type InboundMessage struct {
	ChannelID       string `json:"channelId"`
	GuildID         string `json:"guildId,omitempty"`
	MessageID       string `json:"messageId"`
	AuthorID        string `json:"authorId"`
	AuthorName      string `json:"authorName"`
	AuthorIsBot     bool   `json:"authorIsBot"`
	Content         string `json:"content"`
	AttachmentCount int    `json:"attachmentCount"`
	URL             string `json:"url"`
}

// HasAttachment reports whether the message carried any attachment
func (m *InboundMessage) HasAttachment() bool {
	return m.AttachmentCount > 0
}

// Snapshot copies the message content for a consent request
func (m *InboundMessage) Snapshot() ContentSnapshot {
	return ContentSnapshot{
		Text:            m.Content,
		AttachmentCount: m.AttachmentCount,
		URL:             m.URL,
	}
}

// ActionEvent is a button press on a consent prompt
type ActionEvent struct {
	ActingUserID     string `json:"actingUserId"`
	Token            string `json:"actionToken"`
	InteractionID    string `json:"interactionId"`
	InteractionToken string `json:"-"`
}

// ButtonStyle mirrors the platform's button colours
type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = 1
	ButtonSuccess ButtonStyle = 3
	ButtonDanger  ButtonStyle = 4
)

// ActionButton is an interactive option attached to an outbound message
type ActionButton struct {
	Label string      `json:"label"`
	Emoji string      `json:"emoji,omitempty"`
	Style ButtonStyle `json:"style"`
	Token string      `json:"token"`
}

// OutboundMessage is a direct message with optional interactive options
type OutboundMessage struct {
	Content string         `json:"content"`
	Buttons []ActionButton `json:"buttons,omitempty"`
}
