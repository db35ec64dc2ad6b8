package types

import (
	"encoding/json"
	"fmt"
)

// Gateway opcodes
const (
	OpDispatch       = 0
	OpHeartbeat      = 1
	OpIdentify       = 2
	OpResume         = 6
	OpReconnect      = 7
	OpInvalidSession = 9
	OpHello          = 10
	OpHeartbeatAck   = 11
)

// Dispatch event names
const (
	EventReady             = "READY"
	EventResumed           = "RESUMED"
	EventMessageCreate     = "MESSAGE_CREATE"
	EventInteractionCreate = "INTERACTION_CREATE"
)

// Gateway intents
const (
	IntentGuilds         = 1 << 0
	IntentGuildMessages  = 1 << 9
	IntentDirectMessages = 1 << 12
	IntentMessageContent = 1 << 15
)

// Interaction and component kinds
const (
	InteractionTypeMessageComponent = 3

	ComponentActionRow = 1
	ComponentButton    = 2

	ResponseChannelMessage = 4
	ResponseUpdateMessage  = 7

	MessageFlagEphemeral = 1 << 6
)

// GatewayPayload is the envelope for every gateway frame
type GatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// Hello is the first frame sent by the gateway
type Hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

// Identify authenticates a new gateway session
type Identify struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties IdentifyProperties `json:"properties"`
}

type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Resume continues a dropped session
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// Ready is dispatched once a session is established
type Ready struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
	User             User   `json:"user"`
}

type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
	Bot        bool   `json:"bot,omitempty"`
}

// DisplayName prefers the global display name over the username
func (u User) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

type Member struct {
	User *User  `json:"user,omitempty"`
	Nick string `json:"nick,omitempty"`
}

type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
}

type Message struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	GuildID     string       `json:"guild_id,omitempty"`
	Author      User         `json:"author"`
	Member      *Member      `json:"member,omitempty"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Components  []Component  `json:"components,omitempty"`
}

// JumpURL links to the message in the client
func (m Message) JumpURL() string {
	guild := m.GuildID
	if guild == "" {
		guild = "@me"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guild, m.ChannelID, m.ID)
}

type Channel struct {
	ID   string `json:"id"`
	Type int    `json:"type"`
}

type Emoji struct {
	Name string `json:"name"`
}

// Component is an action row or a button
type Component struct {
	Type       int         `json:"type"`
	Style      int         `json:"style,omitempty"`
	Label      string      `json:"label,omitempty"`
	Emoji      *Emoji      `json:"emoji,omitempty"`
	CustomID   string      `json:"custom_id,omitempty"`
	Components []Component `json:"components,omitempty"`
}

// MessageCreate is the body of a create-message request
type MessageCreate struct {
	Content    string      `json:"content"`
	Components []Component `json:"components,omitempty"`
}

type InteractionData struct {
	CustomID      string `json:"custom_id"`
	ComponentType int    `json:"component_type"`
}

type Interaction struct {
	ID        string          `json:"id"`
	Type      int             `json:"type"`
	Token     string          `json:"token"`
	ChannelID string          `json:"channel_id,omitempty"`
	GuildID   string          `json:"guild_id,omitempty"`
	Member    *Member         `json:"member,omitempty"`
	User      *User           `json:"user,omitempty"`
	Data      InteractionData `json:"data"`
	Message   *Message        `json:"message,omitempty"`
}

// ActingUser returns who pressed the component. Guild interactions carry it on Member, DMs on User.
func (i Interaction) ActingUser() User {
	if i.Member != nil && i.Member.User != nil {
		return *i.Member.User
	}
	if i.User != nil {
		return *i.User
	}
	return User{}
}

type InteractionResponse struct {
	Type int                      `json:"type"`
	Data *InteractionResponseData `json:"data,omitempty"`
}

type InteractionResponseData struct {
	Content    string      `json:"content"`
	Flags      int         `json:"flags,omitempty"`
	Components []Component `json:"components"`
}

// ErrorResponse is the JSON body of a failed REST call
type ErrorResponse struct {
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after,omitempty"`
}
