package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"winbridge/internal/constants"
	"winbridge/pkg/discord/types"
)

const maxErrorBodyBytes = 1024

// APIError is a non-2xx REST response
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	Method     string
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Retryable reports whether the call may succeed if repeated
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client calls the REST API with a bot token
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *logrus.Logger
}

func NewClient(baseURL, token string, httpClient *http.Client, logger *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = constants.DefaultDiscordAPIBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(constants.DefaultDiscordHTTPTimeout) * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  httpClient,
		logger:  logger,
	}
}

// CreateDM opens (or returns the existing) direct message channel with recipientID
func (c *Client) CreateDM(ctx context.Context, recipientID string) (*types.Channel, error) {
	var ch types.Channel
	if err := c.do(ctx, http.MethodPost, "/users/@me/channels", map[string]string{"recipient_id": recipientID}, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) SendMessage(ctx context.Context, channelID string, msg types.MessageCreate) (*types.Message, error) {
	var out types.Message
	if err := c.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetUser(ctx context.Context, userID string) (*types.User, error) {
	var u types.User
	if err := c.do(ctx, http.MethodGet, "/users/"+userID, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// RespondToInteraction answers a component interaction. The callback has no response body.
func (c *Client) RespondToInteraction(ctx context.Context, interactionID, token string, resp types.InteractionResponse) error {
	return c.do(ctx, http.MethodPost, "/interactions/"+interactionID+"/"+token+"/callback", resp, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", "DiscordBot (winbridge, 1.0)")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"method":      method,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Discord API call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		apiErr := &APIError{StatusCode: resp.StatusCode, Method: method, Path: redactPath(path)}
		var parsed types.ErrorResponse
		if json.Unmarshal(raw, &parsed) == nil && parsed.Message != "" {
			apiErr.Code = parsed.Code
			apiErr.Message = parsed.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// redactPath drops interaction tokens from paths used in errors and logs
func redactPath(path string) string {
	if !strings.HasPrefix(path, "/interactions/") {
		return path
	}
	parts := strings.Split(path, "/")
	if len(parts) >= 4 {
		parts[3] = "<token>"
	}
	return strings.Join(parts, "/")
}
