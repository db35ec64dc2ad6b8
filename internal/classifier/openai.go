package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"winbridge/internal/constants"
	"winbridge/internal/errors"
)

const maxErrorBodyBytes = 512

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	HTTPClient  *http.Client
}

// OpenAIProvider calls POST {BaseURL}/chat/completions
type OpenAIProvider struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float32
	maxTokens   int
	httpClient  *http.Client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIProvider validates cfg and fills defaults
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = constants.DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = constants.DefaultOpenAIModel
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = constants.DefaultClassifierTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = constants.DefaultClassifierMaxTokens
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: time.Duration(constants.DefaultClassifierTimeoutSec) * time.Second}
	}

	return &OpenAIProvider{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  cfg.HTTPClient,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Complete sends one system and one user message and returns the first choice's content
func (p *OpenAIProvider) Complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := p.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", errors.NewAPIError("openai", "/chat/completions", 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.NewAPIError("openai", "/chat/completions", resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		snippet := raw
		if len(snippet) > maxErrorBodyBytes {
			snippet = snippet[:maxErrorBodyBytes]
		}
		return "", errors.NewAPIError("openai", "/chat/completions", resp.StatusCode,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", errors.NewAPIError("openai", "/chat/completions", resp.StatusCode, fmt.Errorf("failed to unmarshal response: %w", err))
	}
	if parsed.Error != nil {
		return "", errors.NewAPIError("openai", "/chat/completions", resp.StatusCode, fmt.Errorf("%s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return "", errors.NewAPIError("openai", "/chat/completions", resp.StatusCode, fmt.Errorf("no choices in response"))
	}
	return parsed.Choices[0].Message.Content, nil
}
