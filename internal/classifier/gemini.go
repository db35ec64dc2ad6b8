package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"winbridge/internal/constants"
	"winbridge/internal/errors"
)

// GeminiConfig configures the Gemini provider
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	// Endpoint overrides the API host, for tests
	Endpoint string
}

// GeminiProvider calls Gemini through the genai SDK
type GeminiProvider struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGeminiProvider creates the SDK client. Close releases it.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = constants.DefaultGeminiModel
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = constants.DefaultClassifierTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = constants.DefaultClassifierMaxTokens
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, cfg: cfg}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

// Complete runs a single generation with system as the system instruction
func (p *GeminiProvider) Complete(ctx context.Context, system, user string) (string, error) {
	model := p.client.GenerativeModel(p.cfg.Model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr(p.cfg.Temperature),
		MaxOutputTokens: genai.Ptr(int32(p.cfg.MaxTokens)),
	}

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", errors.NewAPIError("gemini", "generateContent", 0, err)
	}
	return firstText(resp)
}

func firstText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.NewAPIError("gemini", "generateContent", 200, fmt.Errorf("empty response from gemini"))
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", errors.NewAPIError("gemini", "generateContent", 200, fmt.Errorf("unexpected response type from gemini"))
	}
	return b.String(), nil
}

// Close releases the SDK client
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}
