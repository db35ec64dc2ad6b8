package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"winbridge/internal/constants"
	"winbridge/internal/models"
	"winbridge/internal/validation"
)

var (
	ErrMissingBotToken = models.ConfigError{Message: "missing Discord bot token (set DISCORD_BOT_TOKEN)"}
	ErrMissingLeader   = models.ConfigError{Message: "missing leader user id"}
	ErrMissingChannels = models.ConfigError{Message: "channels array is required and must contain at least one channel"}
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"

	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// LoadConfig reads a JSON or YAML config file, applies defaults and environment overrides, and validates the result
func LoadConfig(path string) (*models.Config, error) {
	return loadConfig(context.Background(), path, envconfig.OsLookuper())
}

func loadConfig(ctx context.Context, path string, lookuper envconfig.Lookuper) (*models.Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if isYAML(path) {
		err = yaml.Unmarshal(file, &config)
	} else {
		err = json.Unmarshal(file, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(path), err)
	}

	if err := envconfig.ProcessWith(ctx, &config, lookuper); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func validateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}
	return nil
}

func applyDefaults(c *models.Config) {
	if c.Discord.APIBaseURL == "" {
		c.Discord.APIBaseURL = constants.DefaultDiscordAPIBaseURL
	}
	if c.Discord.GatewayURL == "" {
		c.Discord.GatewayURL = constants.DefaultDiscordGatewayURL
	}
	if c.Discord.HTTPTimeoutSec <= 0 {
		c.Discord.HTTPTimeoutSec = constants.DefaultDiscordHTTPTimeout
	}
	if c.Discord.ReadyWaitSec <= 0 {
		c.Discord.ReadyWaitSec = constants.DefaultReadyWaitSec
	}
	if c.Discord.LeaderName == "" {
		c.Discord.LeaderName = "the team"
	}

	for i := range c.Channels {
		if c.Channels[i].Label == "" {
			c.Channels[i].Label = "#" + c.Channels[i].ChannelID
		}
	}

	if c.Classifier.Provider == "" {
		c.Classifier.Provider = ProviderOpenAI
	}
	if c.Classifier.Model == "" {
		switch c.Classifier.Provider {
		case ProviderGemini:
			c.Classifier.Model = constants.DefaultGeminiModel
		default:
			c.Classifier.Model = constants.DefaultOpenAIModel
		}
	}
	if c.Classifier.BaseURL == "" {
		c.Classifier.BaseURL = constants.DefaultOpenAIBaseURL
	}
	if c.Classifier.TimeoutSec <= 0 {
		c.Classifier.TimeoutSec = constants.DefaultClassifierTimeoutSec
	}
	if c.Classifier.Temperature <= 0 {
		c.Classifier.Temperature = constants.DefaultClassifierTemperature
	}
	if c.Classifier.MaxTokens <= 0 {
		c.Classifier.MaxTokens = constants.DefaultClassifierMaxTokens
	}
	if c.Classifier.BreakerFailures <= 0 {
		c.Classifier.BreakerFailures = constants.DefaultBreakerMaxFailures
	}
	if c.Classifier.BreakerResetSec <= 0 {
		c.Classifier.BreakerResetSec = constants.DefaultBreakerResetTimeoutSec
	}

	if c.Queue.Backend == "" {
		c.Queue.Backend = BackendFile
	}
	if c.Queue.Path == "" {
		c.Queue.Path = constants.DefaultQueuePath
	}
	if c.Queue.FlushIntervalSec <= 0 {
		c.Queue.FlushIntervalSec = constants.DefaultFlushIntervalSec
	}
	if c.Queue.MonitorIntervalSec <= 0 {
		c.Queue.MonitorIntervalSec = constants.DefaultMonitorIntervalSec
	}
	if c.Queue.StaleAfterMin <= 0 {
		c.Queue.StaleAfterMin = constants.DefaultStaleAfterMin
	}
	if c.Queue.DeliveryTimeoutSec <= 0 {
		c.Queue.DeliveryTimeoutSec = constants.DefaultDeliveryTimeoutSec
	}

	if c.Intake.DefaultCoachName == "" {
		c.Intake.DefaultCoachName = constants.DefaultCoachName
	}
	if c.Intake.DefaultCalendarLink == "" {
		c.Intake.DefaultCalendarLink = constants.DefaultCalendarLink
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "development"
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func validate(c *models.Config) error {
	if c.Discord.BotToken == "" {
		return ErrMissingBotToken
	}
	if c.Discord.LeaderUserID == "" {
		return ErrMissingLeader
	}
	if err := validation.ValidateSnowflake("leader_user_id", c.Discord.LeaderUserID); err != nil {
		return models.ConfigError{Message: err.Error()}
	}

	if len(c.Channels) == 0 {
		return ErrMissingChannels
	}
	seen := make(map[string]bool)
	for i, channel := range c.Channels {
		if channel.ChannelID == "" {
			return models.ConfigError{Message: fmt.Sprintf("empty channel id in channel %d", i)}
		}
		if err := validation.ValidateSnowflake("channel_id", channel.ChannelID); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("channel %d: %s", i, err.Error())}
		}
		if seen[channel.ChannelID] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate channel id: %s", channel.ChannelID)}
		}
		seen[channel.ChannelID] = true
	}

	for _, proxy := range c.Server.TrustedProxies {
		if err := validation.ValidateNetwork("trusted_proxies", proxy); err != nil {
			return models.ConfigError{Message: err.Error()}
		}
	}

	switch c.Queue.Backend {
	case BackendFile, BackendSQLite:
	default:
		return models.ConfigError{Message: fmt.Sprintf("unknown queue backend %q (expected file or sqlite)", c.Queue.Backend)}
	}

	switch c.Classifier.Provider {
	case ProviderOpenAI:
		if c.Classifier.OpenAIAPIKey == "" {
			return models.ConfigError{Message: "classifier provider openai requires OPENAI_API_KEY"}
		}
	case ProviderGemini:
		if c.Classifier.GeminiAPIKey == "" {
			return models.ConfigError{Message: "classifier provider gemini requires GEMINI_API_KEY"}
		}
	case ProviderNone:
	default:
		return models.ConfigError{Message: fmt.Sprintf("unknown classifier provider %q", c.Classifier.Provider)}
	}

	if c.Approvals.TTLHours < 0 {
		return models.ConfigError{Message: "approvals.ttl_hours cannot be negative"}
	}
	return nil
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	if c.IsProduction() {
		if c.Server.WebhookSecret == "" {
			return models.ConfigError{Message: "webhook secret is required in production (set WEBHOOK_SECRET environment variable)"}
		}
		if len(c.Server.WebhookSecret) < constants.MinWebhookSecretLength {
			return models.ConfigError{Message: fmt.Sprintf("webhook secret must be at least %d characters long", constants.MinWebhookSecretLength)}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
		return nil
	}

	if c.Server.WebhookSecret == "" {
		fmt.Fprintf(os.Stderr, "WARNING: webhook secret not set. Set WEBHOOK_SECRET to require signed lifecycle webhooks.\n")
	}
	return nil
}
