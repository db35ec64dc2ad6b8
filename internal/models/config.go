package models

// Config holds the application configuration
type Config struct {
	Discord    DiscordConfig    `json:"discord" yaml:"discord"`
	Channels   []Channel        `json:"channels" yaml:"channels"`
	Classifier ClassifierConfig `json:"classifier" yaml:"classifier"`
	Approvals  ApprovalConfig   `json:"approvals" yaml:"approvals"`
	Queue      QueueConfig      `json:"queue" yaml:"queue"`
	Intake     IntakeConfig     `json:"intake" yaml:"intake"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	Retry      RetryConfig      `json:"retry" yaml:"retry"`
	Tracing    TracingConfig    `json:"tracing" yaml:"tracing"`
	Features   map[string]bool  `json:"features" yaml:"features"`
	LogLevel   string           `json:"log_level" yaml:"log_level" env:"LOG_LEVEL,overwrite"`
}

// DiscordConfig holds chat platform settings. Secrets come from the environment.
type DiscordConfig struct {
	BotToken       string `json:"-" yaml:"-" env:"DISCORD_BOT_TOKEN,overwrite"`
	LeaderUserID   string `json:"leader_user_id" yaml:"leader_user_id" env:"LEADER_USER_ID,overwrite"`
	LeaderName     string `json:"leader_name" yaml:"leader_name" env:"LEADER_NAME,overwrite"`
	APIBaseURL     string `json:"api_base_url" yaml:"api_base_url" env:"DISCORD_API_URL,overwrite"`
	GatewayURL     string `json:"gateway_url" yaml:"gateway_url" env:"DISCORD_GATEWAY_URL,overwrite"`
	HTTPTimeoutSec int    `json:"http_timeout_sec" yaml:"http_timeout_sec"`
	ReadyWaitSec   int    `json:"ready_wait_sec" yaml:"ready_wait_sec"`
}

// Channel is a watched community channel and the label shown to authors and the leader
type Channel struct {
	ChannelID string `json:"channel_id" yaml:"channel_id"`
	Label     string `json:"label" yaml:"label"`
}

// ClassifierConfig selects and tunes the AI provider
type ClassifierConfig struct {
	Provider        string  `json:"provider" yaml:"provider" env:"CLASSIFIER_PROVIDER,overwrite"`
	Model           string  `json:"model" yaml:"model"`
	BaseURL         string  `json:"base_url" yaml:"base_url" env:"OPENAI_BASE_URL,overwrite"`
	OpenAIAPIKey    string  `json:"-" yaml:"-" env:"OPENAI_API_KEY,overwrite"`
	GeminiAPIKey    string  `json:"-" yaml:"-" env:"GEMINI_API_KEY,overwrite"`
	TimeoutSec      int     `json:"timeout_sec" yaml:"timeout_sec"`
	Temperature     float32 `json:"temperature" yaml:"temperature"`
	MaxTokens       int     `json:"max_tokens" yaml:"max_tokens"`
	BreakerFailures int     `json:"breaker_failures" yaml:"breaker_failures"`
	BreakerResetSec int     `json:"breaker_reset_sec" yaml:"breaker_reset_sec"`
}

// ApprovalConfig controls pending consent requests
type ApprovalConfig struct {
	// TTLHours of zero keeps pending approvals until they are resolved.
	TTLHours int `json:"ttl_hours" yaml:"ttl_hours"`
}

// QueueConfig controls the delivery queue and its persistence backend
type QueueConfig struct {
	Backend            string `json:"backend" yaml:"backend" env:"QUEUE_BACKEND,overwrite"`
	Path               string `json:"path" yaml:"path" env:"QUEUE_PATH,overwrite"`
	FlushIntervalSec   int    `json:"flush_interval_sec" yaml:"flush_interval_sec"`
	MonitorIntervalSec int    `json:"monitor_interval_sec" yaml:"monitor_interval_sec"`
	StaleAfterMin      int    `json:"stale_after_min" yaml:"stale_after_min"`
	DeliveryTimeoutSec int    `json:"delivery_timeout_sec" yaml:"delivery_timeout_sec"`
}

// IntakeConfig controls lifecycle event templating
type IntakeConfig struct {
	TemplatesPath       string `json:"templates_path" yaml:"templates_path" env:"TEMPLATES_PATH,overwrite"`
	DefaultCoachName    string `json:"default_coach_name" yaml:"default_coach_name"`
	DefaultCalendarLink string `json:"default_calendar_link" yaml:"default_calendar_link"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           int      `json:"port" yaml:"port" env:"PORT,overwrite"`
	WebhookSecret  string   `json:"-" yaml:"-" env:"WEBHOOK_SECRET,overwrite"`
	Environment    string   `json:"environment" yaml:"environment" env:"WINBRIDGE_ENV,overwrite"`
	TrustedProxies []string `json:"trusted_proxies" yaml:"trusted_proxies" env:"TRUSTED_PROXIES,overwrite"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs" yaml:"initial_backoff_ms"`
	MaxBackoffMs     int `json:"maxBackoffMs" yaml:"max_backoff_ms"`
	MaxAttempts      int `json:"maxAttempts" yaml:"max_attempts"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	ServiceName    string  `json:"service_name" yaml:"service_name"`
	ServiceVersion string  `json:"service_version" yaml:"service_version"`
	Environment    string  `json:"environment" yaml:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint" yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT,overwrite"`
	SampleRate     float64 `json:"sample_rate" yaml:"sample_rate"`
	UseStdout      bool    `json:"use_stdout" yaml:"use_stdout"`
}

// IsProduction reports whether the service runs with production hardening
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
