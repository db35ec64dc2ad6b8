package constants

// Classification defaults
const (
	DefaultClassifierTimeoutSec   = 15
	DefaultOpenAIModel            = "gpt-4o-mini"
	DefaultOpenAIBaseURL          = "https://api.openai.com/v1"
	DefaultGeminiModel            = "gemini-2.0-flash"
	DefaultClassifierTemperature  = 0.3
	DefaultClassifierMaxTokens    = 10
	FallbackSignificantLength     = 200
	DefaultBreakerMaxFailures     = 5
	DefaultBreakerResetTimeoutSec = 60
)

// Consent prompt and leader alert formatting
const (
	PromptPreviewLength = 200
	AlertPreviewLength  = 300
)

// Delivery queue defaults
const (
	DefaultQueuePath             = "scheduled_dms.json"
	DefaultQueueBackend          = "file"
	DefaultFlushIntervalSec      = 60
	DefaultMonitorIntervalSec    = 300
	DefaultStaleAfterMin         = 30
	DefaultReadyWaitSec          = 10
	DefaultDeliveryTimeoutSec    = 15
	DefaultDatabaseRetryAttempts = 3
	QueueFileMode                = 0600
)

// Intake defaults
const (
	DefaultFirstName     = "User"
	DefaultCoachName     = "Your Coach"
	DefaultCalendarLink  = "https://calendly.com"
	MaxDisplayNameLength = 100

	DefaultTemplateWatchIntervalSec = 30
)

// Server defaults
const (
	DefaultServerPort            = 3000
	DefaultGracefulShutdownSec   = 30
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 30
	DefaultServerIdleTimeoutSec  = 60
	ServerErrorChannelSize       = 1
	MaxWebhookBodyBytes          = 1 << 20
	MinWebhookSecretLength       = 32
	WebhookRateLimitRequests     = 60
	WebhookRateLimitWindowSec    = 60
)

// Retry defaults
const (
	DefaultRetryBackoffMs = 1000
	DefaultMaxBackoffMs   = 60000
	DefaultMaxAttempts    = 5
)

// Discord defaults
const (
	DefaultDiscordAPIBaseURL  = "https://discord.com/api/v10"
	DefaultDiscordGatewayURL  = "wss://gateway.discord.gg/?v=10&encoding=json"
	DefaultDiscordHTTPTimeout = 15
	GatewayReadLimitBytes     = 1 << 22
	MinSnowflakeLength        = 15
	MaxSnowflakeLength        = 21
)

// Privacy settings
const (
	DefaultIDMaskLength      = 4
	DefaultContentLogPreview = 32
)
