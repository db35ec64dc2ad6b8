package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"winbridge/internal/classifier"
	"winbridge/internal/config"
	"winbridge/internal/consent"
	"winbridge/internal/constants"
	"winbridge/internal/database"
	"winbridge/internal/features"
	"winbridge/internal/intake"
	"winbridge/internal/models"
	"winbridge/internal/queue"
	"winbridge/internal/retry"
	"winbridge/internal/service"
	"winbridge/internal/tracing"
	"winbridge/pkg/discord"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes message content and ids)")
	configPath = flag.String("config", "config.json", "Path to configuration file (JSON or YAML)")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("winbridge %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting winbridge")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	configureLogLevel(logger, cfg.LogLevel, *verbose)
	if *verbose {
		ctx = service.WithVerbose(ctx, true)
	}

	flags := features.NewFlagManager()
	unknown := append(flags.LoadFromConfig(cfg.Features), flags.LoadFromEnvironment()...)
	if len(unknown) > 0 {
		logger.WithField("flags", unknown).Warn("Ignoring unknown feature flags")
	}

	tracingCfg := cfg.Tracing
	if tracingCfg.ServiceVersion == "" {
		tracingCfg.ServiceVersion = Version
	}
	tracingManager := tracing.NewManager(tracingCfg, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	discordClient := discord.NewClient(cfg.Discord.APIBaseURL, cfg.Discord.BotToken, &http.Client{
		Timeout: time.Duration(cfg.Discord.HTTPTimeoutSec) * time.Second,
	}, logger)
	notifier := service.NewDiscordNotifier(discordClient, logger)

	classifierCfg := cfg.Classifier
	if !flags.IsEnabled(features.FlagAIClassification) {
		classifierCfg.Provider = config.ProviderNone
	}
	provider, closeProvider, err := newProvider(ctx, classifierCfg)
	if err != nil {
		return fmt.Errorf("failed to create classifier provider: %w", err)
	}
	defer closeProvider()

	classifierSvc := classifier.NewService(provider, classifier.Config{
		LeaderName:      cfg.Discord.LeaderName,
		Timeout:         time.Duration(cfg.Classifier.TimeoutSec) * time.Second,
		BreakerFailures: cfg.Classifier.BreakerFailures,
		BreakerReset:    time.Duration(cfg.Classifier.BreakerResetSec) * time.Second,
	}, logger)

	registry, err := service.NewChannelRegistry(cfg.Channels)
	if err != nil {
		return fmt.Errorf("failed to create channel registry: %w", err)
	}

	approvals := service.NewApprovalService(consent.NewStore(), notifier, notifier, service.ApprovalConfig{
		LeaderUserID: cfg.Discord.LeaderUserID,
		LeaderName:   cfg.Discord.LeaderName,
	}, logger)

	watcher := service.NewWatcher(registry, classifierSvc, approvals, logger)
	bot := service.NewBot(watcher, approvals, discordClient, cfg.Discord.LeaderUserID, logger)

	gateway := discord.NewGateway(cfg.Discord.GatewayURL, cfg.Discord.BotToken, bot, logger,
		discord.WithReconnectBackoff(backoffConfig(cfg.Retry, 0)))

	store, err := openQueueStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	deliveries := queue.New(ctx, store,
		service.NewReadyGate(notifier, gateway.Ready(), time.Duration(cfg.Discord.ReadyWaitSec)*time.Second),
		logger,
		queue.WithDeliveryTimeout(time.Duration(cfg.Queue.DeliveryTimeoutSec)*time.Second),
	)
	defer func() {
		if err := deliveries.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close delivery queue")
		}
	}()

	intakeSvc, err := intake.NewService(deliveries, intake.Defaults{
		CoachName:    cfg.Intake.DefaultCoachName,
		CalendarLink: cfg.Intake.DefaultCalendarLink,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create intake service: %w", err)
	}
	if path := cfg.Intake.TemplatesPath; path != "" {
		if err := intakeSvc.ReloadTemplates(path); err != nil {
			return fmt.Errorf("failed to load templates: %w", err)
		}
		if flags.IsEnabled(features.FlagTemplateReload) {
			templateWatcher := config.NewTemplateWatcher(path, time.Duration(constants.DefaultTemplateWatchIntervalSec)*time.Second, logger)
			templateWatcher.OnChange(intakeSvc.ReloadTemplates)
			go func() {
				if err := templateWatcher.Start(ctx); err != nil {
					logger.WithError(err).Warn("Template watcher stopped")
				}
			}()
		}
	}

	approvalTTL := time.Duration(cfg.Approvals.TTLHours) * time.Hour
	if !flags.IsEnabled(features.FlagApprovalExpiry) {
		approvalTTL = 0
	}
	scheduler := service.NewScheduler(deliveries, approvals,
		time.Duration(cfg.Queue.FlushIntervalSec)*time.Second,
		approvalTTL,
		logger)
	go scheduler.Start(ctx)
	defer scheduler.Stop()

	if flags.IsEnabled(features.FlagDeliveryMonitor) {
		monitor := service.NewDeliveryMonitor(deliveries, approvals,
			time.Duration(cfg.Queue.MonitorIntervalSec)*time.Second,
			time.Duration(cfg.Queue.StaleAfterMin)*time.Minute,
			logger)
		go monitor.Start(ctx)
		defer monitor.Stop()
	}

	gatewayErrCh := make(chan error, 1)
	go func() {
		gatewayErrCh <- gateway.Run(ctx)
	}()

	server := NewServer(cfg, flags, intakeSvc, deliveries, approvals, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	logger.WithFields(logrus.Fields{
		"channels":   len(cfg.Channels),
		"classifier": classifierCfg.Provider,
		"backend":    cfg.Queue.Backend,
	}).Info("winbridge started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		runErr = err
	case err := <-gatewayErrCh:
		if err != nil {
			runErr = fmt.Errorf("gateway stopped: %w", err)
			logger.Error(runErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to shutdown server gracefully")
	}
	cancelRun()
	gateway.Wait()

	logger.Info("Shutdown completed")
	return runErr
}

func configureLogLevel(logger *logrus.Logger, level string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - message content will be logged")
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		parsed = logrus.InfoLevel
	}
	if parsed > logrus.InfoLevel {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
}

func backoffConfig(rc models.RetryConfig, maxAttempts int) retry.BackoffConfig {
	return retry.BackoffConfig{
		InitialDelay: time.Duration(rc.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(rc.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  maxAttempts,
		Jitter:       true,
	}
}

// openQueueStore picks the persistence backend for the delivery queue
func openQueueStore(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (queue.Store, error) {
	if cfg.Queue.Backend != config.BackendSQLite {
		logger.WithField("path", cfg.Queue.Path).Info("Using JSON file queue store")
		return queue.NewFileStore(cfg.Queue.Path), nil
	}

	enc, err := database.NewEncryptorFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}

	var store *database.QueueStore
	backoff := retry.NewBackoff(backoffConfig(cfg.Retry, constants.DefaultDatabaseRetryAttempts))
	err = backoff.Retry(ctx, func(ctx context.Context) error {
		var initErr error
		store, initErr = database.New(ctx, cfg.Queue.Path, enc)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	logger.WithField("path", cfg.Queue.Path).Info("Using SQLite queue store")
	return store, nil
}

// newProvider builds the configured AI provider. A nil provider means fallback-only classification.
func newProvider(ctx context.Context, cc models.ClassifierConfig) (classifier.Provider, func(), error) {
	noop := func() {}
	switch cc.Provider {
	case config.ProviderNone:
		return nil, noop, nil
	case config.ProviderGemini:
		p, err := classifier.NewGeminiProvider(ctx, classifier.GeminiConfig{
			APIKey:      cc.GeminiAPIKey,
			Model:       cc.Model,
			Temperature: cc.Temperature,
			MaxTokens:   cc.MaxTokens,
		})
		if err != nil {
			return nil, noop, err
		}
		return p, func() { _ = p.Close() }, nil
	default:
		p, err := classifier.NewOpenAIProvider(classifier.OpenAIConfig{
			APIKey:      cc.OpenAIAPIKey,
			BaseURL:     cc.BaseURL,
			Model:       cc.Model,
			Temperature: cc.Temperature,
			MaxTokens:   cc.MaxTokens,
			HTTPClient:  &http.Client{Timeout: time.Duration(cc.TimeoutSec) * time.Second},
		})
		if err != nil {
			return nil, noop, err
		}
		return p, noop, nil
	}
}
