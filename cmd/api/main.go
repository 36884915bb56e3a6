package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/turnstile/internal/auth"
	"github.com/BradenHooton/turnstile/internal/background"
	"github.com/BradenHooton/turnstile/internal/config"
	"github.com/BradenHooton/turnstile/internal/database"
	"github.com/BradenHooton/turnstile/internal/handlers"
	"github.com/BradenHooton/turnstile/internal/metrics"
	middlewareCustom "github.com/BradenHooton/turnstile/internal/middleware"
	"github.com/BradenHooton/turnstile/internal/repositories"
	"github.com/BradenHooton/turnstile/internal/routes"
	"github.com/BradenHooton/turnstile/internal/services"
	pkghttp "github.com/BradenHooton/turnstile/pkg/http"
	"github.com/BradenHooton/turnstile/pkg/secrets"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	issueToken := flag.String("issue-token", "", "print a service token for the named service and exit")
	encryptSecretFlag := flag.Bool("encrypt-secret", false, "read a webhook signing secret from stdin, print its WEBHOOK_SECRET_<PROVIDER>_ENC value and exit")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if *encryptSecretFlag {
		masterKey, err := config.SecretsMasterKey()
		if err != nil {
			logger.Error("failed to load master key", slog.Any("error", err))
			os.Exit(1)
		}
		if err := encryptSecret(os.Stdin, os.Stdout, masterKey); err != nil {
			logger.Error("failed to encrypt secret", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	tokenManager := auth.NewTokenManager(cfg.Auth.ServiceTokenSecret, cfg.Auth.ServiceTokenExpiry)
	if *issueToken != "" {
		token, err := tokenManager.GenerateServiceToken(*issueToken)
		if err != nil {
			logger.Error("failed to issue service token", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.Bool("notify_mock_mode", cfg.Notify.MockMode()))
	logWebhookProviders(logger, cfg.Webhook.Secrets)

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// Initialize repositories
	attemptRepo := repositories.NewAttemptRepository(db)
	webhookRepo := repositories.NewWebhookEventRepository(db)
	noticeRepo := repositories.NewLockoutNoticeRepository(db)

	// Lockout notifications
	var notifier services.LockoutNotifier
	if cfg.Notify.MockMode() {
		notifier = services.NewLogNotifier(logger)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		sesNotifier, err := services.NewSESNotifier(ctx, cfg.Notify.AWSRegion, cfg.Notify.FromAddress, logger)
		cancel()
		if err != nil {
			logger.Error("failed to initialize SES notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}

	// Initialize services
	rateLimitService := services.NewRateLimitService(attemptRepo, services.RateLimitConfig{
		Identifier: cfg.Limits.Identifier,
		IP:         cfg.Limits.IP,
	}, logger)
	rateLimitService.SetNotifier(notifier, noticeRepo)
	rateLimitService.SetMetrics(collector)

	webhookGuard := services.NewWebhookGuardService(webhookRepo, logger)
	webhookGuard.SetMetrics(collector)

	processors := services.NewProcessorRegistry(services.NewLoggingEventProcessor(logger))

	// Initialize handlers
	ipConfig, invalidProxies := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	for _, cidr := range invalidProxies {
		logger.Warn("ignoring invalid trusted proxy range", slog.String("cidr", cidr))
	}

	attemptHandler := handlers.NewAttemptHandler(rateLimitService, logger)
	webhookHandler := handlers.NewWebhookHandler(webhookGuard, processors, handlers.WebhookConfig{
		Secrets:            cfg.Webhook.Secrets,
		SignatureTolerance: cfg.Webhook.SignatureTolerance,
		MaxBodyBytes:       cfg.Webhook.MaxBodyBytes,
	}, logger)

	// Retention cleanup
	cleanupManager := background.NewCleanupManager(logger, cfg.Cleanup.Interval,
		background.CleanupTarget{Table: "auth_attempts", Pruner: attemptRepo, Retention: cfg.Cleanup.AttemptRetention},
		background.CleanupTarget{Table: "webhook_events", Pruner: webhookRepo, Retention: cfg.Cleanup.WebhookRetention},
		background.CleanupTarget{Table: "lockout_notices", Pruner: noticeRepo, Retention: cfg.Cleanup.AttemptRetention},
	)
	cleanupManager.SetMetrics(collector)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig, cfg.Server.Env))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, attemptHandler, webhookHandler, tokenManager, routes.RouteConfig{
		WebhookLimit: middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.WebhookRequestsPerMinute, IPConfig: ipConfig},
		ServiceLimit: middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.ServiceRequestsPerMinute, IPConfig: ipConfig},
	}, logger)

	router.Handle("/metrics", metrics.Handler(registry))

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "down"})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "up"})
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// logWebhookProviders lists configured providers with masked secrets
func logWebhookProviders(logger *slog.Logger, providerSecrets map[string]string) {
	if len(providerSecrets) == 0 {
		logger.Warn("no webhook providers configured, all webhook deliveries will be rejected")
		return
	}

	providers := make([]string, 0, len(providerSecrets))
	for p := range providerSecrets {
		providers = append(providers, p)
	}
	sort.Strings(providers)

	for _, p := range providers {
		logger.Info("webhook provider configured",
			slog.String("provider", p),
			slog.String("secret", secrets.Mask(providerSecrets[p])))
	}
}

// encryptSecret reads one secret from in and writes its encrypted form to out
func encryptSecret(in io.Reader, out io.Writer, masterKey string) error {
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read secret: %w", err)
		}
		return errors.New("no secret on stdin")
	}

	plaintext := strings.TrimSpace(scanner.Text())
	if plaintext == "" {
		return errors.New("secret is empty")
	}

	enc, err := secrets.Encrypt(masterKey, plaintext)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, enc)
	return err
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
