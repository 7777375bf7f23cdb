package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/cardio-intake/cmd/mainconfig"
	"github.com/wolfman30/cardio-intake/internal/api/router"
	"github.com/wolfman30/cardio-intake/internal/app/bootstrap"
	appconfig "github.com/wolfman30/cardio-intake/internal/config"
	"github.com/wolfman30/cardio-intake/internal/draft"
	httpmiddleware "github.com/wolfman30/cardio-intake/internal/http/middleware"
	"github.com/wolfman30/cardio-intake/internal/intake"
	"github.com/wolfman30/cardio-intake/internal/notify"
	"github.com/wolfman30/cardio-intake/internal/observability/metrics"
	"github.com/wolfman30/cardio-intake/pkg/logging"
)

func main() {
	// Load .env file when present
	envErr := godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}
	logger.Info("starting cardio-intake API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	secret, err := resolveSessionSecret(cfg, logger)
	if err != nil {
		logger.Error("invalid session configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsHandler, intakeMetrics := setupMetrics()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	var dynamoClient draft.DynamoAPI
	if redisClient == nil {
		dynamoClient = setupDynamoClient(ctx, cfg, logger)
	}
	drafts := bootstrap.BuildDraftStore(redisClient, dynamoClient, cfg, logger)

	audit, auditDB, err := bootstrap.BuildAuditService(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect audit database", "error", err)
		os.Exit(1)
	}

	notifier := bootstrap.BuildReceptionNotifier(cfg, setupSESClient(ctx, cfg, logger), logger)

	sessions, err := bootstrap.BuildSessions(cfg, bootstrap.IntakeDeps{
		Drafts:   drafts,
		Notifier: notifier,
		Audit:    audit,
		Metrics:  intakeMetrics,
	}, logger)
	if err != nil {
		logger.Error("failed to build intake sessions", "error", err)
		os.Exit(1)
	}
	go sessions.RunSweeper(ctx, cfg.SessionSweepEvery)

	tokens := httpmiddleware.NewSessionTokens(secret, cfg.SessionTTL)
	limiter := httpmiddleware.NewRateLimiter(ctx, cfg.GenerateRatePerSec, cfg.GenerateBurst)
	intakeHandler := intake.NewHandler(sessions, tokens, httpmiddleware.RateLimit(limiter), logger)

	// Setup router
	routerCfg := &router.Config{
		Logger:             logger,
		IntakeHandler:      intakeHandler,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		OpsToken:           cfg.OpsToken,
	}
	if audit != nil {
		routerCfg.Audit = audit
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()

	// Flush every open draft before the stores go away.
	if err := sessions.Shutdown(shutdownCtx); err != nil {
		logger.Warn("intake sessions did not drain", "error", err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if auditDB != nil {
		_ = auditDB.Close()
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers the intake collectors on a private registry and
// returns the /metrics handler for it.
func setupMetrics() (http.Handler, *metrics.IntakeMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	intakeMetrics := metrics.NewIntakeMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), intakeMetrics
}

// setupSESClient returns an SES client only when SES is the selected email
// provider.
func setupSESClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.SESAPI {
	if cfg == nil || strings.ToLower(strings.TrimSpace(cfg.EmailProvider)) != "ses" {
		return nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		return nil
	}
	return sesv2.NewFromConfig(awsCfg)
}

// setupDynamoClient returns a DynamoDB client when a draft table is
// configured.
func setupDynamoClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) draft.DynamoAPI {
	if cfg == nil || strings.TrimSpace(cfg.DraftTable) == "" {
		return nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		return nil
	}
	return dynamodb.NewFromConfig(awsCfg)
}

// resolveSessionSecret returns the token signing secret. Development gets a
// random per-process secret when none is configured.
func resolveSessionSecret(cfg *appconfig.Config, logger *logging.Logger) (string, error) {
	if secret := strings.TrimSpace(cfg.SessionSecret); secret != "" {
		return secret, nil
	}
	if cfg.Env != "development" {
		return "", errors.New("INTAKE_SESSION_SECRET is required outside development")
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	logger.Warn("INTAKE_SESSION_SECRET not set; using a random secret, tokens will not survive a restart")
	return hex.EncodeToString(buf), nil
}
