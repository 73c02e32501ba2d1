// Package main is the entry point for the membersync ingress service: the
// HTTP server that receives billing provider webhooks and applies them to
// membership state.
//
// Startup wires the full pipeline (connection pool, repositories, signature
// verifier, origin allowlist, rate limiter, processor) and serves until a
// SIGINT/SIGTERM triggers graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"membersync/internal/api/handlers"
	"membersync/internal/config"
	"membersync/internal/core"
	"membersync/internal/db"
	"membersync/internal/external"
	"membersync/internal/monitor"
	"membersync/internal/queue"
	"membersync/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := core.NewLogger(cfg.Service, cfg.Environment, cfg.LogLevel)
	logger.Info("membersync ingress starting",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.Server.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	// Repositories.
	events := db.NewProcessedEventRepo(pool, logger)
	memberships := db.NewMembershipRepo(pool, logger)
	failures := db.NewPaymentFailureRepo(pool, logger)
	alerts := db.NewAlertRepo(pool, logger)

	// The origin check may only be bypassed outside prod.
	skipOrigin := cfg.Stripe.SkipSourceCheck && !cfg.IsProduction()
	origin, err := webhook.NewOriginAuthenticator(cfg.Stripe.AllowedSourceIPs, skipOrigin)
	if err != nil {
		return fmt.Errorf("building origin allowlist: %w", err)
	}

	limiter := webhook.NewMemoryRateLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	go pruneLoop(ctx, limiter, cfg.RateLimit.Window)

	notifier, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building email notifier: %w", err)
	}

	sink := monitor.NewDBAlertSink(alerts, logger)
	processor := webhook.NewProcessor(events, memberships, failures, notifier, sink, logger)

	webhookHandler := handlers.NewStripeWebhookHandler(
		external.StripeVerifier{},
		limiter,
		origin,
		processor,
		events,
		cfg.Stripe.WebhookSecret,
		logger,
	)

	collector := monitor.NewCollector(events, cfg.Monitor.StuckClaimAge, logger)
	opsHandler := handlers.NewOpsHandler(alerts, collector, cfg.Monitor.MetricsWindow, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Registrars = append(srv.Registrars, webhookHandler.RegisterRoutes, opsHandler.RegisterRoutes)
	srv.MountRoutes()

	return runHTTPServer(ctx, srv, cfg, logger)
}

// buildNotifier constructs the SQS-backed email notifier, or a disabled one
// when no queue is configured.
func buildNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*queue.EmailNotifier, error) {
	if cfg.AWS.EmailQueueURL == "" {
		logger.Warn("email queue not configured; payment failure notifications disabled")
		return queue.NewEmailNotifier(nil, "", logger), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, err
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	return queue.NewEmailNotifier(client, cfg.AWS.EmailQueueURL, logger), nil
}

// pruneLoop periodically drops expired rate-limit windows.
func pruneLoop(ctx context.Context, limiter *webhook.MemoryRateLimiter, window time.Duration) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune()
		}
	}
}

// runHTTPServer serves until ctx is canceled or the listener fails, then
// shuts down gracefully with a 10-second deadline.
func runHTTPServer(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}
