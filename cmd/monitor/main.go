// Package main is the entry point for the membersync monitor: the read-side
// loop that aggregates the processed-event log into metrics, scans for
// anomalies, and raises alerts. It runs as its own process so ingest latency
// never competes with the aggregation queries.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"golang.org/x/sync/errgroup"

	"membersync/internal/config"
	"membersync/internal/core"
	"membersync/internal/db"
	"membersync/internal/monitor"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := core.NewLogger(cfg.Service+"-monitor", cfg.Environment, cfg.LogLevel)
	logger.Info("membersync monitor starting",
		slog.String("environment", cfg.Environment),
		slog.Duration("interval", cfg.Monitor.Interval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	events := db.NewProcessedEventRepo(pool, logger)
	alerts := db.NewAlertRepo(pool, logger)

	collector := monitor.NewCollector(events, cfg.Monitor.StuckClaimAge, logger)
	detector := monitor.NewDetector(monitor.Thresholds{
		ErrorRateFloor: cfg.Monitor.ErrorRateFloor,
		ErrorRate:      cfg.Monitor.ErrorRateThreshold,
		SlowAvg:        cfg.Monitor.SlowAvgThreshold,
	})
	sink := monitor.NewDBAlertSink(alerts, logger)

	publisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building metrics publisher: %w", err)
	}

	runner := monitor.NewRunner(collector, detector, sink, publisher, cfg.Monitor, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.RunAnomalyScans(gctx)
	})
	g.Go(func() error {
		return runner.RunReporting(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("monitor stopped cleanly")
	return nil
}

// buildPublisher constructs the CloudWatch publisher, or nil when no
// namespace is configured.
func buildPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*monitor.CloudWatchPublisher, error) {
	if cfg.AWS.MetricsNamespace == "" {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, err
	}

	client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	return monitor.NewCloudWatchPublisher(client, cfg.AWS.MetricsNamespace, logger), nil
}
