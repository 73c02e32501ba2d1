package monitor

import (
	"context"
	"log/slog"
	"time"

	"membersync/internal/config"
	"membersync/internal/types"
)

// AlertSink raises alerts; satisfied by DBAlertSink.
type AlertSink interface {
	Raise(ctx context.Context, message string, severity types.AlertSeverity)
}

// Runner drives the two periodic monitoring loops: the anomaly scan (snapshot
// the short window, evaluate it, raise alerts, including the stuck-claim
// reconciliation rule) and the reporting loop (snapshot the long window,
// publish aggregates). The loops run independently so a slow reporting query
// never delays an alert. One pass failing is logged and its loop keeps going.
type Runner struct {
	collector *Collector
	detector  *Detector
	sink      AlertSink
	publisher *CloudWatchPublisher
	cfg       config.MonitorConfig
	logger    *slog.Logger
}

func NewRunner(collector *Collector, detector *Detector, sink AlertSink, publisher *CloudWatchPublisher, cfg config.MonitorConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		collector: collector,
		detector:  detector,
		sink:      sink,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// RunAnomalyScans scans immediately, then on every interval tick until ctx is
// canceled.
func (r *Runner) RunAnomalyScans(ctx context.Context) error {
	return r.loop(ctx, r.scanAnomalies)
}

// RunReporting publishes immediately, then on every interval tick until ctx
// is canceled.
func (r *Runner) RunReporting(ctx context.Context) error {
	return r.loop(ctx, r.publishReport)
}

func (r *Runner) loop(ctx context.Context, pass func(context.Context)) error {
	pass(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pass(ctx)
		}
	}
}

// scanAnomalies performs one anomaly pass over the short window.
func (r *Runner) scanAnomalies(ctx context.Context) {
	snap, err := r.collector.Snapshot(ctx, r.cfg.AnomalyWindow)
	if err != nil {
		r.logger.ErrorContext(ctx, "anomaly window snapshot failed", slog.String("error", err.Error()))
		return
	}

	for _, anomaly := range r.detector.Evaluate(snap) {
		r.sink.Raise(ctx, anomaly.Message, anomaly.Severity)
	}
}

// publishReport performs one reporting pass over the long window.
func (r *Runner) publishReport(ctx context.Context) {
	snap, err := r.collector.Snapshot(ctx, r.cfg.MetricsWindow)
	if err != nil {
		r.logger.ErrorContext(ctx, "metrics window snapshot failed", slog.String("error", err.Error()))
		return
	}

	if r.publisher != nil {
		r.publisher.Publish(ctx, snap)
	}

	r.logger.InfoContext(ctx, "metrics report",
		slog.Int("total_events", snap.TotalEvents),
		slog.Int("failed_events", snap.FailedEvents),
		slog.Float64("error_rate", snap.ErrorRate()),
		slog.Float64("avg_processing_ms", snap.AvgProcessingMs),
		slog.Int("duplicate_attempts", snap.DuplicateAttempts),
		slog.Int("stuck_claims", snap.StuckClaims),
	)
}
