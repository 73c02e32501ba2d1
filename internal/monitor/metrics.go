// Package monitor is the read side of the pipeline: it aggregates the
// processed-event log into metrics snapshots, scans them for anomalies, and
// raises alerts. It never writes to membership state.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"membersync/internal/types"
)

// EventStats is the aggregation surface of the processed-event log.
// Implemented by db.ProcessedEventRepo.
type EventStats interface {
	WindowStats(ctx context.Context, since time.Time) (total, succeeded, failed int, avgMs float64, slowestMs int64, err error)
	ErrorsByType(ctx context.Context, since time.Time) (map[string]int, error)
	CountDuplicateAttempts(ctx context.Context, since time.Time) (int, error)
	CountStuckClaims(ctx context.Context, olderThan time.Time) (int, error)
}

// Collector computes metrics snapshots over trailing windows of the
// processed-event log. Snapshots are derived on demand and never persisted.
type Collector struct {
	stats    EventStats
	stuckAge time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewCollector(stats EventStats, stuckAge time.Duration, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{stats: stats, stuckAge: stuckAge, logger: logger, now: time.Now}
}

// Snapshot aggregates the trailing window ending now.
func (c *Collector) Snapshot(ctx context.Context, window time.Duration) (types.MetricsSnapshot, error) {
	end := c.now()
	start := end.Add(-window)

	total, succeeded, failed, avgMs, slowestMs, err := c.stats.WindowStats(ctx, start)
	if err != nil {
		return types.MetricsSnapshot{}, err
	}

	errorsByType, err := c.stats.ErrorsByType(ctx, start)
	if err != nil {
		return types.MetricsSnapshot{}, err
	}

	duplicates, err := c.stats.CountDuplicateAttempts(ctx, start)
	if err != nil {
		return types.MetricsSnapshot{}, err
	}

	stuck, err := c.stats.CountStuckClaims(ctx, end.Add(-c.stuckAge))
	if err != nil {
		return types.MetricsSnapshot{}, err
	}

	return types.MetricsSnapshot{
		WindowStart:       start,
		WindowEnd:         end,
		TotalEvents:       total,
		SuccessfulEvents:  succeeded,
		FailedEvents:      failed,
		AvgProcessingMs:   avgMs,
		SlowestMs:         slowestMs,
		ErrorsByType:      errorsByType,
		DuplicateAttempts: duplicates,
		StuckClaims:       stuck,
	}, nil
}
