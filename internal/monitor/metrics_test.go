package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEventStats struct {
	total, succeeded, failed int
	avgMs                    float64
	slowestMs                int64
	errorsByType             map[string]int
	duplicates               int
	stuck                    int

	statsErr error

	windowSince time.Time
	stuckCutoff time.Time
}

func (f *fakeEventStats) WindowStats(ctx context.Context, since time.Time) (int, int, int, float64, int64, error) {
	f.windowSince = since
	return f.total, f.succeeded, f.failed, f.avgMs, f.slowestMs, f.statsErr
}

func (f *fakeEventStats) ErrorsByType(ctx context.Context, since time.Time) (map[string]int, error) {
	return f.errorsByType, nil
}

func (f *fakeEventStats) CountDuplicateAttempts(ctx context.Context, since time.Time) (int, error) {
	return f.duplicates, nil
}

func (f *fakeEventStats) CountStuckClaims(ctx context.Context, olderThan time.Time) (int, error) {
	f.stuckCutoff = olderThan
	return f.stuck, nil
}

func TestCollector_Snapshot(t *testing.T) {
	stats := &fakeEventStats{
		total:        20,
		succeeded:    16,
		failed:       4,
		avgMs:        650.5,
		slowestMs:    2900,
		errorsByType: map[string]int{"internal_database_error": 3, "untrusted_origin": 1},
		duplicates:   1,
		stuck:        2,
	}
	collector := NewCollector(stats, 15*time.Minute, discardLogger())
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	collector.now = func() time.Time { return now }

	snap, err := collector.Snapshot(context.Background(), time.Hour)
	require.NoError(t, err)

	assert.Equal(t, now.Add(-time.Hour), snap.WindowStart)
	assert.Equal(t, now, snap.WindowEnd)
	assert.Equal(t, 20, snap.TotalEvents)
	assert.Equal(t, 4, snap.FailedEvents)
	assert.InDelta(t, 0.20, snap.ErrorRate(), 0.001)
	assert.Equal(t, int64(2900), snap.SlowestMs)
	assert.Equal(t, 1, snap.DuplicateAttempts)
	assert.Equal(t, 2, snap.StuckClaims)

	// Stuck scan uses its own age cutoff, not the metrics window.
	assert.Equal(t, now.Add(-15*time.Minute), stats.stuckCutoff)
	assert.Equal(t, now.Add(-time.Hour), stats.windowSince)
}

func TestCollector_Snapshot_PropagatesError(t *testing.T) {
	stats := &fakeEventStats{statsErr: errors.New("query timeout")}
	collector := NewCollector(stats, 15*time.Minute, discardLogger())

	_, err := collector.Snapshot(context.Background(), time.Hour)
	require.Error(t, err)
}

func TestSnapshot_ErrorRate_EmptyWindow(t *testing.T) {
	stats := &fakeEventStats{}
	collector := NewCollector(stats, 15*time.Minute, discardLogger())

	snap, err := collector.Snapshot(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, snap.ErrorRate())
}
