package monitor

import (
	"fmt"
	"time"

	"membersync/internal/types"
)

// Thresholds configures the anomaly rules.
type Thresholds struct {
	// ErrorRateFloor is the minimum event count before the error-rate rule
	// applies. Small windows produce meaningless ratios; with 10 or fewer
	// events even a 50% rate stays silent.
	ErrorRateFloor int
	// ErrorRate is the failed/total ratio above which an alert fires.
	ErrorRate float64
	// SlowAvg is the average processing duration above which an alert fires.
	SlowAvg time.Duration
}

// Anomaly is one detected problem, ready to be raised as an alert.
type Anomaly struct {
	Message  string
	Severity types.AlertSeverity
}

// Detector evaluates metrics snapshots against fixed thresholds. It is
// stateless: the same snapshot always yields the same anomalies.
type Detector struct {
	thresholds Thresholds
}

func NewDetector(thresholds Thresholds) *Detector {
	return &Detector{thresholds: thresholds}
}

// Evaluate returns the anomalies present in the snapshot.
//
// The error-rate rule requires strictly more than ErrorRateFloor events:
// at exactly the floor no alert fires regardless of the ratio.
func (d *Detector) Evaluate(snap types.MetricsSnapshot) []Anomaly {
	var anomalies []Anomaly

	if snap.TotalEvents > d.thresholds.ErrorRateFloor && snap.ErrorRate() > d.thresholds.ErrorRate {
		anomalies = append(anomalies, Anomaly{
			Message: fmt.Sprintf("webhook error rate %.1f%% over %d events exceeds %.1f%%",
				snap.ErrorRate()*100, snap.TotalEvents, d.thresholds.ErrorRate*100),
			Severity: types.SeverityCritical,
		})
	}

	if snap.TotalEvents > 0 && snap.AvgProcessingMs > float64(d.thresholds.SlowAvg.Milliseconds()) {
		anomalies = append(anomalies, Anomaly{
			Message: fmt.Sprintf("average webhook processing time %.0fms exceeds %dms",
				snap.AvgProcessingMs, d.thresholds.SlowAvg.Milliseconds()),
			Severity: types.SeverityWarning,
		})
	}

	if snap.DuplicateAttempts > 0 {
		anomalies = append(anomalies, Anomaly{
			Message: fmt.Sprintf("%d duplicate subscription attempts blocked in window",
				snap.DuplicateAttempts),
			Severity: types.SeverityWarning,
		})
	}

	if snap.StuckClaims > 0 {
		anomalies = append(anomalies, Anomaly{
			Message: fmt.Sprintf("%d webhook claims stuck in processing; deliveries will not retry without intervention",
				snap.StuckClaims),
			Severity: types.SeverityCritical,
		})
	}

	return anomalies
}
