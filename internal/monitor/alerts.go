package monitor

import (
	"context"
	"log/slog"
	"time"

	"membersync/internal/types"
)

// AlertWriter is the subset of the alert repository the sink needs.
type AlertWriter interface {
	Insert(ctx context.Context, alert *types.Alert) error
}

// DBAlertSink persists alerts to the alerts log. It satisfies the
// processing pipeline's alert interface and is shared with the monitor
// loop. Write failures are logged and swallowed: alerting is advisory and
// must never propagate an error into whatever raised the alert.
type DBAlertSink struct {
	alerts AlertWriter
	logger *slog.Logger
	now    func() time.Time
}

func NewDBAlertSink(alerts AlertWriter, logger *slog.Logger) *DBAlertSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBAlertSink{alerts: alerts, logger: logger, now: time.Now}
}

// Raise records an alert. Never returns an error.
func (s *DBAlertSink) Raise(ctx context.Context, message string, severity types.AlertSeverity) {
	alert := &types.Alert{
		Message:   message,
		Severity:  severity,
		CreatedAt: s.now(),
	}

	if err := s.alerts.Insert(ctx, alert); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist alert",
			slog.String("message", message),
			slog.String("severity", string(severity)),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.WarnContext(ctx, "alert raised",
		slog.String("alert_id", alert.ID),
		slog.String("severity", string(severity)),
		slog.String("message", message),
	)
}
