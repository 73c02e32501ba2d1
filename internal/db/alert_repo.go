package db

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"membersync/internal/types"
)

// AlertRepo stores operational alerts raised by the processing pipeline and
// the monitor's anomaly scans.
type AlertRepo struct {
	db     DBTX
	logger *slog.Logger
}

func NewAlertRepo(db DBTX, logger *slog.Logger) *AlertRepo {
	return &AlertRepo{db: db, logger: logger}
}

// Insert persists a new alert. Assigns the alert ID when unset.
func (r *AlertRepo) Insert(ctx context.Context, alert *types.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}

	query := `
		INSERT INTO alerts (id, message, severity, created_at, resolved)
		VALUES ($1, $2, $3, $4, false)`

	_, err := r.db.Exec(ctx, query, alert.ID, alert.Message, alert.Severity, alert.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert alert", err)
	}

	return nil
}

// ListUnresolved returns open alerts, newest first.
func (r *AlertRepo) ListUnresolved(ctx context.Context) ([]types.Alert, error) {
	query := `
		SELECT id, message, severity, created_at, resolved
		FROM alerts
		WHERE resolved = false
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list alerts", err)
	}
	defer rows.Close()

	var alerts []types.Alert
	for rows.Next() {
		var a types.Alert
		if err := rows.Scan(&a.ID, &a.Message, &a.Severity, &a.CreatedAt, &a.Resolved); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert row", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read alert rows", err)
	}

	return alerts, nil
}

// Resolve marks an alert as handled.
func (r *AlertRepo) Resolve(ctx context.Context, alertID string) error {
	query := `UPDATE alerts SET resolved = true WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, alertID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to resolve alert", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAlert, "alert not found", nil)
	}

	r.logger.Info("alert resolved", slog.String("alert_id", alertID))

	return nil
}
