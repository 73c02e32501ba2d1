package db

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"membersync/internal/types"
)

// ProcessedEventRepo is the idempotency ledger for webhook deliveries. A row
// holding an event_id is the claim on that delivery; releasing a failed claim
// detaches the event_id (rather than deleting the row) so the failure stays
// visible to the metrics scans while a redelivery can claim fresh.
type ProcessedEventRepo struct {
	db     DBTX
	logger *slog.Logger
}

func NewProcessedEventRepo(db DBTX, logger *slog.Logger) *ProcessedEventRepo {
	return &ProcessedEventRepo{db: db, logger: logger}
}

// Claim atomically claims a delivery for processing. It returns true when
// this caller won the claim and false when the event_id is already held,
// which covers both a completed earlier delivery and a concurrent in-flight
// one. Exactly one of N concurrent claimants for the same event_id sees true.
func (r *ProcessedEventRepo) Claim(ctx context.Context, eventID, eventType string, live bool) (bool, error) {
	query := `
		INSERT INTO processed_events (id, event_id, event_type, live, status, received_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (event_id) WHERE event_id IS NOT NULL DO NOTHING`

	tag, err := r.db.Exec(ctx, query,
		uuid.New().String(), eventID, eventType, live, types.EventStatusProcessing)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to claim event", err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkSucceeded completes a held claim. The row keeps its event_id forever,
// which is what makes redeliveries of a processed event no-ops.
func (r *ProcessedEventRepo) MarkSucceeded(ctx context.Context, eventID string, duration time.Duration, duplicateAttempt bool) error {
	query := `
		UPDATE processed_events
		SET status = $2, completed_at = now(), duration_ms = $3, duplicate_attempt = $4
		WHERE event_id = $1 AND status = $5`

	tag, err := r.db.Exec(ctx, query,
		eventID, types.EventStatusSucceeded, duration.Milliseconds(), duplicateAttempt, types.EventStatusProcessing)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark event succeeded", err)
	}
	if tag.RowsAffected() == 0 {
		// The claim vanished between claim and completion. State may have
		// been applied without a matching ledger entry; surface it loudly.
		return types.NewAppError(types.ErrCodeInternalUnexpected, "claim missing at completion", nil)
	}

	return nil
}

// ReleaseFailed compensates a failed claim: the event_id is detached so the
// provider's redelivery can claim it as new, while the row itself survives
// as failure history. Releasing an already-released claim is a no-op.
func (r *ProcessedEventRepo) ReleaseFailed(ctx context.Context, eventID, errorType string, duration time.Duration) error {
	query := `
		UPDATE processed_events
		SET event_id = NULL, status = $2, error_type = $3, completed_at = now(), duration_ms = $4
		WHERE event_id = $1 AND status = $5`

	tag, err := r.db.Exec(ctx, query,
		eventID, types.EventStatusFailed, errorType, duration.Milliseconds(), types.EventStatusProcessing)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release claim", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("release found no held claim", slog.String("event_id", eventID))
	}

	return nil
}

// RecordRejected writes a ledger row for a delivery refused before its
// payload was trusted enough to parse. There is no event_id to record; the
// row exists purely for the security scans.
func (r *ProcessedEventRepo) RecordRejected(ctx context.Context, reason, sourceIP string) error {
	query := `
		INSERT INTO processed_events (id, event_id, event_type, live, status, error_type, source_ip, received_at, completed_at)
		VALUES ($1, NULL, 'unknown', false, $2, $3, $4, now(), now())`

	_, err := r.db.Exec(ctx, query,
		uuid.New().String(), types.EventStatusRejected, reason, sourceIP)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record rejection", err)
	}

	return nil
}

// WindowStats aggregates delivery outcomes since the given time. Totals
// count completed deliveries only; in-flight claims and pre-parse rejections
// are tracked separately.
func (r *ProcessedEventRepo) WindowStats(ctx context.Context, since time.Time) (total, succeeded, failed int, avgMs float64, slowestMs int64, err error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status IN ($2, $3)),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3),
			COALESCE(AVG(duration_ms) FILTER (WHERE status IN ($2, $3)), 0),
			COALESCE(MAX(duration_ms) FILTER (WHERE status IN ($2, $3)), 0)
		FROM processed_events
		WHERE received_at >= $1`

	row := r.db.QueryRow(ctx, query, since, types.EventStatusSucceeded, types.EventStatusFailed)
	if scanErr := row.Scan(&total, &succeeded, &failed, &avgMs, &slowestMs); scanErr != nil {
		err = types.NewAppError(types.ErrCodeInternalDB, "failed to aggregate window stats", scanErr)
		return
	}

	return
}

// ErrorsByType breaks down completed failures in the window by error_type.
// Pre-parse rejections are included; their error_type names the refusal.
func (r *ProcessedEventRepo) ErrorsByType(ctx context.Context, since time.Time) (map[string]int, error) {
	query := `
		SELECT error_type, COUNT(*)
		FROM processed_events
		WHERE received_at >= $1 AND status IN ($2, $3) AND error_type IS NOT NULL
		GROUP BY error_type`

	rows, err := r.db.Query(ctx, query, since, types.EventStatusFailed, types.EventStatusRejected)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to aggregate error types", err)
	}
	defer rows.Close()

	byType := make(map[string]int)
	for rows.Next() {
		var errorType string
		var count int
		if err := rows.Scan(&errorType, &count); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan error type row", err)
		}
		byType[errorType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read error type rows", err)
	}

	return byType, nil
}

// CountDuplicateAttempts counts successfully processed deliveries in the
// window that tripped the duplicate-subscription guard.
func (r *ProcessedEventRepo) CountDuplicateAttempts(ctx context.Context, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM processed_events
		WHERE received_at >= $1 AND duplicate_attempt = true`

	var count int
	if err := r.db.QueryRow(ctx, query, since).Scan(&count); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count duplicate attempts", err)
	}

	return count, nil
}

// CountStuckClaims counts claims still in processing older than the cutoff.
// A stuck claim means a crash landed between the claim commit and the state
// mutation; the delivery will never retry on its own and needs an operator.
func (r *ProcessedEventRepo) CountStuckClaims(ctx context.Context, olderThan time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM processed_events
		WHERE status = $1 AND received_at < $2`

	var count int
	if err := r.db.QueryRow(ctx, query, types.EventStatusProcessing, olderThan).Scan(&count); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count stuck claims", err)
	}

	return count, nil
}
