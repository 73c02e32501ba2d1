package db

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"membersync/internal/types"
)

// PaymentFailureRepo is an append-only audit log of failed payment attempts.
// Rows are never updated or deleted.
type PaymentFailureRepo struct {
	db     DBTX
	logger *slog.Logger
}

func NewPaymentFailureRepo(db DBTX, logger *slog.Logger) *PaymentFailureRepo {
	return &PaymentFailureRepo{db: db, logger: logger}
}

// Append records a payment failure. Assigns the record ID when unset.
func (r *PaymentFailureRepo) Append(ctx context.Context, failure *types.PaymentFailure) error {
	if failure.ID == "" {
		failure.ID = uuid.New().String()
	}

	query := `
		INSERT INTO payment_failures (id, subscription_id, customer_id, invoice_id, amount_cents, currency, attempt_count, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		failure.ID,
		failure.SubscriptionID,
		failure.CustomerID,
		failure.InvoiceID,
		failure.AmountCents,
		failure.Currency,
		failure.AttemptCount,
		failure.FailedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append payment failure", err)
	}

	r.logger.Info("payment failure recorded",
		slog.String("subscription_id", failure.SubscriptionID),
		slog.String("invoice_id", failure.InvoiceID),
		slog.Int("attempt_count", failure.AttemptCount),
	)

	return nil
}

// ListBySubscription returns the failure history for a subscription, newest
// first, capped at limit.
func (r *PaymentFailureRepo) ListBySubscription(ctx context.Context, subscriptionID string, limit int) ([]types.PaymentFailure, error) {
	query := `
		SELECT id, subscription_id, customer_id, invoice_id, amount_cents, currency, attempt_count, failed_at
		FROM payment_failures
		WHERE subscription_id = $1
		ORDER BY failed_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, subscriptionID, limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list payment failures", err)
	}
	defer rows.Close()

	var failures []types.PaymentFailure
	for rows.Next() {
		var f types.PaymentFailure
		err := rows.Scan(
			&f.ID, &f.SubscriptionID, &f.CustomerID, &f.InvoiceID,
			&f.AmountCents, &f.Currency, &f.AttemptCount, &f.FailedAt,
		)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan payment failure row", err)
		}
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read payment failure rows", err)
	}

	return failures, nil
}
