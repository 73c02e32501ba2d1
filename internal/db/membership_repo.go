package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"membersync/internal/types"
)

// MembershipRepo manages membership state rows. All writes go through
// Mutate, which holds a row lock across the read-decide-write sequence so
// concurrent deliveries for the same user serialize instead of clobbering
// each other.
type MembershipRepo struct {
	db     TxDB
	logger *slog.Logger
}

func NewMembershipRepo(db TxDB, logger *slog.Logger) *MembershipRepo {
	return &MembershipRepo{db: db, logger: logger}
}

const membershipColumns = `
	user_id,
	membership,
	COALESCE(stripe_customer_id, ''),
	COALESCE(stripe_subscription_id, ''),
	COALESCE(payment_status, ''),
	membership_updated_at`

func scanMembership(row pgx.Row) (*types.MembershipRecord, error) {
	var rec types.MembershipRecord
	err := row.Scan(
		&rec.UserID,
		&rec.Membership,
		&rec.StripeCustomerID,
		&rec.StripeSubscriptionID,
		&rec.PaymentStatus,
		&rec.MembershipUpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Get fetches the membership record for a user.
func (r *MembershipRepo) Get(ctx context.Context, userID string) (*types.MembershipRecord, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE user_id = $1`

	rec, err := scanMembership(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch membership", err)
	}

	return rec, nil
}

// FindBySubscriptionID resolves the user owning a subscription. Used by
// deliveries whose payload carries only the subscription id.
func (r *MembershipRepo) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*types.MembershipRecord, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE stripe_subscription_id = $1`

	rec, err := scanMembership(r.db.QueryRow(ctx, query, subscriptionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "no user holds this subscription", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up subscription", err)
	}

	return rec, nil
}

// Mutate reads the user's record under a row lock, hands it to fn, and
// persists the record fn returns, all in one transaction. A nil return from
// fn means no write is needed. A missing user fails loudly: webhook state
// must never be silently dropped.
func (r *MembershipRepo) Mutate(ctx context.Context, userID string, fn func(current types.MembershipRecord) (*types.MembershipRecord, error)) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE user_id = $1 FOR UPDATE`

	current, err := scanMembership(tx.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewAppError(types.ErrCodeNotFoundUser, "user not found for membership update", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to lock membership row", err)
	}

	next, err := fn(*current)
	if err != nil {
		return err
	}
	if next == nil {
		return tx.Commit(ctx)
	}

	update := `
		UPDATE memberships
		SET membership = $2,
		    stripe_customer_id = NULLIF($3, ''),
		    stripe_subscription_id = NULLIF($4, ''),
		    payment_status = NULLIF($5, ''),
		    membership_updated_at = now()
		WHERE user_id = $1`

	tag, err := tx.Exec(ctx, update,
		userID, next.Membership, next.StripeCustomerID, next.StripeSubscriptionID, next.PaymentStatus)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update membership", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "membership row disappeared during update", nil)
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit membership update", err)
	}

	r.logger.Info("membership updated",
		slog.String("user_id", userID),
		slog.String("membership", string(next.Membership)),
		slog.String("payment_status", string(next.PaymentStatus)),
	)

	return nil
}
