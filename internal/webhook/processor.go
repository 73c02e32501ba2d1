package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"membersync/internal/types"
)

// EventLedger is the idempotency log the processor claims deliveries
// against. Implemented by db.ProcessedEventRepo.
type EventLedger interface {
	Claim(ctx context.Context, eventID, eventType string, live bool) (bool, error)
	MarkSucceeded(ctx context.Context, eventID string, duration time.Duration, duplicateAttempt bool) error
	ReleaseFailed(ctx context.Context, eventID, errorType string, duration time.Duration) error
}

// MembershipStore applies reducer outcomes to membership state. Mutate must
// run the callback with the user's row locked so the read-decide-write
// sequence is atomic. Implemented by db.MembershipRepo.
type MembershipStore interface {
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*types.MembershipRecord, error)
	Mutate(ctx context.Context, userID string, fn func(current types.MembershipRecord) (*types.MembershipRecord, error)) error
}

// FailureLog is the append-only payment failure audit trail.
type FailureLog interface {
	Append(ctx context.Context, failure *types.PaymentFailure) error
}

// FailureNotifier sends the payment-failed email request. Implementations
// must be fire-and-forget: a notification problem never fails the event.
type FailureNotifier interface {
	NotifyPaymentFailure(ctx context.Context, notice types.PaymentFailureNotice)
}

// AlertSink raises operational alerts. Implementations swallow their own
// errors; alerting must never break processing.
type AlertSink interface {
	Raise(ctx context.Context, message string, severity types.AlertSeverity)
}

// Result describes how a delivery was handled. The handler turns it into
// the provider-facing response; every path that returns a Result (rather
// than an error) is acknowledged with 200.
type Result struct {
	EventID          string
	EventType        string
	Applied          bool
	AlreadyProcessed bool
	DuplicateAttempt bool
	Ignored          string
	Duration         time.Duration
}

// Processor runs the claim-apply-complete protocol for verified deliveries.
type Processor struct {
	ledger      EventLedger
	memberships MembershipStore
	failures    FailureLog
	notifier    FailureNotifier
	alerts      AlertSink
	logger      *slog.Logger
	now         func() time.Time
}

func NewProcessor(ledger EventLedger, memberships MembershipStore, failures FailureLog, notifier FailureNotifier, alerts AlertSink, logger *slog.Logger) *Processor {
	return &Processor{
		ledger:      ledger,
		memberships: memberships,
		failures:    failures,
		notifier:    notifier,
		alerts:      alerts,
		logger:      logger,
		now:         time.Now,
	}
}

// Process handles one parsed delivery. The claim happens before any state is
// touched; on a processing failure the claim is released so the provider's
// redelivery can retry, and the error is returned so the handler answers 500.
func (p *Processor) Process(ctx context.Context, d *Delivery) (Result, error) {
	start := p.now()
	result := Result{EventID: d.EventID, EventType: d.Type}

	isNew, err := p.ledger.Claim(ctx, d.EventID, d.Type, d.Live)
	if err != nil {
		return result, err
	}
	if !isNew {
		p.logger.Info("event already processed, skipping",
			slog.String("event_id", d.EventID),
			slog.String("event_type", d.Type),
		)
		result.AlreadyProcessed = true
		return result, nil
	}

	outcome, err := p.apply(ctx, d)
	if err != nil {
		p.release(ctx, d, err, p.now().Sub(start))
		return result, err
	}

	result.Applied = outcome.Next != nil || outcome.Failure != nil
	result.DuplicateAttempt = outcome.DuplicateAttempt
	result.Ignored = outcome.Ignored
	result.Duration = p.now().Sub(start)

	if outcome.DuplicateAttempt {
		p.logger.Warn("duplicate subscription attempt blocked",
			slog.String("event_id", d.EventID),
		)
		p.alerts.Raise(ctx,
			fmt.Sprintf("duplicate subscription attempt blocked (event %s)", d.EventID),
			types.SeverityWarning,
		)
	}

	if err := p.ledger.MarkSucceeded(ctx, d.EventID, result.Duration, outcome.DuplicateAttempt); err != nil {
		// State is applied but the ledger row still says processing. Do not
		// release: a redelivery now would double-apply. The monitor's stuck
		// claim scan surfaces the row.
		return result, err
	}

	p.logger.Info("event processed",
		slog.String("event_id", d.EventID),
		slog.String("event_type", d.Type),
		slog.Bool("applied", result.Applied),
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}

// apply dispatches on the event union and executes the reducer's outcome.
func (p *Processor) apply(ctx context.Context, d *Delivery) (Outcome, error) {
	switch evt := d.Event.(type) {
	case UnhandledEvent:
		return Reduce(evt, types.MembershipRecord{}, p.now()), nil

	case InvoicePaymentFailed:
		outcome := Reduce(evt, types.MembershipRecord{}, p.now())
		if outcome.Failure == nil {
			return outcome, nil
		}
		if err := p.failures.Append(ctx, outcome.Failure); err != nil {
			return Outcome{}, err
		}
		if outcome.NotifyFailure {
			p.notifier.NotifyPaymentFailure(ctx, p.buildNotice(ctx, evt))
		}
		return outcome, nil

	case CheckoutCompleted, SubscriptionUpdated, SubscriptionDeleted:
		if co, ok := d.Event.(CheckoutCompleted); ok && co.UserID == "" {
			// The metadata was never stamped at checkout creation, so a
			// redelivery carries the same gap. Acknowledge and keep the claim
			// so the provider stops resending it.
			p.logger.Warn("checkout session missing userId metadata, skipping",
				slog.String("event_id", d.EventID),
			)
			return Outcome{Ignored: "checkout session missing userId metadata"}, nil
		}

		userID, err := p.resolveUser(ctx, d.Event)
		if err != nil {
			return Outcome{}, err
		}

		var outcome Outcome
		err = p.memberships.Mutate(ctx, userID, func(current types.MembershipRecord) (*types.MembershipRecord, error) {
			outcome = Reduce(d.Event, current, p.now())
			return outcome.Next, nil
		})
		if err != nil {
			return Outcome{}, err
		}
		return outcome, nil

	default:
		return Outcome{}, types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("no dispatch for event %T", d.Event), nil)
	}
}

// resolveUser determines which user's record an event targets. Checkout
// events carry the user id in metadata (the caller has already screened out
// empty ones); subscription events fall back to a lookup by subscription id.
func (p *Processor) resolveUser(ctx context.Context, evt Event) (string, error) {
	var userID, subscriptionID string

	switch e := evt.(type) {
	case CheckoutCompleted:
		return e.UserID, nil
	case SubscriptionUpdated:
		userID, subscriptionID = e.UserID, e.SubscriptionID
	case SubscriptionDeleted:
		userID, subscriptionID = e.UserID, e.SubscriptionID
	}

	if userID != "" {
		return userID, nil
	}

	rec, err := p.memberships.FindBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return "", err
	}
	return rec.UserID, nil
}

// buildNotice enriches the email request with the owning user when the
// subscription resolves. Resolution failure is tolerated: the worker can
// fall back to the customer id.
func (p *Processor) buildNotice(ctx context.Context, evt InvoicePaymentFailed) types.PaymentFailureNotice {
	notice := types.PaymentFailureNotice{
		CustomerID:     evt.CustomerID,
		SubscriptionID: evt.SubscriptionID,
		InvoiceID:      evt.InvoiceID,
		AmountCents:    evt.AmountCents,
		Currency:       evt.Currency,
		FailedAt:       p.now(),
	}

	if evt.SubscriptionID != "" {
		if rec, err := p.memberships.FindBySubscriptionID(ctx, evt.SubscriptionID); err == nil {
			notice.UserID = rec.UserID
		}
	}

	return notice
}

// release frees the claim after a processing failure, tagging the ledger row
// with the error category. Release failures are logged, not returned: the
// original error is what the caller needs to see.
func (p *Processor) release(ctx context.Context, d *Delivery, cause error, duration time.Duration) {
	errorType := "processing_error"
	var appErr *types.AppError
	if errors.As(cause, &appErr) {
		errorType = string(appErr.Code)
	}

	if err := p.ledger.ReleaseFailed(ctx, d.EventID, errorType, duration); err != nil {
		p.logger.Error("failed to release claim after processing failure",
			slog.String("event_id", d.EventID),
			slog.String("error", err.Error()),
		)
	}

	p.logger.Error("event processing failed",
		slog.String("event_id", d.EventID),
		slog.String("event_type", d.Type),
		slog.String("error_type", errorType),
		slog.String("error", cause.Error()),
	)
}
