package webhook

import (
	"fmt"
	"time"

	"membersync/internal/types"
)

// Outcome is the effect set a single event produces. Next is the membership
// record to persist, nil when the event leaves state untouched. Failure is
// an audit row to append, with NotifyFailure requesting the fire-and-forget
// email. Ignored names the reason when the event is a deliberate no-op.
type Outcome struct {
	Next             *types.MembershipRecord
	Failure          *types.PaymentFailure
	NotifyFailure    bool
	DuplicateAttempt bool
	Ignored          string
}

// Reduce computes the effects of an event against the current membership
// record. It is pure: same event and record always yield the same outcome,
// with now injected for timestamps. All persistence is the caller's job.
//
// The type switch is exhaustive over the Event union; adding an event type
// without a case here falls through to the unreachable default, which the
// union tests pin down.
func Reduce(evt Event, current types.MembershipRecord, now time.Time) Outcome {
	switch e := evt.(type) {
	case CheckoutCompleted:
		return reduceCheckout(e, current)

	case SubscriptionUpdated:
		return reduceSubscriptionUpdate(e, current)

	case SubscriptionDeleted:
		next := current
		next.Membership = types.MembershipFree
		next.PaymentStatus = types.PaymentStatusCanceled
		next.StripeSubscriptionID = ""
		return Outcome{Next: &next}

	case InvoicePaymentFailed:
		return Outcome{
			Failure: &types.PaymentFailure{
				SubscriptionID: e.SubscriptionID,
				CustomerID:     e.CustomerID,
				InvoiceID:      e.InvoiceID,
				AmountCents:    e.AmountCents,
				Currency:       e.Currency,
				AttemptCount:   e.AttemptCount,
				FailedAt:       now,
			},
			NotifyFailure: true,
		}

	case UnhandledEvent:
		return Outcome{Ignored: fmt.Sprintf("unhandled event type %s", e.Type)}

	default:
		return Outcome{Ignored: fmt.Sprintf("unknown event %T", evt)}
	}
}

func reduceCheckout(e CheckoutCompleted, current types.MembershipRecord) Outcome {
	// Only subscription checkouts grant membership; one-time payments and
	// sessions with no declared mode leave state untouched.
	if e.Mode != "subscription" {
		return Outcome{Ignored: fmt.Sprintf("checkout mode %q does not affect membership", e.Mode)}
	}

	// Duplicate-subscription guard: a paid user completing a second checkout
	// would end up billed twice. Keep the existing subscription authoritative
	// and surface the attempt instead of overwriting.
	if current.Membership == types.MembershipPaid &&
		current.StripeSubscriptionID != "" &&
		current.StripeSubscriptionID != e.SubscriptionID {
		return Outcome{
			DuplicateAttempt: true,
			Ignored:          "user already holds an active subscription",
		}
	}

	next := current
	next.Membership = types.MembershipPaid
	next.PaymentStatus = types.PaymentStatusActive
	next.StripeCustomerID = e.CustomerID
	next.StripeSubscriptionID = e.SubscriptionID
	return Outcome{Next: &next}
}

func reduceSubscriptionUpdate(e SubscriptionUpdated, current types.MembershipRecord) Outcome {
	if current.StripeSubscriptionID != "" && current.StripeSubscriptionID != e.SubscriptionID {
		return Outcome{Ignored: "update is for a subscription the user no longer holds"}
	}

	next := current
	next.StripeSubscriptionID = e.SubscriptionID

	switch e.Status {
	case types.PaymentStatusActive:
		next.Membership = types.MembershipPaid
		next.PaymentStatus = types.PaymentStatusActive

	case types.PaymentStatusPastDue:
		// Grace period: the provider retries the payment for days before
		// giving up. Access is kept until the subscription actually dies.
		next.Membership = types.MembershipPaid
		next.PaymentStatus = types.PaymentStatusPastDue

	case types.PaymentStatusCanceled:
		next.Membership = types.MembershipFree
		next.PaymentStatus = types.PaymentStatusCanceled

	case types.PaymentStatusUnpaid:
		next.Membership = types.MembershipFree
		next.PaymentStatus = types.PaymentStatusUnpaid

	default:
		return Outcome{Ignored: fmt.Sprintf("subscription status %s does not affect membership", e.Status)}
	}

	return Outcome{Next: &next}
}
