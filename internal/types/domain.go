package types

import "time"

// MembershipRecord is the persisted read model of a user's paywall state.
// It is mutated exclusively by the webhook reducer output applied through
// the membership store; account flows only ever read it.
//
// StripeSubscriptionID is empty when the user has no live subscription
// (stored as NULL). Records persist indefinitely and are never deleted by
// this subsystem.
type MembershipRecord struct {
	UserID               string
	Membership           Membership
	StripeCustomerID     string
	StripeSubscriptionID string
	PaymentStatus        PaymentStatus
	MembershipUpdatedAt  time.Time
}

// ProcessedEvent is one row of the processed-event log. The log serves two
// masters: the unique EventID column is the idempotency authority, and the
// status/duration columns are the metrics source.
//
// EventID is empty for rows whose claim was released after a processing
// failure (the claim is detached so redelivery can retry, but the failure
// stays in history) and for synthetic security rows, which never had one.
type ProcessedEvent struct {
	ID               string
	EventID          string
	EventType        string
	Live             bool
	Status           EventStatus
	DuplicateAttempt bool
	ErrorType        string
	ReceivedAt       time.Time
	CompletedAt      *time.Time
	DurationMs       int64
}

// PaymentFailure is one entry of the append-only payment-failure audit
// trail. Rows are written on invoice.payment_failed and never mutated.
type PaymentFailure struct {
	ID             string
	SubscriptionID string
	CustomerID     string
	InvoiceID      string
	AmountCents    int64
	Currency       string
	AttemptCount   int
	FailedAt       time.Time
}

// Alert is a persisted monitoring alert. Resolved is flipped later by an
// operator tool, never by the detector that created the alert.
type Alert struct {
	ID        string
	Message   string
	Severity  AlertSeverity
	CreatedAt time.Time
	Resolved  bool
}

// MetricsSnapshot is the derived (never persisted) aggregate the metrics
// collector computes over a trailing window of the processed-event log.
type MetricsSnapshot struct {
	WindowStart       time.Time
	WindowEnd         time.Time
	TotalEvents       int
	SuccessfulEvents  int
	FailedEvents      int
	AvgProcessingMs   float64
	SlowestMs         int64
	ErrorsByType      map[string]int
	DuplicateAttempts int
	StuckClaims       int
}

// ErrorRate returns failed/total, or 0 for an empty window.
func (s MetricsSnapshot) ErrorRate() float64 {
	if s.TotalEvents == 0 {
		return 0
	}
	return float64(s.FailedEvents) / float64(s.TotalEvents)
}

// PaymentFailureNotice is the fire-and-forget message enqueued for the
// email worker when an invoice payment fails. UserID may be empty when the
// subscription could not be resolved to a user; the worker then falls back
// to a customer-id lookup on its side.
type PaymentFailureNotice struct {
	MessageID      string    `json:"message_id"`
	UserID         string    `json:"user_id,omitempty"`
	CustomerID     string    `json:"customer_id"`
	SubscriptionID string    `json:"subscription_id"`
	InvoiceID      string    `json:"invoice_id"`
	AmountCents    int64     `json:"amount_cents"`
	Currency       string    `json:"currency"`
	FailedAt       time.Time `json:"failed_at"`
}
