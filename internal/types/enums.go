package types

// Membership is the paywall tier gating content access. It is derived from
// the billing provider's subscription status, never set directly by users.
type Membership string

const (
	MembershipFree Membership = "free"
	MembershipPaid Membership = "paid"
)

// PaymentStatus mirrors the provider's subscription status for a paid
// membership. Empty means the user has never had a subscription.
type PaymentStatus string

const (
	PaymentStatusActive   PaymentStatus = "active"
	PaymentStatusPastDue  PaymentStatus = "past_due"
	PaymentStatusCanceled PaymentStatus = "canceled"
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
)

// EventStatus is the lifecycle state of a processed-event row.
//
//   - processing: claim committed, downstream mutation in flight
//   - succeeded:  mutation applied (or no-op completed)
//   - failed:     mutation failed; the claim was released for redelivery
//   - rejected:   synthetic security row (untrusted origin), no event id
type EventStatus string

const (
	EventStatusProcessing EventStatus = "processing"
	EventStatusSucceeded  EventStatus = "succeeded"
	EventStatusFailed     EventStatus = "failed"
	EventStatusRejected   EventStatus = "rejected"
)

// AlertSeverity classifies monitoring alerts.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)
