// Package webhook implements the billing-provider webhook pipeline: payload
// parsing into a closed event union, origin and rate-limit gates, the pure
// membership reducer, and the processor that ties them to the stores.
package webhook

import (
	"encoding/json"

	"membersync/internal/types"
)

// Event is the closed union of webhook event payloads the pipeline
// understands. The unexported marker keeps the set closed so the reducer's
// type switch stays exhaustive.
type Event interface {
	isEvent()
}

// CheckoutCompleted signals a finished checkout session. UserID comes from
// the session metadata stamped at checkout creation time; when it is empty
// the processor acknowledges the event as a logged no-op, since a redelivery
// would carry the same gap.
type CheckoutCompleted struct {
	UserID         string
	CustomerID     string
	SubscriptionID string
	Mode           string
}

// SubscriptionUpdated carries a subscription lifecycle change. UserID is
// optional; when empty the processor resolves the user by subscription id.
type SubscriptionUpdated struct {
	UserID         string
	SubscriptionID string
	Status         types.PaymentStatus
}

// SubscriptionDeleted signals a fully terminated subscription.
type SubscriptionDeleted struct {
	UserID         string
	SubscriptionID string
	CustomerID     string
}

// InvoicePaymentFailed reports a failed payment attempt on an invoice.
type InvoicePaymentFailed struct {
	SubscriptionID string
	CustomerID     string
	InvoiceID      string
	AmountCents    int64
	Currency       string
	AttemptCount   int
}

// UnhandledEvent is any event type the pipeline does not act on. It is
// acknowledged (200) without touching state so the provider stops
// redelivering it.
type UnhandledEvent struct {
	Type string
}

func (CheckoutCompleted) isEvent()    {}
func (SubscriptionUpdated) isEvent()  {}
func (SubscriptionDeleted) isEvent()  {}
func (InvoicePaymentFailed) isEvent() {}
func (UnhandledEvent) isEvent()       {}

// Delivery is one parsed webhook delivery: the envelope identity plus the
// typed event payload.
type Delivery struct {
	EventID string
	Type    string
	Live    bool
	Event   Event
}

// envelope mirrors the provider's outer event structure. Only the fields the
// pipeline consumes are declared.
type envelope struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Livemode bool   `json:"livemode"`
	Data     struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSessionObject struct {
	ID           string `json:"id"`
	Mode         string `json:"mode"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Metadata     struct {
		UserID string `json:"userId"`
	} `json:"metadata"`
}

type subscriptionObject struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Customer string `json:"customer"`
	Metadata struct {
		UserID string `json:"userId"`
	} `json:"metadata"`
}

type invoiceObject struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	AmountDue    int64  `json:"amount_due"`
	Currency     string `json:"currency"`
	AttemptCount int    `json:"attempt_count"`
}

// ParseEvent decodes a verified webhook body into a Delivery. Structural
// problems (unparseable JSON, missing event id or type) are payload errors;
// semantic gaps like a missing metadata userId are left for the processor,
// which acknowledges them as logged no-ops rather than rejecting the request.
func ParseEvent(raw []byte) (*Delivery, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, types.NewAppError(types.ErrCodePayloadInvalid, "failed to parse event payload", err)
	}
	if env.ID == "" || env.Type == "" {
		return nil, types.NewAppError(types.ErrCodePayloadInvalid, "event missing id or type", nil)
	}

	delivery := &Delivery{
		EventID: env.ID,
		Type:    env.Type,
		Live:    env.Livemode,
	}

	switch env.Type {
	case "checkout.session.completed":
		var obj checkoutSessionObject
		if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
			return nil, types.NewAppError(types.ErrCodePayloadInvalid, "failed to parse checkout session", err)
		}
		delivery.Event = CheckoutCompleted{
			UserID:         obj.Metadata.UserID,
			CustomerID:     obj.Customer,
			SubscriptionID: obj.Subscription,
			Mode:           obj.Mode,
		}

	case "customer.subscription.updated":
		var obj subscriptionObject
		if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
			return nil, types.NewAppError(types.ErrCodePayloadInvalid, "failed to parse subscription", err)
		}
		delivery.Event = SubscriptionUpdated{
			UserID:         obj.Metadata.UserID,
			SubscriptionID: obj.ID,
			Status:         types.PaymentStatus(obj.Status),
		}

	case "customer.subscription.deleted":
		var obj subscriptionObject
		if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
			return nil, types.NewAppError(types.ErrCodePayloadInvalid, "failed to parse subscription", err)
		}
		delivery.Event = SubscriptionDeleted{
			UserID:         obj.Metadata.UserID,
			SubscriptionID: obj.ID,
			CustomerID:     obj.Customer,
		}

	case "invoice.payment_failed":
		var obj invoiceObject
		if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
			return nil, types.NewAppError(types.ErrCodePayloadInvalid, "failed to parse invoice", err)
		}
		delivery.Event = InvoicePaymentFailed{
			SubscriptionID: obj.Subscription,
			CustomerID:     obj.Customer,
			InvoiceID:      obj.ID,
			AmountCents:    obj.AmountDue,
			Currency:       obj.Currency,
			AttemptCount:   obj.AttemptCount,
		}

	default:
		delivery.Event = UnhandledEvent{Type: env.Type}
	}

	return delivery, nil
}
