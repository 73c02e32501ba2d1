package external

import (
	"context"
)

// WebhookVerifier authenticates an inbound webhook payload against its
// signature header and the endpoint's signing secret.
type WebhookVerifier interface {
	Verify(payload []byte, sigHeader string, secret string) error
}

// BillingService is the outbound surface of the billing provider, consumed
// by the account-deletion service when it tears down a user's subscription.
// Webhook processing itself never calls out.
type BillingService interface {
	// CancelSubscription terminates a subscription immediately. Also used to
	// clean up the losing subscription after a duplicate checkout.
	CancelSubscription(ctx context.Context, subscriptionID string) error
}
