package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membersync/internal/types"
)

var reduceNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func freeUser() types.MembershipRecord {
	return types.MembershipRecord{UserID: "u1", Membership: types.MembershipFree}
}

func paidUser(subID string) types.MembershipRecord {
	return types.MembershipRecord{
		UserID:               "u1",
		Membership:           types.MembershipPaid,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: subID,
		PaymentStatus:        types.PaymentStatusActive,
	}
}

func TestReduce_CheckoutCompleted_Upgrades(t *testing.T) {
	out := Reduce(CheckoutCompleted{
		UserID:         "u1",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Mode:           "subscription",
	}, freeUser(), reduceNow)

	require.NotNil(t, out.Next)
	assert.Equal(t, types.MembershipPaid, out.Next.Membership)
	assert.Equal(t, "cus_1", out.Next.StripeCustomerID)
	assert.Equal(t, "sub_1", out.Next.StripeSubscriptionID)
	assert.Equal(t, types.PaymentStatusActive, out.Next.PaymentStatus)
	assert.False(t, out.DuplicateAttempt)
}

func TestReduce_CheckoutCompleted_DuplicateSubscriptionGuard(t *testing.T) {
	out := Reduce(CheckoutCompleted{
		UserID:         "u1",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_new",
		Mode:           "subscription",
	}, paidUser("sub_old"), reduceNow)

	assert.Nil(t, out.Next, "existing subscription must not be overwritten")
	assert.True(t, out.DuplicateAttempt)
	assert.NotEmpty(t, out.Ignored)
}

func TestReduce_CheckoutCompleted_SameSubscriptionRedelivery(t *testing.T) {
	// Re-applying the same subscription is not a duplicate attempt.
	out := Reduce(CheckoutCompleted{
		UserID:         "u1",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Mode:           "subscription",
	}, paidUser("sub_1"), reduceNow)

	require.NotNil(t, out.Next)
	assert.False(t, out.DuplicateAttempt)
	assert.Equal(t, "sub_1", out.Next.StripeSubscriptionID)
}

func TestReduce_CheckoutCompleted_PaymentModeIgnored(t *testing.T) {
	out := Reduce(CheckoutCompleted{
		UserID: "u1",
		Mode:   "payment",
	}, freeUser(), reduceNow)

	assert.Nil(t, out.Next)
	assert.NotEmpty(t, out.Ignored)
}

func TestReduce_CheckoutCompleted_MissingModeIgnored(t *testing.T) {
	// Membership is only granted when the session explicitly declares
	// subscription mode; an absent mode must not be read as one.
	out := Reduce(CheckoutCompleted{
		UserID:         "u1",
		SubscriptionID: "sub_1",
	}, freeUser(), reduceNow)

	assert.Nil(t, out.Next)
	assert.NotEmpty(t, out.Ignored)
}

func TestReduce_SubscriptionUpdated_Statuses(t *testing.T) {
	tests := []struct {
		status         types.PaymentStatus
		wantMembership types.Membership
	}{
		{types.PaymentStatusActive, types.MembershipPaid},
		{types.PaymentStatusPastDue, types.MembershipPaid}, // grace period
		{types.PaymentStatusCanceled, types.MembershipFree},
		{types.PaymentStatusUnpaid, types.MembershipFree},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			out := Reduce(SubscriptionUpdated{
				SubscriptionID: "sub_1",
				Status:         tt.status,
			}, paidUser("sub_1"), reduceNow)

			require.NotNil(t, out.Next)
			assert.Equal(t, tt.wantMembership, out.Next.Membership)
			assert.Equal(t, tt.status, out.Next.PaymentStatus)
		})
	}
}

func TestReduce_SubscriptionUpdated_StaleSubscriptionIgnored(t *testing.T) {
	out := Reduce(SubscriptionUpdated{
		SubscriptionID: "sub_old",
		Status:         types.PaymentStatusCanceled,
	}, paidUser("sub_current"), reduceNow)

	assert.Nil(t, out.Next)
	assert.NotEmpty(t, out.Ignored)
}

func TestReduce_SubscriptionUpdated_UnknownStatusIgnored(t *testing.T) {
	out := Reduce(SubscriptionUpdated{
		SubscriptionID: "sub_1",
		Status:         "trialing",
	}, paidUser("sub_1"), reduceNow)

	assert.Nil(t, out.Next)
}

func TestReduce_SubscriptionDeleted(t *testing.T) {
	out := Reduce(SubscriptionDeleted{
		UserID:         "u1",
		SubscriptionID: "sub_1",
	}, paidUser("sub_1"), reduceNow)

	require.NotNil(t, out.Next)
	assert.Equal(t, types.MembershipFree, out.Next.Membership)
	assert.Empty(t, out.Next.StripeSubscriptionID)
	assert.Equal(t, types.PaymentStatusCanceled, out.Next.PaymentStatus)
	// Customer id survives cancellation for future checkouts.
	assert.Equal(t, "cus_1", out.Next.StripeCustomerID)
}

func TestReduce_InvoicePaymentFailed(t *testing.T) {
	out := Reduce(InvoicePaymentFailed{
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		InvoiceID:      "in_1",
		AmountCents:    1999,
		Currency:       "usd",
		AttemptCount:   2,
	}, types.MembershipRecord{}, reduceNow)

	assert.Nil(t, out.Next, "payment failure must not change membership")
	require.NotNil(t, out.Failure)
	assert.Equal(t, "in_1", out.Failure.InvoiceID)
	assert.Equal(t, int64(1999), out.Failure.AmountCents)
	assert.Equal(t, 2, out.Failure.AttemptCount)
	assert.Equal(t, reduceNow, out.Failure.FailedAt)
	assert.True(t, out.NotifyFailure)
}

func TestReduce_UnhandledEvent(t *testing.T) {
	out := Reduce(UnhandledEvent{Type: "charge.refunded"}, freeUser(), reduceNow)

	assert.Nil(t, out.Next)
	assert.Nil(t, out.Failure)
	assert.Contains(t, out.Ignored, "charge.refunded")
}

func TestReduce_IsPure(t *testing.T) {
	evt := SubscriptionUpdated{SubscriptionID: "sub_1", Status: types.PaymentStatusPastDue}
	current := paidUser("sub_1")

	first := Reduce(evt, current, reduceNow)
	second := Reduce(evt, current, reduceNow)

	assert.Equal(t, first, second)
	// The input record is never mutated in place.
	assert.Equal(t, types.PaymentStatusActive, current.PaymentStatus)
}
