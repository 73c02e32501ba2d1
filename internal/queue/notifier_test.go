package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membersync/internal/types"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &sqs.SendMessageOutput{}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmailNotifier_EnqueuesNotice(t *testing.T) {
	client := &fakeSQS{}
	n := NewEmailNotifier(client, "https://sqs.test/queue", discardLogger())

	n.NotifyPaymentFailure(context.Background(), types.PaymentFailureNotice{
		UserID:         "u1",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		InvoiceID:      "in_1",
		AmountCents:    1999,
		Currency:       "usd",
		FailedAt:       time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	})

	require.Len(t, client.inputs, 1)
	assert.Equal(t, "https://sqs.test/queue", *client.inputs[0].QueueUrl)

	var notice types.PaymentFailureNotice
	require.NoError(t, json.Unmarshal([]byte(*client.inputs[0].MessageBody), &notice))
	assert.Equal(t, "in_1", notice.InvoiceID)
	assert.Equal(t, "u1", notice.UserID)
	assert.NotEmpty(t, notice.MessageID, "message id is assigned when unset")
}

func TestEmailNotifier_SendFailureIsSwallowed(t *testing.T) {
	client := &fakeSQS{err: errors.New("queue unreachable")}
	n := NewEmailNotifier(client, "https://sqs.test/queue", discardLogger())

	// Must not panic; the notifier's contract is fire-and-forget.
	n.NotifyPaymentFailure(context.Background(), types.PaymentFailureNotice{InvoiceID: "in_2"})
	assert.Empty(t, client.inputs)
}

func TestEmailNotifier_DisabledWithoutQueue(t *testing.T) {
	n := NewEmailNotifier(nil, "", discardLogger())

	n.NotifyPaymentFailure(context.Background(), types.PaymentFailureNotice{InvoiceID: "in_3"})
}
