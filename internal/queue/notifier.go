// Package queue sends fire-and-forget work to downstream workers over SQS.
package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"membersync/internal/types"
)

// SQSSender is the subset of the SQS client the notifier uses.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// EmailNotifier enqueues payment-failure email requests for the email
// worker. Delivery is fire-and-forget: every failure path logs and returns
// normally, because a notification problem must never fail the webhook
// event that triggered it.
type EmailNotifier struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

func NewEmailNotifier(client SQSSender, queueURL string, logger *slog.Logger) *EmailNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailNotifier{client: client, queueURL: queueURL, logger: logger}
}

// NotifyPaymentFailure enqueues one payment-failed email request.
func (n *EmailNotifier) NotifyPaymentFailure(ctx context.Context, notice types.PaymentFailureNotice) {
	if n.client == nil || n.queueURL == "" {
		n.logger.DebugContext(ctx, "email queue not configured, skipping notification",
			slog.String("invoice_id", notice.InvoiceID))
		return
	}

	if notice.MessageID == "" {
		notice.MessageID = uuid.New().String()
	}

	body, err := json.Marshal(notice)
	if err != nil {
		n.logger.ErrorContext(ctx, "failed to marshal payment failure notice",
			slog.String("invoice_id", notice.InvoiceID),
			slog.String("error", err.Error()),
		)
		return
	}

	_, err = n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		n.logger.ErrorContext(ctx, "failed to enqueue payment failure notice",
			slog.String("invoice_id", notice.InvoiceID),
			slog.String("error", err.Error()),
		)
		return
	}

	n.logger.InfoContext(ctx, "payment failure notice enqueued",
		slog.String("message_id", notice.MessageID),
		slog.String("invoice_id", notice.InvoiceID),
	)
}
