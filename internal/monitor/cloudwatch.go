package monitor

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"membersync/internal/types"
)

// CloudWatchAPI is the subset of the CloudWatch client the publisher uses.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchPublisher pushes snapshot aggregates to CloudWatch so dashboards
// and external alarms can sit on top of the pipeline. Publication is
// best-effort; the snapshot in the database remains the source of truth.
type CloudWatchPublisher struct {
	client    CloudWatchAPI
	namespace string
	logger    *slog.Logger
}

func NewCloudWatchPublisher(client CloudWatchAPI, namespace string, logger *slog.Logger) *CloudWatchPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchPublisher{client: client, namespace: namespace, logger: logger}
}

// Publish sends the snapshot's headline numbers as custom metrics.
func (p *CloudWatchPublisher) Publish(ctx context.Context, snap types.MetricsSnapshot) {
	if p.client == nil || p.namespace == "" {
		return
	}

	datum := func(name string, value float64, unit cwtypes.StandardUnit) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(value),
			Unit:       unit,
			Timestamp:  aws.Time(snap.WindowEnd),
		}
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwtypes.MetricDatum{
			datum("WebhookEvents", float64(snap.TotalEvents), cwtypes.StandardUnitCount),
			datum("WebhookFailures", float64(snap.FailedEvents), cwtypes.StandardUnitCount),
			datum("WebhookErrorRate", snap.ErrorRate()*100, cwtypes.StandardUnitPercent),
			datum("WebhookAvgProcessing", snap.AvgProcessingMs, cwtypes.StandardUnitMilliseconds),
			datum("DuplicateSubscriptionAttempts", float64(snap.DuplicateAttempts), cwtypes.StandardUnitCount),
			datum("StuckClaims", float64(snap.StuckClaims), cwtypes.StandardUnitCount),
		},
	}

	if _, err := p.client.PutMetricData(ctx, input); err != nil {
		p.logger.WarnContext(ctx, "failed to publish metrics to CloudWatch",
			slog.String("namespace", p.namespace),
			slog.String("error", err.Error()),
		)
	}
}
