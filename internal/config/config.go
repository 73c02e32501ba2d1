// Package config defines the global configuration for the membersync
// services. Configuration is loaded once at process start and is immutable
// thereafter, following 12-Factor principles: OS environment (highest
// priority) over a local dotenv file.
//
// Any missing required value or invalid format aborts startup (fail fast) —
// with one deliberate exception: the webhook signing secret is validated at
// request time so the ingress can answer the provider with the documented
// misconfiguration response instead of refusing to boot alongside the
// healthy endpoints.
package config

import (
	"time"

	"membersync/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"membersync"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server    ServerConfig
	Database  DatabaseConfig
	Stripe    StripeConfig
	RateLimit RateLimitConfig
	Monitor   MonitorConfig
	AWS       AWSConfig
}

// IsProduction reports whether the process runs against live billing data.
// The webhook origin check may only be bypassed when this is false.
func (c *Config) IsProduction() bool {
	return c.Environment == "prod"
}

// ServerConfig holds HTTP server settings for the ingress service.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// DatabaseConfig holds connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// StripeConfig holds billing provider credentials and webhook ingress
// security settings.
//
// WebhookSecret is intentionally not marked required: a missing secret must
// surface as the documented 500 misconfiguration response on the webhook
// path, not as a boot failure.
type StripeConfig struct {
	SecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	WebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET"`

	// AllowedSourceIPs is the comma-separated allowlist of the provider's
	// published webhook egress addresses. Entries may be bare IPs or CIDRs.
	AllowedSourceIPs []string `envconfig:"STRIPE_WEBHOOK_SOURCE_IPS" default:"3.18.12.63,3.130.192.231,13.235.14.237,13.235.122.149,18.211.135.69,35.154.171.200,52.15.183.38,54.88.130.119,54.88.130.237,54.187.174.169,54.187.205.235,54.187.216.72"`

	// SkipSourceCheck disables origin verification. Honored only outside
	// prod; the ingress forces the check on when Environment == "prod".
	SkipSourceCheck bool `envconfig:"STRIPE_WEBHOOK_SKIP_SOURCE_CHECK" default:"false"`
}

// RateLimitConfig caps webhook deliveries per source identity. The default
// window matches the provider's normal delivery cadence with generous
// headroom; bursts beyond it are almost always a misbehaving replay script.
type RateLimitConfig struct {
	MaxRequests int           `envconfig:"WEBHOOK_RATE_LIMIT_MAX" default:"10"`
	Window      time.Duration `envconfig:"WEBHOOK_RATE_LIMIT_WINDOW" default:"60s"`
}

// MonitorConfig tunes the read-side metrics/anomaly loop.
type MonitorConfig struct {
	Interval      time.Duration `envconfig:"MONITOR_INTERVAL" default:"5m"`
	MetricsWindow time.Duration `envconfig:"MONITOR_METRICS_WINDOW" default:"24h"`
	AnomalyWindow time.Duration `envconfig:"MONITOR_ANOMALY_WINDOW" default:"1h"`

	// Anomaly thresholds. ErrorRateFloor is the minimum event count that
	// must be exceeded before the error ratio is evaluated at all, to avoid
	// alert noise from small samples.
	ErrorRateFloor     int           `envconfig:"MONITOR_ERROR_RATE_FLOOR" default:"10"`
	ErrorRateThreshold float64       `envconfig:"MONITOR_ERROR_RATE_THRESHOLD" default:"0.10"`
	SlowAvgThreshold   time.Duration `envconfig:"MONITOR_SLOW_AVG_THRESHOLD" default:"3s"`

	// StuckClaimAge is how long a claim may sit in status=processing before
	// the reconciliation scan flags it as claimed-but-never-applied.
	StuckClaimAge time.Duration `envconfig:"MONITOR_STUCK_CLAIM_AGE" default:"15m"`
}

// AWSConfig holds the SQS notification queue and optional CloudWatch
// publication settings.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// EmailQueueURL is the queue consumed by the (external) email worker.
	// Empty disables payment-failure notifications.
	EmailQueueURL string `envconfig:"SQS_EMAIL_NOTIFICATIONS"`

	// MetricsNamespace enables CloudWatch publication of metrics snapshots
	// when non-empty.
	MetricsNamespace string `envconfig:"CLOUDWATCH_NAMESPACE"`

	// EndpointURL overrides the AWS endpoint for LocalStack. Empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}
