package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"membersync/internal/types"
)

// stripeAPIBase is the default Stripe API base URL. Overridable in tests.
const stripeAPIBase = "https://api.stripe.com"

// StripeVerifier implements WebhookVerifier with stripe-go's signature
// validation: HMAC-SHA256 over the timestamped payload, with the library's
// default timestamp tolerance guarding against replay.
type StripeVerifier struct{}

func (StripeVerifier) Verify(payload []byte, sigHeader string, secret string) error {
	return stripewebhook.ValidatePayload(payload, sigHeader, secret)
}

// StripeClientConfig configures a StripeClient.
type StripeClientConfig struct {
	SecretKey types.SecretString
	BaseURL   string
	Logger    *slog.Logger
}

// StripeClient implements BillingService against the Stripe REST API,
// routed through BaseClient for circuit breaking and retries.
type StripeClient struct {
	base      *BaseClient
	secretKey types.SecretString
	baseURL   string
	logger    *slog.Logger
}

func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeClient{
		base:      NewBaseClient(httpClient, "stripe", DefaultRetryPolicy(), "membersync/1.0"),
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// CancelSubscription cancels the subscription immediately (no period-end
// grace). Cancelling an already-canceled subscription is treated as success.
func (s *StripeClient) CancelSubscription(ctx context.Context, subscriptionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		s.baseURL+"/v1/subscriptions/"+subscriptionID, nil)
	if err != nil {
		return err
	}
	s.setAuthHeaders(req)

	resp, err := s.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		s.logger.InfoContext(ctx, "subscription canceled",
			slog.String("subscription_id", subscriptionID))
		return nil
	}

	stripeErr := readStripeError(resp)
	if stripeErr.Code == "resource_missing" {
		// Already gone; the end state we wanted.
		return nil
	}

	return types.NewAppError(types.ErrCodeUpstreamBilling,
		fmt.Sprintf("cancel subscription: Stripe error (%d): %s", resp.StatusCode, stripeErr.Message), nil)
}

func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey.Value())
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// stripeErrorBody is the error object inside Stripe's error envelope.
type stripeErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// readStripeError best-effort decodes an error response body. A body that
// cannot be decoded yields a zero-value error object.
func readStripeError(resp *http.Response) stripeErrorBody {
	var envelope struct {
		Error stripeErrorBody `json:"error"`
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return stripeErrorBody{}
	}
	_ = json.Unmarshal(body, &envelope)
	return envelope.Error
}
