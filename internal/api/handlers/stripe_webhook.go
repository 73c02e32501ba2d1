// Package handlers contains the HTTP handlers of the membersync ingress.
//
// The webhook endpoint is not behind auth middleware; it is called directly
// by the billing provider. Trust is established per-request by the source
// allowlist and the signature check.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"membersync/internal/external"
	"membersync/internal/types"
	"membersync/internal/webhook"
)

// maxWebhookBodySize caps webhook payloads at 64 KB. Provider payloads are
// small; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// RejectionRecorder logs deliveries refused before their payload could be
// trusted, for the monitor's security scans. Implemented by
// db.ProcessedEventRepo; may be nil.
type RejectionRecorder interface {
	RecordRejected(ctx context.Context, reason, sourceIP string) error
}

// StripeWebhookHandler is the ingress for billing provider deliveries. The
// gates run cheapest-first: origin check, rate limit, then the signature
// HMAC, and only a fully trusted payload reaches the processor.
type StripeWebhookHandler struct {
	verifier   external.WebhookVerifier
	limiter    webhook.RateLimiter
	origin     *webhook.OriginAuthenticator
	processor  *webhook.Processor
	rejections RejectionRecorder
	secret     types.SecretString
	logger     *slog.Logger
}

func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	limiter webhook.RateLimiter,
	origin *webhook.OriginAuthenticator,
	processor *webhook.Processor,
	rejections RejectionRecorder,
	secret types.SecretString,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier:   verifier,
		limiter:    limiter,
		origin:     origin,
		processor:  processor,
		rejections: rejections,
		secret:     secret,
		logger:     logger,
	}
}

// RegisterRoutes mounts the webhook endpoint. Kept separate from any
// authenticated route groups.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle processes one webhook delivery.
//
// Response contract with the provider: 200 acknowledges (including the
// already-processed short-circuit), 400 means the request itself is bad and
// must not be retried, 500 asks for a retry after a compensated failure.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sourceIP := webhook.ClientIP(r)

	if !h.origin.Allow(sourceIP) {
		h.logger.WarnContext(ctx, "webhook from untrusted source rejected",
			slog.String("source_ip", sourceIP),
		)
		h.recordRejection(ctx, "untrusted_origin", sourceIP)
		respondError(w, http.StatusForbidden, "Untrusted webhook source")
		return
	}

	if limit := h.limiter.Check(sourceIP); !limit.Allowed {
		h.logger.WarnContext(ctx, "webhook rate limit exceeded",
			slog.String("source_ip", sourceIP),
		)
		if wait := time.Until(limit.ResetAt); wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait/time.Second)+1))
		}
		respondError(w, http.StatusTooManyRequests, "Too many requests")
		return
	}

	if !h.secret.IsSet() {
		// Misconfiguration, not a bad request. 500 keeps the provider
		// retrying until an operator fixes the deployment.
		h.logger.ErrorContext(ctx, "webhook secret not configured")
		respondError(w, http.StatusInternalServerError, "Webhook secret not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read webhook body", slog.String("error", err.Error()))
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		respondError(w, http.StatusBadRequest, "Missing stripe-signature header")
		return
	}
	if err := h.verifier.Verify(payload, sigHeader, h.secret.Value()); err != nil {
		h.logger.WarnContext(ctx, "webhook signature verification failed",
			slog.String("source_ip", sourceIP),
			slog.String("error", err.Error()),
		)
		respondError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	delivery, err := webhook.ParseEvent(payload)
	if err != nil {
		h.logger.WarnContext(ctx, "webhook payload unparseable", slog.String("error", err.Error()))
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	if _, err := h.processor.Process(ctx, delivery); err != nil {
		respondError(w, http.StatusInternalServerError, "Webhook processing failed")
		return
	}

	respondReceived(w)
}

// recordRejection best-effort writes a security row. The response to the
// caller does not depend on it.
func (h *StripeWebhookHandler) recordRejection(ctx context.Context, reason, sourceIP string) {
	if h.rejections == nil {
		return
	}
	if err := h.rejections.RecordRejected(ctx, reason, sourceIP); err != nil {
		h.logger.WarnContext(ctx, "failed to record rejection",
			slog.String("error", err.Error()))
	}
}

// providerAck is the success body the provider expects.
type providerAck struct {
	Received bool `json:"received"`
}

// providerError is the flat error body the provider expects. Distinct from
// the structured envelope used by operational endpoints.
type providerError struct {
	Error string `json:"error"`
}

func respondReceived(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(providerAck{Received: true})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(providerError{Error: message})
}
