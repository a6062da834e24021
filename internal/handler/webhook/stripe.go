// Package webhook processes payment gateway callbacks. The webhook is where
// a reservation's fate is decided: a succeeded intent commits it, a failed
// or canceled intent hands the stock back.
package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/vagn/internal/billing"
	"github.com/dukerupert/vagn/internal/domain"
	"github.com/dukerupert/vagn/internal/handler"
	"github.com/dukerupert/vagn/internal/service"
	"github.com/dukerupert/vagn/internal/telemetry"
)

// StripeHandler handles Stripe webhook events.
type StripeHandler struct {
	provider billing.Provider
	checkout service.CheckoutService
	metrics  *telemetry.BusinessMetrics
	logger   *slog.Logger

	// webhookSecret is the signing secret from the Stripe dashboard.
	webhookSecret string
}

// NewStripeHandler creates a new Stripe webhook handler. metrics may be nil.
func NewStripeHandler(provider billing.Provider, checkout service.CheckoutService, metrics *telemetry.BusinessMetrics, logger *slog.Logger, webhookSecret string) *StripeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeHandler{
		provider:      provider,
		checkout:      checkout,
		metrics:       metrics,
		logger:        logger,
		webhookSecret: webhookSecret,
	}
}

// HandleWebhook processes incoming Stripe webhook events.
//
// Stripe CLI testing:
//
//	stripe listen --forward-to localhost:3000/webhooks/stripe
//	stripe trigger payment_intent.succeeded
func (h *StripeHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.stripe", "Error reading request body"))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.stripe", "Missing signature"))
		return
	}

	if err := h.provider.VerifyWebhookSignature(payload, signature, h.webhookSecret); err != nil {
		h.logger.Warn("webhook signature verification failed", slog.String("error", err.Error()))
		handler.ErrorResponse(w, r, domain.Errorf(domain.EUNAUTHORIZED, "webhook.stripe", "Invalid signature"))
		return
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.stripe", "Invalid JSON"))
		return
	}

	h.logger.Info("stripe webhook received",
		slog.String("event_type", string(event.Type)),
		slog.String("event_id", event.ID))

	if h.metrics != nil {
		h.metrics.WebhookReceived.WithLabelValues(string(event.Type)).Inc()
		defer func() {
			h.metrics.WebhookLatency.WithLabelValues(string(event.Type)).Observe(time.Since(start).Seconds())
		}()
	}

	switch event.Type {
	case "payment_intent.succeeded":
		h.handlePaymentIntentSucceeded(r, event)

	case "payment_intent.payment_failed":
		h.handlePaymentIntentFailed(r, event, "failed")

	case "payment_intent.canceled":
		h.handlePaymentIntentFailed(r, event, "canceled")

	case "payment_intent.created":
		// No action needed; logged above for monitoring.

	default:
		h.logger.Debug("unhandled stripe event type", slog.String("event_type", string(event.Type)))
	}

	// Always return 200 to acknowledge receipt; Stripe retries on errors.
	handler.JSONResponse(w, http.StatusOK, map[string]bool{"received": true})
}

// handlePaymentIntentSucceeded commits the checkout: the reservation made at
// intent creation becomes permanent and the cart is consumed.
func (h *StripeHandler) handlePaymentIntentSucceeded(r *http.Request, event stripe.Event) {
	paymentIntent, ok := h.parsePaymentIntent(event)
	if !ok {
		return
	}

	cartID, _, err := service.DecodeReservationMetadata(paymentIntent.Metadata)
	if err != nil {
		// An intent without our metadata wasn't created by this service
		// (CLI triggers, other products on the same account). Acknowledge
		// and move on.
		h.logger.Info("payment intent without checkout metadata, skipping",
			slog.String("payment_intent_id", paymentIntent.ID),
			slog.String("error", err.Error()))
		return
	}

	if err := h.checkout.CompleteCheckout(r.Context(), cartID, paymentIntent.ID, paymentIntent.Amount); err != nil {
		// Stripe got its 200 regardless; this failure needs an operator.
		h.logger.Error("failed to complete checkout from webhook",
			slog.String("payment_intent_id", paymentIntent.ID),
			slog.String("cart_id", cartID.String()),
			slog.String("error", err.Error()))
		return
	}

	h.logger.Info("checkout committed",
		slog.String("payment_intent_id", paymentIntent.ID),
		slog.String("cart_id", cartID.String()),
		slog.Int64("amount_cents", paymentIntent.Amount))
}

// handlePaymentIntentFailed releases the reservation held by a failed or
// canceled intent so the stock goes back on sale.
func (h *StripeHandler) handlePaymentIntentFailed(r *http.Request, event stripe.Event, outcome string) {
	paymentIntent, ok := h.parsePaymentIntent(event)
	if !ok {
		return
	}

	if paymentIntent.LastPaymentError != nil {
		h.logger.Info("payment failed",
			slog.String("payment_intent_id", paymentIntent.ID),
			slog.String("reason", string(paymentIntent.LastPaymentError.Code)))
	}

	cartID, reservations, err := service.DecodeReservationMetadata(paymentIntent.Metadata)
	if err != nil {
		h.logger.Info("payment intent without checkout metadata, skipping",
			slog.String("payment_intent_id", paymentIntent.ID),
			slog.String("error", err.Error()))
		return
	}
	if len(reservations) == 0 {
		return
	}

	_ = h.checkout.ReleaseInventory(r.Context(), cartID, reservations)

	h.logger.Info("reservation released",
		slog.String("payment_intent_id", paymentIntent.ID),
		slog.String("cart_id", cartID.String()),
		slog.String("outcome", outcome),
		slog.Int("reservations", len(reservations)))
}

func (h *StripeHandler) parsePaymentIntent(event stripe.Event) (*stripe.PaymentIntent, bool) {
	var paymentIntent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &paymentIntent); err != nil {
		h.logger.Error("failed to parse payment intent from webhook",
			slog.String("event_id", event.ID),
			slog.String("error", err.Error()))
		return nil, false
	}
	return &paymentIntent, true
}
