package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/vagn/internal/domain"
	"github.com/dukerupert/vagn/internal/handler"
	"github.com/dukerupert/vagn/internal/service"
)

// CheckoutHandler handles the /api/checkout endpoints.
type CheckoutHandler struct {
	checkout service.CheckoutService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewCheckoutHandler creates a new checkout handler.
func NewCheckoutHandler(checkout service.CheckoutService, validate *validator.Validate, logger *slog.Logger) *CheckoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutHandler{
		checkout: checkout,
		validate: validate,
		logger:   logger,
	}
}

// PaymentIntentRequest is the body of POST /api/checkout/payment-intent.
type PaymentIntentRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

// Validate handles POST /api/checkout/validate. A clean cart returns the
// pre-payment summary; a dirty one returns 422 with every violation.
func (h *CheckoutHandler) Validate(w http.ResponseWriter, r *http.Request) {
	identity, ok := domain.IdentityFromContext(r.Context())
	if !ok {
		handler.ErrorResponse(w, r, domain.ErrInvalidIdentity)
		return
	}

	summary, err := h.checkout.ValidateCart(r.Context(), identity)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.JSONResponse(w, http.StatusOK, summary)
}

// CreatePaymentIntent handles POST /api/checkout/payment-intent. On success
// the cart's inventory is reserved and the client gets the intent's client
// secret for confirmation.
func (h *CheckoutHandler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	identity, ok := domain.IdentityFromContext(r.Context())
	if !ok {
		handler.ErrorResponse(w, r, domain.ErrInvalidIdentity)
		return
	}

	var req PaymentIntentRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			handler.ErrorResponse(w, r, domain.Invalid("checkout.create_payment_intent", "invalid request body"))
			return
		}
		if err := h.validate.Struct(&req); err != nil {
			handler.ErrorResponse(w, r, domain.WrapError(err, domain.EINVALID, "checkout.create_payment_intent", "request failed validation"))
			return
		}
	}

	intent, err := h.checkout.CreatePaymentIntent(r.Context(), identity, req.Email)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.JSONResponse(w, http.StatusCreated, intent)
}
