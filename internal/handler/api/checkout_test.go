package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/vagn/internal/domain"
	"github.com/dukerupert/vagn/internal/service"
)

type mockCheckoutService struct {
	validateCartFn        func(ctx context.Context, identity domain.Identity) (*domain.CheckoutSummary, error)
	createPaymentIntentFn func(ctx context.Context, identity domain.Identity, email string) (*service.CheckoutIntent, error)
}

func (m *mockCheckoutService) ValidateCart(ctx context.Context, identity domain.Identity) (*domain.CheckoutSummary, error) {
	return m.validateCartFn(ctx, identity)
}

func (m *mockCheckoutService) ReserveInventory(context.Context, *domain.Cart) ([]domain.Reservation, error) {
	panic("not expected in handler tests")
}

func (m *mockCheckoutService) ReleaseInventory(context.Context, uuid.UUID, []domain.Reservation) error {
	panic("not expected in handler tests")
}

func (m *mockCheckoutService) CreatePaymentIntent(ctx context.Context, identity domain.Identity, email string) (*service.CheckoutIntent, error) {
	return m.createPaymentIntentFn(ctx, identity, email)
}

func (m *mockCheckoutService) CompleteCheckout(context.Context, uuid.UUID, string, int64) error {
	panic("not expected in handler tests")
}

func testCheckoutHandler(svc *mockCheckoutService) *CheckoutHandler {
	return NewCheckoutHandler(svc, validator.New(validator.WithRequiredStructEnabled()), nil)
}

func TestCheckoutHandler_Validate_OK(t *testing.T) {
	identity := domain.UserIdentity(uuid.New())
	svc := &mockCheckoutService{
		validateCartFn: func(_ context.Context, got domain.Identity) (*domain.CheckoutSummary, error) {
			assert.Equal(t, identity, got)
			return &domain.CheckoutSummary{
				Cart:    emptyView(),
				Summary: domain.CartSummary{TotalItems: 2, SubtotalCents: 3000, LineCount: 1},
			}, nil
		},
	}
	h := testCheckoutHandler(svc)

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/checkout/validate", nil), identity)
	w := httptest.NewRecorder()
	h.Validate(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Summary domain.CartSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int32(3000), body.Summary.SubtotalCents)
}

func TestCheckoutHandler_Validate_ReturnsEveryReason(t *testing.T) {
	svc := &mockCheckoutService{
		validateCartFn: func(context.Context, domain.Identity) (*domain.CheckoutSummary, error) {
			return nil, domain.NewCartValidationError("checkout.validate", []string{
				"only 1 of Coffee available, 5 requested",
				"Tea is no longer available for purchase",
			})
		},
	}
	h := testCheckoutHandler(svc)

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/checkout/validate", nil),
		domain.UserIdentity(uuid.New()))
	w := httptest.NewRecorder()
	h.Validate(w, req)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp struct {
		Error struct {
			Code    string   `json:"code"`
			Reasons []string `json:"reasons"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "cart_validation_failed", resp.Error.Code)
	assert.Len(t, resp.Error.Reasons, 2)
}

func TestCheckoutHandler_Validate_EmptyCart(t *testing.T) {
	svc := &mockCheckoutService{
		validateCartFn: func(context.Context, domain.Identity) (*domain.CheckoutSummary, error) {
			return nil, domain.WrapError(domain.ErrEmptyCart, domain.EINVALID, "checkout.validate", "Cart is empty")
		},
	}
	h := testCheckoutHandler(svc)

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/checkout/validate", nil),
		domain.UserIdentity(uuid.New()))
	w := httptest.NewRecorder()
	h.Validate(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckoutHandler_CreatePaymentIntent(t *testing.T) {
	identity := domain.UserIdentity(uuid.New())
	svc := &mockCheckoutService{
		createPaymentIntentFn: func(_ context.Context, got domain.Identity, email string) (*service.CheckoutIntent, error) {
			assert.Equal(t, identity, got)
			assert.Equal(t, "jo@example.com", email)
			return &service.CheckoutIntent{
				PaymentIntentID: "pi_123",
				ClientSecret:    "pi_123_secret",
				AmountCents:     3000,
				Currency:        "usd",
			}, nil
		},
	}
	h := testCheckoutHandler(svc)

	body := []byte(`{"email": "jo@example.com"}`)
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/checkout/payment-intent", bytes.NewReader(body)), identity)
	w := httptest.NewRecorder()
	h.CreatePaymentIntent(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp service.CheckoutIntent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pi_123_secret", resp.ClientSecret)
}

func TestCheckoutHandler_CreatePaymentIntent_EmptyBodyAllowed(t *testing.T) {
	svc := &mockCheckoutService{
		createPaymentIntentFn: func(_ context.Context, _ domain.Identity, email string) (*service.CheckoutIntent, error) {
			assert.Empty(t, email)
			return &service.CheckoutIntent{PaymentIntentID: "pi_123"}, nil
		},
	}
	h := testCheckoutHandler(svc)

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/checkout/payment-intent", nil),
		domain.SessionIdentity(uuid.New()))
	w := httptest.NewRecorder()
	h.CreatePaymentIntent(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCheckoutHandler_CreatePaymentIntent_BadEmail(t *testing.T) {
	h := testCheckoutHandler(&mockCheckoutService{})

	body := []byte(`{"email": "not-an-email"}`)
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/checkout/payment-intent", bytes.NewReader(body)),
		domain.UserIdentity(uuid.New()))
	w := httptest.NewRecorder()
	h.CreatePaymentIntent(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckoutHandler_CreatePaymentIntent_GatewayDown(t *testing.T) {
	svc := &mockCheckoutService{
		createPaymentIntentFn: func(context.Context, domain.Identity, string) (*service.CheckoutIntent, error) {
			return nil, domain.WrapError(assert.AnError, domain.EPAYMENT, "checkout.create_payment_intent", "Payment could not be initiated")
		},
	}
	h := testCheckoutHandler(svc)

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/checkout/payment-intent", nil),
		domain.UserIdentity(uuid.New()))
	w := httptest.NewRecorder()
	h.CreatePaymentIntent(w, req)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}
