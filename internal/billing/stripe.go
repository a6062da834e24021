package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProvider implements Provider using Stripe.
//
// It owns an explicitly constructed API client rather than mutating the
// SDK's package-level key, so two providers with different keys can coexist
// in one process.
type StripeProvider struct {
	api    *client.API
	apiKey string
}

// Compile-time check that StripeProvider implements Provider.
var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider creates a new Stripe billing provider.
func NewStripeProvider(apiKey string) (*StripeProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("stripe API key is required")
	}

	api := &client.API{}
	api.Init(apiKey, nil)

	return &StripeProvider{api: api, apiKey: apiKey}, nil
}

// IsTestMode reports whether the provider uses a test-mode key.
func (s *StripeProvider) IsTestMode() bool {
	return strings.HasPrefix(s.apiKey, "sk_test_")
}

// CreatePaymentIntent creates a Stripe payment intent.
func (s *StripeProvider) CreatePaymentIntent(ctx context.Context, params CreatePaymentIntentParams) (*PaymentIntent, error) {
	currency := params.Currency
	if currency == "" {
		currency = "usd"
	}

	piParams := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(params.AmountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	piParams.Context = ctx

	if params.CustomerEmail != "" {
		piParams.ReceiptEmail = stripe.String(params.CustomerEmail)
	}
	if params.IdempotencyKey != "" {
		piParams.SetIdempotencyKey(params.IdempotencyKey)
	}
	for k, v := range params.Metadata {
		piParams.AddMetadata(k, v)
	}

	pi, err := s.api.PaymentIntents.New(piParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return convertPaymentIntent(pi), nil
}

// GetPaymentIntent retrieves an existing payment intent.
func (s *StripeProvider) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.api.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent %s: %w", paymentIntentID, err)
	}

	return convertPaymentIntent(pi), nil
}

// CancelPaymentIntent cancels an intent that hasn't been confirmed.
func (s *StripeProvider) CancelPaymentIntent(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	if _, err := s.api.PaymentIntents.Cancel(paymentIntentID, params); err != nil {
		return fmt.Errorf("failed to cancel payment intent %s: %w", paymentIntentID, err)
	}
	return nil
}

// VerifyWebhookSignature verifies a Stripe webhook signature.
func (s *StripeProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	if _, err := webhook.ConstructEvent(payload, signature, secret); err != nil {
		return fmt.Errorf("webhook signature verification failed: %w", err)
	}
	return nil
}

func convertPaymentIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	return &PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
}
