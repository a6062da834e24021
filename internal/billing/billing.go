// Package billing abstracts the payment gateway. The checkout flow only
// needs "create an intent, learn its fate, cancel it": reservations are
// committed or released based on the intent's outcome, delivered by webhook.
package billing

import (
	"context"
)

// Provider defines the interface for payment processing.
// Implementations can use Stripe, PayPal, Square, etc.
type Provider interface {
	// CreatePaymentIntent creates a payment intent for a one-time charge.
	// Returns the intent with client_secret for frontend confirmation.
	CreatePaymentIntent(ctx context.Context, params CreatePaymentIntentParams) (*PaymentIntent, error)

	// GetPaymentIntent retrieves an existing payment intent.
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error)

	// CancelPaymentIntent cancels an intent that hasn't been confirmed.
	// Used to clean up abandoned checkouts.
	CancelPaymentIntent(ctx context.Context, paymentIntentID string) error

	// VerifyWebhookSignature verifies that a webhook request is authentic.
	VerifyWebhookSignature(payload []byte, signature string, secret string) error
}

// CreatePaymentIntentParams contains parameters for creating a payment intent.
type CreatePaymentIntentParams struct {
	AmountCents    int64
	Currency       string
	CustomerEmail  string
	IdempotencyKey string

	// Metadata rides on the intent and comes back on the webhook. The
	// checkout flow stores the cart id and the serialized reservation list
	// here so the webhook can commit or release without local state.
	Metadata map[string]string
}

// PaymentIntent is the provider-neutral view of a payment intent.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
	AmountCents  int64
	Currency     string
	Metadata     map[string]string
}
