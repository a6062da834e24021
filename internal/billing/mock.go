package billing

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is an in-memory Provider for tests.
type MockProvider struct {
	mu      sync.Mutex
	seq     int
	intents map[string]*PaymentIntent

	// CreateErr, when set, is returned from CreatePaymentIntent.
	CreateErr error
}

var _ Provider = (*MockProvider)(nil)

func NewMockProvider() *MockProvider {
	return &MockProvider{intents: make(map[string]*PaymentIntent)}
}

func (m *MockProvider) CreatePaymentIntent(_ context.Context, params CreatePaymentIntentParams) (*PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return nil, m.CreateErr
	}

	m.seq++
	pi := &PaymentIntent{
		ID:           fmt.Sprintf("pi_mock_%d", m.seq),
		ClientSecret: fmt.Sprintf("pi_mock_%d_secret", m.seq),
		Status:       "requires_payment_method",
		AmountCents:  params.AmountCents,
		Currency:     params.Currency,
		Metadata:     params.Metadata,
	}
	m.intents[pi.ID] = pi
	return pi, nil
}

func (m *MockProvider) GetPaymentIntent(_ context.Context, id string) (*PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pi, ok := m.intents[id]
	if !ok {
		return nil, fmt.Errorf("payment intent %s not found", id)
	}
	return pi, nil
}

func (m *MockProvider) CancelPaymentIntent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pi, ok := m.intents[id]
	if !ok {
		return fmt.Errorf("payment intent %s not found", id)
	}
	pi.Status = "canceled"
	return nil
}

func (m *MockProvider) VerifyWebhookSignature([]byte, string, string) error { return nil }
