// Package events publishes cart and checkout lifecycle notifications over
// NATS. Consumers (storefront websockets, ops dashboards) subscribe to the
// subjects below; publishing is fire-and-forget and never fails a request.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/vagn/internal/domain"
)

// Subjects for cart and checkout events.
const (
	SubjectCartUpdated       = "cart.updated"
	SubjectCartMerged        = "cart.merged"
	SubjectInventoryReserved = "inventory.reserved"
	SubjectInventoryReleased = "inventory.released"
	SubjectCheckoutCompleted = "checkout.completed"
)

// Publisher delivers JSON-encoded events to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
	Close()
}

// CartUpdatedEvent is emitted after any cart mutation (add, update, remove,
// clear, prune-on-get).
type CartUpdatedEvent struct {
	CartID        uuid.UUID `json:"cart_id"`
	UserID        uuid.UUID `json:"user_id,omitzero"`
	SessionID     uuid.UUID `json:"session_id,omitzero"`
	ItemCount     int32     `json:"item_count"`
	SubtotalCents int32     `json:"subtotal_cents"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// CartMergedEvent is emitted when a guest cart is absorbed into a user cart
// on login.
type CartMergedEvent struct {
	UserCartID  uuid.UUID `json:"user_cart_id"`
	GuestCartID uuid.UUID `json:"guest_cart_id"`
	UserID      uuid.UUID `json:"user_id"`
	ItemCount   int32     `json:"item_count"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// ReservationEvent is emitted when inventory is reserved for a checkout
// attempt or released after a failed payment.
type ReservationEvent struct {
	CartID       uuid.UUID            `json:"cart_id,omitzero"`
	Reservations []domain.Reservation `json:"reservations"`
	OccurredAt   time.Time            `json:"occurred_at"`
}

// CheckoutCompletedEvent is emitted when a payment succeeds and the
// reservation becomes permanent.
type CheckoutCompletedEvent struct {
	CartID          uuid.UUID `json:"cart_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	AmountCents     int64     `json:"amount_cents"`
	OccurredAt      time.Time `json:"occurred_at"`
}
