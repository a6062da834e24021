package domain

import (
	"github.com/google/uuid"
)

// Reservation is one (product, quantity) pair of inventory decremented in
// anticipation of a payment attempt. Reservations are ephemeral: they live
// for a single checkout attempt and are handed back to the payment flow,
// which must either commit (do nothing, the decrement stands) or release
// them. They are not persisted as their own entity.
type Reservation struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int32     `json:"quantity"`
}

// CheckoutSummary is returned by successful checkout validation: the pruned,
// fully validated cart plus the totals shown before payment.
type CheckoutSummary struct {
	Cart    *CartView   `json:"cart"`
	Summary CartSummary `json:"summary"`
}
