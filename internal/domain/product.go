package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Product lifecycle status. Only active products may be added to carts or
// pass checkout validation.
const (
	ProductStatusDraft    = "draft"
	ProductStatusActive   = "active"
	ProductStatusArchived = "archived"
)

// Product errors
var (
	ErrProductNotFound    = &Error{Code: ENOTFOUND, Message: "Product not found"}
	ErrProductUnavailable = &Error{Code: EGONE, Message: "Product is not available for purchase"}

	// ErrInsufficientInventory is the base sentinel; callers wrap it with the
	// offending product and quantities via InsufficientInventory.
	ErrInsufficientInventory = &Error{Code: ECONFLICT, Message: "Insufficient inventory"}
)

// InsufficientInventory wraps ErrInsufficientInventory with the offending
// product so the caller can render "only N left" messages.
// errors.Is(err, ErrInsufficientInventory) still matches.
func InsufficientInventory(op, productName string, requested, available int32) error {
	return &Error{
		Code:    ECONFLICT,
		Op:      op,
		Message: fmt.Sprintf("Insufficient inventory for %s: requested %d, available %d", productName, requested, available),
		Err:     ErrInsufficientInventory,
	}
}

// Product is the live product state the cart joins against. The cart never
// snapshots price or name into line items; display and validation always
// re-read this.
type Product struct {
	ID             uuid.UUID
	Name           string
	PriceCents     int32
	Status         string
	ImageURL       string
	InventoryCount int32
	TrackInventory bool
	AllowBackorder bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Purchasable reports whether the product may appear in a cart at all.
func (p Product) Purchasable() bool {
	return p.Status == ProductStatusActive
}

// HasInventoryFor reports whether qty units can be sold right now.
// Untracked and backorderable products always pass.
func (p Product) HasInventoryFor(qty int32) bool {
	if !p.TrackInventory || p.AllowBackorder {
		return true
	}
	return p.InventoryCount >= qty
}
