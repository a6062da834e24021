package domain

import (
	"time"

	"github.com/google/uuid"
)

// Cart domain errors
var (
	ErrCartNotFound     = &Error{Code: ENOTFOUND, Message: "Cart not found"}
	ErrCartItemNotFound = &Error{Code: ENOTFOUND, Message: "Cart item not found"}
	ErrInvalidQuantity  = &Error{Code: EINVALID, Message: "Quantity must be greater than 0"}
	ErrEmptyCart        = &Error{Code: EINVALID, Message: "Cart is empty"}
)

// CartItem is one line of a cart: a product reference, an optional variant,
// and a quantity. Items carry no price or name; those are joined from live
// product state on every read.
type CartItem struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	VariantID uuid.UUID `json:"variant_id,omitzero"`
	Quantity  int32     `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

// SameLine reports whether another item targets the same (product, variant)
// pair. Adding to an existing line sums quantities instead of duplicating.
func (i CartItem) SameLine(productID, variantID uuid.UUID) bool {
	return i.ProductID == productID && i.VariantID == variantID
}

// Cart is the persisted cart document. Exactly one of UserID/SessionID is
// set for the lifetime of the cart. SubtotalCents and ItemCount are caches
// recomputed from Items after every mutation, never sources of truth.
// Version guards the whole-document read-modify-write cycle: every write is
// conditional on the version it read.
type Cart struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	SessionID     uuid.UUID
	Items         []CartItem
	SubtotalCents int32
	ItemCount     int32
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ExpiresAt     time.Time // zero for user carts; anonymous carts expire
}

// Owner returns the identity that owns this cart.
func (c *Cart) Owner() Identity {
	if c.UserID != uuid.Nil {
		return UserIdentity(c.UserID)
	}
	return SessionIdentity(c.SessionID)
}

// Anonymous reports whether the cart belongs to a guest session.
func (c *Cart) Anonymous() bool {
	return c.UserID == uuid.Nil
}

// FindItem returns the index of the line item with the given id, or -1.
func (c *Cart) FindItem(itemID uuid.UUID) int {
	for i, item := range c.Items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

// FindLine returns the index of the line item for (product, variant), or -1.
func (c *Cart) FindLine(productID, variantID uuid.UUID) int {
	for i, item := range c.Items {
		if item.SameLine(productID, variantID) {
			return i
		}
	}
	return -1
}

// Recompute refreshes the cached subtotal and item count from current line
// items joined against the given products. Must be called after every
// mutation before persisting.
func (c *Cart) Recompute(products map[uuid.UUID]Product) {
	var subtotal, count int32
	for _, item := range c.Items {
		count += item.Quantity
		if p, ok := products[item.ProductID]; ok {
			subtotal += p.PriceCents * item.Quantity
		}
	}
	c.SubtotalCents = subtotal
	c.ItemCount = count
}

// CartLine is a line item joined with live product display fields.
type CartLine struct {
	ItemID             uuid.UUID `json:"item_id"`
	ProductID          uuid.UUID `json:"product_id"`
	VariantID          uuid.UUID `json:"variant_id,omitzero"`
	Name               string    `json:"name"`
	UnitPriceCents     int32     `json:"unit_price_cents"`
	ImageURL           string    `json:"image_url,omitempty"`
	Quantity           int32     `json:"quantity"`
	LineSubtotalCents  int32     `json:"line_subtotal_cents"`
	TrackInventory     bool      `json:"track_inventory"`
	AvailableInventory int32     `json:"available_inventory"`
	AddedAt            time.Time `json:"added_at"`
}

// CartView aggregates a cart with joined lines and calculated totals.
type CartView struct {
	Cart          *Cart      `json:"-"`
	ID            uuid.UUID  `json:"id"`
	Lines         []CartLine `json:"items"`
	SubtotalCents int32      `json:"subtotal_cents"`
	ItemCount     int32      `json:"item_count"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Summary condenses the view for the pre-payment display.
func (v *CartView) Summary() CartSummary {
	return CartSummary{
		TotalItems:    v.ItemCount,
		SubtotalCents: v.SubtotalCents,
		LineCount:     len(v.Lines),
	}
}

// CartSummary is the {totalItems, subtotal, itemCount} shape exposed by
// GET /api/cart/summary and returned alongside checkout validation.
type CartSummary struct {
	TotalItems    int32 `json:"total_items"`
	SubtotalCents int32 `json:"subtotal_cents"`
	LineCount     int   `json:"line_count"`
}
