package routes

import (
	"github.com/dukerupert/vagn/internal/router"
)

// RegisterAPIRoutes registers the cart and checkout API routes. The caller
// runs these behind the Identity middleware so every handler can assume a
// resolved cart owner in the request context.
func RegisterAPIRoutes(r *router.Router, deps APIDeps) {
	// Cart
	r.Get("/api/cart", deps.CartHandler.GetCart)
	r.Get("/api/cart/summary", deps.CartHandler.GetSummary)
	r.Delete("/api/cart", deps.CartHandler.ClearCart)
	r.Post("/api/cart/items", deps.CartHandler.AddItem)
	r.Put("/api/cart/items/{itemId}", deps.CartHandler.UpdateItem)
	r.Delete("/api/cart/items/{itemId}", deps.CartHandler.RemoveItem)
	r.Post("/api/cart/merge", deps.CartHandler.MergeCart)

	// Checkout
	r.Post("/api/checkout/validate", deps.CheckoutHandler.Validate)
	r.Post("/api/checkout/payment-intent", deps.CheckoutHandler.CreatePaymentIntent)
}
