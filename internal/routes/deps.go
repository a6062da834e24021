// Package routes wires handlers onto the router. Handlers are constructed
// in main and passed in through Deps structs; this package only knows paths.
package routes

import (
	"net/http"

	"github.com/dukerupert/vagn/internal/handler/api"
)

// APIDeps contains dependencies for the cart and checkout API routes.
type APIDeps struct {
	CartHandler     *api.CartHandler
	CheckoutHandler *api.CheckoutHandler
}

// WebhookDeps contains dependencies for webhook routes.
type WebhookDeps struct {
	StripeHandler http.HandlerFunc
}
