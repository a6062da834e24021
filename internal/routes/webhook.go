package routes

import (
	"github.com/dukerupert/vagn/internal/router"
)

// RegisterWebhookRoutes registers payment gateway webhook routes. These sit
// outside the Identity middleware; authenticity comes from signature
// verification, not cookies.
func RegisterWebhookRoutes(r *router.Router, deps WebhookDeps) {
	r.Post("/webhooks/stripe", deps.StripeHandler)
}
