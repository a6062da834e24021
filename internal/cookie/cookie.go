// Package cookie holds the session cookie helpers for anonymous carts.
// Guest identity is a random session id minted on first contact and carried
// in an HttpOnly cookie until login merges the cart away.
package cookie

import (
	"net/http"
)

// Common cookie names used throughout the application.
const (
	// CartSessionCookieName carries the anonymous session id for guest carts.
	CartSessionCookieName = "vagn_session"
)

// Config holds cookie configuration.
type Config struct {
	// Secure determines whether cookies require HTTPS.
	// Should be true in production, false in development.
	Secure bool
}

// NewConfig creates a new cookie configuration.
func NewConfig(secure bool) *Config {
	return &Config{Secure: secure}
}

// SetSession sets a session cookie.
//
// The cookie is HttpOnly and SameSite=Lax; maxAge is in seconds.
func (c *Config) SetSession(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSession removes a session cookie by setting MaxAge to -1.
func (c *Config) ClearSession(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Get retrieves a cookie value from the request.
// Returns empty string if cookie not found.
func Get(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
