package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/dukerupert/vagn/internal/cookie"
	"github.com/dukerupert/vagn/internal/domain"
)

// UserIDHeader carries the authenticated user id, set by the auth proxy in
// front of this service. The service trusts it; it never sees credentials.
const UserIDHeader = "X-User-ID"

// sessionMaxAge is how long the guest session cookie lives. Kept a little
// longer than the anonymous cart TTL so the cookie outlives the cart, not
// the other way around.
const sessionMaxAge = 60 * 60 * 24 * 45 // 45 days

// Identity resolves the caller to exactly one cart owner and stores it in
// the request context.
//
// An authenticated request carries X-User-ID and owns a user cart. Anything
// else is a guest: the session id comes from the session cookie, minted on
// first contact. The header wins when both are present, so a logged-in user
// with a stale cookie is never treated as a guest.
func Identity(cookies *cookie.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw := r.Header.Get(UserIDHeader); raw != "" {
				userID, err := uuid.Parse(raw)
				if err != nil || userID == uuid.Nil {
					respondWithError(w, r, domain.Invalid("middleware.identity", "invalid user id"))
					return
				}
				ctx := domain.WithIdentity(r.Context(), domain.UserIdentity(userID))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			sessionID := parseSessionCookie(r)
			if sessionID == uuid.Nil {
				sessionID = uuid.New()
				cookies.SetSession(w, cookie.CartSessionCookieName, sessionID.String(), sessionMaxAge)
			}

			ctx := domain.WithIdentity(r.Context(), domain.SessionIdentity(sessionID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseSessionCookie returns the session id from the cookie, or uuid.Nil
// when the cookie is missing or garbage. Garbage gets a fresh session
// rather than an error; there is nothing the client can do about a
// corrupted cookie except start over.
func parseSessionCookie(r *http.Request) uuid.UUID {
	raw := cookie.Get(r, cookie.CartSessionCookieName)
	if raw == "" {
		return uuid.Nil
	}
	sessionID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return sessionID
}

// RequireIdentity rejects requests where no identity was resolved. Guards
// routes registered outside the Identity chain by mistake.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := domain.IdentityFromContext(r.Context())
		if !ok || !identity.Valid() {
			respondWithError(w, r, domain.ErrInvalidIdentity)
			return
		}
		next.ServeHTTP(w, r)
	})
}
