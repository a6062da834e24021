package domain

import (
	"context"

	"github.com/google/uuid"
)

// Identity resolves the caller to exactly one cart owner: an authenticated
// user or an anonymous session. Upstream middleware supplies it; the cart
// engine never sees raw credentials.
type Identity struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
}

// UserIdentity builds an identity for an authenticated user.
func UserIdentity(userID uuid.UUID) Identity {
	return Identity{UserID: userID}
}

// SessionIdentity builds an identity for an anonymous session.
func SessionIdentity(sessionID uuid.UUID) Identity {
	return Identity{SessionID: sessionID}
}

// Valid reports whether exactly one of user id or session id is set.
// A cart is owned by one identity for its whole lifetime, never both,
// never neither.
func (i Identity) Valid() bool {
	return (i.UserID != uuid.Nil) != (i.SessionID != uuid.Nil)
}

// IsUser reports whether the identity belongs to an authenticated user.
func (i Identity) IsUser() bool {
	return i.UserID != uuid.Nil
}

// ErrInvalidIdentity is returned when neither a user id nor a session id
// was resolved for the request.
var ErrInvalidIdentity = &Error{Code: EINVALID, Message: "No user or session identity supplied"}

type identityContextKey struct{}

// WithIdentity stores the resolved identity in the context.
// Called by the identity middleware; read by handlers.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext retrieves the resolved identity from the context.
// The second return value is false when no middleware ran.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
