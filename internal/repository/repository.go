// Package repository is the pgx-backed store for carts and products.
//
// Carts are stored as whole documents (line items in a jsonb column) and
// written back with a version condition; products expose atomic conditional
// inventory adjustments. The database's atomic single-row update is the only
// concurrency primitive in the system.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dukerupert/vagn/internal/domain"
)

// Store-level sentinel errors. Services translate these into domain errors.
var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = pgx.ErrNoRows

	// ErrVersionConflict is returned by UpdateCart when the cart's version
	// changed since it was read (concurrent writer won).
	ErrVersionConflict = errors.New("cart version conflict")

	// ErrInsufficientInventory is returned by DecrementInventory when the
	// conditional decrement would drive inventory negative.
	ErrInsufficientInventory = errors.New("insufficient inventory")
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Querier is the store interface consumed by services. Tests substitute
// hand-rolled mocks.
type Querier interface {
	GetCartByID(ctx context.Context, id uuid.UUID) (*domain.Cart, error)
	GetCartByUserID(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	GetCartBySessionID(ctx context.Context, sessionID uuid.UUID) (*domain.Cart, error)
	CreateCart(ctx context.Context, cart *domain.Cart) (*domain.Cart, error)
	UpdateCart(ctx context.Context, cart *domain.Cart) (*domain.Cart, error)
	DeleteCart(ctx context.Context, id uuid.UUID) error
	DeleteExpiredCarts(ctx context.Context, cutoff time.Time) (int64, error)

	GetProductByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Product, error)
	DecrementInventory(ctx context.Context, productID uuid.UUID, qty int32) (*domain.Product, error)
	IncrementInventory(ctx context.Context, productID uuid.UUID, qty int32) (*domain.Product, error)
}

// Queries implements Querier against a pgx connection pool.
type Queries struct {
	db DBTX
}

// Compile-time check that Queries implements Querier.
var _ Querier = (*Queries)(nil)

// New creates a Queries instance bound to the given pool or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// pgUUID converts a uuid.UUID to its pgtype form; uuid.Nil maps to NULL.
func pgUUID(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}

// fromPgUUID converts a nullable pgtype.UUID back; NULL maps to uuid.Nil.
func fromPgUUID(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return uuid.UUID(id.Bytes)
}

// pgTime converts a time.Time to its pgtype form; the zero time maps to NULL.
func pgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

// fromPgTime converts a nullable timestamptz back; NULL maps to the zero time.
func fromPgTime(t pgtype.Timestamptz) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}
