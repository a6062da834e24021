package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dukerupert/vagn/internal/domain"
)

const cartColumns = `id, user_id, session_id, items, subtotal_cents, item_count, version, created_at, updated_at, expires_at`

func scanCart(row pgx.Row) (*domain.Cart, error) {
	var (
		cart      domain.Cart
		id        pgtype.UUID
		userID    pgtype.UUID
		sessionID pgtype.UUID
		items     []byte
		expiresAt pgtype.Timestamptz
	)

	err := row.Scan(&id, &userID, &sessionID, &items,
		&cart.SubtotalCents, &cart.ItemCount, &cart.Version,
		&cart.CreatedAt, &cart.UpdatedAt, &expiresAt)
	if err != nil {
		return nil, err
	}

	cart.ID = fromPgUUID(id)
	cart.UserID = fromPgUUID(userID)
	cart.SessionID = fromPgUUID(sessionID)
	cart.ExpiresAt = fromPgTime(expiresAt)

	if err := json.Unmarshal(items, &cart.Items); err != nil {
		return nil, fmt.Errorf("failed to decode cart items: %w", err)
	}

	return &cart, nil
}

// GetCartByID retrieves a cart by its primary key.
func (q *Queries) GetCartByID(ctx context.Context, id uuid.UUID) (*domain.Cart, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE id = $1`,
		pgUUID(id))
	return scanCart(row)
}

// GetCartByUserID retrieves the cart owned by an authenticated user.
// At most one exists (unique partial index on user_id).
func (q *Queries) GetCartByUserID(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE user_id = $1`,
		pgUUID(userID))
	return scanCart(row)
}

// GetCartBySessionID retrieves the cart owned by an anonymous session.
func (q *Queries) GetCartBySessionID(ctx context.Context, sessionID uuid.UUID) (*domain.Cart, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE session_id = $1`,
		pgUUID(sessionID))
	return scanCart(row)
}

// CreateCart inserts a new cart document at version 1. The caller supplies
// the id and owner identity; timestamps come from the database.
func (q *Queries) CreateCart(ctx context.Context, cart *domain.Cart) (*domain.Cart, error) {
	items, err := json.Marshal(itemsOrEmpty(cart.Items))
	if err != nil {
		return nil, fmt.Errorf("failed to encode cart items: %w", err)
	}

	row := q.db.QueryRow(ctx, `
		INSERT INTO carts (id, user_id, session_id, items, subtotal_cents, item_count, version, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
		RETURNING `+cartColumns,
		pgUUID(cart.ID), pgUUID(cart.UserID), pgUUID(cart.SessionID),
		items, cart.SubtotalCents, cart.ItemCount, pgTime(cart.ExpiresAt))
	return scanCart(row)
}

// UpdateCart writes the whole cart document back, conditional on the version
// the caller read. Returns ErrVersionConflict when a concurrent writer got
// there first (or the cart was deleted); callers re-read and retry.
func (q *Queries) UpdateCart(ctx context.Context, cart *domain.Cart) (*domain.Cart, error) {
	items, err := json.Marshal(itemsOrEmpty(cart.Items))
	if err != nil {
		return nil, fmt.Errorf("failed to encode cart items: %w", err)
	}

	row := q.db.QueryRow(ctx, `
		UPDATE carts
		SET items = $2, subtotal_cents = $3, item_count = $4,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $5
		RETURNING `+cartColumns,
		pgUUID(cart.ID), items, cart.SubtotalCents, cart.ItemCount, cart.Version)

	updated, err := scanCart(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrVersionConflict
		}
		return nil, err
	}
	return updated, nil
}

// DeleteCart removes a cart record entirely. Used when a guest cart has been
// absorbed into a user cart. Deleting an absent cart is not an error.
func (q *Queries) DeleteCart(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM carts WHERE id = $1`, pgUUID(id))
	return err
}

// DeleteExpiredCarts garbage-collects anonymous carts whose expiry passed.
// Returns the number of carts removed.
func (q *Queries) DeleteExpiredCarts(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM carts WHERE user_id IS NULL AND expires_at IS NOT NULL AND expires_at < $1`,
		cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// itemsOrEmpty keeps the jsonb column a [] rather than null for empty carts.
func itemsOrEmpty(items []domain.CartItem) []domain.CartItem {
	if items == nil {
		return []domain.CartItem{}
	}
	return items
}
