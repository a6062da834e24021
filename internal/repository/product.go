package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dukerupert/vagn/internal/domain"
)

const productColumns = `id, name, price_cents, status, image_url, inventory_count, track_inventory, allow_backorder, created_at, updated_at`

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p  domain.Product
		id pgtype.UUID
	)

	err := row.Scan(&id, &p.Name, &p.PriceCents, &p.Status, &p.ImageURL,
		&p.InventoryCount, &p.TrackInventory, &p.AllowBackorder,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.ID = fromPgUUID(id)
	return &p, nil
}

// GetProductByID retrieves a single product.
func (q *Queries) GetProductByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`,
		pgUUID(id))
	return scanProduct(row)
}

// GetProductsByIDs retrieves the products a cart's line items reference.
// Missing ids are simply absent from the result; the cart engine treats
// absence as a deleted product and prunes the line.
func (q *Queries) GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pgIDs := make([]pgtype.UUID, len(ids))
	for i, id := range ids {
		pgIDs[i] = pgUUID(id)
	}

	rows, err := q.db.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1)`,
		pgIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// DecrementInventory atomically subtracts qty from a product's inventory,
// conditional on the result staying non-negative. This single statement is
// the reservation protocol's only concurrency primitive: two simultaneous
// checkouts race here and the database serializes them.
//
// Returns ErrInsufficientInventory when the condition fails, which also
// covers a product deleted mid-checkout.
func (q *Queries) DecrementInventory(ctx context.Context, productID uuid.UUID, qty int32) (*domain.Product, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE products
		SET inventory_count = inventory_count - $2, updated_at = now()
		WHERE id = $1 AND inventory_count >= $2
		RETURNING `+productColumns,
		pgUUID(productID), qty)

	p, err := scanProduct(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrInsufficientInventory
		}
		return nil, err
	}
	return p, nil
}

// IncrementInventory atomically adds qty back to a product's inventory.
// Used to roll back or release reservations.
func (q *Queries) IncrementInventory(ctx context.Context, productID uuid.UUID, qty int32) (*domain.Product, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE products
		SET inventory_count = inventory_count + $2, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		pgUUID(productID), qty)
	return scanProduct(row)
}
