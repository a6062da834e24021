package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/vagn/internal/domain"
	"github.com/dukerupert/vagn/internal/repository"
)

// fakeStore is an in-memory Querier with the same contract as the pgx
// implementation: version-conditional cart writes and conditional inventory
// decrements. Error hooks let tests inject conflicts and failures.
type fakeStore struct {
	mu       sync.Mutex
	carts    map[uuid.UUID]*domain.Cart
	products map[uuid.UUID]*domain.Product

	// updateCartErrs is a queue of errors returned by UpdateCart before it
	// starts succeeding again. Used to simulate optimistic write conflicts.
	updateCartErrs []error

	// incrementErrs injects per-product failures into IncrementInventory.
	incrementErrs map[uuid.UUID]error

	// decrements and increments log the order of inventory adjustments.
	decrements []uuid.UUID
	increments []uuid.UUID
}

var _ repository.Querier = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		carts:         make(map[uuid.UUID]*domain.Cart),
		products:      make(map[uuid.UUID]*domain.Product),
		incrementErrs: make(map[uuid.UUID]error),
	}
}

func (f *fakeStore) addProduct(p domain.Product) domain.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := p
	f.products[p.ID] = &cp
	return p
}

func (f *fakeStore) inventory(id uuid.UUID) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].InventoryCount
}

func (f *fakeStore) cartCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.carts)
}

func (f *fakeStore) storedCart(id uuid.UUID) *domain.Cart {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyCart(f.carts[id])
}

func copyCart(c *domain.Cart) *domain.Cart {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Items = append([]domain.CartItem(nil), c.Items...)
	return &cp
}

func (f *fakeStore) GetCartByID(_ context.Context, id uuid.UUID) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.carts[id]; ok {
		return copyCart(c), nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) GetCartByUserID(_ context.Context, userID uuid.UUID) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.carts {
		if c.UserID == userID {
			return copyCart(c), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) GetCartBySessionID(_ context.Context, sessionID uuid.UUID) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.carts {
		if c.SessionID == sessionID {
			return copyCart(c), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) CreateCart(_ context.Context, cart *domain.Cart) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := copyCart(cart)
	cp.Version = 1
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	f.carts[cp.ID] = cp
	return copyCart(cp), nil
}

func (f *fakeStore) UpdateCart(_ context.Context, cart *domain.Cart) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.updateCartErrs) > 0 {
		err := f.updateCartErrs[0]
		f.updateCartErrs = f.updateCartErrs[1:]
		return nil, err
	}

	stored, ok := f.carts[cart.ID]
	if !ok || stored.Version != cart.Version {
		return nil, repository.ErrVersionConflict
	}

	cp := copyCart(cart)
	cp.Version = stored.Version + 1
	cp.CreatedAt = stored.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	f.carts[cp.ID] = cp
	return copyCart(cp), nil
}

func (f *fakeStore) DeleteCart(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.carts, id)
	return nil
}

func (f *fakeStore) DeleteExpiredCarts(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, c := range f.carts {
		if c.UserID == uuid.Nil && !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(cutoff) {
			delete(f.carts, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) GetProductByID(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.products[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) GetProductsByIDs(_ context.Context, ids []uuid.UUID) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) DecrementInventory(_ context.Context, productID uuid.UUID, qty int32) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if p.InventoryCount < qty {
		return nil, repository.ErrInsufficientInventory
	}
	p.InventoryCount -= qty
	f.decrements = append(f.decrements, productID)
	cp := *p
	return &cp, nil
}

func (f *fakeStore) IncrementInventory(_ context.Context, productID uuid.UUID, qty int32) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.incrementErrs[productID]; ok {
		return nil, err
	}
	p, ok := f.products[productID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p.InventoryCount += qty
	f.increments = append(f.increments, productID)
	cp := *p
	return &cp, nil
}
