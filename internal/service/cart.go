package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/vagn/internal/domain"
	"github.com/dukerupert/vagn/internal/events"
	"github.com/dukerupert/vagn/internal/repository"
	"github.com/dukerupert/vagn/internal/telemetry"
)

// maxWriteAttempts bounds the optimistic-concurrency retry loop. Conflicts
// come from the same owner double-clicking or racing tabs, so contention is
// short-lived; three attempts is plenty.
const maxWriteAttempts = 3

// CartService is the cart engine: resolution, mutation, and merge.
//
// Every operation resolves the caller's cart from its identity, reconciles
// the stored line items against live product state (pruning lines whose
// product vanished or went inactive), applies the mutation, and writes the
// whole document back conditional on the version it read.
type CartService interface {
	// GetCart returns the caller's cart, creating an empty one on first
	// access. Pruned lines are persisted before the view is returned.
	GetCart(ctx context.Context, identity domain.Identity) (*domain.CartView, error)

	// GetSummary returns the condensed totals for the cart badge.
	GetSummary(ctx context.Context, identity domain.Identity) (domain.CartSummary, error)

	// AddItem adds quantity of a product to the cart. Adding a (product,
	// variant) pair already in the cart sums quantities onto the existing
	// line instead of creating a duplicate.
	AddItem(ctx context.Context, identity domain.Identity, productID, variantID uuid.UUID, quantity int32) (*domain.CartView, error)

	// UpdateItem replaces a line's quantity. Quantity zero removes the line.
	UpdateItem(ctx context.Context, identity domain.Identity, itemID uuid.UUID, quantity int32) (*domain.CartView, error)

	// RemoveItem deletes a line. Removing an absent line is a no-op.
	RemoveItem(ctx context.Context, identity domain.Identity, itemID uuid.UUID) (*domain.CartView, error)

	// ClearCart removes every line.
	ClearCart(ctx context.Context, identity domain.Identity) (*domain.CartView, error)

	// MergeCarts absorbs the guest session's cart into the user's cart on
	// login, summing quantities for shared lines, then deletes the guest
	// cart. With no guest cart it degrades to GetCart for the user.
	MergeCarts(ctx context.Context, userID, sessionID uuid.UUID) (*domain.CartView, error)
}

type cartService struct {
	repo    repository.Querier
	events  events.Publisher
	metrics *telemetry.BusinessMetrics
	logger  *slog.Logger

	// anonymousTTL is how long a guest cart lives past its last write.
	anonymousTTL time.Duration
}

// NewCartService creates the cart service. metrics may be nil in tests.
func NewCartService(repo repository.Querier, publisher events.Publisher, metrics *telemetry.BusinessMetrics, logger *slog.Logger, anonymousTTL time.Duration) CartService {
	return &cartService{
		repo:         repo,
		events:       publisher,
		metrics:      metrics,
		logger:       logger,
		anonymousTTL: anonymousTTL,
	}
}

func (s *cartService) GetCart(ctx context.Context, identity domain.Identity) (*domain.CartView, error) {
	return s.mutate(ctx, identity, "cart.get", func(cart *domain.Cart, products map[uuid.UUID]domain.Product) (bool, error) {
		return false, nil
	})
}

func (s *cartService) GetSummary(ctx context.Context, identity domain.Identity) (domain.CartSummary, error) {
	view, err := s.GetCart(ctx, identity)
	if err != nil {
		return domain.CartSummary{}, err
	}
	return view.Summary(), nil
}

func (s *cartService) AddItem(ctx context.Context, identity domain.Identity, productID, variantID uuid.UUID, quantity int32) (*domain.CartView, error) {
	const op = "cart.add_item"

	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if productID == uuid.Nil {
		return nil, domain.Invalid(op, "product id required")
	}

	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrProductNotFound
		}
		return nil, domain.Internal(err, op, "failed to load product")
	}
	if !product.Purchasable() {
		return nil, domain.ErrProductUnavailable
	}

	view, err := s.mutate(ctx, identity, op, func(cart *domain.Cart, products map[uuid.UUID]domain.Product) (bool, error) {
		products[product.ID] = *product

		newQty := quantity
		idx := cart.FindLine(productID, variantID)
		if idx >= 0 {
			newQty += cart.Items[idx].Quantity
		}
		if !product.HasInventoryFor(newQty) {
			return false, domain.InsufficientInventory(op, product.Name, newQty, product.InventoryCount)
		}

		if idx >= 0 {
			cart.Items[idx].Quantity = newQty
		} else {
			cart.Items = append(cart.Items, domain.CartItem{
				ID:        uuid.New(),
				ProductID: productID,
				VariantID: variantID,
				Quantity:  quantity,
				AddedAt:   time.Now().UTC(),
			})
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.countUpdate("add", view)
	return view, nil
}

func (s *cartService) UpdateItem(ctx context.Context, identity domain.Identity, itemID uuid.UUID, quantity int32) (*domain.CartView, error) {
	const op = "cart.update_item"

	if quantity < 0 {
		return nil, domain.ErrInvalidQuantity
	}

	view, err := s.mutate(ctx, identity, op, func(cart *domain.Cart, products map[uuid.UUID]domain.Product) (bool, error) {
		idx := cart.FindItem(itemID)
		if idx < 0 {
			return false, domain.ErrCartItemNotFound
		}

		// Quantity zero means remove, so the storefront's stepper can hit
		// one endpoint all the way down.
		if quantity == 0 {
			cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
			return true, nil
		}

		item := &cart.Items[idx]
		if product, ok := products[item.ProductID]; ok && !product.HasInventoryFor(quantity) {
			return false, domain.InsufficientInventory(op, product.Name, quantity, product.InventoryCount)
		}
		if item.Quantity == quantity {
			return false, nil
		}
		item.Quantity = quantity
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.countUpdate("update", view)
	return view, nil
}

func (s *cartService) RemoveItem(ctx context.Context, identity domain.Identity, itemID uuid.UUID) (*domain.CartView, error) {
	const op = "cart.remove_item"

	view, err := s.mutate(ctx, identity, op, func(cart *domain.Cart, products map[uuid.UUID]domain.Product) (bool, error) {
		idx := cart.FindItem(itemID)
		if idx < 0 {
			// Removing twice is fine; the end state is identical.
			return false, nil
		}
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.countUpdate("remove", view)
	return view, nil
}

func (s *cartService) ClearCart(ctx context.Context, identity domain.Identity) (*domain.CartView, error) {
	const op = "cart.clear"

	view, err := s.mutate(ctx, identity, op, func(cart *domain.Cart, products map[uuid.UUID]domain.Product) (bool, error) {
		if len(cart.Items) == 0 {
			return false, nil
		}
		cart.Items = nil
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.countUpdate("clear", view)
	return view, nil
}

func (s *cartService) MergeCarts(ctx context.Context, userID, sessionID uuid.UUID) (*domain.CartView, error) {
	const op = "cart.merge"

	if userID == uuid.Nil {
		return nil, domain.Invalid(op, "user id required")
	}
	if sessionID == uuid.Nil {
		return nil, domain.Invalid(op, "session id required")
	}

	guest, err := s.repo.GetCartBySessionID(ctx, sessionID)
	if err != nil {
		if isNotFound(err) {
			// Nothing to merge; the user just gets their own cart.
			return s.GetCart(ctx, domain.UserIdentity(userID))
		}
		return nil, domain.Internal(err, op, "failed to load guest cart")
	}

	guestProducts, err := s.loadProducts(ctx, guest, op)
	if err != nil {
		return nil, err
	}
	pruneUnavailable(guest, guestProducts)

	// An empty guest cart (or one emptied by pruning) is a no-op: the guest
	// record stays put and the user simply gets their own cart.
	if len(guest.Items) == 0 {
		return s.GetCart(ctx, domain.UserIdentity(userID))
	}

	view, err := s.mutate(ctx, domain.UserIdentity(userID), op, func(cart *domain.Cart, products map[uuid.UUID]domain.Product) (bool, error) {
		for _, item := range guest.Items {
			products[item.ProductID] = guestProducts[item.ProductID]
			idx := cart.FindLine(item.ProductID, item.VariantID)
			if idx >= 0 {
				cart.Items[idx].Quantity += item.Quantity
				continue
			}
			cart.Items = append(cart.Items, domain.CartItem{
				ID:        uuid.New(),
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Quantity:  item.Quantity,
				AddedAt:   item.AddedAt,
			})
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	// The guest record is gone once its content is absorbed; leaving it
	// behind would merge it again on the next login.
	if err := s.repo.DeleteCart(ctx, guest.ID); err != nil {
		s.logger.Warn("failed to delete merged guest cart",
			slog.String("guest_cart_id", guest.ID.String()),
			slog.String("error", err.Error()))
	}

	if s.metrics != nil {
		s.metrics.CartsMerged.Inc()
	}
	s.publish(ctx, events.SubjectCartMerged, events.CartMergedEvent{
		UserCartID:  view.ID,
		GuestCartID: guest.ID,
		UserID:      userID,
		ItemCount:   view.ItemCount,
		OccurredAt:  time.Now().UTC(),
	})

	return view, nil
}

// mutate is the read-reconcile-apply-write cycle shared by every cart
// operation. It resolves (or lazily creates) the caller's cart, drops lines
// whose product vanished or went inactive, applies fn, recomputes the cached
// totals, and writes the document back conditional on the version it read.
// A version conflict re-runs the whole cycle against fresh state.
//
// fn reports whether it changed the cart; an unchanged cart with nothing
// pruned skips the write entirely.
func (s *cartService) mutate(ctx context.Context, identity domain.Identity, op string, fn func(cart *domain.Cart, products map[uuid.UUID]domain.Product) (bool, error)) (*domain.CartView, error) {
	if !identity.Valid() {
		return nil, domain.ErrInvalidIdentity
	}

	var conflict error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		cart, err := s.findOrCreate(ctx, identity, op)
		if err != nil {
			return nil, err
		}

		products, err := s.loadProducts(ctx, cart, op)
		if err != nil {
			return nil, err
		}
		pruned := pruneUnavailable(cart, products)

		changed, err := fn(cart, products)
		if err != nil {
			return nil, err
		}

		if !changed && pruned == 0 {
			return buildView(cart, products), nil
		}

		cart.Recompute(products)
		updated, err := s.repo.UpdateCart(ctx, cart)
		if isVersionConflict(err) {
			if s.metrics != nil {
				s.metrics.WriteConflicts.Inc()
			}
			conflict = err
			continue
		}
		if err != nil {
			return nil, domain.Internal(err, op, "failed to persist cart")
		}

		if pruned > 0 {
			s.logger.Info("pruned unavailable cart items",
				slog.String("cart_id", updated.ID.String()),
				slog.Int("pruned", pruned))
			if s.metrics != nil {
				s.metrics.ItemsPruned.Add(float64(pruned))
			}
		}

		view := buildView(updated, products)
		s.publish(ctx, events.SubjectCartUpdated, events.CartUpdatedEvent{
			CartID:        updated.ID,
			UserID:        updated.UserID,
			SessionID:     updated.SessionID,
			ItemCount:     updated.ItemCount,
			SubtotalCents: updated.SubtotalCents,
			OccurredAt:    time.Now().UTC(),
		})
		return view, nil
	}

	return nil, domain.WrapError(conflict, domain.ECONFLICT, op, "cart was modified concurrently, please retry")
}

// findOrCreate resolves the identity's cart, creating an empty one on first
// access. A create that loses the unique-owner race falls back to reading
// the winner's cart.
func (s *cartService) findOrCreate(ctx context.Context, identity domain.Identity, op string) (*domain.Cart, error) {
	cart, err := s.lookup(ctx, identity)
	if err == nil {
		return cart, nil
	}
	if !isNotFound(err) {
		return nil, domain.Internal(err, op, "failed to load cart")
	}

	fresh := &domain.Cart{
		ID:        uuid.New(),
		UserID:    identity.UserID,
		SessionID: identity.SessionID,
	}
	if !identity.IsUser() {
		fresh.ExpiresAt = time.Now().UTC().Add(s.anonymousTTL)
	}

	created, err := s.repo.CreateCart(ctx, fresh)
	if err != nil {
		if cart, lookupErr := s.lookup(ctx, identity); lookupErr == nil {
			return cart, nil
		}
		return nil, domain.Internal(err, op, "failed to create cart")
	}

	if s.metrics != nil {
		s.metrics.CartsCreated.Inc()
	}
	return created, nil
}

func (s *cartService) lookup(ctx context.Context, identity domain.Identity) (*domain.Cart, error) {
	if identity.IsUser() {
		return s.repo.GetCartByUserID(ctx, identity.UserID)
	}
	return s.repo.GetCartBySessionID(ctx, identity.SessionID)
}

// loadProducts fetches live product state for every line in the cart.
// Products that no longer exist are simply absent from the map.
func (s *cartService) loadProducts(ctx context.Context, cart *domain.Cart, op string) (map[uuid.UUID]domain.Product, error) {
	products := make(map[uuid.UUID]domain.Product, len(cart.Items))
	if len(cart.Items) == 0 {
		return products, nil
	}

	ids := make([]uuid.UUID, 0, len(cart.Items))
	seen := make(map[uuid.UUID]bool, len(cart.Items))
	for _, item := range cart.Items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}

	rows, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load cart products")
	}
	for _, p := range rows {
		products[p.ID] = p
	}
	return products, nil
}

// pruneUnavailable drops lines whose product was deleted or is no longer
// active. Returns the number of lines removed.
func pruneUnavailable(cart *domain.Cart, products map[uuid.UUID]domain.Product) int {
	kept := cart.Items[:0]
	pruned := 0
	for _, item := range cart.Items {
		p, ok := products[item.ProductID]
		if !ok || !p.Purchasable() {
			pruned++
			continue
		}
		kept = append(kept, item)
	}
	cart.Items = kept
	return pruned
}

// buildView joins the cart document with live product fields for display.
func buildView(cart *domain.Cart, products map[uuid.UUID]domain.Product) *domain.CartView {
	lines := make([]domain.CartLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		p := products[item.ProductID]
		lines = append(lines, domain.CartLine{
			ItemID:             item.ID,
			ProductID:          item.ProductID,
			VariantID:          item.VariantID,
			Name:               p.Name,
			UnitPriceCents:     p.PriceCents,
			ImageURL:           p.ImageURL,
			Quantity:           item.Quantity,
			LineSubtotalCents:  p.PriceCents * item.Quantity,
			TrackInventory:     p.TrackInventory,
			AvailableInventory: p.InventoryCount,
			AddedAt:            item.AddedAt,
		})
	}

	return &domain.CartView{
		Cart:          cart,
		ID:            cart.ID,
		Lines:         lines,
		SubtotalCents: cart.SubtotalCents,
		ItemCount:     cart.ItemCount,
		UpdatedAt:     cart.UpdatedAt,
	}
}

func (s *cartService) countUpdate(operation string, view *domain.CartView) {
	if s.metrics == nil {
		return
	}
	s.metrics.CartUpdates.WithLabelValues(operation).Inc()
	s.metrics.CartValue.Observe(float64(view.SubtotalCents))
}

// publish sends an event without letting broker trouble fail the request.
func (s *cartService) publish(ctx context.Context, subject string, event any) {
	if err := s.events.Publish(ctx, subject, event); err != nil {
		s.logger.Warn("failed to publish event",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}
