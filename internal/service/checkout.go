package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/vagn/internal/billing"
	"github.com/dukerupert/vagn/internal/domain"
	"github.com/dukerupert/vagn/internal/events"
	"github.com/dukerupert/vagn/internal/repository"
	"github.com/dukerupert/vagn/internal/telemetry"
)

// Payment-intent metadata keys. The cart id and the serialized reservation
// list ride on the intent so the webhook can commit or release inventory
// without any local checkout state.
const (
	metadataCartID       = "cart_id"
	metadataReservations = "reservations"
)

// CheckoutService validates carts against live product state and runs the
// inventory reservation protocol around payment.
type CheckoutService interface {
	// ValidateCart re-checks every line against live product state and
	// collects all violations rather than stopping at the first, so the
	// customer can fix their whole cart in one pass. A clean cart returns
	// the summary shown on the payment page.
	ValidateCart(ctx context.Context, identity domain.Identity) (*domain.CheckoutSummary, error)

	// ReserveInventory decrements stock for every tracked line, all or
	// nothing. On any failure the decrements already applied are rolled
	// back in reverse order and the cart is untouched.
	ReserveInventory(ctx context.Context, cart *domain.Cart) ([]domain.Reservation, error)

	// ReleaseInventory hands reservations back after a failed or abandoned
	// payment. Best effort: individual failures are logged and counted,
	// never propagated, so one bad row cannot strand the rest.
	ReleaseInventory(ctx context.Context, cartID uuid.UUID, reservations []domain.Reservation) error

	// CreatePaymentIntent validates the cart, reserves inventory, and
	// creates a payment intent carrying the reservation state in its
	// metadata. If the gateway call fails the reservation is released.
	CreatePaymentIntent(ctx context.Context, identity domain.Identity, customerEmail string) (*CheckoutIntent, error)

	// CompleteCheckout finalizes a paid checkout: the reservation becomes
	// permanent and the cart is consumed.
	CompleteCheckout(ctx context.Context, cartID uuid.UUID, paymentIntentID string, amountCents int64) error
}

// CheckoutIntent is what the frontend needs to confirm payment.
type CheckoutIntent struct {
	PaymentIntentID string             `json:"payment_intent_id"`
	ClientSecret    string             `json:"client_secret"`
	AmountCents     int64              `json:"amount_cents"`
	Currency        string             `json:"currency"`
	Summary         domain.CartSummary `json:"summary"`
}

type checkoutService struct {
	carts   CartService
	repo    repository.Querier
	billing billing.Provider
	events  events.Publisher
	metrics *telemetry.BusinessMetrics
	logger  *slog.Logger
}

// NewCheckoutService creates the checkout service. metrics may be nil in tests.
func NewCheckoutService(carts CartService, repo repository.Querier, provider billing.Provider, publisher events.Publisher, metrics *telemetry.BusinessMetrics, logger *slog.Logger) CheckoutService {
	return &checkoutService{
		carts:   carts,
		repo:    repo,
		billing: provider,
		events:  publisher,
		metrics: metrics,
		logger:  logger,
	}
}

func (s *checkoutService) ValidateCart(ctx context.Context, identity domain.Identity) (*domain.CheckoutSummary, error) {
	const op = "checkout.validate"

	// GetCart already prunes vanished and inactive products, so what's left
	// to catch here is stock and the races since that read.
	view, err := s.carts.GetCart(ctx, identity)
	if err != nil {
		return nil, err
	}
	if len(view.Lines) == 0 {
		return nil, domain.WrapError(domain.ErrEmptyCart, domain.EINVALID, op, "Cart is empty")
	}

	products, err := s.loadProducts(ctx, view.Cart, op)
	if err != nil {
		return nil, err
	}

	var reasons []string
	for _, item := range view.Cart.Items {
		product, ok := products[item.ProductID]
		if !ok {
			reasons = append(reasons, fmt.Sprintf("%s is no longer available", lineName(view, item.ID)))
			continue
		}
		if !product.Purchasable() {
			reasons = append(reasons, fmt.Sprintf("%s is no longer available for purchase", product.Name))
			continue
		}
		if !product.HasInventoryFor(item.Quantity) {
			reasons = append(reasons, fmt.Sprintf("only %d of %s available, %d requested",
				product.InventoryCount, product.Name, item.Quantity))
		}
	}

	if len(reasons) > 0 {
		if s.metrics != nil {
			s.metrics.ValidationFailed.Inc()
		}
		return nil, domain.NewCartValidationError(op, reasons)
	}

	return &domain.CheckoutSummary{
		Cart:    view,
		Summary: view.Summary(),
	}, nil
}

func (s *checkoutService) ReserveInventory(ctx context.Context, cart *domain.Cart) ([]domain.Reservation, error) {
	const op = "checkout.reserve"

	if len(cart.Items) == 0 {
		return nil, domain.WrapError(domain.ErrEmptyCart, domain.EINVALID, op, "Cart is empty")
	}

	products, err := s.loadProducts(ctx, cart, op)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ReservationsStarted.Inc()
	}

	reserved := make([]domain.Reservation, 0, len(cart.Items))
	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok || !product.Purchasable() {
			s.rollback(ctx, op, reserved)
			return nil, domain.ErrProductUnavailable
		}
		// Untracked and backorderable products never hold stock.
		if !product.TrackInventory || product.AllowBackorder {
			continue
		}

		if _, err := s.repo.DecrementInventory(ctx, item.ProductID, item.Quantity); err != nil {
			s.rollback(ctx, op, reserved)
			if isInsufficientInventory(err) {
				if s.metrics != nil {
					s.metrics.ReservationsFailed.Inc()
				}
				return nil, domain.InsufficientInventory(op, product.Name, item.Quantity, s.currentInventory(ctx, item.ProductID, product))
			}
			return nil, domain.Internal(err, op, "failed to reserve inventory")
		}
		reserved = append(reserved, domain.Reservation{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	s.publish(ctx, events.SubjectInventoryReserved, events.ReservationEvent{
		CartID:       cart.ID,
		Reservations: reserved,
		OccurredAt:   time.Now().UTC(),
	})
	return reserved, nil
}

func (s *checkoutService) ReleaseInventory(ctx context.Context, cartID uuid.UUID, reservations []domain.Reservation) error {
	const op = "checkout.release"

	for _, r := range reservations {
		if _, err := s.repo.IncrementInventory(ctx, r.ProductID, r.Quantity); err != nil {
			// Keep going: the other reservations can still be handed back.
			// What failed here is stock the shop now undersells until an
			// operator reconciles it, so it has its own counter.
			s.logger.Error("failed to release reserved inventory",
				slog.String("op", op),
				slog.String("product_id", r.ProductID.String()),
				slog.Int("quantity", int(r.Quantity)),
				slog.String("error", err.Error()))
			if s.metrics != nil {
				s.metrics.ReleaseFailures.Inc()
			}
		}
	}

	s.publish(ctx, events.SubjectInventoryReleased, events.ReservationEvent{
		CartID:       cartID,
		Reservations: reservations,
		OccurredAt:   time.Now().UTC(),
	})
	return nil
}

func (s *checkoutService) CreatePaymentIntent(ctx context.Context, identity domain.Identity, customerEmail string) (*CheckoutIntent, error) {
	const op = "checkout.create_payment_intent"

	summary, err := s.ValidateCart(ctx, identity)
	if err != nil {
		return nil, err
	}
	cart := summary.Cart.Cart

	reservations, err := s.ReserveInventory(ctx, cart)
	if err != nil {
		return nil, err
	}

	metadata, err := encodeReservationMetadata(cart.ID, reservations)
	if err != nil {
		s.release(ctx, cart.ID, reservations)
		return nil, domain.Internal(err, op, "failed to encode reservation metadata")
	}

	intent, err := s.billing.CreatePaymentIntent(ctx, billing.CreatePaymentIntentParams{
		AmountCents:   int64(summary.Summary.SubtotalCents),
		Currency:      "usd",
		CustomerEmail: customerEmail,
		// One intent per cart version: retrying the same unchanged cart
		// reuses the intent instead of minting a new one.
		IdempotencyKey: fmt.Sprintf("cart-%s-v%d", cart.ID, cart.Version),
		Metadata:       metadata,
	})
	if err != nil {
		s.release(ctx, cart.ID, reservations)
		return nil, domain.WrapError(err, domain.EPAYMENT, op, "Payment could not be initiated")
	}

	s.logger.Info("payment intent created",
		slog.String("cart_id", cart.ID.String()),
		slog.String("payment_intent_id", intent.ID),
		slog.Int64("amount_cents", intent.AmountCents))

	return &CheckoutIntent{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		AmountCents:     intent.AmountCents,
		Currency:        intent.Currency,
		Summary:         summary.Summary,
	}, nil
}

func (s *checkoutService) CompleteCheckout(ctx context.Context, cartID uuid.UUID, paymentIntentID string, amountCents int64) error {
	const op = "checkout.complete"

	// The decrement already happened at reservation time; completion just
	// consumes the cart. The owner lazily gets a fresh one on next access.
	if err := s.repo.DeleteCart(ctx, cartID); err != nil {
		return domain.Internal(err, op, "failed to consume cart")
	}

	s.publish(ctx, events.SubjectCheckoutCompleted, events.CheckoutCompletedEvent{
		CartID:          cartID,
		PaymentIntentID: paymentIntentID,
		AmountCents:     amountCents,
		OccurredAt:      time.Now().UTC(),
	})

	s.logger.Info("checkout completed",
		slog.String("cart_id", cartID.String()),
		slog.String("payment_intent_id", paymentIntentID))
	return nil
}

// rollback undoes a partial reservation in reverse order so the net effect
// of a failed reserve is zero.
func (s *checkoutService) rollback(ctx context.Context, op string, reserved []domain.Reservation) {
	if len(reserved) == 0 {
		return
	}
	if s.metrics != nil {
		s.metrics.ReservationsRolledBack.Inc()
	}
	for i := len(reserved) - 1; i >= 0; i-- {
		r := reserved[i]
		if _, err := s.repo.IncrementInventory(ctx, r.ProductID, r.Quantity); err != nil {
			s.logger.Error("failed to roll back reservation",
				slog.String("op", op),
				slog.String("product_id", r.ProductID.String()),
				slog.Int("quantity", int(r.Quantity)),
				slog.String("error", err.Error()))
			if s.metrics != nil {
				s.metrics.ReleaseFailures.Inc()
			}
		}
	}
}

func (s *checkoutService) release(ctx context.Context, cartID uuid.UUID, reservations []domain.Reservation) {
	if err := s.ReleaseInventory(ctx, cartID, reservations); err != nil {
		s.logger.Error("failed to release reservations",
			slog.String("cart_id", cartID.String()),
			slog.String("error", err.Error()))
	}
}

func (s *checkoutService) loadProducts(ctx context.Context, cart *domain.Cart, op string) (map[uuid.UUID]domain.Product, error) {
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

	products := make(map[uuid.UUID]domain.Product, len(rows))
	for _, p := range rows {
		products[p.ID] = p
	}
	return products, nil
}

// currentInventory re-reads a product's stock for the error message; falls
// back to the stale read when the lookup fails.
func (s *checkoutService) currentInventory(ctx context.Context, productID uuid.UUID, stale domain.Product) int32 {
	if p, err := s.repo.GetProductByID(ctx, productID); err == nil {
		return p.InventoryCount
	}
	return stale.InventoryCount
}

func (s *checkoutService) publish(ctx context.Context, subject string, event any) {
	if err := s.events.Publish(ctx, subject, event); err != nil {
		s.logger.Warn("failed to publish event",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}

func lineName(view *domain.CartView, itemID uuid.UUID) string {
	for _, line := range view.Lines {
		if line.ItemID == itemID && line.Name != "" {
			return line.Name
		}
	}
	return "an item in your cart"
}

// encodeReservationMetadata serializes the checkout state onto the payment
// intent. The webhook decodes it to commit or release without local state.
func encodeReservationMetadata(cartID uuid.UUID, reservations []domain.Reservation) (map[string]string, error) {
	encoded, err := json.Marshal(reservations)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		metadataCartID:       cartID.String(),
		metadataReservations: string(encoded),
	}, nil
}

// DecodeReservationMetadata is the inverse of the encoding done at intent
// creation; used by the webhook handler.
func DecodeReservationMetadata(metadata map[string]string) (uuid.UUID, []domain.Reservation, error) {
	cartID, err := uuid.Parse(metadata[metadataCartID])
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("invalid cart_id in metadata: %w", err)
	}

	var reservations []domain.Reservation
	if raw := metadata[metadataReservations]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &reservations); err != nil {
			return uuid.Nil, nil, fmt.Errorf("invalid reservations in metadata: %w", err)
		}
	}
	return cartID, reservations, nil
}
