package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/vagn/internal/billing"
	"github.com/dukerupert/vagn/internal/domain"
	"github.com/dukerupert/vagn/internal/events"
	"github.com/dukerupert/vagn/internal/repository"
)

type checkoutFixture struct {
	store    *fakeStore
	carts    CartService
	checkout CheckoutService
	provider *billing.MockProvider
}

func newCheckoutFixture() *checkoutFixture {
	store := newFakeStore()
	carts := newTestCartService(store)
	provider := billing.NewMockProvider()
	checkout := NewCheckoutService(carts, store, provider, events.NoopPublisher{}, nil, testLogger())
	return &checkoutFixture{
		store:    store,
		carts:    carts,
		checkout: checkout,
		provider: provider,
	}
}

func (f *checkoutFixture) fillCart(t *testing.T, identity domain.Identity, lines map[uuid.UUID]int32) *domain.CartView {
	t.Helper()
	var view *domain.CartView
	var err error
	for productID, qty := range lines {
		view, err = f.carts.AddItem(context.Background(), identity, productID, uuid.Nil, qty)
		require.NoError(t, err)
	}
	return view
}

func TestValidateCart_EmptyCart(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.checkout.ValidateCart(context.Background(), domain.UserIdentity(uuid.New()))
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
}

func TestValidateCart_OK(t *testing.T) {
	f := newCheckoutFixture()
	identity := domain.UserIdentity(uuid.New())
	coffee := f.store.addProduct(activeProduct("Coffee", 1500, 10))
	tea := f.store.addProduct(activeProduct("Tea", 900, 10))
	f.fillCart(t, identity, map[uuid.UUID]int32{coffee.ID: 2, tea.ID: 1})

	summary, err := f.checkout.ValidateCart(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, int32(3), summary.Summary.TotalItems)
	assert.Equal(t, int32(2*1500+900), summary.Summary.SubtotalCents)
	assert.Equal(t, 2, summary.Summary.LineCount)
}

func TestValidateCart_CollectsEveryViolation(t *testing.T) {
	f := newCheckoutFixture()
	identity := domain.UserIdentity(uuid.New())
	coffee := f.store.addProduct(activeProduct("Coffee", 1500, 10))
	tea := f.store.addProduct(activeProduct("Tea", 900, 10))
	f.fillCart(t, identity, map[uuid.UUID]int32{coffee.ID: 5, tea.ID: 4})

	// Stock drained after the items were added.
	f.store.mu.Lock()
	f.store.products[coffee.ID].InventoryCount = 1
	f.store.products[tea.ID].InventoryCount = 0
	f.store.mu.Unlock()

	_, err := f.checkout.ValidateCart(context.Background(), identity)
	require.Error(t, err)
	require.True(t, domain.IsCartValidationError(err))

	reasons := domain.ValidationReasons(err)
	assert.Len(t, reasons, 2, "validation must report every failing line, not just the first")
}

func TestValidateCart_BackorderablePassesWithoutStock(t *testing.T) {
	f := newCheckoutFixture()
	identity := domain.UserIdentity(uuid.New())

	preorder := f.store.addProduct(domain.Product{
		ID: uuid.New(), Name: "Preorder Roast", PriceCents: 2000,
		Status: domain.ProductStatusActive, TrackInventory: true, AllowBackorder: true,
	})
	f.fillCart(t, identity, map[uuid.UUID]int32{preorder.ID: 3})

	_, err := f.checkout.ValidateCart(context.Background(), identity)
	assert.NoError(t, err)
}

func TestReserveInventory_DecrementsOnlyTrackedStock(t *testing.T) {
	f := newCheckoutFixture()
	identity := domain.UserIdentity(uuid.New())
	coffee := f.store.addProduct(activeProduct("Coffee", 1500, 10))
	giftCard := f.store.addProduct(domain.Product{
		ID: uuid.New(), Name: "Gift Card", PriceCents: 2500,
		Status: domain.ProductStatusActive, TrackInventory: false,
	})
	view := f.fillCart(t, identity, map[uuid.UUID]int32{coffee.ID: 4, giftCard.ID: 2})

	reservations, err := f.checkout.ReserveInventory(context.Background(), view.Cart)
	require.NoError(t, err)

	require.Len(t, reservations, 1, "untracked products hold no stock")
	assert.Equal(t, coffee.ID, reservations[0].ProductID)
	assert.Equal(t, int32(4), reservations[0].Quantity)
	assert.Equal(t, int32(6), f.store.inventory(coffee.ID))
}

func TestReserveInventory_AllOrNothing(t *testing.T) {
	f := newCheckoutFixture()
	identity := domain.UserIdentity(uuid.New())
	coffee := f.store.addProduct(activeProduct("Coffee", 1500, 10))
	tea := f.store.addProduct(activeProduct("Tea", 900, 10))
	view := f.fillCart(t, identity, map[uuid.UUID]int32{coffee.ID: 4, tea.ID: 2})

	// Tea sells out between validation and reservation.
	f.store.mu.Lock()
	f.store.products[tea.ID].InventoryCount = 1
	f.store.mu.Unlock()

	_, err := f.checkout.ReserveInventory(context.Background(), view.Cart)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)

	// Net effect of the failed reservation must be zero.
	assert.Equal(t, int32(10), f.store.inventory(coffee.ID))
	assert.Equal(t, int32(1), f.store.inventory(tea.ID))
}

func TestReserveInventory_RollsBackInReverseOrder(t *testing.T) {
	f := newCheckoutFixture()
	identity := domain.UserIdentity(uuid.New())

	// Three tracked products; the third has no stock so the first two get
	// decremented and must be rolled back last-first.
	a := f.store.addProduct(activeProduct("A", 100, 10))
	b := f.store.addProduct(activeProduct("B", 100, 10))
	c := f.store.addProduct(activeProduct("C", 100, 10))

	_, err := f.carts.AddItem(context.Background(), identity, a.ID, uuid.Nil, 1)
	require.NoError(t, err)
	_, err = f.carts.AddItem(context.Background(), identity, b.ID, uuid.Nil, 1)
	require.NoError(t, err)
	view, err := f.carts.AddItem(context.Background(), identity, c.ID, uuid.Nil, 1)
	require.NoError(t, err)

	f.store.mu.Lock()
	f.store.products[c.ID].InventoryCount = 0
	f.store.mu.Unlock()

	_, err = f.checkout.ReserveInventory(context.Background(), view.Cart)
	require.Error(t, err)

	require.Equal(t, []uuid.UUID{a.ID, b.ID}, f.store.decrements)
	assert.Equal(t, []uuid.UUID{b.ID, a.ID}, f.store.increments, "rollback must run in reverse order")
}

func TestReleaseInventory_BestEffort(t *testing.T) {
	f := newCheckoutFixture()
	a := f.store.addProduct(activeProduct("A", 100, 5))
	b := f.store.addProduct(activeProduct("B", 100, 5))

	// Releasing A fails; B must still be handed back and the call must not
	// report an error.
	f.store.incrementErrs[a.ID] = repository.ErrNotFound

	err := f.checkout.ReleaseInventory(context.Background(), uuid.New(), []domain.Reservation{
		{ProductID: a.ID, Quantity: 2},
		{ProductID: b.ID, Quantity: 3},
	})
	assert.NoError(t, err)
	assert.Equal(t, int32(8), f.store.inventory(b.ID))
	assert.Equal(t, int32(5), f.store.inventory(a.ID))
}

func TestCreatePaymentIntent(t *testing.T) {
	f := newCheckoutFixture()
	identity := domain.UserIdentity(uuid.New())
	coffee := f.store.addProduct(activeProduct("Coffee", 1500, 10))
	view := f.fillCart(t, identity, map[uuid.UUID]int32{coffee.ID: 2})

	intent, err := f.checkout.CreatePaymentIntent(context.Background(), identity, "jo@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, intent.PaymentIntentID)
	assert.NotEmpty(t, intent.ClientSecret)
	assert.Equal(t, int64(3000), intent.AmountCents)
	assert.Equal(t, int32(6), f.store.inventory(coffee.ID), "stock must be reserved")

	// The metadata must round-trip to the cart and its reservations.
	pi, err := f.provider.GetPaymentIntent(context.Background(), intent.PaymentIntentID)
	require.NoError(t, err)
	cartID, reservations, err := DecodeReservationMetadata(pi.Metadata)
	require.NoError(t, err)
	assert.Equal(t, view.ID, cartID)
	require.Len(t, reservations, 1)
	assert.Equal(t, coffee.ID, reservations[0].ProductID)
	assert.Equal(t, int32(2), reservations[0].Quantity)
}

func TestCreatePaymentIntent_GatewayFailureReleasesStock(t *testing.T) {
	f := newCheckoutFixture()
	identity := domain.UserIdentity(uuid.New())
	coffee := f.store.addProduct(activeProduct("Coffee", 1500, 10))
	f.fillCart(t, identity, map[uuid.UUID]int32{coffee.ID: 2})

	f.provider.CreateErr = assert.AnError

	_, err := f.checkout.CreatePaymentIntent(context.Background(), identity, "")
	require.Error(t, err)
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
	assert.Equal(t, int32(10), f.store.inventory(coffee.ID), "reservation must be released on gateway failure")
}

func TestCreatePaymentIntent_InvalidCartNeverReserves(t *testing.T) {
	f := newCheckoutFixture()
	identity := domain.UserIdentity(uuid.New())
	coffee := f.store.addProduct(activeProduct("Coffee", 1500, 3))
	f.fillCart(t, identity, map[uuid.UUID]int32{coffee.ID: 3})

	f.store.mu.Lock()
	f.store.products[coffee.ID].InventoryCount = 1
	f.store.mu.Unlock()

	_, err := f.checkout.CreatePaymentIntent(context.Background(), identity, "")
	require.True(t, domain.IsCartValidationError(err))
	assert.Empty(t, f.store.decrements, "validation failure must not touch inventory")
}

func TestCompleteCheckout_ConsumesCart(t *testing.T) {
	f := newCheckoutFixture()
	identity := domain.UserIdentity(uuid.New())
	coffee := f.store.addProduct(activeProduct("Coffee", 1500, 10))
	view := f.fillCart(t, identity, map[uuid.UUID]int32{coffee.ID: 2})

	err := f.checkout.CompleteCheckout(context.Background(), view.ID, "pi_123", 3000)
	require.NoError(t, err)
	assert.Nil(t, f.store.storedCart(view.ID))

	// The owner lazily gets a fresh empty cart afterwards.
	fresh, err := f.carts.GetCart(context.Background(), identity)
	require.NoError(t, err)
	assert.NotEqual(t, view.ID, fresh.ID)
	assert.Empty(t, fresh.Lines)
}

func TestDecodeReservationMetadata_Invalid(t *testing.T) {
	_, _, err := DecodeReservationMetadata(map[string]string{})
	assert.Error(t, err)

	_, _, err = DecodeReservationMetadata(map[string]string{
		metadataCartID:       uuid.New().String(),
		metadataReservations: "{not json",
	})
	assert.Error(t, err)

	cartID, reservations, err := DecodeReservationMetadata(map[string]string{
		metadataCartID: uuid.New().String(),
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, cartID)
	assert.Nil(t, reservations)
}
