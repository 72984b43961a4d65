package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/go-pharmacy-store/internal/cart"
	"github.com/ariefcatur/go-pharmacy-store/internal/catalog"
	"github.com/ariefcatur/go-pharmacy-store/internal/orders"
	"github.com/ariefcatur/go-pharmacy-store/internal/postgres/pgtest"
	"github.com/ariefcatur/go-pharmacy-store/internal/prescription"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	db       *pgxpool.Pool
	products *catalog.PostgresRepository
	carts    *cart.Service
	repo     *orders.Repo
	svc      *orders.Service
	user     uuid.UUID
}

func setup(t *testing.T) *env {
	db := pgtest.Open(t)
	products := catalog.NewPostgresRepository(db)
	gate := prescription.NewGate(prescription.NewPostgresRepository(db))
	repo := orders.NewRepo(db, orders.DefaultPricing())
	return &env{
		db:       db,
		products: products,
		carts:    cart.NewService(cart.NewPostgresStore(db), products, gate),
		repo:     repo,
		svc:      orders.NewService(orders.Deps{Repo: repo, Gate: gate, Producer: "test"}),
		user:     uuid.New(),
	}
}

func (e *env) product(t *testing.T, sku string, price int64, stock int) *catalog.Product {
	t.Helper()
	p := &catalog.Product{SKU: sku, Slug: sku, NameFR: "Produit " + sku, NameEN: "Product " + sku,
		Price: price, StockQuantity: stock, Type: catalog.TypeOverCounter, IsActive: true}
	require.NoError(t, e.products.Create(context.Background(), p))
	return p
}

func (e *env) session(t *testing.T, adds map[uuid.UUID]int) *cart.Session {
	t.Helper()
	ctx := context.Background()
	s, err := e.carts.Session(ctx, e.user)
	require.NoError(t, err)
	for id, qty := range adds {
		require.NoError(t, s.AddItem(ctx, id, qty, nil))
	}
	return s
}

func (e *env) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, err := e.products.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func checkout(ext string, m orders.PaymentMethod) orders.CheckoutInput {
	return orders.CheckoutInput{ExternalID: ext, PaymentMethod: m, ShippingAddress: orders.ShippingAddress{
		FirstName: "Jean", LastName: "Mbarga", Email: "jean@example.com", Phone: "+237600000000", Address: "Rue 1", City: "Douala",
	}}
}

func TestRepo_PlaceOrderAtomically(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	a := e.product(t, "A1", 20000, 5)
	b := e.product(t, "B2", 7000, 3)

	sess := e.session(t, map[uuid.UUID]int{a.ID: 2, b.ID: 1})
	o, idem, err := e.svc.PlaceOrder(ctx, sess, checkout("ext-1", orders.PaymentCashOnDelivery))
	require.NoError(t, err)
	assert.False(t, idem)

	assert.Equal(t, orders.StatusConfirmed, o.Status)
	assert.Equal(t, int64(47000), o.Subtotal)
	assert.Equal(t, int64(5000), o.ShippingAmount)
	assert.Equal(t, 3, e.stock(t, a.ID))
	assert.Equal(t, 2, e.stock(t, b.ID))
	assert.True(t, sess.Cart().IsEmpty())

	stored, err := e.repo.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	require.NotNil(t, stored.Payment)
	assert.Equal(t, orders.PaymentPending, stored.Payment.Status)
	assert.Equal(t, "Douala", stored.ShippingAddress.City)

	// frozen price survives a catalog price change
	a.Price = 1
	require.NoError(t, e.products.Update(ctx, a))
	stored, err = e.repo.Get(ctx, o.ID)
	require.NoError(t, err)
	for _, it := range stored.Items {
		if it.ProductID == a.ID {
			assert.Equal(t, int64(20000), it.UnitPrice)
			assert.Equal(t, int64(40000), it.TotalPrice)
		}
	}

	replay, idem, err := e.repo.Place(ctx, &orders.Order{ExternalID: "ext-1"})
	require.NoError(t, err)
	assert.True(t, idem)
	assert.Equal(t, o.ID, replay.ID)
}

func TestRepo_ShortageRollsBack(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	a := e.product(t, "A1", 1000, 5)
	b := e.product(t, "B2", 1000, 1)

	sess := e.session(t, map[uuid.UUID]int{a.ID: 2, b.ID: 4})
	_, _, err := e.svc.PlaceOrder(ctx, sess, checkout("ext-2", orders.PaymentMobileMoney))
	require.ErrorIs(t, err, orders.ErrInsufficientStock)

	assert.Equal(t, 5, e.stock(t, a.ID))
	assert.Equal(t, 1, e.stock(t, b.ID))
	require.NoError(t, sess.Reload(ctx))
	assert.Len(t, sess.Cart().Lines, 2)

	list, err := e.repo.ListByUser(ctx, e.user)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRepo_CancelAndSettle(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	a := e.product(t, "A1", 1000, 5)

	o, _, err := e.svc.PlaceOrder(ctx, e.session(t, map[uuid.UUID]int{a.ID: 2}), checkout("ext-3", orders.PaymentPaystack))
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.Status)

	paid, err := e.repo.SettlePayment(ctx, o.ID, orders.PaymentCompleted, "TX-9")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, paid.Status)
	_, err = e.repo.SettlePayment(ctx, o.ID, orders.PaymentFailed, "")
	assert.ErrorIs(t, err, orders.ErrPaymentSettled)

	held, err := e.repo.SetFulfillmentHold(ctx, o.ID, true)
	require.NoError(t, err)
	assert.True(t, held.FulfillmentHold)
	_, err = e.repo.Transition(ctx, o.ID, orders.StatusProcessing)
	assert.ErrorIs(t, err, orders.ErrOnHold)

	cancelled, err := e.repo.Transition(ctx, o.ID, orders.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, cancelled.Status)
	assert.Equal(t, 5, e.stock(t, a.ID))

	_, err = e.repo.Transition(ctx, o.ID, orders.StatusConfirmed)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
}

func TestRepo_ProcessingWaitsForVerifiedPrescription(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	rxRepo := prescription.NewPostgresRepository(e.db)

	p := &catalog.Product{SKU: "RX1", Slug: "rx1", NameFR: "Amoxicilline", NameEN: "Amoxicillin",
		Price: 3500, StockQuantity: 10, Type: catalog.TypePrescription, RequiresPrescription: true, IsActive: true}
	require.NoError(t, e.products.Create(ctx, p))
	rx := &prescription.Prescription{UserID: e.user, DoctorName: "Dr Ndiaye", PrescriptionDate: time.Now().UTC().Truncate(24 * time.Hour),
		FileURL: "prescriptions/rx1.pdf", FileType: prescription.FilePDF, Status: prescription.StatusPending}
	require.NoError(t, rxRepo.Create(ctx, rx))

	sess, err := e.carts.Session(ctx, e.user)
	require.NoError(t, err)
	require.NoError(t, sess.AddItem(ctx, p.ID, 1, &rx.ID))
	o, _, err := e.svc.PlaceOrder(ctx, sess, checkout("ext-rx", orders.PaymentCashOnDelivery))
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, o.Status)
	assert.True(t, o.FulfillmentHold)

	// the stored flag alone does not release the order
	_, err = e.repo.SetFulfillmentHold(ctx, o.ID, false)
	require.NoError(t, err)
	_, err = e.repo.Transition(ctx, o.ID, orders.StatusProcessing)
	require.ErrorIs(t, err, orders.ErrOnHold)

	_, err = rxRepo.UpdateStatus(ctx, rx.ID, prescription.StatusPending, prescription.StatusVerified, nil, uuid.New())
	require.NoError(t, err)
	moved, err := e.repo.Transition(ctx, o.ID, orders.StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, moved.Status)
}
