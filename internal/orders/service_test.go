package orders

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-pharmacy-store/internal/cart"
	"github.com/ariefcatur/go-pharmacy-store/internal/catalog"
	"github.com/ariefcatur/go-pharmacy-store/internal/identity"
	kafkax "github.com/ariefcatur/go-pharmacy-store/internal/kafka"
	"github.com/ariefcatur/go-pharmacy-store/internal/prescription"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo mirrors the transactional rules of Repo over maps.
type memRepo struct {
	orders map[uuid.UUID]*Order
	stock  map[uuid.UUID]int
	price  map[uuid.UUID]int64
	pr     Pricing
}

func newMemRepo() *memRepo {
	return &memRepo{orders: map[uuid.UUID]*Order{}, stock: map[uuid.UUID]int{}, price: map[uuid.UUID]int64{}, pr: DefaultPricing()}
}

func clone(o *Order) *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	if o.Payment != nil {
		p := *o.Payment
		cp.Payment = &p
	}
	return &cp
}

func (m *memRepo) Place(_ context.Context, o *Order) (*Order, bool, error) {
	for _, ex := range m.orders {
		if ex.ExternalID == o.ExternalID {
			return clone(ex), true, nil
		}
	}
	var short []Shortage
	for i := range o.Items {
		it := &o.Items[i]
		if m.stock[it.ProductID] < it.Quantity {
			short = append(short, Shortage{ProductID: it.ProductID, Requested: it.Quantity, Available: m.stock[it.ProductID]})
		}
		it.UnitPrice = m.price[it.ProductID]
	}
	if len(short) > 0 {
		return nil, false, &InsufficientStockError{Shortages: short}
	}
	for _, it := range o.Items {
		m.stock[it.ProductID] -= it.Quantity
	}
	o.Reprice(m.pr)
	o.Status = StatusPending
	if o.Payment.Method == PaymentCashOnDelivery {
		o.Status = StatusConfirmed
	}
	m.orders[o.ID] = clone(o)
	return clone(o), false, nil
}

func (m *memRepo) Get(_ context.Context, id uuid.UUID) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(o), nil
}

func (m *memRepo) GetByExternalID(_ context.Context, ext string) (*Order, error) {
	for _, o := range m.orders {
		if o.ExternalID == ext {
			return clone(o), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]Order, error) {
	out := []Order{}
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *clone(o))
		}
	}
	return out, nil
}

func (m *memRepo) apply(o *Order, to Status) {
	switch to {
	case StatusCancelled:
		for _, it := range o.Items {
			m.stock[it.ProductID] += it.Quantity
		}
		if o.Payment.Status == PaymentPending {
			o.Payment.Status = PaymentFailed
		}
	case StatusDelivered:
		if o.Payment.Method == PaymentCashOnDelivery && o.Payment.Status == PaymentPending {
			o.Payment.Status = PaymentCompleted
		}
	}
	o.Status = to
}

func (m *memRepo) Transition(_ context.Context, id uuid.UUID, to Status) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !CanTransition(o.Status, to) {
		return nil, ErrInvalidTransition
	}
	if to == StatusProcessing && o.FulfillmentHold {
		return nil, ErrOnHold
	}
	m.apply(o, to)
	return clone(o), nil
}

func (m *memRepo) SettlePayment(_ context.Context, id uuid.UUID, st PaymentStatus, tx string) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if o.Payment.Status != PaymentPending {
		return nil, ErrPaymentSettled
	}
	o.Payment.Status = st
	if tx != "" {
		o.Payment.TransactionID = &tx
	}
	switch {
	case st == PaymentCompleted && o.Status == StatusPending:
		m.apply(o, StatusConfirmed)
	case st == PaymentFailed && CanTransition(o.Status, StatusCancelled):
		m.apply(o, StatusCancelled)
	}
	return clone(o), nil
}

func (m *memRepo) SetFulfillmentHold(_ context.Context, id uuid.UUID, hold bool) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.FulfillmentHold = hold
	return clone(o), nil
}

func (m *memRepo) ListHeldByPrescription(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

type fakeSession struct {
	user    uuid.UUID
	cart    *cart.Cart
	reloads int
}

func (f *fakeSession) UserID() uuid.UUID { return f.user }
func (f *fakeSession) Cart() *cart.Cart  { return f.cart }
func (f *fakeSession) Reload(context.Context) error {
	f.reloads++
	f.cart = &cart.Cart{UserID: f.user}
	return nil
}

type rxStub map[uuid.UUID]*prescription.Prescription

func (r rxStub) Get(_ context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	p, ok := r[id]
	if !ok {
		return nil, prescription.ErrNotFound
	}
	return p, nil
}

type recorder struct{ msgs []kafka.Message }

func (r *recorder) Publish(key, value []byte, headers ...kafka.Header) {
	r.msgs = append(r.msgs, kafka.Message{Key: key, Value: value, Headers: headers})
}

type invalidations struct{ ids []uuid.UUID }

func (i *invalidations) Invalidate(_ context.Context, ids ...uuid.UUID) { i.ids = append(i.ids, ids...) }

type fixture struct {
	repo    *memRepo
	rx      rxStub
	placed  *recorder
	changed *recorder
	stock   *invalidations
	svc     *Service
	user    uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{repo: newMemRepo(), rx: rxStub{}, placed: &recorder{}, changed: &recorder{}, stock: &invalidations{}, user: uuid.New()}
	f.svc = NewService(Deps{
		Repo:          f.repo,
		Gate:          prescription.NewGate(f.rx),
		Placed:        f.placed,
		StatusChanged: f.changed,
		Producer:      "pharmacy-api",
		Stock:         f.stock,
	})
	f.svc.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) product(price int64, stock int, requiresRx bool) catalog.Product {
	p := catalog.Product{ID: uuid.New(), SKU: uuid.NewString()[:8], NameFR: "Produit", Price: price, StockQuantity: stock, RequiresPrescription: requiresRx, IsActive: true}
	f.repo.stock[p.ID] = stock
	f.repo.price[p.ID] = price
	return p
}

func (f *fixture) session(lines ...cart.Line) *fakeSession {
	return &fakeSession{user: f.user, cart: &cart.Cart{UserID: f.user, Lines: lines}}
}

func line(p catalog.Product, qty int) cart.Line {
	return cart.Line{ID: uuid.New(), ProductID: p.ID, Quantity: qty, Product: p}
}

func address() ShippingAddress {
	return ShippingAddress{FirstName: "Awa", LastName: "Ndiaye", Email: "awa@example.com", Phone: "+221770000000", Address: "12 rue X", City: "Dakar"}
}

func input(ext string, m PaymentMethod) CheckoutInput {
	return CheckoutInput{ExternalID: ext, ShippingAddress: address(), PaymentMethod: m}
}

func TestPlaceOrder_ShippingThreshold(t *testing.T) {
	cases := []struct {
		name     string
		price    int64
		shipping int64
		total    int64
	}{
		{"below", 49999, 5000, 54999},
		{"at_threshold", 50000, 0, 50000},
		{"above", 50001, 0, 50001},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			sess := f.session(line(f.product(tc.price, 5, false), 1))

			o, idem, err := f.svc.PlaceOrder(context.Background(), sess, input("ext-"+tc.name, PaymentMobileMoney))
			require.NoError(t, err)
			assert.False(t, idem)
			assert.Equal(t, tc.price, o.Subtotal)
			assert.Equal(t, tc.shipping, o.ShippingAmount)
			assert.Equal(t, tc.total, o.TotalAmount)
			assert.Equal(t, tc.total, o.Payment.Amount)
		})
	}
}

func TestPlaceOrder_Card(t *testing.T) {
	f := newFixture()
	a := f.product(12000, 10, false)
	b := f.product(3000, 10, false)
	sess := f.session(line(a, 2), line(b, 1))

	o, _, err := f.svc.PlaceOrder(context.Background(), sess, input("ext-1", PaymentCinetPay))
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.Payment.Status)
	assert.Equal(t, int64(27000), o.Subtotal)
	assert.Equal(t, int64(32000), o.TotalAmount)
	assert.Equal(t, "CMD-20250301-", o.OrderNumber[:13])
	assert.Equal(t, 8, f.repo.stock[a.ID])
	assert.Equal(t, 1, sess.reloads)
	assert.True(t, sess.Cart().IsEmpty())
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, f.stock.ids)

	require.Len(t, f.placed.msgs, 1)
	env, err := kafkax.DecodeEnvelope(f.placed.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, EventOrderPlaced, env.EventType)
	payload, err := kafkax.UnwrapPayload[OrderPlacedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, o.ID.String(), payload.OrderID)
	assert.Len(t, payload.Items, 2)
}

func TestPlaceOrder_CashOnDeliveryConfirmsImmediately(t *testing.T) {
	f := newFixture()
	sess := f.session(line(f.product(1000, 3, false), 1))

	o, _, err := f.svc.PlaceOrder(context.Background(), sess, input("ext-cod", PaymentCashOnDelivery))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, PaymentPending, o.Payment.Status)
}

func TestPlaceOrder_PriceFrozenAtCheckout(t *testing.T) {
	f := newFixture()
	p := f.product(1000, 3, false)
	f.repo.price[p.ID] = 1500 // price moved after the cart was loaded

	o, _, err := f.svc.PlaceOrder(context.Background(), f.session(line(p, 2)), input("ext-price", PaymentPaystack))
	require.NoError(t, err)
	assert.Equal(t, int64(1500), o.Items[0].UnitPrice)
	assert.Equal(t, int64(3000), o.Items[0].TotalPrice)

	f.repo.price[p.ID] = 9999
	got, err := f.svc.Get(context.Background(), identity.User{ID: f.user}, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), got.Items[0].UnitPrice)
}

func TestPlaceOrder_Refusals(t *testing.T) {
	ctx := context.Background()

	t.Run("anonymous", func(t *testing.T) {
		f := newFixture()
		sess := f.session(line(f.product(1000, 1, false), 1))
		sess.user = uuid.Nil
		_, _, err := f.svc.PlaceOrder(ctx, sess, input("x", PaymentCinetPay))
		assert.ErrorIs(t, err, identity.ErrAuthRequired)
	})

	t.Run("empty_cart", func(t *testing.T) {
		f := newFixture()
		_, _, err := f.svc.PlaceOrder(ctx, f.session(), input("x", PaymentCinetPay))
		assert.ErrorIs(t, err, ErrEmptyCart)
	})

	t.Run("unknown_payment_method", func(t *testing.T) {
		f := newFixture()
		_, _, err := f.svc.PlaceOrder(ctx, f.session(line(f.product(1000, 1, false), 1)), input("x", "bitcoin"))
		assert.ErrorIs(t, err, ErrInvalidPaymentMethod)
	})

	t.Run("bad_address", func(t *testing.T) {
		f := newFixture()
		in := input("x", PaymentCinetPay)
		in.ShippingAddress.Email = "not-an-email"
		_, _, err := f.svc.PlaceOrder(ctx, f.session(line(f.product(1000, 1, false), 1)), in)
		assert.ErrorIs(t, err, ErrInvalidAddress)
	})

	t.Run("prescription_missing", func(t *testing.T) {
		f := newFixture()
		p := f.product(1000, 1, true)
		_, _, err := f.svc.PlaceOrder(ctx, f.session(line(p, 1)), input("x", PaymentCinetPay))
		assert.ErrorIs(t, err, prescription.ErrRequired)
		assert.Equal(t, 1, f.repo.stock[p.ID])
	})

	t.Run("prescription_rejected_after_attach", func(t *testing.T) {
		f := newFixture()
		rx := uuid.New()
		f.rx[rx] = &prescription.Prescription{ID: rx, UserID: f.user, Status: prescription.StatusRejected}
		l := line(f.product(1000, 1, true), 1)
		l.PrescriptionID = &rx
		_, _, err := f.svc.PlaceOrder(ctx, f.session(l), input("x", PaymentCinetPay))
		assert.ErrorIs(t, err, prescription.ErrRejected)
	})

	t.Run("insufficient_stock", func(t *testing.T) {
		f := newFixture()
		a := f.product(1000, 1, false)
		sess := f.session(line(a, 3))
		_, _, err := f.svc.PlaceOrder(ctx, sess, input("x", PaymentCinetPay))
		require.ErrorIs(t, err, ErrInsufficientStock)

		var se *InsufficientStockError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, []Shortage{{ProductID: a.ID, Requested: 3, Available: 1}}, se.Shortages)
		assert.Len(t, sess.Cart().Lines, 1)
		assert.Empty(t, f.placed.msgs)
	})
}

func TestPlaceOrder_PendingPrescriptionAccepted(t *testing.T) {
	f := newFixture()
	rx := uuid.New()
	f.rx[rx] = &prescription.Prescription{ID: rx, UserID: f.user, Status: prescription.StatusPending}
	l := line(f.product(1000, 1, true), 1)
	l.PrescriptionID = &rx

	o, _, err := f.svc.PlaceOrder(context.Background(), f.session(l), input("ext-rx", PaymentMobileMoney))
	require.NoError(t, err)
	require.NotNil(t, o.Items[0].PrescriptionID)
	assert.Equal(t, rx, *o.Items[0].PrescriptionID)
}

func TestPlaceOrder_Idempotent(t *testing.T) {
	f := newFixture()
	p := f.product(1000, 5, false)
	ctx := context.Background()

	first, _, err := f.svc.PlaceOrder(ctx, f.session(line(p, 1)), input("same", PaymentCinetPay))
	require.NoError(t, err)

	again, idem, err := f.svc.PlaceOrder(ctx, f.session(line(p, 1)), input("same", PaymentCinetPay))
	require.NoError(t, err)
	assert.True(t, idem)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 4, f.repo.stock[p.ID])
	assert.Len(t, f.placed.msgs, 1)

	other := f.session(line(p, 1))
	other.user = uuid.New()
	_, _, err = f.svc.PlaceOrder(ctx, other, input("same", PaymentCinetPay))
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p := f.product(1000, 5, false)
	o, _, err := f.svc.PlaceOrder(ctx, f.session(line(p, 2)), input("c", PaymentCinetPay))
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, identity.User{ID: uuid.New()}, o.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := f.svc.Cancel(ctx, identity.User{ID: f.user}, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, PaymentFailed, got.Payment.Status)
	assert.Equal(t, 5, f.repo.stock[p.ID])

	_, err = f.svc.Cancel(ctx, identity.User{ID: f.user}, o.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.Len(t, f.changed.msgs, 1)
	env, err := kafkax.DecodeEnvelope(f.changed.msgs[0].Value)
	require.NoError(t, err)
	var payload StatusChangedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, StatusCancelled, payload.Status)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	staff := identity.User{ID: uuid.New(), Role: identity.RolePharmacist}
	o, _, err := f.svc.PlaceOrder(ctx, f.session(line(f.product(1000, 5, false), 1)), input("u", PaymentCashOnDelivery))
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, identity.User{ID: f.user}, o.ID, StatusProcessing)
	assert.ErrorIs(t, err, identity.ErrForbidden)

	_, err = f.svc.UpdateStatus(ctx, staff, o.ID, StatusDelivered)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	f.repo.orders[o.ID].FulfillmentHold = true
	_, err = f.svc.UpdateStatus(ctx, staff, o.ID, StatusProcessing)
	assert.ErrorIs(t, err, ErrOnHold)
	f.repo.orders[o.ID].FulfillmentHold = false

	for _, to := range []Status{StatusProcessing, StatusShipped, StatusDelivered} {
		_, err = f.svc.UpdateStatus(ctx, staff, o.ID, to)
		require.NoError(t, err, to)
	}
	got, err := f.svc.Get(ctx, staff, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status)
	assert.Equal(t, PaymentCompleted, got.Payment.Status)
}

func TestConfirmPayment(t *testing.T) {
	ctx := context.Background()
	admin := identity.User{ID: uuid.New(), Role: identity.RoleAdmin}

	t.Run("completed_confirms", func(t *testing.T) {
		f := newFixture()
		o, _, err := f.svc.PlaceOrder(ctx, f.session(line(f.product(1000, 5, false), 1)), input("p1", PaymentPaystack))
		require.NoError(t, err)

		got, err := f.svc.ConfirmPayment(ctx, admin, o.ID, "TX-1", true)
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, got.Status)
		assert.Equal(t, PaymentCompleted, got.Payment.Status)
		require.NotNil(t, got.Payment.TransactionID)
		assert.Equal(t, "TX-1", *got.Payment.TransactionID)

		_, err = f.svc.ConfirmPayment(ctx, admin, o.ID, "TX-2", false)
		assert.ErrorIs(t, err, ErrPaymentSettled)
	})

	t.Run("failed_cancels_and_restocks", func(t *testing.T) {
		f := newFixture()
		p := f.product(1000, 5, false)
		o, _, err := f.svc.PlaceOrder(ctx, f.session(line(p, 3)), input("p2", PaymentPaystack))
		require.NoError(t, err)
		require.Equal(t, 2, f.repo.stock[p.ID])

		got, err := f.svc.ConfirmPayment(ctx, admin, o.ID, "", false)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
		assert.Equal(t, PaymentFailed, got.Payment.Status)
		assert.Equal(t, 5, f.repo.stock[p.ID])
	})

	t.Run("customer_forbidden", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.ConfirmPayment(ctx, identity.User{ID: f.user}, uuid.New(), "", true)
		assert.ErrorIs(t, err, identity.ErrForbidden)
	})
}

func TestStatus_WithoutRedisFallsBackToRepo(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	o, _, err := f.svc.PlaceOrder(ctx, f.session(line(f.product(1000, 5, false), 1)), input("s", PaymentMobileMoney))
	require.NoError(t, err)

	v, err := f.svc.Status(ctx, identity.User{ID: f.user}, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, v.Status)
	assert.Equal(t, PaymentPending, v.PaymentStatus)

	_, err = f.svc.Status(ctx, identity.User{ID: uuid.New()}, o.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
