package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-pharmacy-store/internal/cart"
	"github.com/ariefcatur/go-pharmacy-store/internal/identity"
	kafkax "github.com/ariefcatur/go-pharmacy-store/internal/kafka"
	"github.com/ariefcatur/go-pharmacy-store/internal/redisx"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var ErrInvalidAddress = errors.New("invalid shipping address")

// Gate is the attachable prescription check, re-run for every line at checkout.
type Gate interface {
	CheckAttach(ctx context.Context, userID uuid.UUID, requiresPrescription bool, prescriptionID *uuid.UUID) error
}

// StockCache drops cached products whose stock moved.
type StockCache interface {
	Invalidate(ctx context.Context, ids ...uuid.UUID)
}

// CartSession is the part of cart.Session checkout needs.
type CartSession interface {
	UserID() uuid.UUID
	Cart() *cart.Cart
	Reload(ctx context.Context) error
}

type CheckoutInput struct {
	ExternalID      string
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
}

// Deps wires the service. Redis, publishers and Stock may be nil.
type Deps struct {
	Repo          Repository
	Gate          Gate
	Pricing       Pricing
	Redis         *redis.Client
	Placed        kafkax.Publisher
	StatusChanged kafkax.Publisher
	Producer      string
	Stock         StockCache
}

type Service struct {
	Deps
	validate *validator.Validate
	now      func() time.Time
}

func NewService(d Deps) *Service {
	if d.Pricing == (Pricing{}) {
		d.Pricing = DefaultPricing()
	}
	return &Service{Deps: d, validate: validator.New(), now: time.Now}
}

// Quote prices a cart snapshot without writing anything.
func (s *Service) Quote(c *cart.Cart) Quote {
	return s.Pricing.Quote(c.TotalPrice())
}

// PlaceOrder turns the session's cart into an order. Replaying an external id
// returns the stored order with idempotent=true and leaves the cart alone.
func (s *Service) PlaceOrder(ctx context.Context, sess CartSession, in CheckoutInput) (*Order, bool, error) {
	userID := sess.UserID()
	if userID == uuid.Nil {
		return nil, false, identity.ErrAuthRequired
	}
	if !in.PaymentMethod.Valid() {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, in.PaymentMethod)
	}
	if err := s.validate.Struct(in.ShippingAddress); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	if in.ExternalID == "" {
		in.ExternalID = uuid.NewString()
	}

	// fast-path idempotency via Redis, DB tetap jadi kebenaran
	if o, ok := s.replay(ctx, in.ExternalID); ok {
		if o.UserID != userID {
			return nil, false, ErrIdempotencyConflict
		}
		return o, true, nil
	}

	c := sess.Cart()
	if c == nil || c.IsEmpty() {
		return nil, false, ErrEmptyCart
	}
	for _, l := range c.Lines {
		if err := s.Gate.CheckAttach(ctx, userID, l.Product.RequiresPrescription, l.PrescriptionID); err != nil {
			return nil, false, fmt.Errorf("%s: %w", l.Product.SKU, err)
		}
	}

	o := s.build(userID, c, in)
	placed, existed, err := s.Repo.Place(ctx, o)
	if err != nil {
		log.Warn().Err(err).Stringer("user_id", userID).Str("external_id", in.ExternalID).Msg("service: place order failed")
		return nil, false, fmt.Errorf("service: place order: %w", err)
	}
	if existed {
		if placed.UserID != userID {
			return nil, false, ErrIdempotencyConflict
		}
		return placed, true, nil
	}

	if err := sess.Reload(ctx); err != nil {
		log.Warn().Err(err).Stringer("order_id", placed.ID).Msg("service: reload cart after checkout")
	}
	s.invalidateStock(ctx, placed)
	s.cacheStatus(ctx, placed)
	if s.Redis != nil {
		_ = s.Redis.Set(ctx, fmt.Sprintf(redisx.KeyIdemCheckout, placed.ExternalID), placed.ID.String(), redisx.TTLIdempotency).Err()
	}

	key := PartitionKey(placed.ID.String())
	kafkax.Emit(s.Placed, key, kafkax.NewEnvelope(ctx, EventOrderPlaced, s.Producer, placed.ID.String(), placedPayload(placed)))

	log.Info().Stringer("order_id", placed.ID).Str("order_number", placed.OrderNumber).
		Int64("total", placed.TotalAmount).Str("status", string(placed.Status)).Msg("service: order placed")
	return placed, false, nil
}

func (s *Service) build(userID uuid.UUID, c *cart.Cart, in CheckoutInput) *Order {
	id := uuid.New()
	o := &Order{
		ID:              id,
		ExternalID:      in.ExternalID,
		UserID:          userID,
		OrderNumber:     NewOrderNumber(s.now(), id),
		ShippingAddress: in.ShippingAddress,
		Status:          StatusPending,
		Items:           make([]Item, 0, len(c.Lines)),
		Payment:         &Payment{ID: uuid.New(), OrderID: id, Method: in.PaymentMethod, Status: PaymentPending},
	}
	for _, l := range c.Lines {
		o.Items = append(o.Items, Item{
			OrderID:        id,
			ProductID:      l.ProductID,
			ProductName:    l.Product.NameFR,
			PrescriptionID: l.PrescriptionID,
			Quantity:       l.Quantity,
			UnitPrice:      l.Product.Price,
		})
	}
	o.Reprice(s.Pricing)
	return o
}

func (s *Service) replay(ctx context.Context, externalID string) (*Order, bool) {
	if s.Redis == nil {
		return nil, false
	}
	id, err := s.Redis.Get(ctx, fmt.Sprintf(redisx.KeyIdemCheckout, externalID)).Result()
	if err != nil {
		return nil, false
	}
	orderID, err := uuid.Parse(id)
	if err != nil {
		return nil, false
	}
	o, err := s.Repo.Get(ctx, orderID)
	if err != nil {
		return nil, false
	}
	return o, true
}

// Get hides other customers' orders behind ErrNotFound.
func (s *Service) Get(ctx context.Context, u identity.User, id uuid.UUID) (*Order, error) {
	if !u.Authenticated() {
		return nil, identity.ErrAuthRequired
	}
	o, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != u.ID && !u.IsStaff() {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *Service) ListMine(ctx context.Context, u identity.User) ([]Order, error) {
	if !u.Authenticated() {
		return nil, identity.ErrAuthRequired
	}
	return s.Repo.ListByUser(ctx, u.ID)
}

type StatusView struct {
	OrderID       string        `json:"order_id"`
	UserID        string        `json:"user_id"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
}

// Status reads through the Redis status cache.
func (s *Service) Status(ctx context.Context, u identity.User, id uuid.UUID) (StatusView, error) {
	if !u.Authenticated() {
		return StatusView{}, identity.ErrAuthRequired
	}
	var v StatusView
	// 1) coba cache
	if s.Redis != nil {
		if b, err := s.Redis.Get(ctx, fmt.Sprintf(redisx.KeyOrderStatus, id)).Bytes(); err == nil && json.Unmarshal(b, &v) == nil {
			if v.UserID != u.ID.String() && !u.IsStaff() {
				return StatusView{}, ErrNotFound
			}
			return v, nil
		}
	}
	// 2) fallback DB
	o, err := s.Get(ctx, u, id)
	if err != nil {
		return StatusView{}, err
	}
	return s.cacheStatus(ctx, o), nil
}

func (s *Service) cacheStatus(ctx context.Context, o *Order) StatusView {
	v := StatusView{OrderID: o.ID.String(), UserID: o.UserID.String(), Status: o.Status}
	if o.Payment != nil {
		v.PaymentStatus = o.Payment.Status
	}
	if s.Redis != nil {
		b, _ := json.Marshal(v)
		_ = s.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, o.ID), b, redisx.TTLStatusCache).Err()
	}
	return v
}

// Cancel lets the owner cancel a pending or confirmed order. Stock is restored.
func (s *Service) Cancel(ctx context.Context, u identity.User, id uuid.UUID) (*Order, error) {
	o, err := s.Get(ctx, u, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != u.ID {
		return nil, identity.ErrForbidden
	}
	if !o.Cancellable() {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusCancelled)
	}
	return s.transition(ctx, id, StatusCancelled)
}

// UpdateStatus is the back-office move along the status graph.
func (s *Service) UpdateStatus(ctx context.Context, u identity.User, id uuid.UUID, to Status) (*Order, error) {
	if !u.IsStaff() {
		return nil, identity.ErrForbidden
	}
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	return s.transition(ctx, id, to)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status) (*Order, error) {
	o, err := s.Repo.Transition(ctx, id, to)
	if err != nil {
		return nil, err
	}
	s.statusChanged(ctx, o)
	return o, nil
}

// ConfirmPayment records the gateway outcome. A failed payment cancels the
// order and restocks it.
func (s *Service) ConfirmPayment(ctx context.Context, u identity.User, orderID uuid.UUID, transactionID string, ok bool) (*Order, error) {
	if !u.IsStaff() {
		return nil, identity.ErrForbidden
	}
	status := PaymentCompleted
	if !ok {
		status = PaymentFailed
	}
	o, err := s.Repo.SettlePayment(ctx, orderID, status, strings.TrimSpace(transactionID))
	if err != nil {
		return nil, err
	}
	s.statusChanged(ctx, o)
	return o, nil
}

func (s *Service) statusChanged(ctx context.Context, o *Order) {
	if o.Status == StatusCancelled {
		s.invalidateStock(ctx, o)
	}
	v := s.cacheStatus(ctx, o)
	kafkax.Emit(s.StatusChanged, PartitionKey(v.OrderID), kafkax.NewEnvelope(ctx, EventOrderStatusChanged, s.Producer, v.OrderID,
		StatusChangedPayload{OrderID: v.OrderID, Status: v.Status, PaymentStatus: v.PaymentStatus}))
	log.Info().Str("order_id", v.OrderID).Str("status", string(v.Status)).Str("payment_status", string(v.PaymentStatus)).Msg("service: order status changed")
}

func (s *Service) invalidateStock(ctx context.Context, o *Order) {
	if s.Stock == nil {
		return
	}
	ids := make([]uuid.UUID, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.ProductID)
	}
	s.Stock.Invalidate(ctx, ids...)
}
