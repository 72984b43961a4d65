package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-pharmacy-store/internal/catalog"
	"github.com/ariefcatur/go-pharmacy-store/internal/identity"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ProductLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error)
}

type PrescriptionGate interface {
	CheckAttach(ctx context.Context, userID uuid.UUID, requiresPrescription bool, prescriptionID *uuid.UUID) error
}

// Service builds per-user cart sessions. It holds no cart state itself.
type Service struct {
	store    Store
	products ProductLookup
	gate     PrescriptionGate
}

func NewService(store Store, products ProductLookup, gate PrescriptionGate) *Service {
	return &Service{store: store, products: products, gate: gate}
}

// Session loads the cart of userID. Anonymous callers get ErrAuthRequired.
func (s *Service) Session(ctx context.Context, userID uuid.UUID) (*Session, error) {
	if userID == uuid.Nil {
		return nil, identity.ErrAuthRequired
	}
	c, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("cart: load: %w", err)
	}
	return &Session{svc: s, userID: userID, cart: c}, nil
}

// Session is the cart of one user for the lifetime of one request. It is not
// safe for concurrent use.
type Session struct {
	svc    *Service
	userID uuid.UUID
	cart   *Cart
}

func (s *Session) UserID() uuid.UUID { return s.userID }

// Cart is the snapshot as of the last successful read or write.
func (s *Session) Cart() *Cart { return s.cart }

func (s *Session) TotalItems() int { return s.cart.TotalItems() }

func (s *Session) TotalPrice() int64 { return s.cart.TotalPrice() }

// AddItem adds qty of a product. A repeat add accumulates onto the existing
// line; prescription-only products need an attachable prescription, either
// given here or already on the line.
func (s *Session) AddItem(ctx context.Context, productID uuid.UUID, qty int, prescriptionID *uuid.UUID) error {
	return s.addItem(ctx, productID, qty, prescriptionID, false)
}

func (s *Session) addItem(ctx context.Context, productID uuid.UUID, qty int, prescriptionID *uuid.UUID, reloaded bool) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	p, err := s.svc.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrProductUnavailable, productID)
		}
		return fmt.Errorf("cart: get product: %w", err)
	}
	if !p.IsActive {
		return fmt.Errorf("%w: %s", ErrProductUnavailable, productID)
	}

	existing, found := s.cart.Find(productID)
	effective := prescriptionID
	if effective == nil && found {
		effective = existing.PrescriptionID
	}
	if err := s.svc.gate.CheckAttach(ctx, s.userID, p.RequiresPrescription, effective); err != nil {
		return err
	}

	if found {
		err := s.apply("add item", func() (*Cart, error) {
			return s.svc.store.SetQuantity(ctx, s.userID, productID, existing.Quantity+qty, prescriptionID)
		})
		if errors.Is(err, ErrLineNotFound) && !reloaded {
			// snapshot basi, mis. checkout di tab lain sudah mengosongkan cart
			if err := s.Reload(ctx); err != nil {
				return err
			}
			return s.addItem(ctx, productID, qty, prescriptionID, true)
		}
		return err
	}
	return s.apply("add item", func() (*Cart, error) {
		return s.svc.store.Insert(ctx, s.userID, productID, qty, prescriptionID)
	})
}

// SetQuantity overwrites the line quantity; qty <= 0 removes the line. A
// product that is not in the cart is ErrLineNotFound.
// Quantities above stock are accepted here and enforced at checkout.
func (s *Session) SetQuantity(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return s.RemoveItem(ctx, productID)
	}
	return s.apply("set quantity", func() (*Cart, error) {
		return s.svc.store.SetQuantity(ctx, s.userID, productID, qty, nil)
	})
}

// RemoveItem is a no-op when the product is not in the cart.
func (s *Session) RemoveItem(ctx context.Context, productID uuid.UUID) error {
	return s.apply("remove item", func() (*Cart, error) {
		return s.svc.store.Remove(ctx, s.userID, productID)
	})
}

func (s *Session) Clear(ctx context.Context) error {
	return s.apply("clear", func() (*Cart, error) {
		return s.svc.store.Clear(ctx, s.userID)
	})
}

// Reload re-reads the cart, e.g. after checkout emptied it in the database.
func (s *Session) Reload(ctx context.Context) error {
	return s.apply("reload", func() (*Cart, error) {
		return s.svc.store.Load(ctx, s.userID)
	})
}

// apply swaps in the fresh cart only when the write succeeded.
func (s *Session) apply(op string, write func() (*Cart, error)) error {
	c, err := write()
	if err != nil {
		log.Error().Err(err).Stringer("user_id", s.userID).Str("op", op).Msg("cart: write failed")
		return fmt.Errorf("cart: %s: %w", op, err)
	}
	s.cart = c
	return nil
}
