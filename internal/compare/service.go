// Package compare keeps a short per-user list of products shown side by side.
package compare

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-pharmacy-store/internal/catalog"
	"github.com/ariefcatur/go-pharmacy-store/internal/identity"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const MaxProducts = 4

type ProductLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error)
}

type Service struct {
	store    Store
	products ProductLookup
}

func NewService(store Store, products ProductLookup) *Service {
	return &Service{store: store, products: products}
}

// Add appends an active product and returns the hydrated list.
func (s *Service) Add(ctx context.Context, userID, productID uuid.UUID) ([]catalog.Product, error) {
	if userID == uuid.Nil {
		return nil, identity.ErrAuthRequired
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, catalog.ErrNotFound
	}
	if err := s.store.Add(ctx, userID, productID, MaxProducts); err != nil {
		return nil, err
	}
	return s.List(ctx, userID)
}

func (s *Service) Remove(ctx context.Context, userID, productID uuid.UUID) ([]catalog.Product, error) {
	if userID == uuid.Nil {
		return nil, identity.ErrAuthRequired
	}
	if err := s.store.Remove(ctx, userID, productID); err != nil {
		return nil, err
	}
	return s.List(ctx, userID)
}

func (s *Service) Clear(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return identity.ErrAuthRequired
	}
	return s.store.Clear(ctx, userID)
}

// List returns the products in insertion order. Ids whose product was removed
// from the catalog are dropped from the store.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]catalog.Product, error) {
	if userID == uuid.Nil {
		return nil, identity.ErrAuthRequired
	}
	ids, err := s.store.IDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Product, 0, len(ids))
	for _, id := range ids {
		p, err := s.products.GetByID(ctx, id)
		if errors.Is(err, catalog.ErrNotFound) {
			if rmErr := s.store.Remove(ctx, userID, id); rmErr != nil {
				log.Warn().Err(rmErr).Stringer("product_id", id).Msg("compare: drop stale product")
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("compare: load product: %w", err)
		}
		out = append(out, *p)
	}
	return out, nil
}
