package wishlist

import (
	"context"
	"strings"

	"github.com/ariefcatur/go-pharmacy-store/internal/identity"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service returns the user's full set of wishlists after every write.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]Wishlist, error) {
	if userID == uuid.Nil {
		return nil, identity.ErrAuthRequired
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, name string, public bool) ([]Wishlist, error) {
	if userID == uuid.Nil {
		return nil, identity.ErrAuthRequired
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return nil, ErrInvalidName
	}
	if err := s.repo.Create(ctx, &Wishlist{UserID: userID, Name: name, IsPublic: public}); err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) ([]Wishlist, error) {
	if userID == uuid.Nil {
		return nil, identity.ErrAuthRequired
	}
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, userID)
}

// Add puts a product on wishlistID, or on the default wishlist when nil.
func (s *Service) Add(ctx context.Context, userID uuid.UUID, wishlistID *uuid.UUID, productID uuid.UUID) ([]Wishlist, error) {
	if userID == uuid.Nil {
		return nil, identity.ErrAuthRequired
	}
	target := uuid.Nil
	if wishlistID != nil {
		target = *wishlistID
	}
	if target == uuid.Nil {
		id, err := s.repo.DefaultID(ctx, userID)
		if err != nil {
			return nil, err
		}
		target = id
	}
	if err := s.repo.AddItem(ctx, userID, target, productID); err != nil {
		log.Debug().Err(err).Stringer("wishlist_id", target).Stringer("product_id", productID).Msg("wishlist: add refused")
		return nil, err
	}
	return s.repo.ListByUser(ctx, userID)
}

// Remove is a no-op when the product is not on the list.
func (s *Service) Remove(ctx context.Context, userID, wishlistID, productID uuid.UUID) ([]Wishlist, error) {
	if userID == uuid.Nil {
		return nil, identity.ErrAuthRequired
	}
	if err := s.repo.RemoveItem(ctx, userID, wishlistID, productID); err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, userID)
}

// Contains is false for anonymous callers.
func (s *Service) Contains(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	if userID == uuid.Nil {
		return false, nil
	}
	return s.repo.Contains(ctx, userID, productID)
}
