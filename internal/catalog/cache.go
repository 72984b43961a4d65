package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-pharmacy-store/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const notFoundMarker = "notfound"

// CachedRepository is a read-through Redis cache in front of single-product
// lookups. Lists and sku resolution always hit the database so stock is fresh.
type CachedRepository struct {
	Repository
	redis *redis.Client
	ttl   time.Duration
}

func NewCachedRepository(real Repository, rdb *redis.Client) *CachedRepository {
	return &CachedRepository{Repository: real, redis: rdb, ttl: redisx.TTLProduct}
}

func (c *CachedRepository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	return c.cached(ctx, fmt.Sprintf(redisx.KeyProduct, id), func() (*Product, error) {
		return c.Repository.GetByID(ctx, id)
	})
}

func (c *CachedRepository) GetBySlug(ctx context.Context, slug string) (*Product, error) {
	return c.cached(ctx, fmt.Sprintf(redisx.KeyProductSlug, slug), func() (*Product, error) {
		return c.Repository.GetBySlug(ctx, slug)
	})
}

func (c *CachedRepository) cached(ctx context.Context, key string, load func() (*Product, error)) (*Product, error) {
	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if string(data) == notFoundMarker {
			return nil, ErrNotFound
		}
		var p Product
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		log.Warn().Err(err).Str("key", key).Msg("cache: bad product payload, falling back to db")
	case errors.Is(err, redis.Nil):
	default:
		log.Warn().Err(err).Str("key", key).Msg("cache: redis get failed, falling back to db")
	}

	p, err := load()
	if errors.Is(err, ErrNotFound) {
		if setErr := c.redis.Set(ctx, key, notFoundMarker, redisx.TTLNotFound).Err(); setErr != nil {
			log.Warn().Err(setErr).Str("key", key).Msg("cache: store notfound marker")
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(p); err == nil {
		if err := c.redis.Set(ctx, key, b, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache: store product")
		}
	}
	return p, nil
}

func (c *CachedRepository) invalidate(ctx context.Context, id uuid.UUID, slugs ...string) {
	keys := []string{fmt.Sprintf(redisx.KeyProduct, id)}
	for _, s := range slugs {
		if s != "" {
			keys = append(keys, fmt.Sprintf(redisx.KeyProductSlug, s))
		}
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("cache: invalidate product")
	}
}

func (c *CachedRepository) Create(ctx context.Context, p *Product) error {
	if err := c.Repository.Create(ctx, p); err != nil {
		return err
	}
	// a notfound marker may exist for the new slug
	c.invalidate(ctx, p.ID, p.Slug)
	return nil
}

func (c *CachedRepository) Update(ctx context.Context, p *Product) error {
	var oldSlug string
	if old, err := c.Repository.GetByID(ctx, p.ID); err == nil {
		oldSlug = old.Slug
	}
	if err := c.Repository.Update(ctx, p); err != nil {
		return err
	}
	c.invalidate(ctx, p.ID, oldSlug, p.Slug)
	return nil
}

func (c *CachedRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := c.Repository.SetActive(ctx, id, active); err != nil {
		return err
	}
	c.invalidateByID(ctx, id)
	return nil
}

func (c *CachedRepository) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*Product, error) {
	p, err := c.Repository.AdjustStock(ctx, id, delta)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, id, p.Slug)
	return p, nil
}

// Invalidate drops cached entries for products whose stock changed elsewhere,
// e.g. at checkout or cancellation.
func (c *CachedRepository) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	for _, id := range ids {
		c.invalidateByID(ctx, id)
	}
}

func (c *CachedRepository) invalidateByID(ctx context.Context, id uuid.UUID) {
	var slug string
	if p, err := c.Repository.GetByID(ctx, id); err == nil {
		slug = p.Slug
	}
	c.invalidate(ctx, id, slug)
}
