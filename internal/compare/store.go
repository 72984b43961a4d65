package compare

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-pharmacy-store/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrAlreadyCompared = errors.New("product is already in the comparison")
	ErrCompareFull     = errors.New("comparison list is full")
)

// Store keeps the ordered product ids a user is comparing.
type Store interface {
	Add(ctx context.Context, userID, productID uuid.UUID, limit int) error
	Remove(ctx context.Context, userID, productID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
	IDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// addScript checks membership and size and appends in one round trip.
var addScript = redis.NewScript(`
local key, id, max, ttl = KEYS[1], ARGV[1], tonumber(ARGV[2]), tonumber(ARGV[3])
local items = redis.call('LRANGE', key, 0, -1)
for _, v in ipairs(items) do
  if v == id then return -1 end
end
if #items >= max then return -2 end
redis.call('RPUSH', key, id)
redis.call('EXPIRE', key, ttl)
return #items + 1
`)

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: redisx.TTLCompare}
}

func key(userID uuid.UUID) string { return fmt.Sprintf(redisx.KeyCompare, userID) }

func (s *RedisStore) Add(ctx context.Context, userID, productID uuid.UUID, limit int) error {
	n, err := addScript.Run(ctx, s.rdb, []string{key(userID)}, productID.String(), limit, int(s.ttl.Seconds())).Int()
	if err != nil {
		return fmt.Errorf("compare: add: %w", err)
	}
	switch n {
	case -1:
		return ErrAlreadyCompared
	case -2:
		return ErrCompareFull
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	if err := s.rdb.LRem(ctx, key(userID), 0, productID.String()).Err(); err != nil {
		return fmt.Errorf("compare: remove: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := s.rdb.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("compare: clear: %w", err)
	}
	return nil
}

func (s *RedisStore) IDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	vals, err := s.rdb.LRange(ctx, key(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("compare: list: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(vals))
	for _, v := range vals {
		if id, err := uuid.Parse(v); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
