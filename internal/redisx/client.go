package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Deduper marks event ids as processed for one consumer service.
type Deduper struct {
	RDB     *redis.Client
	Service string
	TTL     time.Duration
}

// Claim returns false when the id was already claimed.
func (d *Deduper) Claim(ctx context.Context, id string) (bool, error) {
	ttl := d.TTL
	if ttl == 0 {
		ttl = TTLDedup
	}
	return d.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Service, id), "1", ttl).Result()
}

// Release drops a claim so a failed event can be redelivered.
func (d *Deduper) Release(ctx context.Context, id string) error {
	return d.RDB.Del(ctx, fmt.Sprintf(KeyDedup, d.Service, id)).Err()
}
