package redisx

import "time"

const (
	// Idempotency checkout: idem:checkout:{external_id} -> order_id
	KeyIdemCheckout = "idem:checkout:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "user_id": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Product read-through cache, by id and by slug
	KeyProduct     = "product:%s"
	KeyProductSlug = "product:slug:%s"

	// Comparison list per user: compare:{user_id} -> list of product ids
	KeyCompare = "compare:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLProduct     = 5 * time.Minute
	TTLNotFound    = 1 * time.Minute
	TTLCompare     = 30 * 24 * time.Hour
)
