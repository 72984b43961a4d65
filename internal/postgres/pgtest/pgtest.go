// Package pgtest opens a migrated, empty database for repository tests.
// Tests are skipped unless PHARMACY_TEST_DSN is set.
package pgtest

import (
	"context"
	"os"
	"testing"

	"github.com/ariefcatur/go-pharmacy-store/internal/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
)

const envDSN = "PHARMACY_TEST_DSN"

func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(envDSN)
	if dsn == "" {
		t.Skipf("%s not set, skipping postgres test", envDSN)
	}

	if err := postgres.Migrate(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	pool, err := postgres.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE reviews, wishlist_items, wishlists, payments, order_items, orders,
		cart_items, prescriptions, products, categories RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}
