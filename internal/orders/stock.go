package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// reserveStock locks every product row of the order (FOR UPDATE), freezes the
// unit price and name on each item, then decrements stock. If any line is
// short nothing is decremented and an *InsufficientStockError lists them all.
func reserveStock(ctx context.Context, tx pgx.Tx, o *Order) error {
	// lock in product id order so concurrent checkouts cannot deadlock
	idx := make([]int, len(o.Items))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return o.Items[idx[a]].ProductID.String() < o.Items[idx[b]].ProductID.String()
	})

	var shortages []Shortage
	for _, i := range idx {
		it := &o.Items[i]
		var (
			name   string
			price  int64
			stock  int
			active bool
		)
		err := tx.QueryRow(ctx, `SELECT name_fr, price, stock_quantity, is_active FROM products WHERE id = $1 FOR UPDATE`,
			it.ProductID).Scan(&name, &price, &stock, &active)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && !active) {
			return fmt.Errorf("%w: %s", ErrProductUnavailable, it.ProductID)
		}
		if err != nil {
			return fmt.Errorf("lock product %s: %w", it.ProductID, err)
		}
		if stock < it.Quantity {
			shortages = append(shortages, Shortage{ProductID: it.ProductID, Requested: it.Quantity, Available: stock})
			continue
		}
		it.ProductName = name
		it.UnitPrice = price
	}
	if len(shortages) > 0 {
		return &InsufficientStockError{Shortages: shortages} // rollback via WithTx
	}

	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = NOW() WHERE id = $1`,
			it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("decrement stock %s: %w", it.ProductID, err)
		}
	}
	return nil
}

// releaseStock gives back the quantities of every line of an order.
func releaseStock(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE products p
		SET stock_quantity = p.stock_quantity + oi.quantity, updated_at = NOW()
		FROM order_items oi
		WHERE oi.order_id = $1 AND p.id = oi.product_id`, orderID)
	if err != nil {
		return fmt.Errorf("release stock for order %s: %w", orderID, err)
	}
	return nil
}
