package cart

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-pharmacy-store/internal/catalog"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists cart lines. Every mutation returns the cart re-read after the
// write, so callers never patch their copy locally.
type Store interface {
	Load(ctx context.Context, userID uuid.UUID) (*Cart, error)
	// Insert adds qty to the (user, product) line, creating it if needed.
	Insert(ctx context.Context, userID, productID uuid.UUID, qty int, prescriptionID *uuid.UUID) (*Cart, error)
	// SetQuantity overwrites the quantity; a non-nil prescriptionID replaces the
	// attached one. A missing line is ErrLineNotFound.
	SetQuantity(ctx context.Context, userID, productID uuid.UUID, qty int, prescriptionID *uuid.UUID) (*Cart, error)
	Remove(ctx context.Context, userID, productID uuid.UUID) (*Cart, error)
	Clear(ctx context.Context, userID uuid.UUID) (*Cart, error)
}

type PostgresStore struct{ DB *pgxpool.Pool }

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{DB: db}
}

func (s *PostgresStore) Load(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT ci.id, ci.product_id, ci.quantity, ci.prescription_id, `+catalog.Columns("p")+`
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.created_at, ci.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: load cart: %w", err)
	}
	defer rows.Close()

	c := &Cart{UserID: userID, Lines: []Line{}}
	for rows.Next() {
		var l Line
		targets := append([]any{&l.ID, &l.ProductID, &l.Quantity, &l.PrescriptionID}, catalog.ScanTargets(&l.Product)...)
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("store: scan cart line: %w", err)
		}
		c.Lines = append(c.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load cart: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Insert(ctx context.Context, userID, productID uuid.UUID, qty int, prescriptionID *uuid.UUID) (*Cart, error) {
	// ON CONFLICT covers a concurrent first add of the same product
	_, err := s.DB.Exec(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity, prescription_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, product_id) DO UPDATE
		SET quantity = cart_items.quantity + EXCLUDED.quantity,
		    prescription_id = COALESCE(EXCLUDED.prescription_id, cart_items.prescription_id),
		    updated_at = NOW()`,
		userID, productID, qty, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("store: insert cart line: %w", err)
	}
	return s.Load(ctx, userID)
}

func (s *PostgresStore) SetQuantity(ctx context.Context, userID, productID uuid.UUID, qty int, prescriptionID *uuid.UUID) (*Cart, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE cart_items
		SET quantity = $3, prescription_id = COALESCE($4, prescription_id), updated_at = NOW()
		WHERE user_id = $1 AND product_id = $2`,
		userID, productID, qty, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("store: update cart line: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrLineNotFound
	}
	return s.Load(ctx, userID)
}

func (s *PostgresStore) Remove(ctx context.Context, userID, productID uuid.UUID) (*Cart, error) {
	if _, err := s.DB.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID); err != nil {
		return nil, fmt.Errorf("store: delete cart line: %w", err)
	}
	return s.Load(ctx, userID)
}

func (s *PostgresStore) Clear(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	if _, err := s.DB.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("store: clear cart: %w", err)
	}
	return s.Load(ctx, userID)
}
