package wishlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-pharmacy-store/internal/catalog"
	"github.com/ariefcatur/go-pharmacy-store/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound        = errors.New("wishlist not found")
	ErrAlreadyListed   = errors.New("product already in this wishlist")
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidName     = errors.New("wishlist name is required")
)

const DefaultName = "Favoris"

type Wishlist struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	IsPublic  bool      `json:"is_public"`
	IsDefault bool      `json:"is_default"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"created_at"`
}

type Item struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Product   catalog.Product `json:"product"`
	CreatedAt time.Time       `json:"created_at"`
}

// Repository scopes every statement to the owning user.
type Repository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Wishlist, error)
	Create(ctx context.Context, w *Wishlist) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	// DefaultID returns the user's default wishlist, creating it on first use.
	DefaultID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
	AddItem(ctx context.Context, userID, wishlistID, productID uuid.UUID) error
	RemoveItem(ctx context.Context, userID, wishlistID, productID uuid.UUID) error
	Contains(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

type PostgresRepository struct{ DB *pgxpool.Pool }

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{DB: db}
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Wishlist, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, user_id, name, is_public, is_default, created_at
		FROM wishlists WHERE user_id = $1
		ORDER BY is_default DESC, created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: list wishlists: %w", err)
	}
	lists := []Wishlist{}
	pos := map[uuid.UUID]int{}
	for rows.Next() {
		var w Wishlist
		if err := rows.Scan(&w.ID, &w.UserID, &w.Name, &w.IsPublic, &w.IsDefault, &w.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("repository: scan wishlist: %w", err)
		}
		w.Items = []Item{}
		pos[w.ID] = len(lists)
		lists = append(lists, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: list wishlists: %w", err)
	}
	if len(lists) == 0 {
		return lists, nil
	}

	rows, err = r.DB.Query(ctx, `
		SELECT wi.id, wi.wishlist_id, wi.created_at, `+catalog.Columns("p")+`
		FROM wishlist_items wi JOIN products p ON p.id = wi.product_id
		WHERE wi.user_id = $1
		ORDER BY wi.created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: list wishlist items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it         Item
			wishlistID uuid.UUID
		)
		targets := append([]any{&it.ID, &wishlistID, &it.CreatedAt}, catalog.ScanTargets(&it.Product)...)
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("repository: scan wishlist item: %w", err)
		}
		it.ProductID = it.Product.ID
		if i, ok := pos[wishlistID]; ok {
			lists[i].Items = append(lists[i].Items, it)
		}
	}
	return lists, rows.Err()
}

func (r *PostgresRepository) Create(ctx context.Context, w *Wishlist) error {
	err := r.DB.QueryRow(ctx, `
		INSERT INTO wishlists (user_id, name, is_public, is_default)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		w.UserID, w.Name, w.IsPublic, w.IsDefault,
	).Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository: create wishlist: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM wishlists WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("repository: delete wishlist: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DefaultID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.DB.QueryRow(ctx, `SELECT id FROM wishlists WHERE user_id = $1 AND is_default`, userID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("repository: default wishlist: %w", err)
	}

	// partial unique index on (user_id) WHERE is_default settles concurrent first use
	err = r.DB.QueryRow(ctx, `
		INSERT INTO wishlists (user_id, name, is_default) VALUES ($1, $2, TRUE)
		ON CONFLICT (user_id) WHERE is_default DO UPDATE SET name = wishlists.name
		RETURNING id`, userID, DefaultName).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("repository: create default wishlist: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) AddItem(ctx context.Context, userID, wishlistID, productID uuid.UUID) error {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO wishlist_items (wishlist_id, product_id, user_id)
		SELECT w.id, $2::uuid, w.user_id FROM wishlists w WHERE w.id = $1 AND w.user_id = $3`,
		wishlistID, productID, userID)
	switch {
	case postgres.IsUniqueViolation(err, ""):
		return ErrAlreadyListed
	case postgres.IsForeignKeyViolation(err):
		return ErrProductNotFound
	case err != nil:
		return fmt.Errorf("repository: add wishlist item: %w", err)
	case ct.RowsAffected() == 0:
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) RemoveItem(ctx context.Context, userID, wishlistID, productID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, `
		DELETE FROM wishlist_items WHERE wishlist_id = $1 AND product_id = $2 AND user_id = $3`,
		wishlistID, productID, userID)
	if err != nil {
		return fmt.Errorf("repository: remove wishlist item: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Contains(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	var ok bool
	err := r.DB.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM wishlist_items WHERE user_id = $1 AND product_id = $2)`,
		userID, productID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("repository: wishlist contains: %w", err)
	}
	return ok, nil
}
