package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-pharmacy-store/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNegativeStock = errors.New("stock adjustment would make stock negative")

type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	// ResolveBySKU fetches every active product whose sku is in skus with one query.
	ResolveBySKU(ctx context.Context, skus []string) ([]Product, error)
	Similar(ctx context.Context, p *Product, limit int) ([]Product, error)
	Categories(ctx context.Context) ([]Category, error)

	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*Product, error)
}

var columnNames = []string{
	"id", "sku", "slug", "name_fr", "name_en", "description_fr", "description_en",
	"price", "compare_price", "stock_quantity", "requires_prescription", "type", "images",
	"category_id", "manufacturer", "active_ingredient", "dosage", "featured", "is_active",
	"created_at", "updated_at",
}

// Columns lists the product columns in ScanTargets order, qualified by alias if given.
func Columns(alias string) string {
	if alias == "" {
		return strings.Join(columnNames, ", ")
	}
	out := make([]string, len(columnNames))
	for i, c := range columnNames {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}

// ScanTargets returns pointers into p matching Columns.
func ScanTargets(p *Product) []any {
	return []any{
		&p.ID, &p.SKU, &p.Slug, &p.NameFR, &p.NameEN, &p.DescriptionFR, &p.DescriptionEN,
		&p.Price, &p.ComparePrice, &p.StockQuantity, &p.RequiresPrescription, &p.Type, &p.Images,
		&p.CategoryID, &p.Manufacturer, &p.ActiveIngredient, &p.Dosage, &p.Featured, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt,
	}
}

type PostgresRepository struct{ DB *pgxpool.Pool }

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{DB: db}
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	out := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(ScanTargets(&p)...); err != nil {
			return nil, fmt.Errorf("repository: scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, arg any) (*Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `SELECT `+Columns("")+` FROM products WHERE `+where, arg).Scan(ScanTargets(&p)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get product: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *PostgresRepository) GetBySlug(ctx context.Context, slug string) (*Product, error) {
	return r.getOne(ctx, `slug = $1`, slug)
}

// likeEscaper makes user text match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]Product, error) {
	f = f.normalized()

	where := []string{"p.is_active"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if s := strings.TrimSpace(f.Search); s != "" {
		ph := arg("%" + likeEscaper.Replace(s) + "%")
		where = append(where, fmt.Sprintf(
			"(p.name_fr ILIKE %[1]s OR p.name_en ILIKE %[1]s OR p.description_fr ILIKE %[1]s OR p.description_en ILIKE %[1]s OR p.sku ILIKE %[1]s)", ph))
	}
	if f.CategorySlug != "" {
		where = append(where, "c.slug = "+arg(f.CategorySlug))
	}
	if f.Type != "" {
		where = append(where, "p.type = "+arg(string(f.Type)))
	}
	if f.FeaturedOnly {
		where = append(where, "p.featured")
	}

	q := `SELECT ` + Columns("p") + `
		FROM products p LEFT JOIN categories c ON c.id = p.category_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ` + orderBy(f.Sort) + `
		LIMIT ` + arg(f.Limit) + ` OFFSET ` + arg(f.Offset)

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: list products: %w", err)
	}
	return collectProducts(rows)
}

func orderBy(s Sort) string {
	switch s {
	case SortPriceAsc:
		return "p.price ASC, p.id"
	case SortPriceDesc:
		return "p.price DESC, p.id"
	case SortName:
		return "p.name_fr ASC, p.id"
	default:
		return "p.created_at DESC, p.id"
	}
}

func (r *PostgresRepository) ResolveBySKU(ctx context.Context, skus []string) ([]Product, error) {
	if len(skus) == 0 {
		return []Product{}, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT `+Columns("")+` FROM products WHERE is_active AND sku = ANY($1)`, skus)
	if err != nil {
		return nil, fmt.Errorf("repository: resolve skus: %w", err)
	}
	return collectProducts(rows)
}

func (r *PostgresRepository) Similar(ctx context.Context, p *Product, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 4
	}
	rows, err := r.DB.Query(ctx, `
		SELECT `+Columns("")+` FROM products
		WHERE is_active AND id <> $1 AND (category_id = $2 OR type = $3)
		ORDER BY (category_id = $2) DESC NULLS LAST, created_at DESC
		LIMIT $4`, p.ID, p.CategoryID, string(p.Type), limit)
	if err != nil {
		return nil, fmt.Errorf("repository: similar products: %w", err)
	}
	return collectProducts(rows)
}

func (r *PostgresRepository) Categories(ctx context.Context) ([]Category, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, slug, name_fr, name_en, is_active FROM categories WHERE is_active ORDER BY name_fr`)
	if err != nil {
		return nil, fmt.Errorf("repository: list categories: %w", err)
	}
	defer rows.Close()

	out := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Slug, &c.NameFR, &c.NameEN, &c.IsActive); err != nil {
			return nil, fmt.Errorf("repository: scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Create(ctx context.Context, p *Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO products (id, sku, slug, name_fr, name_en, description_fr, description_en,
			price, compare_price, stock_quantity, requires_prescription, type, images,
			category_id, manufacturer, active_ingredient, dosage, featured, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING created_at, updated_at`,
		p.ID, p.SKU, p.Slug, p.NameFR, p.NameEN, p.DescriptionFR, p.DescriptionEN,
		p.Price, p.ComparePrice, p.StockQuantity, p.RequiresPrescription, string(p.Type), p.Images,
		p.CategoryID, p.Manufacturer, p.ActiveIngredient, p.Dosage, p.Featured, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if postgres.IsUniqueViolation(err, "") {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("repository: create product: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, p *Product) error {
	if p.Images == nil {
		p.Images = []string{}
	}
	err := r.DB.QueryRow(ctx, `
		UPDATE products SET sku=$2, slug=$3, name_fr=$4, name_en=$5, description_fr=$6, description_en=$7,
			price=$8, compare_price=$9, stock_quantity=$10, requires_prescription=$11, type=$12, images=$13,
			category_id=$14, manufacturer=$15, active_ingredient=$16, dosage=$17, featured=$18, is_active=$19,
			updated_at=NOW()
		WHERE id=$1
		RETURNING created_at, updated_at`,
		p.ID, p.SKU, p.Slug, p.NameFR, p.NameEN, p.DescriptionFR, p.DescriptionEN,
		p.Price, p.ComparePrice, p.StockQuantity, p.RequiresPrescription, string(p.Type), p.Images,
		p.CategoryID, p.Manufacturer, p.ActiveIngredient, p.Dosage, p.Featured, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case postgres.IsUniqueViolation(err, ""):
		return ErrDuplicate
	case err != nil:
		return fmt.Errorf("repository: update product: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	ct, err := r.DB.Exec(ctx, `UPDATE products SET is_active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return fmt.Errorf("repository: set product active: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `
		UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = NOW()
		WHERE id = $1 AND stock_quantity + $2 >= 0
		RETURNING `+Columns(""), id, delta).Scan(ScanTargets(&p)...)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrNegativeStock
	}
	if err != nil {
		return nil, fmt.Errorf("repository: adjust stock: %w", err)
	}
	return &p, nil
}
