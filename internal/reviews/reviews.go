// Package reviews stores product ratings and their per-product summary.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ariefcatur/go-pharmacy-store/internal/identity"
	"github.com/ariefcatur/go-pharmacy-store/internal/postgres"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyReviewed = errors.New("product already reviewed by this user")
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidReview   = errors.New("invalid review")
)

type Review struct {
	ID                 uuid.UUID `json:"id"`
	ProductID          uuid.UUID `json:"product_id"`
	UserID             uuid.UUID `json:"user_id"`
	Rating             int       `json:"rating"`
	Title              string    `json:"title"`
	Comment            string    `json:"comment"`
	IsVerifiedPurchase bool      `json:"is_verified_purchase"`
	CreatedAt          time.Time `json:"created_at"`
}

type Input struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Title   string `json:"title" validate:"max=100"`
	Comment string `json:"comment" validate:"max=1000"`
}

// Summary has one Distribution entry per star, 1 through 5.
type Summary struct {
	TotalReviews  int         `json:"total_reviews"`
	AverageRating float64     `json:"average_rating"`
	Distribution  map[int]int `json:"rating_distribution"`
}

// Summarize rounds the average to one decimal.
func Summarize(counts map[int]int) Summary {
	s := Summary{Distribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}
	sum := 0
	for star, n := range counts {
		if star < 1 || star > 5 {
			continue
		}
		s.Distribution[star] = n
		s.TotalReviews += n
		sum += star * n
	}
	if s.TotalReviews > 0 {
		s.AverageRating = math.Round(float64(sum)/float64(s.TotalReviews)*10) / 10
	}
	return s
}

type Repository interface {
	// Create sets IsVerifiedPurchase from the user's delivered orders.
	Create(ctx context.Context, r *Review) error
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]Review, error)
	RatingCounts(ctx context.Context, productID uuid.UUID) (map[int]int, error)
}

type PostgresRepository struct{ DB *pgxpool.Pool }

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{DB: db}
}

func (r *PostgresRepository) Create(ctx context.Context, rv *Review) error {
	err := r.DB.QueryRow(ctx, `
		INSERT INTO reviews (product_id, user_id, rating, title, comment, is_verified_purchase)
		VALUES ($1, $2, $3, $4, $5, EXISTS (
			SELECT 1 FROM orders o JOIN order_items oi ON oi.order_id = o.id
			WHERE o.user_id = $2 AND oi.product_id = $1 AND o.status = 'delivered'))
		RETURNING id, is_verified_purchase, created_at`,
		rv.ProductID, rv.UserID, rv.Rating, rv.Title, rv.Comment,
	).Scan(&rv.ID, &rv.IsVerifiedPurchase, &rv.CreatedAt)
	switch {
	case postgres.IsUniqueViolation(err, "reviews_product_user_key"):
		return ErrAlreadyReviewed
	case postgres.IsForeignKeyViolation(err):
		return ErrProductNotFound
	case err != nil:
		return fmt.Errorf("repository: create review: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]Review, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, product_id, user_id, rating, title, comment, is_verified_purchase, created_at
		FROM reviews WHERE product_id = $1 ORDER BY created_at DESC`, productID)
	if err != nil {
		return nil, fmt.Errorf("repository: list reviews: %w", err)
	}
	defer rows.Close()

	out := []Review{}
	for rows.Next() {
		var rv Review
		if err := rows.Scan(&rv.ID, &rv.ProductID, &rv.UserID, &rv.Rating, &rv.Title, &rv.Comment,
			&rv.IsVerifiedPurchase, &rv.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: scan review: %w", err)
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) RatingCounts(ctx context.Context, productID uuid.UUID) (map[int]int, error) {
	rows, err := r.DB.Query(ctx, `SELECT rating, COUNT(*) FROM reviews WHERE product_id = $1 GROUP BY rating`, productID)
	if err != nil {
		return nil, fmt.Errorf("repository: rating counts: %w", err)
	}
	defer rows.Close()

	counts := map[int]int{}
	for rows.Next() {
		var star, n int
		if err := rows.Scan(&star, &n); err != nil {
			return nil, fmt.Errorf("repository: scan rating count: %w", err)
		}
		counts[star] = n
	}
	return counts, rows.Err()
}

type Service struct {
	repo     Repository
	validate *validator.Validate
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

func (s *Service) Create(ctx context.Context, userID, productID uuid.UUID, in Input) (*Review, error) {
	if userID == uuid.Nil {
		return nil, identity.ErrAuthRequired
	}
	in.Title, in.Comment = strings.TrimSpace(in.Title), strings.TrimSpace(in.Comment)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReview, err)
	}
	rv := &Review{ProductID: productID, UserID: userID, Rating: in.Rating, Title: in.Title, Comment: in.Comment}
	if err := s.repo.Create(ctx, rv); err != nil {
		return nil, err
	}
	log.Info().Stringer("product_id", productID).Int("rating", rv.Rating).Bool("verified", rv.IsVerifiedPurchase).Msg("service: review created")
	return rv, nil
}

func (s *Service) List(ctx context.Context, productID uuid.UUID) ([]Review, error) {
	return s.repo.ListByProduct(ctx, productID)
}

func (s *Service) Summary(ctx context.Context, productID uuid.UUID) (Summary, error) {
	counts, err := s.repo.RatingCounts(ctx, productID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(counts), nil
}
