package prescription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Lookup
	Create(ctx context.Context, p *Prescription) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Prescription, error)
	// ListByStatus lists every prescription when status is empty.
	ListByStatus(ctx context.Context, status Status) ([]Prescription, error)
	// UpdateStatus writes status, notes and reviewer together, only while the
	// row still has status from. It returns the row as stored.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, notes *string, reviewer uuid.UUID) (*Prescription, error)
}

const columns = `id, user_id, doctor_name, doctor_phone, prescription_date, file_url, file_type,
	status, pharmacist_notes, reviewed_by, reviewed_at, created_at, updated_at`

func scanTargets(p *Prescription) []any {
	return []any{
		&p.ID, &p.UserID, &p.DoctorName, &p.DoctorPhone, &p.PrescriptionDate, &p.FileURL, &p.FileType,
		&p.Status, &p.PharmacistNotes, &p.ReviewedBy, &p.ReviewedAt, &p.CreatedAt, &p.UpdatedAt,
	}
}

type PostgresRepository struct{ DB *pgxpool.Pool }

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{DB: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p *Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO prescriptions (id, user_id, doctor_name, doctor_phone, prescription_date, file_url, file_type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.DoctorName, p.DoctorPhone, p.PrescriptionDate, p.FileURL, string(p.FileType), string(p.Status),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository: create prescription: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	var p Prescription
	err := r.DB.QueryRow(ctx, `SELECT `+columns+` FROM prescriptions WHERE id = $1`, id).Scan(scanTargets(&p)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get prescription: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) list(ctx context.Context, where string, args ...any) ([]Prescription, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+columns+` FROM prescriptions `+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: list prescriptions: %w", err)
	}
	defer rows.Close()

	out := []Prescription{}
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(scanTargets(&p)...); err != nil {
			return nil, fmt.Errorf("repository: scan prescription: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Prescription, error) {
	return r.list(ctx, `WHERE user_id = $1`, userID)
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status) ([]Prescription, error) {
	if status == "" {
		return r.list(ctx, ``)
	}
	return r.list(ctx, `WHERE status = $1`, string(status))
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, notes *string, reviewer uuid.UUID) (*Prescription, error) {
	var p Prescription
	err := r.DB.QueryRow(ctx, `
		UPDATE prescriptions
		SET status = $3, pharmacist_notes = $4, reviewed_by = $5, reviewed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+columns,
		id, string(from), string(to), notes, reviewer,
	).Scan(scanTargets(&p)...)
	if errors.Is(err, pgx.ErrNoRows) {
		// either gone or reviewed concurrently
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("repository: update prescription status: %w", err)
	}
	return &p, nil
}
