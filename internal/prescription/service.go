package prescription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-pharmacy-store/internal/identity"
	kafkax "github.com/ariefcatur/go-pharmacy-store/internal/kafka"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	TopicReviewed = "prescription.reviewed"
	EventReviewed = "PrescriptionReviewed"
)

type ReviewedPayload struct {
	PrescriptionID string `json:"prescription_id"`
	UserID         string `json:"user_id"`
	Status         Status `json:"status"`
}

type UploadInput struct {
	DoctorName       string
	DoctorPhone      string
	PrescriptionDate time.Time
	Content          []byte
}

type Service struct {
	repo      Repository
	files     *FileStore
	publisher kafkax.Publisher
	producer  string
	maxBytes  int64
	now       func() time.Time
}

func NewService(repo Repository, files *FileStore, publisher kafkax.Publisher, producer string, maxBytes int64) *Service {
	return &Service{
		repo:      repo,
		files:     files,
		publisher: publisher,
		producer:  producer,
		maxBytes:  maxBytes,
		now:       time.Now,
	}
}

var accepted = map[string]FileType{
	"image/jpeg":      FileImage,
	"image/png":       FileImage,
	"application/pdf": FilePDF,
}

// Upload stores the file and records a pending prescription for userID.
func (s *Service) Upload(ctx context.Context, userID uuid.UUID, in UploadInput) (*Prescription, error) {
	if userID == uuid.Nil {
		return nil, identity.ErrAuthRequired
	}
	in.DoctorName = strings.TrimSpace(in.DoctorName)
	if in.DoctorName == "" || in.PrescriptionDate.IsZero() {
		return nil, fmt.Errorf("%w: doctor_name and prescription_date are required", ErrInvalidInput)
	}
	if len(in.Content) == 0 {
		return nil, ErrUnsupportedFile
	}
	if int64(len(in.Content)) > s.maxBytes {
		return nil, ErrFileTooLarge
	}

	mt := mimetype.Detect(in.Content)
	var fileType FileType
	for mime, ft := range accepted {
		if mt.Is(mime) {
			fileType = ft
			break
		}
	}
	if fileType == "" {
		return nil, ErrUnsupportedFile
	}

	key := fmt.Sprintf("%s/prescriptions/%d%s", userID, s.now().UnixMilli(), mt.Extension())
	if err := s.files.Save(key, in.Content); err != nil {
		return nil, fmt.Errorf("service: store prescription file: %w", err)
	}

	p := &Prescription{
		ID:               uuid.New(),
		UserID:           userID,
		DoctorName:       in.DoctorName,
		PrescriptionDate: in.PrescriptionDate,
		FileURL:          key,
		FileType:         fileType,
		Status:           StatusPending,
	}
	if phone := strings.TrimSpace(in.DoctorPhone); phone != "" {
		p.DoctorPhone = &phone
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if rmErr := s.files.Remove(key); rmErr != nil {
			log.Warn().Err(rmErr).Str("key", key).Msg("service: orphan prescription file")
		}
		return nil, fmt.Errorf("service: create prescription: %w", err)
	}

	log.Info().Stringer("prescription_id", p.ID).Stringer("user_id", userID).Str("file_type", string(fileType)).Msg("service: prescription uploaded")
	return p, nil
}

// Get returns the prescription to its owner or to staff.
func (s *Service) Get(ctx context.Context, u identity.User, id uuid.UUID) (*Prescription, error) {
	if !u.Authenticated() {
		return nil, identity.ErrAuthRequired
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != u.ID && !u.IsStaff() {
		return nil, ErrNotFound
	}
	return p, nil
}

// OpenFile returns the stored file of a prescription visible to u.
func (s *Service) OpenFile(ctx context.Context, u identity.User, id uuid.UUID) (afero.File, *Prescription, error) {
	p, err := s.Get(ctx, u, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.files.Open(p.FileURL)
	if err != nil {
		return nil, nil, err
	}
	return f, p, nil
}

func (s *Service) ListMine(ctx context.Context, userID uuid.UUID) ([]Prescription, error) {
	if userID == uuid.Nil {
		return nil, identity.ErrAuthRequired
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) ListForReview(ctx context.Context, reviewer identity.User, status Status) ([]Prescription, error) {
	if !reviewer.IsStaff() {
		return nil, identity.ErrForbidden
	}
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.repo.ListByStatus(ctx, status)
}

// Review moves a pending prescription to verified or rejected. Only
// pharmacists and admins may review.
func (s *Service) Review(ctx context.Context, reviewer identity.User, id uuid.UUID, to Status, notes string) (*Prescription, error) {
	if !reviewer.IsStaff() {
		return nil, identity.ErrForbidden
	}
	if to != StatusVerified && to != StatusRejected {
		return nil, ErrInvalidTransition
	}

	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(cur.Status, to) {
		log.Warn().Stringer("prescription_id", id).Str("from", string(cur.Status)).Str("to", string(to)).Msg("service: invalid prescription transition")
		return nil, ErrInvalidTransition
	}

	var notesPtr *string
	if n := strings.TrimSpace(notes); n != "" {
		notesPtr = &n
	}
	updated, err := s.repo.UpdateStatus(ctx, id, cur.Status, to, notesPtr, reviewer.ID)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service: review prescription: %w", err)
	}

	env := kafkax.NewEnvelope(ctx, EventReviewed, s.producer, updated.ID.String(), ReviewedPayload{
		PrescriptionID: updated.ID.String(),
		UserID:         updated.UserID.String(),
		Status:         updated.Status,
	})
	kafkax.Emit(s.publisher, updated.ID.String(), env)

	log.Info().Stringer("prescription_id", id).Stringer("reviewer", reviewer.ID).Str("status", string(to)).Msg("service: prescription reviewed")
	return updated, nil
}
