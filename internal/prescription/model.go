package prescription

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected:
		return true
	}
	return false
}

var validNext = map[Status]map[Status]bool{
	StatusPending:  {StatusVerified: true, StatusRejected: true},
	StatusVerified: {},
	StatusRejected: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

type FileType string

const (
	FileImage FileType = "image"
	FilePDF   FileType = "pdf"
)

var (
	ErrNotFound          = errors.New("prescription not found")
	ErrRequired          = errors.New("product requires a prescription")
	ErrRejected          = errors.New("prescription was rejected")
	ErrNotVerified       = errors.New("prescription is not verified yet")
	ErrInvalidTransition = errors.New("invalid prescription status transition")
	ErrFileTooLarge      = errors.New("prescription file too large")
	ErrUnsupportedFile   = errors.New("prescription file must be a jpeg, png or pdf")
	ErrInvalidInput      = errors.New("invalid prescription")
)

type Prescription struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	DoctorName       string     `json:"doctor_name"`
	DoctorPhone      *string    `json:"doctor_phone,omitempty"`
	PrescriptionDate time.Time  `json:"prescription_date"`
	FileURL          string     `json:"file_url"`
	FileType         FileType   `json:"file_type"`
	Status           Status     `json:"status"`
	PharmacistNotes  *string    `json:"pharmacist_notes,omitempty"`
	ReviewedBy       *uuid.UUID `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Attachable reports whether userID may attach p to a cart line or order:
// the owner's prescription, pending or verified.
func (p *Prescription) Attachable(userID uuid.UUID) bool {
	return p.UserID == userID && (p.Status == StatusPending || p.Status == StatusVerified)
}

// Fulfillable reports whether goods held against p may be dispatched.
func (p *Prescription) Fulfillable() bool {
	return p.Status == StatusVerified
}
