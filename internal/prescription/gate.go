package prescription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type Lookup interface {
	Get(ctx context.Context, id uuid.UUID) (*Prescription, error)
}

// Gate enforces the two prescription checks: attachable when a line enters the
// cart or an order, fulfillable when the order is released for dispatch.
type Gate struct {
	repo Lookup
}

func NewGate(repo Lookup) *Gate {
	return &Gate{repo: repo}
}

// CheckAttach validates the prescription reference of a cart line.
func (g *Gate) CheckAttach(ctx context.Context, userID uuid.UUID, requiresPrescription bool, prescriptionID *uuid.UUID) error {
	if !requiresPrescription {
		return nil
	}
	if prescriptionID == nil || *prescriptionID == uuid.Nil {
		return ErrRequired
	}
	p, err := g.repo.Get(ctx, *prescriptionID)
	if err != nil {
		return fmt.Errorf("gate: load prescription: %w", err)
	}
	if p.UserID != userID {
		return ErrNotFound
	}
	if !p.Attachable(userID) {
		return ErrRejected
	}
	return nil
}

// CheckFulfill returns nil only for a verified prescription.
func (g *Gate) CheckFulfill(ctx context.Context, prescriptionID *uuid.UUID) error {
	if prescriptionID == nil || *prescriptionID == uuid.Nil {
		return ErrRequired
	}
	p, err := g.repo.Get(ctx, *prescriptionID)
	if err != nil {
		return fmt.Errorf("gate: load prescription: %w", err)
	}
	switch {
	case p.Fulfillable():
		return nil
	case p.Status == StatusRejected:
		return ErrRejected
	default:
		return ErrNotVerified
	}
}

// IsGateError reports whether err is a prescription refusal rather than an I/O failure.
func IsGateError(err error) bool {
	return errors.Is(err, ErrRequired) || errors.Is(err, ErrRejected) ||
		errors.Is(err, ErrNotVerified) || errors.Is(err, ErrNotFound)
}
