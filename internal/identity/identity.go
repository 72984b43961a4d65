// Package identity carries the caller resolved by the upstream identity
// provider through a request context.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleCustomer   Role = "customer"
	RolePharmacist Role = "pharmacist"
	RoleAdmin      Role = "admin"
)

var (
	ErrAuthRequired = errors.New("authentication required")
	ErrForbidden    = errors.New("forbidden")
)

type User struct {
	ID   uuid.UUID
	Role Role
}

func (u User) Authenticated() bool { return u.ID != uuid.Nil }

// IsStaff reports whether the user may review prescriptions and manage orders.
func (u User) IsStaff() bool { return u.Role == RolePharmacist || u.Role == RoleAdmin }

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// ParseRole maps unknown values to RoleCustomer.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RolePharmacist:
		return RolePharmacist
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleCustomer
	}
}

type ctxKey struct{}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the zero User when the request is anonymous.
func FromContext(ctx context.Context) User {
	u, _ := ctx.Value(ctxKey{}).(User)
	return u
}
