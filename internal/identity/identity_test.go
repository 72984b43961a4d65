package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleAdmin, ParseRole(" Admin "))
	assert.Equal(t, RolePharmacist, ParseRole("pharmacist"))
	assert.Equal(t, RoleCustomer, ParseRole("root"))
	assert.Equal(t, RoleCustomer, ParseRole(""))
}

func TestContextRoundTrip(t *testing.T) {
	assert.False(t, FromContext(context.Background()).Authenticated())

	u := User{ID: uuid.New(), Role: RolePharmacist}
	got := FromContext(WithUser(context.Background(), u))

	assert.Equal(t, u, got)
	assert.True(t, got.IsStaff())
	assert.False(t, got.IsAdmin())
}
