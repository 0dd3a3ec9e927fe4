package service

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-api/internal/models"
)

func principal(roles ...models.Role) *models.Principal {
	return &models.Principal{UserID: "u1", Roles: models.NewRoleSet(roles...)}
}

func TestAuthorizeWithoutSession(t *testing.T) {
	for _, guard := range []Guard{GuardAnyRole, GuardAdmin, GuardStudent} {
		d := Authorize(nil, guard)
		assert.False(t, d.Allowed)
		require.NotNil(t, d.Err)
		assert.Equal(t, http.StatusUnauthorized, d.Err.Status)
		assert.Equal(t, "/auth", d.Redirect)
	}
}

func TestAuthorizeWithoutRoleIsForbiddenEverywhere(t *testing.T) {
	for _, guard := range []Guard{GuardAnyRole, GuardAdmin, GuardStudent} {
		d := Authorize(principal(), guard)
		assert.False(t, d.Allowed)
		require.NotNil(t, d.Err)
		assert.Equal(t, http.StatusForbidden, d.Err.Status)
		assert.Equal(t, "access denied", d.Err.Message)
		assert.Equal(t, "/", d.Redirect)
	}
}

func TestAuthorizeAdminRoute(t *testing.T) {
	d := Authorize(principal(models.RoleStudent), GuardAdmin)
	assert.False(t, d.Allowed)
	require.NotNil(t, d.Err)
	assert.Equal(t, "access denied. admin only", d.Err.Message)
	assert.Equal(t, "/", d.Redirect)

	assert.True(t, Authorize(principal(models.RoleAdmin), GuardAdmin).Allowed)
	assert.True(t, Authorize(principal(models.RoleAdmin, models.RoleStudent), GuardAdmin).Allowed)
}

func TestAuthorizeStudentRoute(t *testing.T) {
	assert.True(t, Authorize(principal(models.RoleStudent), GuardStudent).Allowed)
	assert.True(t, Authorize(principal(models.RoleAdmin, models.RoleStudent), GuardStudent).Allowed)

	d := Authorize(principal(models.RoleAdmin), GuardStudent)
	assert.False(t, d.Allowed)
	assert.Equal(t, http.StatusForbidden, d.Err.Status)
}

func TestLanding(t *testing.T) {
	assert.Equal(t, "/auth", Landing(nil))
	assert.Equal(t, "/register", Landing(principal()))
	assert.Equal(t, "/student", Landing(principal(models.RoleStudent)))
	assert.Equal(t, "/admin", Landing(principal(models.RoleAdmin)))
	assert.Equal(t, "/admin", Landing(principal(models.RoleStudent, models.RoleAdmin)))
}
