package service

import (
	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

// Guard names the role requirement of a protected route.
type Guard uint8

const (
	// GuardAnyRole admits any signed-in caller holding at least one role.
	GuardAnyRole Guard = iota
	GuardAdmin
	GuardStudent
)

// Decision is the outcome of a route check. Redirect is set on denial.
type Decision struct {
	Allowed  bool
	Err      *appErrors.Error
	Redirect string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(err *appErrors.Error, redirect string) Decision {
	return Decision{Err: err, Redirect: redirect}
}

// Authorize decides whether principal may enter a route protected by guard.
// It performs no I/O: roles must already be loaded on the principal.
func Authorize(principal *models.Principal, guard Guard) Decision {
	if principal == nil || principal.UserID == "" {
		return deny(appErrors.ErrUnauthenticated, models.RouteAuth)
	}
	if principal.Roles.Empty() {
		return deny(appErrors.ErrForbidden, models.RouteHome)
	}

	switch guard {
	case GuardAnyRole:
		return allow()
	case GuardAdmin:
		return requireRole(principal, models.RoleAdmin)
	case GuardStudent:
		return requireRole(principal, models.RoleStudent)
	default:
		return deny(appErrors.ErrForbidden, models.RouteHome)
	}
}

func requireRole(principal *models.Principal, role models.Role) Decision {
	if principal.Roles.Has(role) {
		return allow()
	}
	switch role {
	case models.RoleAdmin:
		return deny(appErrors.Clone(appErrors.ErrForbidden, "access denied. admin only"), models.RouteHome)
	case models.RoleStudent:
		return deny(appErrors.Clone(appErrors.ErrForbidden, "access denied. students only"), models.RouteHome)
	default:
		return deny(appErrors.ErrForbidden, models.RouteHome)
	}
}

// Landing returns the route a client should open after sign in.
// Admin wins over student for callers holding both roles.
func Landing(principal *models.Principal) string {
	if principal == nil {
		return models.RouteAuth
	}
	for _, role := range principal.Roles.Roles() {
		switch role {
		case models.RoleAdmin:
			return models.RouteAdmin
		case models.RoleStudent:
			return models.RouteStudent
		}
	}
	return models.RouteRegister
}
