package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-api/internal/service"
	"github.com/noah-isme/tuition-api/pkg/response"
)

// RBAC enforces the session router guard for a route group. Denials carry the
// route the client should redirect to.
func RBAC(guard service.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := service.Authorize(CurrentPrincipal(c), guard)
		if decision.Allowed {
			c.Next()
			return
		}
		response.Error(c, decision.Err, map[string]interface{}{"redirect": decision.Redirect})
		c.Abort()
	}
}

// RequireAnyRole is RBAC(service.GuardAnyRole).
func RequireAnyRole() gin.HandlerFunc {
	return RBAC(service.GuardAnyRole)
}

// RequireAdmin is RBAC(service.GuardAdmin).
func RequireAdmin() gin.HandlerFunc {
	return RBAC(service.GuardAdmin)
}

// RequireStudent is RBAC(service.GuardStudent).
func RequireStudent() gin.HandlerFunc {
	return RBAC(service.GuardStudent)
}
