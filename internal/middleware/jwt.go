package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
	"github.com/noah-isme/tuition-api/pkg/logger"
	"github.com/noah-isme/tuition-api/pkg/response"
)

// ContextPrincipalKey is the gin context key storing the verified caller.
const ContextPrincipalKey = "principal"

// Authenticator verifies bearer tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Principal, error)
}

type errorRenderer func(c *gin.Context, err error)

func renderEnvelope(c *gin.Context, err error) {
	response.Error(c, err, map[string]interface{}{"redirect": models.RouteAuth})
}

// JWT protects routes by requiring a valid access token.
func JWT(auth Authenticator) gin.HandlerFunc {
	return requireAuth(auth, renderEnvelope)
}

// FunctionJWT is JWT for the function endpoints, which answer with {error}.
func FunctionJWT(auth Authenticator) gin.HandlerFunc {
	return requireAuth(auth, response.FunctionError)
}

func requireAuth(auth Authenticator, render errorRenderer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			render(c, err)
			c.Abort()
			return
		}

		principal, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			render(c, err)
			c.Abort()
			return
		}

		setPrincipal(c, principal)
		c.Next()
	}
}

// OptionalJWT attaches the principal when a valid token is present but does not block.
func OptionalJWT(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			c.Next()
			return
		}
		if principal, err := auth.Authenticate(c.Request.Context(), token); err == nil {
			setPrincipal(c, principal)
		}
		c.Next()
	}
}

// CurrentPrincipal returns the caller stored by JWT, or nil.
func CurrentPrincipal(c *gin.Context) *models.Principal {
	value, ok := c.Get(ContextPrincipalKey)
	if !ok {
		return nil
	}
	principal, _ := value.(*models.Principal)
	return principal
}

func setPrincipal(c *gin.Context, principal *models.Principal) {
	c.Set(ContextPrincipalKey, principal)
	c.Set(logger.UserIDKey, principal.UserID)
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", appErrors.ErrUnauthenticated
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthenticated, "invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
