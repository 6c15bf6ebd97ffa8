package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/hireloop/hireloop/internal/auth"
	"github.com/hireloop/hireloop/pkg/errors"
	"github.com/hireloop/hireloop/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxPrincipalKey = "principal"
)

// Auth enforces JWT authentication using the supplied JWT service.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		// Propagate the principal into request context
		c.Set(CtxClaimsKey, claims)
		c.Set(CtxPrincipalKey, iauth.PrincipalFromClaims(claims))

		c.Next()
	}
}

// RequireAdmin rejects requests whose principal lacks the administrator role.
// Must run after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !principal.IsAdmin() {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// PrincipalFrom extracts the authenticated principal set by Auth.
func PrincipalFrom(c *gin.Context) (iauth.Principal, bool) {
	value, exists := c.Get(CtxPrincipalKey)
	if !exists {
		return iauth.Principal{}, false
	}
	principal, ok := value.(iauth.Principal)
	return principal, ok
}
