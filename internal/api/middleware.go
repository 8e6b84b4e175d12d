// Package api - request middleware
package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aethra/gridbase/internal/audit"
	"github.com/aethra/gridbase/internal/auth"
)

const (
	ctxUserID    = "user_id"
	ctxUserEmail = "user_email"
	ctxRoles     = "roles"
)

// AuthMiddleware resolves the caller from a bearer token. Requests
// without a token proceed as guest; a token that does not validate is
// rejected outright.
func AuthMiddleware(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Set(ctxUserEmail, "anonymous")
			c.Set(ctxRoles, auth.RoleSet{auth.RoleGuest: true})
			c.Next()
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxUserEmail, claims.Email)
		c.Set(ctxRoles, auth.ParseRoles(claims.Roles))
		c.Next()
	}
}

// RequireRoles rejects callers holding none of the given roles. Super
// always passes.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		set := callerRoles(c)
		if set.IsSuper() {
			c.Next()
			return
		}
		for _, r := range roles {
			if set.Has(r) {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
		c.Abort()
	}
}

// bearerToken reads the token from the Authorization header or the
// xc-token header used by API clients.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.GetHeader("xc-token")
}

func callerRoles(c *gin.Context) auth.RoleSet {
	if v, exists := c.Get(ctxRoles); exists {
		if set, ok := v.(auth.RoleSet); ok {
			return set
		}
	}
	return auth.RoleSet{auth.RoleGuest: true}
}

func callerEmail(c *gin.Context) string {
	if v, exists := c.Get(ctxUserEmail); exists {
		if email, ok := v.(string); ok {
			return email
		}
	}
	return "anonymous"
}

func auditCtx(c *gin.Context) audit.Ctx {
	return audit.Ctx{User: callerEmail(c), IP: c.ClientIP()}
}
