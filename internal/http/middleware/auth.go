// README: Bearer-token auth middleware; exposes the caller's uid, role and claims to handlers.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dispatch/internal/infra"
)

const (
	ctxUID    = "auth.uid"
	ctxRole   = "auth.role"
	ctxClaims = "auth.claims"
)

// Auth verifies the Authorization: Bearer token and stores the caller in the
// gin context. Requests without a valid token are rejected with 401.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil || token == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxUID, token.UID)
		if role, ok := token.Claims["role"].(string); ok {
			c.Set(ctxRole, role)
		}
		c.Set(ctxClaims, token.Claims)
		c.Next()
	}
}

// RequireRole lets the request through only for the listed roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CallerRole(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden: role " + strings.Join(roles, " or ") + " required"})
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}

// CallerClaim returns a string claim, or "" when it is absent.
func CallerClaim(c *gin.Context, key string) string {
	claims, _ := c.Get(ctxClaims)
	m, _ := claims.(map[string]interface{})
	s, _ := m[key].(string)
	return s
}

// CallerApproved reports the "approved" claim set for vetted courier accounts.
func CallerApproved(c *gin.Context) bool {
	claims, _ := c.Get(ctxClaims)
	m, _ := claims.(map[string]interface{})
	approved, _ := m["approved"].(bool)
	return approved
}
