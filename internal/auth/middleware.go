package auth

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ctxAccountID = "account_id"
	ctxEmail     = "email"
	ctxRole      = "role"
)

// Require rejects requests without a valid token from issuer. When roles are given the
// token must carry one of them. The token is read from the issuer's cookie or from an
// "Authorization: Bearer" header.
func Require(issuer *Issuer, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearer(c.GetHeader("Authorization"))
		if raw == "" {
			raw, _ = c.Cookie(issuer.CookieName())
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		claims, err := issuer.Verify(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if len(roles) > 0 && !slices.Contains(roles, claims.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}

		c.Set(ctxAccountID, claims.Subject)
		c.Set(ctxEmail, claims.Email)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

func bearer(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// AccountID returns the authenticated account id set by Require.
func AccountID(c *gin.Context) string { return c.GetString(ctxAccountID) }

// Role returns the authenticated role set by Require.
func Role(c *gin.Context) string { return c.GetString(ctxRole) }
