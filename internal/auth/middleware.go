package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyPrincipal is the key for storing the authenticated principal in gin context
	ContextKeyPrincipal = "authPrincipal"
)

// Middleware extracts and validates the API key from the request.
// Sets the principal in context if valid.
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("Authorization")
		if apiKey == "" {
			apiKey = c.GetHeader("X-API-Key")
		}

		if apiKey != "" {
			principal, err := m.ValidateKey(c.Request.Context(), apiKey)
			if err == nil {
				c.Set(ContextKeyPrincipal, principal)
			}
		}

		c.Next()
	}
}

// RequireAuth rejects requests without a valid principal.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextKeyPrincipal); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "API key required. Include 'Authorization: Bearer sk_...' header.",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests whose principal is not an admin.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "API key required.",
			})
			return
		}
		if !p.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin role required.",
			})
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the authenticated principal from the gin context.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return Principal{}, false
	}
	p, ok := v.(*Principal)
	if !ok {
		return Principal{}, false
	}
	return *p, true
}
