package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onixgrid/bapbridge/internal/profile"
)

// Middleware resolves an API key from the request headers into a buyer
// profile. It never rejects on its own: unauthenticated requests pass
// through with no subject set, and the normalizer decides whether the
// request shape requires an identity.
func Middleware(store profile.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := ExtractKey(c.GetHeader("Authorization"), c.GetHeader("X-API-Key"))
		if raw != "" {
			p, err := store.FindByAPIKeyHash(c.Request.Context(), HashKey(raw))
			if err == nil {
				c.Set(ContextKeyProfile, p)
				c.Set(ContextKeySubject, p.Subject)
			}
		}
		c.Next()
	}
}

// RequireAuth rejects requests that did not resolve to a profile.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextKeyProfile); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "API key required. Include 'Authorization: Bearer ...' header.",
				},
			})
			return
		}
		c.Next()
	}
}

// GetProfile returns the resolved buyer profile from context.
func GetProfile(c *gin.Context) (*profile.Profile, bool) {
	v, exists := c.Get(ContextKeyProfile)
	if !exists {
		return nil, false
	}
	return v.(*profile.Profile), true
}

// Subject returns the authenticated subject, or "" when anonymous.
func Subject(c *gin.Context) string {
	v, exists := c.Get(ContextKeySubject)
	if !exists {
		return ""
	}
	return v.(string)
}
