package api

import (
	"net/http"

	"market-service/internal/auth"

	"github.com/gin-gonic/gin"
)

const userIDKey = "user_id"

// requireAuth rejects requests without a valid bearer token
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		userID, err := h.tokens.Verify(tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// optionalAuth identifies the caller when a valid token is present
func (h *Handler) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok, ok := auth.BearerToken(c.GetHeader("Authorization")); ok {
			if userID, err := h.tokens.Verify(tok); err == nil {
				c.Set(userIDKey, userID)
			}
		}
		c.Next()
	}
}

// callerID returns the authenticated user id, or "" for anonymous callers
func callerID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
