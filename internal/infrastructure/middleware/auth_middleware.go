package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"peercore/internal/infrastructure/signal"
)

// AuthMiddleware validates the Bearer JWT identifying the caller as a Peer
// and stores its claimed identity in the gin context for handlers (e.g. the
// admin dump endpoint) to read.
func AuthMiddleware(auth *signal.PeerAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := auth.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Set("peer_id", claims.PeerID)
		c.Set("peer_name", claims.PeerName)
		c.Next()
	}
}

// OptionalAuthMiddleware attaches peer identity to the context if a valid
// Bearer token is present, but never rejects the request on its own.
func OptionalAuthMiddleware(auth *signal.PeerAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			if claims, err := auth.ValidateToken(parts[1]); err == nil {
				c.Set("peer_id", claims.PeerID)
				c.Set("peer_name", claims.PeerName)
			}
		}

		c.Next()
	}
}
