package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// GameServerKeyHeader carries the shared-secret credential presented by a
// game-world server on every call.
const GameServerKeyHeader = "X-GameServer-Key"

// ServerKey guards endpoints that only game-world servers may call. An empty
// configured key disables the endpoints entirely.
func ServerKey(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expected == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "server api disabled"})
			return
		}
		got := c.GetHeader(GameServerKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid server key"})
			return
		}
		c.Next()
	}
}
