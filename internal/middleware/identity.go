package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// ClientIdentity returns the stable key a request is rate-limited by.
// Requests carrying a validated API key are limited per key; everything
// else is limited per network origin, honoring proxy forwarding headers.
func ClientIdentity(c *gin.Context) string {
	if keyID := c.GetString("api_key_id"); keyID != "" {
		return "key:" + keyID
	}
	return "ip:" + clientIP(c)
}

func clientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		// First hop in the chain is the originating client.
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			forwarded = forwarded[:idx]
		}
		if ip := strings.TrimSpace(forwarded); ip != "" {
			return ip
		}
	}

	if realIP := strings.TrimSpace(c.GetHeader("X-Real-IP")); realIP != "" {
		return realIP
	}

	return c.ClientIP()
}
