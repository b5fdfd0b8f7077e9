package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tb-api-sdk/gateway/internal/apierr"
	"github.com/tb-api-sdk/gateway/internal/service"
)

// APIKeyValidator authenticates requests via the X-API-Key header.
//
// A statically configured key is accepted first; otherwise the key is
// looked up in the store. When neither a static key nor a store is
// configured the gateway runs open, matching the original deployment
// mode for local development.
func APIKeyValidator(apiKeyService *service.APIKeyService, staticKey string) gin.HandlerFunc {
	var staticHash [32]byte
	if staticKey != "" {
		staticHash = sha256.Sum256([]byte(staticKey))
	}

	return func(c *gin.Context) {
		if rateLimitExempt[c.Request.URL.Path] {
			c.Next()
			return
		}

		if staticKey == "" && apiKeyService == nil {
			c.Next()
			return
		}

		header := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if header == "" {
			e := apierr.New(apierr.CodeAuthentication).WithMessage("API key required. Provide X-API-Key header.")
			c.Header("WWW-Authenticate", "ApiKey")
			c.JSON(e.Status, e)
			c.Abort()
			return
		}

		if staticKey != "" {
			sum := sha256.Sum256([]byte(header))
			if subtle.ConstantTimeCompare(sum[:], staticHash[:]) == 1 {
				c.Set("api_key_id", "static")
				c.Next()
				return
			}
		}

		if apiKeyService != nil {
			ctx := c.Request.Context()
			apiKey, err := apiKeyService.Validate(ctx, header)
			if err == nil && apiKey != nil {
				c.Set("api_key", apiKey)
				c.Set("api_key_id", apiKey.ID.String())

				// Outlives the request on purpose.
				go apiKeyService.UpdateLastUsed(context.WithoutCancel(ctx), apiKey.ID)

				c.Next()
				return
			}
		}

		e := apierr.New(apierr.CodeAuthentication).WithMessage("Invalid API key")
		c.JSON(e.Status, e)
		c.Abort()
	}
}
