package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tb-api-sdk/gateway/internal/apierr"
	"github.com/tb-api-sdk/gateway/internal/service"
)

// Validates the admin JWT and requires authentication
func RequireAuth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			e := apierr.New(apierr.CodeAuthentication).WithMessage("Authorization header required")
			c.JSON(e.Status, e)
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			e := apierr.New(apierr.CodeAuthentication).WithMessage("Invalid authorization header format. Use: Bearer <token>")
			c.JSON(e.Status, e)
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			e := apierr.New(apierr.CodeAuthentication).WithMessage("Invalid or expired token")
			c.JSON(e.Status, e)
			c.Abort()
			return
		}

		c.Set("user_id", claims["user_id"])
		c.Set("email", claims["email"])
		c.Set("role", claims["role"])

		c.Next()
	}
}
