package middleware

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/tb-api-sdk/gateway/internal/apierr"
)

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := c.GetString("request_id")
				log.Printf("[%s] PANIC: %v", requestID, err)

				e := apierr.New(apierr.CodeInternal)
				c.JSON(e.Status, e)
				c.Abort()
			}
		}()
		c.Next()
	}
}
