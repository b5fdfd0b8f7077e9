package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tb-api-sdk/gateway/internal/apierr"
)

// abortWith writes a normalized error and stops the chain.
func abortWith(c *gin.Context, e *apierr.Error) {
	c.JSON(e.Status, e)
	c.Abort()
}

// deviceIDParam validates the :device_id path parameter. Device ids are
// upstream UUIDs; anything else is rejected before reaching upstream.
func deviceIDParam(c *gin.Context) (string, bool) {
	deviceID := c.Param("device_id")
	if _, err := uuid.Parse(deviceID); err != nil {
		abortWith(c, apierr.Validation("Invalid device ID format").WithDetail("field", "device_id"))
		return "", false
	}
	return deviceID, true
}
