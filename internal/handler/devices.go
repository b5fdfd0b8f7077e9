package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tb-api-sdk/gateway/internal/apierr"
)

// DeviceAPI is the slice of the upstream client the device routes need.
type DeviceAPI interface {
	ListDevices(ctx context.Context, page, pageSize int, textSearch string) (json.RawMessage, error)
	TelemetryKeys(ctx context.Context, deviceID string) ([]string, error)
	LatestTelemetry(ctx context.Context, deviceID string, keys []string) (json.RawMessage, error)
}

type DeviceHandler struct {
	client DeviceAPI
	debug  bool
}

func NewDeviceHandler(client DeviceAPI, debug bool) *DeviceHandler {
	return &DeviceHandler{client: client, debug: debug}
}

// Handles GET /api/v1/tb/devices
func (h *DeviceHandler) List(c *gin.Context) {
	page := 0
	if pageStr := c.Query("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p >= 0 {
			page = p
		}
	}

	pageSize := 100
	if sizeStr := c.Query("pageSize"); sizeStr != "" {
		if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 1000 {
			pageSize = s
		}
	}

	raw, err := h.client.ListDevices(c.Request.Context(), page, pageSize, c.Query("textSearch"))
	if err != nil {
		log.Printf("[%s] device list failed: %v", c.GetString("request_id"), err)
		abortWith(c, apierr.Normalize(err, h.debug))
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}

// Handles GET /api/v1/tb/devices/:device_id/keys
func (h *DeviceHandler) TelemetryKeys(c *gin.Context) {
	deviceID, ok := deviceIDParam(c)
	if !ok {
		return
	}

	keys, err := h.client.TelemetryKeys(c.Request.Context(), deviceID)
	if err != nil {
		abortWith(c, apierr.Normalize(err, h.debug))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device_id": deviceID,
		"keys":      keys,
	})
}

// Handles GET /api/v1/tb/devices/:device_id/telemetry/latest?keys=a,b
func (h *DeviceHandler) LatestTelemetry(c *gin.Context) {
	deviceID, ok := deviceIDParam(c)
	if !ok {
		return
	}

	var keys []string
	for _, key := range strings.Split(c.Query("keys"), ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		abortWith(c, apierr.Validation("At least one telemetry key must be specified"))
		return
	}

	raw, err := h.client.LatestTelemetry(c.Request.Context(), deviceID, keys)
	if err != nil {
		abortWith(c, apierr.Normalize(err, h.debug))
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}
