package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tb-api-sdk/gateway/internal/apierr"
	"github.com/tb-api-sdk/gateway/internal/bulk"
	"github.com/tb-api-sdk/gateway/internal/thingsboard"
)

// TelemetryAPI is the slice of the upstream client the telemetry routes
// need.
type TelemetryAPI interface {
	UploadTelemetry(ctx context.Context, deviceID string, payload thingsboard.TelemetryPayload) (*thingsboard.UploadAck, error)
	UploadAttributes(ctx context.Context, deviceID, scope string, attrs map[string]any) error
}

type TelemetryHandler struct {
	client       TelemetryAPI
	orchestrator *bulk.Orchestrator
	debug        bool
}

func NewTelemetryHandler(client TelemetryAPI, orchestrator *bulk.Orchestrator, debug bool) *TelemetryHandler {
	return &TelemetryHandler{
		client:       client,
		orchestrator: orchestrator,
		debug:        debug,
	}
}

// Handles POST /api/v1/tb/devices/:device_id/telemetry
func (h *TelemetryHandler) Upload(c *gin.Context) {
	deviceID, ok := deviceIDParam(c)
	if !ok {
		return
	}

	var payload thingsboard.TelemetryPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		abortWith(c, apierr.Validation("Request body must map telemetry keys to data point arrays"))
		return
	}
	if len(payload) == 0 {
		abortWith(c, apierr.Validation("No telemetry data provided"))
		return
	}

	ack, err := h.client.UploadTelemetry(c.Request.Context(), deviceID, payload)
	if err != nil {
		log.Printf("[%s] telemetry upload failed for device %s: %v", c.GetString("request_id"), deviceID, err)
		abortWith(c, apierr.Normalize(err, h.debug))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "success",
		"timestamp":         time.Now().UnixMilli(),
		"device_id":         deviceID,
		"keys_uploaded":     ack.AcceptedKeys,
		"total_data_points": ack.AcceptedCount,
		"message":           uploadMessage(ack.AcceptedCount, len(ack.AcceptedKeys)),
	})
}

// Handles POST /api/v1/tb/telemetry/bulk
//
// Upstream outages never fail the batch as a whole: per-device failures
// come back inside a success-shaped report.
func (h *TelemetryHandler) BulkUpload(c *gin.Context) {
	var targets map[string]thingsboard.TelemetryPayload
	if err := c.ShouldBindJSON(&targets); err != nil {
		abortWith(c, apierr.Validation("Request body must map device ids to telemetry payloads"))
		return
	}

	report, err := h.orchestrator.Run(c.Request.Context(), targets)
	if err != nil {
		if c.Request.Context().Err() != nil {
			// Client went away; nothing to answer.
			c.Abort()
			return
		}
		abortWith(c, apierr.Normalize(err, h.debug))
		return
	}

	c.JSON(http.StatusOK, report)
}

// Handles POST /api/v1/tb/devices/:device_id/attributes/server
func (h *TelemetryHandler) UploadServerAttributes(c *gin.Context) {
	h.uploadAttributes(c, thingsboard.ScopeServer)
}

// Handles POST /api/v1/tb/devices/:device_id/attributes/shared
func (h *TelemetryHandler) UploadSharedAttributes(c *gin.Context) {
	h.uploadAttributes(c, thingsboard.ScopeShared)
}

func (h *TelemetryHandler) uploadAttributes(c *gin.Context, scope string) {
	deviceID, ok := deviceIDParam(c)
	if !ok {
		return
	}

	var attrs map[string]any
	if err := c.ShouldBindJSON(&attrs); err != nil {
		abortWith(c, apierr.Validation("Request body must be a JSON object of attributes"))
		return
	}
	if len(attrs) == 0 {
		abortWith(c, apierr.Validation("No attributes provided"))
		return
	}

	if err := h.client.UploadAttributes(c.Request.Context(), deviceID, scope, attrs); err != nil {
		log.Printf("[%s] attribute upload failed for device %s: %v", c.GetString("request_id"), deviceID, err)
		abortWith(c, apierr.Normalize(err, h.debug))
		return
	}

	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":              "success",
		"device_id":           deviceID,
		"scope":               scope,
		"attributes_uploaded": keys,
		"count":               len(attrs),
	})
}

func uploadMessage(points, keys int) string {
	return fmt.Sprintf("Successfully uploaded %d data points for %d telemetry keys", points, keys)
}
