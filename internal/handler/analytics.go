package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tb-api-sdk/gateway/internal/apierr"
	"github.com/tb-api-sdk/gateway/internal/service"
)

type AnalyticsHandler struct {
	service *service.AnalyticsService
	debug   bool
}

func NewAnalyticsHandler(service *service.AnalyticsService, debug bool) *AnalyticsHandler {
	return &AnalyticsHandler{service: service, debug: debug}
}

// Defaults to the last 24 hours when no range is given.
func parseTimeRange(c *gin.Context) (time.Time, time.Time, *apierr.Error) {
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, apierr.Validation("Parameter 'from' must be RFC3339").WithDetail("field", "from")
		}
		from = parsed
	}

	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, apierr.Validation("Parameter 'to' must be RFC3339").WithDetail("field", "to")
		}
		to = parsed
	}

	if !to.After(from) {
		return time.Time{}, time.Time{}, apierr.Validation("Parameter 'to' must be after 'from'")
	}

	return from, to, nil
}

func (h *AnalyticsHandler) Summary(c *gin.Context) {
	from, to, aerr := parseTimeRange(c)
	if aerr != nil {
		abortWith(c, aerr)
		return
	}

	summary, err := h.service.GetSummary(c.Request.Context(), from, to)
	if err != nil {
		abortWith(c, apierr.Normalize(err, h.debug))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"from":    from.Format(time.RFC3339),
		"to":      to.Format(time.RFC3339),
		"summary": summary,
	})
}

func (h *AnalyticsHandler) Logs(c *gin.Context) {
	from, to, aerr := parseTimeRange(c)
	if aerr != nil {
		abortWith(c, aerr)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 || limit > 1000 {
		abortWith(c, apierr.Validation("Parameter 'limit' must be between 1 and 1000").WithDetail("field", "limit"))
		return
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		abortWith(c, apierr.Validation("Parameter 'offset' must be non-negative").WithDetail("field", "offset"))
		return
	}

	logs, svcErr := h.service.GetLogs(c.Request.Context(), from, to, limit, offset)
	if svcErr != nil {
		abortWith(c, apierr.Normalize(svcErr, h.debug))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(logs),
		"logs":  logs,
	})
}

func (h *AnalyticsHandler) Cleanup(c *gin.Context) {
	retentionDays, err := strconv.Atoi(c.DefaultQuery("retention_days", "30"))
	if err != nil || retentionDays < 1 {
		abortWith(c, apierr.Validation("Parameter 'retention_days' must be a positive integer").WithDetail("field", "retention_days"))
		return
	}

	deleted, svcErr := h.service.CleanupOldLogs(c.Request.Context(), retentionDays)
	if svcErr != nil {
		abortWith(c, apierr.Normalize(svcErr, h.debug))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deleted":        deleted,
		"retention_days": retentionDays,
	})
}
