package middleware

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tb-api-sdk/gateway/internal/models"
	"github.com/tb-api-sdk/gateway/internal/storage"
)

// Buffered channel for async logging
var logChannel chan models.RequestLog

// InitRequestLogger starts the background worker that batch-inserts
// request logs. Must be called once before RequestLogger is installed.
func InitRequestLogger(db *storage.Postgres, bufferSize int) {
	logChannel = make(chan models.RequestLog, bufferSize)

	go func() {
		batch := make([]models.RequestLog, 0, 100)
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case entry := <-logChannel:
				batch = append(batch, entry)

				if len(batch) >= 100 {
					insertBatch(db, batch)
					batch = make([]models.RequestLog, 0, 100)
				}
			case <-ticker.C:
				if len(batch) > 0 {
					insertBatch(db, batch)
					batch = make([]models.RequestLog, 0, 100)
				}
			}
		}
	}()
}

func insertBatch(db *storage.Postgres, logs []models.RequestLog) {
	if len(logs) == 0 {
		return
	}

	if err := db.DB.Create(&logs).Error; err != nil {
		log.Printf("failed to insert request logs: %v", err)
	}
}

// RequestLogger records every request for the usage analytics endpoints.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)

		var apiKeyID *uuid.UUID
		if apiKeyInterface, exists := c.Get("api_key"); exists {
			if key, ok := apiKeyInterface.(*models.APIKey); ok {
				apiKeyID = &key.ID
			}
		}

		entry := models.RequestLog{
			Timestamp:      start,
			APIKeyID:       apiKeyID,
			Identity:       ClientIdentity(c),
			Method:         c.Request.Method,
			Path:           c.Request.URL.Path,
			StatusCode:     c.Writer.Status(),
			ResponseTimeMs: int(duration.Milliseconds()),
			IPAddress:      c.ClientIP(),
			UserAgent:      c.Request.UserAgent(),
			RateLimited:    c.Writer.Status() == http.StatusTooManyRequests,
		}

		select {
		case logChannel <- entry:
		default:
			// Channel full, drop the entry rather than block the request.
		}
	}
}
