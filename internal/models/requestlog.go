package models

import (
	"time"

	"github.com/google/uuid"
)

// Represents one logged gateway request
type RequestLog struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Timestamp      time.Time  `gorm:"index" json:"timestamp"`
	APIKeyID       *uuid.UUID `gorm:"index" json:"api_key_id,omitempty"`
	Identity       string     `gorm:"index" json:"identity"`
	Method         string     `json:"method"`
	Path           string     `gorm:"index" json:"path"`
	StatusCode     int        `gorm:"index" json:"status_code"`
	ResponseTimeMs int        `json:"response_time_ms"`
	IPAddress      string     `json:"ip_address"`
	UserAgent      string     `json:"user_agent"`
	RateLimited    bool       `gorm:"index" json:"rate_limited"`
}

func (RequestLog) TableName() string {
	return "request_logs"
}
