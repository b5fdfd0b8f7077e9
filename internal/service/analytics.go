package service

import (
	"context"
	"time"

	"github.com/tb-api-sdk/gateway/internal/models"
	"github.com/tb-api-sdk/gateway/internal/repository"
)

type AnalyticsService struct {
	repository *repository.RequestLogRepository
}

func NewAnalyticsService(repo *repository.RequestLogRepository) *AnalyticsService {
	return &AnalyticsService{repository: repo}
}

// Holds gateway usage summary data
type UsageSummary struct {
	TotalRequests   int64                    `json:"total_requests"`
	RateLimited     int64                    `json:"rate_limited"`
	AvgResponseTime float64                  `json:"avg_response_time_ms"`
	ErrorRate       float64                  `json:"error_rate"`
	SuccessRate     float64                  `json:"success_rate"`
	UpstreamErrors  int64                    `json:"upstream_errors"`
	TopEndpoints    []map[string]interface{} `json:"top_endpoints"`
	TopIdentities   []map[string]interface{} `json:"top_identities"`
}

// Retrieves a usage summary for a time range
func (s *AnalyticsService) GetSummary(ctx context.Context, from, to time.Time) (*UsageSummary, error) {
	summary := &UsageSummary{}

	totalRequests, err := s.repository.CountByTimeRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.TotalRequests = totalRequests

	if totalRequests == 0 {
		return summary, nil
	}

	rateLimited, err := s.repository.CountRateLimited(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.RateLimited = rateLimited

	avgResponseTime, err := s.repository.GetAverageResponseTime(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.AvgResponseTime = avgResponseTime

	clientErrors, err := s.repository.CountByStatusCodeRange(ctx, 400, 499, from, to)
	if err != nil {
		return nil, err
	}

	serverErrors, err := s.repository.CountByStatusCodeRange(ctx, 500, 599, from, to)
	if err != nil {
		return nil, err
	}

	upstreamErrors, err := s.repository.CountByStatusCodeRange(ctx, 502, 502, from, to)
	if err != nil {
		return nil, err
	}
	summary.UpstreamErrors = upstreamErrors

	totalErrors := clientErrors + serverErrors
	summary.ErrorRate = (float64(totalErrors) / float64(totalRequests)) * 100
	summary.SuccessRate = 100 - summary.ErrorRate

	topEndpoints, err := s.repository.GetTopEndpoints(ctx, from, to, 10)
	if err != nil {
		return nil, err
	}
	summary.TopEndpoints = topEndpoints

	topIdentities, err := s.repository.GetTopIdentities(ctx, from, to, 10)
	if err != nil {
		return nil, err
	}
	summary.TopIdentities = topIdentities

	return summary, nil
}

// Retrieves request logs with pagination
func (s *AnalyticsService) GetLogs(ctx context.Context, from, to time.Time, limit, offset int) ([]models.RequestLog, error) {
	return s.repository.FindByTimeRange(ctx, from, to, limit, offset)
}

// Deletes logs older than the retention period
func (s *AnalyticsService) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutOffDate := time.Now().AddDate(0, 0, -retentionDays)
	return s.repository.DeleteOldLogs(ctx, cutOffDate)
}
