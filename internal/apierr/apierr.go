// Package apierr defines the error contract exposed to API callers.
//
// Every failure that can reach a response body is collapsed into one of a
// closed set of error codes with a sanitized message. Internal detail is
// only attached in debug mode.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Code string

const (
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeAuthentication Code = "AUTHENTICATION_FAILED"
	CodeRateLimited    Code = "RATE_LIMIT_EXCEEDED"
	CodeNotFound       Code = "RESOURCE_NOT_FOUND"
	CodeUpstream       Code = "UPSTREAM_ERROR"
	CodeInternal       Code = "INTERNAL_ERROR"
)

// Error is the normalized error shape returned by every endpoint.
type Error struct {
	Status    int            `json:"status"`
	Code      Code           `json:"error_code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// statusFor maps each code to its HTTP status.
var statusFor = map[Code]int{
	CodeValidation:     http.StatusBadRequest,
	CodeAuthentication: http.StatusUnauthorized,
	CodeRateLimited:    http.StatusTooManyRequests,
	CodeNotFound:       http.StatusNotFound,
	CodeUpstream:       http.StatusBadGateway,
	CodeInternal:       http.StatusInternalServerError,
}

// sanitizedFor holds the fixed production message per code. Nothing about
// the internal cause may leak through these.
var sanitizedFor = map[Code]string{
	CodeValidation:     "The request contains invalid data. Please check your input and try again.",
	CodeAuthentication: "Authentication is required to access this resource.",
	CodeRateLimited:    "Too many requests. Please slow down and try again later.",
	CodeNotFound:       "The requested resource was not found.",
	CodeUpstream:       "The backend service is temporarily unavailable.",
	CodeInternal:       "An internal server error occurred. Please try again later.",
}

// New builds a normalized error with the sanitized message for code.
func New(code Code) *Error {
	return &Error{
		Status:    statusFor[code],
		Code:      code,
		Message:   sanitizedFor[code],
		Timestamp: time.Now().UnixMilli(),
	}
}

// WithMessage overrides the sanitized message. Callers must only pass
// strings that are safe to show to API clients.
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// WithDetail attaches one structured detail field.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Validation builds a VALIDATION_ERROR carrying a caller-safe reason.
func Validation(reason string) *Error {
	return New(CodeValidation).WithMessage(reason)
}

// RateLimited builds a RATE_LIMIT_EXCEEDED error with the decision values
// the route layer must surface.
func RateLimited(limit int, window time.Duration, retryAfter time.Duration) *Error {
	seconds := int(retryAfter.Seconds())
	if seconds < 0 {
		seconds = 0
	}
	return New(CodeRateLimited).
		WithMessage(fmt.Sprintf("Rate limit exceeded. Maximum %d requests per %d seconds allowed.", limit, int(window.Seconds()))).
		WithDetail("limit", limit).
		WithDetail("window_seconds", int(window.Seconds())).
		WithDetail("retry_after", seconds)
}

// Upstream builds an UPSTREAM_ERROR. The upstream status code is recorded
// in the detail map only when debug is set.
func Upstream(statusCode int, internal string, debug bool) *Error {
	e := New(CodeUpstream)
	if debug {
		if statusCode > 0 {
			e.WithDetail("upstream_status", statusCode)
		}
		if internal != "" {
			e.WithDetail("cause", internal)
		}
	}
	return e
}

// upstreamCoded is implemented by upstream client errors that carry the
// remote status code (kept as an interface so this package stays a leaf).
type upstreamCoded interface {
	error
	UpstreamStatus() int
}

// Normalize maps an arbitrary internal failure onto the closed taxonomy.
// The mapping is total: anything unrecognized becomes INTERNAL_ERROR.
func Normalize(err error, debug bool) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var coded upstreamCoded
	if errors.As(err, &coded) {
		return Upstream(coded.UpstreamStatus(), coded.Error(), debug)
	}

	// An upstream call that ran out of time is an upstream failure from
	// the caller's point of view, not an internal one.
	if errors.Is(err, context.DeadlineExceeded) {
		return Upstream(0, "upstream call timed out", debug)
	}

	e := New(CodeInternal)
	if debug {
		e.WithDetail("cause", err.Error())
	}
	return e
}
