package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers use these instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationInvalidLat     ErrorCode = "validation_invalid_latitude"
	ErrCodeValidationInvalidLon     ErrorCode = "validation_invalid_longitude"
	ErrCodeValidationTimeWindow     ErrorCode = "validation_time_window_invalid"
	ErrCodeValidationThresholdRange ErrorCode = "validation_threshold_out_of_range"
	ErrCodeValidationMissingField   ErrorCode = "validation_missing_required_field"
	ErrCodeValidationMalformedBody  ErrorCode = "validation_malformed_body"

	// Not Found (404)
	ErrCodeNotFoundMonitor ErrorCode = "not_found_monitor"

	// Conflict (409)
	ErrCodeConflictCycleRunning ErrorCode = "conflict_cycle_running"

	// Internal/Upstream (500/502/503)
	ErrCodeInternalDB            ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected    ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamWeather       ErrorCode = "upstream_weather_unavailable"
	ErrCodeUpstreamForecast      ErrorCode = "upstream_forecast_unavailable"
	ErrCodeUpstreamUnavailable   ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited   ErrorCode = "upstream_rate_limited"
	ErrCodeForecastNotConfigured ErrorCode = "forecast_not_configured"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	case c == ErrCodeForecastNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the structured application error carried across layer
// boundaries. It wraps an underlying error for diagnostics while exposing
// only the Code and Message to API clients.
type AppError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
}

// NewAppError constructs an AppError wrapping the given underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// WithDetails attaches structured detail fields and returns the error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As chains.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status implied by the error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}
