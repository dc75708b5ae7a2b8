package client

import (
	"context"
	"errors"
	"strings"
)

// ErrorCategory is a stable label for fetch-error classification in metrics.
type ErrorCategory string

// Error category constants used as metric labels (remoteFetchErrorsTotal).
const (
	ErrorCategoryNoData      ErrorCategory = "no_data"
	ErrorCategoryUnavailable ErrorCategory = "unavailable"
	ErrorCategoryParsing     ErrorCategory = "parsing"
	ErrorCategoryTimeout     ErrorCategory = "timeout"
	ErrorCategoryUnknown     ErrorCategory = "unknown"
)

// CategorizeError maps a fetch error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, ErrNoData) {
		return ErrorCategoryNoData
	}
	if errors.Is(err, ErrRemoteUnavailable) {
		return ErrorCategoryUnavailable
	}
	if errors.Is(err, ErrBadPayload) {
		return ErrorCategoryParsing
	}

	if strings.Contains(err.Error(), "timeout") {
		return ErrorCategoryTimeout
	}
	return ErrorCategoryUnknown
}
