package client

import (
	"context"
	"errors"
	"strings"
)

// ErrorCategory is a stable label for error classification in metrics and logs.
type ErrorCategory string

const (
	ErrorCategoryTimeout  ErrorCategory = "timeout"
	ErrorCategoryNetwork  ErrorCategory = "network"
	ErrorCategoryUpstream ErrorCategory = "upstream"
	ErrorCategoryParsing  ErrorCategory = "parsing"
	ErrorCategoryCanceled ErrorCategory = "canceled"
	ErrorCategoryUnknown  ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrorCategoryCanceled
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return ErrorCategoryTimeout
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "no such host") {
		return ErrorCategoryNetwork
	}
	if errors.Is(err, ErrUpstream) {
		return ErrorCategoryUpstream
	}
	if strings.Contains(errStr, "malformed") || strings.Contains(errStr, "parse") {
		return ErrorCategoryParsing
	}
	return ErrorCategoryUnknown
}
