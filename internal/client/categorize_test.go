package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"canceled", context.Canceled, ErrorCategoryCanceled},
		{"wrapped deadline", fmt.Errorf("%w: request timeout: %w", ErrUpstream, context.DeadlineExceeded), ErrorCategoryTimeout},
		{"connection refused", fmt.Errorf("%w: http request failed: %w", ErrUpstream, errors.New("dial tcp: connection refused")), ErrorCategoryNetwork},
		{"upstream status", fmt.Errorf("%w: HTTP 502", ErrUpstream), ErrorCategoryUpstream},
		{"malformed", errors.New("malformed response: unexpected end of JSON input"), ErrorCategoryParsing},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}
