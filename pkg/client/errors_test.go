package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ""},
		{"auth", &AuthError{Reason: "no token supplied"}, ErrorClassAuth},
		{"validation", &ValidationError{Fields: []FieldError{{Field: "ids", Message: "is required"}}}, ErrorClassValidation},
		{"4xx", &HTTPError{StatusCode: 404}, ErrorClassClient},
		{"5xx", &HTTPError{StatusCode: 502}, ErrorClassServer},
		{"network", &NetworkError{Err: errors.New("refused")}, ErrorClassNetwork},
		{"partial", &PartialDataError{Reason: "not json"}, ErrorClassPartialData},
		{"wrapped", fmt.Errorf("fetch page 3: %w", &HTTPError{StatusCode: 500}), ErrorClassServer},
		{"unknown", errors.New("boom"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_Messages(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains []string
	}{
		{
			name:     "http error",
			err:      &HTTPError{StatusCode: 500, Message: "db down", Endpoint: "/getOrdersByState"},
			contains: []string{"server", "500", "/getOrdersByState", "db down"},
		},
		{
			name:     "validation error",
			err:      &ValidationError{Fields: []FieldError{{Field: "ids", Message: "is required"}, {Field: "user", Message: "is required"}}},
			contains: []string{"ids is required", "user is required"},
		},
		{
			name:     "auth error",
			err:      &AuthError{Reason: "token expired", Err: errors.New("exp")},
			contains: []string{"token expired", "exp"},
		},
		{
			name:     "partial data",
			err:      &PartialDataError{Endpoint: "/products", Reason: "not json"},
			contains: []string{"/products", "not json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("Error() = %q, missing %q", msg, want)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	inner := errors.New("dial tcp: refused")

	if !errors.Is(&NetworkError{Err: inner}, inner) {
		t.Error("NetworkError should unwrap")
	}
	if !errors.Is(&AuthError{Err: ErrMissingCredential}, ErrMissingCredential) {
		t.Error("AuthError should unwrap")
	}
	if !errors.Is(&PartialDataError{Err: inner}, inner) {
		t.Error("PartialDataError should unwrap")
	}
}

func TestIsCancelled(t *testing.T) {
	if !IsCancelled(&NetworkError{Err: fmt.Errorf("%w: request aborted", context.Canceled)}) {
		t.Error("wrapped context.Canceled should count as cancelled")
	}
	if IsCancelled(&NetworkError{Err: context.DeadlineExceeded}) {
		t.Error("timeouts are user-visible, not cancellations")
	}
	if IsCancelled(nil) {
		t.Error("nil is not a cancellation")
	}
}

func TestValidationError_FromNonValidatorError(t *testing.T) {
	err := validationError(errors.New("invalid input"))
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields[0].Field != "request" {
		t.Errorf("unexpected conversion %v", err)
	}
}
