package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrorClass represents a classification of client errors.
type ErrorClass string

const (
	// ErrorClassAuth represents a missing, malformed or expired credential.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassValidation represents a precondition failure before any network call.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassClient represents 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport failures, timeouts and cancellation.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassPartialData represents a response body that could not be interpreted.
	ErrorClassPartialData ErrorClass = "partial_data"
)

// Common errors returned by the client.
var (
	// ErrMissingCredential is wrapped by AuthError when no token is available.
	ErrMissingCredential = errors.New("missing credential")

	// ErrUnsupported is returned for operations a collection does not offer.
	ErrUnsupported = errors.New("operation not supported by collection")
)

// AuthError is returned before any network call when the credential is
// missing or unusable.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth error: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FieldError is a single failed precondition.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError reports failed preconditions of a mutating call.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s %s", f.Field, f.Message)
	}
	return fmt.Sprintf("validation error: %s", strings.Join(parts, "; "))
}

// HTTPError is a non-2xx backend response.
type HTTPError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s error (status %d) from %s: %s", e.Class(), e.StatusCode, e.Endpoint, e.Message)
}

// Class returns ErrorClassClient for 4xx and ErrorClassServer otherwise.
func (e *HTTPError) Class() ErrorClass {
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return ErrorClassClient
	}
	return ErrorClassServer
}

// NetworkError is a transport failure. Cancellation is reported as a
// NetworkError wrapping context.Canceled; see IsCancelled.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error on %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// PartialDataError reports a response body that could not be interpreted.
type PartialDataError struct {
	Endpoint string
	Reason   string
	Err      error
}

func (e *PartialDataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("partial data from %s: %s: %v", e.Endpoint, e.Reason, e.Err)
	}
	return fmt.Sprintf("partial data from %s: %s", e.Endpoint, e.Reason)
}

func (e *PartialDataError) Unwrap() error { return e.Err }

// Classify returns the ErrorClass of err, or "" for unknown errors.
func Classify(err error) ErrorClass {
	var (
		authErr       *AuthError
		validationErr *ValidationError
		httpErr       *HTTPError
		networkErr    *NetworkError
		partialErr    *PartialDataError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr):
		return ErrorClassAuth
	case errors.As(err, &validationErr):
		return ErrorClassValidation
	case errors.As(err, &httpErr):
		return httpErr.Class()
	case errors.As(err, &networkErr):
		return ErrorClassNetwork
	case errors.As(err, &partialErr):
		return ErrorClassPartialData
	default:
		return ""
	}
}

// IsCancelled reports whether err stems from a cancelled request. Cancelled
// requests were superseded by the caller and are not shown to users.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// validationError converts validator output into a ValidationError.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: []FieldError{{Field: "request", Message: err.Error()}}}
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg := "is invalid"
		switch fe.Tag() {
		case "required":
			msg = "is required"
		case "min":
			msg = fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		case "email":
			msg = "must be an email address"
		}
		fields = append(fields, FieldError{Field: fe.Field(), Message: msg})
	}
	return &ValidationError{Fields: fields}
}
