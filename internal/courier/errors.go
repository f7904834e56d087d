package courier

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotSupported is returned when a provider does not implement an operation.
	ErrNotSupported = errors.New("courier: operation not supported by provider")
	// ErrNotConfigured is returned when a provider is missing required credentials.
	ErrNotConfigured = errors.New("courier: provider not configured")
	// ErrInvalidWeight is returned when a quote request carries a non-positive weight.
	ErrInvalidWeight = errors.New("courier: weight must be a positive number of grams")
	// ErrUnsupportedProvider is returned when the requested provider is unknown or disabled.
	ErrUnsupportedProvider = errors.New("courier: unsupported provider")
	// ErrPointNotFound is returned when a pickup point code resolves under no lookup strategy.
	ErrPointNotFound = errors.New("courier: pickup point not found for provider")
	// ErrMissingPickupCode is returned when a pickup delivery lacks a point code.
	ErrMissingPickupCode = errors.New("courier: pickup point code is required")
)

// ProviderError is the normalised shape of any upstream courier failure:
// network errors, auth failures and non-2xx responses all collapse into it.
type ProviderError struct {
	Provider Code
	Status   int
	Message  string
	Details  any
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Provider, msg)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// HTTPStatus returns the HTTP-equivalent status, defaulting to 502.
func (e *ProviderError) HTTPStatus() int {
	if e == nil || e.Status == 0 {
		return http.StatusBadGateway
	}
	return e.Status
}

// NewProviderError builds a ProviderError with the 502 default applied.
func NewProviderError(provider Code, status int, message string, details any, err error) *ProviderError {
	if status == 0 {
		status = http.StatusBadGateway
	}
	return &ProviderError{Provider: provider, Status: status, Message: message, Details: details, Err: err}
}
