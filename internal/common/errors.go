package common

import (
	"net/http"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ValidationError reports client-correctable bad input as HTTP 400.
func ValidationError(message string, details any) *AppError {
	return &AppError{Code: "BAD_REQUEST", Message: message, HTTPStatus: http.StatusBadRequest, Details: details}
}

// UnprocessableError reports well-formed input that could not be verified as HTTP 422.
func UnprocessableError(message string, details any) *AppError {
	return &AppError{Code: "UNPROCESSABLE", Message: message, HTTPStatus: http.StatusUnprocessableEntity, Details: details}
}

// UpstreamFailure reports a dependency failure as HTTP 502.
func UpstreamFailure(message string, err error, details any) *AppError {
	return &AppError{Code: "UPSTREAM_ERROR", Message: message, HTTPStatus: http.StatusBadGateway, Err: err, Details: details}
}
