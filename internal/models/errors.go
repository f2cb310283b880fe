package models

import (
	"fmt"
	"net/http"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents invalid-argument errors (400)
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeAuthentication represents authentication errors (401)
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypeAuthorization represents policy-denied errors (403)
	ErrorTypeAuthorization ErrorType = "authorization"
	// ErrorTypeIdentityMismatch represents caller/record identity mismatches (403)
	ErrorTypeIdentityMismatch ErrorType = "identity_mismatch"
	// ErrorTypeNotFound represents resource not found errors (404)
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeInvalidState represents lifecycle-state violations (409)
	ErrorTypeInvalidState ErrorType = "invalid_state"
	// ErrorTypeNothingToWithdraw represents a zero accrual result (422)
	ErrorTypeNothingToWithdraw ErrorType = "nothing_to_withdraw"
	// ErrorTypeTransferFailure represents a rejected custody movement (422)
	ErrorTypeTransferFailure ErrorType = "transfer_failure"
	// ErrorTypeInternal represents internal server errors (500)
	ErrorTypeInternal ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitzero"`
	StatusCode int       `json:"-"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap allows error unwrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// GetStatusCode returns the HTTP status code for the error
func (e *AppError) GetStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeAuthorization, ErrorTypeIdentityMismatch:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeInvalidState:
		return http.StatusConflict
	case ErrorTypeNothingToWithdraw, ErrorTypeTransferFailure:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates an invalid-argument error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewIdentityMismatchError creates an identity-mismatch error
func NewIdentityMismatchError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeIdentityMismatch,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

// NewNotAuthorizedError creates a policy-denied error
func NewNotAuthorizedError(operation string) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthorization,
		Message:    fmt.Sprintf("caller is not authorized to %s this stream", operation),
		Code:       "NOT_AUTHORIZED",
		StatusCode: http.StatusForbidden,
	}
}

// NewInvalidStateError creates a lifecycle-state error
func NewInvalidStateError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidState,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewNothingToWithdrawError creates a zero-accrual error
func NewNothingToWithdrawError() *AppError {
	return &AppError{
		Type:       ErrorTypeNothingToWithdraw,
		Message:    "nothing to withdraw as of now",
		Code:       "NOTHING_TO_WITHDRAW",
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// NewTransferFailureError wraps a rejected custody movement
func NewTransferFailureError(cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTransferFailure,
		Message:    "custody transfer rejected",
		Code:       "TRANSFER_FAILURE",
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    "internal server error",
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// SanitizeError sanitizes an error for external consumption
func SanitizeError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Type:       appErr.Type,
			Message:    appErr.Message,
			Code:       appErr.Code,
			StatusCode: appErr.GetStatusCode(),
			// Don't expose internal cause
		}
	}

	return NewInternalError(err)
}
