// Package errors provides standardized error handling for the platform services.
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Validation / request errors
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodePayloadTooLarge  ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrCodeUnsupportedMedia ErrorCode = "UNSUPPORTED_MEDIA_TYPE"

	// Auth errors
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeTokenInvalid       ErrorCode = "TOKEN_INVALID"
	ErrCodeTokenRevoked       ErrorCode = "TOKEN_REVOKED"
	ErrCodeTOTPRequired       ErrorCode = "TOTP_REQUIRED"
	ErrCodeTOTPInvalid        ErrorCode = "TOTP_INVALID"
	ErrCodeEmailTaken         ErrorCode = "EMAIL_TAKEN"

	// Permission errors
	ErrCodePermissionDenied      ErrorCode = "PERMISSION_DENIED"
	ErrCodePermissionCheckFailed ErrorCode = "PERMISSION_CHECK_FAILED"

	// Resource errors
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeConflict       ErrorCode = "CONFLICT"
	ErrCodeInvalidStatus  ErrorCode = "INVALID_STATUS_TRANSITION"
	ErrCodeRateLimited    ErrorCode = "RATE_LIMITED"
	ErrCodeQuotaExceeded  ErrorCode = "QUOTA_EXCEEDED"
	ErrCodeOwnerMismatch  ErrorCode = "OWNER_MISMATCH"
	ErrCodeAlreadyDeleted ErrorCode = "ALREADY_DELETED"

	// Infrastructure errors
	ErrCodeDatabaseFailed ErrorCode = "DATABASE_FAILED"
	ErrCodeStorageFailed  ErrorCode = "STORAGE_FAILED"
	ErrCodeSearchFailed   ErrorCode = "SEARCH_FAILED"
	ErrCodeCacheFailed    ErrorCode = "CACHE_FAILED"
	ErrCodeEventFailed    ErrorCode = "EVENT_PUBLISH_FAILED"

	// Vendor / upstream errors
	ErrCodeSTTFailed      ErrorCode = "STT_FAILED"
	ErrCodeTTSFailed      ErrorCode = "TTS_FAILED"
	ErrCodeIntentFailed   ErrorCode = "INTENT_CLASSIFICATION_FAILED"
	ErrCodeUpstreamFailed ErrorCode = "UPSTREAM_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationError creates a non-retryable request validation error.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Request validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewConflictError signals a uniqueness or concurrent-update conflict.
func NewConflictError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConflict,
		Message:   "Resource conflict",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPayloadTooLargeError signals an upload over the configured size cap.
func NewPayloadTooLargeError(maxBytes int64) *StandardError {
	return &StandardError{
		Code:      ErrCodePayloadTooLarge,
		Message:   "Payload exceeds the maximum allowed size",
		Details:   fmt.Sprintf("maximum size is %d bytes", maxBytes),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnsupportedMediaError signals a file type outside the allowlist.
func NewUnsupportedMediaError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnsupportedMedia,
		Message:   "Unsupported file type",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidCredentialsError creates a uniform authentication failure.
// The details intentionally never distinguish a missing user from a bad
// password.
func NewInvalidCredentialsError() *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidCredentials,
		Message:   "Invalid email or password",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTokenInvalidError creates a non-retryable token error.
func NewTokenInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTokenInvalid,
		Message:   "Token is invalid or expired",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTokenRevokedError signals a refresh token that was already rotated or
// revoked.
func NewTokenRevokedError() *StandardError {
	return &StandardError{
		Code:      ErrCodeTokenRevoked,
		Message:   "Token has been revoked",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEmailTakenError creates a registration conflict error.
func NewEmailTakenError(email string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEmailTaken,
		Message:   "Email is already registered",
		Details:   fmt.Sprintf("email: %s", email),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPermissionDeniedError creates a non-retryable authorization error.
func NewPermissionDeniedError(permission string) *StandardError {
	return &StandardError{
		Code:      ErrCodePermissionDenied,
		Message:   "Permission denied",
		Details:   fmt.Sprintf("permission: %s", permission),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPermissionCheckFailedError creates a retryable error for a failed
// permission lookup. Callers must treat it as a denial (fail closed).
func NewPermissionCheckFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePermissionCheckFailed,
		Message:   "Permission check failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError creates a non-retryable missing resource error.
func NewNotFoundError(resource, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", resource),
		Details:   fmt.Sprintf("id: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidStatusError creates a non-retryable state machine violation.
func NewInvalidStatusError(from, to string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidStatus,
		Message:   "Invalid status transition",
		Details:   fmt.Sprintf("from: %s, to: %s", from, to),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitedError creates a retryable rate-limit error.
func NewRateLimitedError(retryAfterSeconds int) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimited,
		Message:   "Rate limit exceeded",
		Retryable: true,
		Metadata:  map[string]interface{}{"retryAfterSeconds": retryAfterSeconds},
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseError creates a retryable database error.
func NewDatabaseError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseFailed,
		Message:   "Database operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStorageError creates a retryable object storage error.
func NewStorageError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStorageFailed,
		Message:   "Object storage operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchError creates a retryable search backend error.
func NewSearchError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchFailed,
		Message:   "Search operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewVendorError creates a retryable upstream vendor error.
func NewVendorError(code ErrorCode, vendor string, err error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   fmt.Sprintf("Upstream %s call failed", vendor),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError wraps an unexpected error.
func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// AsStandardError normalizes any error into a StandardError.
func AsStandardError(err error) *StandardError {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr
	}
	return NewInternalError(err)
}
