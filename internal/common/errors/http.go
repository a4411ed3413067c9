// internal/common/errors/http.go
package errors

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// statusByCode maps internal error codes to HTTP status codes. Codes not
// listed here fall back to 500.
var statusByCode = map[ErrorCode]int{
	ErrCodeValidationFailed: http.StatusBadRequest,
	ErrCodePayloadTooLarge:  http.StatusRequestEntityTooLarge,
	ErrCodeUnsupportedMedia: http.StatusUnsupportedMediaType,

	ErrCodeInvalidCredentials: http.StatusUnauthorized,
	ErrCodeTokenInvalid:       http.StatusUnauthorized,
	ErrCodeTokenRevoked:       http.StatusUnauthorized,
	ErrCodeTOTPRequired:       http.StatusUnauthorized,
	ErrCodeTOTPInvalid:        http.StatusUnauthorized,
	ErrCodeEmailTaken:         http.StatusConflict,

	ErrCodePermissionDenied:      http.StatusForbidden,
	ErrCodePermissionCheckFailed: http.StatusForbidden, // fail closed

	ErrCodeNotFound:       http.StatusNotFound,
	ErrCodeConflict:       http.StatusConflict,
	ErrCodeInvalidStatus:  http.StatusConflict,
	ErrCodeRateLimited:    http.StatusTooManyRequests,
	ErrCodeQuotaExceeded:  http.StatusTooManyRequests,
	ErrCodeOwnerMismatch:  http.StatusForbidden,
	ErrCodeAlreadyDeleted: http.StatusGone,

	ErrCodeDatabaseFailed: http.StatusInternalServerError,
	ErrCodeStorageFailed:  http.StatusInternalServerError,
	ErrCodeSearchFailed:   http.StatusInternalServerError,
	ErrCodeCacheFailed:    http.StatusInternalServerError,
	ErrCodeEventFailed:    http.StatusInternalServerError,

	ErrCodeSTTFailed:      http.StatusBadGateway,
	ErrCodeTTSFailed:      http.StatusBadGateway,
	ErrCodeIntentFailed:   http.StatusBadGateway,
	ErrCodeUpstreamFailed: http.StatusBadGateway,
}

// HTTPStatus returns the HTTP status for an error code.
func HTTPStatus(code ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// WriteHTTP writes an error as the standard JSON envelope. It normalizes any
// error into a StandardError first, so handlers can pass through errors from
// lower layers directly.
func WriteHTTP(w http.ResponseWriter, err error) {
	stdErr := AsStandardError(err)
	status := HTTPStatus(stdErr.Code)

	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusTooManyRequests {
		if v, ok := stdErr.Metadata["retryAfterSeconds"]; ok {
			if secs, ok := v.(int); ok && secs > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}
		}
	}
	w.WriteHeader(status)

	details := stdErr.Details
	if status == http.StatusInternalServerError {
		// Internal details never leave the process boundary.
		details = ""
	}

	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{
		Code:    stdErr.Code,
		Message: stdErr.Message,
		Details: details,
	}})
}
