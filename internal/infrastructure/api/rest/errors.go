package rest

import (
	"errors"
	"net/http"

	"github.com/pixforge/genflow/pkg/apierr"
)

type APIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func NewAPIErrorWithDetails(code, message string, httpStatus int, details map[string]interface{}) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		Details:    details,
		HTTPStatus: httpStatus,
	}
}

var (
	ErrBadRequest       = NewAPIError("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrUnauthorized     = NewAPIError("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrForbidden        = NewAPIError("FORBIDDEN", "Access denied", http.StatusForbidden)
	ErrNotFound         = NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrValidationFailed = NewAPIError("VALIDATION_FAILED", "Validation failed", http.StatusBadRequest)
	ErrInternalServer   = NewAPIError("INTERNAL_ERROR", "Internal server error", http.StatusInternalServerError)
	ErrTooManyRequests  = NewAPIError("RATE_LIMIT_EXCEEDED", "Too many requests", http.StatusTooManyRequests)
	ErrInvalidJSON      = NewAPIError("INVALID_JSON", "Invalid JSON in request body", http.StatusBadRequest)
	ErrMissingParameter = NewAPIError("MISSING_PARAMETER", "Required parameter is missing", http.StatusBadRequest)
	ErrInvalidParameter = NewAPIError("INVALID_PARAMETER", "Invalid parameter value", http.StatusBadRequest)
	ErrInvalidID        = NewAPIError("INVALID_ID", "Invalid ID format", http.StatusBadRequest)
)

// apiErrCode picks a stable upper-case error code string for each
// apierr.Kind, used as the code field of the rendered APIError.
func apiErrCode(k apierr.Kind) string {
	switch k {
	case apierr.KindValidation:
		return "VALIDATION_FAILED"
	case apierr.KindNotFound:
		return "NOT_FOUND"
	case apierr.KindBadCursor:
		return "BAD_CURSOR"
	case apierr.KindBackendUnavailable:
		return "BACKEND_UNAVAILABLE"
	case apierr.KindBackendRejected:
		return "BACKEND_REJECTED"
	case apierr.KindTimeout:
		return "TIMEOUT"
	case apierr.KindCancelled:
		return "CANCELLED"
	case apierr.KindOutputMissing:
		return "OUTPUT_MISSING"
	default:
		return "INTERNAL_ERROR"
	}
}

// TranslateError maps a domain error onto the HTTP error envelope. Anything
// that isn't a tagged *apierr.Error falls back to a generic 500, since an
// untagged error leaking out of the application layer is itself a defect.
func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if ae, ok := apierr.As(err); ok {
		return NewAPIError(apiErrCode(ae.Kind), ae.Message, apierr.HTTPStatus(ae.Kind))
	}

	return NewAPIError("INTERNAL_ERROR", "An unexpected error occurred", http.StatusInternalServerError)
}
