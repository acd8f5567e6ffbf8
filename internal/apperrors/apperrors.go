// Package apperrors defines the API error taxonomy returned by the monitor
// service's HTTP handlers.
package apperrors

import "net/http"

// APIError is a typed, user-facing error with an HTTP status and a stable
// machine-readable code, mirrored into every JSON error envelope.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Message
}

// WithMessage returns a copy of the error with a more specific message,
// preserving the status and code for response classification.
func (e *APIError) WithMessage(msg string) *APIError {
	return &APIError{HTTPStatus: e.HTTPStatus, Code: e.Code, Message: msg}
}

// NewAPIError is an alias for WithMessage kept for call-site symmetry with
// the predefined error variables: NewAPIError(ErrInternalServer, "...").
func NewAPIError(base *APIError, msg string) *APIError {
	return base.WithMessage(msg)
}

var (
	ErrBadRequest        = &APIError{HTTPStatus: http.StatusBadRequest, Code: "BAD_REQUEST", Message: "Invalid request parameters"}
	ErrInvalidJSON       = &APIError{HTTPStatus: http.StatusBadRequest, Code: "INVALID_JSON", Message: "Request body is not valid JSON"}
	ErrValidation        = &APIError{HTTPStatus: http.StatusBadRequest, Code: "VALIDATION_FAILED", Message: "Request failed validation"}
	ErrUnauthorized      = &APIError{HTTPStatus: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "Missing or invalid credentials"}
	ErrForbidden         = &APIError{HTTPStatus: http.StatusForbidden, Code: "FORBIDDEN", Message: "Not allowed to perform this action"}
	ErrNotFound          = &APIError{HTTPStatus: http.StatusNotFound, Code: "NOT_FOUND", Message: "Resource not found"}
	ErrVersionNotFound   = &APIError{HTTPStatus: http.StatusNotFound, Code: "VERSION_NOT_FOUND", Message: "No errors recorded for this version"}
	ErrErrorNotFound     = &APIError{HTTPStatus: http.StatusNotFound, Code: "ERROR_NOT_FOUND", Message: "No error with this key is known"}
	ErrStoreUnavailable  = &APIError{HTTPStatus: http.StatusServiceUnavailable, Code: "STORE_UNAVAILABLE", Message: "Backing store is unavailable"}
	ErrWarehouseFailure  = &APIError{HTTPStatus: http.StatusBadGateway, Code: "WAREHOUSE_FAILURE", Message: "Warehouse query failed"}
	ErrLogHourIncomplete = &APIError{HTTPStatus: http.StatusConflict, Code: "LOG_HOUR_INCOMPLETE", Message: "Requested log hour has not finished writing"}
	ErrInternalServer    = &APIError{HTTPStatus: http.StatusInternalServerError, Code: "INTERNAL_SERVER_ERROR", Message: "An unexpected error occurred"}
)
