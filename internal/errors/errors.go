package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	CategoryClient   ErrorCategory = "client"
	CategoryServer   ErrorCategory = "server"
	CategoryExternal ErrorCategory = "external"
)

// Common error codes
const (
	// Client errors (4xx)
	CodeValidationError    = "VALIDATION_ERROR"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeRateLimited        = "RATE_LIMITED"
	CodeUnsupportedContent = "UNSUPPORTED_CONTENT"
	CodeUnsupportedURL     = "UNSUPPORTED_URL"

	// Resource specific
	CodeDownloadNotFound = "DOWNLOAD_NOT_FOUND"
	CodeFileNotFound     = "FILE_NOT_FOUND"

	// Server errors (5xx)
	CodeInternalError       = "INTERNAL_ERROR"
	CodeDatabaseError       = "DATABASE_ERROR"
	CodeStorageError        = "STORAGE_ERROR"
	CodeInsufficientStorage = "INSUFFICIENT_STORAGE"
	CodeUnavailable         = "SERVICE_UNAVAILABLE"

	// External tool errors
	CodeExtractionFailed = "EXTRACTION_FAILED"
	CodeExternalTimeout  = "EXTERNAL_TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Category   ErrorCategory  `json:"-"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails merges details into the error
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithCause sets the underlying cause of the error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// WithStatus overrides the HTTP status, used for platform-specific
// extraction failures (private post, login wall, rate limited).
func (e *AppError) WithStatus(status int) *AppError {
	e.HTTPStatus = status
	return e
}

// New creates a new AppError
func New(code string, message string, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Category:   category,
		HTTPStatus: httpStatus,
	}
}

// Client error constructors

func BadRequest(message string) *AppError {
	return New(CodeInvalidRequest, message, CategoryClient, http.StatusBadRequest)
}

func ValidationError(message string) *AppError {
	return New(CodeValidationError, message, CategoryClient, http.StatusBadRequest)
}

func UnsupportedURL(url string) *AppError {
	return New(CodeUnsupportedURL, "unsupported or invalid URL", CategoryClient, http.StatusBadRequest).
		WithDetails(map[string]any{"url": url})
}

func UnsupportedContent(message string) *AppError {
	return New(CodeUnsupportedContent, message, CategoryClient, http.StatusUnprocessableEntity)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), CategoryClient, http.StatusNotFound)
}

func DownloadNotFound() *AppError {
	return New(CodeDownloadNotFound, "download not found", CategoryClient, http.StatusNotFound)
}

func FileNotFound() *AppError {
	return New(CodeFileNotFound, "File not found", CategoryClient, http.StatusNotFound)
}

func RateLimited() *AppError {
	return New(CodeRateLimited, "Too many requests. Please wait a moment and try again.", CategoryClient, http.StatusTooManyRequests)
}

// Server error constructors

func InternalError(message string) *AppError {
	return New(CodeInternalError, message, CategoryServer, http.StatusInternalServerError)
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message, CategoryServer, http.StatusInternalServerError)
}

func StorageError(message string) *AppError {
	return New(CodeStorageError, message, CategoryServer, http.StatusInternalServerError)
}

func Unavailable(message string) *AppError {
	return New(CodeUnavailable, message, CategoryServer, http.StatusServiceUnavailable)
}

// InsufficientStorage is the admission rejection. The body carries the
// human readable message and the free space in GB next to the error.
func InsufficientStorage(message string, freeGB float64) *AppError {
	return New(CodeInsufficientStorage, "Insufficient disk space", CategoryServer, http.StatusInsufficientStorage).
		WithDetails(map[string]any{"message": message, "freeGB": freeGB})
}

// External tool error constructors

func ExtractionFailed(message string) *AppError {
	return New(CodeExtractionFailed, message, CategoryExternal, http.StatusBadGateway)
}

func ExternalTimeout(service string) *AppError {
	return New(CodeExternalTimeout, fmt.Sprintf("%s request timed out", service), CategoryExternal, http.StatusGatewayTimeout)
}

// WriteError writes an error response to the HTTP response writer.
// The body is flat: {"error": message, "code": ..., "request_id": ...}
// with any details merged at the top level.
func WriteError(w http.ResponseWriter, requestID string, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = InternalError("an unexpected error occurred").WithCause(err)
	}

	body := make(map[string]any, len(appErr.Details)+3)
	for k, v := range appErr.Details {
		body[k] = v
	}
	body["error"] = appErr.Message
	body["code"] = appErr.Code
	if requestID != "" {
		body["request_id"] = requestID
	}

	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(appErr.HTTPStatus)
	json.NewEncoder(w).Encode(body)
}

// WriteJSON writes a JSON response with the request ID header
func WriteJSON(w http.ResponseWriter, requestID string, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// IsRetryable returns true if the error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}

	if appErr.Category == CategoryExternal {
		return appErr.Code != CodeExtractionFailed
	}

	if appErr.Category == CategoryServer {
		return appErr.Code != CodeDatabaseError && appErr.Code != CodeInsufficientStorage
	}

	return false
}

// StatusOf returns the HTTP status an error would be written with.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
