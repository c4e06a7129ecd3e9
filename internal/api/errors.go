// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/homework-lens/backend/internal/config"
	"github.com/homework-lens/backend/internal/ingest"
	"github.com/homework-lens/backend/internal/storage"
	"github.com/homework-lens/backend/internal/upload"
	"github.com/homework-lens/backend/internal/workflow"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// FromDomainError translates errors from the registry, ingestion and
// workflow packages. Errors it does not recognise become INTERNAL_ERROR.
func FromDomainError(err error) *APIError {
	var (
		apiErr     *APIError
		notFound   *upload.NotFoundError
		cacheErr   *ingest.CacheError
		missingCfg *config.MissingConfigError
		remoteErr  *workflow.RemoteError
		ioErr      *storage.IOError
	)

	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &notFound):
		return NewNotFoundError("upload", notFound.ID)
	case errors.Is(err, ingest.ErrUnsupportedPayload):
		return &APIError{
			Status:  http.StatusBadRequest,
			Code:    "UNSUPPORTED_PAYLOAD",
			Message: err.Error(),
		}
	case errors.Is(err, ingest.ErrSourceNotAllowed):
		return &APIError{
			Status:  http.StatusForbidden,
			Code:    "SOURCE_NOT_ALLOWED",
			Message: err.Error(),
		}
	case errors.As(err, &cacheErr):
		return &APIError{
			Status:  http.StatusUnprocessableEntity,
			Code:    "CACHE_FAILED",
			Message: cacheErr.Error(),
		}
	case errors.As(err, &missingCfg):
		return &APIError{
			Status:  http.StatusServiceUnavailable,
			Code:    "MISSING_CONFIGURATION",
			Message: missingCfg.Error(),
		}
	case errors.As(err, &remoteErr):
		return &APIError{
			Status:  http.StatusBadGateway,
			Code:    "REMOTE_ERROR",
			Message: remoteErr.Error(),
		}
	case errors.As(err, &ioErr):
		return NewInternalError("storage operation failed", ioErr)
	default:
		return NewInternalError("An unexpected error occurred", err)
	}
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		apiErr = &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	} else {
		apiErr = FromDomainError(err)
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(apiErr.Status)
		return
	}
	c.JSON(apiErr.Status, apiErr)
}
