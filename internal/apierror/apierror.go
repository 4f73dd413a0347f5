package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrValidation     ErrorCode = "VALIDATION"
	ErrRepository     ErrorCode = "REPOSITORY"
	ErrConflict       ErrorCode = "CONFLICT"
	ErrConsistency    ErrorCode = "CONSISTENCY"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrBadRequest     ErrorCode = "BAD_REQUEST"
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying error when Details holds one.
func (e APIError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	if details != nil {
		logrus.WithField("code", code).Error(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// CodeOf returns the code of the first APIError in err's chain, or an empty code.
func CodeOf(err error) ErrorCode {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// Is reports whether err carries an APIError with the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

func MapErrorToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrValidation, ErrBadRequest:
		return http.StatusBadRequest
	case ErrConsistency:
		return http.StatusUnprocessableEntity
	case ErrRepository:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
