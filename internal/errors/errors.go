// Package errors provides typed application errors with stable codes.
//
// Every failure the workflow core produces is an *AppError carrying a
// machine-readable code, so callers can branch on failure kind without
// string matching.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured application error.
type AppError struct {
	// Code is a machine-readable error code (e.g. "NO_APPROVER_FOR_ROLE").
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// HTTPStatus is the corresponding HTTP status code.
	HTTPStatus int `json:"-"`

	// Params carries structured context (role, department, ...) so an
	// administrator can fix routing without digging through logs.
	Params map[string]interface{} `json:"params,omitempty"`

	// Err is the wrapped underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithParams attaches structured parameters to the error.
func (e *AppError) WithParams(params map[string]interface{}) *AppError {
	if e == nil || len(params) == 0 {
		return e
	}
	e.Params = params
	return e
}

// New creates an AppError with the HTTP status inferred from the code.
func New(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: statusForCode(code),
	}
}

// Wrap wraps an existing error into an AppError.
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: statusForCode(code),
		Err:        err,
	}
}

// NotFound creates a NOT_FOUND error for a named resource.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s %s not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// InvalidInput creates an INVALID_INPUT error for a named field.
func InvalidInput(field, message string) *AppError {
	return &AppError{
		Code:       ErrCodeInvalidInput,
		Message:    fmt.Sprintf("%s: %s", field, message),
		HTTPStatus: http.StatusBadRequest,
	}
}

// IsAppError checks whether err is (or wraps) an AppError.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Code returns the error code of err, or ErrCodeInternal when err is not
// an AppError. Returns "" for nil.
func Code(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := IsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// statusForCode maps an error code to its HTTP status equivalent.
func statusForCode(code string) int {
	switch code {
	case ErrCodeNotFound, ErrCodeRequestNotFound, ErrCodeRequesterMissing:
		return http.StatusNotFound
	case ErrCodeInvalidInput, ErrCodeChainNotStarted:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeRuleConfigInvalid:
		return http.StatusConflict
	case ErrCodeUnauthorized, ErrCodeNotAssignedToCaller:
		return http.StatusForbidden
	case ErrCodeNoApplicableRule, ErrCodeRequesterHasNoDepartment, ErrCodeNoApproverForRole:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
