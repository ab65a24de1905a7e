// Package errors provides a unified error handling mechanism for nmtrl.
// It defines a structured error system with error codes, types, and helpful
// formatting capabilities so that the trainer, the CLI and the infrastructure
// adapters report failures the same way.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"

	json "github.com/goccy/go-json"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation indicates invalid input or parameters
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConfiguration indicates an invalid or unreadable run configuration
	ErrorTypeConfiguration ErrorType = "CONFIGURATION"

	// ErrorTypeNotFound indicates resource not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeData indicates malformed corpus or dataset content
	ErrorTypeData ErrorType = "DATA"

	// ErrorTypeInvariant indicates a broken training invariant; always fatal
	ErrorTypeInvariant ErrorType = "INVARIANT"

	// ErrorTypeStorage indicates checkpoint persistence failure
	ErrorTypeStorage ErrorType = "STORAGE"

	// ErrorTypeInfrastructure indicates infrastructure/external service error
	ErrorTypeInfrastructure ErrorType = "INFRASTRUCTURE"

	// ErrorTypeInternal indicates unexpected internal error
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// AppError represents a structured application error
type AppError struct {
	// Code is the error code (e.g., "TRAIN_001")
	Code string `json:"code"`

	// Type categorizes the error
	Type ErrorType `json:"type"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Details contains additional error context
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error
	Cause error `json:"-"`

	// Stack contains the stack trace (for internal errors)
	Stack string `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error chain unwrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is lets the standard errors.Is match two AppErrors by code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails adds additional context to the error
func (e *AppError) WithDetails(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// ToJSON serializes the error to JSON for status responses and event payloads
func (e *AppError) ToJSON() []byte {
	data, _ := json.Marshal(e)
	return data
}

// New creates a new AppError
func New(code string, errType ErrorType, message string) *AppError {
	return &AppError{
		Code:    code,
		Type:    errType,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new AppError with formatted message
func Newf(code string, errType ErrorType, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with AppError context
func Wrap(err error, code string, message string) *AppError {
	if err == nil {
		return nil
	}

	// If already an AppError, keep its category
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    code,
			Type:    appErr.Type,
			Message: message,
			Cause:   err,
			Details: make(map[string]interface{}),
		}
	}

	return &AppError{
		Code:    code,
		Type:    ErrorTypeInternal,
		Message: message,
		Cause:   err,
		Details: make(map[string]interface{}),
	}
}

// captureStack captures the current stack trace
func captureStack() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Is checks if any error in the chain carries a specific code
func Is(err error, code string) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsType checks if the outermost AppError in the chain matches a specific type
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Type == errType
}

// GetCode extracts the error code from an error
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return "UNKNOWN"
	}

	return appErr.Code
}

// ExitCode maps an error onto a process exit status for the CLI.
// Configuration and validation problems exit with 2, everything else with 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if IsType(err, ErrorTypeValidation) || IsType(err, ErrorTypeConfiguration) {
		return 2
	}
	return 1
}

// Common error constructors for frequent use cases

// ValidationError creates a validation error
func ValidationError(message string) *AppError {
	return New(CodeInvalidParameter, ErrorTypeValidation, message)
}

// ValidationErrorf creates a validation error with formatted message
func ValidationErrorf(format string, args ...interface{}) *AppError {
	return Newf(CodeInvalidParameter, ErrorTypeValidation, format, args...)
}

// NotFoundError creates a not found error
func NotFoundError(resource string) *AppError {
	return Newf(CodeNotFound, ErrorTypeNotFound, "%s not found", resource)
}

// InternalError creates an internal error
func InternalError(message string) *AppError {
	appErr := New(CodeInternalError, ErrorTypeInternal, message)
	appErr.Stack = captureStack()
	return appErr
}

// InternalErrorf creates an internal error with formatted message
func InternalErrorf(format string, args ...interface{}) *AppError {
	appErr := Newf(CodeInternalError, ErrorTypeInternal, format, args...)
	appErr.Stack = captureStack()
	return appErr
}

//Personal.AI order the ending
