package errors

// Helper functions for common error types to simplify error creation

// NewValidationError creates a validation error
func NewValidationError(code, message string) *AppError {
	return New(code, ErrorTypeValidation, message)
}

// NewDatabaseError creates a database error
func NewDatabaseError(code, message string) *AppError {
	return New(code, ErrorTypeInfrastructure, message)
}

// NewInternalError creates an internal error
func NewInternalError(code, message string) *AppError {
	return New(code, ErrorTypeInternal, message)
}

// WrapDatabaseError wraps an existing error as database error
func WrapDatabaseError(err error, code, message string) *AppError {
	return NewDatabaseError(code, message).WithCause(err)
}

// WrapStorageError wraps an existing error as checkpoint storage error
func WrapStorageError(err error, code, message string) *AppError {
	return New(code, ErrorTypeStorage, message).WithCause(err)
}

// WrapInternalError wraps an existing error as internal error
func WrapInternalError(err error, code, message string) *AppError {
	return NewInternalError(code, message).WithCause(err)
}

// Common error codes as constants
const (
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeNotFound         = "NOT_FOUND"
)
