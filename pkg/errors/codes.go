// Package errors defines error code constants for nmtrl.
// Each error code includes a unique identifier, a category and a message
// template for consistent error handling across the trainer.
package errors

import "fmt"

// ErrorCode represents a structured error code definition
type ErrorCode struct {
	Code    string
	Type    ErrorType
	Message string
}

// Standard error codes organized by category

// ============================================================================
// Configuration Errors (CFG_xxx)
// ============================================================================

var (
	// ErrConfigLoad indicates the configuration file could not be read or parsed
	ErrConfigLoad = ErrorCode{
		Code:    "CFG_001",
		Type:    ErrorTypeConfiguration,
		Message: "Failed to load configuration",
	}

	// ErrConfigInvalid indicates the configuration failed validation
	ErrConfigInvalid = ErrorCode{
		Code:    "CFG_002",
		Type:    ErrorTypeConfiguration,
		Message: "Invalid configuration: %s",
	}
)

// ============================================================================
// Data Errors (DATA_xxx)
// ============================================================================

var (
	// ErrDataOpen indicates a corpus file could not be opened
	ErrDataOpen = ErrorCode{
		Code:    "DATA_001",
		Type:    ErrorTypeData,
		Message: "Failed to open corpus file %s",
	}

	// ErrDataParallelMismatch indicates source and target sides differ in line count
	ErrDataParallelMismatch = ErrorCode{
		Code:    "DATA_002",
		Type:    ErrorTypeData,
		Message: "Parallel corpus sides differ in length: %d source vs %d target lines",
	}

	// ErrDataBatchOutOfRange indicates a batch index past the end of a dataset
	ErrDataBatchOutOfRange = ErrorCode{
		Code:    "DATA_003",
		Type:    ErrorTypeData,
		Message: "Batch index %d out of range [0, %d)",
	}

	// ErrDataEmptyCorpus indicates a training corpus with no sentence pairs
	ErrDataEmptyCorpus = ErrorCode{
		Code:    "DATA_004",
		Type:    ErrorTypeData,
		Message: "Training corpus %s is empty",
	}
)

// ============================================================================
// Training Invariant Errors (TRAIN_xxx)
// ============================================================================

var (
	// ErrTrainLengthMismatch indicates a materialized sample length disagrees
	// with the length reported by the model
	ErrTrainLengthMismatch = ErrorCode{
		Code:    "TRAIN_001",
		Type:    ErrorTypeInvariant,
		Message: "Sample %d materialized %d tokens but model reported length %d",
	}

	// ErrTrainZeroMidWindow indicates the accumulator was reset inside a window
	ErrTrainZeroMidWindow = ErrorCode{
		Code:    "TRAIN_002",
		Type:    ErrorTypeInvariant,
		Message: "Gradient accumulator zeroed with %d samples pending",
	}

	// ErrTrainUnknownParameter indicates a gradient for an unregistered parameter
	ErrTrainUnknownParameter = ErrorCode{
		Code:    "TRAIN_003",
		Type:    ErrorTypeInvariant,
		Message: "Unknown parameter %q",
	}

	// ErrTrainShapeMismatch indicates incompatible tensor dimensions
	ErrTrainShapeMismatch = ErrorCode{
		Code:    "TRAIN_004",
		Type:    ErrorTypeInvariant,
		Message: "Shape mismatch for %s: got %dx%d, want %dx%d",
	}

	// ErrTrainBatchSize indicates per-example vectors of differing batch size
	ErrTrainBatchSize = ErrorCode{
		Code:    "TRAIN_005",
		Type:    ErrorTypeInvariant,
		Message: "Batch size mismatch: %d vs %d",
	}

	// ErrTrainNonFinite indicates a NaN or infinite loss
	ErrTrainNonFinite = ErrorCode{
		Code:    "TRAIN_006",
		Type:    ErrorTypeInvariant,
		Message: "Non-finite %s encountered at iteration %d",
	}
)

// ============================================================================
// Checkpoint Errors (CKPT_xxx)
// ============================================================================

var (
	// ErrCkptEncode indicates a checkpoint could not be serialized
	ErrCkptEncode = ErrorCode{
		Code:    "CKPT_001",
		Type:    ErrorTypeStorage,
		Message: "Failed to encode checkpoint",
	}

	// ErrCkptDecode indicates a checkpoint could not be deserialized
	ErrCkptDecode = ErrorCode{
		Code:    "CKPT_002",
		Type:    ErrorTypeStorage,
		Message: "Failed to decode checkpoint",
	}

	// ErrCkptWrite indicates a checkpoint could not be persisted
	ErrCkptWrite = ErrorCode{
		Code:    "CKPT_003",
		Type:    ErrorTypeStorage,
		Message: "Failed to write checkpoint %s",
	}

	// ErrCkptIncompatible indicates a checkpoint that does not fit the model
	ErrCkptIncompatible = ErrorCode{
		Code:    "CKPT_004",
		Type:    ErrorTypeValidation,
		Message: "Checkpoint incompatible with model: %s",
	}
)

// ============================================================================
// Storage Errors (STOR_xxx)
// ============================================================================

var (
	// ErrStorageUploadFailed indicates object upload failed
	ErrStorageUploadFailed = ErrorCode{
		Code:    "STOR_001",
		Type:    ErrorTypeStorage,
		Message: "Object upload failed: %s",
	}

	// ErrStorageDownloadFailed indicates object download failed
	ErrStorageDownloadFailed = ErrorCode{
		Code:    "STOR_002",
		Type:    ErrorTypeStorage,
		Message: "Object download failed: %s",
	}

	// ErrStorageFileNotFound indicates object does not exist
	ErrStorageFileNotFound = ErrorCode{
		Code:    "STOR_003",
		Type:    ErrorTypeNotFound,
		Message: "Object %s not found in storage",
	}
)

// ============================================================================
// Event Sink Errors (SINK_xxx)
// ============================================================================

var (
	// ErrSinkPublish indicates a training event could not be delivered
	ErrSinkPublish = ErrorCode{
		Code:    "SINK_001",
		Type:    ErrorTypeInfrastructure,
		Message: "Failed to publish %s event",
	}

	// ErrSinkConnect indicates a sink backend could not be reached
	ErrSinkConnect = ErrorCode{
		Code:    "SINK_002",
		Type:    ErrorTypeInfrastructure,
		Message: "Failed to connect to %s",
	}
)

// NewFromCode creates an AppError from an ErrorCode
func NewFromCode(ec ErrorCode) *AppError {
	return New(ec.Code, ec.Type, ec.Message)
}

// NewFromCodef creates an AppError from an ErrorCode with formatted message
func NewFromCodef(ec ErrorCode, args ...interface{}) *AppError {
	appErr := Newf(ec.Code, ec.Type, ec.Message, args...)
	if ec.Type == ErrorTypeInvariant {
		appErr.Stack = captureStack()
	}
	return appErr
}

// WrapFromCode wraps err with the code, category and formatted message of ec
func WrapFromCode(err error, ec ErrorCode, args ...interface{}) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    ec.Code,
		Type:    ec.Type,
		Message: fmt.Sprintf(ec.Message, args...),
		Cause:   err,
		Details: make(map[string]interface{}),
	}
}

//Personal.AI order the ending
