package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openeeap/nmtrl/pkg/errors"
)

func TestNewFromCodef_Invariant(t *testing.T) {
	err := errors.NewFromCodef(errors.ErrTrainLengthMismatch, 2, 5, 4)

	assert.Equal(t, "TRAIN_001", err.Code)
	assert.Equal(t, errors.ErrorTypeInvariant, err.Type)
	assert.Equal(t, "[TRAIN_001] Sample 2 materialized 5 tokens but model reported length 4", err.Error())
	assert.NotEmpty(t, err.Stack)
}

func TestWrap_KeepsCategory(t *testing.T) {
	inner := errors.NewFromCodef(errors.ErrCkptWrite, "model.best.ckpt")
	outer := errors.Wrap(inner, "TRAIN_CKPT", "save failed")

	assert.True(t, errors.IsType(outer, errors.ErrorTypeStorage))
	assert.True(t, errors.Is(outer, "CKPT_003"))
	assert.True(t, stderrors.Is(outer, inner))
}

func TestIs_ThroughFmtWrap(t *testing.T) {
	inner := errors.NewFromCode(errors.ErrSinkPublish)
	wrapped := fmt.Errorf("observer: %w", inner)

	assert.True(t, errors.Is(wrapped, "SINK_001"))
	assert.Equal(t, "SINK_001", errors.GetCode(wrapped))
	assert.False(t, errors.Is(nil, "SINK_001"))
	assert.Equal(t, "UNKNOWN", errors.GetCode(stderrors.New("plain")))
}

func TestWrapFromCode(t *testing.T) {
	assert.Nil(t, errors.WrapFromCode(nil, errors.ErrDataOpen, "x"))

	cause := stderrors.New("no such file")
	err := errors.WrapFromCode(cause, errors.ErrDataOpen, "train.de")
	require.NotNil(t, err)
	assert.Equal(t, errors.ErrorTypeData, err.Type)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "train.de")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, errors.ExitCode(nil))
	assert.Equal(t, 2, errors.ExitCode(errors.ValidationError("bad flag")))
	assert.Equal(t, 2, errors.ExitCode(errors.NewFromCodef(errors.ErrConfigInvalid, "x")))
	assert.Equal(t, 1, errors.ExitCode(errors.NewFromCode(errors.ErrCkptEncode)))
	assert.Equal(t, 1, errors.ExitCode(stderrors.New("plain")))
}

func TestToJSON(t *testing.T) {
	err := errors.NewValidationError("INVALID_PARAMETER", "bad").WithDetails("field", "epochs")
	assert.JSONEq(t, `{"code":"INVALID_PARAMETER","type":"VALIDATION","message":"bad","details":{"field":"epochs"}}`, string(err.ToJSON()))
}

func TestHelpers_WrapCategories(t *testing.T) {
	cause := stderrors.New("connection refused")

	db := errors.WrapDatabaseError(cause, errors.CodeDatabaseError, "failed to record checkpoint")
	assert.True(t, errors.IsType(db, errors.ErrorTypeInfrastructure))
	assert.ErrorIs(t, db, cause)

	internal := errors.WrapInternalError(cause, errors.CodeInternalError, "status server failed")
	assert.True(t, errors.IsType(internal, errors.ErrorTypeInternal))
	assert.Equal(t, errors.CodeInternalError, errors.GetCode(internal))

	store := errors.WrapStorageError(cause, "CKPT_003", "put failed")
	assert.True(t, errors.IsType(store, errors.ErrorTypeStorage))
	assert.Equal(t, 1, errors.ExitCode(store))
}
