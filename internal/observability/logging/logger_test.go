package logging_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/openeeap/nmtrl/internal/observability/logging"
)

func TestWithContext_AddsRunAndPair(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := logging.NewZapLoggerFromCore(core)

	ctx := logging.WithRunID(context.Background(), "run-1")
	ctx = logging.WithPair(ctx, "de-en")
	logger.WithContext(ctx).Info("window done", logging.Int("samples", 3))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "run-1", fields["run_id"])
	assert.Equal(t, "de-en", fields["pair"])
	assert.Equal(t, int64(3), fields["samples"])
	assert.NotContains(t, fields, "trace_id")
}

func TestWithContext_EmptyContextReturnsSameLogger(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	logger := logging.NewZapLoggerFromCore(core)

	assert.Same(t, logger, logger.WithContext(context.Background()))
}

func TestNew_FileOutputRequiresPath(t *testing.T) {
	_, err := logging.New(logging.LogConfig{Level: "info", Output: "file"})
	assert.Error(t, err)
}

func TestNew_FileOutputRotates(t *testing.T) {
	path := t.TempDir() + "/train.log"
	logger, err := logging.New(logging.LogConfig{Level: "info", Format: "json", Output: "file", FilePath: path, MaxSize: 1})
	require.NoError(t, err)

	logger.Info("hello")
	require.NoError(t, logger.Sync())
	assert.FileExists(t, path)
}

func TestWithContext_SkipsKeysAlreadyBound(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := logging.NewZapLoggerFromCore(core).With(logging.RunID("run-1"))

	ctx := logging.WithPair(logging.WithRunID(context.Background(), "run-1"), "fr-en")
	logger.Named("trainer").WithContext(ctx).Info("step")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "trainer", entry.LoggerName)

	runIDs := 0
	for _, f := range entry.Context {
		if f.Key == logging.KeyRunID {
			runIDs++
		}
	}
	assert.Equal(t, 1, runIDs)
	assert.Equal(t, "fr-en", entry.ContextMap()["pair"])
}

func TestNoopLogger_ChildrenAreNoop(t *testing.T) {
	logger := logging.NewNoopLogger()
	assert.Same(t, logger, logger.Named("x").With(logging.Int("n", 1)))
	assert.NoError(t, logger.Sync())
}
