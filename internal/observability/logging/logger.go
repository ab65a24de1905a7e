// Package logging wraps zap for the trainer and its sinks.
//
// Loggers carry the run ID, the active language pair and the trace ID taken
// from the context. A key bound once through With or WithContext is not
// repeated when a later WithContext sees the same key.
package logging

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ============================================================================
// Logger Interface
// ============================================================================

// Logger is the logging surface used across nmtrl
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// Fatal logs and terminates the process
	Fatal(msg string, fields ...Field)

	// With returns a child logger carrying fields
	With(fields ...Field) Logger

	// Named returns a child logger for one component, e.g. "trainer"
	Named(component string) Logger

	// WithContext binds run_id, pair and trace_id found in ctx
	WithContext(ctx context.Context) Logger

	Sync() error
}

// Field is a structured log field
type Field = zapcore.Field

// Context field keys
const (
	KeyRunID   = "run_id"
	KeyPair    = "pair"
	KeyTraceID = "trace_id"
)

// ============================================================================
// Zap
// ============================================================================

// ZapLogger is the zap backed Logger
type ZapLogger struct {
	logger *zap.Logger
	bound  map[string]bool // context keys already present on logger
}

// New builds a logger from configuration, rotating files when output is "file"
func New(cfg LogConfig) (Logger, error) {
	if cfg.Output == "file" {
		return NewZapLoggerWithRotation(cfg)
	}
	return NewZapLogger(cfg)
}

// NewZapLogger writes to stdout or stderr
func NewZapLogger(cfg LogConfig) (*ZapLogger, error) {
	sink, _, err := zap.Open(outputPath(cfg.Output))
	if err != nil {
		return nil, fmt.Errorf("failed to open log output %q: %w", cfg.Output, err)
	}

	core := zapcore.NewCore(buildEncoder(cfg), sink, parseLogLevel(cfg.Level))
	return NewZapLoggerFromCore(core), nil
}

// NewZapLoggerWithRotation writes to cfg.FilePath through lumberjack
func NewZapLoggerWithRotation(cfg LogConfig) (*ZapLogger, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("file output requires a file path")
	}

	writer := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize, // MB
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge, // days
		Compress:   cfg.Compress,
	}

	core := zapcore.NewCore(buildEncoder(cfg), zapcore.AddSync(writer), parseLogLevel(cfg.Level))
	return NewZapLoggerFromCore(core), nil
}

// NewZapLoggerFromCore wraps an existing core, e.g. zaptest/observer in tests
func NewZapLoggerFromCore(core zapcore.Core) *ZapLogger {
	return &ZapLogger{logger: zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
	)}
}

func (l *ZapLogger) Debug(msg string, fields ...Field) { l.logger.Debug(msg, fields...) }
func (l *ZapLogger) Info(msg string, fields ...Field)  { l.logger.Info(msg, fields...) }
func (l *ZapLogger) Warn(msg string, fields ...Field)  { l.logger.Warn(msg, fields...) }
func (l *ZapLogger) Error(msg string, fields ...Field) { l.logger.Error(msg, fields...) }
func (l *ZapLogger) Fatal(msg string, fields ...Field) { l.logger.Fatal(msg, fields...) }

// With returns a child logger. Context keys passed here count as bound.
func (l *ZapLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &ZapLogger{logger: l.logger.With(fields...), bound: l.bindKeys(fields)}
}

// Named appends component to the logger name
func (l *ZapLogger) Named(component string) Logger {
	return &ZapLogger{logger: l.logger.Named(component), bound: l.bound}
}

// WithContext binds the context fields not yet on the logger
func (l *ZapLogger) WithContext(ctx context.Context) Logger {
	var fields []Field
	for _, f := range extractContextFields(ctx) {
		if !l.bound[f.Key] {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}

func (l *ZapLogger) bindKeys(fields []Field) map[string]bool {
	bound := l.bound
	copied := false
	for _, f := range fields {
		switch f.Key {
		case KeyRunID, KeyPair, KeyTraceID:
		default:
			continue
		}
		if !copied {
			bound = make(map[string]bool, len(l.bound)+1)
			for k := range l.bound {
				bound[k] = true
			}
			copied = true
		}
		bound[f.Key] = true
	}
	return bound
}

// ============================================================================
// Configuration
// ============================================================================

// LogConfig mirrors observability.logging in the config file
type LogConfig struct {
	Level      string // debug, info, warn, error, fatal
	Format     string // json or console
	Output     string // stdout, stderr or file
	FilePath   string
	MaxSize    int // MB per file before rotation
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

func outputPath(output string) string {
	if output == "stderr" {
		return "stderr"
	}
	return "stdout"
}

func buildEncoder(cfg LogConfig) zapcore.Encoder {
	ec := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if cfg.Format == "console" {
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ============================================================================
// Context
// ============================================================================

type contextKey string

const (
	runIDKey contextKey = KeyRunID
	pairKey  contextKey = KeyPair
)

// WithRunID stores the training run ID in ctx
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// GetRunID returns the run ID stored by WithRunID
func GetRunID(ctx context.Context) string {
	runID, _ := ctx.Value(runIDKey).(string)
	return runID
}

// WithPair stores the language pair being trained, e.g. "de-en"
func WithPair(ctx context.Context, pair string) context.Context {
	return context.WithValue(ctx, pairKey, pair)
}

// GetPair returns the pair stored by WithPair
func GetPair(ctx context.Context) string {
	pair, _ := ctx.Value(pairKey).(string)
	return pair
}

// GetTraceID returns the OpenTelemetry trace ID of the span in ctx
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func extractContextFields(ctx context.Context) []Field {
	var fields []Field
	if runID := GetRunID(ctx); runID != "" {
		fields = append(fields, zap.String(KeyRunID, runID))
	}
	if pair := GetPair(ctx); pair != "" {
		fields = append(fields, zap.String(KeyPair, pair))
	}
	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, zap.String(KeyTraceID, traceID))
	}
	return fields
}

// ============================================================================
// Fields
// ============================================================================

func String(key, val string) Field                 { return zap.String(key, val) }
func Strings(key string, val []string) Field       { return zap.Strings(key, val) }
func Int(key string, val int) Field                { return zap.Int(key, val) }
func Int64(key string, val int64) Field            { return zap.Int64(key, val) }
func Float64(key string, val float64) Field        { return zap.Float64(key, val) }
func Bool(key string, val bool) Field              { return zap.Bool(key, val) }
func Duration(key string, val time.Duration) Field { return zap.Duration(key, val) }
func Error(err error) Field                        { return zap.Error(err) }

// RunID binds the run ID directly, marking it bound for WithContext
func RunID(id string) Field { return zap.String(KeyRunID, id) }

// ============================================================================
// No-op
// ============================================================================

// NoopLogger discards everything
type NoopLogger struct{}

// NewNoopLogger returns a Logger that discards entries
func NewNoopLogger() Logger {
	return &NoopLogger{}
}

func (l *NoopLogger) Debug(msg string, fields ...Field)      {}
func (l *NoopLogger) Info(msg string, fields ...Field)       {}
func (l *NoopLogger) Warn(msg string, fields ...Field)       {}
func (l *NoopLogger) Error(msg string, fields ...Field)      {}
func (l *NoopLogger) Fatal(msg string, fields ...Field)      { os.Exit(1) }
func (l *NoopLogger) With(fields ...Field) Logger            { return l }
func (l *NoopLogger) Named(component string) Logger          { return l }
func (l *NoopLogger) WithContext(ctx context.Context) Logger { return l }
func (l *NoopLogger) Sync() error                            { return nil }

//Personal.AI order the ending
