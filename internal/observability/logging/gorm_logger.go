package logging

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// slowQueryThreshold marks queries logged as slow.
const slowQueryThreshold = 200 * time.Millisecond

// GormLogger routes gorm's SQL log through a Logger.
type GormLogger struct {
	logger Logger
	level  gormlogger.LogLevel
}

// NewGormLogger creates a gorm logger. level is one of silent, error, warn
// and info; anything else means warn.
func NewGormLogger(logger Logger, level string) *GormLogger {
	if logger == nil {
		logger = NewNoopLogger()
	}
	return &GormLogger{logger: logger, level: parseGormLevel(level)}
}

func parseGormLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// LogMode implements gormlogger.Interface
func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *g
	clone.level = level
	return &clone
}

// Info implements gormlogger.Interface
func (g *GormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Info {
		g.logger.WithContext(ctx).Info(fmt.Sprintf(msg, args...))
	}
}

// Warn implements gormlogger.Interface
func (g *GormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Warn {
		g.logger.WithContext(ctx).Warn(fmt.Sprintf(msg, args...))
	}
}

// Error implements gormlogger.Interface
func (g *GormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Error {
		g.logger.WithContext(ctx).Error(fmt.Sprintf(msg, args...))
	}
}

// Trace implements gormlogger.Interface
func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound) && g.level >= gormlogger.Error:
		sql, rows := fc()
		g.logger.WithContext(ctx).Error("SQL failed",
			String("sql", sql), Int64("rows", rows), Duration("elapsed", elapsed), Error(err))
	case elapsed > slowQueryThreshold && g.level >= gormlogger.Warn:
		sql, rows := fc()
		g.logger.WithContext(ctx).Warn("Slow SQL",
			String("sql", sql), Int64("rows", rows), Duration("elapsed", elapsed))
	case g.level >= gormlogger.Info:
		sql, rows := fc()
		g.logger.WithContext(ctx).Debug("SQL",
			String("sql", sql), Int64("rows", rows), Duration("elapsed", elapsed))
	}
}

//Personal.AI order the ending
