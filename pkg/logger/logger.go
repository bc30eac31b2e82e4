package logger

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// globalLogger is the global logger instance
	globalLogger *zap.Logger

	// level is shared by every logger built by Init so it can change at runtime
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	fallbackOnce   sync.Once
	fallbackLogger *zap.Logger
)

// Init initializes the global logger.
// Unknown levels fall back to info; "development" switches to the colored console encoder.
func Init(levelName string, environment string) error {
	zapLevel, err := zapcore.ParseLevel(levelName)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}
	level.SetLevel(zapLevel)

	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if environment == "development" {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.Level = level

	logger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	globalLogger = logger
	return nil
}

// Get returns the global logger, or a shared development logger before Init
func Get() *zap.Logger {
	if globalLogger != nil {
		return globalLogger
	}
	fallbackOnce.Do(func() {
		logger, err := zap.NewDevelopment()
		if err != nil {
			logger = zap.NewNop()
		}
		fallbackLogger = logger
	})
	return fallbackLogger
}

// Set replaces the global logger
func Set(logger *zap.Logger) {
	globalLogger = logger
}

// Sync flushes any buffered log entries
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}

// Level returns the current minimum level of loggers built by Init
func Level() zapcore.Level {
	return level.Level()
}

// LevelHandler serves GET/PUT of the runtime log level as JSON ({"level":"debug"})
func LevelHandler() http.Handler {
	return level
}

// WithContext returns a logger with context fields
func WithContext(ctx context.Context) *zap.Logger {
	logger := Get()
	if traceID := GetTraceID(ctx); traceID != "" {
		logger = logger.With(zap.String("trace_id", traceID))
	}
	return logger
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	Get().Debug(msg, fields...)
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	Get().Info(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	Get().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	Get().Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	Get().Fatal(msg, fields...)
}

// Field helpers

func String(key, value string) zap.Field {
	return zap.String(key, value)
}

func Int(key string, value int) zap.Field {
	return zap.Int(key, value)
}

func Int64(key string, value int64) zap.Field {
	return zap.Int64(key, value)
}

func Bool(key string, value bool) zap.Field {
	return zap.Bool(key, value)
}

func Duration(key string, value time.Duration) zap.Field {
	return zap.Duration(key, value)
}

// Decimal logs the exact decimal string, never a float rendering
func Decimal(key string, value decimal.Decimal) zap.Field {
	return zap.Stringer(key, value)
}

func Time(key string, value time.Time) zap.Field {
	return zap.Time(key, value)
}

// ErrorField returns a zap.Field for an error
func ErrorField(err error) zap.Field {
	return zap.Error(err)
}
