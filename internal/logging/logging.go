package logging

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

// FileOptions configures rotated file output. An empty Path disables it.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var (
	currentLevel LogLevel
	sugar        *zap.SugaredLogger
	initOnce     sync.Once
	mu           sync.RWMutex
)

// initLogger builds the process logger from environment variables
func initLogger() {
	initOnce.Do(func() {
		level := parseLevel(os.Getenv("DEBUG"), os.Getenv("LOG_LEVEL"))
		file := FileOptions{
			Path:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  envInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: envInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: envInt("LOG_MAX_AGE_DAYS", 28),
			Compress:   strings.EqualFold(os.Getenv("LOG_COMPRESS"), "true"),
		}
		install(level, file)
	})
}

// parseLevel resolves the level from the DEBUG and LOG_LEVEL values.
// DEBUG wins when it is truthy.
func parseLevel(debug, levelStr string) LogLevel {
	switch strings.ToLower(debug) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}

	switch strings.ToLower(levelStr) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func install(level LogLevel, file FileOptions) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05"),
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	enabler := zap.NewAtomicLevelAt(level.zapLevel())
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stdout), enabler),
	}

	if file.Path != "" {
		jsonConfig := encoderConfig
		jsonConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		jsonConfig.EncodeTime = zapcore.RFC3339TimeEncoder
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
			Compress:   file.Compress,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(jsonConfig), writer, enabler))
	}

	logger := zap.New(zapcore.NewTee(cores...))

	mu.Lock()
	currentLevel = level
	sugar = logger.Sugar()
	mu.Unlock()
}

// Configure replaces the logger with one using the given level and file
// output. Later calls win; it is safe to call before or after the first
// log line.
func Configure(level LogLevel, file FileOptions) {
	initOnce.Do(func() {})
	install(level, file)
}

// ParseLevel converts a level name to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	return parseLevel("", s)
}

func logger() *zap.SugaredLogger {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	logger().Debugf(format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	logger().Infof(format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	logger().Warnf(format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	logger().Errorf(format, args...)
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	logger().Fatalf(format, args...)
}

// Access writes an HTTP access line. Access lines are emitted at info level
// regardless of the configured level so request logs survive LOG_LEVEL=warn.
func Access(line string) {
	if ce := logger().Desugar().Check(zapcore.InfoLevel, line); ce != nil {
		ce.Write()
		return
	}
	fmt.Fprintln(os.Stdout, line)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = logger().Sync()
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
