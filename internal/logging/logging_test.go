package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		debug    string
		level    string
		expected LogLevel
	}{
		{name: "Debug via LOG_LEVEL", level: "debug", expected: LevelDebug},
		{name: "Info via LOG_LEVEL", level: "info", expected: LevelInfo},
		{name: "Warn via LOG_LEVEL", level: "warn", expected: LevelWarn},
		{name: "Error via LOG_LEVEL", level: "error", expected: LevelError},
		{name: "Case insensitive", level: "DEBUG", expected: LevelDebug},
		{name: "Warning alias", level: "warning", expected: LevelWarn},
		{name: "Unknown defaults to info", level: "chatty", expected: LevelInfo},
		{name: "Empty defaults to info", expected: LevelInfo},
		{name: "DEBUG=true overrides", debug: "true", level: "error", expected: LevelDebug},
		{name: "DEBUG=1 overrides", debug: "1", expected: LevelDebug},
		{name: "DEBUG=false ignored", debug: "false", level: "warn", expected: LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseLevel(tt.debug, tt.level); got != tt.expected {
				t.Errorf("parseLevel(%q, %q) = %v, want %v", tt.debug, tt.level, got, tt.expected)
			}
		})
	}
}

func TestLogLevelConstants(t *testing.T) {
	levels := []LogLevel{LevelDebug, LevelInfo, LevelWarn, LevelError}
	for i := 0; i < len(levels)-1; i++ {
		if levels[i] >= levels[i+1] {
			t.Errorf("Log levels should be in ascending order: %v >= %v", levels[i], levels[i+1])
		}
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{LogLevel(99), "unknown(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("LogLevel.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestConfigureWritesRotatedFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "downloader.log")

	Configure(LevelDebug, FileOptions{Path: logPath, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	t.Cleanup(func() { Configure(LevelInfo, FileOptions{}) })

	if !IsDebugEnabled() {
		t.Fatal("expected debug to be enabled after Configure(LevelDebug)")
	}

	Debug("registry sweep removed %d records", 3)
	Access("2026-01-01 00:00:00 127.0.0.1 GET /health - 200 15 0 - - -")
	Sync()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "registry sweep removed 3 records") {
		t.Errorf("log file missing debug line: %s", content)
	}
	if !strings.Contains(content, "GET /health") {
		t.Errorf("log file missing access line: %s", content)
	}
}

func TestLevelFiltering(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "filtered.log")

	Configure(LevelWarn, FileOptions{Path: logPath})
	t.Cleanup(func() { Configure(LevelInfo, FileOptions{}) })

	Info("should not appear")
	Warn("should appear")
	Sync()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if strings.Contains(string(data), "should not appear") {
		t.Error("info line written at warn level")
	}
	if !strings.Contains(string(data), "should appear") {
		t.Error("warn line missing at warn level")
	}
	if GetLevel() != LevelWarn {
		t.Errorf("GetLevel() = %v, want warn", GetLevel())
	}
}

func TestLoggingFunctionsDoNotPanic(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{name: "Debug", fn: func() { Debug("test message") }},
		{name: "Info", fn: func() { Info("test %s %d", "message", 123) }},
		{name: "Warn", fn: func() { Warn("test message") }},
		{name: "Error", fn: func() { Error("test %v", os.ErrNotExist) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Function panicked: %v", r)
				}
			}()
			tt.fn()
		})
	}
}
