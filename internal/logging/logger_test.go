package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestNewLoggerDefaultsToStderr(t *testing.T) {
	logger := NewLogger(nil)
	if logger == nil {
		t.Fatal("NewLogger(nil) returned nil")
	}
	if logger.level != LevelInfo {
		t.Errorf("expected default level Info, got %v", logger.level)
	}
	if logger.logger.Writer() != os.Stderr {
		t.Errorf("expected default output os.Stderr, got %v", logger.logger.Writer())
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Info("should not appear")
	if buf.Len() != 0 {
		t.Errorf("expected Info to be filtered at level Warn, got: %s", buf.String())
	}

	logger.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Errorf("expected Warn message, got: %s", buf.String())
	}
}

func TestLoggerFormatsKeyValuePairs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Info("test message", "device_id", 42, "queue_id", 1)
	output := buf.String()
	if !strings.Contains(output, "device_id=42") || !strings.Contains(output, "queue_id=1") {
		t.Errorf("expected key=value pairs in output, got: %s", output)
	}
}

func TestLoggerPrintfStyle(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Debugf("candidate %d of %d", 2, 5)
	if !strings.Contains(buf.String(), "candidate 2 of 5") {
		t.Errorf("expected formatted message, got: %s", buf.String())
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))

	Debug("debug message", "key", "value")
	if !strings.Contains(buf.String(), "debug message") || !strings.Contains(buf.String(), "key=value") {
		t.Errorf("expected debug message with key=value, got: %s", buf.String())
	}

	buf.Reset()
	Error("error message")
	if !strings.Contains(buf.String(), "error message") {
		t.Errorf("expected error message, got: %s", buf.String())
	}
}
