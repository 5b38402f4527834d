package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input    string
		expected zapcore.Level
	}{
		{input: "debug", expected: zapcore.DebugLevel},
		{input: " WARN ", expected: zapcore.WarnLevel},
		{input: "warning", expected: zapcore.WarnLevel},
		{input: "error", expected: zapcore.ErrorLevel},
		{input: "", expected: zapcore.InfoLevel},
		{input: "verbose", expected: zapcore.InfoLevel},
	}
	for _, testCase := range testCases {
		if actual := levelFromString(testCase.input); actual != testCase.expected {
			t.Fatalf("%q: expected %v, got %v", testCase.input, testCase.expected, actual)
		}
	}
}

func TestNewWritesJSONAtLevel(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	logger, closeSink, err := New(Config{Level: "warn", Output: &buffer})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closeSink()

	logger.Info("hidden")
	logger.Warn("visible", zap.String("code", "test.visible"))
	_ = logger.Sync()

	output := buffer.String()
	if strings.Contains(output, "hidden") {
		t.Fatalf("expected info suppressed, got %q", output)
	}
	if !strings.Contains(output, `"code":"test.visible"`) {
		t.Fatalf("expected JSON entry with code, got %q", output)
	}
}

func TestDevDefaultsToDebug(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	logger, _, err := New(Config{Dev: true, Output: &buffer})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("debugging")
	_ = logger.Sync()
	if !strings.Contains(buffer.String(), "debugging") {
		t.Fatalf("expected debug entry in dev mode, got %q", buffer.String())
	}
}

func TestNewWritesRotatingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "tripauth.log")
	var buffer bytes.Buffer
	logger, closeSink, err := New(Config{Level: "info", FilePath: path, Output: &buffer})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("persisted", zap.String("code", "test.file"))
	_ = logger.Sync()
	if err := closeSink(); err != nil {
		t.Fatalf("close: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read through link: %v", err)
	}
	if !strings.Contains(string(contents), "test.file") {
		t.Fatalf("expected entry in rotated file, got %q", contents)
	}
}
