package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		output string
	}{
		{
			name:   "valid info level to stdout",
			level:  "info",
			output: "stdout",
		},
		{
			name:   "valid debug level to stdout",
			level:  "debug",
			output: "stdout",
		},
		{
			name:   "invalid level defaults to info",
			level:  "invalid",
			output: "stdout",
		},
		{
			name:   "valid level with file output",
			level:  "warn",
			output: "test.log",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outputPath := tt.output
			if tt.output != "stdout" {
				outputPath = filepath.Join(t.TempDir(), tt.output)
			}

			logger, err := Init(tt.level, outputPath)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if tt.level == "invalid" {
				if logger.GetLevel() != logrus.InfoLevel {
					t.Errorf("Expected default level info for invalid input, got %v", logger.GetLevel())
				}
			} else {
				expectedLevel, _ := logrus.ParseLevel(tt.level)
				if logger.GetLevel() != expectedLevel {
					t.Errorf("Expected level %v, got %v", expectedLevel, logger.GetLevel())
				}
			}

			if logger.Formatter == nil {
				t.Error("Formatter should be set")
			}
		})
	}
}

func TestInitConfiguresStandardLogger(t *testing.T) {
	logger, err := Init("debug", "stdout")
	if err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	if logger != logrus.StandardLogger() {
		t.Error("Init should configure the shared standard logger")
	}
	if logrus.GetLevel() != logrus.DebugLevel {
		t.Errorf("Expected standard logger level debug, got %v", logrus.GetLevel())
	}
}

func TestInitLoggerWithFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	logger, err := Init("info", logFile)
	if err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Info("Test log message")

	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		t.Error("Log file should have been created")
	}
}

func TestInitLoggerWithNestedDirectory(t *testing.T) {
	nestedPath := filepath.Join(t.TempDir(), "nested", "dir", "test.log")

	logger, err := Init("info", nestedPath)
	if err != nil {
		t.Fatalf("Failed to initialize logger with nested directory: %v", err)
	}

	if logger == nil {
		t.Fatal("Logger should not be nil")
	}

	if _, err := os.Stat(filepath.Dir(nestedPath)); os.IsNotExist(err) {
		t.Error("Nested directory should have been created")
	}
}
