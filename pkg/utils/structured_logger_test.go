package utils

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T, level LogLevel, format LogFormat) (*StructuredLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := NewStructuredLogger(&StructuredLoggerConfig{
		Level:  level,
		Output: &buf,
		Format: format,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return logger, &buf
}

func TestNewStructuredLogger(t *testing.T) {
	logger, _ := newTestLogger(t, DEBUG, FormatText)
	if logger.GetLevel() != DEBUG {
		t.Errorf("Expected DEBUG level, got %v", logger.GetLevel())
	}

	logger, err := NewStructuredLogger(nil)
	if err != nil {
		t.Fatalf("NewStructuredLogger(nil) error = %v", err)
	}
	if logger.GetLevel() != INFO {
		t.Errorf("default level = %v, want INFO", logger.GetLevel())
	}
}

func TestLogLevels(t *testing.T) {
	logger, buf := newTestLogger(t, INFO, FormatText)

	logger.Debug("debug message")
	logger.Trace("trace message")
	if buf.Len() > 0 {
		t.Error("message below INFO was logged")
	}

	for _, log := range []func(string, ...map[string]interface{}){logger.Info, logger.Warn, logger.Error} {
		buf.Reset()
		log("visible message")
		if !strings.Contains(buf.String(), "visible message") {
			t.Errorf("message not found in output %q", buf.String())
		}
	}

	buf.Reset()
	logger.SetLevel(ERROR)
	logger.Warnf("dropped %d", 1)
	logger.Errorf("kept %d", 2)
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept 2") {
		t.Errorf("unexpected output after SetLevel: %q", buf.String())
	}
}

func TestTextFieldsAreSorted(t *testing.T) {
	logger, buf := newTestLogger(t, DEBUG, FormatText)

	logger.WithComponent("store").Info("object created", map[string]interface{}{
		"size":      64,
		"object_id": "ab",
	})

	out := buf.String()
	if !strings.Contains(out, "[INFO] object created {component=store, object_id=ab, size=64}") {
		t.Errorf("unexpected text output: %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	logger, buf := newTestLogger(t, DEBUG, FormatJSON)

	logger.WithField("pool", "primary").Warn("fallback", map[string]interface{}{"bytes": 10})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry.Level != "WARN" || entry.Message != "fallback" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Fields["pool"] != "primary" || entry.Fields["bytes"] != float64(10) {
		t.Errorf("fields = %v", entry.Fields)
	}
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	logger, buf := newTestLogger(t, DEBUG, FormatText)

	_ = logger.WithFields(map[string]interface{}{"child": true})
	logger.Info("parent")
	if strings.Contains(buf.String(), "child") {
		t.Errorf("parent logger picked up child field: %q", buf.String())
	}
}

func TestComponentLevels(t *testing.T) {
	logger, buf := newTestLogger(t, INFO, FormatText)
	logger.SetComponentLevel("allocator", DEBUG)

	logger.WithComponent("allocator").Debug("allocator debug")
	logger.WithComponent("store").Debug("store debug")

	out := buf.String()
	if !strings.Contains(out, "allocator debug") {
		t.Error("component override did not enable DEBUG")
	}
	if strings.Contains(out, "store debug") {
		t.Error("DEBUG leaked for component without override")
	}
}

func TestIncludeCaller(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewStructuredLogger(&StructuredLoggerConfig{
		Level:         INFO,
		Output:        &buf,
		IncludeCaller: true,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Info("with caller")
	if !strings.Contains(buf.String(), "[structured_logger_test.go:") {
		t.Errorf("caller not reported: %q", buf.String())
	}
}

func TestLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "plasma.log")
	logger, err := NewStructuredLogger(&StructuredLoggerConfig{Level: INFO, LogFile: path})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Info("to file")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file content = %q", data)
	}
}

func TestNopLogger(t *testing.T) {
	logger := OrNop(nil)
	if logger.IsEnabled(FATAL) {
		t.Error("nop logger should not enable any level")
	}
	logger.Error("ignored")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
