package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WARN, false)
	logger.SetOutput(&buf)

	logger.Info("hidden")
	logger.Warn("shown", Fields{"operation": "bookings.list"})

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("INFO entry should be filtered at WARN level, got %q", out)
	}
	if !strings.Contains(out, "WARN: shown operation=bookings.list") {
		t.Errorf("Expected WARN entry with field, got %q", out)
	}
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DEBUG, true)
	logger.SetOutput(&buf)

	logger.WithField("component", "guard").Error("operation failed", Fields{"error": errors.New("boom")})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse JSON entry: %v", err)
	}
	if entry.Level != "ERROR" {
		t.Errorf("Expected level ERROR, got %s", entry.Level)
	}
	if entry.Fields["component"] != "guard" {
		t.Errorf("Expected component field, got %v", entry.Fields)
	}
	if entry.Fields["error"] != "boom" {
		t.Errorf("Expected error rendered as string, got %v", entry.Fields["error"])
	}
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(DEBUG, false)
	parent.SetOutput(&buf)

	_ = parent.WithField("child", true)
	parent.Info("parent entry")

	if strings.Contains(buf.String(), "child") {
		t.Errorf("Parent logger picked up child field: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"error":   ERROR,
		"fatal":   FATAL,
		"bogus":   INFO,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDiscard(t *testing.T) {
	// Must not panic or write anywhere.
	Discard().Error("dropped")
}
