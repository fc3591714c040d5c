package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/entity-manager/internal/infrastructure/config"
)

func TestNew_Formats(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LoggingConfig
	}{
		{"json stdout", config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}},
		{"text stderr", config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}},
		{"empty config", config.LoggingConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if logger := New(tt.cfg, "1.0.0"); logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewWithWriter_DefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "test-version")

	logger.Info("entity renamed", "entity_id", "sensor.a")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}

	want := map[string]string{
		"msg":       "entity renamed",
		"service":   "entitymanager",
		"version":   "test-version",
		"entity_id": "sensor.a",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("entry[%q] = %v, want %q", k, entry[k], v)
		}
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "warn", Format: "text"}, "v")

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info entry should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn entry should be written at warn level")
	}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Format: "json"}, "v")

	child := logger.Component("yamlref")
	if child == logger {
		t.Fatal("expected child logger to be different from parent")
	}
	child.Info("scan complete")

	if !strings.Contains(buf.String(), `"component":"yamlref"`) {
		t.Errorf("output %q missing component field", buf.String())
	}
}

func TestDefault(t *testing.T) {
	if logger := Default(); logger == nil {
		t.Fatal("expected non-nil default logger")
	}
}
