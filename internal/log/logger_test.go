// Copyright 2025 Ben McAlindin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})

	logger.Debug("test message", ToolKey, "list_files")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "list_files", entry["tool"])
}

func TestNewTextLoggerIsDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Output: &buf})

	logger.Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"WARN", slog.LevelWarn},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), "level %q", tt.in)
	}
}

func TestTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "trace", Format: FormatJSON, Output: &buf})

	Trace(logger, "raw line", slog.String("line", `{"op":"x"}`))
	assert.Contains(t, buf.String(), "raw line")

	buf.Reset()
	quiet := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})
	Trace(quiet, "suppressed")
	assert.Empty(t, buf.String())
}

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("TOOLWIRE_DEBUG", "")
		t.Setenv("TOOLWIRE_LOG_LEVEL", "")
		t.Setenv("LOG_LEVEL", "")
		t.Setenv("LOG_FORMAT", "")
		t.Setenv("LOG_SOURCE", "")

		cfg := FromEnv()
		assert.Equal(t, "info", cfg.Level)
		assert.Equal(t, FormatText, cfg.Format)
		assert.False(t, cfg.AddSource)
	})

	t.Run("debug flag wins", func(t *testing.T) {
		t.Setenv("TOOLWIRE_DEBUG", "1")
		t.Setenv("TOOLWIRE_LOG_LEVEL", "error")

		cfg := FromEnv()
		assert.Equal(t, "debug", cfg.Level)
		assert.True(t, cfg.AddSource)
	})

	t.Run("scoped level beats generic", func(t *testing.T) {
		t.Setenv("TOOLWIRE_DEBUG", "")
		t.Setenv("TOOLWIRE_LOG_LEVEL", "trace")
		t.Setenv("LOG_LEVEL", "error")

		cfg := FromEnv()
		assert.Equal(t, "trace", cfg.Level)
	})

	t.Run("format and source", func(t *testing.T) {
		t.Setenv("TOOLWIRE_DEBUG", "")
		t.Setenv("LOG_FORMAT", "JSON")
		t.Setenv("LOG_SOURCE", "1")

		cfg := FromEnv()
		assert.Equal(t, FormatJSON, cfg.Format)
		assert.True(t, cfg.AddSource)
	})
}

func TestWithComponentAndCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	WithCorrelationID(WithComponent(logger, "relay"), "abc-123").Info("x")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "relay", entry["component"])
	assert.Equal(t, "abc-123", entry["correlation_id"])
}

func TestSanitizeSecret(t *testing.T) {
	assert.Equal(t, "[REDACTED]", SanitizeSecret("anything at all"))
	assert.False(t, strings.Contains(SanitizeSecret("hunter2"), "hunter2"))
}
