// Copyright 2025 Tom Barlow
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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	logger.Info("attached", slog.Uint64(EventKey, 42))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "attached", record["msg"])
	assert.Equal(t, float64(42), record[EventKey])
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Format: FormatText, Output: &buf})

	logger.Debug("dropped")
	logger.Info("dropped too")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestFromEnv_Debug(t *testing.T) {
	t.Setenv("REWIND_DEBUG", "1")
	t.Setenv("REWIND_LOG_LEVEL", "error")

	cfg := FromEnv()
	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.AddSource)
}

func TestFromEnv_LevelPrecedence(t *testing.T) {
	t.Setenv("REWIND_DEBUG", "")
	t.Setenv("REWIND_LOG_LEVEL", "trace")
	t.Setenv("LOG_LEVEL", "error")

	cfg := FromEnv()
	assert.Equal(t, "trace", cfg.Level)
}

func TestWithSessionID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	WithSessionID(logger, "abc-123").Info("hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "abc-123", record[SessionIDKey])
}
