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

package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundError(t *testing.T) {
	err := &NotFoundError{Resource: "checkpoint", ID: "7"}
	assert.Equal(t, "checkpoint not found: 7", err.Error())
	assert.Equal(t, "not_found", err.ErrorType())
}

func TestProtocolError(t *testing.T) {
	tests := []struct {
		name string
		err  *ProtocolError
		want string
	}{
		{
			name: "with request kind",
			err:  &ProtocolError{Request: "set-break", Message: "bad kind"},
			want: "protocol error in set-break: bad kind",
		},
		{
			name: "without request kind",
			err:  &ProtocolError{Message: "truncated payload"},
			want: "protocol error: truncated payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestEngineError_Unwrap(t *testing.T) {
	cause := New("trace truncated")
	err := &EngineError{Op: "seek", Message: "mark unavailable", Cause: cause}

	assert.Equal(t, "engine seek failed: mark unavailable", err.Error())
	require.ErrorIs(t, err, cause)
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Key: "listen.port", Reason: "must be 0-65535"}
	assert.Equal(t, "config error at listen.port: must be 0-65535", err.Error())
}

func TestConnectionError(t *testing.T) {
	cause := New("broken pipe")
	err := &ConnectionError{Op: "recv", Cause: cause}

	assert.Equal(t, "connection recv failed: broken pipe", err.Error())
	require.ErrorIs(t, err, cause)
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", &NotFoundError{Resource: "thread", ID: "p1.2"}, "not_found"},
		{"wrapped engine error", Wrap(&EngineError{Op: "divert"}, "evaluating call"), "engine"},
		{"plain error", New("boom"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TypeOf(tt.err))
		})
	}
}
