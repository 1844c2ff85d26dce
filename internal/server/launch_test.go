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

package server

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebuggerParams_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := DebuggerParams{Host: "127.0.0.1", Port: 40593}

	require.NoError(t, WriteDebuggerParams(&buf, want))
	assert.Equal(t, "127.0.0.1:40593\n", buf.String())

	got, err := ReadDebuggerParams(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReadDebuggerParams_Malformed(t *testing.T) {
	_, err := ReadDebuggerParams(strings.NewReader("not-a-hostport\n"))
	assert.Error(t, err)
}
