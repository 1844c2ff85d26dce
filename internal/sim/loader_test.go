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

package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/rewind/pkg/gdb"
)

const sampleTrace = `
exit_code: 42
frames:
  - event: 0
    tasks:
      - tid: 11
        tid_serial: 1
        pid: 10
        pid_serial: 1
        pc: 0x100
        regs: {1: 7}
        mem: {0x40: [1, 2, 3]}
  - event: 1
    tasks:
      - tid: 11
        tid_serial: 1
        pid: 10
        pid_serial: 1
        execed: true
        pc: 0x104
        info: "worker"
`

func TestParseTrace(t *testing.T) {
	trace, err := ParseTrace([]byte(sampleTrace))
	require.NoError(t, err)

	assert.Equal(t, 42, trace.ExitCode)
	require.Len(t, trace.Frames, 2)

	first := trace.Frames[0].Tasks[0]
	assert.Equal(t, 11, first.TID)
	assert.Equal(t, uint64(0x100), first.PC)
	assert.Equal(t, uint64(7), first.Regs[gdb.Register(1)])
	assert.Equal(t, byte(2), first.Mem[0x41])
	assert.False(t, first.Execed)

	second := trace.Frames[1].Tasks[0]
	assert.True(t, second.Execed)
	assert.Equal(t, "worker", second.Info)
}

func TestParseTrace_Empty(t *testing.T) {
	_, err := ParseTrace([]byte("frames: []\n"))
	assert.Error(t, err)

	_, err = ParseTrace([]byte("not: [valid"))
	assert.Error(t, err)
}

func TestLoadTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTrace), 0600))

	trace, err := LoadTrace(path)
	require.NoError(t, err)
	assert.Len(t, trace.Frames, 2)

	_, err = LoadTrace(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
