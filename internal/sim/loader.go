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

	"gopkg.in/yaml.v3"

	rewinderrors "github.com/tombee/rewind/pkg/errors"
	"github.com/tombee/rewind/pkg/gdb"
)

// traceDoc is the YAML shape of a scripted trace.
//
//	exit_code: 0
//	frames:
//	  - event: 1
//	    tasks:
//	      - tid: 101
//	        pid: 100
//	        execed: true
//	        pc: 0x1000
//	        regs: {1: 7, 2: 42}
//	        mem: {0x2000: [1, 2, 3]}
type traceDoc struct {
	ExitCode   int        `yaml:"exit_code"`
	ExitSignal int        `yaml:"exit_signal"`
	Frames     []frameDoc `yaml:"frames"`
}

type frameDoc struct {
	Event uint64    `yaml:"event"`
	Tasks []taskDoc `yaml:"tasks"`
}

type taskDoc struct {
	TID       int    `yaml:"tid"`
	TIDSerial uint32 `yaml:"tid_serial"`
	PID       int    `yaml:"pid"`
	PIDSerial uint32 `yaml:"pid_serial"`

	Execed bool   `yaml:"execed"`
	PC     uint64 `yaml:"pc"`
	Info   string `yaml:"info"`

	Regs      map[int]uint64    `yaml:"regs"`
	ExtraRegs map[int]uint64    `yaml:"extra_regs"`
	Mem       map[uint64][]byte `yaml:"mem"`
}

// ParseTrace decodes a scripted trace document.
func ParseTrace(data []byte) (*Trace, error) {
	var doc traceDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, rewinderrors.Wrap(err, "parsing trace")
	}

	trace := &Trace{ExitCode: doc.ExitCode, ExitSignal: doc.ExitSignal}
	for _, f := range doc.Frames {
		frame := &Frame{Event: f.Event}
		for _, td := range f.Tasks {
			st := &TaskState{
				TID:       td.TID,
				TIDSerial: td.TIDSerial,
				PID:       td.PID,
				PIDSerial: td.PIDSerial,
				Execed:    td.Execed,
				PC:        td.PC,
				Info:      td.Info,
				Regs:      make(map[gdb.Register]uint64, len(td.Regs)),
				ExtraRegs: make(map[gdb.Register]uint64, len(td.ExtraRegs)),
				Mem:       make(map[uint64]byte),
			}
			for reg, v := range td.Regs {
				st.Regs[gdb.Register(reg)] = v
			}
			for reg, v := range td.ExtraRegs {
				st.ExtraRegs[gdb.Register(reg)] = v
			}
			for addr, bytes := range td.Mem {
				for i, b := range bytes {
					st.Mem[addr+uint64(i)] = b
				}
			}
			frame.Tasks = append(frame.Tasks, st)
		}
		trace.Frames = append(trace.Frames, frame)
	}

	if len(trace.Frames) == 0 {
		return nil, errEmptyTrace
	}
	return trace, nil
}

// LoadTrace reads and decodes a scripted trace file.
func LoadTrace(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &rewinderrors.NotFoundError{Resource: "trace", ID: path}
	}
	if err != nil {
		return nil, rewinderrors.Wrap(err, "reading trace")
	}
	return ParseTrace(data)
}
