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

// Package sim is a deterministic scripted execution engine. A trace is a
// fixed sequence of frames, each a full snapshot of the debuggee's state at
// one event; replaying is walking the sequence in either direction. It
// implements the engine interfaces well enough to drive the bridge end to
// end without a real recorder, which makes it the backend for both the test
// suite and local protocol experiments.
package sim

import (
	"encoding/binary"
	"sort"

	"github.com/tombee/rewind/pkg/engine"
	"github.com/tombee/rewind/pkg/gdb"
)

// TaskState is one task's snapshot within a frame.
type TaskState struct {
	TID       int
	TIDSerial uint32
	PID       int
	PIDSerial uint32

	Execed bool
	PC     uint64

	// Regs maps register numbers to 64-bit values; rendered little-endian
	// on read. Register 0 shadows PC when absent.
	Regs map[gdb.Register]uint64

	// ExtraRegs is the extended register state, same encoding.
	ExtraRegs map[gdb.Register]uint64

	// Mem is sparse byte-addressed memory.
	Mem map[uint64]byte

	Info string
}

// clone deep-copies the task state so diversions can mutate freely.
func (t *TaskState) clone() *TaskState {
	c := *t
	c.Regs = make(map[gdb.Register]uint64, len(t.Regs))
	for k, v := range t.Regs {
		c.Regs[k] = v
	}
	c.ExtraRegs = make(map[gdb.Register]uint64, len(t.ExtraRegs))
	for k, v := range t.ExtraRegs {
		c.ExtraRegs[k] = v
	}
	c.Mem = make(map[uint64]byte, len(t.Mem))
	for k, v := range t.Mem {
		c.Mem[k] = v
	}
	return &c
}

// Frame is the complete debuggee state at one trace event.
type Frame struct {
	Event uint64
	Tasks []*TaskState
}

// Trace is a recorded execution: an ordered frame sequence plus how the
// debuggee finished. A nonzero ExitSignal means it was killed rather than
// exiting.
type Trace struct {
	Frames     []*Frame
	ExitCode   int
	ExitSignal int
}

// regFile adapts a TaskState snapshot to the engine's register interfaces.
type regFile struct {
	regs map[gdb.Register]uint64
	pc   uint64
}

func (r regFile) Get(reg gdb.Register) ([]byte, bool) {
	v, ok := r.regs[reg]
	if !ok {
		if reg == 0 {
			v = r.pc
		} else {
			return nil, false
		}
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf, true
}

func (r regFile) PC() uint64 { return r.pc }

func (r regFile) List() []gdb.Register {
	list := make([]gdb.Register, 0, len(r.regs)+1)
	list = append(list, 0)
	for reg := range r.regs {
		if reg != 0 {
			list = append(list, reg)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}

type extraRegFile struct {
	regs map[gdb.Register]uint64
}

func (r extraRegFile) Get(reg gdb.Register) ([]byte, bool) {
	v, ok := r.regs[reg]
	if !ok {
		return nil, false
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf, true
}

// task adapts a TaskState to engine.Task. mutable selects whether register
// and memory writes are honored; replay snapshots are immutable.
type task struct {
	state   *TaskState
	session engine.Session
	mutable bool
}

func (t *task) TUID() engine.TaskUID {
	return engine.TaskUID{TID: t.state.TID, Serial: t.state.TIDSerial}
}

func (t *task) ThreadGroup() engine.ThreadGroupUID {
	return engine.ThreadGroupUID{PID: t.state.PID, Serial: t.state.PIDSerial}
}

func (t *task) Execed() bool { return t.state.Execed }

func (t *task) Regs() engine.Registers {
	return regFile{regs: t.state.Regs, pc: t.state.PC}
}

func (t *task) ExtraRegs() engine.ExtraRegisters {
	return extraRegFile{regs: t.state.ExtraRegs}
}

func (t *task) SetReg(value gdb.RegisterValue) error {
	if !t.mutable {
		return errImmutable
	}
	if !value.Defined || len(value.Value) == 0 {
		return errBadRegister
	}
	buf := make([]byte, 8)
	copy(buf, value.Value)
	v := binary.LittleEndian.Uint64(buf)
	if value.Reg == 0 {
		t.state.PC = v
	}
	if t.state.Regs == nil {
		t.state.Regs = make(map[gdb.Register]uint64)
	}
	t.state.Regs[value.Reg] = v
	return nil
}

func (t *task) ReadMem(addr uint64, n int) ([]byte, error) {
	data := make([]byte, n)
	for i := range data {
		data[i] = t.state.Mem[addr+uint64(i)]
	}
	return data, nil
}

func (t *task) WriteMem(addr uint64, data []byte) error {
	if !t.mutable {
		return errImmutable
	}
	if t.state.Mem == nil {
		t.state.Mem = make(map[uint64]byte)
	}
	for i, b := range data {
		t.state.Mem[addr+uint64(i)] = b
	}
	return nil
}

func (t *task) ExtraInfo() string { return t.state.Info }

func (t *task) Session() engine.Session { return t.session }
