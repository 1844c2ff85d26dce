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

package engine

import "github.com/tombee/rewind/pkg/gdb"

// TaskUID is the stable identity of one task (thread). TID values can be
// reused by the OS across the lifetime of a trace; Serial disambiguates.
type TaskUID struct {
	TID    int
	Serial uint32
}

// Zero reports whether the UID is unset.
func (u TaskUID) Zero() bool {
	return u.TID == 0 && u.Serial == 0
}

// ThreadGroupUID is the stable identity of one process (thread group).
type ThreadGroupUID struct {
	PID    int
	Serial uint32
}

// Zero reports whether the UID is unset.
func (u ThreadGroupUID) Zero() bool {
	return u.PID == 0 && u.Serial == 0
}

// Registers is a read-only architectural register file. Get returns the raw
// register bytes in target byte order, or ok=false when the register has no
// meaningful value in the current execution mode.
type Registers interface {
	Get(reg gdb.Register) (value []byte, ok bool)
	PC() uint64
	// List returns the registers present in this file, in protocol order.
	List() []gdb.Register
}

// ExtraRegisters is the extended register state (vector, FP) kept separate
// from the general-purpose file, mirroring how engines snapshot them.
type ExtraRegisters interface {
	Get(reg gdb.Register) (value []byte, ok bool)
}

// Task is one debuggee thread inside a session.
type Task interface {
	TUID() TaskUID
	ThreadGroup() ThreadGroupUID

	// Execed reports whether this task's process has performed at least
	// one successful exec since the start of the trace.
	Execed() bool

	Regs() Registers
	ExtraRegs() ExtraRegisters
	SetReg(value gdb.RegisterValue) error

	ReadMem(addr uint64, n int) ([]byte, error)
	WriteMem(addr uint64, data []byte) error

	// ExtraInfo is the human-readable thread description reported to the
	// debugger (state, name).
	ExtraInfo() string

	// Session returns the session this task belongs to.
	Session() Session
}

// Session is the minimal surface the request dispatcher needs: task lookup
// plus breakpoint and watchpoint management. It is implemented by replay
// sessions, diversion sessions, and live (emergency) sessions alike.
type Session interface {
	// FindTask returns the task with the given UID, or nil if it is gone.
	FindTask(uid TaskUID) Task
	// Tasks returns all live tasks in the session.
	Tasks() []Task

	SetBreakpoint(t gdb.BreakType, addr uint64, size int) error
	ClearBreakpoint(t gdb.BreakType, addr uint64, size int) error
}

// Stepper executes one resume unit (a continue or a single step) of the
// given task, in the session's own direction of time. Replay sessions are
// not Steppers; the Timeline steps those so that direction and the mark
// database stay coherent.
type Stepper interface {
	Execute(uid TaskUID, cmd RunCommand, signal int) (Result, error)
}

// LiveSession is a non-replay session attached to a live process, used only
// by the emergency debug path.
type LiveSession interface {
	Session
	Stepper
}

// ReplaySession is the canonical deterministic session being replayed.
type ReplaySession interface {
	Session

	// CurrentEvent is the number of trace events replayed so far.
	CurrentEvent() uint64

	// CurrentTask is the task the replay is positioned on.
	CurrentTask() Task

	// SpawnDiversion forks an ephemeral, independently mutable session
	// from the current replay state. The replay session is not mutated.
	SpawnDiversion() (DiversionSession, error)
}

// DiversionSession is a disposable fork used to sandbox side-effecting
// evaluation. Destroy discards the session and all of its state; nothing a
// diversion did is observable afterwards.
type DiversionSession interface {
	Session
	Stepper
	Destroy()
}
