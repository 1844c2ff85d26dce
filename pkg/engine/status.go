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

// RunCommand selects the resume unit for one step of execution.
type RunCommand int

const (
	// RunContinue runs until a break condition or session exit.
	RunContinue RunCommand = iota
	// RunSinglestep executes exactly one instruction.
	RunSinglestep
)

// String returns "continue" or "singlestep".
func (c RunCommand) String() string {
	if c == RunSinglestep {
		return "singlestep"
	}
	return "continue"
}

// BreakStatus describes why execution stopped short of its resume unit.
type BreakStatus struct {
	// Task is the task that stopped, nil when the whole session exited.
	Task Task

	// BreakpointHit is true when a breakpoint was hit at the stop PC.
	BreakpointHit bool

	// BreakType is the flavor of the breakpoint or watchpoint that
	// triggered; meaningful only when BreakpointHit is true or WatchAddr is
	// nonzero.
	BreakType gdb.BreakType

	// WatchAddr is the address that triggered a watchpoint, 0 for none.
	WatchAddr uint64

	// Signal is the pending signal at the stop, 0 for none.
	Signal int

	// TaskExited is true when the stopped task exited.
	TaskExited bool
}

// Any reports whether the status carries anything worth reporting to the
// debugger.
func (b BreakStatus) Any() bool {
	return b.BreakpointHit || b.WatchAddr != 0 || b.Signal != 0 || b.TaskExited
}

// ResultStatus is the coarse outcome of one step of execution.
type ResultStatus int

const (
	// StatusRunning means the session can continue executing.
	StatusRunning ResultStatus = iota
	// StatusExited means the session has no runnable tasks left. During
	// replay this is reaching the end of the trace; it is a normal
	// transition, not an error.
	StatusExited
)

// Result is the outcome of one step of execution.
type Result struct {
	Status ResultStatus
	Break  BreakStatus

	// ExitCode is meaningful only when Status is StatusExited.
	ExitCode int

	// ExitSignal is the signal that killed the debuggee, or 0 when it
	// exited normally. Meaningful only when Status is StatusExited.
	ExitSignal int
}
