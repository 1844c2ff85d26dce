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

package gdb

import "fmt"

// ThreadID identifies a thread the way the protocol does: a process ID and
// a thread ID, either of which may carry the special Any (0) or All (-1)
// values.
type ThreadID struct {
	PID int
	TID int
}

// Special ThreadID component values defined by the protocol.
const (
	// IDAny matches any process or thread.
	IDAny = 0
	// IDAll matches all processes or threads.
	IDAll = -1
)

// AnyThread matches any thread in any process.
var AnyThread = ThreadID{PID: IDAny, TID: IDAny}

// AllThreads matches every thread in every process.
var AllThreads = ThreadID{PID: IDAll, TID: IDAll}

// String renders the thread ID in the protocol's pPID.TID form.
func (t ThreadID) String() string {
	return fmt.Sprintf("p%d.%d", t.PID, t.TID)
}

// IsConcrete reports whether the ID names one specific thread rather than
// an Any/All wildcard.
func (t ThreadID) IsConcrete() bool {
	return t.PID > 0 && t.TID > 0
}

// RequestKind enumerates the decoded request types the bridge understands.
type RequestKind int

const (
	// ReqNone is the zero request; it is never dispatched.
	ReqNone RequestKind = iota

	// Thread queries.
	ReqGetCurrentThread
	ReqGetThreadList
	ReqGetIsThreadAlive
	ReqGetThreadExtraInfo
	ReqSetContinueThread
	ReqSetQueryThread

	// Register access.
	ReqGetRegs
	ReqGetReg
	ReqSetReg

	// Memory access.
	ReqGetMem
	ReqSetMem

	// Breakpoints and watchpoints.
	ReqSetBreak
	ReqRemoveBreak

	// Execution control.
	ReqResume
	ReqInterrupt
	ReqGetStopReason
	ReqDetach
	ReqRestart
)

var requestKindNames = map[RequestKind]string{
	ReqNone:               "none",
	ReqGetCurrentThread:   "get-current-thread",
	ReqGetThreadList:      "get-thread-list",
	ReqGetIsThreadAlive:   "get-is-thread-alive",
	ReqGetThreadExtraInfo: "get-thread-extra-info",
	ReqSetContinueThread:  "set-continue-thread",
	ReqSetQueryThread:     "set-query-thread",
	ReqGetRegs:            "get-regs",
	ReqGetReg:             "get-reg",
	ReqSetReg:             "set-reg",
	ReqGetMem:             "get-mem",
	ReqSetMem:             "set-mem",
	ReqSetBreak:           "set-break",
	ReqRemoveBreak:        "remove-break",
	ReqResume:             "resume",
	ReqInterrupt:          "interrupt",
	ReqGetStopReason:      "get-stop-reason",
	ReqDetach:             "detach",
	ReqRestart:            "restart",
}

// String returns a stable lowercase name for the request kind, suitable for
// logs and metric labels.
func (k RequestKind) String() string {
	if name, ok := requestKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// RunDirection selects forward or backward execution for resume requests.
type RunDirection int

const (
	// RunForward resumes execution in the recorded direction.
	RunForward RunDirection = iota
	// RunBackward resumes execution against the recorded direction.
	RunBackward
)

// String returns "forward" or "backward".
func (d RunDirection) String() string {
	if d == RunBackward {
		return "backward"
	}
	return "forward"
}

// BreakType distinguishes the breakpoint and watchpoint flavors of the
// protocol's Z/z packets.
type BreakType int

const (
	// BreakSW is a software breakpoint.
	BreakSW BreakType = iota
	// BreakHW is a hardware breakpoint.
	BreakHW
	// WatchWrite triggers when the watched range is written.
	WatchWrite
	// WatchRead triggers when the watched range is read.
	WatchRead
	// WatchAccess triggers on any access to the watched range.
	WatchAccess
)

// MemParams carries the address range of a memory request, plus the payload
// for writes.
type MemParams struct {
	Addr uint64
	Len  int
	Data []byte
}

// WatchParams carries the parameters of a breakpoint or watchpoint request.
type WatchParams struct {
	Type BreakType
	Addr uint64
	// Size is the watched range in bytes; breakpoints use the
	// architecture's instruction kind value here.
	Size int
	// Condition is an optional server-evaluated condition expression. A
	// stop at this location is only reported when the condition holds.
	Condition string
}

// ResumeParams carries the parameters of a resume request.
type ResumeParams struct {
	Direction RunDirection
	// Step requests a single instruction step instead of a continue.
	Step bool
	// Signal is the signal to deliver on resume, or 0 for none.
	Signal int
}

// RestartParams names the checkpoint a restart request targets.
type RestartParams struct {
	// FromCheckpoint is true when the client named a checkpoint ID.
	// Otherwise the restart anchor is used.
	FromCheckpoint bool
	ID             int
}

// Request is one decoded debugger request. Kind selects which parameter
// block is meaningful; Target is the thread the request applies to, which
// may be a wildcard resolved by the dispatcher.
type Request struct {
	Kind   RequestKind
	Target ThreadID

	Mem     MemParams
	Reg     RegisterValue
	Watch   WatchParams
	Resume  ResumeParams
	Restart RestartParams
}

// IsResume reports whether the request resumes execution. Resume-type
// requests are handled by the debug loop itself, never by the dispatcher.
func (r Request) IsResume() bool {
	return r.Kind == ReqResume
}

// IsReverseSinglestep reports whether the request is a backward single
// instruction step, the shape the reverse-step optimizer services from
// cached marks.
func (r Request) IsReverseSinglestep() bool {
	return r.Kind == ReqResume && r.Resume.Step && r.Resume.Direction == RunBackward
}
