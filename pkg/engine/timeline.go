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

// Mark is an engine-owned handle to one revisitable point on the replay
// timeline, carrying cached architectural state. Obtaining a Mark pins that
// point; the engine will not discard a pinned point. Release drops the pin
// and returns reclaim authority to the engine's own retention policy.
//
// Release must be called exactly once per obtained Mark. Marks are not
// automatically collected.
type Mark interface {
	// ID is unique and monotonic in timeline order within one timeline.
	ID() uint64

	// Event is the trace event count at the marked position.
	Event() uint64

	// Regs is the cached general-purpose register state at the mark.
	Regs() Registers

	// ExtraRegs is the cached extended register state at the mark.
	ExtraRegs() ExtraRegisters

	// Release drops this holder's pin.
	Release()
}

// Timeline is a deterministic, bidirectionally-steppable replay of a
// recorded execution, together with its mark database. All stepping of the
// canonical replay goes through the Timeline so direction bookkeeping and
// mark caching stay coherent.
type Timeline interface {
	// CurrentSession is the replay session at the timeline's current
	// position.
	CurrentSession() ReplaySession

	// StepEvent advances the replay forward by one trace event. It is
	// used only while seeking an attach target; breakpoints are not
	// armed yet at that point.
	StepEvent() (Result, error)

	// Replay executes one resume unit of the given task in the given
	// direction, honoring armed breakpoints and watchpoints.
	Replay(uid TaskUID, dir gdb.RunDirection, cmd RunCommand, signal int) (Result, error)

	// Mark pins and returns a mark at the current position.
	Mark() (Mark, error)

	// Seek repositions the timeline to the marked point. The mark stays
	// pinned; the caller still owns its release.
	Seek(m Mark) error

	// PrecedingMark returns the cached mark immediately preceding the
	// current position, if the mark database has one. The returned mark
	// is not pinned for the caller; it is valid only until the timeline
	// moves.
	PrecedingMark() (Mark, bool)
}
