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
	"errors"

	"github.com/tombee/rewind/pkg/engine"
	"github.com/tombee/rewind/pkg/gdb"
)

var (
	errImmutable   = errors.New("sim: replay state is immutable")
	errBadRegister = errors.New("sim: undefined register value")
	errEmptyTrace  = errors.New("sim: trace has no frames")
	errForeignMark = errors.New("sim: mark belongs to another timeline")
)

// sigTRAP is reported for singlestep completion and trace-edge stops, the
// way a real engine reports traps.
const sigTRAP = 5

type bpKey struct {
	typ  gdb.BreakType
	addr uint64
	size int
}

// Timeline replays a Trace by walking its frame sequence. It implements
// engine.Timeline.
type Timeline struct {
	trace *Trace
	pos   int

	breakpoints map[bpKey]struct{}

	// marks caches one mark per visited frame position. Cached entries
	// survive Release (pins only gate hypothetical reclaim, which the sim
	// never performs) but are only created where the replay has actually
	// stepped, so PrecedingMark answers honestly.
	marks      map[int]*mark
	nextMarkID uint64
}

// NewTimeline creates a timeline positioned at the trace's first frame.
func NewTimeline(trace *Trace) (*Timeline, error) {
	if len(trace.Frames) == 0 {
		return nil, errEmptyTrace
	}
	tl := &Timeline{
		trace:       trace,
		breakpoints: make(map[bpKey]struct{}),
		marks:       make(map[int]*mark),
		nextMarkID:  1,
	}
	return tl, nil
}

// mark is a cached frame position. ID equals 1+position so IDs are
// monotonic in timeline order.
type mark struct {
	tl   *Timeline
	pos  int
	id   uint64
	pins int
}

func (m *mark) ID() uint64    { return m.id }
func (m *mark) Event() uint64 { return m.tl.trace.Frames[m.pos].Event }

func (m *mark) Regs() engine.Registers {
	t := m.tl.trace.Frames[m.pos].Tasks[0]
	return regFile{regs: t.Regs, pc: t.PC}
}

func (m *mark) ExtraRegs() engine.ExtraRegisters {
	return extraRegFile{regs: m.tl.trace.Frames[m.pos].Tasks[0].ExtraRegs}
}

func (m *mark) Release() {
	if m.pins > 0 {
		m.pins--
	}
}

// cacheMark returns the cached mark for a position, creating it on first
// visit.
func (tl *Timeline) cacheMark(pos int) *mark {
	if m, ok := tl.marks[pos]; ok {
		return m
	}
	m := &mark{tl: tl, pos: pos, id: tl.nextMarkID}
	tl.nextMarkID++
	tl.marks[pos] = m
	return m
}

// CurrentSession returns the replay view of the current position.
func (tl *Timeline) CurrentSession() engine.ReplaySession {
	return &replaySession{tl: tl}
}

// StepEvent advances one frame forward without honoring breakpoints.
func (tl *Timeline) StepEvent() (engine.Result, error) {
	if tl.pos+1 >= len(tl.trace.Frames) {
		return tl.exitResult(), nil
	}
	tl.pos++
	return engine.Result{Status: engine.StatusRunning}, nil
}

// Replay executes one resume unit against the frame sequence. Singlesteps
// move exactly one frame; continues run until a breakpoint PC match, a
// watchpoint value change, or the edge of the trace. Every visited frame is
// added to the mark cache.
func (tl *Timeline) Replay(uid engine.TaskUID, dir gdb.RunDirection, cmd engine.RunCommand, signal int) (engine.Result, error) {
	delta := 1
	if dir == gdb.RunBackward {
		delta = -1
	}

	for {
		next := tl.pos + delta
		if next >= len(tl.trace.Frames) {
			return tl.exitResult(), nil
		}
		if next < 0 {
			// Start of trace; report a stop where we are.
			return tl.stopResult(uid, engine.BreakStatus{Signal: sigTRAP}), nil
		}

		prev := tl.trace.Frames[tl.pos]
		tl.pos = next
		tl.cacheMark(tl.pos)
		frame := tl.trace.Frames[tl.pos]

		if bs, hit := tl.checkBreak(prev, frame, uid); hit {
			return tl.stopResult(uid, bs), nil
		}
		if cmd == engine.RunSinglestep {
			return tl.stopResult(uid, engine.BreakStatus{Signal: sigTRAP}), nil
		}
	}
}

// checkBreak tests the armed breakpoints and watchpoints against the frame
// just entered.
func (tl *Timeline) checkBreak(prev, frame *Frame, uid engine.TaskUID) (engine.BreakStatus, bool) {
	for key := range tl.breakpoints {
		switch key.typ {
		case gdb.BreakSW, gdb.BreakHW:
			for _, t := range frame.Tasks {
				if t.PC == key.addr {
					return engine.BreakStatus{BreakpointHit: true, BreakType: key.typ}, true
				}
			}
		case gdb.WatchWrite, gdb.WatchRead, gdb.WatchAccess:
			if watchChanged(prev, frame, key.addr, key.size) {
				return engine.BreakStatus{WatchAddr: key.addr, BreakType: key.typ}, true
			}
		}
	}
	return engine.BreakStatus{}, false
}

// watchChanged reports whether any byte in the watched range differs
// between two frames, comparing the first task's memory.
func watchChanged(prev, frame *Frame, addr uint64, size int) bool {
	if len(prev.Tasks) == 0 || len(frame.Tasks) == 0 {
		return false
	}
	before, after := prev.Tasks[0].Mem, frame.Tasks[0].Mem
	for i := 0; i < size; i++ {
		if before[addr+uint64(i)] != after[addr+uint64(i)] {
			return true
		}
	}
	return false
}

// exitResult is the end-of-trace outcome, carrying how the recorded
// debuggee finished.
func (tl *Timeline) exitResult() engine.Result {
	return engine.Result{
		Status:     engine.StatusExited,
		ExitCode:   tl.trace.ExitCode,
		ExitSignal: tl.trace.ExitSignal,
	}
}

// stopResult attaches the stopped task to a break status.
func (tl *Timeline) stopResult(uid engine.TaskUID, bs engine.BreakStatus) engine.Result {
	session := &replaySession{tl: tl}
	if t := session.FindTask(uid); t != nil {
		bs.Task = t
	} else if current := session.CurrentTask(); current != nil {
		bs.Task = current
	}
	return engine.Result{Status: engine.StatusRunning, Break: bs}
}

// Mark pins the current position.
func (tl *Timeline) Mark() (engine.Mark, error) {
	m := tl.cacheMark(tl.pos)
	m.pins++
	return m, nil
}

// Seek repositions the timeline onto a previously obtained mark.
func (tl *Timeline) Seek(em engine.Mark) error {
	m, ok := em.(*mark)
	if !ok || m.tl != tl {
		return errForeignMark
	}
	tl.pos = m.pos
	return nil
}

// PrecedingMark returns the cached mark one frame back, when the replay has
// visited that frame before.
func (tl *Timeline) PrecedingMark() (engine.Mark, bool) {
	m, ok := tl.marks[tl.pos-1]
	return m, ok
}

// replaySession is the immutable view of the timeline's current frame.
type replaySession struct {
	tl *Timeline
}

func (s *replaySession) frame() *Frame {
	return s.tl.trace.Frames[s.tl.pos]
}

func (s *replaySession) FindTask(uid engine.TaskUID) engine.Task {
	for _, st := range s.frame().Tasks {
		if st.TID == uid.TID && st.TIDSerial == uid.Serial {
			return &task{state: st, session: s}
		}
	}
	return nil
}

func (s *replaySession) Tasks() []engine.Task {
	frame := s.frame()
	tasks := make([]engine.Task, 0, len(frame.Tasks))
	for _, st := range frame.Tasks {
		tasks = append(tasks, &task{state: st, session: s})
	}
	return tasks
}

func (s *replaySession) SetBreakpoint(t gdb.BreakType, addr uint64, size int) error {
	s.tl.breakpoints[bpKey{typ: t, addr: addr, size: size}] = struct{}{}
	return nil
}

func (s *replaySession) ClearBreakpoint(t gdb.BreakType, addr uint64, size int) error {
	delete(s.tl.breakpoints, bpKey{typ: t, addr: addr, size: size})
	return nil
}

func (s *replaySession) CurrentEvent() uint64 {
	return s.frame().Event
}

func (s *replaySession) CurrentTask() engine.Task {
	frame := s.frame()
	if len(frame.Tasks) == 0 {
		return nil
	}
	return &task{state: frame.Tasks[0], session: s}
}

func (s *replaySession) SpawnDiversion() (engine.DiversionSession, error) {
	return newDiversion(s.frame()), nil
}
