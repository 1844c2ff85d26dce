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

var errDestroyed = errors.New("sim: session destroyed")

// instrSize is the synthetic instruction width; each executed step advances
// PC by this much.
const instrSize = 4

// mutableSession is a freely mutable forked state: the shared core of
// diversion and live sessions. Unlike the replay, it executes by actually
// advancing the task states, not by walking frames.
type mutableSession struct {
	tasks       []*TaskState
	breakpoints map[bpKey]struct{}

	// budget is how many steps remain before the session exits, modeling
	// the process running off the end. <0 means unlimited.
	budget   int
	exitCode int
}

func newMutableSession(states []*TaskState, budget int) *mutableSession {
	tasks := make([]*TaskState, 0, len(states))
	for _, st := range states {
		tasks = append(tasks, st.clone())
	}
	return &mutableSession{
		tasks:       tasks,
		breakpoints: make(map[bpKey]struct{}),
		budget:      budget,
	}
}

func (s *mutableSession) FindTask(uid engine.TaskUID) engine.Task {
	for _, st := range s.tasks {
		if st.TID == uid.TID && st.TIDSerial == uid.Serial {
			return &task{state: st, session: s, mutable: true}
		}
	}
	return nil
}

func (s *mutableSession) Tasks() []engine.Task {
	tasks := make([]engine.Task, 0, len(s.tasks))
	for _, st := range s.tasks {
		tasks = append(tasks, &task{state: st, session: s, mutable: true})
	}
	return tasks
}

func (s *mutableSession) SetBreakpoint(t gdb.BreakType, addr uint64, size int) error {
	s.breakpoints[bpKey{typ: t, addr: addr, size: size}] = struct{}{}
	return nil
}

func (s *mutableSession) ClearBreakpoint(t gdb.BreakType, addr uint64, size int) error {
	delete(s.breakpoints, bpKey{typ: t, addr: addr, size: size})
	return nil
}

// Execute advances the named task. Singlesteps move one synthetic
// instruction; continues run until a breakpoint or the step budget runs
// out.
func (s *mutableSession) Execute(uid engine.TaskUID, cmd engine.RunCommand, signal int) (engine.Result, error) {
	t := s.FindTask(uid)
	if t == nil && len(s.tasks) > 0 {
		t = &task{state: s.tasks[0], session: s, mutable: true}
	}
	if t == nil {
		return engine.Result{Status: engine.StatusExited, ExitCode: s.exitCode}, nil
	}
	st := t.(*task).state

	for {
		if s.budget == 0 {
			return engine.Result{Status: engine.StatusExited, ExitCode: s.exitCode}, nil
		}
		if s.budget > 0 {
			s.budget--
		}
		st.PC += instrSize

		if typ, hit := s.breakpointAt(st.PC); hit {
			return engine.Result{
				Status: engine.StatusRunning,
				Break:  engine.BreakStatus{Task: t, BreakpointHit: true, BreakType: typ},
			}, nil
		}
		if cmd == engine.RunSinglestep {
			return engine.Result{
				Status: engine.StatusRunning,
				Break:  engine.BreakStatus{Task: t, Signal: sigTRAP},
			}, nil
		}
	}
}

func (s *mutableSession) breakpointAt(pc uint64) (gdb.BreakType, bool) {
	for key := range s.breakpoints {
		if (key.typ == gdb.BreakSW || key.typ == gdb.BreakHW) && key.addr == pc {
			return key.typ, true
		}
	}
	return gdb.BreakSW, false
}

// diversion is a disposable mutable fork of one replay frame.
type diversion struct {
	*mutableSession
	destroyed bool
}

// diversionBudget bounds runaway continues inside a diversion.
const diversionBudget = 1 << 16

func newDiversion(frame *Frame) *diversion {
	return &diversion{mutableSession: newMutableSession(frame.Tasks, diversionBudget)}
}

func (d *diversion) Destroy() {
	d.destroyed = true
	d.tasks = nil
}

func (d *diversion) Execute(uid engine.TaskUID, cmd engine.RunCommand, signal int) (engine.Result, error) {
	if d.destroyed {
		return engine.Result{}, errDestroyed
	}
	return d.mutableSession.Execute(uid, cmd, signal)
}

// LiveSession is a scripted stand-in for a live process, used to exercise
// the emergency debug path.
type LiveSession struct {
	*mutableSession
}

// NewLiveSession builds a live session from initial task states. The states
// are cloned; budget bounds the total steps before the process exits, with
// <0 meaning unlimited.
func NewLiveSession(states []*TaskState, budget int, exitCode int) *LiveSession {
	s := newMutableSession(states, budget)
	s.exitCode = exitCode
	return &LiveSession{mutableSession: s}
}

// Task returns the live task with the given TID, wired back to this
// session.
func (s *LiveSession) Task(tid int) engine.Task {
	for _, st := range s.tasks {
		if st.TID == tid {
			return &task{state: st, session: s, mutable: true}
		}
	}
	return nil
}
