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
	"log/slog"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/rewind/pkg/engine"
	rewinderrors "github.com/tombee/rewind/pkg/errors"
	"github.com/tombee/rewind/pkg/gdb"
)

// conditionKey identifies the breakpoint or watchpoint a condition is
// attached to.
type conditionKey struct {
	typ  gdb.BreakType
	addr uint64
}

// conditionTable holds the server-evaluated stop conditions. Conditions are
// compiled once at registration; evaluation happens on every candidate stop
// at the location.
type conditionTable struct {
	programs map[conditionKey]*vm.Program
}

func newConditionTable() *conditionTable {
	return &conditionTable{programs: make(map[conditionKey]*vm.Program)}
}

// conditionEnv is the variable set condition expressions may reference.
type conditionEnv struct {
	PC     uint64 `expr:"pc"`
	Event  uint64 `expr:"event"`
	TID    int    `expr:"tid"`
	Signal int    `expr:"signal"`
}

// set compiles and registers the condition carried by a breakpoint request.
// Re-registering a location replaces its condition.
func (t *conditionTable) set(w gdb.WatchParams) error {
	program, err := expr.Compile(w.Condition,
		expr.Env(conditionEnv{}),
		expr.AsBool(),
	)
	if err != nil {
		return &rewinderrors.ProtocolError{Request: "set-break", Message: err.Error()}
	}
	t.programs[conditionKey{typ: w.Type, addr: w.Addr}] = program
	return nil
}

// remove drops the condition for a location, if any.
func (t *conditionTable) remove(w gdb.WatchParams) {
	delete(t.programs, conditionKey{typ: w.Type, addr: w.Addr})
}

// lookup returns the compiled condition for a location.
func (t *conditionTable) lookup(typ gdb.BreakType, addr uint64) (*vm.Program, bool) {
	program, ok := t.programs[conditionKey{typ: typ, addr: addr}]
	return program, ok
}

// passesCondition decides whether a breakpoint or watchpoint stop should be
// reported. The condition is looked up under the type and address of what
// actually triggered: the watch address for watchpoint stops, the stop PC
// for breakpoint stops. A location without a condition always stops. An
// evaluation failure also stops; swallowing the stop would make the bug
// invisible.
func (s *Server) passesCondition(bs engine.BreakStatus) bool {
	if bs.Task == nil {
		return true
	}

	addr := bs.WatchAddr
	if bs.WatchAddr == 0 {
		addr = bs.Task.Regs().PC()
	}
	program, ok := s.conditions.lookup(bs.BreakType, addr)
	if !ok {
		return true
	}

	env := conditionEnv{
		PC:     bs.Task.Regs().PC(),
		TID:    bs.Task.TUID().TID,
		Signal: bs.Signal,
	}
	if s.timeline != nil {
		env.Event = s.timeline.CurrentSession().CurrentEvent()
	}

	out, err := expr.Run(program, env)
	if err != nil {
		s.logger.Warn("stop condition evaluation failed; reporting the stop",
			slog.Any("error", err))
		return true
	}

	pass, ok := out.(bool)
	return !ok || pass
}
