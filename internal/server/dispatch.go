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

	"github.com/tombee/rewind/internal/log"
	"github.com/tombee/rewind/pkg/engine"
	"github.com/tombee/rewind/pkg/gdb"
)

// reportState controls how thread liveness is reported. In threads-dead
// mode every thread is reported dead and the thread list is empty, which is
// how the client learns the debuggee is gone while the connection stays up
// for a possible restart.
type reportState int

const (
	reportNormal reportState = iota
	reportThreadsDead
)

// dispatchDebuggerRequest handles one non-resume request against the given
// session and sends the reply. Resume, detach, and restart never reach
// here.
func (s *Server) dispatchDebuggerRequest(session engine.Session, req gdb.Request, state reportState) {
	switch req.Kind {
	case gdb.ReqGetCurrentThread:
		thread := gdb.AnyThread
		if task := s.findTask(session, s.lastContinueTUID); task != nil {
			thread = s.threadIDOf(task)
		}
		s.dbg.ReplyGetCurrentThread(thread)

	case gdb.ReqGetThreadList:
		var threads []gdb.ThreadID
		if state == reportNormal {
			for _, task := range session.Tasks() {
				if task.ThreadGroup() == s.debuggeeTGUID {
					threads = append(threads, s.threadIDOf(task))
				}
			}
		}
		s.dbg.ReplyGetThreadList(threads)

	case gdb.ReqGetIsThreadAlive:
		alive := state == reportNormal && s.taskForThread(session, req.Target) != nil
		s.dbg.ReplyGetIsThreadAlive(alive)

	case gdb.ReqGetThreadExtraInfo:
		task := s.taskForThread(session, req.Target)
		if task == nil {
			s.dbg.NotifyNoSuchThread(req)
			return
		}
		s.dbg.ReplyGetThreadExtraInfo(task.ExtraInfo())

	case gdb.ReqSetContinueThread, gdb.ReqSetQueryThread:
		s.dispatchSelectThread(session, req)

	case gdb.ReqGetRegs, gdb.ReqGetReg, gdb.ReqSetReg:
		s.dispatchRegsRequest(session, req)

	case gdb.ReqGetMem:
		s.dispatchGetMem(session, req)

	case gdb.ReqSetMem:
		s.dispatchSetMem(session, req)

	case gdb.ReqSetBreak:
		if req.Watch.Condition != "" {
			if err := s.conditions.set(req.Watch); err != nil {
				s.logger.Warn("rejecting unparsable stop condition",
					slog.String("condition", req.Watch.Condition), slog.Any("error", err))
				s.dbg.ReplyWatchpointRequest(false)
				return
			}
		}
		err := session.SetBreakpoint(req.Watch.Type, req.Watch.Addr, req.Watch.Size)
		if err != nil {
			s.conditions.remove(req.Watch)
		}
		s.dbg.ReplyWatchpointRequest(err == nil)

	case gdb.ReqRemoveBreak:
		s.conditions.remove(req.Watch)
		err := session.ClearBreakpoint(req.Watch.Type, req.Watch.Addr, req.Watch.Size)
		s.dbg.ReplyWatchpointRequest(err == nil)

	case gdb.ReqGetStopReason:
		if state == reportThreadsDead {
			s.notifyExit()
			return
		}
		s.notifyCurrentStop()

	case gdb.ReqInterrupt:
		// Execution is already stopped whenever requests are being
		// processed; acknowledge with a stop at the current position.
		s.notifyCurrentStop()

	default:
		s.logger.Warn("unhandled request kind",
			slog.String(log.RequestKey, req.Kind.String()))
	}
}

// dispatchSelectThread updates the rolling continue/query thread defaults.
// Wildcard targets leave the current default in place.
func (s *Server) dispatchSelectThread(session engine.Session, req gdb.Request) {
	if !req.Target.IsConcrete() {
		s.dbg.ReplySelectThread(true)
		return
	}

	task := s.taskForThread(session, req.Target)
	if task == nil {
		s.dbg.ReplySelectThread(false)
		return
	}

	if req.Kind == gdb.ReqSetContinueThread {
		s.lastContinueTUID = task.TUID()
	} else {
		s.lastQueryTUID = task.TUID()
	}
	s.dbg.ReplySelectThread(true)
}

// dispatchRegsRequest serves register reads and writes. Register writes are
// only honored on mutable sessions (diversions and the emergency path);
// replay state is immutable.
func (s *Server) dispatchRegsRequest(session engine.Session, req gdb.Request) {
	task := s.taskForThread(session, req.Target)
	if task == nil {
		s.dbg.NotifyNoSuchThread(req)
		return
	}

	switch req.Kind {
	case gdb.ReqGetReg:
		s.dbg.ReplyGetReg(GetReg(task.Regs(), task.ExtraRegs(), req.Reg.Reg))

	case gdb.ReqGetRegs:
		regs := task.Regs()
		extra := task.ExtraRegs()
		list := regs.List()
		values := make([]gdb.RegisterValue, 0, len(list))
		for _, reg := range list {
			values = append(values, GetReg(regs, extra, reg))
		}
		s.dbg.ReplyGetRegs(values)

	case gdb.ReqSetReg:
		if _, mutable := session.(engine.Stepper); !mutable {
			s.logger.Debug("register write ignored outside a diversion")
			s.dbg.ReplySetReg(false)
			return
		}
		s.dbg.ReplySetReg(task.SetReg(req.Reg) == nil)
	}
}

// dispatchGetMem serves memory reads, giving the magic channel first
// refusal on the address.
func (s *Server) dispatchGetMem(session engine.Session, req gdb.Request) {
	if data, handled := s.maybeProcessMagicRead(req.Mem); handled {
		s.dbg.ReplyGetMem(data)
		return
	}

	task := s.taskForThread(session, req.Target)
	if task == nil {
		s.dbg.NotifyNoSuchThread(req)
		return
	}

	data, err := task.ReadMem(req.Mem.Addr, req.Mem.Len)
	if err != nil {
		s.dbg.ReplyGetMem(nil)
		return
	}
	s.dbg.ReplyGetMem(data)
}

// dispatchSetMem serves memory writes. Writes to the magic page are
// commands, not memory; everything else requires a mutable session.
func (s *Server) dispatchSetMem(session engine.Session, req gdb.Request) {
	if handled := s.maybeProcessMagicCommand(req.Mem); handled {
		s.dbg.ReplySetMem(true)
		return
	}

	if _, mutable := session.(engine.Stepper); !mutable {
		s.logger.Debug("memory write ignored outside a diversion",
			slog.Uint64("addr", req.Mem.Addr))
		s.dbg.ReplySetMem(false)
		return
	}

	task := s.taskForThread(session, req.Target)
	if task == nil {
		s.dbg.NotifyNoSuchThread(req)
		return
	}
	s.dbg.ReplySetMem(task.WriteMem(req.Mem.Addr, req.Mem.Data) == nil)
}

// taskForThread resolves a protocol thread ID against the session. Wildcard
// IDs resolve to the rolling query default.
func (s *Server) taskForThread(session engine.Session, thread gdb.ThreadID) engine.Task {
	if !thread.IsConcrete() {
		return s.findTask(session, s.lastQueryTUID)
	}
	for _, task := range session.Tasks() {
		if task.TUID().TID == thread.TID && task.ThreadGroup().PID == thread.PID {
			return task
		}
	}
	return nil
}
