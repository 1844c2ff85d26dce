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

	"github.com/tombee/rewind/pkg/engine"
	rewinderrors "github.com/tombee/rewind/pkg/errors"
	"github.com/tombee/rewind/pkg/gdb"
)

// divert runs a diversion: an ephemeral fork of the current replay state
// that the debugger may freely mutate and execute forward, typically to
// evaluate an expression with side effects. The canonical replay is
// untouched; when the diversion ends, the debugger is back exactly where it
// left the timeline.
//
// divert returns the request that terminated the diversion, which the
// caller must handle against the real session, or ReqNone when the
// diversion was ended by its own magic command.
func (s *Server) divert() (gdb.Request, error) {
	if s.timeline == nil {
		return gdb.Request{}, &rewinderrors.EngineError{
			Op: "divert", Message: "no timeline to divert from",
		}
	}

	diversion, err := s.timeline.CurrentSession().SpawnDiversion()
	if err != nil {
		return gdb.Request{}, rewinderrors.Wrap(err, "spawning diversion")
	}
	defer diversion.Destroy()

	s.diversionRefcount = 1
	defer func() { s.diversionRefcount = 0 }()
	recordDiversion()
	s.logger.Debug("diversion started")

	var req gdb.Request
	for {
		again, err := s.diverterProcessDebuggerRequests(diversion, &req)
		if err != nil {
			return gdb.Request{}, err
		}
		if !again {
			s.logger.Debug("diversion finished",
				slog.String("terminator", req.Kind.String()))
			return req, nil
		}

		cmd := engine.RunContinue
		if req.Resume.Step {
			cmd = engine.RunSinglestep
		}
		result, err := diversion.Execute(s.lastContinueTUID, cmd, req.Resume.Signal)
		if err != nil {
			return gdb.Request{}, &rewinderrors.EngineError{
				Op: "diversion step", Cause: err, Message: err.Error(),
			}
		}

		if result.Status == engine.StatusExited {
			// The forked process ran off the end. The diversion is
			// over; report a synthetic stop so the client regains
			// control at the original position.
			s.diversionRefcount = 0
			s.notifySyntheticTrap()
			return gdb.Request{}, nil
		}

		s.maybeNotifyStop(result.Break)
	}
}

// diverterProcessDebuggerRequests dispatches requests against the diversion
// session. It returns again=true with a resume request to execute, or
// again=false when the diversion is over, leaving the terminating request
// (or ReqNone) in *req.
func (s *Server) diverterProcessDebuggerRequests(diversion engine.DiversionSession, req *gdb.Request) (bool, error) {
	for {
		next, err := s.nextRequest()
		if err != nil {
			return false, err
		}
		*req = next

		switch {
		case next.Kind == gdb.ReqDetach || next.Kind == gdb.ReqRestart:
			// Session control belongs to the real timeline; end the
			// diversion and hand the request up.
			return false, nil

		case next.IsResume():
			if next.Resume.Direction == gdb.RunBackward {
				// Diversions only run forward; a reverse resume
				// ends the diversion and is re-issued against
				// the timeline.
				return false, nil
			}
			return true, nil

		default:
			s.dispatchDebuggerRequest(diversion, next, reportNormal)
			if s.diversionRefcount <= 0 {
				// A magic diversion-end command was processed.
				*req = gdb.Request{}
				s.notifySyntheticTrap()
				return false, nil
			}
		}
	}
}

// notifySyntheticTrap reports a trap stop at the current position without
// any execution having happened.
func (s *Server) notifySyntheticTrap() {
	thread := gdb.AnyThread
	if task := s.findTask(s.currentSession(), s.lastContinueTUID); task != nil {
		thread = s.threadIDOf(task)
	}
	s.dbg.NotifyStop(thread, sigTRAP, 0)
}
