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
	"context"
	"log/slog"

	"github.com/tombee/rewind/internal/log"
	"github.com/tombee/rewind/pkg/engine"
	rewinderrors "github.com/tombee/rewind/pkg/errors"
	"github.com/tombee/rewind/pkg/gdb"
)

// tryLazyReverseSinglesteps services runs of reverse single-step requests
// from the mark database instead of re-executing the replay. While the mark
// immediately preceding the current position is cached, a reverse step is
// just a seek, and the register reads that typically follow each step are
// answered from the seeked mark's cached state without touching the session
// at all.
//
// The optimization is transparent: the debugger observes exactly the stops
// and register values genuine reverse execution would produce. On entry
// *req is a reverse single-step; on return *req holds the first request the
// fast path could not service, which the caller handles normally. A reverse
// single-step with no cached preceding mark is returned as-is and executed
// for real.
func (s *Server) tryLazyReverseSinglesteps(req *gdb.Request) error {
	if s.emergencySession != nil {
		return nil
	}

	// at is the mark the timeline currently sits on, once the fast path
	// has seeked at least once. Unpinned; valid because the timeline does
	// not move between iterations.
	var at engine.Mark

	for {
		switch {
		case req.IsReverseSinglestep():
			mark, ok := s.timeline.PrecedingMark()
			if !ok {
				// No adjacent cached mark; genuine reverse
				// execution takes over from here.
				return nil
			}

			if err := s.timeline.Seek(mark); err != nil {
				return rewinderrors.Wrap(err, "seeking to preceding mark")
			}
			at = mark
			recordLazyReverseStep()
			s.logger.Log(context.Background(), log.LevelTrace,
				"reverse step served from mark cache",
				slog.Uint64(log.EventKey, mark.Event()))

			thread := gdb.AnyThread
			if task := s.findTask(s.currentSession(), s.lastContinueTUID); task != nil {
				thread = s.threadIDOf(task)
			}
			s.dbg.NotifyStop(thread, sigTRAP, 0)

		case req.Kind == gdb.ReqGetRegs && at != nil:
			// The register read between steps is served from the
			// mark's cached state.
			regs := at.Regs()
			extra := at.ExtraRegs()
			list := regs.List()
			values := make([]gdb.RegisterValue, 0, len(list))
			for _, reg := range list {
				values = append(values, GetReg(regs, extra, reg))
			}
			s.dbg.ReplyGetRegs(values)

		default:
			// Anything else ends the fast path; the caller handles
			// this request.
			return nil
		}

		next, err := s.nextRequest()
		if err != nil {
			return err
		}
		*req = next
	}
}
