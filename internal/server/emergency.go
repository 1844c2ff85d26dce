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

	"github.com/google/uuid"

	"github.com/tombee/rewind/internal/log"
	"github.com/tombee/rewind/pkg/engine"
	rewinderrors "github.com/tombee/rewind/pkg/errors"
	"github.com/tombee/rewind/pkg/gdb"
)

// EmergencyDebug attaches a debugger to a live task that has hit an
// unrecoverable condition, so a human can inspect it before it is torn
// down. There is no timeline on this path: no restart, no checkpoints, no
// reverse execution, no diversions. The call blocks until the debugger
// detaches.
func EmergencyDebug(ctx context.Context, t engine.Task, factory gdb.ConnectionFactory, flags ConnectionFlags, opts Options) error {
	live, ok := t.Session().(engine.LiveSession)
	if !ok {
		return &rewinderrors.EngineError{
			Op: "emergency debug", Message: "task does not belong to a live session",
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessionID := uuid.NewString()

	s := &Server{
		logger:           log.WithSessionID(log.WithComponent(logger, "emergency"), sessionID),
		sessionID:        sessionID,
		newConn:          factory,
		emergencySession: live,
		debuggeeTGUID:    t.ThreadGroup(),
		lastContinueTUID: t.TUID(),
		lastQueryTUID:    t.TUID(),
		checkpoints:      newCheckpointStore(),
		conditions:       newConditionTable(),
	}

	conn, err := s.awaitConnection(ctx, flags)
	if err != nil {
		return err
	}
	s.dbg = conn
	defer s.dbg.Close()

	s.logger.Warn("emergency debug session started",
		slog.String(log.ThreadKey, s.threadIDOf(t).String()))

	return s.debugLoop(ctx)
}
