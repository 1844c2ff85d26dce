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

// Package server implements the debug bridge: a single-connection GDB
// remote protocol server over a deterministic replay timeline (or, on the
// emergency path, a live session). It owns the attachment state machine,
// the request dispatcher, the checkpoint store, the reverse-step optimizer,
// and the diversion controller.
package server

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/rewind/internal/log"
	"github.com/tombee/rewind/pkg/engine"
	rewinderrors "github.com/tombee/rewind/pkg/errors"
	"github.com/tombee/rewind/pkg/gdb"
)

// sigTRAP is the signal number reported for breakpoint, watchpoint, and
// synthesized single-step stops.
const sigTRAP = 5

var tracer = otel.Tracer("github.com/tombee/rewind/internal/server")

// Target is the attach predicate: replay advances until it is satisfied.
// Immutable once ServeReplay begins.
type Target struct {
	// PID is the process to debug, or 0 for the first process seen.
	PID int

	// RequireExec waits for the target process to exec before attaching.
	RequireExec bool

	// Event is the minimum trace event count before attaching.
	Event uint64
}

// Options configures optional server collaborators.
type Options struct {
	// Logger is the structured logger. If nil, slog.Default is used.
	Logger *slog.Logger
}

// Server is one debug bridge instance. It serves exactly one debugger
// connection for its lifetime and is driven single-threaded: one request is
// processed at a time, with no internal parallelism. The only asynchronous
// input is the replay-to-target interrupt flag.
type Server struct {
	logger    *slog.Logger
	sessionID string

	target  Target
	newConn gdb.ConnectionFactory

	// timeline is nil on the emergency path.
	timeline engine.Timeline
	// emergencySession is non-nil only on the emergency path.
	emergencySession engine.LiveSession

	// dbg is nil until the connection is established, then immutable.
	// There is no reconnection and no multiplexing.
	dbg gdb.Connection

	// debuggeeTGUID is fixed at attach; the bridge never retargets to a
	// different process mid-session.
	debuggeeTGUID engine.ThreadGroupUID
	// Rolling defaults for requests that omit an explicit thread.
	lastContinueTUID engine.TaskUID
	lastQueryTUID    engine.TaskUID

	// stopReplayingToTarget may be set from a signal handler or another
	// goroutine, strictly during the replay-to-target phase. Relaxed
	// atomic semantics; polled at each step boundary.
	stopReplayingToTarget atomic.Bool

	checkpoints *checkpointStore
	// restartAnchor is set exactly once, at first successful attach. It
	// is independent of the id-keyed store and survives ordinary
	// checkpoint deletion.
	restartAnchor    checkpoint
	hasRestartAnchor bool

	conditions *conditionTable

	// Diversion controller state. The refcount is > 0 while a diversion
	// is active; nesting bumps the counter instead of recursing.
	diversionRefcount int
	pendingDiversion  bool

	// exitCode and exitSignal record how the debuggee finished once the
	// session has fully exited, reported on status polls in threads-dead
	// mode. A nonzero exitSignal means it was killed.
	exitCode   int
	exitSignal int
}

// New creates a bridge serving the replay of the given timeline. The
// factory wraps the accepted transport stream with the protocol codec.
func New(timeline engine.Timeline, target Target, factory gdb.ConnectionFactory, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessionID := uuid.NewString()

	return &Server{
		logger:      log.WithSessionID(log.WithComponent(logger, "server"), sessionID),
		sessionID:   sessionID,
		target:      target,
		newConn:     factory,
		timeline:    timeline,
		checkpoints: newCheckpointStore(),
		conditions:  newConditionTable(),
	}
}

// InterruptReplayToTarget interrupts the replay-to-target phase so that
// debugging starts wherever the replay happens to be. Safe to call from a
// signal handler or another goroutine; it has no effect outside the
// replay-to-target phase.
func (s *Server) InterruptReplayToTarget() {
	s.stopReplayingToTarget.Store(true)
}

// ServeReplay runs the bridge: replay to the attach target, accept one
// debugger connection, then run the debug loop. It returns when the
// debugger detaches, the connection fails, or the trace ends before the
// target is reached.
func (s *Server) ServeReplay(ctx context.Context, flags ConnectionFlags) error {
	ctx, span := tracer.Start(ctx, "rewind.serve",
		trace.WithAttributes(attribute.String("session.id", s.sessionID)))
	defer span.End()

	reached, err := s.replayToTarget(ctx)
	if err != nil {
		return err
	}
	if !reached {
		// End of trace before the target was satisfied: a normal
		// EXITED transition, not an error.
		s.logger.Info("trace ended before attach target was reached",
			slog.Uint64(log.EventKey, s.timeline.CurrentSession().CurrentEvent()))
		return nil
	}

	if err := s.activateDebugger(ctx, flags); err != nil {
		return err
	}
	defer s.dbg.Close()
	defer s.checkpoints.releaseAll()

	return s.debugLoop(ctx)
}

// replayToTarget advances the timeline forward one event at a time until
// the target predicate is satisfied or the interrupt flag is raised.
// Returns false when the trace ends first.
func (s *Server) replayToTarget(ctx context.Context) (bool, error) {
	_, span := tracer.Start(ctx, "rewind.replay_to_target")
	defer span.End()

	for !s.atTarget() {
		if s.stopReplayingToTarget.Load() {
			s.logger.Info("replay to target interrupted; attaching here",
				slog.Uint64(log.EventKey, s.timeline.CurrentSession().CurrentEvent()))
			return true, nil
		}

		result, err := s.timeline.StepEvent()
		if err != nil {
			return false, rewinderrors.Wrap(err, "replaying to target")
		}
		if result.Status == engine.StatusExited {
			s.exitCode = result.ExitCode
			s.exitSignal = result.ExitSignal
			return false, nil
		}
	}
	return true, nil
}

// atTarget reports whether the current replay position satisfies the
// target predicate.
func (s *Server) atTarget() bool {
	session := s.timeline.CurrentSession()
	task := session.CurrentTask()
	if task == nil {
		return false
	}
	if s.target.PID != 0 && task.ThreadGroup().PID != s.target.PID {
		return false
	}
	if s.target.RequireExec && !task.Execed() {
		return false
	}
	return session.CurrentEvent() >= s.target.Event
}

// activateDebugger binds the listener, blocks for one inbound connection,
// and snapshots the restart anchor.
func (s *Server) activateDebugger(ctx context.Context, flags ConnectionFlags) error {
	ctx, span := tracer.Start(ctx, "rewind.attach")
	defer span.End()

	conn, err := s.awaitConnection(ctx, flags)
	if err != nil {
		return err
	}
	s.dbg = conn

	task := s.timeline.CurrentSession().CurrentTask()
	s.debuggeeTGUID = task.ThreadGroup()
	s.lastContinueTUID = task.TUID()
	s.lastQueryTUID = task.TUID()

	mark, err := s.timeline.Mark()
	if err != nil {
		return rewinderrors.Wrap(err, "pinning restart anchor")
	}
	s.restartAnchor = checkpoint{mark: mark, lastContinueTUID: task.TUID()}
	s.hasRestartAnchor = true

	s.logger.Info("debugger attached",
		slog.Uint64(log.EventKey, s.timeline.CurrentSession().CurrentEvent()),
		slog.String(log.ThreadKey, s.threadIDOf(task).String()))
	return nil
}

// debugLoop pulls one request at a time until detach or connection failure.
func (s *Server) debugLoop(ctx context.Context) error {
	_, span := tracer.Start(ctx, "rewind.debug_loop")
	defer span.End()

	// The client may switch run direction between requests; the last
	// direction is remembered across resume requests.
	lastDirection := gdb.RunForward
	for {
		cont, err := s.debugOneStep(&lastDirection)
		if err != nil {
			s.logger.Error("debug loop terminated", slog.Any("error", err))
			return err
		}
		if !cont {
			s.logger.Info("debugger detached")
			return nil
		}
	}
}

// debugOneStep processes requests until a resume-type request arrives, then
// executes exactly one resume unit. It returns false when debugging is
// over.
func (s *Server) debugOneStep(lastDirection *gdb.RunDirection) (bool, error) {
	req, err := s.processDebuggerRequests(reportNormal)
	if err != nil {
		return false, err
	}

	for {
		if done, handled, err := s.detachOrRestart(req); handled {
			return !done, err
		}

		if req.IsReverseSinglestep() {
			if err := s.tryLazyReverseSinglesteps(&req); err != nil {
				return false, err
			}
			// The optimizer returned a pending request of a
			// different kind; it may be anything, including
			// another detach/restart.
			if !req.IsResume() {
				if done, handled, err := s.detachOrRestart(req); handled {
					return !done, err
				}
				s.dispatchDebuggerRequest(s.currentSession(), req, reportNormal)
				if s.pendingDiversion {
					s.pendingDiversion = false
					dreq, err := s.divert()
					if err != nil {
						return false, err
					}
					if dreq.Kind != gdb.ReqNone {
						req = dreq
						continue
					}
				}
				req, err = s.processDebuggerRequests(reportNormal)
				if err != nil {
					return false, err
				}
				continue
			}
		}
		break
	}

	*lastDirection = req.Resume.Direction
	return s.executeResume(req)
}

// executeResume runs one resume unit and reports the resulting stop.
// A conditional breakpoint whose condition does not hold is transparent:
// the same resume request is re-executed without reporting.
func (s *Server) executeResume(req gdb.Request) (bool, error) {
	cmd := engine.RunContinue
	if req.Resume.Step {
		cmd = engine.RunSinglestep
	}
	s.logger.Log(context.Background(), log.LevelTrace, "resuming",
		slog.String(log.DirectionKey, req.Resume.Direction.String()),
		slog.String("command", cmd.String()))

	for {
		var (
			result engine.Result
			err    error
		)
		if s.emergencySession != nil {
			if req.Resume.Direction == gdb.RunBackward {
				// Live sessions cannot run backward; report a
				// stop at the current position.
				s.logger.Warn("reverse execution requested on a live session")
				s.notifyCurrentStop()
				return true, nil
			}
			result, err = s.emergencySession.Execute(s.lastContinueTUID, cmd, req.Resume.Signal)
		} else {
			result, err = s.timeline.Replay(s.lastContinueTUID, req.Resume.Direction, cmd, req.Resume.Signal)
		}
		if err != nil {
			return false, &rewinderrors.EngineError{Op: "step", Cause: err, Message: err.Error()}
		}

		if result.Status == engine.StatusExited {
			s.exitCode = result.ExitCode
			s.exitSignal = result.ExitSignal
			return s.handleExitedState()
		}

		if (result.Break.BreakpointHit || result.Break.WatchAddr != 0) &&
			!s.passesCondition(result.Break) {
			// Condition did not hold; continue as if the stop
			// never happened.
			continue
		}

		s.maybeNotifyStop(result.Break)
		return true, nil
	}
}

// detachOrRestart handles the two session-control requests. handled is true
// when the request was one of them; done is true when the debug loop should
// stop.
func (s *Server) detachOrRestart(req gdb.Request) (done, handled bool, err error) {
	switch req.Kind {
	case gdb.ReqDetach:
		s.dbg.ReplyDetach()
		return true, true, nil
	case gdb.ReqRestart:
		s.restartSession(req)
		return false, true, nil
	default:
		return false, false, nil
	}
}

// restartSession reinitializes the timeline from the named checkpoint, or
// from the restart anchor when the request names none. An unknown
// checkpoint is an ordinary protocol failure, never fatal.
func (s *Server) restartSession(req gdb.Request) {
	if s.emergencySession != nil {
		// No restart semantics on the emergency path.
		s.dbg.ReplyRestartFailed()
		return
	}

	cp := s.restartAnchor
	if req.Restart.FromCheckpoint {
		var ok bool
		cp, ok = s.checkpoints.get(req.Restart.ID)
		if !ok {
			s.logger.Warn("restart from unknown checkpoint",
				slog.Int(log.CheckpointKey, req.Restart.ID))
			s.dbg.ReplyRestartFailed()
			return
		}
	} else if !s.hasRestartAnchor {
		s.dbg.ReplyRestartFailed()
		return
	}

	if err := s.timeline.Seek(cp.mark); err != nil {
		s.logger.Error("seek to checkpoint failed",
			slog.Int(log.CheckpointKey, req.Restart.ID), slog.Any("error", err))
		s.dbg.ReplyRestartFailed()
		return
	}

	s.lastContinueTUID = cp.lastContinueTUID
	s.lastQueryTUID = cp.lastContinueTUID
	s.logger.Info("session restarted",
		slog.Uint64(log.EventKey, s.timeline.CurrentSession().CurrentEvent()))
}

// handleExitedState reports the exit and then serves status polls in
// threads-dead mode, waiting only for restart or detach.
func (s *Server) handleExitedState() (bool, error) {
	if s.exitSignal != 0 {
		s.logger.Info("debuggee killed by signal", slog.Int("signal", s.exitSignal))
	} else {
		s.logger.Info("debuggee exited", slog.Int("exit_code", s.exitCode))
	}
	s.notifyExit()

	for {
		req, err := s.processDebuggerRequests(reportThreadsDead)
		if err != nil {
			return false, err
		}
		switch req.Kind {
		case gdb.ReqDetach:
			s.dbg.ReplyDetach()
			return false, nil
		case gdb.ReqRestart:
			s.restartSession(req)
			return true, nil
		default:
			// Resume requests cannot run; all threads are dead.
			s.notifyExit()
		}
	}
}

// notifyExit reports how the debuggee finished, distinguishing a signal
// death from a normal exit.
func (s *Server) notifyExit() {
	if s.exitSignal != 0 {
		s.dbg.NotifyExitSignal(s.exitSignal)
		return
	}
	s.dbg.NotifyExitCode(s.exitCode)
}

// processDebuggerRequests dispatches requests until one arrives that the
// caller must act on (resume, detach, restart). A magic command may start a
// diversion in the middle; its terminating request is then handled as an
// ordinary request against the real timeline.
func (s *Server) processDebuggerRequests(state reportState) (gdb.Request, error) {
	for {
		req, err := s.nextRequest()
		if err != nil {
			return gdb.Request{}, err
		}

		for {
			if req.IsResume() || req.Kind == gdb.ReqDetach || req.Kind == gdb.ReqRestart {
				return req, nil
			}

			s.dispatchDebuggerRequest(s.currentSession(), req, state)
			if !s.pendingDiversion {
				break
			}
			s.pendingDiversion = false

			req, err = s.divert()
			if err != nil {
				return gdb.Request{}, err
			}
			if req.Kind == gdb.ReqNone {
				break
			}
		}
	}
}

// nextRequest receives one decoded request; connection failures terminate
// the serve loop.
func (s *Server) nextRequest() (gdb.Request, error) {
	req, err := s.dbg.RecvRequest()
	if err != nil {
		return gdb.Request{}, &rewinderrors.ConnectionError{Op: "recv", Cause: err}
	}
	s.logger.Log(context.Background(), log.LevelTrace, "request received",
		slog.String(log.RequestKey, req.Kind.String()))
	recordRequest(req.Kind)
	return req, nil
}

// currentSession selects the session requests are resolved against: the
// emergency live session when on that path, otherwise the timeline's
// current replay session.
func (s *Server) currentSession() engine.Session {
	if s.emergencySession != nil {
		return s.emergencySession
	}
	return s.timeline.CurrentSession()
}

// maybeNotifyStop reports a break status to the debugger if it carries
// anything reportable.
func (s *Server) maybeNotifyStop(bs engine.BreakStatus) {
	if !bs.Any() {
		return
	}

	signal := bs.Signal
	reason := "signal"
	switch {
	case bs.WatchAddr != 0:
		signal = sigTRAP
		reason = "watchpoint"
	case bs.BreakpointHit:
		signal = sigTRAP
		reason = "breakpoint"
	case bs.TaskExited:
		reason = "task_exit"
	}

	thread := gdb.AnyThread
	if bs.Task != nil {
		thread = s.threadIDOf(bs.Task)
		s.lastQueryTUID = bs.Task.TUID()
	}

	recordStop(reason)
	s.dbg.NotifyStop(thread, signal, bs.WatchAddr)
}

// notifyCurrentStop reports a stop at the current position without moving.
func (s *Server) notifyCurrentStop() {
	thread := gdb.AnyThread
	if task := s.findTask(s.currentSession(), s.lastContinueTUID); task != nil {
		thread = s.threadIDOf(task)
	}
	s.dbg.NotifyStop(thread, 0, 0)
}

// threadIDOf maps a task to its protocol thread ID.
func (s *Server) threadIDOf(task engine.Task) gdb.ThreadID {
	return gdb.ThreadID{PID: task.ThreadGroup().PID, TID: task.TUID().TID}
}

// findTask is a nil-safe task lookup.
func (s *Server) findTask(session engine.Session, uid engine.TaskUID) engine.Task {
	if uid.Zero() {
		return nil
	}
	return session.FindTask(uid)
}

// GetReg returns the value of one register, consulting the extended
// register state when the general-purpose file does not carry it. The
// returned value is explicitly marked undefined when the register has no
// meaningful value in the current execution mode.
func GetReg(regs engine.Registers, extra engine.ExtraRegisters, which gdb.Register) gdb.RegisterValue {
	if regs != nil {
		if v, ok := regs.Get(which); ok {
			return gdb.RegisterValue{Reg: which, Value: v, Defined: true}
		}
	}
	if extra != nil {
		if v, ok := extra.Get(which); ok {
			return gdb.RegisterValue{Reg: which, Value: v, Defined: true}
		}
	}
	return gdb.RegisterValue{Reg: which, Defined: false}
}
