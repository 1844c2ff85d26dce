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
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/rewind/pkg/gdb"
)

func TestDispatch_ThreadQueries(t *testing.T) {
	conn := &fakeConn{}
	s, _ := newTestServer(t, makeTrace(10), Target{Event: 4}, conn)
	session := s.currentSession()

	s.dispatchDebuggerRequest(session, gdb.Request{Kind: gdb.ReqGetCurrentThread}, reportNormal)
	require.Len(t, conn.currents, 1)
	assert.Equal(t, testThread, conn.currents[0])

	s.dispatchDebuggerRequest(session, gdb.Request{Kind: gdb.ReqGetThreadList}, reportNormal)
	require.Len(t, conn.threadLists, 1)
	assert.Equal(t, []gdb.ThreadID{testThread}, conn.threadLists[0])

	s.dispatchDebuggerRequest(session,
		gdb.Request{Kind: gdb.ReqGetThreadExtraInfo, Target: testThread}, reportNormal)
	require.Len(t, conn.extraInfos, 1)
	assert.Equal(t, "main", conn.extraInfos[0])
}

func TestDispatch_UnknownThread(t *testing.T) {
	conn := &fakeConn{}
	s, _ := newTestServer(t, makeTrace(10), Target{Event: 4}, conn)
	session := s.currentSession()

	ghost := gdb.ThreadID{PID: 100, TID: 555}
	s.dispatchDebuggerRequest(session,
		gdb.Request{Kind: gdb.ReqGetThreadExtraInfo, Target: ghost}, reportNormal)
	s.dispatchDebuggerRequest(session,
		gdb.Request{Kind: gdb.ReqGetRegs, Target: ghost}, reportNormal)
	s.dispatchDebuggerRequest(session,
		gdb.Request{Kind: gdb.ReqGetIsThreadAlive, Target: ghost}, reportNormal)

	// Extra-info and regs report no-such-thread; liveness just answers
	// false.
	assert.Len(t, conn.noSuchThread, 2)
	assert.Equal(t, []bool{false}, conn.alive)
}

func TestDispatch_SelectThread(t *testing.T) {
	conn := &fakeConn{}
	s, _ := newTestServer(t, makeTrace(10), Target{Event: 4}, conn)
	session := s.currentSession()

	// Concrete selection moves the rolling default.
	s.dispatchDebuggerRequest(session,
		gdb.Request{Kind: gdb.ReqSetQueryThread, Target: testThread}, reportNormal)
	// Wildcard selection is acknowledged but changes nothing.
	s.dispatchDebuggerRequest(session,
		gdb.Request{Kind: gdb.ReqSetContinueThread, Target: gdb.AllThreads}, reportNormal)
	// Unknown thread is refused.
	s.dispatchDebuggerRequest(session,
		gdb.Request{Kind: gdb.ReqSetContinueThread, Target: gdb.ThreadID{PID: 1, TID: 1}}, reportNormal)

	assert.Equal(t, []bool{true, true, false}, conn.selections)
}

func TestDispatch_GetRegAndMem(t *testing.T) {
	conn := &fakeConn{}
	s, _ := newTestServer(t, makeTrace(10), Target{Event: 4}, conn)
	session := s.currentSession()

	s.dispatchDebuggerRequest(session, gdb.Request{
		Kind: gdb.ReqGetReg, Target: testThread,
		Reg: gdb.RegisterValue{Reg: 1},
	}, reportNormal)
	require.Len(t, conn.regReplies, 1)
	require.True(t, conn.regReplies[0].Defined)
	assert.Equal(t, uint64(4), binary.LittleEndian.Uint64(conn.regReplies[0].Value))

	// An unknown register is reported explicitly undefined, not an error.
	s.dispatchDebuggerRequest(session, gdb.Request{
		Kind: gdb.ReqGetReg, Target: testThread,
		Reg: gdb.RegisterValue{Reg: 77},
	}, reportNormal)
	require.Len(t, conn.regReplies, 2)
	assert.False(t, conn.regReplies[1].Defined)

	s.dispatchDebuggerRequest(session, memRead(0x2000, 1), reportNormal)
	require.Len(t, conn.memReplies, 1)
	assert.Equal(t, []byte{4}, conn.memReplies[0])
}

func TestDispatch_BreakpointLifecycle(t *testing.T) {
	conn := &fakeConn{}
	s, _ := newTestServer(t, makeTrace(10), Target{Event: 4}, conn)
	session := s.currentSession()

	set := gdb.Request{Kind: gdb.ReqSetBreak,
		Watch: gdb.WatchParams{Type: gdb.BreakSW, Addr: 0x1018}}
	clear := gdb.Request{Kind: gdb.ReqRemoveBreak,
		Watch: gdb.WatchParams{Type: gdb.BreakSW, Addr: 0x1018}}

	s.dispatchDebuggerRequest(session, set, reportNormal)
	s.dispatchDebuggerRequest(session, clear, reportNormal)
	assert.Equal(t, []bool{true, true}, conn.watchOKs)

	// A malformed condition is rejected before the breakpoint is armed.
	bad := set
	bad.Watch.Condition = "pc >"
	s.dispatchDebuggerRequest(session, bad, reportNormal)
	assert.Equal(t, []bool{true, true, false}, conn.watchOKs)
}
