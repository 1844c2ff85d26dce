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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/rewind/pkg/gdb"
)

func memWrite(addr uint64, data []byte) gdb.Request {
	return gdb.Request{Kind: gdb.ReqSetMem, Target: testThread,
		Mem: gdb.MemParams{Addr: addr, Len: len(data), Data: data}}
}

func memRead(addr uint64, n int) gdb.Request {
	return gdb.Request{Kind: gdb.ReqGetMem, Target: testThread,
		Mem: gdb.MemParams{Addr: addr, Len: n}}
}

func doorbellReq(op, arg uint32) gdb.Request {
	p := doorbell(op, arg)
	return gdb.Request{Kind: gdb.ReqSetMem, Target: testThread, Mem: p}
}

func TestDiversion_IsolatedFromReplay(t *testing.T) {
	conn := &fakeConn{requests: []gdb.Request{
		doorbellReq(magicOpDiversionBegin, 0),
		memWrite(0x3000, []byte{0xAA}),      // mutate the fork
		memRead(0x3000, 1),                  // observe the mutation
		resumeReq(gdb.RunForward, true),     // execute inside the fork
		doorbellReq(magicOpDiversionEnd, 0), // discard the fork
		memWrite(0x3000, []byte{0xBB}),      // replay state is immutable
		memRead(0x3000, 1),                  // mutation is gone
		detachReq(),
	}}

	s, timeline := newTestServer(t, makeTrace(10), Target{Event: 4}, conn)

	req, err := s.processDebuggerRequests(reportNormal)
	require.NoError(t, err)
	assert.Equal(t, gdb.ReqDetach, req.Kind)

	// begin doorbell, fork write, end doorbell accepted; replay write
	// refused.
	assert.Equal(t, []bool{true, true, true, false}, conn.setMemOKs)

	require.Len(t, conn.memReplies, 2)
	assert.Equal(t, []byte{0xAA}, conn.memReplies[0])
	assert.Equal(t, []byte{0x00}, conn.memReplies[1])

	// One stop for the step inside the fork, one synthetic stop closing
	// the diversion.
	assert.Len(t, conn.stops, 2)

	// The replay never moved.
	assert.Equal(t, uint64(4), timeline.CurrentSession().CurrentEvent())
	assert.Zero(t, s.diversionRefcount)
}

func TestDiversion_ReverseResumeTerminates(t *testing.T) {
	conn := &fakeConn{requests: []gdb.Request{
		doorbellReq(magicOpDiversionBegin, 0),
		resumeReq(gdb.RunBackward, true),
		detachReq(),
	}}

	s, _ := newTestServer(t, makeTrace(10), Target{Event: 4}, conn)

	// The reverse resume ends the diversion and is handed back up to run
	// against the timeline.
	req, err := s.processDebuggerRequests(reportNormal)
	require.NoError(t, err)
	assert.True(t, req.IsReverseSinglestep())
	assert.Zero(t, s.diversionRefcount)
}

func TestDiversion_RegisterWritesAllowedInFork(t *testing.T) {
	setReg := gdb.Request{Kind: gdb.ReqSetReg, Target: testThread,
		Reg: gdb.RegisterValue{Reg: 1, Value: []byte{9, 0, 0, 0, 0, 0, 0, 0}, Defined: true}}

	conn := &fakeConn{requests: []gdb.Request{
		setReg, // refused against the replay
		doorbellReq(magicOpDiversionBegin, 0),
		setReg, // honored inside the fork
		doorbellReq(magicOpDiversionEnd, 0),
		detachReq(),
	}}

	s, _ := newTestServer(t, makeTrace(10), Target{Event: 4}, conn)

	req, err := s.processDebuggerRequests(reportNormal)
	require.NoError(t, err)
	assert.Equal(t, gdb.ReqDetach, req.Kind)
	assert.Equal(t, []bool{false, true}, conn.setRegOKs)
}
