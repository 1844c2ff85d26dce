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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/rewind/pkg/engine"
	"github.com/tombee/rewind/pkg/gdb"
)

func TestConditionTable_SetAndRemove(t *testing.T) {
	table := newConditionTable()

	w := gdb.WatchParams{Type: gdb.BreakSW, Addr: 0x1000, Condition: "event > 3"}
	require.NoError(t, table.set(w))

	_, ok := table.lookup(gdb.BreakSW, 0x1000)
	assert.True(t, ok)

	table.remove(w)
	_, ok = table.lookup(gdb.BreakSW, 0x1000)
	assert.False(t, ok)
}

func TestConditionTable_RejectsBadExpression(t *testing.T) {
	table := newConditionTable()

	err := table.set(gdb.WatchParams{Type: gdb.BreakSW, Addr: 0x1000, Condition: "pc >"})
	assert.Error(t, err)

	// Non-boolean expressions are rejected at compile time.
	err = table.set(gdb.WatchParams{Type: gdb.BreakSW, Addr: 0x1000, Condition: "pc + 1"})
	assert.Error(t, err)
}

func TestConditionalBreakpoint_TransparentUntilTrue(t *testing.T) {
	// A loop body: the same PC recurs at every even event. The condition
	// holds only past event 5, so the earlier hits re-execute silently.
	trace := makeTrace(12)
	for i, frame := range trace.Frames {
		frame.Tasks[0].PC = 0x1000 + 4*uint64(i%2)
	}

	conn := &fakeConn{requests: []gdb.Request{
		{Kind: gdb.ReqSetBreak, Watch: gdb.WatchParams{
			Type: gdb.BreakSW, Addr: 0x1000, Condition: "event > 5 && tid == 101"}},
		resumeReq(gdb.RunForward, false),
		detachReq(),
	}}

	s, timeline := newTestServer(t, trace, Target{}, conn)
	require.NoError(t, s.debugLoop(context.Background()))

	require.Len(t, conn.stops, 1)
	assert.Equal(t, sigTRAP, conn.stops[0].signal)
	assert.Equal(t, uint64(6), timeline.CurrentSession().CurrentEvent())
}

func TestConditionalBreakpoint_FalseConditionSkipsStop(t *testing.T) {
	addr := 0x1000 + 4*uint64(3)
	conn := &fakeConn{requests: []gdb.Request{
		{Kind: gdb.ReqSetBreak, Watch: gdb.WatchParams{
			Type: gdb.BreakSW, Addr: addr, Condition: "false"}},
		resumeReq(gdb.RunForward, false),
		detachReq(),
	}}

	s, _ := newTestServer(t, makeTrace(6), Target{}, conn)
	require.NoError(t, s.debugLoop(context.Background()))

	// The breakpoint never reports; the continue runs off the end of the
	// trace instead.
	assert.Empty(t, conn.stops)
	require.NotEmpty(t, conn.exitCodes)
	assert.Equal(t, 7, conn.exitCodes[0])
}

func TestConditionalHWBreakpoint_FalseConditionSkipsStop(t *testing.T) {
	addr := 0x1000 + 4*uint64(3)
	conn := &fakeConn{requests: []gdb.Request{
		{Kind: gdb.ReqSetBreak, Watch: gdb.WatchParams{
			Type: gdb.BreakHW, Addr: addr, Condition: "false"}},
		resumeReq(gdb.RunForward, false),
		detachReq(),
	}}

	s, _ := newTestServer(t, makeTrace(6), Target{}, conn)
	require.NoError(t, s.debugLoop(context.Background()))

	assert.Empty(t, conn.stops)
	require.NotEmpty(t, conn.exitCodes)
	assert.Equal(t, 7, conn.exitCodes[0])
}

func TestConditionalWatchpoint_FalseConditionSkipsStop(t *testing.T) {
	// The watched byte changes every frame, so without the condition the
	// first continue would stop immediately.
	conn := &fakeConn{requests: []gdb.Request{
		{Kind: gdb.ReqSetBreak, Watch: gdb.WatchParams{
			Type: gdb.WatchWrite, Addr: 0x2000, Size: 1, Condition: "false"}},
		resumeReq(gdb.RunForward, false),
		detachReq(),
	}}

	s, _ := newTestServer(t, makeTrace(6), Target{}, conn)
	require.NoError(t, s.debugLoop(context.Background()))

	assert.Empty(t, conn.stops)
	require.NotEmpty(t, conn.exitCodes)
	assert.Equal(t, 7, conn.exitCodes[0])
}

func TestConditionalWatchpoint_TransparentUntilTrue(t *testing.T) {
	conn := &fakeConn{requests: []gdb.Request{
		{Kind: gdb.ReqSetBreak, Watch: gdb.WatchParams{
			Type: gdb.WatchWrite, Addr: 0x2000, Size: 1, Condition: "event > 5"}},
		resumeReq(gdb.RunForward, false),
		detachReq(),
	}}

	s, timeline := newTestServer(t, makeTrace(10), Target{Event: 3}, conn)
	require.NoError(t, s.debugLoop(context.Background()))

	require.Len(t, conn.stops, 1)
	assert.Equal(t, uint64(0x2000), conn.stops[0].watchAddr)
	assert.Equal(t, sigTRAP, conn.stops[0].signal)
	assert.Equal(t, uint64(6), timeline.CurrentSession().CurrentEvent())
}

func TestPassesCondition_NoConditionAlwaysStops(t *testing.T) {
	conn := &fakeConn{}
	s, timeline := newTestServer(t, makeTrace(10), Target{Event: 4}, conn)

	task := timeline.CurrentSession().CurrentTask()
	bs := engine.BreakStatus{Task: task, BreakpointHit: true}
	assert.True(t, s.passesCondition(bs))
}
