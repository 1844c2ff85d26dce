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
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/rewind/pkg/engine"
	"github.com/tombee/rewind/pkg/gdb"
)

func TestLazyReverse_ServedFromMarkCache(t *testing.T) {
	conn := &fakeConn{requests: []gdb.Request{
		// Queued behind the initial reverse step: a register read and
		// the request that ends the fast path.
		{Kind: gdb.ReqGetRegs},
		detachReq(),
	}}

	s, timeline := newTestServer(t, makeTrace(10), Target{Event: 4}, conn)

	// Visit events 5 and 6 through the replay so their marks are cached.
	_, err := timeline.Replay(s.lastContinueTUID, gdb.RunForward, engine.RunSinglestep, 0)
	require.NoError(t, err)
	_, err = timeline.Replay(s.lastContinueTUID, gdb.RunForward, engine.RunSinglestep, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(6), timeline.CurrentSession().CurrentEvent())

	req := resumeReq(gdb.RunBackward, true)
	require.NoError(t, s.tryLazyReverseSinglesteps(&req))

	// The fast path consumed the reverse step and the register read,
	// returning the detach for the caller.
	assert.Equal(t, gdb.ReqDetach, req.Kind)
	assert.Equal(t, uint64(5), timeline.CurrentSession().CurrentEvent())

	require.Len(t, conn.stops, 1)
	assert.Equal(t, sigTRAP, conn.stops[0].signal)

	// The register values came from the mark's cached state at event 5.
	require.Len(t, conn.regsReplies, 1)
	var reg1 []byte
	for _, v := range conn.regsReplies[0] {
		if v.Reg == 1 {
			reg1 = v.Value
		}
	}
	require.NotNil(t, reg1)
	assert.Equal(t, uint64(5), binary.LittleEndian.Uint64(reg1))
}

func TestLazyReverse_NoCachedMarkFallsThrough(t *testing.T) {
	conn := &fakeConn{}
	s, timeline := newTestServer(t, makeTrace(10), Target{Event: 4}, conn)

	// Nothing before event 4 was visited by the replay, so the mark
	// database has no preceding entry.
	req := resumeReq(gdb.RunBackward, true)
	require.NoError(t, s.tryLazyReverseSinglesteps(&req))

	// Unchanged request, unchanged position: genuine reverse execution
	// must take over.
	assert.True(t, req.IsReverseSinglestep())
	assert.Equal(t, uint64(4), timeline.CurrentSession().CurrentEvent())
	assert.Empty(t, conn.stops)
}

func TestDebugLoop_ReverseStepsMixedPaths(t *testing.T) {
	conn := &fakeConn{requests: []gdb.Request{
		resumeReq(gdb.RunForward, true),  // event 5, mark cached
		resumeReq(gdb.RunForward, true),  // event 6, mark cached
		resumeReq(gdb.RunBackward, true), // lazy: seek to 5
		resumeReq(gdb.RunBackward, true), // genuine: replay back to 4
		detachReq(),
	}}

	s, timeline := newTestServer(t, makeTrace(10), Target{Event: 4}, conn)
	require.NoError(t, s.debugLoop(context.Background()))

	assert.Equal(t, uint64(4), timeline.CurrentSession().CurrentEvent())
	require.Len(t, conn.stops, 4)
	for _, stop := range conn.stops {
		assert.Equal(t, sigTRAP, stop.signal)
		assert.Equal(t, testThread, stop.thread)
	}
}
