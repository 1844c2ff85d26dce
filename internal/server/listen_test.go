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
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/rewind/internal/sim"
	"github.com/tombee/rewind/internal/wire"
	"github.com/tombee/rewind/pkg/gdb"
)

// TestServeReplay_EndToEnd runs the full path: TCP listener, development
// codec, replay to target, one debugger conversation, detach.
func TestServeReplay_EndToEnd(t *testing.T) {
	timeline, err := sim.NewTimeline(makeTrace(8))
	require.NoError(t, err)
	srv := New(timeline, Target{Event: 2}, wire.NewConnection, Options{})

	pr, pw := io.Pipe()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ServeReplay(context.Background(), ConnectionFlags{
			Host:                 "127.0.0.1",
			DebuggerParamsWriter: pw,
		})
	}()

	params, err := ReadDebuggerParams(pr)
	require.NoError(t, err)

	raw, err := net.Dial("tcp", net.JoinHostPort(params.Host, strconv.Itoa(params.Port)))
	require.NoError(t, err)
	client, err := wire.NewClient(raw)
	require.NoError(t, err)
	defer client.Close()

	// Continue off the end of the trace, expect the exit notification.
	require.NoError(t, client.Send(gdb.Request{Kind: gdb.ReqResume}))
	msg, err := client.Recv()
	require.NoError(t, err)
	assert.Equal(t, "exit", msg.Kind)

	// Detach ends the session.
	require.NoError(t, client.Send(gdb.Request{Kind: gdb.ReqDetach}))
	msg, err = client.Recv()
	require.NoError(t, err)
	assert.Equal(t, "detach", msg.Kind)

	select {
	case err := <-serveErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not finish after detach")
	}
}
