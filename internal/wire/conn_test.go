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

package wire

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/rewind/pkg/gdb"
)

// pipePair wires a server Conn and a Client together over an in-memory
// connection.
func pipePair(t *testing.T) (gdb.Connection, *Client) {
	t.Helper()
	serverEnd, clientEnd := net.Pipe()

	connCh := make(chan gdb.Connection, 1)
	errCh := make(chan error, 1)
	go func() {
		// NewConnection blocks writing the banner until the client
		// reads it.
		conn, err := NewConnection(serverEnd)
		if err != nil {
			errCh <- err
			return
		}
		connCh <- conn
	}()

	client, err := NewClient(clientEnd)
	require.NoError(t, err)

	select {
	case err := <-errCh:
		t.Fatalf("server handshake failed: %v", err)
		return nil, nil
	case conn := <-connCh:
		t.Cleanup(func() {
			conn.Close()
			client.Close()
		})
		return conn, client
	}
}

func TestRequestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		req  gdb.Request
	}{
		{"get current thread", gdb.Request{Kind: gdb.ReqGetCurrentThread}},
		{"get mem", gdb.Request{
			Kind:   gdb.ReqGetMem,
			Target: gdb.ThreadID{PID: 10, TID: 11},
			Mem:    gdb.MemParams{Addr: 0x2000, Len: 16},
		}},
		{"set break with condition", gdb.Request{
			Kind:  gdb.ReqSetBreak,
			Watch: gdb.WatchParams{Type: gdb.BreakSW, Addr: 0x1000, Size: 1, Condition: "event > 3"},
		}},
		{"reverse singlestep", gdb.Request{
			Kind:   gdb.ReqResume,
			Resume: gdb.ResumeParams{Direction: gdb.RunBackward, Step: true},
		}},
		{"restart from checkpoint", gdb.Request{
			Kind:    gdb.ReqRestart,
			Restart: gdb.RestartParams{FromCheckpoint: true, ID: 5},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, client := pipePair(t)

			done := make(chan gdb.Request, 1)
			go func() {
				got, err := conn.RecvRequest()
				if err != nil {
					close(done)
					return
				}
				done <- got
			}()

			require.NoError(t, client.Send(tt.req))
			got, ok := <-done
			require.True(t, ok)
			assert.Equal(t, tt.req, got)
		})
	}
}

func TestStopNotification(t *testing.T) {
	conn, client := pipePair(t)

	go conn.NotifyStop(gdb.ThreadID{PID: 10, TID: 11}, 5, 0x2000)

	msg, err := client.Recv()
	require.NoError(t, err)
	assert.Equal(t, MessageTypeNotify, msg.Type)
	assert.Equal(t, "stop", msg.Kind)

	var stop stopBody
	require.NoError(t, json.Unmarshal(msg.Body, &stop))
	assert.Equal(t, 11, stop.Thread.TID)
	assert.Equal(t, 5, stop.Signal)
	assert.Equal(t, uint64(0x2000), stop.WatchAddr)
}

func TestMemReply_NilMeansFailure(t *testing.T) {
	conn, client := pipePair(t)

	go conn.ReplyGetMem(nil)

	msg, err := client.Recv()
	require.NoError(t, err)

	var mem memBody
	require.NoError(t, json.Unmarshal(msg.Body, &mem))
	assert.False(t, mem.OK)
}

func TestClient_RejectsBadBanner(t *testing.T) {
	serverEnd, clientEnd := net.Pipe()
	defer serverEnd.Close()
	defer clientEnd.Close()

	go func() {
		//nolint:errcheck
		serverEnd.Write([]byte(`{"type":"banner","version":"9.9"}` + "\n"))
	}()

	_, err := NewClient(clientEnd)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestConn_RejectsOversizedRegisterValue(t *testing.T) {
	conn, client := pipePair(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.RecvRequest()
		errCh <- err
	}()

	require.NoError(t, client.Send(gdb.Request{
		Kind: gdb.ReqSetReg,
		Reg:  gdb.RegisterValue{Reg: 1, Value: make([]byte, gdb.MaxRegisterSize+1), Defined: true},
	}))
	assert.ErrorIs(t, <-errCh, ErrInvalidMessage)
}

func TestConn_UnknownRequestKind(t *testing.T) {
	conn, client := pipePair(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.RecvRequest()
		errCh <- err
	}()

	_, err := client.rw.Write([]byte(`{"type":"request","kind":"bogus"}` + "\n"))
	require.NoError(t, err)
	assert.ErrorIs(t, <-errCh, ErrInvalidMessage)
}
