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

package gdb

import "io"

// Connection is one established debugger connection. The bridge owns
// exactly one Connection for its lifetime; there is no reconnection and no
// multiplexing.
//
// RecvRequest blocks without timeout until the next decoded request
// arrives; a connection-level failure (socket error, unexpected disconnect)
// is returned from RecvRequest and terminates the serve loop.
//
// Reply methods respond to the request most recently received. They do not
// return errors: a broken connection surfaces on the next RecvRequest,
// which is the only place the serve loop can act on it.
type Connection interface {
	// RecvRequest blocks until the client sends the next request.
	RecvRequest() (Request, error)

	// Thread queries.
	ReplyGetCurrentThread(thread ThreadID)
	ReplyGetThreadList(threads []ThreadID)
	ReplyGetIsThreadAlive(alive bool)
	ReplyGetThreadExtraInfo(info string)
	ReplySelectThread(ok bool)

	// Register access.
	ReplyGetReg(value RegisterValue)
	ReplyGetRegs(values []RegisterValue)
	ReplySetReg(ok bool)

	// Memory access. A nil data slice reports failure.
	ReplyGetMem(data []byte)
	ReplySetMem(ok bool)

	// Breakpoints and watchpoints.
	ReplyWatchpointRequest(ok bool)

	// Session control.
	ReplyDetach()
	ReplyRestartFailed()

	// NotifyNoSuchThread reports that the thread a request named does not
	// exist. Never fatal; the client recovers by re-querying threads.
	NotifyNoSuchThread(req Request)

	// Async stop notifications.
	NotifyStop(thread ThreadID, signal int, watchAddr uint64)
	NotifyExitCode(code int)
	NotifyExitSignal(signal int)

	io.Closer
}

// ConnectionFactory wraps an accepted transport stream with a protocol
// codec, producing a Connection. The bridge is codec-agnostic; the factory
// is supplied by whoever owns the wire format.
type ConnectionFactory func(rw io.ReadWriteCloser) (Connection, error)
