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
	"log/slog"
	"net"
	"strconv"

	rewinderrors "github.com/tombee/rewind/pkg/errors"
	"github.com/tombee/rewind/pkg/gdb"
)

// ConnectionFlags configures how the debugger connection is established.
type ConnectionFlags struct {
	// Port is the TCP port to listen on; 0 lets the OS choose.
	Port int

	// Host is the address to bind. Defaults to loopback; the protocol
	// carries no authentication.
	Host string

	// DebuggerParamsWriter, when non-nil, receives one connection
	// parameters line once the listener is bound, for handing off to a
	// debugger launcher. The writer is not closed.
	DebuggerParamsWriter io.Writer
}

// awaitConnection binds the listener, publishes the connection parameters,
// and blocks for exactly one inbound connection, which it wraps with the
// protocol codec. The listener is closed after the first accept; there is
// no second client.
func (s *Server) awaitConnection(ctx context.Context, flags ConnectionFlags) (gdb.Connection, error) {
	host := flags.Host
	if host == "" {
		host = "127.0.0.1"
	}

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(flags.Port)))
	if err != nil {
		return nil, &rewinderrors.ConnectionError{Op: "listen", Cause: err}
	}
	defer listener.Close()

	addr := listener.Addr().(*net.TCPAddr)
	params := DebuggerParams{Host: host, Port: addr.Port}
	if flags.DebuggerParamsWriter != nil {
		if err := WriteDebuggerParams(flags.DebuggerParamsWriter, params); err != nil {
			return nil, rewinderrors.Wrap(err, "publishing debugger params")
		}
	}
	s.logger.Info("waiting for debugger connection",
		slog.String("host", host), slog.Int("port", addr.Port))

	// Close the listener when the context is cancelled so Accept
	// unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			listener.Close()
		case <-done:
		}
	}()

	raw, err := listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &rewinderrors.ConnectionError{Op: "accept", Cause: err}
	}

	conn, err := s.newConn(raw)
	if err != nil {
		raw.Close()
		return nil, &rewinderrors.ConnectionError{Op: "handshake", Cause: err}
	}
	return conn, nil
}
