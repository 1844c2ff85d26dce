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
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"

	rewinderrors "github.com/tombee/rewind/pkg/errors"
)

// DebuggerParams are the connection parameters handed to a debugger
// launcher. They cross a pipe as a single "host:port\n" line, so a launcher
// in another process (or a shell script) can consume them.
type DebuggerParams struct {
	Host string
	Port int
}

// WriteDebuggerParams writes one connection parameters line.
func WriteDebuggerParams(w io.Writer, p DebuggerParams) error {
	_, err := fmt.Fprintf(w, "%s\n", net.JoinHostPort(p.Host, strconv.Itoa(p.Port)))
	return err
}

// ReadDebuggerParams reads one connection parameters line.
func ReadDebuggerParams(r io.Reader) (DebuggerParams, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil {
		return DebuggerParams{}, rewinderrors.Wrap(err, "reading debugger params")
	}

	host, portStr, err := net.SplitHostPort(strings.TrimSpace(line))
	if err != nil {
		return DebuggerParams{}, rewinderrors.Wrap(err, "parsing debugger params")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return DebuggerParams{}, rewinderrors.Wrap(err, "parsing debugger port")
	}
	return DebuggerParams{Host: host, Port: port}, nil
}

// LaunchOptions configures LaunchGDB.
type LaunchOptions struct {
	// Path is the debugger client binary.
	Path string

	// CommandFile is an extra command file sourced after the generated
	// init script. Empty means none.
	CommandFile string
}

// LaunchGDB starts the external debugger client, pointed at the bridge. The
// generated init script is written to a temporary file and sourced before
// the connection is made, so the custom commands are defined by the time
// the user gets a prompt. The call blocks until the client exits.
func LaunchGDB(ctx context.Context, params DebuggerParams, opts LaunchOptions) error {
	path := opts.Path
	if path == "" {
		path = "gdb"
	}

	script, err := os.CreateTemp("", "rewind-init-*.gdb")
	if err != nil {
		return rewinderrors.Wrap(err, "writing init script")
	}
	defer os.Remove(script.Name())
	if _, err := script.WriteString(InitScript()); err != nil {
		script.Close()
		return rewinderrors.Wrap(err, "writing init script")
	}
	if err := script.Close(); err != nil {
		return rewinderrors.Wrap(err, "writing init script")
	}

	args := []string{"-x", script.Name()}
	if opts.CommandFile != "" {
		args = append(args, "-x", opts.CommandFile)
	}
	args = append(args, "-ex",
		fmt.Sprintf("target extended-remote %s", net.JoinHostPort(params.Host, strconv.Itoa(params.Port))))

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return rewinderrors.Wrapf(err, "running %s", path)
	}
	return nil
}
