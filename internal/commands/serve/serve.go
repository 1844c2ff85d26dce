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

// Package serve implements the serve command: replay a trace to the attach
// target and bridge one debugger connection onto it.
package serve

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tombee/rewind/internal/commands/shared"
	"github.com/tombee/rewind/internal/config"
	"github.com/tombee/rewind/internal/log"
	"github.com/tombee/rewind/internal/server"
	"github.com/tombee/rewind/internal/sim"
	"github.com/tombee/rewind/internal/tracing"
	"github.com/tombee/rewind/internal/wire"
)

type serveOptions struct {
	port        int
	host        string
	pid         int
	event       uint64
	requireExec bool
	launch      bool
	metricsAddr string
	spanOutput  string
}

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve <trace>",
		Short: "Replay a trace and serve a debugger connection over it",
		Long: `Serve replays the given trace file until the attach target is reached,
then listens for one debugger connection and bridges it onto the replay.
The session ends when the debugger detaches.

Interrupting with Ctrl-C during the initial replay attaches the debugger
wherever the replay happens to be instead of aborting.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.port, "port", 0, "TCP port to listen on (0 = OS-assigned)")
	cmd.Flags().StringVar(&opts.host, "host", "", "Address to bind (default 127.0.0.1)")
	cmd.Flags().IntVar(&opts.pid, "pid", 0, "Process to debug (0 = first process in the trace)")
	cmd.Flags().Uint64Var(&opts.event, "event", 0, "Minimum trace event before attaching")
	cmd.Flags().BoolVar(&opts.requireExec, "require-exec", false, "Wait for the target process to exec before attaching")
	cmd.Flags().BoolVar(&opts.launch, "launch-gdb", false, "Launch the debugger client once listening")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9120)")
	cmd.Flags().StringVar(&opts.spanOutput, "span-output", "", "Write session trace spans to this file")

	return cmd
}

func runServe(ctx context.Context, tracePath string, opts *serveOptions) error {
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return shared.NewConfigError("loading configuration", err)
	}
	applyFlags(cfg, opts)

	logCfg := log.FromEnv()
	if cfg.Log.Level != "" {
		logCfg.Level = cfg.Log.Level
	}
	if shared.GetVerbose() {
		logCfg.Level = "debug"
	}
	logger := log.New(logCfg)

	var spanWriter io.Writer
	if opts.spanOutput != "" {
		f, err := os.Create(opts.spanOutput)
		if err != nil {
			return shared.NewConfigError("opening span output", err)
		}
		defer f.Close()
		spanWriter = f
	}
	version, _, _ := shared.GetVersion()
	provider, err := tracing.New("rewind", version, spanWriter)
	if err != nil {
		return shared.NewServeError("initializing tracing", err)
	}
	defer provider.Shutdown(context.Background())

	if opts.metricsAddr != "" {
		go serveMetrics(opts.metricsAddr)
	}

	trace, err := sim.LoadTrace(tracePath)
	if err != nil {
		return shared.NewInvalidTraceError("loading trace", err)
	}
	timeline, err := sim.NewTimeline(trace)
	if err != nil {
		return shared.NewInvalidTraceError("building timeline", err)
	}

	target := server.Target{
		PID:         cfg.Target.PID,
		RequireExec: cfg.Target.RequireExec,
		Event:       cfg.Target.Event,
	}
	srv := server.New(timeline, target, wire.NewConnection, server.Options{Logger: logger})

	// SIGINT during replay-to-target means "attach here", not "quit".
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			srv.InterruptReplayToTarget()
		}
	}()

	flags := server.ConnectionFlags{
		Port: cfg.Listen.Port,
		Host: cfg.Listen.Host,
	}

	var launchDone chan error
	if cfg.Debugger.AutoLaunch {
		pr, pw := io.Pipe()
		flags.DebuggerParamsWriter = pw
		launchDone = make(chan error, 1)
		go func() {
			params, err := server.ReadDebuggerParams(pr)
			if err != nil {
				launchDone <- err
				return
			}
			launchDone <- server.LaunchGDB(ctx, params, server.LaunchOptions{
				Path:        cfg.Debugger.Path,
				CommandFile: cfg.Debugger.CommandFile,
			})
		}()
	} else if !shared.GetQuiet() {
		fmt.Fprintln(os.Stderr, shared.RenderLabel("waiting for a debugger connection"))
	}

	if err := srv.ServeReplay(ctx, flags); err != nil {
		return shared.NewServeError("debug session failed", err)
	}

	if launchDone != nil {
		if err := <-launchDone; err != nil {
			return shared.NewServeError("debugger client", err)
		}
	}
	if !shared.GetQuiet() {
		fmt.Fprintln(os.Stderr, shared.RenderOK("session finished"))
	}
	return nil
}

// applyFlags layers explicit command flags over the loaded config.
func applyFlags(cfg *config.Config, opts *serveOptions) {
	if opts.port != 0 {
		cfg.Listen.Port = opts.port
	}
	if opts.host != "" {
		cfg.Listen.Host = opts.host
	}
	if opts.pid != 0 {
		cfg.Target.PID = opts.pid
	}
	if opts.event != 0 {
		cfg.Target.Event = opts.event
	}
	if opts.requireExec {
		cfg.Target.RequireExec = true
	}
	if opts.launch {
		cfg.Debugger.AutoLaunch = true
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	//nolint:errcheck // best-effort sidecar listener
	http.ListenAndServe(addr, mux)
}
