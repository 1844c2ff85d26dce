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

// Package cli assembles the rewind command tree.
package cli

import (
	"github.com/spf13/cobra"
	"github.com/tombee/rewind/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for rewind
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewind",
		Short: "rewind - debugger bridge for recorded executions",
		Long: `Rewind serves the GDB remote protocol over a recorded execution,
so a stock debugger can step a program forward and backward through a
deterministic replay, set checkpoints on the timeline, and evaluate
expressions in disposable forks that never disturb the recording.

Run 'rewind serve <trace>' to replay a trace and wait for a debugger.
Run 'rewind init-script' to print the GDB command file it integrates with.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	// Get flag pointers from shared package
	verbose, quiet, json, config := shared.RegisterFlagPointers()

	// Add global flags
	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/rewind/config.yaml)")

	return cmd
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
