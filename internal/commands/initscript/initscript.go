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

// Package initscript implements the init-script command.
package initscript

import (
	"github.com/spf13/cobra"

	"github.com/tombee/rewind/internal/server"
)

// NewInitScriptCommand creates the init-script command
func NewInitScriptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init-script",
		Short: "Print the GDB command file for rewind integration",
		Long: `Print the GDB command file defining rewind's custom commands
(checkpoint, delete-checkpoint, rewind-event, diversion-begin,
diversion-end). Source it into GDB with -x, or let 'serve --launch-gdb'
pass it automatically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Print(server.InitScript())
			return nil
		},
	}
}
