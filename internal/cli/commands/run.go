// Copyright 2026 Davwatch Authors
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

package commands

import (
	"github.com/spf13/cobra"

	"davwatch/internal/daemon"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the WebDAV tree until interrupted",
	Long: `Runs a traversal pass, sleeps for the configured interval and repeats
until SIGINT or SIGTERM is received. Only one instance may use a given state
database at a time.

Edits to log_level, ignore, max_depth and max_attachment_bytes in the settings
file are picked up without a restart.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	d, cleanup, err := openDaemon()
	if err != nil {
		return err
	}
	defer cleanup()
	d.SettingsFile = daemon.SettingsPath()
	return d.Run(cmd.Context())
}
