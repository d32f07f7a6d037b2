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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"davwatch/internal/watcher"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single traversal pass and exit",
	Long: `Runs one traversal pass, delivers notifications for everything new or
updated and exits. Exits non-zero if the pass had to stop early.`,
	Args: cobra.NoArgs,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(onceCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	d, cleanup, err := openDaemon()
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := d.RunOnce(cmd.Context())
	if report != nil {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Run %s finished in %s\n", report.ID, report.Duration.Round(time.Millisecond))
		fmt.Fprintf(out, "  new folders: %d\n", report.Count(watcher.EventNewContainer))
		fmt.Fprintf(out, "  new files:   %d\n", report.Count(watcher.EventNewLeaf))
		fmt.Fprintf(out, "  updated:     %d\n", report.Count(watcher.EventUpdatedLeaf))
		fmt.Fprintf(out, "  unreachable: %d\n", report.Count(watcher.EventUnreachable))
		fmt.Fprintf(out, "  delivered:   %d, failed: %d\n", report.Delivered, report.Failed)
	}
	return err
}
