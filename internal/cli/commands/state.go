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
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"davwatch/internal/storage"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show what has already been announced",
	Long: `Prints the number of recorded folders and files in the state database.

Examples:
  # Show counts
  davwatch state

  # List recorded folders
  davwatch state --folders

  # List recorded files with their change tokens
  davwatch state --files`,
	Args: cobra.NoArgs,
	RunE: runState,
}

var stateFolders bool
var stateFiles bool

func init() {
	stateCmd.Flags().BoolVar(&stateFolders, "folders", false, "List recorded folders")
	stateCmd.Flags().BoolVar(&stateFiles, "files", false, "List recorded files")
	rootCmd.AddCommand(stateCmd)
}

func runState(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := storage.Open(settings.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	if stateFolders {
		folders, err := store.ListFolders(ctx)
		if err != nil {
			return err
		}
		for _, f := range folders {
			fmt.Fprintln(out, f.Path)
		}
	}
	if stateFiles {
		files, err := store.ListLeaves(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PATH\tLAST MODIFIED\tSIZE")
		for _, f := range files {
			fmt.Fprintf(w, "%s\t%s\t%s\n", f.Path, f.LastModified, f.Size)
		}
		w.Flush()
	}
	if stateFolders || stateFiles {
		return nil
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Database: %s\n", store.Path())
	fmt.Fprintf(out, "Folders:  %d\n", counts.Folders)
	fmt.Fprintf(out, "Files:    %d\n", counts.Files)
	return nil
}
