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
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"davwatch/internal/daemon"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	configDir string
	logLevel  string
)

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

// getVersionString returns the version string with build info
func getVersionString() string {
	buildDate := formatBuildDate(date)
	if strings.HasSuffix(version, "-dev") {
		// Dev build: include epoch and commit for troubleshooting
		return fmt.Sprintf("%s (%s, epoch: %s, commit: %s)", version, buildDate, date, commit)
	}
	return fmt.Sprintf("%s (%s)", version, buildDate)
}

// formatBuildDate converts epoch timestamp to readable date
func formatBuildDate(epoch string) string {
	ts, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return epoch
	}
	return time.Unix(ts, 0).Format("2006-01-02")
}

var rootCmd = &cobra.Command{
	Use:   "davwatch",
	Short: "Watch a WebDAV tree and announce changes to a webhook",
	Long: `Watch a WebDAV tree and announce changes to a webhook.

davwatch polls a WebDAV directory tree, remembers which folders and files it
has already announced, and posts a message for every new folder, new file
(with the file attached) and updated file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if configDir != "" {
			if err := os.Setenv("DAVWATCH_CONFIG_DIR", configDir); err != nil {
				return err
			}
		}
		if err := daemon.InitConfigDir(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("davwatch version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Configuration directory (default: ~/.davwatch)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "logging", "", "Log level: trace, debug, info, warn, none (overrides settings)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadSettings returns the effective settings with the --logging override
// applied.
func loadSettings() (*daemon.Settings, error) {
	settings, err := daemon.LoadSettings()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		settings.LogLevel = logLevel
	}
	return settings, nil
}

// openDaemon loads settings, configures logging and opens the daemon.
// The returned cleanup closes everything opened.
func openDaemon() (*daemon.Daemon, func(), error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, nil, err
	}
	logCloser, err := daemon.SetupLogging(settings.LogLevel, settings.LogFile)
	if err != nil {
		return nil, nil, err
	}
	d := daemon.New(settings)
	if err := d.Open(); err != nil {
		logCloser.Close()
		return nil, nil, err
	}
	return d, func() {
		d.Close()
		logCloser.Close()
	}, nil
}
