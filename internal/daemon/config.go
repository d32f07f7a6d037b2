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

package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"davwatch/internal/artifacts"
	"davwatch/internal/common"
)

// Defaults applied to zero-value settings.
const (
	DefaultInterval           = 900 // seconds
	DefaultRequestTimeout     = 30  // seconds
	DefaultMaxDepth           = 64
	DefaultMaxAttachmentBytes = 8 << 20
	DefaultLogLevel           = "info"
)

// getConfigDir returns the config directory path.
// Uses DAVWATCH_CONFIG_DIR env var if set, otherwise defaults to ~/.davwatch.
// This is computed dynamically to support test isolation.
func getConfigDir() string {
	if dir := os.Getenv("DAVWATCH_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".davwatch")
}

// ConfigDir returns the configuration directory path
func ConfigDir() string {
	return getConfigDir()
}

// SettingsPath returns the settings file path
func SettingsPath() string {
	return filepath.Join(getConfigDir(), "settings.yaml")
}

// DefaultDatabasePath returns the state database path used when the
// settings don't name one.
func DefaultDatabasePath() string {
	return filepath.Join(getConfigDir(), "files.db")
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	return os.MkdirAll(getConfigDir(), 0700)
}

// InitConfigDir creates the config directory and writes the default settings
// file if none exists.
func InitConfigDir() error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	settingsPath := SettingsPath()
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, artifacts.GlobalSettings, 0600); err != nil {
			return fmt.Errorf("failed to create default settings: %w", err)
		}
	}
	return nil
}

// WebDAVSettings configures the remote tree.
type WebDAVSettings struct {
	URL      string `yaml:"url"`
	Login    string `yaml:"login"`
	Password string `yaml:"password"`
	Timeout  int    `yaml:"timeout"` // seconds
}

// WebhookSettings configures the notification endpoint.
type WebhookSettings struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Timeout  int    `yaml:"timeout"` // seconds
}

// Settings is the full davwatch configuration.
type Settings struct {
	WebDAV             WebDAVSettings  `yaml:"webdav"`
	Webhook            WebhookSettings `yaml:"webhook"`
	Root               string          `yaml:"root"`
	Interval           int             `yaml:"interval"` // seconds between polls
	Database           string          `yaml:"database"`
	LogLevel           string          `yaml:"log_level"` // trace, debug, info, warn, none
	LogFile            string          `yaml:"log_file"`
	MaxDepth           int             `yaml:"max_depth"`
	MaxAttachmentBytes int64           `yaml:"max_attachment_bytes"`
	Ignore             []string        `yaml:"ignore"`
}

// ApplyDefaults fills zero-value fields with their defaults.
func (s *Settings) ApplyDefaults() {
	if s.Interval <= 0 {
		s.Interval = DefaultInterval
	}
	if s.WebDAV.Timeout <= 0 {
		s.WebDAV.Timeout = DefaultRequestTimeout
	}
	if s.Webhook.Timeout <= 0 {
		s.Webhook.Timeout = DefaultRequestTimeout
	}
	if s.Database == "" {
		s.Database = DefaultDatabasePath()
	}
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
	if s.MaxDepth <= 0 {
		s.MaxDepth = DefaultMaxDepth
	}
	if s.MaxAttachmentBytes <= 0 {
		s.MaxAttachmentBytes = DefaultMaxAttachmentBytes
	}
	s.Root = common.NormalizePath(s.Root)
}

// ApplyEnv overrides settings from environment variables. The variable names
// follow the deployment environment the watcher was first run in.
func (s *Settings) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&s.WebDAV.URL, "WEBDAV_URL")
	set(&s.WebDAV.Login, "WEBDAV_LOGIN")
	set(&s.WebDAV.Password, "WEBDAV_PASSWORD")
	set(&s.Webhook.URL, "DISCORD_WEBHOOK")
	set(&s.Root, "COURSEFOLDERS_PATH")
	set(&s.Database, "DAVWATCH_DATABASE")
	set(&s.LogLevel, "DAVWATCH_LOG_LEVEL")
	if v := getenv("DAVWATCH_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.Interval = n
		}
	}
}

// Validate reports missing required settings.
func (s *Settings) Validate() error {
	var missing []string
	if s.WebDAV.URL == "" {
		missing = append(missing, "webdav.url (WEBDAV_URL)")
	}
	if s.Webhook.URL == "" {
		missing = append(missing, "webhook.url (DISCORD_WEBHOOK)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", common.ErrInvalidConfig, strings.Join(missing, ", "))
	}
	switch strings.ToLower(s.LogLevel) {
	case "", "trace", "debug", "info", "warn", "none":
	default:
		return fmt.Errorf("%w: unknown log_level %q", common.ErrInvalidConfig, s.LogLevel)
	}
	return nil
}

// IntervalDuration returns the poll interval.
func (s *Settings) IntervalDuration() time.Duration {
	return time.Duration(s.Interval) * time.Second
}

// Masked returns a copy with secrets replaced, for display.
func (s Settings) Masked() Settings {
	mask := func(v string) string {
		if v == "" {
			return ""
		}
		return "********"
	}
	s.WebDAV.Password = mask(s.WebDAV.Password)
	s.Webhook.URL = mask(s.Webhook.URL)
	s.Ignore = append([]string(nil), s.Ignore...)
	return s
}

// loadDefaultSettings parses default settings from embedded artifact.
func loadDefaultSettings() Settings {
	var settings Settings
	if err := yaml.Unmarshal(artifacts.GlobalSettings, &settings); err != nil {
		panic("failed to parse embedded settings: " + err.Error())
	}
	return settings
}

// LoadSettings reads settings.yaml from the config directory (falling back
// to embedded defaults if it doesn't exist), applies environment overrides
// and fills defaults. It does not validate.
func LoadSettings() (*Settings, error) {
	return LoadSettingsFromPath(SettingsPath(), os.Getenv)
}

// LoadSettingsFromPath is LoadSettings for an explicit file and environment.
func LoadSettingsFromPath(path string, getenv func(string) string) (*Settings, error) {
	settings := loadDefaultSettings()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", common.ErrInvalidConfig, path, err)
		}
	}
	settings.ApplyEnv(getenv)
	settings.ApplyDefaults()
	return &settings, nil
}

// MarshalSettings renders settings as YAML.
func MarshalSettings(s Settings) ([]byte, error) {
	return yaml.Marshal(s)
}
