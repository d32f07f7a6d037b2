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
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// MaxLogFileSize is the size above which the log file is halved on startup.
const MaxLogFileSize = 50 * 1024 * 1024

func init() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

// SetupLogging configures logrus for the given level and destination.
// An empty logFile logs to stderr; level "none" discards everything.
// The returned closer releases the log file, if any.
func SetupLogging(level, logFile string) (io.Closer, error) {
	level = strings.ToLower(level)
	if level == "none" {
		log.SetOutput(io.Discard)
		return nopCloser{}, nil
	}

	SetLevel(level)

	if logFile == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}

	if err := truncateLogFile(logFile, MaxLogFileSize); err != nil {
		// Non-fatal
		fmt.Fprintf(os.Stderr, "Warning: failed to truncate log file: %v\n", err)
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(f)
	return f, nil
}

// SetLevel sets the logrus level from a settings value (case insensitive).
// Unknown values select info.
func SetLevel(level string) {
	switch strings.ToLower(level) {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// truncateLogFile keeps roughly the last half of logPath once it exceeds
// maxSize, cutting at a line boundary.
func truncateLogFile(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() <= maxSize {
		return nil
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		return err
	}

	startIdx := len(data) - len(data)/2
	for i := startIdx; i < len(data); i++ {
		if data[i] == '\n' {
			startIdx = i + 1
			break
		}
	}
	return os.WriteFile(logPath, data[startIdx:], 0600)
}
