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
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"davwatch/internal/util"
	"davwatch/internal/watcher"
)

// State is the scheduler's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Runner performs one traversal pass.
type Runner interface {
	RunOnce(ctx context.Context, root string) (*watcher.RunReport, error)
}

// Scheduler alternates Running and Idle until its context is cancelled.
type Scheduler struct {
	runner   Runner
	root     string
	interval time.Duration

	state atomic.Int32
	runs  atomic.Int64

	mu   sync.Mutex
	last *watcher.RunReport
}

// NewScheduler returns a scheduler running runner over root every interval.
func NewScheduler(runner Runner, root string, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval * time.Second
	}
	return &Scheduler{runner: runner, root: root, interval: interval}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Runs returns the number of completed runs, including failed ones.
func (s *Scheduler) Runs() int64 { return s.runs.Load() }

// LastReport returns the report of the most recent run, or nil.
func (s *Scheduler) LastReport() *watcher.RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run loops until ctx is cancelled. Run errors and panics are logged and
// never end the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.state.Store(int32(StateRunning))
		report, err := s.runOnce(ctx)
		s.state.Store(int32(StateIdle))
		s.runs.Add(1)
		if report != nil {
			s.mu.Lock()
			s.last = report
			s.mu.Unlock()
		}

		if err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("scheduler: run failed")
		}

		log.WithField("interval", s.interval).Info("scheduler: waiting before next run")
		if err := util.SleepContext(ctx, s.interval); err != nil {
			return err
		}
	}
}

// runOnce executes a single pass, converting a panic into an error.
func (s *Scheduler) runOnce(ctx context.Context) (report *watcher.RunReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()

	report, err = s.runner.RunOnce(ctx, s.root)
	if report != nil {
		LogReport(report, err)
	}
	return report, err
}

// LogReport writes the per-run summary line.
func LogReport(r *watcher.RunReport, err error) {
	entry := log.WithFields(log.Fields{
		"run":         r.ID,
		"root":        r.Root,
		"duration":    r.Duration.Round(time.Millisecond),
		"listed":      r.Listed,
		"new_folders": r.Count(watcher.EventNewContainer),
		"new_files":   r.Count(watcher.EventNewLeaf),
		"updated":     r.Count(watcher.EventUpdatedLeaf),
		"unreachable": r.Count(watcher.EventUnreachable),
		"delivered":   r.Delivered,
		"failed":      r.Failed,
	})
	if err != nil {
		entry.WithError(err).Warn("scheduler: run aborted")
		return
	}
	entry.Info("scheduler: run complete")
}
