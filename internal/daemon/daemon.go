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
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"

	"davwatch/internal/notify"
	"davwatch/internal/storage"
	"davwatch/internal/watcher"
	"davwatch/internal/webdav"
)

// ErrAlreadyRunning is returned when another scheduler holds the lock for the
// same state database.
var ErrAlreadyRunning = errors.New("another davwatch instance is already running")

// LockPath returns the single-instance lock file for a state database.
func LockPath(database string) string {
	return database + ".lock"
}

// Daemon wires the store, gateway, notifier and engine for one settings set.
type Daemon struct {
	Settings *Settings

	// Optional overrides; nil builds the default components.
	Transport  http.RoundTripper
	NewSession webdav.SessionFactory
	HTTPClient *http.Client // webhook client

	// SettingsFile, when set, is watched during Run. Edits to log_level,
	// ignore, max_depth and max_attachment_bytes apply from the next run.
	SettingsFile string

	lock    *flock.Flock
	store   *storage.Store
	gateway *webdav.Client
	hook    *notify.Webhook
	engine  *watcher.Engine

	pending atomic.Pointer[Settings]
	reloads atomic.Int64
}

// New returns an unopened Daemon for settings.
func New(settings *Settings) *Daemon {
	return &Daemon{Settings: settings}
}

// Open validates the settings, takes the instance lock and builds every
// component. Call Close to release them.
func (d *Daemon) Open() error {
	s := d.Settings
	if err := s.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.Database), 0700); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	d.lock = flock.New(LockPath(s.Database))
	locked, err := d.lock.TryLock()
	if err != nil {
		d.lock = nil
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		d.lock.Close()
		d.lock = nil
		return ErrAlreadyRunning
	}

	if err := d.build(); err != nil {
		d.Close()
		return err
	}
	log.WithFields(log.Fields{
		"url":      s.WebDAV.URL,
		"root":     s.Root,
		"database": s.Database,
	}).Info("daemon: opened")
	return nil
}

func (d *Daemon) build() error {
	s := d.Settings

	store, err := storage.Open(s.Database)
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	d.store = store

	gw, err := webdav.New(webdav.Options{
		BaseURL:    s.WebDAV.URL,
		Login:      s.WebDAV.Login,
		Password:   s.WebDAV.Password,
		Timeout:    time.Duration(s.WebDAV.Timeout) * time.Second,
		Transport:  d.Transport,
		NewSession: d.NewSession,
	})
	if err != nil {
		return err
	}
	d.gateway = gw

	hook, err := notify.NewWebhook(notify.Options{
		URL:      s.Webhook.URL,
		Username: s.Webhook.Username,
		Timeout:  time.Duration(s.Webhook.Timeout) * time.Second,
		Client:   d.HTTPClient,
	})
	if err != nil {
		return err
	}

	d.hook = hook
	d.engine = d.buildEngine(s)
	return nil
}

func (d *Daemon) buildEngine(s *Settings) *watcher.Engine {
	dispatcher := watcher.NewDispatcher(d.gateway, d.store, d.hook, watcher.DispatcherOptions{
		Root:               s.Root,
		MaxAttachmentBytes: s.MaxAttachmentBytes,
	})
	return watcher.NewEngine(d.gateway, d.store, dispatcher, watcher.EngineOptions{
		MaxDepth: s.MaxDepth,
		Filter:   watcher.NewFilter(s.Ignore),
	})
}

// Store returns the opened state store.
func (d *Daemon) Store() *storage.Store { return d.store }

// Gateway returns the opened WebDAV client.
func (d *Daemon) Gateway() *webdav.Client { return d.gateway }

// RunOnce performs a single traversal pass and logs its summary.
func (d *Daemon) RunOnce(ctx context.Context) (*watcher.RunReport, error) {
	if d.engine == nil {
		return nil, errors.New("daemon not opened")
	}
	report, err := d.engine.RunOnce(ctx, d.Settings.Root)
	LogReport(report, err)
	return report, err
}

// Run polls until ctx is cancelled or SIGINT/SIGTERM arrives.
func (d *Daemon) Run(ctx context.Context) error {
	if d.engine == nil {
		return errors.New("daemon not opened")
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Daemon started (PID %d)", os.Getpid())
	if d.SettingsFile != "" {
		sw, err := WatchSettings(d.SettingsFile, 0)
		if err != nil {
			log.WithError(err).Warn("daemon: settings reload disabled")
		} else {
			defer sw.Close()
			go sw.Run(ctx, d.reload)
		}
	}

	sched := NewScheduler(reloadingRunner{d}, d.Settings.Root, d.Settings.IntervalDuration())
	err := sched.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.WithField("runs", sched.Runs()).Info("daemon: interrupted, shutting down")
		return nil
	}
	return err
}

// Reloads returns how many valid settings edits have been picked up.
func (d *Daemon) Reloads() int64 { return d.reloads.Load() }

// reload parses the settings file and queues it for the next run.
func (d *Daemon) reload() {
	next, err := LoadSettingsFromPath(d.SettingsFile, os.Getenv)
	if err == nil {
		err = next.Validate()
	}
	if err != nil {
		log.WithError(err).Warn("daemon: ignoring invalid settings edit")
		return
	}
	d.pending.Store(next)
	d.reloads.Add(1)
	log.WithField("file", d.SettingsFile).Info("daemon: settings changed, applying on next run")
}

// applyPending swaps in queued settings. It runs between passes only.
func (d *Daemon) applyPending() {
	next := d.pending.Swap(nil)
	if next == nil {
		return
	}
	cur := d.Settings
	if next.WebDAV != cur.WebDAV || next.Webhook != cur.Webhook || next.Root != cur.Root ||
		next.Database != cur.Database || next.Interval != cur.Interval {
		log.Warn("daemon: connection, root, database and interval changes need a restart")
	}
	cur.LogLevel = next.LogLevel
	cur.Ignore = next.Ignore
	cur.MaxDepth = next.MaxDepth
	cur.MaxAttachmentBytes = next.MaxAttachmentBytes
	SetLevel(cur.LogLevel)
	d.engine = d.buildEngine(cur)
}

// reloadingRunner applies queued settings before each pass.
type reloadingRunner struct{ d *Daemon }

func (r reloadingRunner) RunOnce(ctx context.Context, root string) (*watcher.RunReport, error) {
	r.d.applyPending()
	return r.d.engine.RunOnce(ctx, root)
}

// Close releases the store and the instance lock. Safe to call twice.
func (d *Daemon) Close() error {
	var err error
	if d.store != nil {
		err = d.store.Close()
		d.store = nil
	}
	if d.lock != nil {
		if uerr := d.lock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
		d.lock = nil
	}
	d.engine = nil
	return err
}
