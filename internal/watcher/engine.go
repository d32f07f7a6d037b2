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

// Package watcher implements change detection over a remote document tree:
// a depth-first traversal that classifies every node against the dedup
// store, and a dispatcher that turns the resulting events into notifications.
package watcher

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"davwatch/internal/common"
	"davwatch/internal/notify"
	"davwatch/internal/storage"
	"davwatch/internal/webdav"
)

// DefaultMaxDepth bounds how far below the root a traversal descends.
const DefaultMaxDepth = 64

// Gateway reads the remote tree.
type Gateway interface {
	ListChildren(ctx context.Context, path string) ([]webdav.Entry, error)
	FetchLeafMetadata(ctx context.Context, path string) (webdav.Metadata, error)
	FetchLeafContent(ctx context.Context, path string) (io.ReadCloser, error)
	URL(path string) string
}

// DedupStore is the durable record of what has been reported.
type DedupStore interface {
	HasContainer(ctx context.Context, path string) (bool, error)
	RecordContainer(ctx context.Context, path string) error
	GetLeaf(ctx context.Context, path string) (*storage.FileModel, error)
	UpsertLeaf(ctx context.Context, path, lastModified, size string) error
}

// Notifier delivers one message.
type Notifier interface {
	Deliver(ctx context.Context, msg notify.Message) error
}

// Sink receives events in traversal order. An error wrapping
// common.ErrStore aborts the run; any other error is counted and skipped.
type Sink interface {
	Dispatch(ctx context.Context, ev ChangeEvent) error
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	MaxDepth int     // default: DefaultMaxDepth
	Filter   *Filter // optional
}

// Engine walks the remote tree and classifies what it finds.
type Engine struct {
	gw    Gateway
	store DedupStore
	sink  Sink
	opts  EngineOptions
}

// NewEngine creates an Engine. Events are handed to sink as they are found.
func NewEngine(gw Gateway, store DedupStore, sink Sink, opts EngineOptions) *Engine {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Engine{gw: gw, store: store, sink: sink, opts: opts}
}

// RunReport summarizes one traversal.
type RunReport struct {
	ID       string
	Root     string
	Started  time.Time
	Duration time.Duration

	Events       []ChangeEvent
	Listed       int // containers listed successfully
	Unchanged    int // leaves whose token matched the store
	Delivered    int
	Failed       int
	Skipped      int // ignored by the filter
	DepthLimited int
}

// Count returns the number of events of kind k.
func (r *RunReport) Count(k EventKind) int {
	n := 0
	for _, ev := range r.Events {
		if ev.Kind == k {
			n++
		}
	}
	return n
}

// RunOnce performs one full traversal from root. It returns an error only
// when the run had to stop early: a store failure or context cancellation.
// The report is always non-nil and covers the work done so far.
func (e *Engine) RunOnce(ctx context.Context, root string) (*RunReport, error) {
	root = common.NormalizePath(root)
	r := &run{
		Engine:  e,
		root:    root,
		visited: map[string]struct{}{root: {}},
		report: &RunReport{
			ID:      uuid.NewString(),
			Root:    root,
			Started: time.Now(),
		},
	}
	r.log = log.WithField("run", r.report.ID)
	err := r.walk(ctx)
	r.report.Duration = time.Since(r.report.Started)
	return r.report, err
}

// run holds the state owned by a single RunOnce call.
type run struct {
	*Engine
	root    string
	visited map[string]struct{}
	report  *RunReport
	log     *log.Entry
}

func (r *run) walk(ctx context.Context) error {
	stack := []string{r.root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if depth := common.Depth(r.root, p); depth > r.opts.MaxDepth {
			r.log.WithFields(log.Fields{"path": p, "depth": depth}).Warn("watcher: depth limit reached, not descending")
			r.report.DepthLimited++
			continue
		}

		children, err := r.gw.ListChildren(ctx, p)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err := r.emit(ctx, Unreachable(p, err)); err != nil {
				return err
			}
			continue
		}
		r.report.Listed++

		var descend []string
		for _, child := range children {
			next, err := r.visitChild(ctx, p, child)
			if err != nil {
				return err
			}
			if next != "" {
				descend = append(descend, next)
			}
		}
		// Reverse push so containers are descended in gateway order.
		for i := len(descend) - 1; i >= 0; i-- {
			stack = append(stack, descend[i])
		}
	}
	return nil
}

// visitChild classifies one child of parent. It returns the child's path
// when the child is a container that should be descended into.
func (r *run) visitChild(ctx context.Context, parent string, child webdav.Entry) (string, error) {
	p := common.NormalizePath(child.Path)
	if p == parent || p == "" {
		return "", nil
	}
	if _, seen := r.visited[p]; seen {
		r.log.WithField("path", p).Trace("watcher: already visited")
		return "", nil
	}
	if !common.IsWithin(r.root, p) {
		r.log.WithField("path", p).Debug("watcher: skipping path outside root")
		return "", nil
	}
	isDir := child.Kind == webdav.KindContainer
	if r.opts.Filter.Ignored(common.RelativeTo(r.root, p), isDir) {
		r.report.Skipped++
		return "", nil
	}
	r.visited[p] = struct{}{}

	if isDir {
		known, err := r.store.HasContainer(ctx, p)
		if err != nil {
			return "", err
		}
		if !known {
			if err := r.emit(ctx, NewContainer(p)); err != nil {
				return "", err
			}
		}
		// Known containers are still descended; only re-notification is skipped.
		return p, nil
	}

	return "", r.classifyLeaf(ctx, p, child.Metadata)
}

func (r *run) classifyLeaf(ctx context.Context, p string, md webdav.Metadata) error {
	if md.LastModified == "" {
		head, err := r.gw.FetchLeafMetadata(ctx, p)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return r.emit(ctx, Unreachable(p, err))
		}
		md.LastModified = head.LastModified
		if md.Size == "" {
			md.Size = head.Size
		}
	}

	stored, err := r.store.GetLeaf(ctx, p)
	switch {
	case errors.Is(err, common.ErrNotFound):
		return r.emit(ctx, NewLeaf(p, md))
	case err != nil:
		return err
	case stored.LastModified != md.LastModified:
		return r.emit(ctx, UpdatedLeaf(p, stored.LastModified, md))
	default:
		r.report.Unchanged++
		return nil
	}
}

// emit records ev and hands it to the sink. Only store failures and
// cancellation propagate; a failed delivery leaves the item for the next run.
func (r *run) emit(ctx context.Context, ev ChangeEvent) error {
	r.report.Events = append(r.report.Events, ev)
	r.log.WithFields(log.Fields{"event": ev.Kind, "path": ev.Path}).Debug("watcher: event")
	if r.sink == nil {
		return nil
	}
	err := r.sink.Dispatch(ctx, ev)
	switch {
	case err == nil:
		if ev.Kind != EventUnreachable {
			r.report.Delivered++
		}
		return nil
	case errors.Is(err, common.ErrStore):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		r.report.Failed++
		return nil
	}
}
