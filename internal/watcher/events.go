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

package watcher

import (
	"fmt"

	"davwatch/internal/webdav"
)

// EventKind classifies a ChangeEvent.
type EventKind int

const (
	EventNewContainer EventKind = iota + 1
	EventNewLeaf
	EventUpdatedLeaf
	EventUnreachable
)

func (k EventKind) String() string {
	switch k {
	case EventNewContainer:
		return "new_container"
	case EventNewLeaf:
		return "new_leaf"
	case EventUpdatedLeaf:
		return "updated_leaf"
	case EventUnreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// ChangeEvent is one observation produced by a traversal run.
//
// Metadata holds the leaf's current state for EventNewLeaf and
// EventUpdatedLeaf. OldToken is the stored token for EventUpdatedLeaf. Err is
// the gateway failure for EventUnreachable.
type ChangeEvent struct {
	Kind     EventKind
	Path     string
	Metadata webdav.Metadata
	OldToken string
	Err      error
}

// NewContainer reports a container that has never been notified.
func NewContainer(path string) ChangeEvent {
	return ChangeEvent{Kind: EventNewContainer, Path: path}
}

// NewLeaf reports a leaf that has never been notified.
func NewLeaf(path string, md webdav.Metadata) ChangeEvent {
	return ChangeEvent{Kind: EventNewLeaf, Path: path, Metadata: md}
}

// UpdatedLeaf reports a leaf whose token differs from the stored one.
func UpdatedLeaf(path, oldToken string, md webdav.Metadata) ChangeEvent {
	return ChangeEvent{Kind: EventUpdatedLeaf, Path: path, OldToken: oldToken, Metadata: md}
}

// Unreachable reports a node the gateway could not read this run.
func Unreachable(path string, err error) ChangeEvent {
	return ChangeEvent{Kind: EventUnreachable, Path: path, Err: err}
}

// NewToken returns the observed last-modified token.
func (e ChangeEvent) NewToken() string {
	return e.Metadata.LastModified
}

func (e ChangeEvent) String() string {
	switch e.Kind {
	case EventNewLeaf:
		return fmt.Sprintf("NewLeaf(%s, %s)", e.Path, e.NewToken())
	case EventUpdatedLeaf:
		return fmt.Sprintf("UpdatedLeaf(%s, %s, %s)", e.Path, e.OldToken, e.NewToken())
	case EventNewContainer:
		return fmt.Sprintf("NewContainer(%s)", e.Path)
	case EventUnreachable:
		return fmt.Sprintf("Unreachable(%s)", e.Path)
	}
	return e.Kind.String()
}
