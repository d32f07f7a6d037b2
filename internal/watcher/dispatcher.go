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
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"davwatch/internal/common"
	"davwatch/internal/notify"
)

// DefaultMaxAttachmentBytes caps the size of a file attached to a
// new-file notification.
const DefaultMaxAttachmentBytes = 8 << 20

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Root               string // display paths are relative to Root
	MaxAttachmentBytes int64  // default: DefaultMaxAttachmentBytes
}

// Dispatcher delivers events and, only after a successful delivery, writes
// the new state back to the store.
type Dispatcher struct {
	gw       Gateway
	store    DedupStore
	notifier Notifier
	opts     DispatcherOptions
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(gw Gateway, store DedupStore, notifier Notifier, opts DispatcherOptions) *Dispatcher {
	if opts.MaxAttachmentBytes <= 0 {
		opts.MaxAttachmentBytes = DefaultMaxAttachmentBytes
	}
	opts.Root = common.NormalizePath(opts.Root)
	return &Dispatcher{gw: gw, store: store, notifier: notifier, opts: opts}
}

// Dispatch delivers ev. Delivery failures wrap common.ErrDeliveryFailed (or
// common.ErrUnreachable when the attachment could not be fetched) and leave
// the store untouched. Write-back failures wrap common.ErrStore.
func (d *Dispatcher) Dispatch(ctx context.Context, ev ChangeEvent) error {
	entry := log.WithFields(log.Fields{"event": ev.Kind, "path": ev.Path})

	switch ev.Kind {
	case EventUnreachable:
		entry.WithError(ev.Err).Warn("watcher: node unreachable, skipping subtree for this run")
		return nil

	case EventNewContainer:
		display := d.display(ev.Path)
		if display == "" {
			return nil
		}
		if err := d.deliver(ctx, entry, notify.Message{Text: newFolderText(display)}); err != nil {
			return err
		}
		return d.store.RecordContainer(ctx, ev.Path)

	case EventNewLeaf:
		msg, err := d.newLeafMessage(ctx, ev)
		if err != nil {
			entry.WithError(err).Error("watcher: failed to fetch file for notification")
			return err
		}
		if err := d.deliver(ctx, entry, msg); err != nil {
			return err
		}
		return d.store.UpsertLeaf(ctx, ev.Path, ev.NewToken(), ev.Metadata.Size)

	case EventUpdatedLeaf:
		text := updatedFileText(common.BaseName(ev.Path), d.gw.URL(ev.Path), ev.OldToken, ev.NewToken())
		if err := d.deliver(ctx, entry, notify.Message{Text: text}); err != nil {
			return err
		}
		return d.store.UpsertLeaf(ctx, ev.Path, ev.NewToken(), ev.Metadata.Size)
	}
	return fmt.Errorf("unknown event kind %v", ev.Kind)
}

func (d *Dispatcher) deliver(ctx context.Context, entry *log.Entry, msg notify.Message) error {
	if err := d.notifier.Deliver(ctx, msg); err != nil {
		entry.WithError(err).Error("watcher: notification failed, will retry next run")
		return err
	}
	entry.Info("watcher: notification sent")
	return nil
}

// newLeafMessage downloads the leaf and builds its notification. The
// content is held only until the message has been delivered.
func (d *Dispatcher) newLeafMessage(ctx context.Context, ev ChangeEvent) (notify.Message, error) {
	display := d.display(ev.Path)
	name := common.BaseName(ev.Path)
	msg := notify.Message{Text: newFileText(folderOf(display), name)}

	body, err := d.gw.FetchLeafContent(ctx, ev.Path)
	if err != nil {
		return msg, err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, d.opts.MaxAttachmentBytes+1))
	if err != nil {
		return msg, fmt.Errorf("%w: read %q: %v", common.ErrUnreachable, ev.Path, err)
	}
	if int64(len(data)) > d.opts.MaxAttachmentBytes {
		msg.Text += fmt.Sprintf("\n(attachment omitted: larger than %d bytes)", d.opts.MaxAttachmentBytes)
		return msg, nil
	}
	msg.Attachment = &notify.Attachment{Name: name, Data: data}
	return msg, nil
}

func (d *Dispatcher) display(p string) string {
	return common.RelativeTo(d.opts.Root, p)
}

func folderOf(display string) string {
	if parent := common.ParentPath(display); parent != "" {
		return parent
	}
	return common.RootLabel
}

func newFolderText(display string) string {
	return fmt.Sprintf("New folder detected: %s\nParent: %s", display, common.ParentChain(display))
}

func newFileText(folder, name string) string {
	return fmt.Sprintf("New file detected in folder: %s\nName: %s", folder, name)
}

func updatedFileText(name, url, oldToken, newToken string) string {
	return fmt.Sprintf("File updated:\nName: %s\nURL: %s\nLast Modified: %s -> %s", name, url, oldToken, newToken)
}
