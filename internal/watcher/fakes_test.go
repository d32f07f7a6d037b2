package watcher

import (
	"context"
	"fmt"
	"io"
	"strings"

	"davwatch/internal/common"
	"davwatch/internal/notify"
	"davwatch/internal/storage"
	"davwatch/internal/webdav"
)

type fakeGateway struct {
	children  map[string][]webdav.Entry
	content   map[string]string
	heads     map[string]webdav.Metadata
	failList  map[string]bool
	failFetch map[string]bool
	listCalls map[string]int
	fetches   []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		children:  map[string][]webdav.Entry{},
		content:   map[string]string{},
		heads:     map[string]webdav.Metadata{},
		failList:  map[string]bool{},
		failFetch: map[string]bool{},
		listCalls: map[string]int{},
	}
}

func (g *fakeGateway) dir(p string) {
	p = common.NormalizePath(p)
	parent := common.ParentPath(p)
	g.children[parent] = append(g.children[parent], webdav.Entry{Path: p, Kind: webdav.KindContainer})
	if _, ok := g.children[p]; !ok {
		g.children[p] = []webdav.Entry{}
	}
}

func (g *fakeGateway) file(p, token, content string) {
	p = common.NormalizePath(p)
	parent := common.ParentPath(p)
	g.children[parent] = append(g.children[parent], webdav.Entry{
		Path:     p,
		Kind:     webdav.KindLeaf,
		Metadata: webdav.Metadata{LastModified: token, Size: fmt.Sprint(len(content))},
	})
	g.content[p] = content
}

// link adds an extra listing edge from dir to an existing entry.
func (g *fakeGateway) link(dir string, e webdav.Entry) {
	dir = common.NormalizePath(dir)
	g.children[dir] = append(g.children[dir], e)
}

func (g *fakeGateway) touch(p, token string) {
	p = common.NormalizePath(p)
	parent := common.ParentPath(p)
	for i, e := range g.children[parent] {
		if e.Path == p {
			g.children[parent][i].Metadata.LastModified = token
		}
	}
}

func (g *fakeGateway) ListChildren(_ context.Context, p string) ([]webdav.Entry, error) {
	p = common.NormalizePath(p)
	g.listCalls[p]++
	if g.failList[p] {
		return nil, fmt.Errorf("%w: list %q: status 500", common.ErrUnreachable, p)
	}
	entries, ok := g.children[p]
	if !ok {
		return nil, fmt.Errorf("%w: list %q: status 404", common.ErrUnreachable, p)
	}
	return append([]webdav.Entry(nil), entries...), nil
}

func (g *fakeGateway) FetchLeafMetadata(_ context.Context, p string) (webdav.Metadata, error) {
	md, ok := g.heads[common.NormalizePath(p)]
	if !ok {
		return webdav.Metadata{}, fmt.Errorf("%w: head %q", common.ErrUnreachable, p)
	}
	return md, nil
}

func (g *fakeGateway) FetchLeafContent(_ context.Context, p string) (io.ReadCloser, error) {
	p = common.NormalizePath(p)
	g.fetches = append(g.fetches, p)
	if g.failFetch[p] {
		return nil, fmt.Errorf("%w: get %q", common.ErrUnreachable, p)
	}
	return io.NopCloser(strings.NewReader(g.content[p])), nil
}

func (g *fakeGateway) URL(p string) string {
	return "https://dav.example.com/webdav/" + common.NormalizePath(p)
}

type fakeStore struct {
	folders  map[string]bool
	files    map[string]storage.FileModel
	writes   int
	failRead bool
	failAll  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{folders: map[string]bool{}, files: map[string]storage.FileModel{}}
}

func (s *fakeStore) HasContainer(_ context.Context, p string) (bool, error) {
	if s.failRead {
		return false, fmt.Errorf("%w: has container: disk I/O error", common.ErrStore)
	}
	return s.folders[p], nil
}

func (s *fakeStore) RecordContainer(_ context.Context, p string) error {
	if s.failAll {
		return fmt.Errorf("%w: record container: disk full", common.ErrStore)
	}
	s.writes++
	s.folders[p] = true
	return nil
}

func (s *fakeStore) GetLeaf(_ context.Context, p string) (*storage.FileModel, error) {
	if s.failRead {
		return nil, fmt.Errorf("%w: get leaf: disk I/O error", common.ErrStore)
	}
	f, ok := s.files[p]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &f, nil
}

func (s *fakeStore) UpsertLeaf(_ context.Context, p, lastModified, size string) error {
	if s.failAll {
		return fmt.Errorf("%w: upsert leaf: disk full", common.ErrStore)
	}
	s.writes++
	s.files[p] = storage.FileModel{Path: p, LastModified: lastModified, Size: size}
	return nil
}

type fakeNotifier struct {
	sent []notify.Message
	// failIf rejects messages whose text contains the given substring.
	failIf string
	calls  int
}

func (n *fakeNotifier) Deliver(_ context.Context, msg notify.Message) error {
	n.calls++
	if n.failIf != "" && strings.Contains(msg.Text, n.failIf) {
		return fmt.Errorf("%w: status 500", common.ErrDeliveryFailed)
	}
	n.sent = append(n.sent, msg)
	return nil
}

type harness struct {
	gw       *fakeGateway
	store    *fakeStore
	notifier *fakeNotifier
	engine   *Engine
}

func newHarness(root string, opts EngineOptions) *harness {
	h := &harness{gw: newFakeGateway(), store: newFakeStore(), notifier: &fakeNotifier{}}
	h.gw.children[common.NormalizePath(root)] = []webdav.Entry{}
	d := NewDispatcher(h.gw, h.store, h.notifier, DispatcherOptions{Root: root})
	h.engine = NewEngine(h.gw, h.store, d, opts)
	return h
}

func eventStrings(evs []ChangeEvent) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.String())
	}
	return out
}
