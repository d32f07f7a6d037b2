// Package davtest provides an in-memory WebDAV server for tests.
package davtest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"

	"davwatch/internal/common"
)

type node struct {
	dir          bool
	content      []byte
	lastModified string
	children     []string // full normalized paths, listing order
}

// Server serves a mutable tree under Prefix. Paths passed to its methods are
// relative to Prefix.
type Server struct {
	*httptest.Server
	Prefix string

	mu        sync.Mutex
	nodes     map[string]*node
	authFails int
	digest    *digestAuth
	noTokens  bool
	failPaths map[string]int
	requests  []string
}

// NewServer starts a server whose tree is rooted at prefix (e.g. "/webdav").
func NewServer(prefix string) *Server {
	s := &Server{
		Prefix:    "/" + common.NormalizePath(prefix),
		nodes:     map[string]*node{"": {dir: true}},
		failPaths: make(map[string]int),
	}
	if s.Prefix == "/" {
		s.Prefix = ""
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// BaseURL returns the URL a client should be configured with.
func (s *Server) BaseURL() string {
	return s.Server.URL + s.Prefix
}

// AddDir adds a directory and any missing parents.
func (s *Server) AddDir(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureDir(common.NormalizePath(p))
}

// AddFile adds or replaces a file.
func (s *Server) AddFile(p, content, lastModified string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = common.NormalizePath(p)
	parent := s.ensureDir(common.ParentPath(p))
	if _, ok := s.nodes[p]; !ok {
		parent.children = append(parent.children, p)
	}
	s.nodes[p] = &node{content: []byte(content), lastModified: lastModified}
}

// Touch changes a file's last-modified token.
func (s *Server) Touch(p, lastModified string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[common.NormalizePath(p)]; ok {
		n.lastModified = lastModified
	}
}

// Link lists target as a child of dir without moving it, producing a
// non-tree listing graph.
func (s *Server) Link(dir, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.ensureDir(common.NormalizePath(dir))
	d.children = append(d.children, common.NormalizePath(target))
}

// OmitLastModified leaves getlastmodified out of listings, so clients must
// fall back to HEAD for files.
func (s *Server) OmitLastModified(omit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noTokens = omit
}

// FailAuth answers the next n requests with 401.
func (s *Server) FailAuth(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authFails = n
}

// FailPath answers every request for p with status. Zero clears it.
func (s *Server) FailPath(p string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = common.NormalizePath(p)
	if status == 0 {
		delete(s.failPaths, p)
		return
	}
	s.failPaths[p] = status
}

// Requests returns "METHOD path" for every request served so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) ensureDir(p string) *node {
	if n, ok := s.nodes[p]; ok {
		return n
	}
	parent := s.ensureDir(common.ParentPath(p))
	n := &node{dir: true}
	s.nodes[p] = n
	parent.children = append(parent.children, p)
	return n
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rel := common.RelativeTo(s.Prefix, r.URL.Path)
	s.requests = append(s.requests, r.Method+" "+rel)

	if s.digest != nil && !s.digest.authorize(r) {
		s.digest.challenge(w)
		return
	}
	if s.authFails > 0 {
		s.authFails--
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if status, ok := s.failPaths[rel]; ok {
		w.WriteHeader(status)
		return
	}
	n, ok := s.nodes[rel]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case "PROPFIND":
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="utf-8"?><d:multistatus xmlns:d="DAV:">`)
		s.writeResponse(&b, rel, n)
		if r.Header.Get("Depth") != "0" {
			for _, c := range n.children {
				if child, ok := s.nodes[c]; ok {
					s.writeResponse(&b, c, child)
				}
			}
		}
		b.WriteString(`</d:multistatus>`)
		io.WriteString(w, b.String())
	case http.MethodHead, http.MethodGet:
		if n.dir {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Last-Modified", n.lastModified)
		w.Header().Set("Content-Length", fmt.Sprint(len(n.content)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(n.content)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) writeResponse(b *strings.Builder, p string, n *node) {
	u := url.URL{Path: s.Prefix + "/" + p}
	href := u.EscapedPath()
	if n.dir && !strings.HasSuffix(href, "/") {
		href += "/"
	}
	b.WriteString("<d:response><d:href>" + href + "</d:href><d:propstat><d:prop>")
	if n.dir {
		b.WriteString("<d:resourcetype><d:collection/></d:resourcetype>")
	} else {
		b.WriteString("<d:resourcetype/>")
		if !s.noTokens {
			fmt.Fprintf(b, "<d:getlastmodified>%s</d:getlastmodified>", n.lastModified)
		}
		fmt.Fprintf(b, "<d:getcontentlength>%d</d:getcontentlength>", len(n.content))
	}
	b.WriteString("</d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>")
}
