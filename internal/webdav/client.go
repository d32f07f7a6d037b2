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

// Package webdav is the gateway to the remote document tree. It lists
// containers with PROPFIND, inspects leaves with HEAD and downloads them with
// GET, all over HTTP digest authentication.
package webdav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/icholy/digest"
	log "github.com/sirupsen/logrus"

	"davwatch/internal/common"
	"davwatch/internal/util"
)

// Kind distinguishes containers from leaves.
type Kind int

const (
	KindLeaf Kind = iota
	KindContainer
)

func (k Kind) String() string {
	if k == KindContainer {
		return "container"
	}
	return "leaf"
}

// Metadata describes a leaf. LastModified is an opaque token.
type Metadata struct {
	LastModified string
	Size         string
}

// Entry is one child returned by ListChildren.
type Entry struct {
	Path     string // normalized, relative to the base URL path
	Kind     Kind
	Metadata Metadata // leaves only
}

// SessionFactory wraps a base transport with an authenticated session.
type SessionFactory func(base http.RoundTripper) http.RoundTripper

// Options configures a Client.
type Options struct {
	BaseURL  string
	Login    string
	Password string
	Timeout  time.Duration // per request (default: 30s)

	// Transport is the underlying transport (default: http.DefaultTransport).
	Transport http.RoundTripper
	// NewSession overrides how sessions are created (default: digest auth
	// with Login/Password, or no auth when Login is empty).
	NewSession SessionFactory
}

// Client talks to one WebDAV endpoint and owns its session lifecycle.
type Client struct {
	base     *url.URL
	basePath string
	opts     Options

	mu       sync.Mutex
	http     *http.Client
	sessions int
}

// DigestSession returns a SessionFactory performing HTTP digest
// authentication. Each call yields a fresh transport with no cached challenge.
func DigestSession(login, password string) SessionFactory {
	return func(base http.RoundTripper) http.RoundTripper {
		return &digest.Transport{
			Username:  login,
			Password:  password,
			Transport: base,
		}
	}
}

// New creates a Client and establishes its first session.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("%w: webdav url is required", common.ErrInvalidConfig)
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: webdav url: %v", common.ErrInvalidConfig, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("%w: webdav url must be http(s): %s", common.ErrInvalidConfig, opts.BaseURL)
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.NewSession == nil {
		if opts.Login != "" {
			opts.NewSession = DigestSession(opts.Login, opts.Password)
		} else {
			opts.NewSession = func(base http.RoundTripper) http.RoundTripper { return base }
		}
	}
	c := &Client{
		base:     base,
		basePath: common.NormalizePath(base.Path),
		opts:     opts,
	}
	c.Reauthenticate()
	return c, nil
}

// Reauthenticate discards the current session and starts a new one.
func (c *Client) Reauthenticate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.http = &http.Client{
		Timeout:   c.opts.Timeout,
		Transport: c.opts.NewSession(c.opts.Transport),
	}
	c.sessions++
	if c.sessions > 1 {
		log.WithField("sessions", c.sessions).Info("webdav: re-established session")
	}
}

// Sessions returns how many sessions have been established.
func (c *Client) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions
}

func (c *Client) client() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.http
}

// URL returns the escaped absolute URL of a node.
func (c *Client) URL(p string) string {
	u := *c.base
	u.RawPath = ""
	u.Path = "/" + common.JoinPath(c.basePath, p)
	return u.String()
}

// collectionURL is URL with exactly one trailing slash, which some servers
// require for PROPFIND on a collection.
func (c *Client) collectionURL(p string) string {
	return strings.TrimSuffix(c.URL(p), "/") + "/"
}

// ListChildren returns the immediate children of p in server order. An empty
// container yields an empty slice.
func (c *Client) ListChildren(ctx context.Context, p string) ([]Entry, error) {
	p = common.NormalizePath(p)
	header := http.Header{}
	header.Set("Depth", "1")
	header.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := c.do(ctx, "PROPFIND", c.collectionURL(p), header, []byte(propfindBody), http.StatusMultiStatus)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := parseMultistatus(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: list %q: %v", common.ErrUnreachable, p, err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		full := common.NormalizePath(hrefPath(r.href))
		if !common.IsWithin(c.basePath, full) {
			log.WithField("href", r.href).Debug("webdav: skipping href outside base url")
			continue
		}
		childPath := common.RelativeTo(c.basePath, full)
		if childPath == p {
			continue
		}
		e := Entry{Path: childPath, Kind: KindLeaf}
		if r.isCollection {
			e.Kind = KindContainer
		} else {
			e.Metadata = Metadata{LastModified: r.lastModified, Size: r.size}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// FetchLeafMetadata reads a leaf's metadata with HEAD.
func (c *Client) FetchLeafMetadata(ctx context.Context, p string) (Metadata, error) {
	p = common.NormalizePath(p)
	resp, err := c.do(ctx, http.MethodHead, c.URL(p), nil, nil, http.StatusOK)
	if err != nil {
		return Metadata{}, err
	}
	resp.Body.Close()
	md := Metadata{
		LastModified: resp.Header.Get("Last-Modified"),
		Size:         resp.Header.Get("Content-Length"),
	}
	if md.Size == "" && resp.ContentLength >= 0 {
		md.Size = strconv.FormatInt(resp.ContentLength, 10)
	}
	return md, nil
}

// FetchLeafContent downloads a leaf. The caller must close the returned body.
func (c *Client) FetchLeafContent(ctx context.Context, p string) (io.ReadCloser, error) {
	p = common.NormalizePath(p)
	resp, err := c.do(ctx, http.MethodGet, c.URL(p), nil, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// do sends one request, re-authenticating and retrying once if the server
// rejects the credentials. Any failure wraps common.ErrUnreachable.
func (c *Client) do(ctx context.Context, method, target string, header http.Header, body []byte, want int) (*http.Response, error) {
	var resp *http.Response
	err := util.Retry(ctx, func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return fmt.Errorf("%w: %s %s: %v", common.ErrUnreachable, method, target, err)
		}
		for k, v := range header {
			req.Header[k] = v
		}
		r, err := c.client().Do(req)
		if err != nil {
			return fmt.Errorf("%w: %s %s: %v", common.ErrUnreachable, method, target, err)
		}
		if r.StatusCode == http.StatusUnauthorized {
			drain(r)
			return fmt.Errorf("%s %s: %w", method, target, common.ErrAuthExpired)
		}
		if r.StatusCode != want {
			drain(r)
			return fmt.Errorf("%w: %s %s: status %d", common.ErrUnreachable, method, target, r.StatusCode)
		}
		resp = r
		return nil
	}, util.ReauthRetryOptions(ctx, common.ErrAuthExpired, c.Reauthenticate)...)
	if err != nil {
		if errors.Is(err, common.ErrAuthExpired) {
			return nil, fmt.Errorf("%w: %w", common.ErrUnreachable, err)
		}
		if !errors.Is(err, common.ErrUnreachable) {
			return nil, fmt.Errorf("%w: %s %s: %v", common.ErrUnreachable, method, target, err)
		}
		return nil, err
	}
	return resp, nil
}

func drain(r *http.Response) {
	io.Copy(io.Discard, io.LimitReader(r.Body, 64<<10))
	r.Body.Close()
}
