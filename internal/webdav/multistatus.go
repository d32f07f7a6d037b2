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

package webdav

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// propfindBody requests only the properties the watcher needs.
const propfindBody = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:resourcetype/>
    <d:getlastmodified/>
    <d:getcontentlength/>
  </d:prop>
</d:propfind>`

type multistatus struct {
	XMLName   xml.Name   `xml:"DAV: multistatus"`
	Responses []response `xml:"DAV: response"`
}

type response struct {
	Href      string     `xml:"DAV: href"`
	Propstats []propstat `xml:"DAV: propstat"`
}

type propstat struct {
	Prop   prop   `xml:"DAV: prop"`
	Status string `xml:"DAV: status"`
}

type prop struct {
	ResourceType  resourceType `xml:"DAV: resourcetype"`
	LastModified  string       `xml:"DAV: getlastmodified"`
	ContentLength string       `xml:"DAV: getcontentlength"`
}

type resourceType struct {
	Collection *struct{} `xml:"DAV: collection"`
}

// ok reports whether a propstat carries found properties. Servers may omit
// the status line entirely.
func (ps propstat) ok() bool {
	if ps.Status == "" {
		return true
	}
	fields := strings.Fields(ps.Status)
	return len(fields) >= 2 && fields[1] == "200"
}

// rawEntry is a parsed multistatus response before href resolution.
type rawEntry struct {
	href         string
	isCollection bool
	lastModified string
	size         string
}

func parseMultistatus(r io.Reader) ([]rawEntry, error) {
	var ms multistatus
	if err := xml.NewDecoder(r).Decode(&ms); err != nil {
		return nil, fmt.Errorf("decode multistatus: %w", err)
	}
	entries := make([]rawEntry, 0, len(ms.Responses))
	for _, resp := range ms.Responses {
		e := rawEntry{href: strings.TrimSpace(resp.Href)}
		for _, ps := range resp.Propstats {
			if !ps.ok() {
				continue
			}
			if ps.Prop.ResourceType.Collection != nil {
				e.isCollection = true
			}
			if v := strings.TrimSpace(ps.Prop.LastModified); v != "" {
				e.lastModified = v
			}
			if v := strings.TrimSpace(ps.Prop.ContentLength); v != "" {
				e.size = v
			}
		}
		if e.href == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// hrefPath returns the decoded path component of an href, which may be an
// absolute URL or an absolute path. This is the only place a remote path is
// percent-decoded.
func hrefPath(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		if decoded, uerr := url.PathUnescape(href); uerr == nil {
			return decoded
		}
		return href
	}
	return u.Path
}
