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

package common

import (
	"path"
	"strings"
)

// RootLabel is shown in place of a parent chain for top-level nodes.
const RootLabel = "Root"

// ParentSeparator joins the segments of a parent chain.
const ParentSeparator = " -> "

// NormalizePath cleans an already-decoded remote path, removing
// leading/trailing slashes. It is purely structural and idempotent: a literal
// '%' in a name is kept as is. Percent-decoding happens once, where hrefs
// enter from the wire.
func NormalizePath(p string) string {
	p = path.Clean("/" + p)
	p = strings.Trim(p, "/")
	return p
}

// SplitPath splits a path into its components
func SplitPath(p string) []string {
	p = NormalizePath(p)
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// JoinPath joins path components
func JoinPath(parts ...string) string {
	return NormalizePath(path.Join(parts...))
}

// ParentPath returns the parent directory of a path
func ParentPath(p string) string {
	p = NormalizePath(p)
	if p == "" {
		return ""
	}
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// BaseName returns the base name of a path
func BaseName(p string) string {
	p = NormalizePath(p)
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// RelativeTo strips root from p. Paths outside root are returned normalized
// but otherwise unchanged.
func RelativeTo(root, p string) string {
	root = NormalizePath(root)
	p = NormalizePath(p)
	if root == "" {
		return p
	}
	if p == root {
		return ""
	}
	if strings.HasPrefix(p, root+"/") {
		return p[len(root)+1:]
	}
	return p
}

// IsWithin reports whether p equals root or lies below it.
func IsWithin(root, p string) bool {
	root = NormalizePath(root)
	p = NormalizePath(p)
	return root == "" || p == root || strings.HasPrefix(p, root+"/")
}

// Depth returns the number of segments in p below root.
func Depth(root, p string) int {
	return len(SplitPath(RelativeTo(root, p)))
}

// ParentChain renders the parent segments of p joined with ParentSeparator,
// or RootLabel when p has no parent segment.
func ParentChain(p string) string {
	parts := SplitPath(p)
	if len(parts) <= 1 {
		return RootLabel
	}
	return strings.Join(parts[:len(parts)-1], ParentSeparator)
}
