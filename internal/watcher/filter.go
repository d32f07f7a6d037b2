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
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// Filter decides which remote paths are skipped by a traversal. Patterns use
// gitignore syntax and are matched against paths relative to the root.
type Filter struct {
	matcher *ignore.GitIgnore
}

// NewFilter compiles patterns. Blank lines and comments are ignored; a nil
// Filter (or one built from no patterns) matches nothing.
func NewFilter(patterns []string) *Filter {
	var lines []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		lines = append(lines, p)
	}
	if len(lines) == 0 {
		return nil
	}
	return &Filter{matcher: ignore.CompileIgnoreLines(lines...)}
}

// Ignored reports whether relPath should be skipped.
func (f *Filter) Ignored(relPath string, isDir bool) bool {
	if f == nil || f.matcher == nil || relPath == "" {
		return false
	}
	if f.matcher.MatchesPath(relPath) {
		return true
	}
	if isDir && f.matcher.MatchesPath(relPath+"/") {
		return true
	}
	return false
}
