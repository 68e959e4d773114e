// Copyright 2025 lxfs Authors
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

// NormalizePath cleans and normalizes a volume path, removing leading/trailing slashes
func NormalizePath(p string) string {
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	return p
}

// SplitPath splits a volume path into its components
func SplitPath(p string) []string {
	p = NormalizePath(p)
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Depth returns the number of path components; the root is depth zero
func Depth(p string) int {
	return len(SplitPath(p))
}

// Component extracts the path component at the given zero-based depth.
// Returns false when the path has no component at that depth.
func Component(p string, depth int) (string, bool) {
	parts := SplitPath(p)
	if depth < 0 || depth >= len(parts) {
		return "", false
	}
	return parts[depth], true
}

// ParentPath returns the parent directory of a path; the root's parent is the root
func ParentPath(p string) string {
	parts := SplitPath(p)
	if len(parts) <= 1 {
		return "/"
	}
	return "/" + strings.Join(parts[:len(parts)-1], "/")
}

// BaseName returns the final component of a path
func BaseName(p string) string {
	parts := SplitPath(p)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
