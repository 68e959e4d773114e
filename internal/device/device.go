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

// Package device provides byte-addressed block device backends for lxfs
// volumes. The engine above only ever issues whole-block reads and writes;
// the backends themselves are plain random-access stores.
package device

import "strings"

// Device abstracts I/O against a raw volume image. Implementations must
// support random access within [0, Size()); reads and writes outside that
// range are errors, never short transfers.
type Device interface {
	ReadAt(p []byte, off int64) error
	WriteAt(p []byte, off int64) error
	Sync() error
	Size() int64
	Close() error
}

// SQLSuffix marks volume images stored as SQLite databases.
const SQLSuffix = ".lxdb"

// Open opens an existing volume image, choosing the backend from the path:
// images ending in .lxdb are SQLite-backed, everything else is a plain file.
func Open(path string) (Device, error) {
	if strings.HasSuffix(path, SQLSuffix) {
		return OpenSQL(path)
	}
	return OpenFile(path)
}

// Create creates a new volume image of the given byte size, choosing the
// backend from the path the same way Open does.
func Create(path string, size int64) (Device, error) {
	if strings.HasSuffix(path, SQLSuffix) {
		return CreateSQL(path, size)
	}
	return CreateFile(path, size)
}
