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

// Package fs implements the lxfs engine: path resolution, the create
// engine and the open engine, layered on the block store and the directory
// entry codec. One FS serves one mounted volume; operations are not safe
// for concurrent use on the same volume, callers serialize per mount.
package fs

import (
	"lxfs/internal/block"
	"lxfs/internal/dirent"
)

// FS is the filesystem engine bound to one volume.
type FS struct {
	vol *block.Volume
}

// New creates an engine for the given volume.
func New(vol *block.Volume) *FS {
	return &FS{vol: vol}
}

// Volume returns the underlying volume handle.
func (f *FS) Volume() *block.Volume {
	return f.vol
}

// accessBits returns the read/write permission bits that apply to the given
// requester. Class precedence is strict owner, then group, then other; the
// first matching class wins and never falls through to a broader one.
func accessBits(e *dirent.Entry, uid, gid uint32) (r, w uint16) {
	switch {
	case uid == e.Owner:
		return dirent.PermOwnerR, dirent.PermOwnerW
	case gid == e.Group:
		return dirent.PermGroupR, dirent.PermGroupW
	default:
		return dirent.PermOtherR, dirent.PermOtherW
	}
}

// canAccess checks the requested read/write intents against the entry's
// permission bits for the requester's class.
func canAccess(e *dirent.Entry, read, write bool, uid, gid uint32) bool {
	rBit, wBit := accessBits(e, uid, gid)
	if read && e.Permissions&rBit == 0 {
		return false
	}
	if write && e.Permissions&wBit == 0 {
		return false
	}
	return true
}

// canWrite checks write permission only.
func canWrite(e *dirent.Entry, uid, gid uint32) bool {
	return canAccess(e, false, true, uid, gid)
}
