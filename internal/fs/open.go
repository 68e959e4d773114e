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

package fs

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"lxfs/internal/block"
	"lxfs/internal/common"
	"lxfs/internal/dirent"
)

// Open flags. Read and write intents are distinct bits so both can be
// requested and checked independently.
const (
	OpenRead      uint32 = 1 << 0
	OpenWrite     uint32 = 1 << 1
	OpenCreate    uint32 = 1 << 2
	OpenExclusive uint32 = 1 << 3
	OpenTruncate  uint32 = 1 << 4
)

// MaxLinkDepth bounds symlink redirection; beyond it Open returns ELOOP.
const MaxLinkDepth = 40

// OpenRequest carries one open call.
type OpenRequest struct {
	Path  string
	Flags uint32
	Mode  uint16
	Umask uint16
	Owner uint32
	Group uint32
}

// Open resolves a path to an open disposition: the entry to use, and the
// final path after symlink redirection. Create-on-demand, exclusivity,
// truncation and permission checks follow POSIX open semantics.
func (f *FS) Open(req OpenRequest) (*dirent.Entry, string, error) {
	path := req.Path

	for depth := 0; depth <= MaxLinkDepth; depth++ {
		entry, err := f.Resolve(path)
		if err != nil {
			if !errors.Is(err, common.ENOENT) {
				return nil, path, err
			}
			if req.Flags&OpenCreate == 0 {
				return nil, path, common.ENOENT
			}

			// Create-on-demand. The access pre-check runs against the mode
			// the file will be created with, not against any existing entry.
			mode := (req.Mode &^ req.Umask) & dirent.PermMask
			if req.Flags&OpenRead != 0 && mode&dirent.PermOwnerR == 0 {
				return nil, path, common.EACCES
			}
			if req.Flags&OpenWrite != 0 && mode&dirent.PermOwnerW == 0 {
				return nil, path, common.EACCES
			}

			created, err := f.Create(CreateRequest{
				Path:  path,
				Kind:  KindRegular,
				Perm:  mode,
				Owner: req.Owner,
				Group: req.Group,
			})
			if err != nil {
				return nil, path, err
			}
			log.WithFields(log.Fields{"path": path, "owner": req.Owner}).Trace("open created file")
			return created, path, nil
		}

		if entry.IsDir() {
			return nil, path, common.EISDIR
		}
		if req.Flags&OpenCreate != 0 && req.Flags&OpenExclusive != 0 {
			return nil, path, common.EEXIST
		}

		if req.Flags&OpenTruncate != 0 {
			if err := f.truncate(entry); err != nil {
				return nil, path, err
			}
		}

		if entry.IsSymlink() {
			target, err := f.readSymlink(entry)
			if err != nil {
				return nil, path, err
			}
			// Targets are interpreted against the volume root.
			path = "/" + common.NormalizePath(target)
			continue
		}

		if !canAccess(entry, req.Flags&OpenRead != 0, req.Flags&OpenWrite != 0, req.Owner, req.Group) {
			return nil, path, common.EACCES
		}
		return entry, path, nil
	}

	return nil, path, common.ELOOP
}

// truncate zeroes the file header's size and releases every chain block
// except the first, which is re-terminated. Not atomic: an I/O failure
// mid-walk leaves a partially truncated chain.
func (f *FS) truncate(entry *dirent.Entry) error {
	bs := int(f.vol.BlockSize())
	buf := f.vol.Scratch()[:bs]

	if err := f.vol.ReadBlock(entry.Block, buf); err != nil {
		return common.EIO
	}
	hdr := dirent.DecodeFileHeader(buf)
	hdr.Size = 0
	hdr.Encode(buf)
	if err := f.vol.WriteBlock(entry.Block, buf); err != nil {
		return common.EIO
	}

	next := entry.Block
	for next != block.BlockEOF {
		// Capture the successor before rewriting the link, or the rest of
		// the chain is stranded.
		succ, err := f.vol.NextBlock(next)
		if err != nil || succ == block.BlockFree {
			return common.EIO
		}
		value := block.BlockFree
		if next == entry.Block {
			value = block.BlockEOF
		}
		if err := f.vol.SetNextBlock(next, value); err != nil {
			return common.EIO
		}
		next = succ
	}

	entry.Size = 0
	return nil
}

// readSymlink reads the link target string from the entry's data block.
func (f *FS) readSymlink(entry *dirent.Entry) (string, error) {
	bs := int(f.vol.BlockSize())
	if entry.Size == 0 || entry.Size > uint64(bs) {
		return "", common.EIO
	}
	buf := f.vol.Scratch()[:bs]
	if err := f.vol.ReadBlock(entry.Block, buf); err != nil {
		return "", common.EIO
	}
	return string(buf[:entry.Size]), nil
}
