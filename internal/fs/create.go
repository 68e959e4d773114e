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
	"time"

	log "github.com/sirupsen/logrus"

	"lxfs/internal/block"
	"lxfs/internal/common"
	"lxfs/internal/dirent"
)

// CreateKind selects what Create builds.
type CreateKind int

const (
	KindRegular CreateKind = iota
	KindDirectory
	KindSymlink
	KindHardLink
)

// CreateRequest describes one creation. Target is only meaningful for
// KindSymlink, SourceBlock only for KindHardLink.
type CreateRequest struct {
	Path        string
	Kind        CreateKind
	Perm        uint16
	Owner       uint32
	Group       uint32
	Target      string
	SourceBlock uint64
}

// Create allocates storage for a new file, directory, symlink or hard link
// and inserts its directory entry into the parent. A name that already
// exists in the parent is rejected with EEXIST. The only rollback
// guarantee is releasing the just-allocated data block when its initial
// write fails; once directory entry insertion has begun there is no
// rollback, and a failure updating the parent header afterwards is
// tolerated (the entry exists and is discoverable either way).
func (f *FS) Create(req CreateRequest) (*dirent.Entry, error) {
	bs := int(f.vol.BlockSize())

	name := common.BaseName(req.Path)
	if name == "" {
		// Creating the root itself.
		return nil, common.EEXIST
	}
	if len(name) > dirent.MaxNameLen {
		return nil, common.EINVAL
	}
	need := dirent.EntryHeaderSize + len(name)
	if need > bs {
		return nil, common.EINVAL
	}

	// Resolve the parent directory. Failure to read the root itself is an
	// I/O error; a missing intermediate directory is ENOENT.
	var parent *dirent.Entry
	var err error
	if common.Depth(req.Path) <= 1 {
		if parent, err = f.rootEntry(); err != nil {
			return nil, common.EIO
		}
	} else {
		if parent, err = f.ParentOf(req.Path); err != nil {
			return nil, common.ENOENT
		}
	}

	if !parent.IsDir() {
		return nil, common.ENOTDIR
	}
	if !canWrite(parent, req.Owner, req.Group) {
		return nil, common.EACCES
	}

	// A second entry under the same name would be unreachable forever: the
	// first-fit scan always stops at the first one.
	if _, err := f.lookupChild(parent.Block, name); err == nil {
		return nil, common.EEXIST
	} else if !errors.Is(err, common.ENOENT) {
		return nil, err
	}

	now := time.Now().Unix()
	entry := &dirent.Entry{
		EntrySize:   uint16(need),
		Flags:       dirent.FlagValid,
		Permissions: req.Perm & dirent.PermMask,
		Owner:       req.Owner,
		Group:       req.Group,
		AccessTime:  now,
		CreateTime:  now,
		ModTime:     now,
		Name:        name,
	}

	switch req.Kind {
	case KindRegular:
		entry.SetType(dirent.TypeFile)
	case KindDirectory:
		entry.SetType(dirent.TypeDir)
	case KindSymlink:
		entry.SetType(dirent.TypeSoftLink)
		if req.Target == "" || len(req.Target) > bs {
			return nil, common.EINVAL
		}
	case KindHardLink:
		entry.SetType(dirent.TypeHardLink)
		if req.SourceBlock == 0 {
			return nil, common.EINVAL
		}
	default:
		return nil, common.EINVAL
	}

	if req.Kind == KindHardLink {
		// Share the existing chain: bump its reference count, no new block.
		buf := f.vol.Scratch()[:bs]
		if err := f.vol.ReadBlock(req.SourceBlock, buf); err != nil {
			return nil, common.EIO
		}
		hdr := dirent.DecodeFileHeader(buf)
		hdr.RefCount++
		entry.Size = hdr.Size
		hdr.Encode(buf)
		if err := f.vol.WriteBlock(req.SourceBlock, buf); err != nil {
			return nil, common.EIO
		}
		entry.Block = req.SourceBlock
	} else {
		addr, err := f.vol.FindFreeBlock(0)
		if err != nil {
			return nil, common.EIO
		}
		if addr == 0 {
			return nil, common.ENOSPC
		}
		entry.Block = addr
		if err := f.vol.SetNextBlock(addr, block.BlockEOF); err != nil {
			return nil, common.EIO
		}

		buf := f.vol.Scratch()[:bs]
		for i := range buf {
			buf[i] = 0
		}
		switch req.Kind {
		case KindRegular:
			(&dirent.FileHeader{RefCount: 1, Size: 0}).Encode(buf)
		case KindDirectory:
			(&dirent.DirHeader{
				AccessTime:  now,
				CreateTime:  now,
				ModTime:     now,
				SizeBytes:   dirent.DirHeaderSize,
				SizeEntries: 0,
			}).Encode(buf)
		case KindSymlink:
			copy(buf, req.Target)
			entry.Size = uint64(len(req.Target))
		}
		if err := f.vol.WriteBlock(addr, buf); err != nil {
			f.vol.SetNextBlock(addr, block.BlockFree)
			return nil, common.EIO
		}
	}
	f.vol.Flush(entry.Block)

	if err := f.insertEntry(parent, entry, now); err != nil {
		return nil, err
	}
	return entry, nil
}

// releaseOnFailure undoes the data block allocation for non-hard-link
// creations when the in-place directory write fails.
func (f *FS) releaseOnFailure(entry *dirent.Entry) {
	if !entry.IsHardLink() {
		f.vol.SetNextBlock(entry.Block, block.BlockFree)
	}
}

// insertEntry writes entry into the first fitting free slot of the parent's
// directory chain, allocating one extra chain block when the slot straddles
// the end of the last block, then updates the parent header bookkeeping.
func (f *FS) insertEntry(parent, entry *dirent.Entry, now int64) error {
	bs := int(f.vol.BlockSize())
	need := int(entry.EntrySize)
	win := dirent.NewWindow(f.vol.Scratch(), bs)

	addr := parent.Block
	if err := f.vol.ReadBlock(addr, win.First()); err != nil {
		return common.EIO
	}
	next, err := f.vol.NextBlock(addr)
	if err != nil || next == block.BlockFree {
		return common.EIO
	}
	if next != block.BlockEOF {
		if err := f.vol.ReadBlock(next, win.Second()); err != nil {
			return common.EIO
		}
	} else {
		win.ZeroSecond()
	}

	off := dirent.DirHeaderSize
	for {
		slot, found, err := win.FindSlot(off, need)
		if err != nil {
			return common.EIO
		}
		if found {
			switch {
			case slot+need <= bs:
				// Entry fits inside the current block.
				if err := entry.Encode(win.Bytes()[slot:]); err != nil {
					return common.EIO
				}
				if err := f.vol.WriteBlock(addr, win.First()); err != nil {
					f.releaseOnFailure(entry)
					return common.EIO
				}
				f.vol.Flush(addr)

			case next != block.BlockEOF:
				// Free slot straddles into the already-linked successor;
				// both halves are loaded, write across them.
				if err := entry.Encode(win.Bytes()[slot:]); err != nil {
					return common.EIO
				}
				if err := f.vol.WriteBlock(addr, win.First()); err != nil {
					f.releaseOnFailure(entry)
					return common.EIO
				}
				if err := f.vol.WriteBlock(next, win.Second()); err != nil {
					return common.EIO
				}
				f.vol.Flush(addr)
				f.vol.Flush(next)

			default:
				// Free slot crosses the end of the last chain block;
				// allocate and link one more block before writing.
				grown, err := f.vol.FindFreeBlock(0)
				if err != nil {
					return common.EIO
				}
				if grown == 0 {
					return common.ENOSPC
				}
				if err := f.vol.SetNextBlock(addr, grown); err != nil {
					return common.EIO
				}
				if err := f.vol.SetNextBlock(grown, block.BlockEOF); err != nil {
					f.vol.SetNextBlock(addr, block.BlockEOF)
					return common.EIO
				}
				win.ZeroSecond()
				if err := entry.Encode(win.Bytes()[slot:]); err != nil {
					return common.EIO
				}
				if err := f.vol.WriteBlock(addr, win.First()); err != nil {
					return common.EIO
				}
				if err := f.vol.WriteBlock(grown, win.Second()); err != nil {
					return common.EIO
				}
				f.vol.Flush(addr)
				f.vol.Flush(grown)
			}

			// Parent header bookkeeping. A failure here is tolerated: the
			// entry is already persisted and discoverable, only the cached
			// size/mtime lag behind.
			hb := win.First()
			if err := f.vol.ReadBlock(parent.Block, hb); err != nil {
				return nil
			}
			hdr := dirent.DecodeDirHeader(hb)
			hdr.SizeBytes += uint64(need)
			hdr.SizeEntries++
			hdr.AccessTime = now
			hdr.ModTime = now
			hdr.Encode(hb)
			f.vol.WriteBlock(parent.Block, hb)
			f.vol.Flush(parent.Block)
			return nil
		}

		if next == block.BlockEOF {
			// Chain exhausted without a free entry. Growing the chain from
			// here is not implemented.
			log.WithField("block", addr).Error("directory chain full, extension not implemented")
			return common.ENOSYS
		}

		win.Slide()
		addr = next
		next, err = f.vol.NextBlock(addr)
		if err != nil || next == block.BlockFree {
			return common.EIO
		}
		if next != block.BlockEOF {
			if err := f.vol.ReadBlock(next, win.Second()); err != nil {
				return common.EIO
			}
		} else {
			win.ZeroSecond()
		}
		off = slot - bs
	}
}
