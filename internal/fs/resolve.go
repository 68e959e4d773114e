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
	"fmt"

	"lxfs/internal/block"
	"lxfs/internal/common"
	"lxfs/internal/dirent"
)

// rootEntry synthesizes the directory entry for the volume root, which has
// no containing entry on disk. Timestamps and size come from the root
// directory header; the root is world-accessible and owned by uid/gid 0.
func (f *FS) rootEntry() (*dirent.Entry, error) {
	bs := int(f.vol.BlockSize())
	buf := f.vol.Scratch()[:bs]
	if err := f.vol.ReadBlock(f.vol.RootBlock(), buf); err != nil {
		return nil, fmt.Errorf("root directory unreadable: %w", common.EIO)
	}
	hdr := dirent.DecodeDirHeader(buf)
	e := &dirent.Entry{
		EntrySize:   dirent.EntryHeaderSize + 1,
		Flags:       dirent.FlagValid,
		Permissions: dirent.PermMask,
		Size:        hdr.SizeBytes,
		AccessTime:  hdr.AccessTime,
		CreateTime:  hdr.CreateTime,
		ModTime:     hdr.ModTime,
		Block:       f.vol.RootBlock(),
		Name:        "/",
	}
	e.SetType(dirent.TypeDir)
	return e, nil
}

// scanDir walks the entry stream of a directory chain, calling fn for every
// valid entry. fn returns true to stop the walk. The scan ends at the first
// zero-sized record (uninitialized tail space) or at the end of the chain.
func (f *FS) scanDir(dirBlock uint64, fn func(e *dirent.Entry) bool) error {
	bs := int(f.vol.BlockSize())
	win := dirent.NewWindow(f.vol.Scratch(), bs)

	addr := dirBlock
	if err := f.vol.ReadBlock(addr, win.First()); err != nil {
		return fmt.Errorf("directory read failed: %w", common.EIO)
	}
	next, err := f.vol.NextBlock(addr)
	if err != nil || next == block.BlockFree {
		return fmt.Errorf("corrupt directory chain at block %d: %w", addr, common.EIO)
	}
	if next != block.BlockEOF {
		if err := f.vol.ReadBlock(next, win.Second()); err != nil {
			return fmt.Errorf("directory read failed: %w", common.EIO)
		}
	} else {
		win.ZeroSecond()
	}

	off := dirent.DirHeaderSize
	for {
		for off < bs {
			size, flags := win.Slot(off)
			if size == 0 {
				return nil
			}
			if flags&dirent.FlagValid != 0 {
				e, err := win.EntryAt(off)
				if err != nil {
					return fmt.Errorf("corrupt directory entry: %w", common.EIO)
				}
				if fn(e) {
					return nil
				}
			}
			off += size
		}

		if next == block.BlockEOF {
			return nil
		}
		win.Slide()
		addr = next
		next, err = f.vol.NextBlock(addr)
		if err != nil || next == block.BlockFree {
			return fmt.Errorf("corrupt directory chain at block %d: %w", addr, common.EIO)
		}
		if next != block.BlockEOF {
			if err := f.vol.ReadBlock(next, win.Second()); err != nil {
				return fmt.Errorf("directory read failed: %w", common.EIO)
			}
		} else {
			win.ZeroSecond()
		}
		off -= bs
	}
}

// lookupChild finds the named entry in the directory rooted at dirBlock.
func (f *FS) lookupChild(dirBlock uint64, name string) (*dirent.Entry, error) {
	var found *dirent.Entry
	err := f.scanDir(dirBlock, func(e *dirent.Entry) bool {
		if e.Name == name {
			found = e
			return true
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, common.ENOENT
	}
	return found, nil
}

// Resolve walks an absolute path from the volume root to its directory
// entry, one directory scan per component.
func (f *FS) Resolve(path string) (*dirent.Entry, error) {
	cur, err := f.rootEntry()
	if err != nil {
		return nil, err
	}
	for _, part := range common.SplitPath(path) {
		if !cur.IsDir() {
			return nil, common.ENOTDIR
		}
		cur, err = f.lookupChild(cur.Block, part)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// ParentOf resolves all but the last path component.
func (f *FS) ParentOf(path string) (*dirent.Entry, error) {
	return f.Resolve(common.ParentPath(path))
}

// ReadDir lists the valid entries of the directory at path.
func (f *FS) ReadDir(path string) ([]*dirent.Entry, error) {
	dir, err := f.Resolve(path)
	if err != nil {
		return nil, err
	}
	if !dir.IsDir() {
		return nil, common.ENOTDIR
	}
	var entries []*dirent.Entry
	err = f.scanDir(dir.Block, func(e *dirent.Entry) bool {
		entries = append(entries, e)
		return false
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
