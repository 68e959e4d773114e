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

// Package dirent implements the lxfs directory entry codec: fixed 64-byte
// entry headers followed by an unpadded name, packed back-to-back after the
// directory header. Entries are laid out independently of block boundaries,
// so a single entry may occupy the tail of one block and the head of the
// next block in the chain; the Window type models the two-block buffer used
// to read and write such entries.
package dirent

import (
	"encoding/binary"
	"fmt"
)

// On-disk sizes. The entry header layout is a compatibility contract; field
// order and widths must not change.
const (
	EntryHeaderSize = 64
	FileHeaderSize  = 16
	DirHeaderSize   = 48

	// MaxNameLen bounds entry names so every entry fits in at most two
	// consecutive blocks at the minimum block size.
	MaxNameLen = 255
)

// Entry flags: bit 0 is the validity bit, bits 1-2 select the type.
const (
	FlagValid uint8 = 0x01

	TypeShift = 1
	TypeMask  = 0x03

	TypeFile     uint8 = 0
	TypeSoftLink uint8 = 1
	TypeDir      uint8 = 2
	TypeHardLink uint8 = 3
)

// Permission bits, POSIX rwxrwxrwx.
const (
	PermOwnerR uint16 = 0o400
	PermOwnerW uint16 = 0o200
	PermOwnerX uint16 = 0o100
	PermGroupR uint16 = 0o040
	PermGroupW uint16 = 0o020
	PermGroupX uint16 = 0o010
	PermOtherR uint16 = 0o004
	PermOtherW uint16 = 0o002
	PermOtherX uint16 = 0o001

	PermMask uint16 = 0o777
)

// Entry is one decoded directory entry.
type Entry struct {
	EntrySize   uint16
	Flags       uint8
	Permissions uint16
	Owner       uint32
	Group       uint32
	Size        uint64
	AccessTime  int64
	CreateTime  int64
	ModTime     int64
	Block       uint64
	Name        string
}

// Valid reports whether the validity bit is set. An entry is free when this
// returns false; the check is on the masked bit, never on the whole flag
// byte.
func (e *Entry) Valid() bool {
	return e.Flags&FlagValid != 0
}

// Type returns the 2-bit type selector.
func (e *Entry) Type() uint8 {
	return (e.Flags >> TypeShift) & TypeMask
}

func (e *Entry) IsDir() bool      { return e.Type() == TypeDir }
func (e *Entry) IsFile() bool     { return e.Type() == TypeFile }
func (e *Entry) IsSymlink() bool  { return e.Type() == TypeSoftLink }
func (e *Entry) IsHardLink() bool { return e.Type() == TypeHardLink }

// SetType stores the type selector without disturbing the validity bit.
func (e *Entry) SetType(t uint8) {
	e.Flags = (e.Flags &^ (TypeMask << TypeShift)) | ((t & TypeMask) << TypeShift)
}

// Encode writes the entry into buf, which must hold EntrySize bytes.
// EntrySize must equal EntryHeaderSize + len(Name).
func (e *Entry) Encode(buf []byte) error {
	if int(e.EntrySize) != EntryHeaderSize+len(e.Name) {
		return fmt.Errorf("entry size %d does not match header + name %q", e.EntrySize, e.Name)
	}
	if len(buf) < int(e.EntrySize) {
		return fmt.Errorf("buffer too small for entry: %d < %d", len(buf), e.EntrySize)
	}
	binary.LittleEndian.PutUint16(buf[0:2], e.EntrySize)
	buf[2] = e.Flags
	buf[3] = 0
	binary.LittleEndian.PutUint16(buf[4:6], e.Permissions&PermMask)
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint32(buf[8:12], e.Owner)
	binary.LittleEndian.PutUint32(buf[12:16], e.Group)
	binary.LittleEndian.PutUint64(buf[16:24], e.Size)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(e.AccessTime))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(e.CreateTime))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(e.ModTime))
	binary.LittleEndian.PutUint64(buf[48:56], e.Block)
	binary.LittleEndian.PutUint64(buf[56:64], 0)
	copy(buf[EntryHeaderSize:e.EntrySize], e.Name)
	return nil
}

// Decode reads one entry from the start of buf. buf must contain the whole
// entry; callers scanning a block chain use a Window so entries straddling
// a block boundary are contiguous in memory.
func Decode(buf []byte) (*Entry, error) {
	if len(buf) < EntryHeaderSize {
		return nil, fmt.Errorf("buffer too small for entry header: %d", len(buf))
	}
	size := binary.LittleEndian.Uint16(buf[0:2])
	if size < EntryHeaderSize {
		return nil, fmt.Errorf("corrupt entry size %d", size)
	}
	if len(buf) < int(size) {
		return nil, fmt.Errorf("buffer too small for entry: %d < %d", len(buf), size)
	}
	e := &Entry{
		EntrySize:   size,
		Flags:       buf[2],
		Permissions: binary.LittleEndian.Uint16(buf[4:6]),
		Owner:       binary.LittleEndian.Uint32(buf[8:12]),
		Group:       binary.LittleEndian.Uint32(buf[12:16]),
		Size:        binary.LittleEndian.Uint64(buf[16:24]),
		AccessTime:  int64(binary.LittleEndian.Uint64(buf[24:32])),
		CreateTime:  int64(binary.LittleEndian.Uint64(buf[32:40])),
		ModTime:     int64(binary.LittleEndian.Uint64(buf[40:48])),
		Block:       binary.LittleEndian.Uint64(buf[48:56]),
		Name:        string(buf[EntryHeaderSize:size]),
	}
	return e, nil
}

// FileHeader sits at the start of a regular file's first block.
type FileHeader struct {
	RefCount uint64
	Size     uint64
}

// Encode writes the file header into the first FileHeaderSize bytes of buf.
func (h *FileHeader) Encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], h.RefCount)
	binary.LittleEndian.PutUint64(buf[8:16], h.Size)
}

// DecodeFileHeader reads a file header from the start of buf.
func DecodeFileHeader(buf []byte) *FileHeader {
	return &FileHeader{
		RefCount: binary.LittleEndian.Uint64(buf[0:8]),
		Size:     binary.LittleEndian.Uint64(buf[8:16]),
	}
}

// DirHeader sits at the start of a directory's first block; entries follow
// immediately after it.
type DirHeader struct {
	AccessTime  int64
	CreateTime  int64
	ModTime     int64
	Reserved    uint64
	SizeBytes   uint64
	SizeEntries uint64
}

// Encode writes the directory header into the first DirHeaderSize bytes of buf.
func (h *DirHeader) Encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(h.AccessTime))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.CreateTime))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.ModTime))
	binary.LittleEndian.PutUint64(buf[24:32], h.Reserved)
	binary.LittleEndian.PutUint64(buf[32:40], h.SizeBytes)
	binary.LittleEndian.PutUint64(buf[40:48], h.SizeEntries)
}

// DecodeDirHeader reads a directory header from the start of buf.
func DecodeDirHeader(buf []byte) *DirHeader {
	return &DirHeader{
		AccessTime:  int64(binary.LittleEndian.Uint64(buf[0:8])),
		CreateTime:  int64(binary.LittleEndian.Uint64(buf[8:16])),
		ModTime:     int64(binary.LittleEndian.Uint64(buf[16:24])),
		Reserved:    binary.LittleEndian.Uint64(buf[24:32]),
		SizeBytes:   binary.LittleEndian.Uint64(buf[32:40]),
		SizeEntries: binary.LittleEndian.Uint64(buf[40:48]),
	}
}
