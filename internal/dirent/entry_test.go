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

package dirent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryEncodeDecode(t *testing.T) {
	t.Parallel()

	e := &Entry{
		EntrySize:   EntryHeaderSize + 8,
		Flags:       FlagValid,
		Permissions: 0o644,
		Owner:       1000,
		Group:       1000,
		Size:        4096,
		AccessTime:  1700000001,
		CreateTime:  1700000002,
		ModTime:     1700000003,
		Block:       42,
		Name:        "file.txt",
	}
	e.SetType(TypeFile)

	buf := make([]byte, e.EntrySize)
	require.NoError(t, e.Encode(buf))

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, e, got)
	assert.True(t, got.Valid())
	assert.True(t, got.IsFile())
}

func TestEntryTypeBits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		typ  uint8
		is   func(*Entry) bool
	}{
		{"file", TypeFile, (*Entry).IsFile},
		{"softlink", TypeSoftLink, (*Entry).IsSymlink},
		{"dir", TypeDir, (*Entry).IsDir},
		{"hardlink", TypeHardLink, (*Entry).IsHardLink},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := &Entry{Flags: FlagValid}
			e.SetType(tt.typ)
			assert.Equal(t, tt.typ, e.Type())
			assert.True(t, tt.is(e))
			// Type selection must leave the validity bit alone.
			assert.True(t, e.Valid())
		})
	}
}

func TestValidityIsMaskedBit(t *testing.T) {
	t.Parallel()

	// A nonzero flag byte with a clear validity bit is still a free slot.
	e := &Entry{Flags: TypeDir << TypeShift}
	assert.False(t, e.Valid())
	e.Flags |= FlagValid
	assert.True(t, e.Valid())
}

func TestEncodeRejectsSizeMismatch(t *testing.T) {
	t.Parallel()

	e := &Entry{EntrySize: EntryHeaderSize, Name: "x"}
	assert.Error(t, e.Encode(make([]byte, 128)))
}

func TestDecodeRejectsCorruptSize(t *testing.T) {
	t.Parallel()

	buf := make([]byte, EntryHeaderSize)
	buf[0] = 10 // size below the header width
	_, err := Decode(buf)
	assert.Error(t, err)

	_, err = Decode(buf[:8])
	assert.Error(t, err)
}

func TestFileHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	buf := make([]byte, FileHeaderSize)
	(&FileHeader{RefCount: 3, Size: 9000}).Encode(buf)
	got := DecodeFileHeader(buf)
	assert.Equal(t, uint64(3), got.RefCount)
	assert.Equal(t, uint64(9000), got.Size)
}

func TestDirHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	buf := make([]byte, DirHeaderSize)
	hdr := &DirHeader{
		AccessTime:  1700000001,
		CreateTime:  1700000002,
		ModTime:     1700000003,
		SizeBytes:   DirHeaderSize + 100,
		SizeEntries: 2,
	}
	hdr.Encode(buf)
	assert.Equal(t, hdr, DecodeDirHeader(buf))
}

func TestWindowStraddlingEntry(t *testing.T) {
	t.Parallel()

	const bs = 512
	win := NewWindow(make([]byte, 2*bs), bs)

	name := strings.Repeat("n", 100)
	e := &Entry{
		EntrySize: EntryHeaderSize + uint16(len(name)),
		Flags:     FlagValid,
		Block:     7,
		Name:      name,
	}
	// Start close enough to the boundary that the name spills into the
	// second block.
	off := bs - EntryHeaderSize - 10
	require.NoError(t, e.Encode(win.Bytes()[off:]))

	got, err := win.EntryAt(off)
	require.NoError(t, err)
	assert.Equal(t, name, got.Name)
	assert.Equal(t, uint64(7), got.Block)
}

func TestWindowSlide(t *testing.T) {
	t.Parallel()

	const bs = 512
	buf := make([]byte, 2*bs)
	for i := range buf {
		buf[i] = byte(i / bs) // first block zeros, second block ones
	}
	win := NewWindow(buf, bs)
	win.Slide()
	assert.Equal(t, byte(1), win.First()[0])
	assert.Equal(t, byte(1), win.First()[bs-1])

	win.ZeroSecond()
	assert.Equal(t, byte(0), win.Second()[0])
}

func TestFindSlotFirstFit(t *testing.T) {
	t.Parallel()

	const bs = 512
	win := NewWindow(make([]byte, 2*bs), bs)

	writeRecord := func(off, size int, valid bool) {
		e := &Entry{
			EntrySize: uint16(size),
			Name:      strings.Repeat("a", size-EntryHeaderSize),
		}
		if valid {
			e.Flags = FlagValid
		}
		require.NoError(t, e.Encode(win.Bytes()[off:]))
	}

	// Layout from DirHeaderSize: valid(80), freed(100), valid(80), tail.
	writeRecord(DirHeaderSize, 80, true)
	writeRecord(DirHeaderSize+80, 100, false)
	writeRecord(DirHeaderSize+180, 80, true)

	// Small request reuses the freed footprint.
	slot, found, err := win.FindSlot(DirHeaderSize, 90)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, DirHeaderSize+80, slot)

	// Too big for the freed record, lands in the uninitialized tail.
	slot, found, err = win.FindSlot(DirHeaderSize, 120)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, DirHeaderSize+260, slot)
}

func TestFindSlotRunsPastBlock(t *testing.T) {
	t.Parallel()

	const bs = 512
	win := NewWindow(make([]byte, 2*bs), bs)

	// Fill the first block with valid records so the scan crosses into the
	// second block width.
	off := 0
	for off < bs {
		size := 128
		e := &Entry{
			EntrySize: uint16(size),
			Flags:     FlagValid,
			Name:      strings.Repeat("b", size-EntryHeaderSize),
		}
		require.NoError(t, e.Encode(win.Bytes()[off:]))
		off += size
	}

	cursor, found, err := win.FindSlot(0, 70)
	require.NoError(t, err)
	assert.False(t, found)
	assert.GreaterOrEqual(t, cursor, bs)
}

func TestFindSlotCorruptZeroSizeEntry(t *testing.T) {
	t.Parallel()

	const bs = 512
	win := NewWindow(make([]byte, 2*bs), bs)
	// Valid flag with a zero stored size cannot be advanced over.
	win.Bytes()[2] = FlagValid

	_, _, err := win.FindSlot(0, 70)
	assert.Error(t, err)
}
