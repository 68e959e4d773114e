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
	"encoding/binary"
	"fmt"
)

// Window is the two-block working buffer used when scanning a directory
// chain. The first half holds the block under the cursor, the second half
// holds the physically next block in the chain, so an entry straddling the
// boundary is contiguous in memory. Sliding discards the first block width
// and shifts the remainder down; the caller then loads the new successor
// into the second half and rebases its cursor by one block width.
type Window struct {
	buf       []byte
	blockSize int
}

// NewWindow wraps buf, which must hold at least two block widths.
func NewWindow(buf []byte, blockSize int) *Window {
	if len(buf) < 2*blockSize {
		panic(fmt.Sprintf("window buffer %d smaller than two blocks of %d", len(buf), blockSize))
	}
	return &Window{buf: buf[:2*blockSize], blockSize: blockSize}
}

// BlockSize returns the block width the window was built for.
func (w *Window) BlockSize() int {
	return w.blockSize
}

// First returns the first block half of the window.
func (w *Window) First() []byte {
	return w.buf[:w.blockSize]
}

// Second returns the second block half of the window.
func (w *Window) Second() []byte {
	return w.buf[w.blockSize:]
}

// Bytes returns the whole two-block buffer.
func (w *Window) Bytes() []byte {
	return w.buf
}

// Slide discards the first block width and shifts the second half down.
// Offsets into the window move down by one block width.
func (w *Window) Slide() {
	copy(w.buf, w.buf[w.blockSize:])
}

// ZeroSecond clears the second half, used before appending a fresh chain
// block.
func (w *Window) ZeroSecond() {
	second := w.Second()
	for i := range second {
		second[i] = 0
	}
}

// EntryAt decodes the entry starting at off. The entry may extend into the
// second half of the window.
func (w *Window) EntryAt(off int) (*Entry, error) {
	if off < 0 || off >= len(w.buf) {
		return nil, fmt.Errorf("entry offset %d outside window", off)
	}
	return Decode(w.buf[off:])
}

// Slot reads the stored size and flags of the record at off without
// decoding the rest.
func (w *Window) Slot(off int) (size int, flags uint8) {
	return int(binary.LittleEndian.Uint16(w.buf[off : off+2])), w.buf[off+2]
}

// FindSlot performs the first-fit free slot scan over the first block half,
// starting at off. A slot is reusable when its validity bit is clear AND its
// stored size is either zero (uninitialized tail space) or at least need, so
// the candidate fits in the freed footprint without further fragmenting.
//
// Returns (slot, true, nil) when a slot is found; (cursor, false, nil) when
// the scan ran past the first block half, where cursor is where the scan
// stopped (the caller slides the window and continues at cursor minus one
// block width). A valid entry with a zero stored size cannot be advanced
// over and reports an error.
func (w *Window) FindSlot(off, need int) (int, bool, error) {
	for off < w.blockSize {
		size, flags := w.Slot(off)
		if flags&FlagValid == 0 && (size == 0 || size >= need) {
			return off, true, nil
		}
		if size == 0 {
			return 0, false, fmt.Errorf("corrupt directory entry: valid entry with zero size at offset %d", off)
		}
		off += size
	}
	return off, false, nil
}
