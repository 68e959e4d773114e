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

package block

import (
	"encoding/binary"
	"fmt"

	"lxfs/internal/device"
)

// Volume is the mutable state bound to one mounted filesystem instance.
// The scratch buffer is two block widths wide and is borrowed by the engine
// for boundary-spanning directory operations; a Volume therefore serves one
// request at a time (the daemon serializes per mount).
type Volume struct {
	dev     device.Device
	sb      *Superblock
	scratch []byte
}

// Open reads and validates the superblock and returns a volume handle.
func Open(dev device.Device) (*Volume, error) {
	buf := make([]byte, superblockSize)
	if err := dev.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("failed to read superblock: %w", err)
	}
	sb, err := decodeSuperblock(buf)
	if err != nil {
		return nil, err
	}
	if int64(sb.TotalBlocks)*int64(sb.BlockSize) > dev.Size() {
		return nil, fmt.Errorf("volume of %d blocks larger than device", sb.TotalBlocks)
	}
	return &Volume{
		dev:     dev,
		sb:      sb,
		scratch: make([]byte, 2*sb.BlockSize),
	}, nil
}

// Close closes the underlying device.
func (v *Volume) Close() error {
	return v.dev.Close()
}

func (v *Volume) BlockSize() uint32      { return v.sb.BlockSize }
func (v *Volume) TotalBlocks() uint64    { return v.sb.TotalBlocks }
func (v *Volume) RootBlock() uint64      { return v.sb.RootBlock }
func (v *Volume) Superblock() Superblock { return *v.sb }

// Scratch returns the volume's two-block scratch buffer.
func (v *Volume) Scratch() []byte {
	return v.scratch
}

// firstData is the first allocatable block address.
func (v *Volume) firstData() uint64 {
	return v.sb.TableStart + v.sb.TableBlocks
}

func (v *Volume) checkAddr(addr uint64) error {
	if addr == 0 || addr >= v.sb.TotalBlocks {
		return fmt.Errorf("block address %d outside volume of %d blocks", addr, v.sb.TotalBlocks)
	}
	return nil
}

// ReadBlock reads exactly one block into buf.
func (v *Volume) ReadBlock(addr uint64, buf []byte) error {
	if err := v.checkAddr(addr); err != nil {
		return err
	}
	if len(buf) != int(v.sb.BlockSize) {
		return fmt.Errorf("read buffer is %d bytes, block size is %d", len(buf), v.sb.BlockSize)
	}
	return v.dev.ReadAt(buf, int64(addr)*int64(v.sb.BlockSize))
}

// WriteBlock writes exactly one block from buf.
func (v *Volume) WriteBlock(addr uint64, buf []byte) error {
	if err := v.checkAddr(addr); err != nil {
		return err
	}
	if len(buf) != int(v.sb.BlockSize) {
		return fmt.Errorf("write buffer is %d bytes, block size is %d", len(buf), v.sb.BlockSize)
	}
	return v.dev.WriteAt(buf, int64(addr)*int64(v.sb.BlockSize))
}

// Flush commits previously written blocks to stable storage. Kept separate
// from WriteBlock so callers can batch logical writes before committing;
// the engine flushes after each logical step.
func (v *Volume) Flush(addr uint64) error {
	_ = addr
	return v.dev.Sync()
}

// tableOffset is the device byte offset of addr's chain table entry.
func (v *Volume) tableOffset(addr uint64) int64 {
	return int64(v.sb.TableStart)*int64(v.sb.BlockSize) + int64(addr)*8
}

// NextBlock follows the chain link of addr.
func (v *Volume) NextBlock(addr uint64) (uint64, error) {
	if err := v.checkAddr(addr); err != nil {
		return 0, err
	}
	var buf [8]byte
	if err := v.dev.ReadAt(buf[:], v.tableOffset(addr)); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// SetNextBlock rewrites the chain link of addr; used both to extend a chain
// and to release a block (value BlockFree).
func (v *Volume) SetNextBlock(addr, value uint64) error {
	if err := v.checkAddr(addr); err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	return v.dev.WriteAt(buf[:], v.tableOffset(addr))
}

// FindFreeBlock scans the chain table first-fit for an unallocated block,
// starting at hint. Returns 0 when the volume is exhausted.
func (v *Volume) FindFreeBlock(hint uint64) (uint64, error) {
	start := hint
	if start < v.firstData() {
		start = v.firstData()
	}
	buf := make([]byte, 8*256)
	for addr := start; addr < v.sb.TotalBlocks; {
		n := uint64(len(buf) / 8)
		if rest := v.sb.TotalBlocks - addr; rest < n {
			n = rest
		}
		chunk := buf[:n*8]
		if err := v.dev.ReadAt(chunk, v.tableOffset(addr)); err != nil {
			return 0, err
		}
		for i := uint64(0); i < n; i++ {
			if binary.LittleEndian.Uint64(chunk[i*8:]) == BlockFree {
				return addr + i, nil
			}
		}
		addr += n
	}
	return 0, nil
}

// CountFreeBlocks reports how many blocks are unallocated.
func (v *Volume) CountFreeBlocks() (uint64, error) {
	var free uint64
	buf := make([]byte, 8*256)
	for addr := v.firstData(); addr < v.sb.TotalBlocks; {
		n := uint64(len(buf) / 8)
		if rest := v.sb.TotalBlocks - addr; rest < n {
			n = rest
		}
		chunk := buf[:n*8]
		if err := v.dev.ReadAt(chunk, v.tableOffset(addr)); err != nil {
			return 0, err
		}
		for i := uint64(0); i < n; i++ {
			if binary.LittleEndian.Uint64(chunk[i*8:]) == BlockFree {
				free++
			}
		}
		addr += n
	}
	return free, nil
}
