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

// Package block implements the lxfs block store: the superblock, the
// next-block chain table, per-block I/O and the first-fit free block scan.
// A Volume is an explicit handle bound to one device; there is no package
// level mount state.
package block

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Reserved block address sentinels stored in the chain table.
const (
	// BlockFree marks an unallocated block. Block 0 holds the superblock,
	// so a zero block address doubles as the "no block" value.
	BlockFree uint64 = 0
	// BlockEOF terminates a chain.
	BlockEOF uint64 = 0xFFFFFFFFFFFFFFFF
	// BlockReserved marks blocks outside the allocatable range (the
	// superblock and the chain table itself).
	BlockReserved uint64 = 0xFFFFFFFFFFFFFFFE
)

const (
	superblockMagic   = "LXFS"
	superblockVersion = 1
	superblockSize    = 96

	MinBlockSize = 512
	MaxBlockSize = 32768

	labelSize = 32
)

// Superblock describes one formatted volume. It occupies the start of
// block 0.
type Superblock struct {
	BlockSize   uint32
	TotalBlocks uint64
	TableStart  uint64
	TableBlocks uint64
	RootBlock   uint64
	UUID        uuid.UUID
	Label       string
}

func (sb *Superblock) encode(buf []byte) {
	copy(buf[0:4], superblockMagic)
	binary.LittleEndian.PutUint32(buf[4:8], superblockVersion)
	binary.LittleEndian.PutUint32(buf[8:12], sb.BlockSize)
	binary.LittleEndian.PutUint32(buf[12:16], 0)
	binary.LittleEndian.PutUint64(buf[16:24], sb.TotalBlocks)
	binary.LittleEndian.PutUint64(buf[24:32], sb.TableStart)
	binary.LittleEndian.PutUint64(buf[32:40], sb.TableBlocks)
	binary.LittleEndian.PutUint64(buf[40:48], sb.RootBlock)
	copy(buf[48:64], sb.UUID[:])
	label := buf[64 : 64+labelSize]
	for i := range label {
		label[i] = 0
	}
	copy(label, sb.Label)
}

func decodeSuperblock(buf []byte) (*Superblock, error) {
	if len(buf) < superblockSize {
		return nil, fmt.Errorf("superblock truncated: %d bytes", len(buf))
	}
	if string(buf[0:4]) != superblockMagic {
		return nil, fmt.Errorf("bad superblock magic %q", buf[0:4])
	}
	if v := binary.LittleEndian.Uint32(buf[4:8]); v != superblockVersion {
		return nil, fmt.Errorf("unsupported lxfs version %d", v)
	}
	sb := &Superblock{
		BlockSize:   binary.LittleEndian.Uint32(buf[8:12]),
		TotalBlocks: binary.LittleEndian.Uint64(buf[16:24]),
		TableStart:  binary.LittleEndian.Uint64(buf[24:32]),
		TableBlocks: binary.LittleEndian.Uint64(buf[32:40]),
		RootBlock:   binary.LittleEndian.Uint64(buf[40:48]),
	}
	copy(sb.UUID[:], buf[48:64])
	label := buf[64 : 64+labelSize]
	end := 0
	for end < len(label) && label[end] != 0 {
		end++
	}
	sb.Label = string(label[:end])

	if !validBlockSize(sb.BlockSize) {
		return nil, fmt.Errorf("invalid block size %d", sb.BlockSize)
	}
	if sb.RootBlock == 0 || sb.RootBlock >= sb.TotalBlocks {
		return nil, fmt.Errorf("root block %d outside volume of %d blocks", sb.RootBlock, sb.TotalBlocks)
	}
	return sb, nil
}

func validBlockSize(size uint32) bool {
	return size >= MinBlockSize && size <= MaxBlockSize && size&(size-1) == 0
}
