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
	"time"

	"github.com/google/uuid"

	"lxfs/internal/device"
	"lxfs/internal/dirent"
)

// FormatOptions configures mkfs.
type FormatOptions struct {
	BlockSize uint32 // defaults to 4096
	Label     string
}

// Format writes a fresh lxfs layout onto dev: superblock, chain table and
// an empty root directory. Returns the opened volume.
func Format(dev device.Device, opts FormatOptions) (*Volume, error) {
	bs := opts.BlockSize
	if bs == 0 {
		bs = 4096
	}
	if !validBlockSize(bs) {
		return nil, fmt.Errorf("invalid block size %d", bs)
	}
	if len(opts.Label) > labelSize {
		return nil, fmt.Errorf("label longer than %d bytes", labelSize)
	}

	total := uint64(dev.Size()) / uint64(bs)
	tableBlocks := (total*8 + uint64(bs) - 1) / uint64(bs)
	rootBlock := 1 + tableBlocks
	if total < rootBlock+1 {
		return nil, fmt.Errorf("device too small: %d blocks of %d bytes", total, bs)
	}

	sb := &Superblock{
		BlockSize:   bs,
		TotalBlocks: total,
		TableStart:  1,
		TableBlocks: tableBlocks,
		RootBlock:   rootBlock,
		UUID:        uuid.New(),
		Label:       opts.Label,
	}

	// Chain table: superblock and table blocks reserved, root terminated,
	// everything else free.
	blockBuf := make([]byte, bs)
	for tb := uint64(0); tb < tableBlocks; tb++ {
		for i := range blockBuf {
			blockBuf[i] = 0
		}
		first := tb * (uint64(bs) / 8)
		for i := uint64(0); i < uint64(bs)/8; i++ {
			addr := first + i
			if addr >= total {
				break
			}
			switch {
			case addr < rootBlock:
				binary.LittleEndian.PutUint64(blockBuf[i*8:], BlockReserved)
			case addr == rootBlock:
				binary.LittleEndian.PutUint64(blockBuf[i*8:], BlockEOF)
			}
		}
		if err := dev.WriteAt(blockBuf, int64(1+tb)*int64(bs)); err != nil {
			return nil, fmt.Errorf("failed to write chain table: %w", err)
		}
	}

	// Root directory header.
	for i := range blockBuf {
		blockBuf[i] = 0
	}
	now := time.Now().Unix()
	hdr := &dirent.DirHeader{
		AccessTime:  now,
		CreateTime:  now,
		ModTime:     now,
		SizeBytes:   dirent.DirHeaderSize,
		SizeEntries: 0,
	}
	hdr.Encode(blockBuf)
	if err := dev.WriteAt(blockBuf, int64(rootBlock)*int64(bs)); err != nil {
		return nil, fmt.Errorf("failed to write root directory: %w", err)
	}

	// Superblock last, so a half-formatted image never validates.
	for i := range blockBuf {
		blockBuf[i] = 0
	}
	sb.encode(blockBuf)
	if err := dev.WriteAt(blockBuf, 0); err != nil {
		return nil, fmt.Errorf("failed to write superblock: %w", err)
	}
	if err := dev.Sync(); err != nil {
		return nil, fmt.Errorf("failed to flush format: %w", err)
	}

	return Open(dev)
}
