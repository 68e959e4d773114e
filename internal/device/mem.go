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

package device

import "fmt"

// MemDevice is an in-memory volume image, used by tests to avoid file I/O.
type MemDevice struct {
	data []byte
}

var _ Device = (*MemDevice)(nil)

// NewMem creates an in-memory device of the given byte size.
func NewMem(size int64) *MemDevice {
	return &MemDevice{data: make([]byte, size)}
}

func (d *MemDevice) ReadAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > int64(len(d.data)) {
		return fmt.Errorf("device read out of range: off=%d len=%d size=%d", off, len(p), len(d.data))
	}
	copy(p, d.data[off:])
	return nil
}

func (d *MemDevice) WriteAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > int64(len(d.data)) {
		return fmt.Errorf("device write out of range: off=%d len=%d size=%d", off, len(p), len(d.data))
	}
	copy(d.data[off:], p)
	return nil
}

func (d *MemDevice) Sync() error { return nil }

func (d *MemDevice) Size() int64 { return int64(len(d.data)) }

func (d *MemDevice) Close() error { return nil }
