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

import (
	"fmt"
	"os"

	"github.com/gofrs/flock"
)

// FileDevice is a volume image stored in a regular file. The image is
// exclusively locked for the device's lifetime so two engines can't mutate
// the same volume concurrently.
type FileDevice struct {
	f    *os.File
	lock *flock.Flock
	size int64
}

var _ Device = (*FileDevice)(nil)

// OpenFile opens an existing image file and takes its exclusive lock.
func OpenFile(path string) (*FileDevice, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("volume image not found: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock volume image: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("volume image %s is in use", path)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("failed to open volume image: %w", err)
	}

	return &FileDevice{f: f, lock: lock, size: info.Size()}, nil
}

// CreateFile creates a new image file of the given size and takes its lock.
func CreateFile(path string, size int64) (*FileDevice, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("volume image already exists: %s", path)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock volume image: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("volume image %s is in use", path)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("failed to create volume image: %w", err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		lock.Unlock()
		os.Remove(path)
		return nil, fmt.Errorf("failed to size volume image: %w", err)
	}

	return &FileDevice{f: f, lock: lock, size: size}, nil
}

func (d *FileDevice) ReadAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > d.size {
		return fmt.Errorf("device read out of range: off=%d len=%d size=%d", off, len(p), d.size)
	}
	if _, err := d.f.ReadAt(p, off); err != nil {
		return fmt.Errorf("device read error: %w", err)
	}
	return nil
}

func (d *FileDevice) WriteAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > d.size {
		return fmt.Errorf("device write out of range: off=%d len=%d size=%d", off, len(p), d.size)
	}
	if _, err := d.f.WriteAt(p, off); err != nil {
		return fmt.Errorf("device write error: %w", err)
	}
	return nil
}

func (d *FileDevice) Sync() error {
	if err := d.f.Sync(); err != nil {
		return fmt.Errorf("device sync error: %w", err)
	}
	return nil
}

func (d *FileDevice) Size() int64 {
	return d.size
}

func (d *FileDevice) Close() error {
	err := d.f.Close()
	if d.lock != nil {
		d.lock.Unlock()
		os.Remove(d.lock.Path())
	}
	return err
}
