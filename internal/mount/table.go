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

// Package mount maintains the table of mounted lxfs volumes. The engine
// itself has no cross-request locking; each Mount carries the mutex the
// daemon uses to serialize requests per volume.
package mount

import (
	"fmt"
	"sort"
	"sync"

	"lxfs/internal/block"
	"lxfs/internal/device"
	"lxfs/internal/fs"
)

// Mount binds one device name to an open volume and its engine.
type Mount struct {
	Name       string
	DevicePath string
	Volume     *block.Volume
	FS         *fs.FS

	// mu serializes engine operations on this volume. The engine shares a
	// per-volume scratch buffer, so concurrent requests must be excluded.
	mu sync.Mutex
}

// WithLock runs fn with the mount's request lock held.
func (m *Mount) WithLock(fn func(*fs.FS) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.FS)
}

// Table is the mount table.
type Table struct {
	mu     sync.RWMutex
	mounts map[string]*Mount
}

// NewTable creates an empty mount table.
func NewTable() *Table {
	return &Table{mounts: make(map[string]*Mount)}
}

// Mount opens the volume image at devicePath and registers it under name.
func (t *Table) Mount(name, devicePath string) (*Mount, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.mounts[name]; ok {
		return nil, fmt.Errorf("device %s already mounted", name)
	}

	dev, err := device.Open(devicePath)
	if err != nil {
		return nil, err
	}
	vol, err := block.Open(dev)
	if err != nil {
		dev.Close()
		return nil, err
	}

	m := &Mount{
		Name:       name,
		DevicePath: devicePath,
		Volume:     vol,
		FS:         fs.New(vol),
	}
	t.mounts[name] = m
	return m, nil
}

// Unmount closes and removes the named mount.
func (t *Table) Unmount(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.mounts[name]
	if !ok {
		return fmt.Errorf("device %s is not mounted", name)
	}
	delete(t.mounts, name)

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Volume.Close()
}

// Find looks up a mount by device name; nil when not mounted.
func (t *Table) Find(name string) *Mount {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mounts[name]
}

// List returns the current mounts sorted by name.
func (t *Table) List() []*Mount {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Mount, 0, len(t.mounts))
	for _, m := range t.mounts {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CloseAll unmounts everything, used at daemon shutdown.
func (t *Table) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, m := range t.mounts {
		m.Volume.Close()
		delete(t.mounts, name)
	}
}
