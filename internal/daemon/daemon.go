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

// Package daemon is the lxfs volume daemon. It owns the mount table and
// serves engine requests over a Unix socket, serializing requests per
// volume so the engine never sees concurrent access to one image.
package daemon

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	logrus "github.com/sirupsen/logrus"

	"lxfs/internal/common"
	"lxfs/internal/dirent"
	"lxfs/internal/fs"
	"lxfs/internal/mount"
)

func init() {
	// Default logging to discard until explicitly enabled via settings
	logrus.SetOutput(io.Discard)
}

// Daemon serves engine requests for mounted lxfs volumes
type Daemon struct {
	ipcServer *Server
	logFile   *os.File
	stopCh    chan struct{}
	lock      *flock.Flock
	mounts    *mount.Table

	// LogLevel sets the logging level: trace, debug, info, warn, off (default: off)
	LogLevel string
}

// New creates a new daemon instance
func New() *Daemon {
	return &Daemon{
		stopCh: make(chan struct{}),
		mounts: mount.NewTable(),
	}
}

// Run starts the daemon and blocks until stopped
func (d *Daemon) Run() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	settings, err := LoadSettings()
	if err != nil {
		return err
	}
	if d.LogLevel == "" {
		d.LogLevel = settings.Logging
	}

	// Acquire exclusive lock
	d.lock = flock.New(LockPath())
	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another daemon instance is already running")
	}
	defer d.lock.Unlock()

	if err := d.setupLogging(); err != nil {
		return err
	}
	defer func() {
		if d.logFile != nil {
			d.logFile.Close()
		}
	}()

	if err := d.writePidFile(); err != nil {
		return err
	}
	defer d.removePidFile()

	logrus.WithField("pid", os.Getpid()).Info("daemon started")

	// Mount volumes preconfigured in settings. A failing image is skipped,
	// not fatal.
	for _, spec := range settings.Mounts {
		if _, err := d.mounts.Mount(spec.Name, spec.Device); err != nil {
			logrus.WithFields(logrus.Fields{
				"name":   spec.Name,
				"device": spec.Device,
			}).WithError(err).Warn("startup mount failed")
		} else {
			logrus.WithField("name", spec.Name).Info("mounted")
		}
	}
	defer d.mounts.CloseAll()

	d.ipcServer = NewServer(d.handleRequest)
	if err := d.ipcServer.Start(); err != nil {
		return err
	}
	logrus.WithField("socket", SocketPath()).Info("IPC server started")
	defer d.ipcServer.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logrus.WithField("signal", sig.String()).Info("shutting down")
	case <-d.stopCh:
		logrus.Info("stop requested, shutting down")
	}

	return nil
}

func (d *Daemon) setupLogging() error {
	level := strings.ToLower(d.LogLevel)
	if level == "" || level == "off" || level == "none" {
		logrus.SetOutput(io.Discard)
		return nil
	}

	logFile, err := os.OpenFile(LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	d.logFile = logFile
	logrus.SetOutput(logFile)

	switch level {
	case "trace":
		logrus.SetLevel(logrus.TraceLevel)
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
	return nil
}

func (d *Daemon) writePidFile() error {
	return os.WriteFile(PidPath(), []byte(strconv.Itoa(os.Getpid())), 0600)
}

func (d *Daemon) removePidFile() {
	os.Remove(PidPath())
}

// GetPID reads the daemon PID from file
func GetPID() (int, error) {
	data, err := os.ReadFile(PidPath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}

// handleRequest processes an IPC request
func (d *Daemon) handleRequest(req *Request) *Response {
	switch req.Type {
	case RequestMount:
		return d.handleMount(req)
	case RequestUnmount:
		return d.handleUnmount(req)
	case RequestMounts:
		return d.handleMounts()
	case RequestOpen:
		return d.handleOpen(req)
	case RequestCreate:
		return d.handleCreate(req)
	case RequestReadDir:
		return d.handleReadDir(req)
	case RequestStatus:
		return d.handleStatus()
	case RequestStop:
		return d.handleStop()
	default:
		return &Response{Success: false, Error: "unknown request type"}
	}
}

func (d *Daemon) handleMount(req *Request) *Response {
	if req.Name == "" || req.Device == "" {
		return &Response{Success: false, Error: "mount requires name and device"}
	}
	m, err := d.mounts.Mount(req.Name, req.Device)
	if err != nil {
		return &Response{Success: false, Error: err.Error()}
	}
	logrus.WithFields(logrus.Fields{"name": req.Name, "device": req.Device}).Info("mounted")
	return &Response{Success: true, Mounts: []MountStatus{mountStatus(m)}}
}

func (d *Daemon) handleUnmount(req *Request) *Response {
	if err := d.mounts.Unmount(req.Name); err != nil {
		return &Response{Success: false, Error: err.Error()}
	}
	logrus.WithField("name", req.Name).Info("unmounted")
	return &Response{Success: true}
}

func (d *Daemon) handleMounts() *Response {
	list := d.mounts.List()
	out := make([]MountStatus, 0, len(list))
	for _, m := range list {
		out = append(out, mountStatus(m))
	}
	return &Response{Success: true, Mounts: out}
}

// handleOpen runs the open engine against the named mount. Engine failures
// come back as negative errno values, an unknown mount as plain EIO.
func (d *Daemon) handleOpen(req *Request) *Response {
	m := d.mounts.Find(req.Name)
	if m == nil {
		return &Response{Success: false, Error: "device not mounted", Errno: common.ErrnoCode(common.EIO)}
	}

	var entry *dirent.Entry
	var finalPath string
	err := m.WithLock(func(eng *fs.FS) error {
		var err error
		entry, finalPath, err = eng.Open(fs.OpenRequest{
			Path:  req.Path,
			Flags: req.Flags,
			Mode:  req.Mode,
			Umask: req.Umask,
			Owner: req.Uid,
			Group: req.Gid,
		})
		return err
	})
	if err != nil {
		return &Response{Success: false, Error: err.Error(), Errno: common.ErrnoCode(err), Path: finalPath}
	}
	return &Response{Success: true, Path: finalPath, Entry: entryInfo(entry)}
}

func (d *Daemon) handleCreate(req *Request) *Response {
	m := d.mounts.Find(req.Name)
	if m == nil {
		return &Response{Success: false, Error: "device not mounted", Errno: common.ErrnoCode(common.EIO)}
	}

	kind, err := parseKind(req.Kind)
	if err != nil {
		return &Response{Success: false, Error: err.Error(), Errno: common.ErrnoCode(common.EINVAL)}
	}

	var entry *dirent.Entry
	err = m.WithLock(func(eng *fs.FS) error {
		cr := fs.CreateRequest{
			Path:   req.Path,
			Kind:   kind,
			Perm:   req.Mode,
			Owner:  req.Uid,
			Group:  req.Gid,
			Target: req.Target,
		}
		if kind == fs.KindHardLink {
			// Resolve the link source to its chain head first.
			src, err := eng.Resolve(req.Target)
			if err != nil {
				return err
			}
			if src.IsDir() {
				return common.EISDIR
			}
			cr.SourceBlock = src.Block
		}
		var err error
		entry, err = eng.Create(cr)
		return err
	})
	if err != nil {
		return &Response{Success: false, Error: err.Error(), Errno: common.ErrnoCode(err)}
	}
	return &Response{Success: true, Path: req.Path, Entry: entryInfo(entry)}
}

func (d *Daemon) handleReadDir(req *Request) *Response {
	m := d.mounts.Find(req.Name)
	if m == nil {
		return &Response{Success: false, Error: "device not mounted", Errno: common.ErrnoCode(common.EIO)}
	}

	var entries []*dirent.Entry
	err := m.WithLock(func(eng *fs.FS) error {
		var err error
		entries, err = eng.ReadDir(req.Path)
		return err
	})
	if err != nil {
		return &Response{Success: false, Error: err.Error(), Errno: common.ErrnoCode(err)}
	}

	out := make([]EntryInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, *entryInfo(e))
	}
	return &Response{Success: true, Entries: out}
}

func (d *Daemon) handleStatus() *Response {
	return &Response{Success: true, PID: os.Getpid()}
}

func (d *Daemon) handleStop() *Response {
	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}
	return &Response{Success: true}
}

func mountStatus(m *mount.Mount) MountStatus {
	sb := m.Volume.Superblock()
	free, _ := m.Volume.CountFreeBlocks()
	return MountStatus{
		Name:       m.Name,
		Device:     m.DevicePath,
		BlockSize:  sb.BlockSize,
		Blocks:     sb.TotalBlocks,
		FreeBlocks: free,
		Label:      sb.Label,
	}
}

func entryInfo(e *dirent.Entry) *EntryInfo {
	return &EntryInfo{
		Name:        e.Name,
		Type:        typeName(e),
		Permissions: e.Permissions,
		Owner:       e.Owner,
		Group:       e.Group,
		Size:        e.Size,
		Block:       e.Block,
		AccessTime:  e.AccessTime,
		CreateTime:  e.CreateTime,
		ModTime:     e.ModTime,
	}
}

func typeName(e *dirent.Entry) string {
	switch e.Type() {
	case dirent.TypeDir:
		return "dir"
	case dirent.TypeSoftLink:
		return "symlink"
	case dirent.TypeHardLink:
		return "hardlink"
	default:
		return "file"
	}
}

func parseKind(s string) (fs.CreateKind, error) {
	switch s {
	case "file", "":
		return fs.KindRegular, nil
	case "dir":
		return fs.KindDirectory, nil
	case "symlink":
		return fs.KindSymlink, nil
	case "hardlink":
		return fs.KindHardLink, nil
	default:
		return 0, fmt.Errorf("unknown create kind %q", s)
	}
}
