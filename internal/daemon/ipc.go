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

package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"

	"lxfs/internal/util"
)

// Request types
const (
	RequestMount   = "mount"
	RequestUnmount = "unmount"
	RequestMounts  = "mounts"
	RequestOpen    = "open"
	RequestCreate  = "create"
	RequestReadDir = "readdir"
	RequestStatus  = "status"
	RequestStop    = "stop"
)

// Request represents an IPC request
type Request struct {
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`   // mount name (device label used by the caller)
	Device string `json:"device,omitempty"` // volume image path for mount requests
	Path   string `json:"path,omitempty"`   // path inside the volume

	// Open fields
	Flags uint32 `json:"flags,omitempty"`
	Mode  uint16 `json:"mode,omitempty"`
	Umask uint16 `json:"umask,omitempty"`

	// Create fields
	Kind   string `json:"kind,omitempty"` // "file", "dir", "symlink", "hardlink"
	Target string `json:"target,omitempty"`

	// Caller identity
	Uid uint32 `json:"uid"`
	Gid uint32 `json:"gid"`
}

// MountStatus represents a mount's status
type MountStatus struct {
	Name       string `json:"name"`
	Device     string `json:"device"`
	BlockSize  uint32 `json:"block_size"`
	Blocks     uint64 `json:"blocks"`
	FreeBlocks uint64 `json:"free_blocks,omitempty"`
	Label      string `json:"label,omitempty"`
}

// EntryInfo carries a directory entry over IPC.
type EntryInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "file", "dir", "symlink", "hardlink"
	Permissions uint16 `json:"permissions"`
	Owner       uint32 `json:"owner"`
	Group       uint32 `json:"group"`
	Size        uint64 `json:"size"`
	Block       uint64 `json:"block"`
	AccessTime  int64  `json:"access_time"`
	CreateTime  int64  `json:"create_time"`
	ModTime     int64  `json:"mod_time"`
}

// Response represents an IPC response
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Errno   int    `json:"errno,omitempty"` // negative errno on engine failures
	PID     int    `json:"pid,omitempty"`

	Path    string        `json:"path,omitempty"` // final path after symlink redirection
	Entry   *EntryInfo    `json:"entry,omitempty"`
	Entries []EntryInfo   `json:"entries,omitempty"`
	Mounts  []MountStatus `json:"mounts,omitempty"`
}

// Server is the IPC server
type Server struct {
	listener net.Listener
	handler  func(*Request) *Response
}

// NewServer creates a new IPC server
func NewServer(handler func(*Request) *Response) *Server {
	return &Server{handler: handler}
}

// Start starts the IPC server
func (s *Server) Start() error {
	os.Remove(SocketPath())

	listener, err := net.Listen("unix", SocketPath())
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}
	s.listener = listener

	os.Chmod(SocketPath(), 0600)

	go s.accept()

	return nil
}

// Stop stops the IPC server
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
		os.Remove(SocketPath())
	}
}

func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // Server stopped
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	decoder := json.NewDecoder(conn)
	var req Request
	if err := decoder.Decode(&req); err != nil {
		return
	}

	resp := s.handler(&req)

	encoder := json.NewEncoder(conn)
	encoder.Encode(resp)
}

// Client is the IPC client
type Client struct {
	conn net.Conn
}

// Connect connects to the daemon
func Connect() (*Client, error) {
	conn, err := net.Dial("unix", SocketPath())
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// ConnectWithRetry connects to the daemon, retrying while the socket is
// still coming up. Used right after spawning the daemon process.
func ConnectWithRetry(ctx context.Context) (*Client, error) {
	return util.RetryWithResult(ctx, Connect, util.ConnectRetryOptions(ctx)...)
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send sends a request and returns the response
func (c *Client) Send(req *Request) (*Response, error) {
	encoder := json.NewEncoder(c.conn)
	if err := encoder.Encode(req); err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(c.conn)
	var resp Response
	if err := decoder.Decode(&resp); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("daemon closed connection")
		}
		return nil, err
	}

	return &resp, nil
}

// Mount sends a mount request binding a volume image to a device name
func (c *Client) Mount(name, device string) (*Response, error) {
	return c.Send(&Request{
		Type:   RequestMount,
		Name:   name,
		Device: device,
	})
}

// Unmount sends an unmount request
func (c *Client) Unmount(name string) (*Response, error) {
	return c.Send(&Request{
		Type: RequestUnmount,
		Name: name,
	})
}

// Mounts lists the current mounts
func (c *Client) Mounts() ([]MountStatus, error) {
	resp, err := c.Send(&Request{Type: RequestMounts})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("mounts failed: %s", resp.Error)
	}
	return resp.Mounts, nil
}

// Open sends an open request against a mounted volume
func (c *Client) Open(name, path string, flags uint32, mode, umask uint16, uid, gid uint32) (*Response, error) {
	return c.Send(&Request{
		Type:  RequestOpen,
		Name:  name,
		Path:  path,
		Flags: flags,
		Mode:  mode,
		Umask: umask,
		Uid:   uid,
		Gid:   gid,
	})
}

// Create sends a create request against a mounted volume
func (c *Client) Create(name, path, kind string, mode uint16, target string, uid, gid uint32) (*Response, error) {
	return c.Send(&Request{
		Type:   RequestCreate,
		Name:   name,
		Path:   path,
		Kind:   kind,
		Mode:   mode,
		Target: target,
		Uid:    uid,
		Gid:    gid,
	})
}

// ReadDir lists the entries of a directory on a mounted volume
func (c *Client) ReadDir(name, path string) ([]EntryInfo, error) {
	resp, err := c.Send(&Request{
		Type: RequestReadDir,
		Name: name,
		Path: path,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("readdir failed: %s", resp.Error)
	}
	return resp.Entries, nil
}

// Status sends a status request
func (c *Client) Status() (*Response, error) {
	return c.Send(&Request{Type: RequestStatus})
}

// Stop sends a stop request
func (c *Client) Stop() (*Response, error) {
	return c.Send(&Request{Type: RequestStop})
}

// IsDaemonRunning checks if the daemon is running
func IsDaemonRunning() bool {
	client, err := Connect()
	if err != nil {
		return false
	}
	client.Close()
	return true
}
