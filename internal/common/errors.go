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

package common

import (
	"errors"
	"syscall"
)

// Engine error codes mapped to syscall errors
var (
	ENOENT  = syscall.ENOENT  // No such file or directory
	EEXIST  = syscall.EEXIST  // File exists
	ENOTDIR = syscall.ENOTDIR // Not a directory
	EISDIR  = syscall.EISDIR  // Is a directory
	EACCES  = syscall.EACCES  // Permission denied
	ENOSPC  = syscall.ENOSPC  // No space left on device
	EIO     = syscall.EIO     // I/O error
	ENOSYS  = syscall.ENOSYS  // Function not implemented
	ELOOP   = syscall.ELOOP   // Too many levels of symbolic links
	EINVAL  = syscall.EINVAL  // Invalid argument
)

// ErrnoCode converts an error into the negative POSIX errno relayed over
// the wire. Errors that don't unwrap to a syscall.Errno report as -EIO,
// matching how the engine classifies unexpected device failures.
func ErrnoCode(err error) int {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return -int(errno)
	}
	return -int(EIO)
}

// Errno converts a negative wire code back into the matching error.
func Errno(code int) error {
	if code >= 0 {
		return nil
	}
	return syscall.Errno(-code)
}
