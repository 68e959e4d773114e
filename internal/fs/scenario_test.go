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

package fs

import (
	"testing"

	. "github.com/onsi/gomega"

	"lxfs/internal/block"
	"lxfs/internal/common"
	"lxfs/internal/device"
	"lxfs/internal/dirent"
)

// End-to-end walk through a fresh volume: format, make a directory, create
// a file inside it through the open engine, then re-open it with the usual
// POSIX edge cases.
func TestVolumeLifecycle(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	dev := device.NewMem(64 * 4096)
	vol, err := block.Format(dev, block.FormatOptions{Label: "scenario"})
	g.Expect(err).NotTo(HaveOccurred())
	defer vol.Close()
	f := New(vol)

	const uid, gid = 1000, 1000

	// mkdir /dir1
	dir, err := f.Create(CreateRequest{
		Path:  "/dir1",
		Kind:  KindDirectory,
		Perm:  0o755,
		Owner: uid,
		Group: gid,
	})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(dir.IsDir()).To(BeTrue())
	g.Expect(dir.Permissions).To(Equal(uint16(0o755)))
	g.Expect(dir.Owner).To(Equal(uint32(uid)))

	// open("/dir1/file.txt", O_CREAT|O_WRONLY, 0644)
	file, path, err := f.Open(OpenRequest{
		Path:  "/dir1/file.txt",
		Flags: OpenWrite | OpenCreate,
		Mode:  0o644,
		Umask: 0o022,
		Owner: uid,
		Group: gid,
	})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(path).To(Equal("/dir1/file.txt"))
	g.Expect(file.IsFile()).To(BeTrue())
	g.Expect(file.Permissions).To(Equal(uint16(0o644)))
	g.Expect(file.Size).To(Equal(uint64(0)))

	// The new file is one terminated chain block with refcount 1.
	buf := make([]byte, vol.BlockSize())
	g.Expect(vol.ReadBlock(file.Block, buf)).To(Succeed())
	hdr := dirent.DecodeFileHeader(buf)
	g.Expect(hdr.RefCount).To(Equal(uint64(1)))
	g.Expect(hdr.Size).To(Equal(uint64(0)))
	next, err := vol.NextBlock(file.Block)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(next).To(Equal(block.BlockEOF))

	// Parent bookkeeping followed the insert.
	g.Expect(vol.ReadBlock(dir.Block, buf)).To(Succeed())
	dirHdr := dirent.DecodeDirHeader(buf)
	g.Expect(dirHdr.SizeEntries).To(Equal(uint64(1)))

	entries, err := f.ReadDir("/dir1")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(entries).To(HaveLen(1))
	g.Expect(entries[0].Name).To(Equal("file.txt"))

	// Exclusive re-create fails, plain re-open succeeds.
	_, _, err = f.Open(OpenRequest{
		Path:  "/dir1/file.txt",
		Flags: OpenWrite | OpenCreate | OpenExclusive,
		Mode:  0o644,
		Owner: uid, Group: gid,
	})
	g.Expect(err).To(MatchError(common.EEXIST))

	again, _, err := f.Open(OpenRequest{Path: "/dir1/file.txt", Flags: OpenRead, Owner: uid, Group: gid})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(again.Block).To(Equal(file.Block))

	// Directories can't be opened as files.
	_, _, err = f.Open(OpenRequest{Path: "/dir1", Flags: OpenRead, Owner: uid, Group: gid})
	g.Expect(err).To(MatchError(common.EISDIR))

	// Everything survives a remount.
	g.Expect(vol.Close()).To(Succeed())
	vol, err = block.Open(dev)
	g.Expect(err).NotTo(HaveOccurred())
	f = New(vol)
	got, err := f.Resolve("/dir1/file.txt")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(got.Block).To(Equal(file.Block))
}
