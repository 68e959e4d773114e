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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lxfs/internal/block"
	"lxfs/internal/common"
	"lxfs/internal/device"
	"lxfs/internal/dirent"
)

func newTestFS(t *testing.T, blockSize uint32, blocks int64) *FS {
	t.Helper()
	dev := device.NewMem(blocks * int64(blockSize))
	vol, err := block.Format(dev, block.FormatOptions{BlockSize: blockSize})
	require.NoError(t, err)
	t.Cleanup(func() { vol.Close() })
	return New(vol)
}

func readFileHeader(t *testing.T, f *FS, addr uint64) *dirent.FileHeader {
	t.Helper()
	buf := make([]byte, f.vol.BlockSize())
	require.NoError(t, f.vol.ReadBlock(addr, buf))
	return dirent.DecodeFileHeader(buf)
}

func readDirHeader(t *testing.T, f *FS, addr uint64) *dirent.DirHeader {
	t.Helper()
	buf := make([]byte, f.vol.BlockSize())
	require.NoError(t, f.vol.ReadBlock(addr, buf))
	return dirent.DecodeDirHeader(buf)
}

func TestCreateFileInRoot(t *testing.T) {
	t.Parallel()

	f := newTestFS(t, 4096, 64)
	before, err := f.vol.CountFreeBlocks()
	require.NoError(t, err)

	entry, err := f.Create(CreateRequest{
		Path:  "/file.txt",
		Kind:  KindRegular,
		Perm:  0o644,
		Owner: 1000,
		Group: 1000,
	})
	require.NoError(t, err)
	assert.True(t, entry.IsFile())
	assert.Equal(t, uint16(0o644), entry.Permissions)
	assert.Equal(t, uint32(1000), entry.Owner)
	assert.Equal(t, uint64(0), entry.Size)

	// The file got one chain block holding its header.
	hdr := readFileHeader(t, f, entry.Block)
	assert.Equal(t, uint64(1), hdr.RefCount)
	assert.Equal(t, uint64(0), hdr.Size)
	next, err := f.vol.NextBlock(entry.Block)
	require.NoError(t, err)
	assert.Equal(t, block.BlockEOF, next)

	after, err := f.vol.CountFreeBlocks()
	require.NoError(t, err)
	assert.Equal(t, before-1, after)

	// Parent bookkeeping.
	root := readDirHeader(t, f, f.vol.RootBlock())
	assert.Equal(t, uint64(1), root.SizeEntries)
	assert.Equal(t, uint64(dirent.DirHeaderSize+dirent.EntryHeaderSize+len("file.txt")), root.SizeBytes)

	got, err := f.Resolve("/file.txt")
	require.NoError(t, err)
	assert.Equal(t, entry.Block, got.Block)
}

func TestCreateDuplicateName(t *testing.T) {
	t.Parallel()

	f := newTestFS(t, 4096, 64)
	_, err := f.Create(CreateRequest{Path: "/f.txt", Kind: KindRegular, Perm: 0o644})
	require.NoError(t, err)

	before, err := f.vol.CountFreeBlocks()
	require.NoError(t, err)

	// A second create under the same name must not insert a second entry,
	// whatever kind it asks for.
	_, err = f.Create(CreateRequest{Path: "/f.txt", Kind: KindRegular, Perm: 0o644})
	assert.ErrorIs(t, err, common.EEXIST)
	_, err = f.Create(CreateRequest{Path: "/f.txt", Kind: KindDirectory, Perm: 0o755})
	assert.ErrorIs(t, err, common.EEXIST)

	entries, err := f.ReadDir("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "f.txt", entries[0].Name)

	root := readDirHeader(t, f, f.vol.RootBlock())
	assert.Equal(t, uint64(1), root.SizeEntries)

	// Nothing was allocated for the rejected creates.
	after, err := f.vol.CountFreeBlocks()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCreateDirectory(t *testing.T) {
	t.Parallel()

	f := newTestFS(t, 4096, 64)
	entry, err := f.Create(CreateRequest{
		Path: "/dir",
		Kind: KindDirectory,
		Perm: 0o755,
	})
	require.NoError(t, err)
	assert.True(t, entry.IsDir())

	hdr := readDirHeader(t, f, entry.Block)
	assert.Equal(t, uint64(dirent.DirHeaderSize), hdr.SizeBytes)
	assert.Equal(t, uint64(0), hdr.SizeEntries)

	entries, err := f.ReadDir("/dir")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateNested(t *testing.T) {
	t.Parallel()

	f := newTestFS(t, 4096, 64)
	_, err := f.Create(CreateRequest{Path: "/a", Kind: KindDirectory, Perm: 0o755})
	require.NoError(t, err)
	_, err = f.Create(CreateRequest{Path: "/a/b", Kind: KindDirectory, Perm: 0o755})
	require.NoError(t, err)
	_, err = f.Create(CreateRequest{Path: "/a/b/c.txt", Kind: KindRegular, Perm: 0o644})
	require.NoError(t, err)

	entries, err := f.ReadDir("/a/b")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c.txt", entries[0].Name)

	hdr := readDirHeader(t, f, mustResolve(t, f, "/a/b").Block)
	assert.Equal(t, uint64(1), hdr.SizeEntries)
}

func mustResolve(t *testing.T, f *FS, path string) *dirent.Entry {
	t.Helper()
	e, err := f.Resolve(path)
	require.NoError(t, err)
	return e
}

func TestCreateSymlink(t *testing.T) {
	t.Parallel()

	f := newTestFS(t, 4096, 64)
	entry, err := f.Create(CreateRequest{
		Path:   "/link",
		Kind:   KindSymlink,
		Perm:   0o777,
		Target: "/some/target",
	})
	require.NoError(t, err)
	assert.True(t, entry.IsSymlink())
	assert.Equal(t, uint64(len("/some/target")), entry.Size)

	buf := make([]byte, f.vol.BlockSize())
	require.NoError(t, f.vol.ReadBlock(entry.Block, buf))
	assert.Equal(t, "/some/target", string(buf[:entry.Size]))
}

func TestCreateHardLink(t *testing.T) {
	t.Parallel()

	f := newTestFS(t, 4096, 64)
	src, err := f.Create(CreateRequest{Path: "/orig.txt", Kind: KindRegular, Perm: 0o644})
	require.NoError(t, err)

	before, err := f.vol.CountFreeBlocks()
	require.NoError(t, err)

	link, err := f.Create(CreateRequest{
		Path:        "/link.txt",
		Kind:        KindHardLink,
		Perm:        0o644,
		SourceBlock: src.Block,
	})
	require.NoError(t, err)
	assert.True(t, link.IsHardLink())
	assert.Equal(t, src.Block, link.Block, "hard link shares the source chain")

	// No allocation happened, only the refcount moved.
	after, err := f.vol.CountFreeBlocks()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	hdr := readFileHeader(t, f, src.Block)
	assert.Equal(t, uint64(2), hdr.RefCount)
}

func TestCreateErrors(t *testing.T) {
	t.Parallel()

	f := newTestFS(t, 4096, 64)
	_, err := f.Create(CreateRequest{Path: "/file.txt", Kind: KindRegular, Perm: 0o644})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"root itself", CreateRequest{Path: "/", Kind: KindDirectory}, common.EEXIST},
		{"name too long", CreateRequest{Path: "/" + strings.Repeat("n", 300), Kind: KindRegular}, common.EINVAL},
		{"missing parent", CreateRequest{Path: "/no/x.txt", Kind: KindRegular}, common.ENOENT},
		{"parent not a directory", CreateRequest{Path: "/file.txt/x", Kind: KindRegular}, common.ENOTDIR},
		{"symlink without target", CreateRequest{Path: "/l", Kind: KindSymlink}, common.EINVAL},
		{"hard link without source", CreateRequest{Path: "/h", Kind: KindHardLink}, common.EINVAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Create(tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreatePermissionPrecedence(t *testing.T) {
	t.Parallel()

	f := newTestFS(t, 4096, 64)
	// Writable for group and other but not for the owner. The owner must
	// still be denied: the first matching class decides alone.
	_, err := f.Create(CreateRequest{
		Path:  "/locked",
		Kind:  KindDirectory,
		Perm:  0o077,
		Owner: 1000,
		Group: 1000,
	})
	require.NoError(t, err)

	_, err = f.Create(CreateRequest{Path: "/locked/f", Kind: KindRegular, Owner: 1000, Group: 9999})
	assert.ErrorIs(t, err, common.EACCES, "owner class denied despite group/other bits")

	// Group member with write bit passes.
	_, err = f.Create(CreateRequest{Path: "/locked/g", Kind: KindRegular, Owner: 2000, Group: 1000})
	assert.NoError(t, err)

	// Unrelated requester uses the other class.
	_, err = f.Create(CreateRequest{Path: "/locked/h", Kind: KindRegular, Owner: 2000, Group: 2000})
	assert.NoError(t, err)
}

func TestCreateReadOnlyParent(t *testing.T) {
	t.Parallel()

	f := newTestFS(t, 4096, 64)
	_, err := f.Create(CreateRequest{
		Path:  "/ro",
		Kind:  KindDirectory,
		Perm:  0o555,
		Owner: 1000,
		Group: 1000,
	})
	require.NoError(t, err)

	for _, id := range []struct{ uid, gid uint32 }{{1000, 1000}, {2000, 1000}, {2000, 2000}} {
		_, err = f.Create(CreateRequest{Path: "/ro/f", Kind: KindRegular, Owner: id.uid, Group: id.gid})
		assert.ErrorIs(t, err, common.EACCES)
	}
}

func TestCreateNoSpace(t *testing.T) {
	t.Parallel()

	// Three blocks: superblock, chain table, root. Nothing allocatable.
	f := newTestFS(t, 512, 3)
	_, err := f.Create(CreateRequest{Path: "/f", Kind: KindRegular, Perm: 0o644})
	assert.ErrorIs(t, err, common.ENOSPC)
}

func TestCreateFirstFitReusesFreedSlot(t *testing.T) {
	t.Parallel()

	f := newTestFS(t, 4096, 64)
	for _, name := range []string{"aaaa", "bbbb", "cccc"} {
		_, err := f.Create(CreateRequest{Path: "/" + name, Kind: KindRegular, Perm: 0o644})
		require.NoError(t, err)
	}

	// Free the middle slot by clearing its validity bit, as unlink would.
	const middle = dirent.DirHeaderSize + (dirent.EntryHeaderSize + 4)
	buf := make([]byte, f.vol.BlockSize())
	require.NoError(t, f.vol.ReadBlock(f.vol.RootBlock(), buf))
	buf[middle+2] &^= dirent.FlagValid
	require.NoError(t, f.vol.WriteBlock(f.vol.RootBlock(), buf))

	_, err := f.Create(CreateRequest{Path: "/dddd", Kind: KindRegular, Perm: 0o644})
	require.NoError(t, err)

	// The new entry landed in the freed footprint, not at the tail.
	require.NoError(t, f.vol.ReadBlock(f.vol.RootBlock(), buf))
	got, err := dirent.Decode(buf[middle:])
	require.NoError(t, err)
	assert.Equal(t, "dddd", got.Name)
	assert.True(t, got.Valid())
}

func TestCreateEntryStraddlesBlocks(t *testing.T) {
	t.Parallel()

	f := newTestFS(t, 512, 64)
	long := strings.Repeat("n", 200)

	// First entry fits; the second one's slot crosses the end of the root
	// block, forcing a chain extension and a split write.
	_, err := f.Create(CreateRequest{Path: "/" + long + "1", Kind: KindRegular, Perm: 0o644})
	require.NoError(t, err)
	_, err = f.Create(CreateRequest{Path: "/" + long + "2", Kind: KindRegular, Perm: 0o644})
	require.NoError(t, err)

	next, err := f.vol.NextBlock(f.vol.RootBlock())
	require.NoError(t, err)
	assert.NotEqual(t, block.BlockEOF, next, "root chain grew by one block")

	entries, err := f.ReadDir("/")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, long+"1", entries[0].Name)
	assert.Equal(t, long+"2", entries[1].Name)

	// Entries written across the boundary resolve like any other.
	e := mustResolve(t, f, "/"+long+"2")
	hdr := readFileHeader(t, f, e.Block)
	assert.Equal(t, uint64(1), hdr.RefCount)
}

func TestCreateManyEntriesAcrossChain(t *testing.T) {
	t.Parallel()

	f := newTestFS(t, 512, 256)
	names := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		name := strings.Repeat("f", 40) + string(rune('a'+i))
		names = append(names, name)
		_, err := f.Create(CreateRequest{Path: "/" + name, Kind: KindRegular, Perm: 0o644})
		require.NoError(t, err, "create %d", i)
	}

	entries, err := f.ReadDir("/")
	require.NoError(t, err)
	require.Len(t, entries, len(names))
	for i, e := range entries {
		assert.Equal(t, names[i], e.Name)
	}

	hdr := readDirHeader(t, f, f.vol.RootBlock())
	assert.Equal(t, uint64(len(names)), hdr.SizeEntries)
}

func TestCreateDirectoryChainFull(t *testing.T) {
	t.Parallel()

	f := newTestFS(t, 512, 64)
	bs := int(f.vol.BlockSize())

	// Pack the root block to the byte with valid entries so the slot scan
	// runs off the end of a terminated chain.
	buf := make([]byte, bs)
	require.NoError(t, f.vol.ReadBlock(f.vol.RootBlock(), buf))
	e1 := &dirent.Entry{
		EntrySize: dirent.EntryHeaderSize + 200,
		Flags:     dirent.FlagValid,
		Block:     3,
		Name:      strings.Repeat("x", 200),
	}
	require.NoError(t, e1.Encode(buf[dirent.DirHeaderSize:]))
	e2 := &dirent.Entry{
		EntrySize: dirent.EntryHeaderSize + 136,
		Flags:     dirent.FlagValid,
		Block:     3,
		Name:      strings.Repeat("y", 136),
	}
	require.NoError(t, e2.Encode(buf[dirent.DirHeaderSize+264:]))
	require.NoError(t, f.vol.WriteBlock(f.vol.RootBlock(), buf))

	_, err := f.Create(CreateRequest{Path: "/z", Kind: KindRegular, Perm: 0o644})
	assert.ErrorIs(t, err, common.ENOSYS)
}
