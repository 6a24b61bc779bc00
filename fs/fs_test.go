// Copyright 2024 The remotefs-fuse Authors. All Rights Reserved.
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
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"syscall"
	"testing"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darktohka/remotefs-fuse/remote"
	"github.com/darktohka/remotefs-fuse/remote/memfs"
)

const testPid = 1234

// setFlags writes platform open flags into an op field whose defined type
// lives in the fuse library's internals.
func setFlags[T ~uint32](dst *T, flags uint32) {
	*dst = T(flags)
}

func newTestFS(t *testing.T, store *memfs.Store) *fileSystem {
	t.Helper()

	require.NoError(t, store.Connect(context.Background()))

	uid := uint32(1000)
	gid := uint32(1000)
	return newFileSystem(&ServerConfig{
		Store: store,
		Uid:   &uid,
		Gid:   &gid,
	})
}

func seedFile(t *testing.T, store *memfs.Store, path, content string, mode remote.UnixPex) {
	t.Helper()

	uid := uint32(1000)
	gid := uint32(1000)
	md := remote.Metadata{
		Mode: &mode,
		UID:  &uid,
		GID:  &gid,
		Type: remote.TypeFile,
	}
	_, err := store.CreateFile(context.Background(), path, md, bytes.NewReader([]byte(content)))
	require.NoError(t, err)
}

func lookUp(t *testing.T, fs *fileSystem, parent fuseops.InodeID, name string) fuseops.ChildInodeEntry {
	t.Helper()

	op := &fuseops.LookUpInodeOp{Parent: parent, Name: name}
	require.NoError(t, fs.LookUpInode(context.Background(), op))

	return op.Entry
}

func openFile(t *testing.T, fs *fileSystem, ino fuseops.InodeID, flags uint32) fuseops.HandleID {
	t.Helper()

	op := &fuseops.OpenFileOp{Inode: ino}
	setFlags(&op.OpenFlags, flags)
	op.OpContext.Pid = testPid
	require.NoError(t, fs.OpenFile(context.Background(), op))

	return op.Handle
}

func readAll(t *testing.T, fs *fileSystem, ino fuseops.InodeID, fh fuseops.HandleID, size int) string {
	t.Helper()

	op := &fuseops.ReadFileOp{Inode: ino, Handle: fh, Dst: make([]byte, size)}
	op.OpContext.Pid = testPid
	require.NoError(t, fs.ReadFile(context.Background(), op))

	return string(op.Dst[:op.BytesRead])
}

// parseDirents decodes the kernel wire format WriteDirent produced.
func parseDirents(buf []byte) []string {
	var names []string
	for len(buf) >= 24 {
		namelen := binary.LittleEndian.Uint32(buf[16:20])
		rec := 24 + int(namelen)
		// Records are padded to 8 bytes.
		padded := (rec + 7) &^ 7
		if rec > len(buf) {
			break
		}
		names = append(names, string(buf[24:rec]))
		if padded > len(buf) {
			break
		}
		buf = buf[padded:]
	}
	return names
}

func readDirNames(t *testing.T, fs *fileSystem, ino fuseops.InodeID, offset fuseops.DirOffset) []string {
	t.Helper()

	openOp := &fuseops.OpenDirOp{Inode: ino}
	openOp.OpContext.Pid = testPid
	require.NoError(t, fs.OpenDir(context.Background(), openOp))
	defer func() {
		rel := &fuseops.ReleaseDirHandleOp{Handle: openOp.Handle}
		rel.OpContext.Pid = testPid
		require.NoError(t, fs.ReleaseDirHandle(context.Background(), rel))
	}()

	readOp := &fuseops.ReadDirOp{
		Inode:  ino,
		Handle: openOp.Handle,
		Offset: offset,
		Dst:    make([]byte, 4096),
	}
	readOp.OpContext.Pid = testPid
	require.NoError(t, fs.ReadDir(context.Background(), readOp))

	return parseDirents(readOp.Dst[:readOp.BytesRead])
}

////////////////////////////////////////////////////////////////////////
// End-to-end scenarios
////////////////////////////////////////////////////////////////////////

func TestMountAndRead(t *testing.T) {
	store := memfs.New(1000, 1000)
	fs := newTestFS(t, store)
	require.NoError(t, store.CreateDir(context.Background(), "/tmp", 0o755))
	seedFile(t, store, "/tmp/mounted.txt", "Hello, world!", 0o644)

	tmpEntry := lookUp(t, fs, fuseops.RootInodeID, "tmp")
	fileEntry := lookUp(t, fs, tmpEntry.Child, "mounted.txt")

	assert.Equal(t, PathInode("/tmp/mounted.txt"), fileEntry.Child)
	assert.EqualValues(t, 13, fileEntry.Attributes.Size)

	attrOp := &fuseops.GetInodeAttributesOp{Inode: fileEntry.Child}
	require.NoError(t, fs.GetInodeAttributes(context.Background(), attrOp))
	assert.EqualValues(t, 13, attrOp.Attributes.Size)
	assert.EqualValues(t, 1000, attrOp.Attributes.Uid)

	fh := openFile(t, fs, fileEntry.Child, syscall.O_RDONLY)
	assert.Equal(t, "Hello, world!", readAll(t, fs, fileEntry.Child, fh, 64))
}

func TestWriteThenReadBack(t *testing.T) {
	store := memfs.New(1000, 1000)
	fs := newTestFS(t, store)
	ctx := context.Background()

	createOp := &fuseops.CreateFileOp{
		Parent: fuseops.RootInodeID,
		Name:   "test.txt",
		Mode:   0o644,
	}
	createOp.OpContext.Pid = testPid
	require.NoError(t, fs.CreateFile(ctx, createOp))

	ino := createOp.Entry.Child
	writeOp := &fuseops.WriteFileOp{
		Inode:  ino,
		Handle: createOp.Handle,
		Data:   []byte("Hello, World!"),
	}
	writeOp.OpContext.Pid = testPid
	require.NoError(t, fs.WriteFile(ctx, writeOp))

	assert.Equal(t, "Hello, World!", readAll(t, fs, ino, createOp.Handle, 32))

	flushOp := &fuseops.FlushFileOp{Handle: createOp.Handle}
	flushOp.OpContext.Pid = testPid
	require.NoError(t, fs.FlushFile(ctx, flushOp))

	releaseOp := &fuseops.ReleaseFileHandleOp{Handle: createOp.Handle}
	releaseOp.OpContext.Pid = testPid
	require.NoError(t, fs.ReleaseFileHandle(ctx, releaseOp))

	// The handle is gone now.
	flushOp2 := &fuseops.FlushFileOp{Handle: createOp.Handle}
	flushOp2.OpContext.Pid = testPid
	assert.Equal(t, fuse.ENOENT, fs.FlushFile(ctx, flushOp2))
}

func TestUnlink(t *testing.T) {
	store := memfs.New(1000, 1000)
	fs := newTestFS(t, store)
	ctx := context.Background()
	seedFile(t, store, "/test.txt", "x", 0o644)

	lookUp(t, fs, fuseops.RootInodeID, "test.txt")

	unlinkOp := &fuseops.UnlinkOp{Parent: fuseops.RootInodeID, Name: "test.txt"}
	require.NoError(t, fs.Unlink(ctx, unlinkOp))

	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "test.txt"}
	assert.Equal(t, fuse.ENOENT, fs.LookUpInode(ctx, op))
}

func TestMkDirRmDir(t *testing.T) {
	store := memfs.New(1000, 1000)
	fs := newTestFS(t, store)
	ctx := context.Background()

	mkdirOp := &fuseops.MkDirOp{
		Parent: fuseops.RootInodeID,
		Name:   "test_dir",
		Mode:   os.ModeDir | 0o755,
	}
	require.NoError(t, fs.MkDir(ctx, mkdirOp))
	assert.True(t, mkdirOp.Entry.Attributes.Mode.IsDir())

	assert.Contains(t, readDirNames(t, fs, fuseops.RootInodeID, 0), "test_dir")

	rmdirOp := &fuseops.RmDirOp{Parent: fuseops.RootInodeID, Name: "test_dir"}
	require.NoError(t, fs.RmDir(ctx, rmdirOp))

	assert.NotContains(t, readDirNames(t, fs, fuseops.RootInodeID, 0), "test_dir")
}

// Increasing offsets enumerate every entry exactly once.
func TestReadDirOffsets(t *testing.T) {
	store := memfs.New(1000, 1000)
	fs := newTestFS(t, store)

	names := []string{"a.txt", "b.txt", "c.txt", "d.txt"}
	for _, n := range names {
		seedFile(t, store, "/"+n, "x", 0o644)
	}

	var seen []string
	for off := fuseops.DirOffset(0); ; {
		got := readDirNames(t, fs, fuseops.RootInodeID, off)
		if len(got) == 0 {
			break
		}
		// One entry per call keeps the offsets honest.
		seen = append(seen, got[0])
		off++
	}

	assert.Equal(t, names, seen)
}

func TestOpenPermissionDenied(t *testing.T) {
	store := memfs.New(1000, 1000)
	fs := newTestFS(t, store)

	// Owned by somebody else, owner-only access.
	uid := uint32(4321)
	gid := uint32(4321)
	mode := remote.UnixPex(0o600)
	md := remote.Metadata{Mode: &mode, UID: &uid, GID: &gid, Type: remote.TypeFile}
	_, err := store.CreateFile(context.Background(), "/a", md, bytes.NewReader(nil))
	require.NoError(t, err)

	entry := lookUp(t, fs, fuseops.RootInodeID, "a")

	op := &fuseops.OpenFileOp{Inode: entry.Child}
	setFlags(&op.OpenFlags, syscall.O_RDONLY)
	op.OpContext.Pid = testPid
	assert.Equal(t, syscall.EACCES, fs.OpenFile(context.Background(), op))
}

func TestOpenReadOnlyWithTruncateIsRejected(t *testing.T) {
	store := memfs.New(1000, 1000)
	fs := newTestFS(t, store)
	seedFile(t, store, "/t.txt", "x", 0o644)

	entry := lookUp(t, fs, fuseops.RootInodeID, "t.txt")

	op := &fuseops.OpenFileOp{Inode: entry.Child}
	setFlags(&op.OpenFlags, syscall.O_RDONLY|syscall.O_TRUNC)
	op.OpContext.Pid = testPid
	assert.Equal(t, syscall.EACCES, fs.OpenFile(context.Background(), op))
}

func TestReadRequiresReadHandle(t *testing.T) {
	store := memfs.New(1000, 1000)
	fs := newTestFS(t, store)
	seedFile(t, store, "/w.txt", "x", 0o644)

	entry := lookUp(t, fs, fuseops.RootInodeID, "w.txt")
	fh := openFile(t, fs, entry.Child, syscall.O_WRONLY)

	op := &fuseops.ReadFileOp{Inode: entry.Child, Handle: fh, Dst: make([]byte, 4)}
	op.OpContext.Pid = testPid
	assert.Equal(t, syscall.EACCES, fs.ReadFile(context.Background(), op))

	// A different process doesn't see the handle at all.
	op2 := &fuseops.ReadFileOp{Inode: entry.Child, Handle: fh, Dst: make([]byte, 4)}
	op2.OpContext.Pid = testPid + 1
	assert.Equal(t, fuse.ENOENT, fs.ReadFile(context.Background(), op2))
}

func TestRenameLeavesStaleSourceInode(t *testing.T) {
	store := memfs.New(1000, 1000)
	fs := newTestFS(t, store)
	ctx := context.Background()
	seedFile(t, store, "/old.txt", "payload", 0o644)

	oldEntry := lookUp(t, fs, fuseops.RootInodeID, "old.txt")

	renameOp := &fuseops.RenameOp{
		OldParent: fuseops.RootInodeID,
		OldName:   "old.txt",
		NewParent: fuseops.RootInodeID,
		NewName:   "new.txt",
	}
	require.NoError(t, fs.Rename(ctx, renameOp))

	newEntry := lookUp(t, fs, fuseops.RootInodeID, "new.txt")
	assert.EqualValues(t, 7, newEntry.Attributes.Size)

	// The old inode still resolves to its path, and the path no longer
	// stats.
	attrOp := &fuseops.GetInodeAttributesOp{Inode: oldEntry.Child}
	assert.Equal(t, fuse.ENOENT, fs.GetInodeAttributes(ctx, attrOp))
}

func TestSymlinkRoundTrip(t *testing.T) {
	store := memfs.New(1000, 1000)
	fs := newTestFS(t, store)
	ctx := context.Background()

	symlinkOp := &fuseops.CreateSymlinkOp{
		Parent: fuseops.RootInodeID,
		Name:   "link",
		Target: "/target/file.txt",
	}
	require.NoError(t, fs.CreateSymlink(ctx, symlinkOp))
	assert.True(t, symlinkOp.Entry.Attributes.Mode&os.ModeSymlink != 0)

	readOp := &fuseops.ReadSymlinkOp{Inode: symlinkOp.Entry.Child}
	require.NoError(t, fs.ReadSymlink(ctx, readOp))
	assert.Equal(t, "/target/file.txt", readOp.Target)
}

func TestSetInodeAttributesTruncates(t *testing.T) {
	store := memfs.New(1000, 1000)
	fs := newTestFS(t, store)
	ctx := context.Background()
	seedFile(t, store, "/trunc.txt", "abcdef", 0o644)

	entry := lookUp(t, fs, fuseops.RootInodeID, "trunc.txt")

	size := uint64(3)
	setOp := &fuseops.SetInodeAttributesOp{Inode: entry.Child, Size: &size}
	require.NoError(t, fs.SetInodeAttributes(ctx, setOp))
	assert.EqualValues(t, 3, setOp.Attributes.Size)

	fh := openFile(t, fs, entry.Child, syscall.O_RDONLY)
	assert.Equal(t, "abc", readAll(t, fs, entry.Child, fh, 16))
}

func TestMkNode(t *testing.T) {
	store := memfs.New(1000, 1000)
	fs := newTestFS(t, store)
	ctx := context.Background()

	op := &fuseops.MkNodeOp{Parent: fuseops.RootInodeID, Name: "plain", Mode: 0o644}
	require.NoError(t, fs.MkNode(ctx, op))
	assert.Equal(t, PathInode("/plain"), op.Entry.Child)

	// Device nodes have no remote representation.
	dev := &fuseops.MkNodeOp{Parent: fuseops.RootInodeID, Name: "fifo", Mode: os.ModeNamedPipe | 0o644}
	assert.Equal(t, fuse.ENOSYS, fs.MkNode(ctx, dev))
}

func TestStatFS(t *testing.T) {
	store := memfs.New(1000, 1000)
	fs := newTestFS(t, store)
	require.NoError(t, store.CreateDir(context.Background(), "/dir", 0o755))
	seedFile(t, store, "/dir/big.bin", string(make([]byte, 1024)), 0o644)
	seedFile(t, store, "/small.bin", "abcd", 0o644)

	op := &fuseops.StatFSOp{}
	require.NoError(t, fs.StatFS(context.Background(), op))

	assert.EqualValues(t, BlockSize, op.BlockSize)
	assert.EqualValues(t, (1024+4)/BlockSize, op.Blocks)
	assert.EqualValues(t, 3, op.Inodes)
	assert.EqualValues(t, 0, op.InodesFree)
	assert.Equal(t, op.BlocksFree, op.BlocksAvailable)
}

func TestXattrsAreNotImplemented(t *testing.T) {
	store := memfs.New(1000, 1000)
	fs := newTestFS(t, store)
	ctx := context.Background()

	assert.Equal(t, fuse.ENOSYS, fs.GetXattr(ctx, &fuseops.GetXattrOp{}))
	assert.Equal(t, fuse.ENOSYS, fs.SetXattr(ctx, &fuseops.SetXattrOp{}))
	assert.Equal(t, fuse.ENOSYS, fs.ListXattr(ctx, &fuseops.ListXattrOp{}))
	assert.Equal(t, fuse.ENOSYS, fs.RemoveXattr(ctx, &fuseops.RemoveXattrOp{}))
	assert.Equal(t, fuse.ENOSYS, fs.CreateLink(ctx, &fuseops.CreateLinkOp{}))
}

func TestForgetKeepsRoot(t *testing.T) {
	store := memfs.New(1000, 1000)
	fs := newTestFS(t, store)
	ctx := context.Background()
	seedFile(t, store, "/f.txt", "x", 0o644)

	entry := lookUp(t, fs, fuseops.RootInodeID, "f.txt")

	require.NoError(t, fs.ForgetInode(ctx, &fuseops.ForgetInodeOp{Inode: entry.Child}))
	require.NoError(t, fs.ForgetInode(ctx, &fuseops.ForgetInodeOp{Inode: fuseops.RootInodeID}))

	// The root survives; the child is gone.
	_, ok := fs.inodes.Get(fuseops.RootInodeID)
	assert.True(t, ok)
	assert.False(t, fs.inodes.Has(entry.Child))
}

// The whole-file fallback path serves the same bytes as streaming.
func TestReadThroughFallbackBackend(t *testing.T) {
	store := memfs.New(1000, 1000)
	store.DisableStreaming()
	fs := newTestFS(t, store)
	seedFile(t, store, "/fb.txt", "fallback bytes", 0o644)

	entry := lookUp(t, fs, fuseops.RootInodeID, "fb.txt")
	fh := openFile(t, fs, entry.Child, syscall.O_RDONLY)
	assert.Equal(t, "fallback bytes", readAll(t, fs, entry.Child, fh, 64))
}

func TestNegativeOffsetsAreInvalid(t *testing.T) {
	store := memfs.New(1000, 1000)
	fs := newTestFS(t, store)
	seedFile(t, store, "/n.txt", "x", 0o644)

	entry := lookUp(t, fs, fuseops.RootInodeID, "n.txt")
	fh := openFile(t, fs, entry.Child, syscall.O_RDWR)

	readOp := &fuseops.ReadFileOp{Inode: entry.Child, Handle: fh, Offset: -1, Dst: make([]byte, 4)}
	readOp.OpContext.Pid = testPid
	assert.Equal(t, fuse.EINVAL, fs.ReadFile(context.Background(), readOp))

	writeOp := &fuseops.WriteFileOp{Inode: entry.Child, Handle: fh, Offset: -1, Data: []byte("y")}
	writeOp.OpContext.Pid = testPid
	assert.Equal(t, fuse.EINVAL, fs.WriteFile(context.Background(), writeOp))
}

func TestErrnoMapping(t *testing.T) {
	assert.Equal(t, fuse.ENOENT, errno(remote.ErrNotFound))
	assert.Equal(t, fuse.EEXIST, errno(remote.ErrAlreadyExists))
	assert.Equal(t, fuse.ENOTEMPTY, errno(remote.ErrDirNotEmpty))
	assert.Equal(t, syscall.ENOTSUP, errno(remote.ErrUnsupported))
	assert.Equal(t, fuse.EIO, errno(errors.New("backend exploded")))
	assert.NoError(t, errno(nil))
}
