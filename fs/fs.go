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

// Package fs implements the kernel-facing side of the mount: a
// fuseutil.FileSystem that translates inode-oriented callbacks into
// path-addressed operations on a remote.Store.
package fs

import (
	"context"
	"io"
	"math"
	"os"
	"path"
	"sync"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/darktohka/remotefs-fuse/internal/logger"
	"github.com/darktohka/remotefs-fuse/internal/stream"
	"github.com/darktohka/remotefs-fuse/remote"
)

// BlockSize is the block size reported to statfs and used to derive block
// counts from byte sizes.
const BlockSize = 512

// fmodeExec is the kernel's hint that an open is on behalf of execve;
// reads through such a handle require execute permission rather than read
// permission.
const fmodeExec = 0x20

type ServerConfig struct {
	// The store the file system exports.
	Store remote.Store

	// If set, report every inode as owned by this uid/gid instead of what
	// the backend says.
	Uid *uint32
	Gid *uint32

	// Permission bits to present when the backend has none.
	DefaultMode *remote.UnixPex

	// The directory used for staging whole-file fallbacks, or the empty
	// string for the system default.
	TempDir string
}

// NewServer creates a fuse server exporting the configured store.
func NewServer(cfg *ServerConfig) fuse.Server {
	return fuseutil.NewFileSystemServer(newFileSystem(cfg))
}

func newFileSystem(cfg *ServerConfig) *fileSystem {
	bridge := stream.NewBridge(cfg.Store)
	bridge.TempDir = cfg.TempDir

	fs := &fileSystem{
		store:       cfg.Store,
		bridge:      bridge,
		uid:         cfg.Uid,
		gid:         cfg.Gid,
		defaultMode: cfg.DefaultMode,
		inodes:      NewInodeTable(),
		handles:     NewHandleTable(),
		callerUID:   uint32(os.Getuid()),
		callerGID:   uint32(os.Getgid()),
	}
	if cfg.Uid != nil {
		fs.callerUID = *cfg.Uid
	}
	if cfg.Gid != nil {
		fs.callerGID = *cfg.Gid
	}

	return fs
}

////////////////////////////////////////////////////////////////////////
// fileSystem type
////////////////////////////////////////////////////////////////////////

// The driver processes one callback at a time: every method holds the
// file system lock for its whole duration, serializing the tables and the
// store alike. Remote round-trips therefore happen under the lock; the
// kernel queues around us.
type fileSystem struct {
	fuseutil.NotImplementedFileSystem

	/////////////////////////
	// Dependencies
	/////////////////////////

	store  remote.Store
	bridge *stream.Bridge

	/////////////////////////
	// Constant data
	/////////////////////////

	uid         *uint32
	gid         *uint32
	defaultMode *remote.UnixPex

	// The identity permission checks run against. FUSE does not hand us
	// per-request credentials, and by default only the mounting user may
	// access the mount anyway.
	callerUID uint32
	callerGID uint32

	/////////////////////////
	// Mutable state
	/////////////////////////

	mu sync.Mutex

	// GUARDED_BY(mu)
	inodes *InodeTable

	// GUARDED_BY(mu)
	handles *HandleTable
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// pathForInode resolves an inode through the table.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *fileSystem) pathForInode(ino fuseops.InodeID) (string, error) {
	p, ok := fs.inodes.Get(ino)
	if !ok {
		return "", fuse.ENOENT
	}
	return p, nil
}

// statPath fetches the entry behind a path, translating store errors.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *fileSystem) statPath(ctx context.Context, p string) (remote.File, error) {
	f, err := fs.store.Stat(ctx, p)
	if err != nil {
		return remote.File{}, errno(err)
	}
	return f, nil
}

// checkParentWritable stats the parent directory of a child about to be
// mutated and requires write permission on it.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *fileSystem) checkParentWritable(ctx context.Context, parent fuseops.InodeID) (parentPath string, err error) {
	parentPath, err = fs.pathForInode(parent)
	if err != nil {
		return "", err
	}

	dir, err := fs.statPath(ctx, parentPath)
	if err != nil {
		return "", err
	}
	if !CheckAccess(&dir, fs.callerUID, fs.callerGID, WOK) {
		return "", syscall.EACCES
	}

	return parentPath, nil
}

// accessPlan decodes open(2) flags into the handle capabilities and the
// access mask that must pass before the handle is granted.
func accessPlan(flags uint32) (read, write bool, mask uint32, err error) {
	switch flags & uint32(syscall.O_ACCMODE) {
	case uint32(syscall.O_RDONLY):
		// Truncation needs write access; a read-only truncating open is
		// contradictory.
		if flags&uint32(syscall.O_TRUNC) != 0 {
			return false, false, 0, syscall.EACCES
		}
		mask = ROK
		if flags&fmodeExec != 0 {
			mask = XOK
		}
		read = true

	case uint32(syscall.O_WRONLY):
		mask = WOK
		write = true

	case uint32(syscall.O_RDWR):
		mask = ROK | WOK
		read = true
		write = true

	default:
		return false, false, 0, fuse.EINVAL
	}

	return read, write, mask, nil
}

// lookUpChild resolves parent+name, requires search permission on the
// parent, records the child's inode, and stats the child.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *fileSystem) lookUpChild(ctx context.Context, parent fuseops.InodeID, name string) (remote.File, error) {
	parentPath, err := fs.pathForInode(parent)
	if err != nil {
		return remote.File{}, err
	}

	dir, err := fs.statPath(ctx, parentPath)
	if err != nil {
		return remote.File{}, err
	}
	if !CheckAccess(&dir, fs.callerUID, fs.callerGID, XOK) {
		return remote.File{}, syscall.EACCES
	}

	childPath := path.Join(parentPath, name)
	fs.inodes.PutPath(childPath)

	return fs.statPath(ctx, childPath)
}

////////////////////////////////////////////////////////////////////////
// fuseutil.FileSystem methods
////////////////////////////////////////////////////////////////////////

func (fs *fileSystem) Destroy() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.store.Disconnect(context.Background()); err != nil {
		logger.Errorf("failed to disconnect from remote store: %v", err)
		return
	}
	logger.Infof("disconnected from remote store")
}

func (fs *fileSystem) StatFS(
	ctx context.Context,
	op *fuseops.StatFSOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	// Walk the subtree, accumulating entry count and content size. As
	// expensive as it looks, but statfs is rare and the immediate listing
	// must be correct.
	var files uint64
	var size uint64
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := fs.store.List(ctx, dir)
		if err != nil {
			return err
		}
		for i := range entries {
			e := &entries[i]
			files++
			if e.IsDir() {
				if err := walk(e.Path); err != nil {
					return err
				}
			} else if e.IsFile() {
				size += uint64(e.Metadata.Size)
			}
		}
		return nil
	}
	if err := walk("/"); err != nil {
		return errno(err)
	}

	blocks := size / BlockSize
	op.BlockSize = BlockSize
	op.IoSize = BlockSize
	op.Blocks = blocks
	op.BlocksFree = math.MaxUint64 - blocks
	op.BlocksAvailable = op.BlocksFree
	op.Inodes = files
	op.InodesFree = 0

	return nil
}

func (fs *fileSystem) LookUpInode(
	ctx context.Context,
	op *fuseops.LookUpInodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	child, err := fs.lookUpChild(ctx, op.Parent, op.Name)
	if err != nil {
		return err
	}

	op.Entry = fs.childEntry(&child)

	return nil
}

func (fs *fileSystem) GetInodeAttributes(
	ctx context.Context,
	op *fuseops.GetInodeAttributesOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p, err := fs.pathForInode(op.Inode)
	if err != nil {
		return err
	}

	f, err := fs.statPath(ctx, p)
	if err != nil {
		return err
	}

	op.Attributes = fs.attributes(&f)

	return nil
}

func (fs *fileSystem) SetInodeAttributes(
	ctx context.Context,
	op *fuseops.SetInodeAttributesOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p, err := fs.pathForInode(op.Inode)
	if err != nil {
		return err
	}

	f, err := fs.statPath(ctx, p)
	if err != nil {
		return err
	}
	if !CheckAccess(&f, fs.callerUID, fs.callerGID, WOK) {
		return syscall.EACCES
	}

	// Apply only the fields present to a copy of the current metadata.
	md := f.Metadata
	if op.Mode != nil {
		mode := remote.UnixPex(op.Mode.Perm())
		md.Mode = &mode
	}
	if op.Size != nil {
		md.Size = int64(*op.Size)
	}
	if op.Atime != nil {
		t := *op.Atime
		md.Accessed = &t
	}
	if op.Mtime != nil {
		t := *op.Mtime
		md.Modified = &t
	}

	if err := fs.store.SetStat(ctx, p, md); err != nil {
		return errno(err)
	}

	f, err = fs.statPath(ctx, p)
	if err != nil {
		return err
	}
	op.Attributes = fs.attributes(&f)

	return nil
}

func (fs *fileSystem) ForgetInode(
	ctx context.Context,
	op *fuseops.ForgetInodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.inodes.Forget(op.Inode)

	return nil
}

func (fs *fileSystem) BatchForget(
	ctx context.Context,
	op *fuseops.BatchForgetOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for _, e := range op.Entries {
		fs.inodes.Forget(e.Inode)
	}

	return nil
}

func (fs *fileSystem) MkDir(
	ctx context.Context,
	op *fuseops.MkDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentPath, err := fs.checkParentWritable(ctx, op.Parent)
	if err != nil {
		return err
	}

	childPath := path.Join(parentPath, op.Name)
	if err := fs.store.CreateDir(ctx, childPath, remote.UnixPex(op.Mode.Perm())); err != nil {
		return errno(err)
	}
	fs.inodes.PutPath(childPath)

	child, err := fs.statPath(ctx, childPath)
	if err != nil {
		return err
	}
	op.Entry = fs.childEntry(&child)

	return nil
}

func (fs *fileSystem) MkNode(
	ctx context.Context,
	op *fuseops.MkNodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentPath, err := fs.checkParentWritable(ctx, op.Parent)
	if err != nil {
		return err
	}

	childPath := path.Join(parentPath, op.Name)
	mode := remote.UnixPex(op.Mode.Perm())

	switch op.Mode & os.ModeType {
	case 0:
		md := remote.Metadata{
			Mode: &mode,
			UID:  &fs.callerUID,
			GID:  &fs.callerGID,
			Type: remote.TypeFile,
		}
		if _, err := fs.store.CreateFile(ctx, childPath, md, emptyReader{}); err != nil {
			return errno(err)
		}

	case os.ModeDir:
		if err := fs.store.CreateDir(ctx, childPath, mode); err != nil {
			return errno(err)
		}

	case os.ModeSymlink:
		if err := fs.store.Symlink(ctx, childPath, ""); err != nil {
			return errno(err)
		}

	default:
		// Devices, fifos and sockets have no remote representation.
		return fuse.ENOSYS
	}

	fs.inodes.PutPath(childPath)

	child, err := fs.statPath(ctx, childPath)
	if err != nil {
		return err
	}
	op.Entry = fs.childEntry(&child)

	return nil
}

func (fs *fileSystem) CreateFile(
	ctx context.Context,
	op *fuseops.CreateFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentPath, err := fs.checkParentWritable(ctx, op.Parent)
	if err != nil {
		return err
	}

	childPath := path.Join(parentPath, op.Name)
	mode := remote.UnixPex(op.Mode.Perm())
	md := remote.Metadata{
		Mode: &mode,
		UID:  &fs.callerUID,
		GID:  &fs.callerGID,
		Type: remote.TypeFile,
	}
	if _, err := fs.store.CreateFile(ctx, childPath, md, emptyReader{}); err != nil {
		return errno(err)
	}

	ino := fs.inodes.PutPath(childPath)

	child, err := fs.statPath(ctx, childPath)
	if err != nil {
		return err
	}
	op.Entry = fs.childEntry(&child)
	op.Handle = fs.handles.Open(op.OpContext.Pid, ino, true, true)

	return nil
}

func (fs *fileSystem) CreateSymlink(
	ctx context.Context,
	op *fuseops.CreateSymlinkOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentPath, err := fs.checkParentWritable(ctx, op.Parent)
	if err != nil {
		return err
	}

	childPath := path.Join(parentPath, op.Name)
	if err := fs.store.Symlink(ctx, childPath, op.Target); err != nil {
		return errno(err)
	}
	fs.inodes.PutPath(childPath)

	child, err := fs.statPath(ctx, childPath)
	if err != nil {
		return err
	}
	op.Entry = fs.childEntry(&child)

	return nil
}

func (fs *fileSystem) CreateLink(
	ctx context.Context,
	op *fuseops.CreateLinkOp) error {
	// Hard links have no path-addressed representation.
	return fuse.ENOSYS
}

func (fs *fileSystem) Rename(
	ctx context.Context,
	op *fuseops.RenameOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	oldParentPath, err := fs.checkParentWritable(ctx, op.OldParent)
	if err != nil {
		return err
	}
	newParentPath, err := fs.checkParentWritable(ctx, op.NewParent)
	if err != nil {
		return err
	}

	src := path.Join(oldParentPath, op.OldName)
	dst := path.Join(newParentPath, op.NewName)
	if err := fs.store.Move(ctx, src, dst); err != nil {
		return errno(err)
	}

	// Record the destination. The source inode stays in the table until
	// the kernel forgets it; a stale entry simply fails to stat.
	fs.inodes.PutPath(dst)

	return nil
}

func (fs *fileSystem) RmDir(
	ctx context.Context,
	op *fuseops.RmDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentPath, err := fs.checkParentWritable(ctx, op.Parent)
	if err != nil {
		return err
	}

	if err := fs.store.RemoveDir(ctx, path.Join(parentPath, op.Name)); err != nil {
		return errno(err)
	}

	return nil
}

func (fs *fileSystem) Unlink(
	ctx context.Context,
	op *fuseops.UnlinkOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentPath, err := fs.checkParentWritable(ctx, op.Parent)
	if err != nil {
		return err
	}

	if err := fs.store.RemoveFile(ctx, path.Join(parentPath, op.Name)); err != nil {
		return errno(err)
	}

	return nil
}

func (fs *fileSystem) OpenDir(
	ctx context.Context,
	op *fuseops.OpenDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p, err := fs.pathForInode(op.Inode)
	if err != nil {
		return err
	}

	dir, err := fs.statPath(ctx, p)
	if err != nil {
		return err
	}
	if !dir.IsDir() {
		return fuse.ENOTDIR
	}
	if !CheckAccess(&dir, fs.callerUID, fs.callerGID, ROK) {
		return syscall.EACCES
	}

	op.Handle = fs.handles.Open(op.OpContext.Pid, op.Inode, true, false)

	return nil
}

func (fs *fileSystem) ReadDir(
	ctx context.Context,
	op *fuseops.ReadDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	h, ok := fs.handles.Get(op.OpContext.Pid, op.Handle)
	if !ok {
		return fuse.ENOENT
	}
	if !h.Read {
		return syscall.EACCES
	}

	p, err := fs.pathForInode(op.Inode)
	if err != nil {
		return err
	}

	entries, err := fs.store.List(ctx, p)
	if err != nil {
		return errno(err)
	}

	for i := int(op.Offset); i < len(entries); i++ {
		e := &entries[i]
		ino := fs.inodes.PutPath(e.Path)

		var dt fuseutil.DirentType
		switch e.Metadata.Type {
		case remote.TypeDirectory:
			dt = fuseutil.DT_Directory
		case remote.TypeSymlink:
			dt = fuseutil.DT_Link
		default:
			dt = fuseutil.DT_File
		}

		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  ino,
			Name:   path.Base(e.Path),
			Type:   dt,
		})
		if n == 0 {
			break
		}
		op.BytesRead += n
	}

	return nil
}

func (fs *fileSystem) ReleaseDirHandle(
	ctx context.Context,
	op *fuseops.ReleaseDirHandleOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.handles.Get(op.OpContext.Pid, op.Handle); !ok {
		return fuse.ENOENT
	}
	fs.handles.Close(op.OpContext.Pid, op.Handle)

	return nil
}

func (fs *fileSystem) OpenFile(
	ctx context.Context,
	op *fuseops.OpenFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p, err := fs.pathForInode(op.Inode)
	if err != nil {
		return err
	}

	f, err := fs.statPath(ctx, p)
	if err != nil {
		return err
	}

	read, write, mask, err := accessPlan(uint32(op.OpenFlags))
	if err != nil {
		return err
	}
	if !CheckAccess(&f, fs.callerUID, fs.callerGID, mask) {
		return syscall.EACCES
	}

	op.Handle = fs.handles.Open(op.OpContext.Pid, op.Inode, read, write)

	return nil
}

func (fs *fileSystem) ReadFile(
	ctx context.Context,
	op *fuseops.ReadFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	h, ok := fs.handles.Get(op.OpContext.Pid, op.Handle)
	if !ok {
		return fuse.ENOENT
	}
	if !h.Read {
		return syscall.EACCES
	}
	if op.Offset < 0 {
		return fuse.EINVAL
	}

	p, err := fs.pathForInode(op.Inode)
	if err != nil {
		return err
	}

	f, err := fs.statPath(ctx, p)
	if err != nil {
		return err
	}

	// Clamp the request to the content that exists.
	n := f.Metadata.Size - op.Offset
	if n > int64(len(op.Dst)) {
		n = int64(len(op.Dst))
	}
	if n <= 0 {
		op.BytesRead = 0
		return nil
	}

	op.BytesRead, err = fs.bridge.Read(ctx, p, op.Dst[:n], op.Offset)
	if err != nil {
		logger.Errorf("read %q at %d: %v", p, op.Offset, err)
		return errno(err)
	}

	return nil
}

func (fs *fileSystem) WriteFile(
	ctx context.Context,
	op *fuseops.WriteFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	h, ok := fs.handles.Get(op.OpContext.Pid, op.Handle)
	if !ok {
		return fuse.ENOENT
	}
	if !h.Write {
		return syscall.EACCES
	}
	if op.Offset < 0 {
		return fuse.EINVAL
	}

	p, err := fs.pathForInode(op.Inode)
	if err != nil {
		return err
	}

	f, err := fs.statPath(ctx, p)
	if err != nil {
		return err
	}

	n, err := fs.bridge.Write(ctx, f, op.Data, op.Offset)
	if err != nil {
		logger.Errorf("write %q at %d: %v", p, op.Offset, err)
		return errno(err)
	}
	if n < len(op.Data) {
		return io.ErrShortWrite
	}

	return nil
}

func (fs *fileSystem) SyncFile(
	ctx context.Context,
	op *fuseops.SyncFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	// Writes commit synchronously; there is nothing buffered to push.
	if _, ok := fs.handles.Get(op.OpContext.Pid, op.Handle); !ok {
		return fuse.ENOENT
	}

	return nil
}

func (fs *fileSystem) FlushFile(
	ctx context.Context,
	op *fuseops.FlushFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.handles.Get(op.OpContext.Pid, op.Handle); !ok {
		return fuse.ENOENT
	}

	return nil
}

func (fs *fileSystem) ReleaseFileHandle(
	ctx context.Context,
	op *fuseops.ReleaseFileHandleOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.handles.Get(op.OpContext.Pid, op.Handle); !ok {
		return fuse.ENOENT
	}
	fs.handles.Close(op.OpContext.Pid, op.Handle)

	return nil
}

func (fs *fileSystem) ReadSymlink(
	ctx context.Context,
	op *fuseops.ReadSymlinkOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p, err := fs.pathForInode(op.Inode)
	if err != nil {
		return err
	}

	f, err := fs.statPath(ctx, p)
	if err != nil {
		return err
	}

	// The link target is the file's content.
	buf := make([]byte, f.Metadata.Size)
	n, err := fs.bridge.Read(ctx, p, buf, 0)
	if err != nil {
		return errno(err)
	}
	op.Target = string(buf[:n])

	return nil
}

func (fs *fileSystem) GetXattr(
	ctx context.Context,
	op *fuseops.GetXattrOp) error {
	return fuse.ENOSYS
}

func (fs *fileSystem) ListXattr(
	ctx context.Context,
	op *fuseops.ListXattrOp) error {
	return fuse.ENOSYS
}

func (fs *fileSystem) SetXattr(
	ctx context.Context,
	op *fuseops.SetXattrOp) error {
	return fuse.ENOSYS
}

func (fs *fileSystem) RemoveXattr(
	ctx context.Context,
	op *fuseops.RemoveXattrOp) error {
	return fuse.ENOSYS
}

func (fs *fileSystem) Fallocate(
	ctx context.Context,
	op *fuseops.FallocateOp) error {
	return fuse.ENOSYS
}

// emptyReader is the zero-length content handed to the store when a file
// is born.
type emptyReader struct{}

func (emptyReader) Read(p []byte) (int, error) { return 0, io.EOF }
