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

package dokan

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/darktohka/remotefs-fuse/internal/logger"
	"github.com/darktohka/remotefs-fuse/internal/stream"
	"github.com/darktohka/remotefs-fuse/remote"
)

// FileSystemHandler is the callback set a Dokany host drives. Driver is
// its only implementation here; the interface pins the boundary between
// the core and the (external) mount plumbing.
type FileSystemHandler interface {
	Mounted(mountPoint string) error
	Unmounted() error
	CreateFile(name string, desiredAccess, fileAttributes, shareAccess, createDisposition, createOptions uint32, info *OperationInfo) (CreateFileInfo, error)
	Cleanup(name string, info *OperationInfo, ctx *StatHandle)
	CloseFile(name string, ctx *StatHandle)
	ReadFile(name string, offset int64, buf []byte, ctx *StatHandle) (int, error)
	WriteFile(name string, offset int64, data []byte, info *OperationInfo, ctx *StatHandle) (int, error)
	FlushFileBuffers(name string, ctx *StatHandle) error
	GetFileInformation(name string, ctx *StatHandle) (FileInfo, error)
	FindFiles(name string, fill FillFindData, ctx *StatHandle) error
	FindFilesWithPattern(name, pattern string, fill FillFindData, ctx *StatHandle) error
	SetFileTime(name string, creation, lastAccess, lastWrite TimeOperation, ctx *StatHandle) error
	DeleteFile(name string, info *OperationInfo, ctx *StatHandle) error
	DeleteDirectory(name string, info *OperationInfo, ctx *StatHandle) error
	MoveFile(name, newName string, replaceIfExisting bool, ctx *StatHandle) error
	SetEndOfFile(name string, offset int64, ctx *StatHandle) error
	SetAllocationSize(name string, size int64, ctx *StatHandle) error
	GetVolumeInformation() (VolumeInfo, error)
	GetFileSecurity(name string, securityInformation uint32, buf []byte, ctx *StatHandle) (int, error)
	SetFileSecurity(name string, securityInformation uint32, descriptor []byte, ctx *StatHandle) error
	FindStreams(name string, fill FillFindStreamData, ctx *StatHandle) error
}

// Driver translates Dokany callbacks onto a remote.Store. Dokany delivers
// callbacks from multiple threads; the store is serialized behind one
// mutex, the handle cache behind its own lock, and each Stat and AltStream
// behind reader/writer locks (see the ordering note on Stat).
type Driver struct {
	store  remote.Store
	bridge *stream.Bridge

	// remoteMu serializes every call into the store, the bridge's
	// included.
	remoteMu sync.Mutex

	cache *statCache
}

var _ FileSystemHandler = (*Driver)(nil)

// NewDriver creates a driver over the store.
func NewDriver(store remote.Store) *Driver {
	return &Driver{
		store:  store,
		bridge: stream.NewBridge(store),
		cache:  newStatCache(),
	}
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// toRemotePath converts a host name (`\dir\file`) into the remote
// namespace (`/dir/file`).
func toRemotePath(name string) string {
	p := strings.ReplaceAll(name, `\`, "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// splitStreamName separates an alternate stream suffix from a host name:
// `\f.txt:s` and `\f.txt:s:$DATA` both yield (`\f.txt`, "s"). The default
// stream (`::$DATA` or no suffix) yields an empty stream name.
func splitStreamName(name string) (string, string) {
	base := name
	if i := strings.LastIndexByte(name, '\\'); i >= 0 {
		base = name[i+1:]
	}

	j := strings.IndexByte(base, ':')
	if j < 0 {
		return name, ""
	}

	streamPart := strings.TrimSuffix(base[j+1:], ":$DATA")
	return name[:len(name)-len(base)+j], streamPart
}

// tryStat returns the cache entry for a path, statting the remote on a
// miss.
func (d *Driver) tryStat(remotePath string) (*Stat, error) {
	if s, ok := d.cache.get(remotePath); ok {
		return s, nil
	}

	d.remoteMu.Lock()
	f, err := d.store.Stat(context.Background(), remotePath)
	d.remoteMu.Unlock()
	if err != nil {
		return nil, err
	}

	return d.cache.getOrInsert(remotePath, newStat(f)), nil
}

// fileAttributes derives the Windows attribute word for a remote entry.
func fileAttributes(f *remote.File) uint32 {
	var attrs uint32
	switch {
	case f.IsDir():
		attrs = FileAttributeDirectory
	case f.IsSymlink():
		attrs = FileAttributeReparsePoint
	default:
		attrs = FileAttributeNormal
	}

	if f.Metadata.Mode != nil && !f.Metadata.Mode.AnyWrite() {
		attrs |= FileAttributeReadonly
	}
	if strings.HasPrefix(path.Base(f.Path), ".") {
		attrs |= FileAttributeHidden
	}

	return attrs
}

// fileIndex is 1 for the root and a stable 64-bit hash of the path for
// everything else.
func fileIndex(p string) uint64 {
	if p == "/" {
		return 1
	}
	return xxhash.Sum64String(p)
}

func timeOrEpoch(t *time.Time) time.Time {
	if t != nil {
		return *t
	}
	return time.Unix(0, 0)
}

func newStatHandle(stat *Stat, altStream *AltStream, streamName string, deleteOnClose bool) *StatHandle {
	stat.mu.Lock()
	stat.handleCount++
	stat.mu.Unlock()

	return &StatHandle{
		stat:          stat,
		altStream:     altStream,
		streamName:    streamName,
		deleteOnClose: deleteOnClose,
	}
}

////////////////////////////////////////////////////////////////////////
// Lifecycle
////////////////////////////////////////////////////////////////////////

func (d *Driver) Mounted(mountPoint string) error {
	logger.Infof("mounted at %s", mountPoint)

	d.remoteMu.Lock()
	defer d.remoteMu.Unlock()

	if err := d.store.Connect(context.Background()); err != nil {
		logger.Errorf("connection failed: %v", err)
		return StatusConnectionDisconnected
	}

	return nil
}

func (d *Driver) Unmounted() error {
	logger.Infof("unmounted")

	d.remoteMu.Lock()
	defer d.remoteMu.Unlock()

	if err := d.store.Disconnect(context.Background()); err != nil {
		logger.Errorf("disconnection failed: %v", err)
		return StatusConnectionDisconnected
	}

	return nil
}

////////////////////////////////////////////////////////////////////////
// Open and close
////////////////////////////////////////////////////////////////////////

func (d *Driver) CreateFile(name string, desiredAccess, fileAttrs, shareAccess, disposition, options uint32, info *OperationInfo) (CreateFileInfo, error) {
	if disposition > FileMaximumDisposition {
		return CreateFileInfo{}, StatusInvalidParameter
	}

	pathName, streamName := splitStreamName(name)
	remotePath := toRemotePath(pathName)
	deleteOnClose := options&FileDeleteOnClose != 0

	stat, err := d.tryStat(remotePath)
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		logger.Errorf("stat %q failed: %v", remotePath, err)
		return CreateFileInfo{}, StatusConnectionDisconnected
	}

	if stat != nil {
		return d.openExisting(stat, remotePath, streamName, desiredAccess, disposition, options, deleteOnClose)
	}
	return d.createMissing(remotePath, disposition, options, deleteOnClose)
}

// openExisting handles the create-disposition matrix for a path the
// remote already has.
func (d *Driver) openExisting(stat *Stat, remotePath, streamName string, desiredAccess, disposition, options uint32, deleteOnClose bool) (CreateFileInfo, error) {
	readonly := stat.readonly()

	if readonly && desiredAccess&(FileWriteData|FileAppendData) != 0 {
		return CreateFileInfo{}, StatusAccessDenied
	}

	stat.mu.RLock()
	deletePending := stat.deletePending
	isDir := stat.file.IsDir()
	stat.mu.RUnlock()

	if deletePending {
		return CreateFileInfo{}, StatusDeletePending
	}
	if readonly && deleteOnClose {
		return CreateFileInfo{}, StatusCannotDelete
	}

	if streamName != "" {
		return d.openAltStream(stat, streamName, disposition, readonly, deleteOnClose)
	}

	if !isDir {
		if options&FileDirectoryFile != 0 {
			return CreateFileInfo{}, StatusNotADirectory
		}
		switch disposition {
		case FileSupersede, FileOverwrite, FileOverwriteIf:
			if disposition != FileSupersede && readonly {
				return CreateFileInfo{}, StatusAccessDenied
			}
		case FileCreate:
			return CreateFileInfo{}, StatusObjectNameCollision
		}
		return CreateFileInfo{
			Context: newStatHandle(stat, nil, "", deleteOnClose),
		}, nil
	}

	if options&FileNonDirectoryFile != 0 {
		return CreateFileInfo{}, StatusFileIsADirectory
	}
	switch disposition {
	case FileOpen, FileOpenIf:
		return CreateFileInfo{
			Context: newStatHandle(stat, nil, "", deleteOnClose),
			IsDir:   true,
		}, nil
	case FileCreate:
		return CreateFileInfo{}, StatusObjectNameCollision
	default:
		return CreateFileInfo{}, StatusInvalidParameter
	}
}

// openAltStream applies the disposition matrix to the named stream of an
// existing file.
func (d *Driver) openAltStream(stat *Stat, streamName string, disposition uint32, readonly, deleteOnClose bool) (CreateFileInfo, error) {
	key := strings.ToLower(streamName)

	stat.mu.Lock()
	defer stat.mu.Unlock()

	if existing, ok := stat.altStreams[key]; ok {
		existing.mu.RLock()
		streamDeletePending := existing.deletePending
		existing.mu.RUnlock()
		if streamDeletePending {
			return CreateFileInfo{}, StatusDeletePending
		}

		switch disposition {
		case FileSupersede, FileOverwrite, FileOverwriteIf:
			if disposition != FileSupersede && readonly {
				return CreateFileInfo{}, StatusAccessDenied
			}
		case FileCreate:
			return CreateFileInfo{}, StatusObjectNameCollision
		}

		stat.handleCount++
		return CreateFileInfo{
			Context: &StatHandle{stat: stat, altStream: existing, streamName: key, deleteOnClose: deleteOnClose},
		}, nil
	}

	if disposition == FileOpen || disposition == FileOverwrite {
		return CreateFileInfo{}, StatusObjectNameNotFound
	}
	if readonly {
		return CreateFileInfo{}, StatusAccessDenied
	}

	altStream := &AltStream{}
	stat.altStreams[key] = altStream
	stat.handleCount++

	return CreateFileInfo{
		Context:        &StatHandle{stat: stat, altStream: altStream, streamName: key, deleteOnClose: deleteOnClose},
		NewFileCreated: true,
	}, nil
}

// createMissing creates the entry an open-style disposition asked for on
// a path the remote doesn't have.
func (d *Driver) createMissing(remotePath string, disposition, options uint32, deleteOnClose bool) (CreateFileInfo, error) {
	if disposition != FileOpen && disposition != FileOpenIf {
		return CreateFileInfo{}, StatusInvalidParameter
	}

	ctx := context.Background()

	if options&FileNonDirectoryFile != 0 {
		mode := remote.UnixPex(0o644)
		file := remote.File{
			Path:     remotePath,
			Metadata: remote.Metadata{Mode: &mode, Type: remote.TypeFile},
		}

		d.remoteMu.Lock()
		_, err := d.bridge.Write(ctx, file, nil, 0)
		d.remoteMu.Unlock()
		if err != nil {
			logger.Errorf("create %q failed: %v", remotePath, err)
			return CreateFileInfo{}, StatusConnectionDisconnected
		}

		stat, err := d.tryStat(remotePath)
		if err != nil {
			logger.Errorf("stat %q failed: %v", remotePath, err)
			return CreateFileInfo{}, StatusConnectionDisconnected
		}

		return CreateFileInfo{
			Context:        newStatHandle(stat, nil, "", deleteOnClose),
			NewFileCreated: true,
		}, nil
	}

	d.remoteMu.Lock()
	err := d.store.CreateDir(ctx, remotePath, remote.UnixPex(0o755))
	d.remoteMu.Unlock()
	if err != nil {
		logger.Errorf("create_dir %q failed: %v", remotePath, err)
		return CreateFileInfo{}, StatusConnectionDisconnected
	}

	stat, err := d.tryStat(remotePath)
	if err != nil {
		logger.Errorf("stat %q failed: %v", remotePath, err)
		return CreateFileInfo{}, StatusConnectionDisconnected
	}

	return CreateFileInfo{
		Context:        newStatHandle(stat, nil, "", deleteOnClose),
		IsDir:          true,
		NewFileCreated: true,
	}, nil
}

func (d *Driver) Cleanup(name string, info *OperationInfo, ctx *StatHandle) {
	pathName, _ := splitStreamName(name)
	remotePath := toRemotePath(pathName)

	ctx.stat.mu.RLock()
	statDelete := ctx.stat.deleteOnClose || ctx.stat.deletePending
	isDir := ctx.stat.file.IsDir()
	ctx.stat.mu.RUnlock()

	streamDelete := false
	if ctx.altStream != nil {
		ctx.altStream.mu.RLock()
		streamDelete = ctx.altStream.deletePending
		ctx.altStream.mu.RUnlock()
	}

	if !ctx.deleteOnClose && !statDelete && !info.DeleteOnClose && !streamDelete {
		return
	}

	// An alternate stream dies inside its Stat; everything else dies on
	// the remote.
	if ctx.altStream != nil {
		ctx.stat.mu.Lock()
		delete(ctx.stat.altStreams, ctx.streamName)
		ctx.stat.mu.Unlock()
		return
	}

	bg := context.Background()
	d.remoteMu.Lock()
	var err error
	if isDir {
		err = d.store.RemoveDir(bg, remotePath)
	} else {
		err = d.store.RemoveFile(bg, remotePath)
	}
	d.remoteMu.Unlock()
	if err != nil {
		logger.Errorf("cleanup remove %q failed: %v", remotePath, err)
	}

	d.cache.remove(remotePath)
}

func (d *Driver) CloseFile(name string, ctx *StatHandle) {
	pathName, _ := splitStreamName(name)

	ctx.stat.mu.Lock()
	if ctx.stat.handleCount > 0 {
		ctx.stat.handleCount--
	}
	ctx.stat.mu.Unlock()

	d.cache.remove(toRemotePath(pathName))
}

////////////////////////////////////////////////////////////////////////
// I/O
////////////////////////////////////////////////////////////////////////

func (d *Driver) ReadFile(name string, offset int64, buf []byte, ctx *StatHandle) (int, error) {
	if ctx.altStream != nil {
		return ctx.altStream.readAt(buf, offset), nil
	}

	file := ctx.stat.File()

	// Clamp to the content that exists.
	n := file.Metadata.Size - offset
	if n <= 0 {
		return 0, nil
	}
	if n > int64(len(buf)) {
		n = int64(len(buf))
	}

	d.remoteMu.Lock()
	read, err := d.bridge.Read(context.Background(), file.Path, buf[:n], offset)
	d.remoteMu.Unlock()
	if err != nil {
		logger.Errorf("read %q failed: %v", file.Path, err)
		return 0, StatusInvalidDeviceRequest
	}

	return read, nil
}

func (d *Driver) WriteFile(name string, offset int64, data []byte, info *OperationInfo, ctx *StatHandle) (int, error) {
	if ctx.altStream != nil {
		return ctx.altStream.writeAt(data, offset, info.WriteToEOF), nil
	}

	file := ctx.stat.File()

	var n int
	var err error
	d.remoteMu.Lock()
	if info.WriteToEOF {
		n, err = d.bridge.Append(context.Background(), file, data)
	} else {
		n, err = d.bridge.Write(context.Background(), file, data, offset)
	}
	d.remoteMu.Unlock()
	if err != nil {
		logger.Errorf("write %q failed: %v", file.Path, err)
		return 0, StatusInvalidDeviceRequest
	}

	// Keep the cached size in step with what landed.
	ctx.stat.mu.Lock()
	if info.WriteToEOF {
		ctx.stat.file.Metadata.Size += int64(n)
	} else if end := offset + int64(n); end > ctx.stat.file.Metadata.Size {
		ctx.stat.file.Metadata.Size = end
	}
	ctx.stat.mu.Unlock()

	return n, nil
}

func (d *Driver) FlushFileBuffers(name string, ctx *StatHandle) error {
	// Writes commit synchronously.
	return nil
}

////////////////////////////////////////////////////////////////////////
// Metadata
////////////////////////////////////////////////////////////////////////

func (d *Driver) GetFileInformation(name string, ctx *StatHandle) (FileInfo, error) {
	file := ctx.stat.File()
	md := &file.Metadata

	size := md.Size
	if ctx.altStream != nil {
		size = ctx.altStream.size()
	}

	return FileInfo{
		Attributes:     fileAttributes(&file),
		CreationTime:   timeOrEpoch(md.Created),
		LastAccessTime: timeOrEpoch(md.Accessed),
		LastWriteTime:  timeOrEpoch(md.Modified),
		FileSize:       size,
		NumberOfLinks:  1,
		FileIndex:      fileIndex(file.Path),
	}, nil
}

func (d *Driver) FindFiles(name string, fill FillFindData, ctx *StatHandle) error {
	return d.FindFilesWithPattern(name, "*", fill, ctx)
}

func (d *Driver) FindFilesWithPattern(name, pattern string, fill FillFindData, ctx *StatHandle) error {
	if ctx.altStream != nil {
		return StatusInvalidParameter
	}

	file := ctx.stat.File()
	if !file.IsDir() {
		return StatusNotADirectory
	}

	var emit func(dir string) error
	emit = func(dir string) error {
		d.remoteMu.Lock()
		entries, err := d.store.List(context.Background(), dir)
		d.remoteMu.Unlock()
		if err != nil {
			logger.Errorf("list %q failed: %v", dir, err)
			return StatusInvalidDeviceRequest
		}

		for i := range entries {
			e := &entries[i]
			base := path.Base(e.Path)
			if pattern == "*" || IsNameInExpression(pattern, base, true) {
				fd := FindData{
					Attributes:     fileAttributes(e),
					CreationTime:   timeOrEpoch(e.Metadata.Created),
					LastAccessTime: timeOrEpoch(e.Metadata.Accessed),
					LastWriteTime:  timeOrEpoch(e.Metadata.Modified),
					FileSize:       e.Metadata.Size,
					FileName:       base,
				}
				switch err := fill(&fd); {
				case errors.Is(err, ErrFillNameTooLong):
					// Skip the entry, keep enumerating.
				case errors.Is(err, ErrFillBufferFull):
					return StatusBufferOverflow
				case err != nil:
					return err
				}
			}
			if e.IsDir() {
				if err := emit(e.Path); err != nil {
					return err
				}
			}
		}

		return nil
	}

	return emit(file.Path)
}

func (d *Driver) SetFileTime(name string, creation, lastAccess, lastWrite TimeOperation, ctx *StatHandle) error {
	file := ctx.stat.File()
	md := file.Metadata

	if creation.Kind == TimeSetTime {
		t := creation.Time
		md.Created = &t
	}
	if lastAccess.Kind == TimeSetTime {
		t := lastAccess.Time
		md.Accessed = &t
	}
	if lastWrite.Kind == TimeSetTime {
		t := lastWrite.Time
		md.Modified = &t
	}

	d.remoteMu.Lock()
	err := d.store.SetStat(context.Background(), file.Path, md)
	d.remoteMu.Unlock()
	if err != nil {
		logger.Errorf("setstat %q failed: %v", file.Path, err)
		return StatusInvalidDeviceRequest
	}

	ctx.stat.mu.Lock()
	ctx.stat.file.Metadata = md
	ctx.stat.mu.Unlock()

	return nil
}

////////////////////////////////////////////////////////////////////////
// Deletion and movement
////////////////////////////////////////////////////////////////////////

func (d *Driver) DeleteFile(name string, info *OperationInfo, ctx *StatHandle) error {
	ctx.stat.mu.RLock()
	isDir := ctx.stat.file.IsDir()
	ctx.stat.mu.RUnlock()

	if isDir {
		return StatusCannotDelete
	}

	if ctx.altStream != nil {
		ctx.altStream.mu.Lock()
		defer ctx.altStream.mu.Unlock()
		if ctx.altStream.deletePending {
			return StatusDeletePending
		}
		ctx.altStream.deletePending = info.DeleteOnClose
		return nil
	}

	ctx.stat.mu.Lock()
	ctx.stat.deletePending = info.DeleteOnClose
	ctx.stat.mu.Unlock()

	return nil
}

func (d *Driver) DeleteDirectory(name string, info *OperationInfo, ctx *StatHandle) error {
	file := ctx.stat.File()
	if !file.IsDir() {
		return StatusNotADirectory
	}

	if info.DeleteOnClose {
		d.remoteMu.Lock()
		entries, err := d.store.List(context.Background(), file.Path)
		d.remoteMu.Unlock()
		if err != nil {
			logger.Errorf("list %q failed: %v", file.Path, err)
			return StatusInvalidDeviceRequest
		}
		if len(entries) != 0 {
			return StatusDirectoryNotEmpty
		}
	}

	ctx.stat.mu.Lock()
	ctx.stat.deletePending = info.DeleteOnClose
	ctx.stat.mu.Unlock()

	if ctx.altStream != nil {
		ctx.altStream.mu.Lock()
		ctx.altStream.deletePending = info.DeleteOnClose
		ctx.altStream.mu.Unlock()
	}

	return nil
}

func (d *Driver) MoveFile(name, newName string, replaceIfExisting bool, ctx *StatHandle) error {
	srcName, _ := splitStreamName(name)
	dstName, _ := splitStreamName(newName)
	src := toRemotePath(srcName)
	dst := toRemotePath(dstName)

	bg := context.Background()

	if !replaceIfExisting {
		d.remoteMu.Lock()
		exists, err := d.store.Exists(bg, dst)
		d.remoteMu.Unlock()
		if err != nil {
			logger.Errorf("exists %q failed: %v", dst, err)
			return StatusInvalidDeviceRequest
		}
		if exists {
			return StatusObjectNameCollision
		}
	}

	d.remoteMu.Lock()
	err := d.store.Move(bg, src, dst)
	d.remoteMu.Unlock()
	if err != nil {
		logger.Errorf("move %q -> %q failed: %v", src, dst, err)
		return StatusInvalidDeviceRequest
	}

	d.cache.rename(src, dst)
	ctx.stat.mu.Lock()
	ctx.stat.file.Path = dst
	ctx.stat.mu.Unlock()

	return nil
}

func (d *Driver) SetEndOfFile(name string, offset int64, ctx *StatHandle) error {
	if ctx.altStream != nil {
		ctx.altStream.resize(offset)
		return nil
	}

	file := ctx.stat.File()
	md := file.Metadata
	md.Size = offset

	d.remoteMu.Lock()
	err := d.store.SetStat(context.Background(), file.Path, md)
	d.remoteMu.Unlock()
	if err != nil {
		logger.Errorf("set_end_of_file %q failed: %v", file.Path, err)
		return StatusInvalidDeviceRequest
	}

	ctx.stat.mu.Lock()
	ctx.stat.file.Metadata.Size = offset
	ctx.stat.mu.Unlock()

	return nil
}

func (d *Driver) SetAllocationSize(name string, size int64, ctx *StatHandle) error {
	if ctx.altStream != nil {
		ctx.altStream.resize(size)
		return nil
	}
	return StatusNotImplemented
}

////////////////////////////////////////////////////////////////////////
// Volume
////////////////////////////////////////////////////////////////////////

func (d *Driver) GetVolumeInformation() (VolumeInfo, error) {
	return VolumeInfo{
		Name:               "remotefs-fuse",
		SerialNumber:       0,
		MaxComponentLength: 255,
		FSFlags:            FileCaseSensitiveSearch | FileCasePreservedNames,
		FSName:             "DOKANY",
	}, nil
}

func (d *Driver) GetFileSecurity(name string, securityInformation uint32, buf []byte, ctx *StatHandle) (int, error) {
	ctx.stat.mu.RLock()
	defer ctx.stat.mu.RUnlock()

	size := ctx.stat.secDesc.Read(buf)
	if size > len(buf) {
		return size, StatusBufferOverflow
	}
	return size, nil
}

func (d *Driver) SetFileSecurity(name string, securityInformation uint32, descriptor []byte, ctx *StatHandle) error {
	ctx.stat.mu.Lock()
	defer ctx.stat.mu.Unlock()

	ctx.stat.secDesc.Write(descriptor)
	return nil
}

func (d *Driver) FindStreams(name string, fill FillFindStreamData, ctx *StatHandle) error {
	file := ctx.stat.File()

	report := func(fd *FindStreamData) error {
		switch err := fill(fd); {
		case errors.Is(err, ErrFillNameTooLong):
			return nil
		case errors.Is(err, ErrFillBufferFull):
			return StatusBufferOverflow
		default:
			return err
		}
	}

	if err := report(&FindStreamData{Size: file.Metadata.Size, Name: "::$DATA"}); err != nil {
		return err
	}

	ctx.stat.mu.RLock()
	streams := make(map[string]*AltStream, len(ctx.stat.altStreams))
	for k, v := range ctx.stat.altStreams {
		streams[k] = v
	}
	ctx.stat.mu.RUnlock()

	for streamName, altStream := range streams {
		if err := report(&FindStreamData{Size: altStream.size(), Name: ":" + streamName + ":$DATA"}); err != nil {
			return err
		}
	}

	return nil
}
