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

// Package remote defines the capability interface the driver consumes: a
// path-addressed view of a remote file store, plus the domain types shared
// by every backend implementation.
package remote

import (
	"context"
	"io"
	"time"
)

// FileType is the kind of a remote entry.
type FileType int

const (
	TypeFile FileType = iota
	TypeDirectory
	TypeSymlink
)

// UnixPex is a 9-bit POSIX permission word (owner/group/other rwx).
type UnixPex uint32

const (
	PexOwnerRead  UnixPex = 0o400
	PexOwnerWrite UnixPex = 0o200
	PexOwnerExec  UnixPex = 0o100
	PexGroupRead  UnixPex = 0o040
	PexGroupWrite UnixPex = 0o020
	PexGroupExec  UnixPex = 0o010
	PexOtherRead  UnixPex = 0o004
	PexOtherWrite UnixPex = 0o002
	PexOtherExec  UnixPex = 0o001
)

// Bits returns the permission word with anything outside the 9 permission
// bits masked off.
func (p UnixPex) Bits() uint32 {
	return uint32(p) & 0o777
}

// AnyExec reports whether any of the three execute bits is set.
func (p UnixPex) AnyExec() bool {
	return p&(PexOwnerExec|PexGroupExec|PexOtherExec) != 0
}

// AnyWrite reports whether any of the three write bits is set.
func (p UnixPex) AnyWrite() bool {
	return p&(PexOwnerWrite|PexGroupWrite|PexOtherWrite) != 0
}

// Metadata carries the attributes a backend knows about an entry. Optional
// fields are nil when the backend doesn't track them.
type Metadata struct {
	Size     int64
	UID      *uint32
	GID      *uint32
	Mode     *UnixPex
	Accessed *time.Time
	Modified *time.Time
	Created  *time.Time
	Type     FileType
}

// File is a remote entry: its absolute path in the remote namespace plus
// its metadata.
type File struct {
	Path     string
	Metadata Metadata
}

// IsDir reports whether the entry is a directory.
func (f *File) IsDir() bool {
	return f.Metadata.Type == TypeDirectory
}

// IsFile reports whether the entry is a regular file.
func (f *File) IsFile() bool {
	return f.Metadata.Type == TypeFile
}

// IsSymlink reports whether the entry is a symbolic link.
func (f *File) IsSymlink() bool {
	return f.Metadata.Type == TypeSymlink
}

// Store is the path-addressed capability over a remote file store.
//
// All blocking operations take a context. Operations a backend cannot
// perform return an error wrapping ErrUnsupported; the caller (the stream
// bridge in particular) uses that to select a fallback path. Paths are
// always absolute, slash-separated, rooted at "/".
type Store interface {
	// Connect establishes the session. It must be called before any other
	// operation.
	Connect(ctx context.Context) error

	// Disconnect tears the session down. The store must not be used
	// afterwards.
	Disconnect(ctx context.Context) error

	// Stat returns the entry at path, or an error wrapping ErrNotFound.
	Stat(ctx context.Context, path string) (File, error)

	// List returns the immediate children of the directory at path.
	List(ctx context.Context, path string) ([]File, error)

	// Exists reports whether an entry exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// CreateDir creates the directory at path with the given permissions.
	CreateDir(ctx context.Context, path string, mode UnixPex) error

	// RemoveFile removes the regular file or symlink at path.
	RemoveFile(ctx context.Context, path string) error

	// RemoveDir removes the directory at path. The directory must be
	// empty.
	RemoveDir(ctx context.Context, path string) error

	// Move renames src to dst.
	Move(ctx context.Context, src, dst string) error

	// Symlink creates a symbolic link at path pointing at target.
	Symlink(ctx context.Context, path, target string) error

	// SetStat applies the supplied metadata to the entry at path.
	SetStat(ctx context.Context, path string, md Metadata) error

	// OpenRead returns a stream over the content at path, positioned at
	// the start. Streams are not seekable in general.
	OpenRead(ctx context.Context, path string) (io.ReadCloser, error)

	// FetchFile downloads the whole content at path into dst, returning
	// the byte count. This is the non-streaming read primitive.
	FetchFile(ctx context.Context, path string, dst io.Writer) (int64, error)

	// OpenWrite returns a stream that writes the content at path, starting
	// at offset zero. Whether existing bytes past the written range are
	// kept depends on the backend. Closing the stream commits the write. The returned stream may
	// additionally implement io.Seeker.
	OpenWrite(ctx context.Context, path string, md Metadata) (io.WriteCloser, error)

	// OpenAppend returns a stream that appends to the content at path.
	OpenAppend(ctx context.Context, path string, md Metadata) (io.WriteCloser, error)

	// CreateFile writes the whole content of src to path, returning the
	// byte count. This is the non-streaming write primitive.
	CreateFile(ctx context.Context, path string, md Metadata, src io.Reader) (int64, error)

	// AppendFile appends the whole content of src to path, returning the
	// byte count.
	AppendFile(ctx context.Context, path string, md Metadata, src io.Reader) (int64, error)
}
