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
	"os"
	"time"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/darktohka/remotefs-fuse/remote"
)

var epoch = time.Unix(0, 0)

// perm returns the permission bits the mount presents for a file: the
// backend's mode when it has one, otherwise the default_mode mount option,
// otherwise wide open.
func (fs *fileSystem) perm(md *remote.Metadata) os.FileMode {
	switch {
	case md.Mode != nil:
		return os.FileMode(md.Mode.Bits())
	case fs.defaultMode != nil:
		return os.FileMode(fs.defaultMode.Bits())
	default:
		return os.FileMode(0o777)
	}
}

// attributes converts a remote entry into the attribute struct the kernel
// expects, honoring the uid/gid mount overrides.
func (fs *fileSystem) attributes(f *remote.File) fuseops.InodeAttributes {
	md := &f.Metadata

	attrs := fuseops.InodeAttributes{
		Size:   uint64(md.Size),
		Mode:   fs.perm(md),
		Atime:  epoch,
		Mtime:  epoch,
		Ctime:  epoch,
		Crtime: epoch,
	}

	switch md.Type {
	case remote.TypeDirectory:
		attrs.Mode |= os.ModeDir
	case remote.TypeSymlink:
		attrs.Mode |= os.ModeSymlink
	}

	if md.Accessed != nil {
		attrs.Atime = *md.Accessed
	}
	if md.Modified != nil {
		attrs.Mtime = *md.Modified
		attrs.Ctime = *md.Modified
	}

	switch {
	case fs.uid != nil:
		attrs.Uid = *fs.uid
	case md.UID != nil:
		attrs.Uid = *md.UID
	}
	switch {
	case fs.gid != nil:
		attrs.Gid = *fs.gid
	case md.GID != nil:
		attrs.Gid = *md.GID
	}

	return attrs
}

// childEntry fills a lookup response. Cache durations stay zero: the
// driver never caches attributes.
func (fs *fileSystem) childEntry(f *remote.File) fuseops.ChildInodeEntry {
	return fuseops.ChildInodeEntry{
		Child:      PathInode(f.Path),
		Attributes: fs.attributes(f),
	}
}
