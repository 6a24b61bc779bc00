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
	"github.com/cespare/xxhash/v2"
	"github.com/jacobsa/fuse/fuseops"
)

// PathInode returns the inode number for an absolute remote path. The
// root maps to the reserved root inode; every other path hashes to a
// stable 64-bit number, so any callback can recompute the inode without
// consulting the table. Collisions surface as not-found on lookup; at the
// expected namespace sizes their probability is negligible.
func PathInode(path string) fuseops.InodeID {
	if path == "/" {
		return fuseops.RootInodeID
	}
	return fuseops.InodeID(xxhash.Sum64String(path))
}

// InodeTable maps synthetic inode numbers back to the absolute paths they
// were derived from. It exists only to reverse PathInode when the kernel
// hands an inode number to a callback.
//
// INVARIANT: the root entry 1 -> "/" is never removed.
// INVARIANT: for every non-root key i, PathInode(paths[i]) == i.
type InodeTable struct {
	paths map[fuseops.InodeID]string
}

// NewInodeTable creates a table seeded with the root mapping.
func NewInodeTable() *InodeTable {
	return &InodeTable{
		paths: map[fuseops.InodeID]string{
			fuseops.RootInodeID: "/",
		},
	}
}

// Has reports whether the table knows the inode.
func (t *InodeTable) Has(ino fuseops.InodeID) bool {
	_, ok := t.paths[ino]
	return ok
}

// Get returns the path for the inode.
func (t *InodeTable) Get(ino fuseops.InodeID) (string, bool) {
	p, ok := t.paths[ino]
	return p, ok
}

// Put records the mapping for a path. The caller guarantees
// ino == PathInode(path).
func (t *InodeTable) Put(ino fuseops.InodeID, path string) {
	t.paths[ino] = path
}

// PutPath records the path under its derived inode and returns the inode.
func (t *InodeTable) PutPath(path string) fuseops.InodeID {
	ino := PathInode(path)
	t.paths[ino] = path
	return ino
}

// Forget drops the mapping. The root entry is immortal; forgetting it is
// a no-op.
func (t *InodeTable) Forget(ino fuseops.InodeID) {
	if ino == fuseops.RootInodeID {
		return
	}
	delete(t.paths, ino)
}
