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

import "github.com/jacobsa/fuse/fuseops"

// OpenHandle records what an open file or directory handle is allowed to
// do and which inode it refers to.
type OpenHandle struct {
	Inode fuseops.InodeID
	Read  bool
	Write bool
}

// HandleTable tracks open handles per requesting process. Handle numbers
// are scoped to the pid that opened them: a lookup under a different pid
// misses. The most recently closed number is handed out again before a
// fresh one is allocated, keeping the id space compact.
type HandleTable struct {
	procs map[uint32]*processHandles
}

type processHandles struct {
	handles map[fuseops.HandleID]OpenHandle
	next    fuseops.HandleID
}

// NewHandleTable creates an empty table.
func NewHandleTable() *HandleTable {
	return &HandleTable{procs: make(map[uint32]*processHandles)}
}

// Open registers a handle for pid and returns its number.
func (t *HandleTable) Open(pid uint32, ino fuseops.InodeID, read, write bool) fuseops.HandleID {
	ph, ok := t.procs[pid]
	if !ok {
		ph = &processHandles{handles: make(map[fuseops.HandleID]OpenHandle)}
		t.procs[pid] = ph
	}

	fh := ph.next
	ph.handles[fh] = OpenHandle{Inode: ino, Read: read, Write: write}
	ph.next = fuseops.HandleID(len(ph.handles))
	for _, used := ph.handles[ph.next]; used; _, used = ph.handles[ph.next] {
		ph.next++
	}

	return fh
}

// Get returns the handle as seen by pid.
func (t *HandleTable) Get(pid uint32, fh fuseops.HandleID) (OpenHandle, bool) {
	ph, ok := t.procs[pid]
	if !ok {
		return OpenHandle{}, false
	}
	h, ok := ph.handles[fh]
	return h, ok
}

// Close removes the handle; the freed number is the next one Open hands
// out for the same pid. A process whose last handle closes is dropped
// from the table entirely.
func (t *HandleTable) Close(pid uint32, fh fuseops.HandleID) {
	ph, ok := t.procs[pid]
	if !ok {
		return
	}

	delete(ph.handles, fh)
	ph.next = fh

	if len(ph.handles) == 0 {
		delete(t.procs, pid)
	}
}
