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
	"strings"
	"sync"

	"github.com/darktohka/remotefs-fuse/remote"
)

// Stat is one entry of the handle cache: the remote file as last seen,
// its security descriptor, the deletion lifecycle flags, and the in-memory
// alternate data streams bound to it.
//
// LOCK ORDERING: remote mutex, then cache lock, then Stat lock, then
// AltStream lock. A caller that needs the remote while holding a Stat lock
// must release the Stat lock first.
type Stat struct {
	mu sync.RWMutex

	// GUARDED_BY(mu)
	file remote.File
	// GUARDED_BY(mu)
	secDesc SecurityDescriptor
	// GUARDED_BY(mu)
	handleCount uint32
	// GUARDED_BY(mu)
	deletePending bool
	// GUARDED_BY(mu)
	deleteOnClose bool
	// Keyed by lowercased stream name.
	// GUARDED_BY(mu)
	altStreams map[string]*AltStream
}

func newStat(file remote.File) *Stat {
	return &Stat{
		file:       file,
		secDesc:    NewDefaultSecurityDescriptor(),
		altStreams: make(map[string]*AltStream),
	}
}

// File returns a copy of the cached remote file.
func (s *Stat) File() remote.File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file
}

// readonly reports whether all write bits of the cached mode are clear.
func (s *Stat) readonly() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file.Metadata.Mode != nil && !s.file.Metadata.Mode.AnyWrite()
}

// AltStream is a named in-memory byte stream attached to a file. It has
// no remote counterpart; it lives and dies with its Stat entry.
type AltStream struct {
	mu sync.RWMutex

	// GUARDED_BY(mu)
	data []byte
	// GUARDED_BY(mu)
	deletePending bool
}

// readAt copies stream content at offset into buf.
func (a *AltStream) readAt(buf []byte, offset int64) int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if offset >= int64(len(a.data)) {
		return 0
	}
	return copy(buf, a.data[offset:])
}

// writeAt stores data at offset, zero-filling any gap. toEOF appends
// instead.
func (a *AltStream) writeAt(data []byte, offset int64, toEOF bool) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if toEOF {
		offset = int64(len(a.data))
	}
	end := offset + int64(len(data))
	if end > int64(len(a.data)) {
		a.data = append(a.data, make([]byte, end-int64(len(a.data)))...)
	}
	copy(a.data[offset:end], data)

	return len(data)
}

// resize truncates or zero-extends the stream.
func (a *AltStream) resize(size int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case size < int64(len(a.data)):
		a.data = a.data[:size]
	case size > int64(len(a.data)):
		a.data = append(a.data, make([]byte, size-int64(len(a.data)))...)
	}
}

func (a *AltStream) size() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return int64(len(a.data))
}

// StatHandle is the per-open context handed back to the host: the cache
// entry, the alternate stream bound at open (if any), and whether the
// open asked for delete-on-close.
type StatHandle struct {
	stat          *Stat
	altStream     *AltStream
	streamName    string
	deleteOnClose bool
}

// statCache maps lowercased remote paths to their Stat entries. Windows
// names are case-insensitive but case-preserving; the cached file keeps
// the original spelling.
type statCache struct {
	mu      sync.RWMutex
	entries map[string]*Stat
}

func newStatCache() *statCache {
	return &statCache{entries: make(map[string]*Stat)}
}

func cacheKey(path string) string {
	return strings.ToLower(path)
}

func (c *statCache) get(path string) (*Stat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[cacheKey(path)]
	return s, ok
}

// getOrInsert returns the entry for path, inserting the supplied one if
// none is cached yet.
func (c *statCache) getOrInsert(path string, stat *Stat) *Stat {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(path)
	if existing, ok := c.entries[key]; ok {
		return existing
	}
	c.entries[key] = stat
	return stat
}

func (c *statCache) remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(path))
}

func (c *statCache) rename(oldPath, newPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	oldKey := cacheKey(oldPath)
	if s, ok := c.entries[oldKey]; ok {
		delete(c.entries, oldKey)
		c.entries[cacheKey(newPath)] = s
	}
}
