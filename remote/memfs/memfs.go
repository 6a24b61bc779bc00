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

// Package memfs provides an in-memory remote.Store. It backs the `memory`
// CLI subcommand and the driver test suites.
package memfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/darktohka/remotefs-fuse/remote"
)

type node struct {
	md   remote.Metadata
	data []byte
}

// Store is an in-memory remote.Store rooted at "/".
type Store struct {
	mu        sync.RWMutex
	nodes     map[string]*node
	connected bool

	// streaming disabled forces OpenRead/OpenWrite/OpenAppend to report
	// remote.ErrUnsupported so callers exercise their whole-file
	// fallbacks. Only the test suites flip this.
	streamingDisabled bool
}

// New returns an empty store containing only the root directory, owned by
// uid/gid with mode 0o755.
func New(uid, gid uint32) *Store {
	mode := remote.UnixPex(0o755)
	now := time.Now()
	return &Store{
		nodes: map[string]*node{
			"/": {
				md: remote.Metadata{
					UID:      &uid,
					GID:      &gid,
					Mode:     &mode,
					Accessed: &now,
					Modified: &now,
					Created:  &now,
					Type:     remote.TypeDirectory,
				},
			},
		},
	}
}

// DisableStreaming makes every stream-returning operation report
// remote.ErrUnsupported, forcing whole-file fallbacks.
func (s *Store) DisableStreaming() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamingDisabled = true
}

func clean(p string) string {
	p = path.Clean("/" + strings.TrimPrefix(p, "/"))
	return p
}

func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *Store) Stat(ctx context.Context, p string) (remote.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p = clean(p)
	n, ok := s.nodes[p]
	if !ok {
		return remote.File{}, fmt.Errorf("stat %q: %w", p, remote.ErrNotFound)
	}

	return remote.File{Path: p, Metadata: n.md}, nil
}

func (s *Store) List(ctx context.Context, p string) ([]remote.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p = clean(p)
	n, ok := s.nodes[p]
	if !ok {
		return nil, fmt.Errorf("list %q: %w", p, remote.ErrNotFound)
	}
	if n.md.Type != remote.TypeDirectory {
		return nil, fmt.Errorf("list %q: %w", p, remote.ErrNotADirectory)
	}

	var out []remote.File
	for candidate, cn := range s.nodes {
		if candidate == "/" {
			continue
		}
		if path.Dir(candidate) == p {
			out = append(out, remote.File{Path: candidate, Metadata: cn.md})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })

	return out, nil
}

func (s *Store) Exists(ctx context.Context, p string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.nodes[clean(p)]
	return ok, nil
}

func (s *Store) CreateDir(ctx context.Context, p string, mode remote.UnixPex) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p = clean(p)
	if _, ok := s.nodes[p]; ok {
		return fmt.Errorf("mkdir %q: %w", p, remote.ErrAlreadyExists)
	}
	if err := s.requireDir(path.Dir(p)); err != nil {
		return err
	}

	now := time.Now()
	s.nodes[p] = &node{
		md: remote.Metadata{
			Mode:     &mode,
			Accessed: &now,
			Modified: &now,
			Created:  &now,
			Type:     remote.TypeDirectory,
		},
	}

	return nil
}

func (s *Store) requireDir(p string) error {
	n, ok := s.nodes[p]
	if !ok {
		return fmt.Errorf("%q: %w", p, remote.ErrNotFound)
	}
	if n.md.Type != remote.TypeDirectory {
		return fmt.Errorf("%q: %w", p, remote.ErrNotADirectory)
	}
	return nil
}

func (s *Store) RemoveFile(ctx context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p = clean(p)
	n, ok := s.nodes[p]
	if !ok {
		return fmt.Errorf("remove %q: %w", p, remote.ErrNotFound)
	}
	if n.md.Type == remote.TypeDirectory {
		return fmt.Errorf("remove %q: %w", p, remote.ErrIsADirectory)
	}
	delete(s.nodes, p)

	return nil
}

func (s *Store) RemoveDir(ctx context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p = clean(p)
	n, ok := s.nodes[p]
	if !ok {
		return fmt.Errorf("rmdir %q: %w", p, remote.ErrNotFound)
	}
	if n.md.Type != remote.TypeDirectory {
		return fmt.Errorf("rmdir %q: %w", p, remote.ErrNotADirectory)
	}
	for candidate := range s.nodes {
		if path.Dir(candidate) == p && candidate != "/" {
			return fmt.Errorf("rmdir %q: %w", p, remote.ErrDirNotEmpty)
		}
	}
	delete(s.nodes, p)

	return nil
}

func (s *Store) Move(ctx context.Context, src, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src = clean(src)
	dst = clean(dst)
	n, ok := s.nodes[src]
	if !ok {
		return fmt.Errorf("move %q: %w", src, remote.ErrNotFound)
	}
	if err := s.requireDir(path.Dir(dst)); err != nil {
		return err
	}

	delete(s.nodes, src)
	s.nodes[dst] = n

	// Move children along with a directory.
	if n.md.Type == remote.TypeDirectory {
		prefix := src + "/"
		for candidate, cn := range s.nodes {
			if strings.HasPrefix(candidate, prefix) {
				delete(s.nodes, candidate)
				s.nodes[dst+"/"+strings.TrimPrefix(candidate, prefix)] = cn
			}
		}
	}

	return nil
}

func (s *Store) Symlink(ctx context.Context, p, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p = clean(p)
	if _, ok := s.nodes[p]; ok {
		return fmt.Errorf("symlink %q: %w", p, remote.ErrAlreadyExists)
	}
	if err := s.requireDir(path.Dir(p)); err != nil {
		return err
	}

	mode := remote.UnixPex(0o777)
	now := time.Now()
	s.nodes[p] = &node{
		md: remote.Metadata{
			Size:     int64(len(target)),
			Mode:     &mode,
			Accessed: &now,
			Modified: &now,
			Created:  &now,
			Type:     remote.TypeSymlink,
		},
		data: []byte(target),
	}

	return nil
}

func (s *Store) SetStat(ctx context.Context, p string, md remote.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p = clean(p)
	n, ok := s.nodes[p]
	if !ok {
		return fmt.Errorf("setstat %q: %w", p, remote.ErrNotFound)
	}

	if md.Mode != nil {
		n.md.Mode = md.Mode
	}
	if md.UID != nil {
		n.md.UID = md.UID
	}
	if md.GID != nil {
		n.md.GID = md.GID
	}
	if md.Accessed != nil {
		n.md.Accessed = md.Accessed
	}
	if md.Modified != nil {
		n.md.Modified = md.Modified
	}
	if md.Created != nil {
		n.md.Created = md.Created
	}
	if md.Size != n.md.Size && n.md.Type == remote.TypeFile {
		// Truncate or zero-extend to the requested size.
		if md.Size < int64(len(n.data)) {
			n.data = n.data[:md.Size]
		} else {
			n.data = append(n.data, make([]byte, md.Size-int64(len(n.data)))...)
		}
		n.md.Size = md.Size
	}

	return nil
}

type readStream struct {
	*bytes.Reader
}

func (readStream) Close() error { return nil }

func (s *Store) OpenRead(ctx context.Context, p string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.streamingDisabled {
		return nil, fmt.Errorf("open %q: %w", p, remote.ErrUnsupported)
	}
	p = clean(p)
	n, ok := s.nodes[p]
	if !ok {
		return nil, fmt.Errorf("open %q: %w", p, remote.ErrNotFound)
	}

	buf := make([]byte, len(n.data))
	copy(buf, n.data)

	return readStream{bytes.NewReader(buf)}, nil
}

func (s *Store) FetchFile(ctx context.Context, p string, dst io.Writer) (int64, error) {
	s.mu.RLock()
	p = clean(p)
	n, ok := s.nodes[p]
	if !ok {
		s.mu.RUnlock()
		return 0, fmt.Errorf("fetch %q: %w", p, remote.ErrNotFound)
	}
	buf := make([]byte, len(n.data))
	copy(buf, n.data)
	s.mu.RUnlock()

	nw, err := dst.Write(buf)
	return int64(nw), err
}

// writeStream buffers writes and commits them to the node on Close. It is
// seekable so the driver can write at an offset.
type writeStream struct {
	s      *Store
	path   string
	md     remote.Metadata
	buf    []byte
	pos    int64
	append bool
}

func (w *writeStream) Write(p []byte) (int, error) {
	end := w.pos + int64(len(p))
	if end > int64(len(w.buf)) {
		w.buf = append(w.buf, make([]byte, end-int64(len(w.buf)))...)
	}
	copy(w.buf[w.pos:end], p)
	w.pos = end
	return len(p), nil
}

func (w *writeStream) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = w.pos
	case io.SeekEnd:
		base = int64(len(w.buf))
	default:
		return 0, fmt.Errorf("seek %q: invalid whence %d", w.path, whence)
	}
	pos := base + offset
	if pos < 0 {
		return 0, fmt.Errorf("seek %q: negative position", w.path)
	}
	if pos > int64(len(w.buf)) {
		w.buf = append(w.buf, make([]byte, pos-int64(len(w.buf)))...)
	}
	w.pos = pos
	return pos, nil
}

func (w *writeStream) Close() error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	n, ok := w.s.nodes[w.path]
	if !ok {
		n = &node{md: w.md}
		n.md.Type = remote.TypeFile
		w.s.nodes[w.path] = n
	}
	if w.append {
		n.data = append(n.data, w.buf...)
	} else {
		n.data = w.buf
	}
	now := time.Now()
	n.md.Size = int64(len(n.data))
	n.md.Modified = &now
	if w.md.Mode != nil && n.md.Mode == nil {
		n.md.Mode = w.md.Mode
	}

	return nil
}

func (s *Store) OpenWrite(ctx context.Context, p string, md remote.Metadata) (io.WriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streamingDisabled {
		return nil, fmt.Errorf("create %q: %w", p, remote.ErrUnsupported)
	}
	p = clean(p)
	if err := s.requireDir(path.Dir(p)); err != nil {
		return nil, err
	}

	// Writing at an offset must see the existing content, so seed the
	// buffer with it.
	w := &writeStream{s: s, path: p, md: md}
	if n, ok := s.nodes[p]; ok {
		w.buf = make([]byte, len(n.data))
		copy(w.buf, n.data)
	}

	return w, nil
}

func (s *Store) OpenAppend(ctx context.Context, p string, md remote.Metadata) (io.WriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streamingDisabled {
		return nil, fmt.Errorf("append %q: %w", p, remote.ErrUnsupported)
	}
	p = clean(p)
	if err := s.requireDir(path.Dir(p)); err != nil {
		return nil, err
	}

	return &writeStream{s: s, path: p, md: md, append: true}, nil
}

func (s *Store) CreateFile(ctx context.Context, p string, md remote.Metadata, src io.Reader) (int64, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p = clean(p)
	if err := s.requireDir(path.Dir(p)); err != nil {
		return 0, err
	}

	now := time.Now()
	md.Size = int64(len(data))
	md.Modified = &now
	md.Type = remote.TypeFile
	if existing, ok := s.nodes[p]; ok {
		if md.Mode == nil {
			md.Mode = existing.md.Mode
		}
		if md.Created == nil {
			md.Created = existing.md.Created
		}
	} else if md.Created == nil {
		md.Created = &now
	}
	s.nodes[p] = &node{md: md, data: data}

	return int64(len(data)), nil
}

func (s *Store) AppendFile(ctx context.Context, p string, md remote.Metadata, src io.Reader) (int64, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p = clean(p)
	n, ok := s.nodes[p]
	if !ok {
		if err := s.requireDir(path.Dir(p)); err != nil {
			return 0, err
		}
		md.Type = remote.TypeFile
		n = &node{md: md}
		s.nodes[p] = n
	}
	n.data = append(n.data, data...)
	now := time.Now()
	n.md.Size = int64(len(n.data))
	n.md.Modified = &now

	return int64(len(data)), nil
}
