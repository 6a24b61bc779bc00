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

// Package stream bridges byte-range reads and writes onto stores whose
// transfer capabilities vary: it first attempts streaming through the
// remote.Store and, where the store reports remote.ErrUnsupported, falls
// back to whole-file primitives staged through local temporary files.
package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/darktohka/remotefs-fuse/internal/logger"
	"github.com/darktohka/remotefs-fuse/remote"
)

// Bridge performs offset reads and writes against a remote.Store.
type Bridge struct {
	store remote.Store

	// TempDir is where read fallbacks stage whole files. Empty means the
	// system default.
	TempDir string
}

// NewBridge returns a bridge over the supplied store.
func NewBridge(store remote.Store) *Bridge {
	return &Bridge{store: store}
}

// Read fills buf with bytes starting at offset within the content at path,
// returning the byte count. Short counts occur only at end of content.
func (b *Bridge) Read(ctx context.Context, path string, buf []byte, offset int64) (n int, err error) {
	r, err := b.store.OpenRead(ctx, path)
	if errors.Is(err, remote.ErrUnsupported) {
		return b.readViaTempFile(ctx, path, buf, offset)
	}
	if err != nil {
		return 0, err
	}

	defer func() {
		closeErr := r.Close()
		if err == nil && closeErr != nil {
			err = fmt.Errorf("close read stream: %w", closeErr)
		}
	}()

	// Streams are not seekable in the general case, so reach the offset
	// by consuming it.
	if offset > 0 {
		if _, err = io.CopyN(io.Discard, r, offset); err != nil {
			return 0, fmt.Errorf("discard to offset %d: %w", offset, err)
		}
	}

	n, err = io.ReadFull(r, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		err = nil
	}

	return n, err
}

// readViaTempFile stages the whole file locally, then serves the byte
// range from the staged copy. The temporary file never survives the call.
func (b *Bridge) readViaTempFile(ctx context.Context, path string, buf []byte, offset int64) (int, error) {
	tmp, err := os.CreateTemp(b.TempDir, "remotefs-read-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil {
			logger.Warnf("failed to remove temp file %q: %v", tmp.Name(), err)
		}
	}()
	defer tmp.Close()

	if _, err := b.store.FetchFile(ctx, path, tmp); err != nil {
		return 0, err
	}

	if _, err := tmp.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek staged file: %w", err)
	}

	n, err := io.ReadFull(tmp, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		err = nil
	}

	return n, err
}

// Write stores data at offset within the file, returning the byte count.
// On stores without write streams, offset zero degrades to a whole-file
// upload; a non-zero offset cannot be expressed and is reported as
// remote.ErrUnsupported.
func (b *Bridge) Write(ctx context.Context, file remote.File, data []byte, offset int64) (n int, err error) {
	w, err := b.store.OpenWrite(ctx, file.Path, file.Metadata)
	if errors.Is(err, remote.ErrUnsupported) {
		if offset > 0 {
			return 0, fmt.Errorf("write %q at offset %d: %w", file.Path, offset, remote.ErrUnsupported)
		}
		nn, err := b.store.CreateFile(ctx, file.Path, file.Metadata, bytes.NewReader(data))
		return int(nn), err
	}
	if err != nil {
		return 0, err
	}

	if offset > 0 {
		s, ok := w.(io.Seeker)
		if !ok {
			w.Close()
			return 0, fmt.Errorf("write stream for %q is not seekable", file.Path)
		}
		if _, err := s.Seek(offset, io.SeekStart); err != nil {
			w.Close()
			return 0, fmt.Errorf("seek write stream: %w", err)
		}
	}

	n, err = w.Write(data)
	if err != nil {
		w.Close()
		return n, fmt.Errorf("write stream: %w", err)
	}
	if err := w.Close(); err != nil {
		return n, fmt.Errorf("commit write stream: %w", err)
	}

	return n, nil
}

// Append adds data at the end of the file, returning the byte count.
func (b *Bridge) Append(ctx context.Context, file remote.File, data []byte) (n int, err error) {
	w, err := b.store.OpenAppend(ctx, file.Path, file.Metadata)
	if errors.Is(err, remote.ErrUnsupported) {
		nn, err := b.store.AppendFile(ctx, file.Path, file.Metadata, bytes.NewReader(data))
		return int(nn), err
	}
	if err != nil {
		return 0, err
	}

	n, err = w.Write(data)
	if err != nil {
		w.Close()
		return n, fmt.Errorf("append stream: %w", err)
	}
	if err := w.Close(); err != nil {
		return n, fmt.Errorf("commit append stream: %w", err)
	}

	return n, nil
}
