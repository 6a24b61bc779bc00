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

package stream

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darktohka/remotefs-fuse/remote"
	"github.com/darktohka/remotefs-fuse/remote/memfs"
)

func newStore(t *testing.T, streaming bool) *memfs.Store {
	t.Helper()

	s := memfs.New(1000, 1000)
	if !streaming {
		s.DisableStreaming()
	}
	require.NoError(t, s.Connect(context.Background()))

	return s
}

func putFile(t *testing.T, s *memfs.Store, path, content string) remote.File {
	t.Helper()

	mode := remote.UnixPex(0o644)
	md := remote.Metadata{Mode: &mode, Type: remote.TypeFile}
	_, err := s.CreateFile(context.Background(), path, md, bytes.NewReader([]byte(content)))
	require.NoError(t, err)

	f, err := s.Stat(context.Background(), path)
	require.NoError(t, err)

	return f
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	for _, streaming := range []bool{true, false} {
		name := "streaming"
		if !streaming {
			name = "whole-file"
		}
		t.Run(name, func(t *testing.T) {
			s := newStore(t, streaming)
			b := NewBridge(s)
			ctx := context.Background()

			f := putFile(t, s, "/test.txt", "")
			data := []byte("Hello, World!")
			n, err := b.Write(ctx, f, data, 0)
			require.NoError(t, err)
			assert.Equal(t, len(data), n)

			buf := make([]byte, len(data))
			n, err = b.Read(ctx, "/test.txt", buf, 0)
			require.NoError(t, err)
			assert.Equal(t, len(data), n)
			assert.Equal(t, data, buf)
		})
	}
}

func TestReadAtOffset(t *testing.T) {
	for _, streaming := range []bool{true, false} {
		name := "streaming"
		if !streaming {
			name = "whole-file"
		}
		t.Run(name, func(t *testing.T) {
			s := newStore(t, streaming)
			b := NewBridge(s)

			putFile(t, s, "/offset.txt", "abcdefgh")

			buf := make([]byte, 3)
			n, err := b.Read(context.Background(), "/offset.txt", buf, 4)
			require.NoError(t, err)
			assert.Equal(t, 3, n)
			assert.Equal(t, "efg", string(buf))
		})
	}
}

// The whole-file fallback must return the same bytes as a streaming
// backend and leave nothing behind in the staging directory.
func TestReadFallbackLeavesNoTempFiles(t *testing.T) {
	s := newStore(t, false)
	b := NewBridge(s)
	b.TempDir = t.TempDir()

	putFile(t, s, "/staged.txt", "Hello, world!")

	buf := make([]byte, 13)
	n, err := b.Read(context.Background(), "/staged.txt", buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", string(buf[:n]))

	entries, err := os.ReadDir(b.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteAtOffsetStreaming(t *testing.T) {
	s := newStore(t, true)
	b := NewBridge(s)
	ctx := context.Background()

	f := putFile(t, s, "/patch.txt", "aaaaaaaa")
	n, err := b.Write(ctx, f, []byte("bb"), 4)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	buf := make([]byte, 8)
	_, err = b.Read(ctx, "/patch.txt", buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "aaaabbaa", string(buf))
}

// A non-streaming backend cannot honor writes at an offset.
func TestWriteAtOffsetWithoutStreamsIsUnsupported(t *testing.T) {
	s := newStore(t, false)
	b := NewBridge(s)

	f := putFile(t, s, "/nope.txt", "aaaaaaaa")
	_, err := b.Write(context.Background(), f, []byte("bb"), 4)
	assert.True(t, errors.Is(err, remote.ErrUnsupported))
}

func TestAppend(t *testing.T) {
	for _, streaming := range []bool{true, false} {
		name := "streaming"
		if !streaming {
			name = "whole-file"
		}
		t.Run(name, func(t *testing.T) {
			s := newStore(t, streaming)
			b := NewBridge(s)
			ctx := context.Background()

			f := putFile(t, s, "/log.txt", "one")
			n, err := b.Append(ctx, f, []byte("two"))
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			buf := make([]byte, 6)
			_, err = b.Read(ctx, "/log.txt", buf, 0)
			require.NoError(t, err)
			assert.Equal(t, "onetwo", string(buf))
		})
	}
}
