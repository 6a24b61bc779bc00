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

package memfs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darktohka/remotefs-fuse/remote"
)

func newConnected(t *testing.T) *Store {
	t.Helper()
	s := New(1000, 1000)
	require.NoError(t, s.Connect(context.Background()))
	return s
}

func create(t *testing.T, s *Store, path, content string) {
	t.Helper()
	mode := remote.UnixPex(0o644)
	md := remote.Metadata{Mode: &mode, Type: remote.TypeFile}
	_, err := s.CreateFile(context.Background(), path, md, bytes.NewReader([]byte(content)))
	require.NoError(t, err)
}

func TestRootExists(t *testing.T) {
	s := newConnected(t)

	f, err := s.Stat(context.Background(), "/")
	require.NoError(t, err)
	assert.True(t, f.IsDir())
	require.NotNil(t, f.Metadata.UID)
	assert.EqualValues(t, 1000, *f.Metadata.UID)
}

func TestCreateStatRemove(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()
	create(t, s, "/a.txt", "hello")

	f, err := s.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 5, f.Metadata.Size)
	assert.True(t, f.IsFile())

	require.NoError(t, s.RemoveFile(ctx, "/a.txt"))
	_, err = s.Stat(ctx, "/a.txt")
	assert.True(t, errors.Is(err, remote.ErrNotFound))
}

func TestListIsSortedAndShallow(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDir(ctx, "/d", 0o755))
	create(t, s, "/b.txt", "x")
	create(t, s, "/a.txt", "x")
	create(t, s, "/d/nested.txt", "x")

	entries, err := s.List(ctx, "/")
	require.NoError(t, err)

	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"/a.txt", "/b.txt", "/d"}, paths)
}

func TestRemoveDirRequiresEmpty(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDir(ctx, "/d", 0o755))
	create(t, s, "/d/f.txt", "x")

	err := s.RemoveDir(ctx, "/d")
	assert.True(t, errors.Is(err, remote.ErrDirNotEmpty))

	require.NoError(t, s.RemoveFile(ctx, "/d/f.txt"))
	require.NoError(t, s.RemoveDir(ctx, "/d"))
}

func TestMoveCarriesChildren(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDir(ctx, "/src", 0o755))
	create(t, s, "/src/f.txt", "payload")

	require.NoError(t, s.Move(ctx, "/src", "/dst"))

	f, err := s.Stat(ctx, "/dst/f.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 7, f.Metadata.Size)

	_, err = s.Stat(ctx, "/src/f.txt")
	assert.True(t, errors.Is(err, remote.ErrNotFound))
}

func TestSymlinkStoresTarget(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	require.NoError(t, s.Symlink(ctx, "/link", "/elsewhere"))

	f, err := s.Stat(ctx, "/link")
	require.NoError(t, err)
	assert.True(t, f.IsSymlink())
	assert.EqualValues(t, len("/elsewhere"), f.Metadata.Size)

	var buf bytes.Buffer
	_, err = s.FetchFile(ctx, "/link", &buf)
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere", buf.String())
}

func TestWriteStreamSeeks(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()
	create(t, s, "/w.txt", "aaaaaaaa")

	w, err := s.OpenWrite(ctx, "/w.txt", remote.Metadata{Type: remote.TypeFile})
	require.NoError(t, err)

	seeker, ok := w.(io.Seeker)
	require.True(t, ok)
	_, err = seeker.Seek(4, io.SeekStart)
	require.NoError(t, err)
	_, err = w.Write([]byte("bb"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var buf bytes.Buffer
	_, err = s.FetchFile(ctx, "/w.txt", &buf)
	require.NoError(t, err)
	assert.Equal(t, "aaaabbaa", buf.String())
}

func TestDisableStreaming(t *testing.T) {
	s := newConnected(t)
	s.DisableStreaming()
	ctx := context.Background()
	create(t, s, "/x.txt", "x")

	_, err := s.OpenRead(ctx, "/x.txt")
	assert.True(t, errors.Is(err, remote.ErrUnsupported))
	_, err = s.OpenWrite(ctx, "/x.txt", remote.Metadata{})
	assert.True(t, errors.Is(err, remote.ErrUnsupported))
	_, err = s.OpenAppend(ctx, "/x.txt", remote.Metadata{})
	assert.True(t, errors.Is(err, remote.ErrUnsupported))

	// Whole-file primitives still work.
	var buf bytes.Buffer
	n, err := s.FetchFile(ctx, "/x.txt", &buf)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSetStatTruncatesAndExtends(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()
	create(t, s, "/t.txt", "abcdef")

	f, err := s.Stat(ctx, "/t.txt")
	require.NoError(t, err)

	md := f.Metadata
	md.Size = 3
	require.NoError(t, s.SetStat(ctx, "/t.txt", md))

	f, err = s.Stat(ctx, "/t.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 3, f.Metadata.Size)

	md.Size = 6
	require.NoError(t, s.SetStat(ctx, "/t.txt", md))

	var buf bytes.Buffer
	_, err = s.FetchFile(ctx, "/t.txt", &buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{'a', 'b', 'c', 0, 0, 0}, buf.Bytes())
}
