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

// Package smbfs provides a remote.Store over an SMB share.
package smbfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	gopath "path"
	"strings"
	"time"

	smb2 "github.com/cloudsoda/go-smb2"

	"github.com/darktohka/remotefs-fuse/remote"
)

// Config carries the server, share and credentials.
type Config struct {
	Address   string
	Port      uint16
	Username  string
	Password  string
	Share     string
	Workgroup string
}

// Store is a remote.Store backed by a mounted SMB share.
type Store struct {
	cfg     Config
	conn    net.Conn
	session *smb2.Session
	share   *smb2.Share
}

// New returns an unconnected store.
func New(cfg Config) *Store {
	if cfg.Port == 0 {
		cfg.Port = 445
	}
	return &Store{cfg: cfg}
}

func (s *Store) Connect(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port)
	conn, err := net.DialTimeout("tcp", addr, 30*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	dialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     s.cfg.Username,
			Password: s.cfg.Password,
			Domain:   s.cfg.Workgroup,
		},
	}

	session, err := dialer.DialContext(ctx, conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smb session on %s: %w", addr, err)
	}

	share, err := session.Mount(s.cfg.Share)
	if err != nil {
		session.Logoff()
		conn.Close()
		return fmt.Errorf("mount share %q: %w", s.cfg.Share, err)
	}

	s.conn = conn
	s.session = session
	s.share = share

	return nil
}

func (s *Store) Disconnect(ctx context.Context) error {
	if s.share == nil {
		return remote.ErrNotConnected
	}

	err := s.share.Umount()
	if logoffErr := s.session.Logoff(); err == nil {
		err = logoffErr
	}
	if closeErr := s.conn.Close(); err == nil {
		err = closeErr
	}
	s.share = nil
	s.session = nil
	s.conn = nil

	return err
}

func (s *Store) ready() error {
	if s.share == nil {
		return remote.ErrNotConnected
	}
	return nil
}

// winPath converts a remote path into the share-relative backslash form.
func winPath(path string) string {
	p := strings.TrimPrefix(gopath.Clean(path), "/")
	return strings.ReplaceAll(p, "/", `\`)
}

func mapError(op, path string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s %q: %w", op, path, remote.ErrNotFound)
	}
	return fmt.Errorf("%s %q: %w", op, path, err)
}

func fileFromInfo(path string, fi os.FileInfo) remote.File {
	md := remote.Metadata{
		Size: fi.Size(),
		Type: remote.TypeFile,
	}
	switch {
	case fi.IsDir():
		md.Type = remote.TypeDirectory
	case fi.Mode()&os.ModeSymlink != 0:
		md.Type = remote.TypeSymlink
	}

	mode := remote.UnixPex(fi.Mode().Perm())
	md.Mode = &mode
	mtime := fi.ModTime()
	md.Modified = &mtime

	return remote.File{Path: path, Metadata: md}
}

func (s *Store) Stat(ctx context.Context, path string) (remote.File, error) {
	if err := s.ready(); err != nil {
		return remote.File{}, err
	}

	if path == "/" {
		mode := remote.UnixPex(0o755)
		return remote.File{
			Path:     "/",
			Metadata: remote.Metadata{Mode: &mode, Type: remote.TypeDirectory},
		}, nil
	}

	fi, err := s.share.Lstat(winPath(path))
	if err != nil {
		return remote.File{}, mapError("stat", path, err)
	}

	return fileFromInfo(path, fi), nil
}

func (s *Store) List(ctx context.Context, path string) ([]remote.File, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	p := winPath(path)
	if p == "" {
		p = "."
	}
	infos, err := s.share.ReadDir(p)
	if err != nil {
		return nil, mapError("list", path, err)
	}

	out := make([]remote.File, 0, len(infos))
	for _, fi := range infos {
		out = append(out, fileFromInfo(gopath.Join(path, fi.Name()), fi))
	}

	return out, nil
}

func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.Stat(ctx, path)
	if errors.Is(err, remote.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) CreateDir(ctx context.Context, path string, mode remote.UnixPex) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.share.Mkdir(winPath(path), os.FileMode(mode.Bits())); err != nil {
		return mapError("mkdir", path, err)
	}
	return nil
}

func (s *Store) RemoveFile(ctx context.Context, path string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.share.Remove(winPath(path)); err != nil {
		return mapError("remove", path, err)
	}
	return nil
}

func (s *Store) RemoveDir(ctx context.Context, path string) error {
	return s.RemoveFile(ctx, path)
}

func (s *Store) Move(ctx context.Context, src, dst string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.share.Rename(winPath(src), winPath(dst)); err != nil {
		return mapError("rename", src, err)
	}
	return nil
}

func (s *Store) Symlink(ctx context.Context, path, target string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.share.Symlink(target, winPath(path)); err != nil {
		return mapError("symlink", path, err)
	}
	return nil
}

func (s *Store) SetStat(ctx context.Context, path string, md remote.Metadata) error {
	if err := s.ready(); err != nil {
		return err
	}

	p := winPath(path)
	if md.Accessed != nil || md.Modified != nil {
		fi, err := s.share.Lstat(p)
		if err != nil {
			return mapError("stat", path, err)
		}
		atime := fi.ModTime()
		mtime := fi.ModTime()
		if md.Accessed != nil {
			atime = *md.Accessed
		}
		if md.Modified != nil {
			mtime = *md.Modified
		}
		if err := s.share.Chtimes(p, atime, mtime); err != nil {
			return mapError("chtimes", path, err)
		}
	}
	if md.Type == remote.TypeFile {
		if fi, err := s.share.Lstat(p); err == nil && fi.Size() != md.Size {
			if err := s.share.Truncate(p, md.Size); err != nil {
				return mapError("truncate", path, err)
			}
		}
	}

	// Ownership and mode bits have no SMB mapping; they are accepted and
	// dropped.
	return nil
}

func (s *Store) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	f, err := s.share.Open(winPath(path))
	if err != nil {
		return nil, mapError("open", path, err)
	}

	return f, nil
}

func (s *Store) FetchFile(ctx context.Context, path string, dst io.Writer) (int64, error) {
	r, err := s.OpenRead(ctx, path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	return io.Copy(dst, r)
}

func (s *Store) OpenWrite(ctx context.Context, path string, md remote.Metadata) (io.WriteCloser, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	f, err := s.share.OpenFile(winPath(path), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, mapError("create", path, err)
	}

	return f, nil
}

func (s *Store) OpenAppend(ctx context.Context, path string, md remote.Metadata) (io.WriteCloser, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	f, err := s.share.OpenFile(winPath(path), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, mapError("append", path, err)
	}

	return f, nil
}

func (s *Store) CreateFile(ctx context.Context, path string, md remote.Metadata, src io.Reader) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	f, err := s.share.Create(winPath(path))
	if err != nil {
		return 0, mapError("create", path, err)
	}

	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, mapError("write", path, err)
	}

	return n, nil
}

func (s *Store) AppendFile(ctx context.Context, path string, md remote.Metadata, src io.Reader) (int64, error) {
	w, err := s.OpenAppend(ctx, path, md)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(w, src)
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, mapError("append", path, err)
	}

	return n, nil
}
