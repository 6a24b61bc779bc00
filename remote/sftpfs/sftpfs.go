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

// Package sftpfs provides a remote.Store over SFTP. The `scp` CLI
// subcommand also lands here: the SSH file transfer subsystem covers both.
package sftpfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	path2 "path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/darktohka/remotefs-fuse/remote"
)

// Config carries the connection parameters.
type Config struct {
	Host     string
	Port     uint16
	Username string
	Password string
}

// Store is a remote.Store backed by an SFTP session.
type Store struct {
	cfg  Config
	conn *ssh.Client
	sftp *sftp.Client
}

// New returns an unconnected store.
func New(cfg Config) *Store {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	return &Store{cfg: cfg}
}

func (s *Store) Connect(ctx context.Context) error {
	sshCfg := &ssh.ClientConfig{
		User: s.cfg.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(s.cfg.Password),
		},
		// Remote mounts are driven by explicit host/credential flags; host
		// key pinning is not part of the surface.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	conn, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("start sftp subsystem: %w", err)
	}

	s.conn = conn
	s.sftp = client

	return nil
}

func (s *Store) Disconnect(ctx context.Context) error {
	if s.sftp == nil {
		return remote.ErrNotConnected
	}

	err := s.sftp.Close()
	if closeErr := s.conn.Close(); err == nil {
		err = closeErr
	}
	s.sftp = nil
	s.conn = nil

	return err
}

func (s *Store) ready() error {
	if s.sftp == nil {
		return remote.ErrNotConnected
	}
	return nil
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

	if st, ok := fi.Sys().(*sftp.FileStat); ok {
		uid := st.UID
		gid := st.GID
		md.UID = &uid
		md.GID = &gid
		atime := time.Unix(int64(st.Atime), 0)
		md.Accessed = &atime
	}

	return remote.File{Path: path, Metadata: md}
}

func (s *Store) Stat(ctx context.Context, path string) (remote.File, error) {
	if err := s.ready(); err != nil {
		return remote.File{}, err
	}

	fi, err := s.sftp.Lstat(path)
	if err != nil {
		return remote.File{}, mapError("stat", path, err)
	}

	return fileFromInfo(path, fi), nil
}

func (s *Store) List(ctx context.Context, path string) ([]remote.File, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	infos, err := s.sftp.ReadDir(path)
	if err != nil {
		return nil, mapError("list", path, err)
	}

	out := make([]remote.File, 0, len(infos))
	for _, fi := range infos {
		out = append(out, fileFromInfo(path2.Join(path, fi.Name()), fi))
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

	if err := s.sftp.Mkdir(path); err != nil {
		return mapError("mkdir", path, err)
	}
	if err := s.sftp.Chmod(path, os.FileMode(mode.Bits())); err != nil {
		return mapError("chmod", path, err)
	}

	return nil
}

func (s *Store) RemoveFile(ctx context.Context, path string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.sftp.Remove(path); err != nil {
		return mapError("remove", path, err)
	}
	return nil
}

func (s *Store) RemoveDir(ctx context.Context, path string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.sftp.RemoveDirectory(path); err != nil {
		return mapError("rmdir", path, err)
	}
	return nil
}

func (s *Store) Move(ctx context.Context, src, dst string) error {
	if err := s.ready(); err != nil {
		return err
	}

	// POSIX rename overwrites the destination atomically where the server
	// supports the extension.
	if err := s.sftp.PosixRename(src, dst); err != nil {
		if err := s.sftp.Rename(src, dst); err != nil {
			return mapError("rename", src, err)
		}
	}

	return nil
}

func (s *Store) Symlink(ctx context.Context, path, target string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.sftp.Symlink(target, path); err != nil {
		return mapError("symlink", path, err)
	}
	return nil
}

func (s *Store) SetStat(ctx context.Context, path string, md remote.Metadata) error {
	if err := s.ready(); err != nil {
		return err
	}

	if md.Mode != nil {
		if err := s.sftp.Chmod(path, os.FileMode(md.Mode.Bits())); err != nil {
			return mapError("chmod", path, err)
		}
	}
	if md.UID != nil || md.GID != nil {
		uid, gid := -1, -1
		if md.UID != nil {
			uid = int(*md.UID)
		}
		if md.GID != nil {
			gid = int(*md.GID)
		}
		if err := s.sftp.Chown(path, uid, gid); err != nil {
			return mapError("chown", path, err)
		}
	}
	if md.Accessed != nil || md.Modified != nil {
		fi, err := s.sftp.Lstat(path)
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
		if err := s.sftp.Chtimes(path, atime, mtime); err != nil {
			return mapError("chtimes", path, err)
		}
	}
	if md.Type == remote.TypeFile {
		if fi, err := s.sftp.Lstat(path); err == nil && fi.Size() != md.Size {
			if err := s.sftp.Truncate(path, md.Size); err != nil {
				return mapError("truncate", path, err)
			}
		}
	}

	return nil
}

func (s *Store) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	f, err := s.sftp.Open(path)
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

	// O_RDWR rather than O_WRONLY|O_TRUNC: the driver may seek into
	// existing content.
	f, err := s.sftp.OpenFile(path, os.O_RDWR|os.O_CREATE)
	if err != nil {
		return nil, mapError("create", path, err)
	}

	return f, nil
}

func (s *Store) OpenAppend(ctx context.Context, path string, md remote.Metadata) (io.WriteCloser, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	f, err := s.sftp.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND)
	if err != nil {
		return nil, mapError("append", path, err)
	}

	return f, nil
}

func (s *Store) CreateFile(ctx context.Context, path string, md remote.Metadata, src io.Reader) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	f, err := s.sftp.Create(path)
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

	if md.Mode != nil {
		if err := s.sftp.Chmod(path, os.FileMode(md.Mode.Bits())); err != nil {
			return n, mapError("chmod", path, err)
		}
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
