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

// Package ftpfs provides a remote.Store over FTP and FTPS.
package ftpfs

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	gopath "path"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/darktohka/remotefs-fuse/remote"
)

// Config carries the connection parameters.
type Config struct {
	Host     string
	Port     uint16
	Username string
	Password string

	// TLS enables explicit FTPS.
	TLS bool

	// Active disables EPSV so that transfers use plain PASV; the data
	// connection stays passive, as active (PORT) mode is not implemented.
	Active bool
}

// Store is a remote.Store backed by an FTP control connection.
type Store struct {
	cfg  Config
	conn *ftp.ServerConn
}

// New returns an unconnected store.
func New(cfg Config) *Store {
	if cfg.Port == 0 {
		cfg.Port = 21
	}
	if cfg.Username == "" {
		cfg.Username = "anonymous"
	}
	return &Store{cfg: cfg}
}

func (s *Store) Connect(ctx context.Context) error {
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(30 * time.Second),
	}
	if s.cfg.TLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: s.cfg.Host}))
	}
	if s.cfg.Active {
		opts = append(opts, ftp.DialWithDisabledEPSV(true))
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	if err := conn.Login(s.cfg.Username, s.cfg.Password); err != nil {
		conn.Quit()
		return fmt.Errorf("login as %q: %w", s.cfg.Username, err)
	}

	s.conn = conn

	return nil
}

func (s *Store) Disconnect(ctx context.Context) error {
	if s.conn == nil {
		return remote.ErrNotConnected
	}
	err := s.conn.Quit()
	s.conn = nil
	return err
}

func (s *Store) ready() error {
	if s.conn == nil {
		return remote.ErrNotConnected
	}
	return nil
}

// mapError folds permanent "file unavailable" replies into ErrNotFound.
func mapError(op, path string, err error) error {
	var proto *textproto.Error
	if errors.As(err, &proto) && proto.Code == ftp.StatusFileUnavailable {
		return fmt.Errorf("%s %q: %w", op, path, remote.ErrNotFound)
	}
	return fmt.Errorf("%s %q: %w", op, path, err)
}

func fileFromEntry(path string, e *ftp.Entry) remote.File {
	md := remote.Metadata{
		Size: int64(e.Size),
		Type: remote.TypeFile,
	}
	switch e.Type {
	case ftp.EntryTypeFolder:
		md.Type = remote.TypeDirectory
	case ftp.EntryTypeLink:
		md.Type = remote.TypeSymlink
	}
	if !e.Time.IsZero() {
		t := e.Time
		md.Modified = &t
	}

	return remote.File{Path: path, Metadata: md}
}

func (s *Store) Stat(ctx context.Context, path string) (remote.File, error) {
	if err := s.ready(); err != nil {
		return remote.File{}, err
	}

	if path == "/" {
		return remote.File{
			Path:     "/",
			Metadata: remote.Metadata{Type: remote.TypeDirectory},
		}, nil
	}

	// MLST when the server has it; otherwise scan the parent listing.
	if e, err := s.conn.GetEntry(path); err == nil {
		return fileFromEntry(path, e), nil
	}

	parent := gopath.Dir(path)
	entries, err := s.conn.List(parent)
	if err != nil {
		return remote.File{}, mapError("list", parent, err)
	}
	name := gopath.Base(path)
	for _, e := range entries {
		if e.Name == name {
			return fileFromEntry(path, e), nil
		}
	}

	return remote.File{}, fmt.Errorf("stat %q: %w", path, remote.ErrNotFound)
}

func (s *Store) List(ctx context.Context, path string) ([]remote.File, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	entries, err := s.conn.List(path)
	if err != nil {
		return nil, mapError("list", path, err)
	}

	out := make([]remote.File, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		out = append(out, fileFromEntry(gopath.Join(path, e.Name), e))
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
	// FTP has no mkdir mode; the server applies its own umask.
	if err := s.conn.MakeDir(path); err != nil {
		return mapError("mkdir", path, err)
	}
	return nil
}

func (s *Store) RemoveFile(ctx context.Context, path string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.conn.Delete(path); err != nil {
		return mapError("remove", path, err)
	}
	return nil
}

func (s *Store) RemoveDir(ctx context.Context, path string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.conn.RemoveDir(path); err != nil {
		return mapError("rmdir", path, err)
	}
	return nil
}

func (s *Store) Move(ctx context.Context, src, dst string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.conn.Rename(src, dst); err != nil {
		return mapError("rename", src, err)
	}
	return nil
}

func (s *Store) Symlink(ctx context.Context, path, target string) error {
	return fmt.Errorf("symlink %q: %w", path, remote.ErrUnsupported)
}

func (s *Store) SetStat(ctx context.Context, path string, md remote.Metadata) error {
	return fmt.Errorf("setstat %q: %w", path, remote.ErrUnsupported)
}

func (s *Store) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	resp, err := s.conn.Retr(path)
	if err != nil {
		return nil, mapError("retr", path, err)
	}

	return resp, nil
}

func (s *Store) FetchFile(ctx context.Context, path string, dst io.Writer) (int64, error) {
	r, err := s.OpenRead(ctx, path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	return io.Copy(dst, r)
}

// pipeWriter streams into a STOR/APPE transfer running on a goroutine;
// Close waits for the transfer to finish and reports its error.
type pipeWriter struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *pipeWriter) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *pipeWriter) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}

func (s *Store) openTransfer(path string, start func(string, io.Reader) error) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := start(path, pr)
		pr.CloseWithError(err)
		done <- err
	}()

	return &pipeWriter{pw: pw, done: done}, nil
}

func (s *Store) OpenWrite(ctx context.Context, path string, md remote.Metadata) (io.WriteCloser, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	// The transfer stream is not seekable; writes at an offset are out of
	// reach for FTP.
	return s.openTransfer(path, s.conn.Stor)
}

func (s *Store) OpenAppend(ctx context.Context, path string, md remote.Metadata) (io.WriteCloser, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.openTransfer(path, s.conn.Append)
}

// countingReader measures how many bytes a transfer consumed.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (s *Store) CreateFile(ctx context.Context, path string, md remote.Metadata, src io.Reader) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	cr := &countingReader{r: src}
	if err := s.conn.Stor(path, cr); err != nil {
		return cr.n, mapError("stor", path, err)
	}

	return cr.n, nil
}

func (s *Store) AppendFile(ctx context.Context, path string, md remote.Metadata, src io.Reader) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	cr := &countingReader{r: src}
	if err := s.conn.Append(path, cr); err != nil {
		return cr.n, mapError("appe", path, err)
	}

	return cr.n, nil
}
