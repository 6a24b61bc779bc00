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

// Package webdavfs provides a remote.Store over WebDAV. The client is
// plain net/http: PROPFIND for metadata, GET/PUT for content, MKCOL,
// DELETE and MOVE for namespace changes.
package webdavfs

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	gopath "path"
	"strings"
	"time"

	"github.com/darktohka/remotefs-fuse/remote"
)

// Config carries the endpoint and credentials.
type Config struct {
	// URL is the collection root, e.g. https://dav.example.com/remote.php/dav.
	URL      string
	Username string
	Password string
}

// Store is a remote.Store backed by a WebDAV collection.
type Store struct {
	cfg       Config
	base      *url.URL
	client    *http.Client
	connected bool
}

// New returns an unconnected store.
func New(cfg Config) *Store {
	return &Store{cfg: cfg}
}

func (s *Store) Connect(ctx context.Context) error {
	base, err := url.Parse(strings.TrimSuffix(s.cfg.URL, "/"))
	if err != nil {
		return fmt.Errorf("parse url %q: %w", s.cfg.URL, err)
	}
	s.base = base
	s.client = &http.Client{Timeout: 0}
	s.connected = true

	// An OPTIONS probe verifies the endpoint and the credentials.
	req, err := s.request(ctx, "OPTIONS", "/", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.connected = false
		return fmt.Errorf("options %q: %w", s.cfg.URL, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		s.connected = false
		return fmt.Errorf("options %q: status %s", s.cfg.URL, resp.Status)
	}

	return nil
}

func (s *Store) Disconnect(ctx context.Context) error {
	if !s.connected {
		return remote.ErrNotConnected
	}
	s.connected = false
	return nil
}

func (s *Store) ready() error {
	if !s.connected {
		return remote.ErrNotConnected
	}
	return nil
}

// request builds an authenticated request for a remote path.
func (s *Store) request(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u := *s.base
	u.Path = gopath.Join(u.Path, path)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.cfg.Username, s.cfg.Password)

	return req, nil
}

func (s *Store) href(path string) string {
	u := *s.base
	u.Path = gopath.Join(u.Path, path)
	return u.String()
}

// multistatus is the PROPFIND reply shape, limited to the properties the
// driver consumes.
type multistatus struct {
	XMLName   xml.Name   `xml:"multistatus"`
	Responses []response `xml:"response"`
}

type response struct {
	Href     string     `xml:"href"`
	Propstat []propstat `xml:"propstat"`
}

type propstat struct {
	Status string `xml:"status"`
	Prop   prop   `xml:"prop"`
}

type prop struct {
	DisplayName   string       `xml:"displayname"`
	ContentLength int64        `xml:"getcontentlength"`
	LastModified  string       `xml:"getlastmodified"`
	ResourceType  resourceType `xml:"resourcetype"`
}

type resourceType struct {
	Collection *struct{} `xml:"collection"`
}

const propfindBody = `<?xml version="1.0"?>
<d:propfind xmlns:d="DAV:">
 <d:prop>
  <d:displayname/>
  <d:getcontentlength/>
  <d:getlastmodified/>
  <d:resourcetype/>
 </d:prop>
</d:propfind>`

// propfind issues a PROPFIND at the given depth ("0" or "1").
func (s *Store) propfind(ctx context.Context, path, depth string) (*multistatus, error) {
	req, err := s.request(ctx, "PROPFIND", path, strings.NewReader(propfindBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Depth", depth)
	req.Header.Set("Content-Type", "application/xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("propfind %q: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("propfind %q: %w", path, remote.ErrNotFound)
	}
	if resp.StatusCode != http.StatusMultiStatus {
		return nil, fmt.Errorf("propfind %q: status %s", path, resp.Status)
	}

	var ms multistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, fmt.Errorf("propfind %q: decode: %w", path, err)
	}

	return &ms, nil
}

func (r *response) file(path string) remote.File {
	md := remote.Metadata{Type: remote.TypeFile}
	for _, ps := range r.Propstat {
		if !strings.Contains(ps.Status, "200") {
			continue
		}
		if ps.Prop.ResourceType.Collection != nil {
			md.Type = remote.TypeDirectory
		}
		md.Size = ps.Prop.ContentLength
		if t, err := time.Parse(time.RFC1123, ps.Prop.LastModified); err == nil {
			md.Modified = &t
		}
	}
	return remote.File{Path: path, Metadata: md}
}

// hrefLeaf extracts the decoded final path segment of a response href.
func hrefLeaf(href string) string {
	trimmed := strings.TrimSuffix(href, "/")
	leaf := trimmed[strings.LastIndexByte(trimmed, '/')+1:]
	if dec, err := url.PathUnescape(leaf); err == nil {
		return dec
	}
	return leaf
}

func (s *Store) Stat(ctx context.Context, path string) (remote.File, error) {
	if err := s.ready(); err != nil {
		return remote.File{}, err
	}

	ms, err := s.propfind(ctx, path, "0")
	if err != nil {
		return remote.File{}, err
	}
	if len(ms.Responses) == 0 {
		return remote.File{}, fmt.Errorf("stat %q: %w", path, remote.ErrNotFound)
	}

	return ms.Responses[0].file(path), nil
}

func (s *Store) List(ctx context.Context, path string) ([]remote.File, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	ms, err := s.propfind(ctx, path, "1")
	if err != nil {
		return nil, err
	}

	self := strings.TrimSuffix(gopath.Join(s.base.Path, path), "/")

	var out []remote.File
	for i := range ms.Responses {
		r := &ms.Responses[i]
		// Depth 1 includes the collection itself.
		if hrefPath(r.Href) == self {
			continue
		}
		leaf := hrefLeaf(r.Href)
		if leaf == "" {
			continue
		}
		out = append(out, r.file(gopath.Join(path, leaf)))
	}

	return out, nil
}

// hrefPath extracts the decoded, slash-trimmed path of a response href,
// which servers may return absolute or path-only.
func hrefPath(href string) string {
	p := href
	if u, err := url.Parse(href); err == nil {
		p = u.Path
	} else if dec, decErr := url.PathUnescape(href); decErr == nil {
		p = dec
	}
	return strings.TrimSuffix(p, "/")
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

// do runs a bodyless namespace operation and maps the status.
func (s *Store) do(ctx context.Context, method, path string, hdr map[string]string) error {
	req, err := s.request(ctx, method, path, nil)
	if err != nil {
		return err
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %q: %w", strings.ToLower(method), path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %q: %w", strings.ToLower(method), path, remote.ErrNotFound)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%s %q: status %s", strings.ToLower(method), path, resp.Status)
	}

	return nil
}

func (s *Store) CreateDir(ctx context.Context, path string, mode remote.UnixPex) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.do(ctx, "MKCOL", path, nil)
}

func (s *Store) RemoveFile(ctx context.Context, path string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.do(ctx, "DELETE", path, nil)
}

func (s *Store) RemoveDir(ctx context.Context, path string) error {
	return s.RemoveFile(ctx, path)
}

func (s *Store) Move(ctx context.Context, src, dst string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.do(ctx, "MOVE", src, map[string]string{
		"Destination": s.href(dst),
		"Overwrite":   "T",
	})
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

	req, err := s.request(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", path, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("get %q: %w", path, remote.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("get %q: status %s", path, resp.Status)
	}

	return resp.Body, nil
}

func (s *Store) FetchFile(ctx context.Context, path string, dst io.Writer) (int64, error) {
	r, err := s.OpenRead(ctx, path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	return io.Copy(dst, r)
}

// PUT bodies cannot seek, so no write stream is offered: writes at offset
// zero go through the whole-file path, and writes at a non-zero offset are
// reported as unsupported.
func (s *Store) OpenWrite(ctx context.Context, path string, md remote.Metadata) (io.WriteCloser, error) {
	return nil, fmt.Errorf("create %q: %w", path, remote.ErrUnsupported)
}

func (s *Store) OpenAppend(ctx context.Context, path string, md remote.Metadata) (io.WriteCloser, error) {
	return nil, fmt.Errorf("append %q: %w", path, remote.ErrUnsupported)
}

func (s *Store) CreateFile(ctx context.Context, path string, md remote.Metadata, src io.Reader) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	cr := &countingReader{r: src}
	req, err := s.request(ctx, "PUT", path, cr)
	if err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return cr.n, fmt.Errorf("put %q: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return cr.n, fmt.Errorf("put %q: status %s", path, resp.Status)
	}

	return cr.n, nil
}

func (s *Store) AppendFile(ctx context.Context, path string, md remote.Metadata, src io.Reader) (int64, error) {
	return 0, fmt.Errorf("append %q: %w", path, remote.ErrUnsupported)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
