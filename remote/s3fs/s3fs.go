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

// Package s3fs provides a remote.Store over an S3 bucket. Directories are
// the usual zero-byte `prefix/` markers plus whatever common prefixes the
// bucket implies.
package s3fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	gopath "path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/darktohka/remotefs-fuse/remote"
)

// Config carries the bucket coordinates and credentials.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	Profile   string
	AccessKey string
	SecretKey string
	// SessionToken is the optional STS security token.
	SessionToken string
	// PathStyle forces path-style addressing, needed by most S3-compatible
	// endpoints.
	PathStyle bool
}

// Store is a remote.Store backed by an S3 bucket.
type Store struct {
	cfg      Config
	client   *s3.S3
	uploader *s3manager.Uploader
}

// New returns an unconnected store.
func New(cfg Config) *Store {
	return &Store{cfg: cfg}
}

func (s *Store) Connect(ctx context.Context) error {
	awsCfg := aws.NewConfig()
	if s.cfg.Region != "" {
		awsCfg = awsCfg.WithRegion(s.cfg.Region)
	}
	if s.cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(s.cfg.Endpoint)
	}
	if s.cfg.PathStyle {
		awsCfg = awsCfg.WithS3ForcePathStyle(true)
	}
	if s.cfg.AccessKey != "" {
		awsCfg = awsCfg.WithCredentials(
			credentials.NewStaticCredentials(s.cfg.AccessKey, s.cfg.SecretKey, s.cfg.SessionToken))
	}

	sess, err := session.NewSessionWithOptions(session.Options{
		Profile:           s.cfg.Profile,
		Config:            *awsCfg,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return fmt.Errorf("create aws session: %w", err)
	}

	s.client = s3.New(sess)
	s.uploader = s3manager.NewUploader(sess)

	// Fail the mount early if the bucket is unreachable.
	_, err = s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.cfg.Bucket),
	})
	if err != nil {
		return fmt.Errorf("head bucket %q: %w", s.cfg.Bucket, err)
	}

	return nil
}

func (s *Store) Disconnect(ctx context.Context) error {
	if s.client == nil {
		return remote.ErrNotConnected
	}
	s.client = nil
	s.uploader = nil
	return nil
}

func (s *Store) ready() error {
	if s.client == nil {
		return remote.ErrNotConnected
	}
	return nil
}

// key converts a remote path into an object key (no leading slash).
func key(path string) string {
	return strings.TrimPrefix(gopath.Clean(path), "/")
}

func isNotFound(err error) bool {
	var ae awserr.Error
	if errors.As(err, &ae) {
		switch ae.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

func dirFile(path string) remote.File {
	mode := remote.UnixPex(0o755)
	return remote.File{
		Path:     path,
		Metadata: remote.Metadata{Mode: &mode, Type: remote.TypeDirectory},
	}
}

func (s *Store) Stat(ctx context.Context, path string) (remote.File, error) {
	if err := s.ready(); err != nil {
		return remote.File{}, err
	}

	if path == "/" {
		return dirFile("/"), nil
	}

	k := key(path)
	head, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(k),
	})
	if err == nil {
		md := remote.Metadata{Type: remote.TypeFile}
		if head.ContentLength != nil {
			md.Size = *head.ContentLength
		}
		if head.LastModified != nil {
			t := *head.LastModified
			md.Modified = &t
		}
		return remote.File{Path: path, Metadata: md}, nil
	}
	if !isNotFound(err) {
		return remote.File{}, fmt.Errorf("head %q: %w", k, err)
	}

	// Not an object; a directory exists if its marker does or if anything
	// lives under the prefix.
	list, err := s.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.cfg.Bucket),
		Prefix:  aws.String(k + "/"),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return remote.File{}, fmt.Errorf("list %q: %w", k, err)
	}
	if len(list.Contents) > 0 || len(list.CommonPrefixes) > 0 {
		return dirFile(path), nil
	}

	return remote.File{}, fmt.Errorf("stat %q: %w", path, remote.ErrNotFound)
}

func (s *Store) List(ctx context.Context, path string) ([]remote.File, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	prefix := ""
	if path != "/" {
		prefix = key(path) + "/"
	}

	var out []remote.File
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.cfg.Bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}
	err := s.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, prefix), "/")
			if name == "" {
				continue
			}
			out = append(out, dirFile(gopath.Join(path, name)))
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(*obj.Key, prefix)
			if name == "" || strings.HasSuffix(name, "/") {
				// The directory's own marker.
				continue
			}
			md := remote.Metadata{Type: remote.TypeFile}
			if obj.Size != nil {
				md.Size = *obj.Size
			}
			if obj.LastModified != nil {
				t := *obj.LastModified
				md.Modified = &t
			}
			out = append(out, remote.File{Path: gopath.Join(path, name), Metadata: md})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
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

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key(path) + "/"),
		Body:   strings.NewReader(""),
	})
	if err != nil {
		return fmt.Errorf("mkdir %q: %w", path, err)
	}

	return nil
}

func (s *Store) RemoveFile(ctx context.Context, path string) error {
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key(path)),
	})
	if err != nil {
		return fmt.Errorf("remove %q: %w", path, err)
	}

	return nil
}

func (s *Store) RemoveDir(ctx context.Context, path string) error {
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key(path) + "/"),
	})
	if err != nil {
		return fmt.Errorf("rmdir %q: %w", path, err)
	}

	return nil
}

func (s *Store) Move(ctx context.Context, src, dst string) error {
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.cfg.Bucket),
		CopySource: aws.String(s.cfg.Bucket + "/" + key(src)),
		Key:        aws.String(key(dst)),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("move %q: %w", src, remote.ErrNotFound)
		}
		return fmt.Errorf("copy %q -> %q: %w", src, dst, err)
	}

	return s.RemoveFile(ctx, src)
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

	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("get %q: %w", path, remote.ErrNotFound)
		}
		return nil, fmt.Errorf("get %q: %w", path, err)
	}

	return out.Body, nil
}

func (s *Store) FetchFile(ctx context.Context, path string, dst io.Writer) (int64, error) {
	r, err := s.OpenRead(ctx, path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	return io.Copy(dst, r)
}

// Object storage offers neither seekable write streams nor appends; both
// stream entry points defer to the whole-file paths.
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
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key(path)),
		Body:   cr,
	})
	if err != nil {
		return cr.n, fmt.Errorf("upload %q: %w", path, err)
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
