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

// Package mount is the lifecycle wrapper around the host mount primitive:
// it connects the store, mounts the driver, runs the event loop, and
// hands out a thread-safe unmount handle.
package mount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jacobsa/fuse"

	"github.com/darktohka/remotefs-fuse/fs"
	"github.com/darktohka/remotefs-fuse/internal/logger"
	"github.com/darktohka/remotefs-fuse/remote"
)

// ErrAlreadyUnmounted is returned by Umount calls after the first.
var ErrAlreadyUnmounted = errors.New("file system is already unmounted")

// unmountFn indirection exists for the tests; it is fuse.Unmount in a
// real process.
var unmountFn = fuse.Unmount

// Mount is a mounted remote file system.
type Mount struct {
	mfs *fuse.MountedFileSystem
	dir string

	unmounted atomic.Bool
}

// MountStore connects the store and mounts it at dir with the given options.
// A connection failure is fatal: nothing is mounted and the error is
// returned.
func MountStore(store remote.Store, dir string, opts OptionSet) (*Mount, error) {
	if err := store.Connect(context.Background()); err != nil {
		return nil, fmt.Errorf("connect to remote store: %w", err)
	}
	logger.Infof("connected to remote store")

	server := fs.NewServer(&fs.ServerConfig{
		Store:       store,
		Uid:         opts.Uid(),
		Gid:         opts.Gid(),
		DefaultMode: opts.DefaultMode(),
	})

	cfg := &fuse.MountConfig{
		FSName:      opts.FSName(),
		Subtype:     opts.Subtype(),
		VolumeName:  opts.FSName(),
		ReadOnly:    opts.ReadOnly(),
		Options:     opts.FuseOptions(),
		ErrorLogger: logger.NewLegacyLogger(slog.LevelError, "fuse: "),
	}

	mfs, err := fuse.Mount(dir, server, cfg)
	if err != nil {
		return nil, fmt.Errorf("mount at %q: %w", dir, err)
	}

	return &Mount{mfs: mfs, dir: dir}, nil
}

// Run blocks the calling goroutine in the event loop until the file
// system is unmounted.
func (m *Mount) Run() error {
	return m.mfs.Join(context.Background())
}

// Unmounter returns a handle that tears the mount down. The handle may be
// shared across goroutines and invoked from a signal handler.
func (m *Mount) Unmounter() *Umount {
	return &Umount{mount: m}
}

// Umount is a thread-safe unmount handle.
type Umount struct {
	mount *Mount
}

// Umount unmounts the file system, causing Run to return. The first call
// wins; later calls report ErrAlreadyUnmounted.
func (u *Umount) Umount() error {
	if !u.mount.unmounted.CompareAndSwap(false, true) {
		return ErrAlreadyUnmounted
	}
	return unmountFn(u.mount.dir)
}
