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

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/darktohka/remotefs-fuse/internal/logger"
	"github.com/darktohka/remotefs-fuse/mount"
	"github.com/darktohka/remotefs-fuse/remote"
)

// buildOptions assembles the effective option set: the standard defaults,
// then the user's -o options, then the dedicated uid/gid/default-mode
// flags, which win.
func buildOptions() (mount.OptionSet, error) {
	tokens := []string{
		"allow_root",
		"rw",
		"exec",
		"sync",
		"fsname=" + volumeName,
	}
	tokens = append(tokens, rawOptions...)

	if uidFlag >= 0 {
		logger.Infof("reporting uid: %d", uidFlag)
		tokens = append(tokens, "uid="+strconv.FormatInt(uidFlag, 10))
	}
	if gidFlag >= 0 {
		logger.Infof("reporting gid: %d", gidFlag)
		tokens = append(tokens, "gid="+strconv.FormatInt(gidFlag, 10))
	}
	if defaultMode != "" {
		if _, err := strconv.ParseUint(defaultMode, 8, 32); err != nil {
			return nil, fmt.Errorf("invalid --default-mode %q: not an octal number", defaultMode)
		}
		logger.Infof("default mode: %s", defaultMode)
		tokens = append(tokens, "default_mode="+defaultMode)
	}

	return mount.ParseOptions(tokens)
}

// mountAndRun mounts the store at the --to path and blocks until unmount.
// Each backend subcommand funnels through here.
func mountAndRun(store remote.Store) error {
	opts, err := buildOptions()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return fmt.Errorf("create mountpoint %q: %w", mountPoint, err)
	}

	logger.Infof("mounting remote filesystem at %s", mountPoint)
	m, err := mount.MountStore(store, mountPoint, opts)
	if err != nil {
		return err
	}

	umount := m.Unmounter()
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signals
		logger.Infof("received %v, unmounting filesystem", sig)
		if err := umount.Umount(); err != nil {
			logger.Errorf("unmount failed: %v", err)
		}
	}()

	logger.Infof("running filesystem event loop")
	if err := m.Run(); err != nil {
		return fmt.Errorf("event loop: %w", err)
	}

	return nil
}
