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

package fs

import (
	"errors"
	"syscall"

	"github.com/jacobsa/fuse"

	"github.com/darktohka/remotefs-fuse/remote"
)

// errno maps a store error onto the errno the kernel receives. Anything
// the store cannot classify surfaces as EIO.
func errno(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, remote.ErrNotFound):
		return fuse.ENOENT
	case errors.Is(err, remote.ErrAlreadyExists):
		return fuse.EEXIST
	case errors.Is(err, remote.ErrDirNotEmpty):
		return fuse.ENOTEMPTY
	case errors.Is(err, remote.ErrNotADirectory):
		return fuse.ENOTDIR
	case errors.Is(err, remote.ErrIsADirectory):
		return syscall.EISDIR
	case errors.Is(err, remote.ErrUnsupported):
		return syscall.ENOTSUP
	default:
		return fuse.EIO
	}
}
