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

package remote

import "errors"

// Sentinel errors shared by all Store implementations. Backends wrap these
// with %w so callers can classify failures with errors.Is while keeping
// the protocol-level detail in the message.
var (
	// ErrNotFound reports that no entry exists at the requested path.
	ErrNotFound = errors.New("no such file or directory")

	// ErrUnsupported reports that the backend cannot perform the
	// requested primitive (e.g. streaming on a whole-file protocol).
	ErrUnsupported = errors.New("operation not supported by this store")

	// ErrNotConnected reports a call before Connect or after Disconnect.
	ErrNotConnected = errors.New("store is not connected")

	// ErrAlreadyExists reports a create colliding with an existing entry.
	ErrAlreadyExists = errors.New("entry already exists")

	// ErrDirNotEmpty reports RemoveDir on a non-empty directory.
	ErrDirNotEmpty = errors.New("directory not empty")

	// ErrNotADirectory reports a directory operation on a file.
	ErrNotADirectory = errors.New("not a directory")

	// ErrIsADirectory reports a file operation on a directory.
	ErrIsADirectory = errors.New("is a directory")
)
