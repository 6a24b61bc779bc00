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

import "github.com/darktohka/remotefs-fuse/remote"

// Access-mask bits, matching the access(2) convention. The low three line
// up with the rwx bits of a permission triad, which CheckAccess relies on.
const (
	FOK uint32 = 0
	XOK uint32 = 1
	WOK uint32 = 2
	ROK uint32 = 4
)

// CheckAccess decides whether a caller with the given uid/gid may perform
// the operations in mask on the file:
//
//   - A bare existence check always passes.
//   - Root bypasses read and write checks; execution still requires at
//     least one execute bit somewhere in the mode.
//   - Otherwise the caller's class (owner, group or other) selects the
//     triad of the file's mode that must cover the mask. A missing mode
//     behaves as 0o777.
func CheckAccess(f *remote.File, uid, gid uint32, mask uint32) bool {
	if mask == FOK {
		return true
	}

	mode := remote.UnixPex(0o777)
	if f.Metadata.Mode != nil {
		mode = *f.Metadata.Mode
	}

	if uid == 0 {
		mask &^= ROK | WOK
		if mask&XOK != 0 && mode.AnyExec() {
			mask &^= XOK
		}
		return mask == 0
	}

	var ownerUID, ownerGID uint32
	if f.Metadata.UID != nil {
		ownerUID = *f.Metadata.UID
	}
	if f.Metadata.GID != nil {
		ownerGID = *f.Metadata.GID
	}

	var shift uint
	switch {
	case uid == ownerUID:
		shift = 6
	case gid == ownerGID:
		shift = 3
	default:
		shift = 0
	}

	triad := (mode.Bits() >> shift) & 0o7
	mask &^= triad

	return mask == 0
}
