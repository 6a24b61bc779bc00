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

package dokan

// SecurityDescriptor is the opaque security blob stored per cache entry.
// The driver never interprets it; it round-trips whatever the host set,
// seeded with a descriptor granting full access to SYSTEM, Administrators
// and Everyone.
type SecurityDescriptor struct {
	data []byte
}

const defaultSDDL = "O:SYG:SYD:P(A;;FA;;;SY)(A;;FA;;;BA)(A;;FA;;;WD)"

// NewDefaultSecurityDescriptor returns the default descriptor.
func NewDefaultSecurityDescriptor() SecurityDescriptor {
	return SecurityDescriptor{data: []byte(defaultSDDL)}
}

// Read copies the descriptor into buf and returns its full size. When buf
// is too small the copy is partial and the caller signals buffer
// overflow with the returned size.
func (d *SecurityDescriptor) Read(buf []byte) int {
	copy(buf, d.data)
	return len(d.data)
}

// Write replaces the descriptor.
func (d *SecurityDescriptor) Write(data []byte) {
	d.data = append([]byte(nil), data...)
}
