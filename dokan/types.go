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

// Package dokan implements the Windows face of the driver: the handler a
// Dokany host invokes, translated onto a remote.Store. The package
// declares the handler-facing types itself — status codes, dispositions,
// attribute words — so the logic is host-independent and testable on any
// platform; the user-mode plumbing that feeds it callbacks is outside
// this module.
package dokan

import (
	"errors"
	"time"
)

// NTStatus is a Windows status code. The zero value is success; every
// other value used here is an error and implements the error interface.
type NTStatus uint32

const (
	StatusSuccess                NTStatus = 0x00000000
	StatusBufferOverflow         NTStatus = 0x80000005
	StatusNotImplemented         NTStatus = 0xC0000002
	StatusInvalidParameter       NTStatus = 0xC000000D
	StatusInvalidDeviceRequest   NTStatus = 0xC0000010
	StatusAccessDenied           NTStatus = 0xC0000022
	StatusObjectNameNotFound     NTStatus = 0xC0000034
	StatusObjectNameCollision    NTStatus = 0xC0000035
	StatusDeletePending          NTStatus = 0xC0000056
	StatusFileIsADirectory       NTStatus = 0xC00000BA
	StatusDirectoryNotEmpty      NTStatus = 0xC0000101
	StatusNotADirectory          NTStatus = 0xC0000103
	StatusCannotDelete           NTStatus = 0xC0000121
	StatusConnectionDisconnected NTStatus = 0xC000020C
)

func (s NTStatus) Error() string {
	switch s {
	case StatusSuccess:
		return "STATUS_SUCCESS"
	case StatusBufferOverflow:
		return "STATUS_BUFFER_OVERFLOW"
	case StatusNotImplemented:
		return "STATUS_NOT_IMPLEMENTED"
	case StatusInvalidParameter:
		return "STATUS_INVALID_PARAMETER"
	case StatusInvalidDeviceRequest:
		return "STATUS_INVALID_DEVICE_REQUEST"
	case StatusAccessDenied:
		return "STATUS_ACCESS_DENIED"
	case StatusObjectNameNotFound:
		return "STATUS_OBJECT_NAME_NOT_FOUND"
	case StatusObjectNameCollision:
		return "STATUS_OBJECT_NAME_COLLISION"
	case StatusDeletePending:
		return "STATUS_DELETE_PENDING"
	case StatusFileIsADirectory:
		return "STATUS_FILE_IS_A_DIRECTORY"
	case StatusDirectoryNotEmpty:
		return "STATUS_DIRECTORY_NOT_EMPTY"
	case StatusNotADirectory:
		return "STATUS_NOT_A_DIRECTORY"
	case StatusCannotDelete:
		return "STATUS_CANNOT_DELETE"
	case StatusConnectionDisconnected:
		return "STATUS_CONNECTION_DISCONNECTED"
	}
	return "STATUS_UNSUCCESSFUL"
}

// Create dispositions, as delivered by ZwCreateFile.
const (
	FileSupersede          uint32 = 0
	FileOpen               uint32 = 1
	FileCreate             uint32 = 2
	FileOpenIf             uint32 = 3
	FileOverwrite          uint32 = 4
	FileOverwriteIf        uint32 = 5
	FileMaximumDisposition uint32 = 5
)

// Create options.
const (
	FileDirectoryFile    uint32 = 0x00000001
	FileNonDirectoryFile uint32 = 0x00000040
	FileDeleteOnClose    uint32 = 0x00001000
)

// Desired-access bits the driver cares about.
const (
	FileReadData   uint32 = 0x0001
	FileWriteData  uint32 = 0x0002
	FileAppendData uint32 = 0x0004
)

// File attribute bits.
const (
	FileAttributeReadonly     uint32 = 0x0001
	FileAttributeHidden       uint32 = 0x0002
	FileAttributeDirectory    uint32 = 0x0010
	FileAttributeNormal       uint32 = 0x0080
	FileAttributeReparsePoint uint32 = 0x0400
)

// Volume file-system flags.
const (
	FileCaseSensitiveSearch uint32 = 0x0001
	FileCasePreservedNames  uint32 = 0x0002
)

// OperationInfo carries the per-request flags the host knows about.
type OperationInfo struct {
	DeleteOnClose bool
	WriteToEOF    bool
}

// CreateFileInfo is the result of CreateFile: the per-open context plus
// what the host reports back to the kernel.
type CreateFileInfo struct {
	Context        *StatHandle
	IsDir          bool
	NewFileCreated bool
}

// FileInfo answers get_file_information.
type FileInfo struct {
	Attributes     uint32
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	FileSize       int64
	NumberOfLinks  uint32
	FileIndex      uint64
}

// FindData is one directory enumeration entry.
type FindData struct {
	Attributes     uint32
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	FileSize       int64
	FileName       string
}

// FindStreamData is one stream enumeration entry.
type FindStreamData struct {
	Size int64
	Name string
}

// VolumeInfo answers get_volume_information.
type VolumeInfo struct {
	Name               string
	SerialNumber       uint32
	MaxComponentLength uint32
	FSFlags            uint32
	FSName             string
}

// TimeOpKind says what set_file_time should do with one timestamp.
type TimeOpKind int

const (
	TimeDontChange TimeOpKind = iota
	TimeSetTime
	TimeDisableUpdate
	TimeResumeUpdate
)

// TimeOperation is one timestamp directive.
type TimeOperation struct {
	Kind TimeOpKind
	Time time.Time
}

// Fill errors a host reports while the driver enumerates entries into its
// buffers. A full buffer aborts the enumeration with StatusBufferOverflow;
// a too-long name only skips the entry.
var (
	ErrFillBufferFull  = errors.New("find buffer full")
	ErrFillNameTooLong = errors.New("entry name too long")
)

// FillFindData receives one directory entry; FillFindStreamData one
// stream entry.
type FillFindData func(*FindData) error

type FillFindStreamData func(*FindStreamData) error
