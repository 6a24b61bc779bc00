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

package mount

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/darktohka/remotefs-fuse/remote"
)

// valueKind describes what value an option expects.
type valueKind int

const (
	noValue valueKind = iota
	decimalValue
	octalValue
	stringValue
)

// The closed set of recognized option keys. Unix keys configure the FUSE
// mount; the remaining keys configure a Dokany host.
var optionKinds = map[string]valueKind{
	// Driver behavior.
	"uid":          decimalValue,
	"gid":          decimalValue,
	"default_mode": octalValue,

	// Forwarded to the mount table.
	"fsname":  stringValue,
	"subtype": stringValue,
	"custom":  stringValue,

	// Access policy.
	"allow_other":         noValue,
	"allow_root":          noValue,
	"auto_unmount":        noValue,
	"default_permissions": noValue,

	// Standard mount flags.
	"dev":     noValue,
	"nodev":   noValue,
	"suid":    noValue,
	"nosuid":  noValue,
	"ro":      noValue,
	"rw":      noValue,
	"exec":    noValue,
	"noexec":  noValue,
	"atime":   noValue,
	"noatime": noValue,
	"dirsync": noValue,
	"sync":    noValue,
	"async":   noValue,

	// Dokany host tuning.
	"single_thread":        noValue,
	"flags":                decimalValue,
	"timeout":              decimalValue,
	"allocation_unit_size": decimalValue,
	"sector_size":          decimalValue,
}

// Option is one parsed mount option: a canonical lowercase key and, for
// valued options, its validated numeric interpretation alongside the raw
// text.
type Option struct {
	Key   string
	Value string
	Num   uint64
}

// ParseOption parses the `key[=value]` text form. The key is matched
// case-insensitively; numeric values are decimal, except default_mode
// which is octal. Unknown keys and missing or superfluous values are
// reported with the offending token.
func ParseOption(s string) (Option, error) {
	key := s
	value := ""
	hasValue := false
	if i := strings.IndexByte(s, '='); i >= 0 {
		key = s[:i]
		value = s[i+1:]
		hasValue = true
	}
	key = strings.ToLower(key)

	kind, ok := optionKinds[key]
	if !ok {
		return Option{}, fmt.Errorf("unknown mount option: %q", s)
	}

	switch kind {
	case noValue:
		if hasValue {
			return Option{}, fmt.Errorf("mount option %q takes no value: %q", key, s)
		}
		return Option{Key: key}, nil

	case stringValue:
		if !hasValue {
			return Option{}, fmt.Errorf("mount option %q requires a value: %q", key, s)
		}
		return Option{Key: key, Value: value}, nil

	case decimalValue:
		if !hasValue {
			return Option{}, fmt.Errorf("mount option %q requires a value: %q", key, s)
		}
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return Option{}, fmt.Errorf("invalid %s value: %q", key, s)
		}
		return Option{Key: key, Value: value, Num: n}, nil

	case octalValue:
		if !hasValue {
			return Option{}, fmt.Errorf("mount option %q requires a value: %q", key, s)
		}
		n, err := strconv.ParseUint(value, 8, 32)
		if err != nil {
			return Option{}, fmt.Errorf("invalid %s value: %q", key, s)
		}
		return Option{Key: key, Value: value, Num: n}, nil
	}

	panic("unreachable")
}

// OptionSet is an ordered collection of parsed options. Later entries win
// for valued keys.
type OptionSet []Option

// ParseOptions parses each token into an OptionSet.
func ParseOptions(tokens []string) (OptionSet, error) {
	var set OptionSet
	for _, tok := range tokens {
		opt, err := ParseOption(tok)
		if err != nil {
			return nil, err
		}
		set = append(set, opt)
	}
	return set, nil
}

func (s OptionSet) lookup(key string) (Option, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].Key == key {
			return s[i], true
		}
	}
	return Option{}, false
}

// Has reports whether a flag option is present.
func (s OptionSet) Has(key string) bool {
	_, ok := s.lookup(key)
	return ok
}

// Uid returns the uid override, if any.
func (s OptionSet) Uid() *uint32 {
	if o, ok := s.lookup("uid"); ok {
		v := uint32(o.Num)
		return &v
	}
	return nil
}

// Gid returns the gid override, if any.
func (s OptionSet) Gid() *uint32 {
	if o, ok := s.lookup("gid"); ok {
		v := uint32(o.Num)
		return &v
	}
	return nil
}

// DefaultMode returns the mode presented when the backend has none.
func (s OptionSet) DefaultMode() *remote.UnixPex {
	if o, ok := s.lookup("default_mode"); ok {
		v := remote.UnixPex(o.Num)
		return &v
	}
	return nil
}

// FSName returns the fsname option or the empty string.
func (s OptionSet) FSName() string {
	if o, ok := s.lookup("fsname"); ok {
		return o.Value
	}
	return ""
}

// Subtype returns the subtype option or the empty string.
func (s OptionSet) Subtype() string {
	if o, ok := s.lookup("subtype"); ok {
		return o.Value
	}
	return ""
}

// ReadOnly reports whether the mount is read-only: an `ro` not overridden
// by a later `rw`.
func (s OptionSet) ReadOnly() bool {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i].Key {
		case "ro":
			return true
		case "rw":
			return false
		}
	}
	return false
}

// SingleThread reports the Dokany single_thread flag.
func (s OptionSet) SingleThread() bool {
	return s.Has("single_thread")
}

// DokanFlags returns the raw Dokany mount-flag bits.
func (s OptionSet) DokanFlags() uint32 {
	if o, ok := s.lookup("flags"); ok {
		return uint32(o.Num)
	}
	return 0
}

// Timeout returns the Dokany per-request timeout. Zero or absent means
// the 15 second default.
func (s OptionSet) Timeout() time.Duration {
	if o, ok := s.lookup("timeout"); ok && o.Num > 0 {
		return time.Duration(o.Num) * time.Millisecond
	}
	return 15 * time.Second
}

// AllocationUnitSize returns the reported allocation unit size, or 0.
func (s OptionSet) AllocationUnitSize() uint32 {
	if o, ok := s.lookup("allocation_unit_size"); ok {
		return uint32(o.Num)
	}
	return 0
}

// SectorSize returns the reported sector size, or 0.
func (s OptionSet) SectorSize() uint32 {
	if o, ok := s.lookup("sector_size"); ok {
		return uint32(o.Num)
	}
	return 0
}

// fuseFlagKeys are the options forwarded verbatim to the kernel mount.
var fuseFlagKeys = map[string]bool{
	"allow_other":         true,
	"allow_root":          true,
	"auto_unmount":        true,
	"default_permissions": true,
	"dev":                 true,
	"nodev":               true,
	"suid":                true,
	"nosuid":              true,
	"exec":                true,
	"noexec":              true,
	"atime":               true,
	"noatime":             true,
	"dirsync":             true,
	"sync":                true,
	"async":               true,
}

// FuseOptions renders the set into the option map handed to the kernel
// mount, including any `custom` passthrough entries.
func (s OptionSet) FuseOptions() map[string]string {
	out := make(map[string]string)
	for _, o := range s {
		switch {
		case fuseFlagKeys[o.Key]:
			out[o.Key] = ""
		case o.Key == "custom":
			k, v, _ := strings.Cut(o.Value, "=")
			out[k] = v
		}
	}
	return out
}
