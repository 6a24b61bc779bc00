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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darktohka/remotefs-fuse/remote"
)

func TestParseOption(t *testing.T) {
	tests := []struct {
		in      string
		wantKey string
		wantNum uint64
		wantErr bool
	}{
		{in: "uid=1000", wantKey: "uid", wantNum: 1000},
		{in: "GID=42", wantKey: "gid", wantNum: 42},
		{in: "default_mode=755", wantKey: "default_mode", wantNum: 0o755},
		{in: "fsname=myvolume", wantKey: "fsname"},
		{in: "allow_other", wantKey: "allow_other"},
		{in: "ALLOW_ROOT", wantKey: "allow_root"},
		{in: "rw", wantKey: "rw"},
		{in: "dirsync", wantKey: "dirsync"},
		{in: "single_thread", wantKey: "single_thread"},
		{in: "timeout=2000", wantKey: "timeout", wantNum: 2000},
		{in: "flags=7", wantKey: "flags", wantNum: 7},
		{in: "sector_size=4096", wantKey: "sector_size", wantNum: 4096},

		{in: "uid", wantErr: true},
		{in: "uid=abc", wantErr: true},
		{in: "default_mode=999", wantErr: true},
		{in: "allow_other=yes", wantErr: true},
		{in: "fsname", wantErr: true},
		{in: "frobnicate", wantErr: true},
		{in: "timeout=", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			opt, err := ParseOption(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				// The offending token is named.
				assert.Contains(t, err.Error(), tt.in)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, opt.Key)
			assert.Equal(t, tt.wantNum, opt.Num)
		})
	}
}

func TestOptionSetAccessors(t *testing.T) {
	set, err := ParseOptions([]string{
		"allow_root", "rw", "exec", "sync",
		"fsname=vol", "subtype=remotefs",
		"uid=1000", "gid=100", "default_mode=644",
		"timeout=500", "single_thread", "allocation_unit_size=512",
	})
	require.NoError(t, err)

	require.NotNil(t, set.Uid())
	assert.EqualValues(t, 1000, *set.Uid())
	require.NotNil(t, set.Gid())
	assert.EqualValues(t, 100, *set.Gid())
	require.NotNil(t, set.DefaultMode())
	assert.Equal(t, remote.UnixPex(0o644), *set.DefaultMode())
	assert.Equal(t, "vol", set.FSName())
	assert.Equal(t, "remotefs", set.Subtype())
	assert.False(t, set.ReadOnly())
	assert.True(t, set.SingleThread())
	assert.Equal(t, 500*time.Millisecond, set.Timeout())
	assert.EqualValues(t, 512, set.AllocationUnitSize())
	assert.Zero(t, set.SectorSize())
}

func TestOptionSetDefaults(t *testing.T) {
	var set OptionSet

	assert.Nil(t, set.Uid())
	assert.Nil(t, set.Gid())
	assert.Nil(t, set.DefaultMode())
	assert.Equal(t, 15*time.Second, set.Timeout())
	assert.False(t, set.ReadOnly())
}

func TestOptionSetLastValueWins(t *testing.T) {
	set, err := ParseOptions([]string{"ro", "uid=1", "rw", "uid=2"})
	require.NoError(t, err)

	assert.False(t, set.ReadOnly())
	assert.EqualValues(t, 2, *set.Uid())

	set, err = ParseOptions([]string{"rw", "ro"})
	require.NoError(t, err)
	assert.True(t, set.ReadOnly())
}

func TestFuseOptions(t *testing.T) {
	set, err := ParseOptions([]string{
		"allow_root", "rw", "exec", "sync", "fsname=vol",
		"custom=max_read=131072", "uid=1000",
	})
	require.NoError(t, err)

	opts := set.FuseOptions()
	assert.Contains(t, opts, "allow_root")
	assert.Contains(t, opts, "exec")
	assert.Contains(t, opts, "sync")
	assert.Equal(t, "131072", opts["max_read"])

	// Driver-level and mount-table options don't leak into the kernel set.
	assert.NotContains(t, opts, "uid")
	assert.NotContains(t, opts, "fsname")
	assert.NotContains(t, opts, "rw")
}
