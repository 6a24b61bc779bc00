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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNameInExpression(t *testing.T) {
	tests := []struct {
		expr       string
		name       string
		ignoreCase bool
		want       bool
	}{
		{"*", "anything", true, true},
		{"*.txt", "notes.txt", true, true},
		{"*.txt", "notes.md", true, false},
		{"a*c", "abc", true, true},
		{"a*c", "ac", true, true},
		{"a*c", "abd", true, false},
		{"?.go", "a.go", true, true},
		{"?.go", "ab.go", true, false},
		{"NOTES.*", "notes.txt", true, true},
		{"NOTES.*", "notes.txt", false, false},
		{"", "", true, true},
		{"", "x", true, false},

		// DOS_STAR stops before the final dot.
		{"<.txt", "a.b.txt", true, true},
		{"<.txt", "a.txt", true, true},
		{"<.md", "a.txt", true, false},

		// DOS_QM skips at a dot or the end.
		{"a>.txt", "ab.txt", true, true},
		{"a>.txt", "a.txt", true, true},
		{"a>>>.txt", "ab.txt", true, true},

		// DOS_DOT matches a dot or nothing at the end.
		{`a"txt`, "a.txt", true, true},
		{`a"`, "a", true, true},
		{`a"`, "ab", true, false},
	}

	for _, tt := range tests {
		got := IsNameInExpression(tt.expr, tt.name, tt.ignoreCase)
		assert.Equal(t, tt.want, got, "expr %q name %q", tt.expr, tt.name)
	}
}

func TestSplitStreamName(t *testing.T) {
	tests := []struct {
		in     string
		path   string
		stream string
	}{
		{`\file.txt`, `\file.txt`, ""},
		{`\file.txt:side`, `\file.txt`, "side"},
		{`\file.txt:side:$DATA`, `\file.txt`, "side"},
		{`\file.txt::$DATA`, `\file.txt`, ""},
		{`\dir\file.txt:s`, `\dir\file.txt`, "s"},
	}

	for _, tt := range tests {
		p, s := splitStreamName(tt.in)
		assert.Equal(t, tt.path, p, "input %q", tt.in)
		assert.Equal(t, tt.stream, s, "input %q", tt.in)
	}
}

func TestToRemotePath(t *testing.T) {
	assert.Equal(t, "/", toRemotePath(`\`))
	assert.Equal(t, "/a/b.txt", toRemotePath(`\a\b.txt`))
	assert.Equal(t, "/a", toRemotePath(`a`))
}
