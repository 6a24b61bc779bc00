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

package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redirectToBuffer(t *testing.T, format string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	old := defaultLogger
	defaultLogger = slog.New(newHandler(&buf, format, programLevel))
	t.Cleanup(func() { defaultLogger = old })

	return &buf
}

func TestSeverityFiltering(t *testing.T) {
	buf := redirectToBuffer(t, "text")
	require.NoError(t, SetLogLevel("warn"))
	defer SetLogLevel("info")

	Debugf("quiet %d", 1)
	Infof("quiet %d", 2)
	Warnf("loud %d", 3)
	Errorf("loud %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "loud 3")
	assert.Contains(t, out, "loud 4")
}

func TestTraceLevel(t *testing.T) {
	buf := redirectToBuffer(t, "text")
	require.NoError(t, SetLogLevel("trace"))
	defer SetLogLevel("info")

	Tracef("very detailed")
	assert.Contains(t, buf.String(), "TRACE")
	assert.Contains(t, buf.String(), "very detailed")
}

func TestInvalidLevelAndFormat(t *testing.T) {
	assert.Error(t, SetLogLevel("loud"))
	assert.Error(t, SetLogFormat("xml"))
	assert.NoError(t, SetLogFormat("text"))
}

func TestJSONFormat(t *testing.T) {
	buf := redirectToBuffer(t, "json")
	require.NoError(t, SetLogLevel("info"))

	Infof("structured")
	assert.Contains(t, buf.String(), `"msg":"structured"`)
}

func TestLegacyLoggerForwards(t *testing.T) {
	buf := redirectToBuffer(t, "text")
	require.NoError(t, SetLogLevel("info"))

	l := NewLegacyLogger(slog.LevelError, "fuse: ")
	l.Println("kernel said no")

	assert.Contains(t, buf.String(), "fuse: kernel said no")
}
