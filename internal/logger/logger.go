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

// Package logger provides the process-wide logger. Logs go to stderr by
// default; InitLogFile redirects them to a rotating file.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTrace sits below slog's predefined levels; the remaining severities
// map directly onto slog's.
const LevelTrace = slog.Level(-8)

const (
	textFormat = "text"
	jsonFormat = "json"
)

var (
	mu            sync.Mutex
	programLevel  = new(slog.LevelVar)
	defaultLogger = slog.New(newHandler(os.Stderr, textFormat, programLevel))
	logWriter     io.WriteCloser
)

func newHandler(w io.Writer, format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Spell the custom trace level out instead of "DEBUG-4".
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	if format == jsonFormat {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetLogLevel sets the minimum severity. Accepted values are error, warn,
// info, debug and trace (case-insensitive).
func SetLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "error":
		programLevel.Set(slog.LevelError)
	case "warn":
		programLevel.Set(slog.LevelWarn)
	case "info":
		programLevel.Set(slog.LevelInfo)
	case "debug":
		programLevel.Set(slog.LevelDebug)
	case "trace":
		programLevel.Set(LevelTrace)
	default:
		return fmt.Errorf("invalid log level: %q", level)
	}
	return nil
}

// SetLogFormat selects the handler format: "text" or "json".
func SetLogFormat(format string) error {
	if format != textFormat && format != jsonFormat {
		return fmt.Errorf("invalid log format: %q", format)
	}

	mu.Lock()
	defer mu.Unlock()

	w := io.Writer(os.Stderr)
	if logWriter != nil {
		w = logWriter
	}
	defaultLogger = slog.New(newHandler(w, format, programLevel))

	return nil
}

// InitLogFile redirects logging to the named file with rotation.
func InitLogFile(path, format string, maxSizeMB, maxBackups int) {
	mu.Lock()
	defer mu.Unlock()

	logWriter = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	defaultLogger = slog.New(newHandler(logWriter, format, programLevel))
}

// NewLegacyLogger returns a *log.Logger that forwards into the default
// logger at the given level, for libraries that only accept log.Logger.
func NewLegacyLogger(level slog.Level, prefix string) *log.Logger {
	return log.New(&legacyWriter{level: level, prefix: prefix}, "", 0)
}

type legacyWriter struct {
	level  slog.Level
	prefix string
}

func (w *legacyWriter) Write(p []byte) (int, error) {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()
	l.Log(context.Background(), w.level, w.prefix+strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// Tracef logs at trace severity.
func Tracef(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...))
}

// Debugf logs at debug severity.
func Debugf(format string, v ...any) {
	defaultLogger.Debug(fmt.Sprintf(format, v...))
}

// Infof logs at info severity.
func Infof(format string, v ...any) {
	defaultLogger.Info(fmt.Sprintf(format, v...))
}

// Warnf logs at warning severity.
func Warnf(format string, v ...any) {
	defaultLogger.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs at error severity.
func Errorf(format string, v ...any) {
	defaultLogger.Error(fmt.Sprintf(format, v...))
}
