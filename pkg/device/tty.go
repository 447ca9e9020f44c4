// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
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

package device

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/powerlab/powerlab/pkg/errors"
)

// DefaultSerialDir is where udev publishes stable serial device links.
const DefaultSerialDir = "/dev/serial/by-id"

// DefaultBaud is the line rate of the device under test log output.
const DefaultBaud = 115200

// ProfilerOpener opens a profiler on a resolved device path.
type ProfilerOpener func(ctx context.Context, path string) (Profiler, error)

// TTYDriver finds hardware under a udev by-id directory and opens serial
// ports as raw ttys. Profilers are opened through OpenProfilerAt, which
// is the hook for a vendor driver.
type TTYDriver struct {
	Dir            string
	Baud           int
	OpenProfilerAt ProfilerOpener
}

// NewTTYDriver returns a driver scanning DefaultSerialDir at DefaultBaud.
func NewTTYDriver() *TTYDriver {
	return &TTYDriver{Dir: DefaultSerialDir, Baud: DefaultBaud}
}

// FindSerial returns the resolved path of the first device link, in name
// order, whose name contains signature (case-insensitive).
func (d *TTYDriver) FindSerial(_ context.Context, signature string) (string, error) {
	dir := d.Dir
	if dir == "" {
		dir = DefaultSerialDir
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.WrapWithContext(errors.ErrCodeDeviceNotFound, "failed to list serial devices", err,
			map[string]any{"dir": dir, "signature": signature})
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	sig := strings.ToLower(signature)
	for _, name := range names {
		if !strings.Contains(strings.ToLower(name), sig) {
			continue
		}
		path, err := filepath.EvalSymlinks(filepath.Join(dir, name))
		if err != nil {
			return "", errors.WrapWithContext(errors.ErrCodeDeviceNotFound, "failed to resolve serial device", err,
				map[string]any{"link": name})
		}
		return path, nil
	}

	return "", errors.NewWithContext(errors.ErrCodeDeviceNotFound, "no device matches signature",
		map[string]any{"dir": dir, "signature": signature})
}

func (d *TTYDriver) OpenSerial(ctx context.Context, signature string) (SerialPort, error) {
	path, err := d.FindSerial(ctx, signature)
	if err != nil {
		return nil, err
	}
	baud := d.Baud
	if baud == 0 {
		baud = DefaultBaud
	}
	return openTTY(path, baud)
}

func (d *TTYDriver) OpenProfiler(ctx context.Context, signature string) (Profiler, error) {
	path, err := d.FindSerial(ctx, signature)
	if err != nil {
		return nil, err
	}
	if d.OpenProfilerAt == nil {
		return nil, errors.NewWithContext(errors.ErrCodeDeviceNotFound, "no profiler backend registered",
			map[string]any{"path": path})
	}
	return d.OpenProfilerAt(ctx, path)
}

// maxLineLength bounds a pending line. Longer runs without a newline, such
// as output at the wrong baud rate, are cut and returned in pieces.
const maxLineLength = 4096

// lineBuffer accumulates raw reads and splits complete lines.
type lineBuffer struct {
	buf []byte
}

// next returns the first complete line, stripped of CR/LF, if any.
func (b *lineBuffer) next() (string, bool) {
	i := bytes.IndexByte(b.buf, '\n')
	if i < 0 {
		if len(b.buf) < maxLineLength {
			return "", false
		}
		line := string(b.buf[:maxLineLength])
		b.buf = b.buf[maxLineLength:]
		return strings.ToValidUTF8(line, "?"), true
	}
	line := strings.TrimRight(string(b.buf[:i]), "\r")
	b.buf = b.buf[i+1:]
	return strings.ToValidUTF8(line, "?"), true
}

func (b *lineBuffer) write(p []byte) {
	b.buf = append(b.buf, p...)
}
