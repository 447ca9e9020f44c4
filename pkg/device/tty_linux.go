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

//go:build linux

package device

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/powerlab/powerlab/pkg/errors"
)

var baudRates = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
	921600: unix.B921600,
}

// ttyPort is a raw 8N1 tty. The descriptor is non-blocking and owned by an
// os.File, so reads wait in the runtime poller with a deadline and Close
// unblocks a pending read.
type ttyPort struct {
	path string
	file *os.File

	mu     sync.Mutex
	closed bool
	lines  lineBuffer
}

func openTTY(path string, baud int) (SerialPort, error) {
	speed, ok := baudRates[baud]
	if !ok {
		return nil, errors.NewWithContext(errors.ErrCodeInvalidRequest, "unsupported baud rate",
			map[string]any{"baud": baud})
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, errors.WrapWithContext(errors.ErrCodeDeviceNotFound, "failed to open serial device", err,
			map[string]any{"path": path})
	}

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to read termios of %s: %w", path, err)
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	t.Ispeed = speed
	t.Ospeed = speed
	// VMIN=1 makes an empty non-blocking read report EAGAIN instead of EOF
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to configure %s: %w", path, err)
	}

	return &ttyPort{path: path, file: os.NewFile(uintptr(fd), path)}, nil
}

func (p *ttyPort) ReadLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	chunk := make([]byte, 256)

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return "", ErrPortClosed
		}
		if line, ok := p.lines.next(); ok {
			p.mu.Unlock()
			return line, nil
		}
		p.mu.Unlock()

		if !time.Now().Before(deadline) {
			return "", ErrReadTimeout
		}
		if err := p.file.SetReadDeadline(deadline); err != nil {
			if p.isClosed() {
				return "", ErrPortClosed
			}
			return "", fmt.Errorf("serial deadline on %s failed: %w", p.path, err)
		}

		n, err := p.file.Read(chunk)
		if n > 0 {
			p.mu.Lock()
			p.lines.write(chunk[:n])
			p.mu.Unlock()
		}
		switch {
		case err == nil:
		case stderrors.Is(err, os.ErrDeadlineExceeded):
			// loop once more to pick up a line completed by this read
		case stderrors.Is(err, os.ErrClosed) || p.isClosed():
			return "", ErrPortClosed
		case stderrors.Is(err, io.EOF):
			return "", fmt.Errorf("serial device %s disconnected: %w", p.path, err)
		default:
			return "", fmt.Errorf("serial read on %s failed: %w", p.path, err)
		}
	}
}

func (p *ttyPort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *ttyPort) Path() string {
	return p.path
}

func (p *ttyPort) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.file.Close()
}
