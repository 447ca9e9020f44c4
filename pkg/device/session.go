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
	"context"
	stderrors "errors"
	"log/slog"
	"sync"

	"github.com/powerlab/powerlab/pkg/errors"
)

// Session holds the hardware handles of one job or one flash.
// Serial is nil for profiler-only sessions.
type Session struct {
	Profiler Profiler
	Serial   SerialPort

	guard *Guard
	once  sync.Once
	err   error
}

// Release closes both handles and frees the guard. It is idempotent and
// returns the first close error.
func (s *Session) Release() error {
	if s == nil {
		return nil
	}
	s.once.Do(func() {
		var errs []error
		if s.Serial != nil {
			errs = append(errs, s.Serial.Close())
		}
		if s.Profiler != nil {
			errs = append(errs, s.Profiler.Close())
		}
		s.err = stderrors.Join(errs...)
		if s.guard != nil {
			s.guard.release(s)
		}
	})
	return s.err
}

// Guard enforces that at most one Session is open at a time.
type Guard struct {
	driver Driver
	cfg    Config

	mu     sync.Mutex
	active *Session
}

// NewGuard returns a Guard opening hardware through driver.
func NewGuard(driver Driver, cfg Config) *Guard {
	return &Guard{driver: driver, cfg: cfg}
}

// Busy reports whether a session is open.
func (g *Guard) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active != nil
}

// SerialPath resolves the serial device path of the device under test.
func (g *Guard) SerialPath(ctx context.Context) (string, error) {
	return g.driver.FindSerial(ctx, g.cfg.SerialSignature)
}

// AcquireProfiler opens a profiler-only session.
func (g *Guard) AcquireProfiler(ctx context.Context) (*Session, error) {
	return g.acquire(ctx, false)
}

// Acquire opens the profiler and the serial port. If the serial port
// cannot be opened the profiler is released again.
func (g *Guard) Acquire(ctx context.Context) (*Session, error) {
	return g.acquire(ctx, true)
}

func (g *Guard) acquire(ctx context.Context, withSerial bool) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active != nil {
		return nil, errors.New(errors.ErrCodeUnavailable, "device busy: a session is already open")
	}

	p, err := g.driver.OpenProfiler(ctx, g.cfg.ProfilerSignature)
	if err != nil {
		return nil, wrapNotFound(err, "power profiler", g.cfg.ProfilerSignature)
	}

	s := &Session{Profiler: p, guard: g}
	if withSerial {
		port, err := g.driver.OpenSerial(ctx, g.cfg.SerialSignature)
		if err != nil {
			if cerr := p.Close(); cerr != nil {
				slog.Warn("failed to close profiler after serial error", "error", cerr)
			}
			return nil, wrapNotFound(err, "serial device", g.cfg.SerialSignature)
		}
		s.Serial = port
	}

	g.active = s
	return s, nil
}

func (g *Guard) release(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == s {
		g.active = nil
	}
}

func wrapNotFound(err error, what, signature string) error {
	if errors.IsCode(err, errors.ErrCodeDeviceNotFound) {
		return err
	}
	return errors.WrapWithContext(errors.ErrCodeDeviceNotFound, "failed to open "+what, err,
		map[string]any{"signature": signature})
}
