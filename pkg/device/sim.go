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
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/powerlab/powerlab/pkg/errors"
)

// simScale is the number of raw units per microamp in simulated blocks.
const simScale = 10

// EncodeSimBlock encodes microamp values into a raw block understood by
// SimProfiler.Convert.
func EncodeSimBlock(values ...float64) []byte {
	raw := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[4*i:], uint32(v*simScale))
	}
	return raw
}

// SimProfiler is an in-memory profiler. Queued blocks are returned first,
// one per ReadBlock call; afterwards Generate, if set, produces blocks at
// most once per Period. Blocks are only returned while measuring.
type SimProfiler struct {
	Generate func() []byte
	Period   time.Duration

	mu        sync.Mutex
	queue     [][]byte
	measuring bool
	powered   bool
	closed    bool
	toggles   []bool
	last      time.Time
}

// NewSimProfiler returns a profiler that yields the given blocks in order.
func NewSimProfiler(blocks ...[]byte) *SimProfiler {
	return &SimProfiler{queue: blocks}
}

// Enqueue appends blocks to be returned by ReadBlock.
func (p *SimProfiler) Enqueue(blocks ...[]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, blocks...)
}

func (p *SimProfiler) StartMeasuring() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPortClosed
	}
	p.measuring = true
	return nil
}

func (p *SimProfiler) StopMeasuring() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.measuring = false
	return nil
}

func (p *SimProfiler) SetDUTPower(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPortClosed
	}
	p.powered = on
	p.toggles = append(p.toggles, on)
	return nil
}

func (p *SimProfiler) ReadBlock() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPortClosed
	}
	if !p.measuring {
		return nil, nil
	}
	if len(p.queue) > 0 {
		b := p.queue[0]
		p.queue = p.queue[1:]
		return b, nil
	}
	if p.Generate == nil {
		return nil, nil
	}
	if now := time.Now(); now.Sub(p.last) >= p.Period {
		p.last = now
		return p.Generate(), nil
	}
	return nil, nil
}

// Convert decodes little-endian uint32 samples. Trailing bytes that do not
// form a whole sample are ignored.
func (p *SimProfiler) Convert(raw []byte) []float64 {
	out := make([]float64, 0, len(raw)/4)
	for i := 0; i+4 <= len(raw); i += 4 {
		out = append(out, float64(binary.LittleEndian.Uint32(raw[i:]))/simScale)
	}
	return out
}

func (p *SimProfiler) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.measuring = false
	return nil
}

// Measuring reports whether the profiler is streaming.
func (p *SimProfiler) Measuring() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.measuring
}

// Powered reports the device under test supply state.
func (p *SimProfiler) Powered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.powered
}

// Toggles returns every SetDUTPower call in order.
func (p *SimProfiler) Toggles() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.toggles...)
}

// Closed reports whether Close was called.
func (p *SimProfiler) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// SimSerial is an in-memory serial port. Lines come from Push first and
// then from the generator, if any, paced by the interval.
type SimSerial struct {
	path     string
	interval time.Duration
	generate func(i int) (string, bool)

	lines     chan string
	closed    chan struct{}
	closeOnce sync.Once

	// reader state, touched only by ReadLine
	last      time.Time
	generated int
}

// NewSimSerial returns a port that yields script first.
func NewSimSerial(path string, script ...string) *SimSerial {
	s := &SimSerial{
		path:   path,
		lines:  make(chan string, 1024),
		closed: make(chan struct{}),
	}
	for _, l := range script {
		s.lines <- l
	}
	return s
}

// WithGenerator sets a line generator called with an increasing index once
// pushed lines are exhausted. It returns false when it has no more lines.
func (s *SimSerial) WithGenerator(interval time.Duration, fn func(i int) (string, bool)) *SimSerial {
	s.interval = interval
	s.generate = fn
	return s
}

// Push queues a line for ReadLine.
func (s *SimSerial) Push(lines ...string) {
	for _, l := range lines {
		s.lines <- l
	}
}

func (s *SimSerial) ReadLine(timeout time.Duration) (string, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	if wait := s.interval - time.Since(s.last); s.interval > 0 && wait > 0 {
		pace := time.NewTimer(wait)
		defer pace.Stop()
		select {
		case <-s.closed:
			return "", ErrPortClosed
		case <-deadline.C:
			return "", ErrReadTimeout
		case <-pace.C:
		}
	}

	select {
	case <-s.closed:
		return "", ErrPortClosed
	case line := <-s.lines:
		s.last = time.Now()
		return line, nil
	default:
	}

	if s.generate != nil {
		if line, ok := s.generate(s.generated); ok {
			s.generated++
			s.last = time.Now()
			return line, nil
		}
	}

	select {
	case <-s.closed:
		return "", ErrPortClosed
	case line := <-s.lines:
		s.last = time.Now()
		return line, nil
	case <-deadline.C:
		return "", ErrReadTimeout
	}
}

func (s *SimSerial) Path() string {
	return s.path
}

func (s *SimSerial) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// SimDriver hands out simulated hardware. NewProfiler and NewSerial build
// a fresh handle for every open; every handle is kept for inspection.
type SimDriver struct {
	NewProfiler func() *SimProfiler
	NewSerial   func() *SimSerial

	// Missing makes every open fail with DEVICE_NOT_FOUND.
	Missing bool

	mu        sync.Mutex
	profilers []*SimProfiler
	serials   []*SimSerial
}

func (d *SimDriver) OpenProfiler(_ context.Context, signature string) (Profiler, error) {
	if d.Missing {
		return nil, errors.NewWithContext(errors.ErrCodeDeviceNotFound, "no simulated profiler",
			map[string]any{"signature": signature})
	}
	p := NewSimProfiler()
	if d.NewProfiler != nil {
		p = d.NewProfiler()
	}
	d.mu.Lock()
	d.profilers = append(d.profilers, p)
	d.mu.Unlock()
	return p, nil
}

func (d *SimDriver) OpenSerial(ctx context.Context, signature string) (SerialPort, error) {
	path, err := d.FindSerial(ctx, signature)
	if err != nil {
		return nil, err
	}
	s := NewSimSerial(path)
	if d.NewSerial != nil {
		s = d.NewSerial()
	}
	d.mu.Lock()
	d.serials = append(d.serials, s)
	d.mu.Unlock()
	return s, nil
}

func (d *SimDriver) FindSerial(_ context.Context, signature string) (string, error) {
	if d.Missing {
		return "", errors.NewWithContext(errors.ErrCodeDeviceNotFound, "no simulated serial device",
			map[string]any{"signature": signature})
	}
	return fmt.Sprintf("/dev/sim-%s", signature), nil
}

// Profilers returns every profiler opened so far.
func (d *SimDriver) Profilers() []*SimProfiler {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*SimProfiler(nil), d.profilers...)
}

// Serials returns every serial port opened so far.
func (d *SimDriver) Serials() []*SimSerial {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*SimSerial(nil), d.serials...)
}

// SimFlasher records flash calls instead of running a tool.
type SimFlasher struct {
	// Err, if set, is returned from every Flash call.
	Err error

	mu    sync.Mutex
	calls []FlashCall
}

// FlashCall is one recorded SimFlasher invocation.
type FlashCall struct {
	Image string
	Port  string
}

func (f *SimFlasher) Flash(_ context.Context, image, port string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, FlashCall{Image: image, Port: port})
	if f.Err != nil {
		return errors.WrapWithContext(errors.ErrCodeFlashFailure, "simulated flash failed", f.Err,
			map[string]any{"image": image, "port": port})
	}
	return nil
}

// Calls returns the recorded invocations.
func (f *SimFlasher) Calls() []FlashCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FlashCall(nil), f.calls...)
}

// DemoScript returns a generator emulating firmware of the given role and
// version: a handshake, a ready marker, then one sampled value and one log
// line per cycle. Senders end with DONE after cycles cycles; receivers
// report received packets forever.
func DemoScript(role, version string, cycles int) func(i int) (string, bool) {
	return func(i int) (string, bool) {
		switch {
		case i == 0:
			return fmt.Sprintf("Hello:%s:%s", role, version), true
		case i == 1:
			return "READY", true
		}
		n := (i - 2) / 2
		if role == "sender" && n >= cycles {
			if n == cycles && (i-2)%2 == 0 {
				return "DONE", true
			}
			return "", false
		}
		if (i-2)%2 == 0 {
			if role == "receiver" {
				return fmt.Sprintf("RECV:%d;%08x;aa:bb:cc:dd:ee:ff;1", n, n), true
			}
			return fmt.Sprintf("ADC_VALUE:%d", 1000+n%97), true
		}
		return fmt.Sprintf("LOG:cycle %d complete", n), true
	}
}
