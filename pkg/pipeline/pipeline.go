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

package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/powerlab/powerlab/pkg/defaults"
	"github.com/powerlab/powerlab/pkg/device"
	"github.com/powerlab/powerlab/pkg/errors"
	"github.com/powerlab/powerlab/pkg/measurement"
	"github.com/powerlab/powerlab/pkg/node"
	"github.com/powerlab/powerlab/pkg/version"
)

// StatusOK is reported once the device handshake validated.
const StatusOK = "OK"

// StatusFunc receives every status change of the pipeline.
type StatusFunc func(status string)

// Config describes the job a pipeline measures.
type Config struct {
	// Role and Version are what the device must report in its handshake.
	Role    node.Role
	Version string

	ReadTimeout    time.Duration
	SampleInterval time.Duration
	Warmup         time.Duration
	PowerOffSettle time.Duration

	// PrintLogs echoes device log lines at info level.
	PrintLogs bool
}

// DefaultConfig returns a Config with default timings for role and version.
func DefaultConfig(role node.Role, v string) Config {
	return Config{
		Role:           role,
		Version:        v,
		ReadTimeout:    defaults.SerialReadTimeout,
		SampleInterval: defaults.SamplerInterval,
		Warmup:         defaults.ProfilerWarmup,
		PowerOffSettle: 100 * time.Millisecond,
	}
}

type rawBlock struct {
	at   float64
	data []byte
}

// Pipeline runs the sampler and logger tasks of one job and holds the data
// they produce until it is drained.
type Pipeline struct {
	cfg      Config
	profiler device.Profiler
	serial   device.SerialPort
	status   StatusFunc
	clock    clock.PassiveClock

	// origin is written once before the tasks start.
	origin time.Time

	raw    swapBuffer[rawBlock]
	points swapBuffer[measurement.Sample]
	events swapBuffer[measurement.Event]

	// convMu serializes conversions so points keep raw arrival order.
	convMu sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock timestamps are taken from.
func WithClock(c clock.PassiveClock) Option {
	return func(p *Pipeline) {
		p.clock = c
	}
}

// New returns a pipeline reading from the handles of a device session.
func New(cfg Config, profiler device.Profiler, serial device.SerialPort, status StatusFunc, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		profiler: profiler,
		serial:   serial,
		status:   status,
		clock:    clock.RealClock{},
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if p.status == nil {
		p.status = func(string) {}
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Stop asks both tasks to finish. The logger observes it between two
// serial reads, so it takes effect within one read timeout.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Done is closed once the device was powered off and measuring stopped.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Drain converts pending raw blocks and returns every point and event
// produced since the previous drain.
func (p *Pipeline) Drain() measurement.Batch {
	p.convert()
	return measurement.Batch{
		PowerSamples: p.points.swap(),
		DataSamples:  p.events.swap(),
	}
}

// Run measures until the device reports completion, Stop is called or ctx
// is canceled. Hardware errors are reported through the status function;
// the returned error only describes why the run could not start.
func (p *Pipeline) Run(ctx context.Context) error {
	defer close(p.done)

	p.origin = p.clock.Now()
	if err := p.profiler.StartMeasuring(); err != nil {
		p.fail("failed to start measuring", err)
		return err
	}

	// the first reads after start carry no valid data
	if p.wait(ctx, p.cfg.Warmup) {
		if err := p.profiler.SetDUTPower(true); err != nil {
			p.fail("failed to power device", err)
		} else {
			p.runTasks(ctx)
		}
	}

	p.teardown()
	return nil
}

func (p *Pipeline) runTasks(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	samplerStop := make(chan struct{})

	g.Go(func() error {
		return p.sample(gctx, samplerStop)
	})
	g.Go(func() error {
		defer close(samplerStop)
		return p.log(gctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("pipeline task failed", "error", err)
	}
}

func (p *Pipeline) teardown() {
	if err := p.profiler.SetDUTPower(false); err != nil {
		slog.Warn("failed to power off device", "error", err)
	}
	time.Sleep(p.cfg.PowerOffSettle)
	if err := p.profiler.StopMeasuring(); err != nil {
		slog.Warn("failed to stop measuring", "error", err)
	}
	p.convert()
}

// wait sleeps for d unless stopped first. It reports whether the full
// duration elapsed.
func (p *Pipeline) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-p.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (p *Pipeline) elapsed() float64 {
	return float64(p.clock.Since(p.origin).Microseconds()) / 1000
}

func (p *Pipeline) fail(msg string, err error) {
	se := errors.Wrap(errors.ErrCodeInternal, msg, err)
	slog.Error("pipeline error", "error", se)
	p.status(se.Error())
}

// sample polls the profiler until stop. A read error ends sampling but
// leaves the logger running.
func (p *Pipeline) sample(ctx context.Context, stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		block, err := p.profiler.ReadBlock()
		if err != nil {
			p.fail("power sampling failed", err)
			return nil
		}
		if len(block) > 0 {
			p.raw.append(rawBlock{at: p.elapsed(), data: block})
			rawBlocksTotal.Inc()
		}

		time.Sleep(p.cfg.SampleInterval)
	}
}

// log reads serial lines until the device finishes, Stop is called or the
// port fails.
func (p *Pipeline) log(ctx context.Context) error {
	for {
		select {
		case <-p.stop:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := p.serial.ReadLine(p.cfg.ReadTimeout)
		switch {
		case stderrors.Is(err, device.ErrReadTimeout):
			continue
		case stderrors.Is(err, device.ErrPortClosed):
			return nil
		case err != nil:
			p.fail("serial read failed", err)
			return nil
		}

		if p.handle(line) {
			return nil
		}
	}
}

// handle processes one line and reports whether it ends the job.
func (p *Pipeline) handle(raw string) bool {
	l := Classify(raw)
	linesTotal.WithLabelValues(l.Kind.String()).Inc()

	switch l.Kind {
	case KindHandshake:
		p.checkHandshake(l)
	case KindReady:
		p.events.append(measurement.Event{Time: p.elapsed(), Label: l.Raw})
	case KindValue:
		p.events.append(measurement.Event{Time: p.elapsed(), Label: l.Text})
		p.convert()
	case KindLog:
		p.events.append(measurement.Event{Time: p.elapsed(), Label: l.Text})
		if p.cfg.PrintLogs {
			slog.Info("device log", "message", l.Text)
		}
	case KindDone:
		if p.cfg.Role != node.RoleSender {
			slog.Debug("ignoring completion marker", "role", p.cfg.Role)
			return false
		}
		p.events.append(measurement.Event{Time: p.elapsed(), Label: l.Raw})
		return true
	default:
		slog.Debug("ignoring unrecognized line", "line", l.Raw)
	}
	return false
}

// checkHandshake validates the declared role and version. A mismatch is
// reported as status and collection continues.
func (p *Pipeline) checkHandshake(l Line) {
	slog.Info("device handshake", "role", l.Role, "version", l.Version)

	if node.Role(l.Role) != p.cfg.Role {
		p.status(errors.New(errors.ErrCodeRoleMismatch,
			fmt.Sprintf("wrong role on device: has %s, should be %s", l.Role, p.cfg.Role)).Error())
		return
	}

	if !version.IsSelector(p.cfg.Version) && l.Version == version.NotSet {
		p.status(errors.New(errors.ErrCodeVersionMismatch, "device version not set").Error())
		return
	}

	if !version.Match(p.cfg.Version, l.Version) {
		p.status(errors.New(errors.ErrCodeVersionMismatch,
			fmt.Sprintf("wrong version installed on device: has %s, should be %s", l.Version, p.cfg.Version)).Error())
		return
	}

	p.status(StatusOK)
}

// convert averages every buffered raw block into one power point.
func (p *Pipeline) convert() {
	p.convMu.Lock()
	defer p.convMu.Unlock()

	blocks := p.raw.swap()
	if len(blocks) == 0 {
		return
	}

	start := time.Now()
	points := make([]measurement.Sample, 0, len(blocks))
	for _, b := range blocks {
		mean, ok := measurement.Mean(p.profiler.Convert(b.data))
		if !ok {
			droppedBlocksTotal.Inc()
			slog.Warn("raw block yielded no samples", "bytes", len(b.data), "at", b.at)
			continue
		}
		points = append(points, measurement.Sample{Time: b.at, Value: mean})
	}
	p.points.append(points...)

	powerPointsTotal.Add(float64(len(points)))
	conversionDuration.Observe(time.Since(start).Seconds())
}
