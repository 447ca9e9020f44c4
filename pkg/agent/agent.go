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

package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/powerlab/powerlab/pkg/device"
	"github.com/powerlab/powerlab/pkg/errors"
	"github.com/powerlab/powerlab/pkg/firmware"
	"github.com/powerlab/powerlab/pkg/node"
	"github.com/powerlab/powerlab/pkg/pipeline"
)

// Agent states reported by the root route.
const (
	StateOK      = "OK"
	StateBusy    = "busy"
	StateStopped = "stopped"
)

// FlashFailedPrefix starts the status of a failed flash.
const FlashFailedPrefix = "Flash failed: "

// Option configures an Agent.
type Option func(*Agent)

// WithClock sets the clock job start times and sample timestamps are taken
// from.
func WithClock(c clock.PassiveClock) Option {
	return func(a *Agent) {
		a.clock = c
	}
}

// WithPipelineConfig adjusts the pipeline configuration of every job.
func WithPipelineConfig(fn func(*pipeline.Config)) Option {
	return func(a *Agent) {
		a.tune = fn
	}
}

// Agent runs measurement jobs on the hardware of one rig.
type Agent struct {
	cfg      Config
	guard    *device.Guard
	flasher  device.Flasher
	catalog  firmware.Catalog
	registry *Registry
	clock    clock.PassiveClock
	tune     func(*pipeline.Config)

	// ctx outlives requests; jobs run under it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu serializes start and stop.
	mu sync.Mutex

	stateMu sync.Mutex
	state   string
}

// New returns an agent opening hardware through driver.
func New(cfg Config, driver device.Driver, flasher device.Flasher, catalog firmware.Catalog, opts ...Option) *Agent {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Agent{
		cfg:      cfg,
		guard:    device.NewGuard(driver, cfg.Device),
		flasher:  flasher,
		catalog:  catalog,
		registry: NewRegistry(),
		clock:    clock.RealClock{},
		ctx:      ctx,
		cancel:   cancel,
		state:    StateOK,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// State returns OK after boot, busy while hardware is held and stopped
// after a stop.
func (a *Agent) State() string {
	if a.guard.Busy() {
		return StateBusy
	}
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.state
}

// Ready reports whether the device under test is attached. A device held by
// a running session counts as attached.
func (a *Agent) Ready(ctx context.Context) error {
	if a.guard.Busy() {
		return nil
	}
	_, err := a.guard.SerialPath(ctx)
	return err
}

func (a *Agent) setState(s string) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.state = s
}

// Flash installs the firmware selected by version, role and opts. Problems
// are reported in the returned status, never as an error.
func (a *Agent) Flash(ctx context.Context, v string, role node.Role, opts node.Options) string {
	log := slog.With("version", v, "role", role, "options", opts.String())

	sess, err := a.guard.AcquireProfiler(ctx)
	if err != nil {
		return a.flashFailed(log, err)
	}
	defer func() {
		if rerr := sess.Release(); rerr != nil {
			log.Warn("failed to release profiler", "error", rerr)
		}
	}()

	if err := sess.Profiler.SetDUTPower(true); err != nil {
		return a.flashFailed(log, errors.Wrap(errors.ErrCodeInternal, "failed to power device", err))
	}
	defer func() {
		if perr := sess.Profiler.SetDUTPower(false); perr != nil {
			log.Warn("failed to power off device", "error", perr)
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	image, release, err := firmware.Download(fetchCtx, a.catalog, a.cfg.FirmwareCache, v, role, opts)
	cancel()
	if err != nil {
		return a.flashFailed(log, err)
	}

	port, err := a.guard.SerialPath(ctx)
	if err != nil {
		return a.flashFailed(log, err)
	}

	flashCtx, cancel := context.WithTimeout(ctx, a.cfg.FlashTimeout)
	defer cancel()
	if err := a.flasher.Flash(flashCtx, image, port); err != nil {
		return a.flashFailed(log, err)
	}

	if a.cfg.PostFlashSettle > 0 {
		time.Sleep(a.cfg.PostFlashSettle)
	}

	flashTotal.WithLabelValues("success").Inc()
	a.setState(StateOK)
	log.Info("device flashed", "release", release, "port", port)
	return StateOK
}

func (a *Agent) flashFailed(log *slog.Logger, err error) string {
	flashTotal.WithLabelValues("failure").Inc()
	log.Error("flash failed", "error", err)
	return FlashFailedPrefix + err.Error()
}

// Start creates a job and begins measuring in the background. The job is
// returned in state started; hardware errors show up in its status later.
func (a *Agent) Start(v string, role node.Role, opts node.Options) *Job {
	a.mu.Lock()
	defer a.mu.Unlock()

	job := newJob(v, role, opts, a.clock.Now())
	a.registry.Add(job)
	job.setStatus(StatusStarted)
	a.setState(StateOK)

	slog.Info("job started", "job", job.ID, "role", role, "version", v, "options", opts.String())

	a.wg.Add(1)
	go a.run(job)
	return job
}

func (a *Agent) run(job *Job) {
	defer a.wg.Done()
	defer close(job.done)

	sess, err := a.guard.Acquire(a.ctx)
	if err != nil {
		slog.Error("failed to acquire device", "job", job.ID, "error", err)
		job.setStatus(err.Error())
		return
	}

	cfg := pipeline.DefaultConfig(job.Role, job.Version)
	cfg.PrintLogs = a.cfg.PrintLogs
	if a.tune != nil {
		a.tune(&cfg)
	}
	p := pipeline.New(cfg, sess.Profiler, sess.Serial, job.setStatus, pipeline.WithClock(a.clock))

	if !job.attach(p, sess) {
		slog.Debug("job stopped before measuring", "job", job.ID)
		if rerr := sess.Release(); rerr != nil {
			slog.Warn("failed to release device", "job", job.ID, "error", rerr)
		}
		return
	}

	jobsActive.Inc()
	defer jobsActive.Dec()

	if err := p.Run(a.ctx); err != nil {
		slog.Error("job could not start measuring", "job", job.ID, "error", err)
	}
	if rerr := job.release(); rerr != nil {
		slog.Warn("failed to release device", "job", job.ID, "error", rerr)
	}
	slog.Info("job finished measuring", "job", job.ID)
}

// Status returns the status of job id.
func (a *Agent) Status(id string) (string, error) {
	job, ok := a.registry.Get(id)
	if !ok {
		return "", errors.NewWithContext(errors.ErrCodeUnknownJob, "no job with this uuid",
			map[string]any{"uuid": id})
	}
	return job.Status(), nil
}

// Jobs drains every job. Jobs stay registered.
func (a *Agent) Jobs() JobsResponse {
	jobs := a.registry.List()
	out := make(JobsResponse, len(jobs))
	for _, j := range jobs {
		out[j.ID] = j.Drain()
	}
	return out
}

// Stop ends every job and returns the data not drained yet. Each job gets
// DeviceDoneTimeout to finish its hardware teardown; the session is then
// closed regardless.
func (a *Agent) Stop(ctx context.Context) StopResponse {
	a.mu.Lock()
	defer a.mu.Unlock()

	jobs := a.registry.List()
	for _, j := range jobs {
		j.requestStop()
	}

	deadline := time.NewTimer(a.cfg.DeviceDoneTimeout)
	defer deadline.Stop()
	expired := false
	for _, j := range jobs {
		if expired {
			break
		}
		select {
		case <-j.Done():
		case <-deadline.C:
			expired = true
		case <-ctx.Done():
			expired = true
		}
		if expired {
			slog.Warn("job did not finish in time", "job", j.ID, "timeout", a.cfg.DeviceDoneTimeout)
		}
	}

	resp := StopResponse{Status: StatusStopped, Jobs: make(JobsResponse, len(jobs))}
	for _, j := range jobs {
		resp.Jobs[j.ID] = j.Drain()
		if err := j.release(); err != nil {
			slog.Warn("failed to release device", "job", j.ID, "error", err)
		}
		j.markStopped()
	}

	a.registry.Clear()
	a.setState(StateStopped)
	slog.Info("all jobs stopped", "jobs", len(jobs))
	return resp
}

// Shutdown stops outstanding jobs and waits for their goroutines.
func (a *Agent) Shutdown(ctx context.Context) error {
	if a.registry.Len() > 0 {
		a.Stop(ctx)
	}
	a.cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.ErrCodeTimeout, "jobs did not finish before shutdown", ctx.Err())
	}
}
