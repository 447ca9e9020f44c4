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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/powerlab/powerlab/pkg/device"
	"github.com/powerlab/powerlab/pkg/measurement"
	"github.com/powerlab/powerlab/pkg/node"
	"github.com/powerlab/powerlab/pkg/pipeline"
)

// Job lifecycle states. Between started and stopped the status is whatever
// the pipeline reported last: OK or an error description.
const (
	StatusCreated = "created"
	StatusStarted = "started"
	StatusStopped = "stopped"
)

// Job is one measurement on the agent.
type Job struct {
	ID      string
	Version string
	Role    node.Role
	Options node.Options
	// StartedAt is the creation time in milliseconds since the Unix epoch.
	StartedAt int64

	mu            sync.Mutex
	status        string
	pipeline      *pipeline.Pipeline
	session       *device.Session
	stopRequested bool

	// done is closed when the job goroutine returned.
	done chan struct{}
}

func newJob(v string, role node.Role, opts node.Options, now time.Time) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Version:   v,
		Role:      role,
		Options:   opts,
		StartedAt: now.UnixMilli(),
		status:    StatusCreated,
		done:      make(chan struct{}),
	}
}

// Status returns the current job status.
func (j *Job) Status() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// setStatus records s unless the job was already stopped.
func (j *Job) setStatus(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status == StatusStopped {
		return
	}
	j.status = s
}

func (j *Job) markStopped() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = StatusStopped
}

// attach hands the running pipeline and its session to the job. It returns
// false if stop was requested before, in which case the caller owns the
// session.
func (j *Job) attach(p *pipeline.Pipeline, s *device.Session) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stopRequested {
		return false
	}
	j.pipeline = p
	j.session = s
	return true
}

// requestStop signals the pipeline, if one is attached, and prevents a
// later attach.
func (j *Job) requestStop() {
	j.mu.Lock()
	j.stopRequested = true
	p := j.pipeline
	j.mu.Unlock()

	if p != nil {
		p.Stop()
	}
}

// Drain returns the data produced since the previous drain.
func (j *Job) Drain() measurement.Batch {
	j.mu.Lock()
	p := j.pipeline
	j.mu.Unlock()

	if p == nil {
		return measurement.Batch{}
	}
	return p.Drain()
}

// release closes the hardware session. Safe to call more than once.
func (j *Job) release() error {
	j.mu.Lock()
	s := j.session
	j.mu.Unlock()
	return s.Release()
}

// Done is closed once the job stopped measuring.
func (j *Job) Done() <-chan struct{} {
	return j.done
}
