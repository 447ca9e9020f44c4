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
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerlab/powerlab/pkg/device"
	"github.com/powerlab/powerlab/pkg/errors"
	"github.com/powerlab/powerlab/pkg/firmware"
	"github.com/powerlab/powerlab/pkg/node"
	"github.com/powerlab/powerlab/pkg/pipeline"
)

var wifiDeep = node.Options{Protocol: "WIFI", SleepMode: "DEEP_SLEEP", PowerSaveMode: "MIN_MODEM"}

type rig struct {
	driver  *device.SimDriver
	flasher *device.SimFlasher
	agent   *Agent
}

func testCatalog(t *testing.T) firmware.Catalog {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "1.0.0")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"sender.bin", "receiver.bin", "sender-WIFI-DEEP_SLEEP-MIN_MODEM.bin"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o600))
	}
	cat, err := firmware.NewDirCatalog(root)
	require.NoError(t, err)
	return cat
}

// newRig returns an agent on simulated hardware whose device runs script.
func newRig(t *testing.T, script func(i int) (string, bool), profiler func() *device.SimProfiler) *rig {
	t.Helper()

	driver := &device.SimDriver{
		NewSerial: func() *device.SimSerial {
			return device.NewSimSerial("/dev/sim").WithGenerator(time.Millisecond, script)
		},
		NewProfiler: profiler,
	}
	flasher := &device.SimFlasher{}

	cfg := DefaultConfig()
	cfg.FirmwareCache = t.TempDir()
	cfg.PostFlashSettle = 0
	cfg.DeviceDoneTimeout = 2 * time.Second

	a := New(cfg, driver, flasher, testCatalog(t), WithPipelineConfig(func(c *pipeline.Config) {
		c.ReadTimeout = 5 * time.Millisecond
		c.Warmup = 0
		c.PowerOffSettle = 0
	}))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return &rig{driver: driver, flasher: flasher, agent: a}
}

func blockProfiler(counter *atomic.Int64) func() *device.SimProfiler {
	return func() *device.SimProfiler {
		p := device.NewSimProfiler()
		p.Period = 500 * time.Microsecond
		p.Generate = func() []byte {
			counter.Add(1)
			return device.EncodeSimBlock(100, 200)
		}
		return p
	}
}

func waitStatus(t *testing.T, j *Job, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(j.Status(), want)
	}, 2*time.Second, time.Millisecond, "last status %q", j.Status())
}

func TestFlash(t *testing.T) {
	r := newRig(t, nil, nil)

	status := r.agent.Flash(context.Background(), "latest", node.RoleSender, wifiDeep)
	assert.Equal(t, StateOK, status)

	calls := r.flasher.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "sender-WIFI-DEEP_SLEEP-MIN_MODEM.bin", filepath.Base(calls[0].Image))
	assert.Equal(t, "1.0.0", filepath.Base(filepath.Dir(calls[0].Image)))
	assert.Equal(t, "/dev/sim-10c4_ea60", calls[0].Port)

	profs := r.driver.Profilers()
	require.Len(t, profs, 1)
	assert.Equal(t, []bool{true, false}, profs[0].Toggles())
	assert.True(t, profs[0].Closed())
	assert.Equal(t, StateOK, r.agent.State())
}

func TestFlashFailures(t *testing.T) {
	t.Run("unknown version", func(t *testing.T) {
		r := newRig(t, nil, nil)
		status := r.agent.Flash(context.Background(), "9.9.9", node.RoleSender, node.Options{})
		assert.True(t, strings.HasPrefix(status, FlashFailedPrefix), status)
		assert.Empty(t, r.flasher.Calls())
	})

	t.Run("tool error", func(t *testing.T) {
		r := newRig(t, nil, nil)
		r.flasher.Err = assert.AnError
		status := r.agent.Flash(context.Background(), "1.0.0", node.RoleReceiver, node.Options{})
		assert.True(t, strings.HasPrefix(status, FlashFailedPrefix), status)
		assert.Contains(t, status, string(errors.ErrCodeFlashFailure))
		assert.False(t, r.agent.guard.Busy())
	})

	t.Run("no hardware", func(t *testing.T) {
		r := newRig(t, nil, nil)
		r.driver.Missing = true
		status := r.agent.Flash(context.Background(), "1.0.0", node.RoleSender, node.Options{})
		assert.Contains(t, status, string(errors.ErrCodeDeviceNotFound))
	})
}

func TestStartHandshakeOK(t *testing.T) {
	r := newRig(t, device.DemoScript("receiver", "1.0.0", 0), nil)

	assert.Equal(t, StateOK, r.agent.State())

	job := r.agent.Start("v1.0", node.RoleReceiver, node.Options{})
	assert.Equal(t, StatusStarted, job.Status())
	assert.NotEmpty(t, job.ID)

	waitStatus(t, job, pipeline.StatusOK)
	assert.Equal(t, StateBusy, r.agent.State())

	status, err := r.agent.Status(job.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusOK, status)

	resp := r.agent.Stop(context.Background())
	assert.Equal(t, StatusStopped, resp.Status)
	assert.Contains(t, resp.Jobs, job.ID)
	assert.Equal(t, StatusStopped, job.Status())
	assert.Equal(t, StateStopped, r.agent.State())

	_, err = r.agent.Status(job.ID)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownJob))
}

func TestMismatchKeepsCollecting(t *testing.T) {
	r := newRig(t, device.DemoScript("receiver", "1.0.0", 0), nil)

	job := r.agent.Start("1.0.0", node.RoleSender, node.Options{})
	waitStatus(t, job, string(errors.ErrCodeRoleMismatch))

	require.Eventually(t, func() bool {
		return r.agent.Jobs().Len() > 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, job.Status(), string(errors.ErrCodeRoleMismatch))

	r.agent.Stop(context.Background())
}

func TestDrainIdempotent(t *testing.T) {
	var generated atomic.Int64
	r := newRig(t, device.DemoScript("sender", "1.0.0", 3), blockProfiler(&generated))

	job := r.agent.Start("1.0.0", node.RoleSender, node.Options{})
	select {
	case <-job.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("sender job did not finish")
	}

	first := r.agent.Jobs()
	require.Contains(t, first, job.ID)
	assert.False(t, first[job.ID].IsEmpty())

	second := r.agent.Jobs()
	require.Contains(t, second, job.ID)
	assert.True(t, second[job.ID].IsEmpty())

	resp := r.agent.Stop(context.Background())
	assert.True(t, resp.Jobs[job.ID].IsEmpty())
	assert.Equal(t, int(generated.Load()), len(first[job.ID].PowerSamples))
}

func TestJobsAndStopConserveData(t *testing.T) {
	var generated atomic.Int64
	r := newRig(t, device.DemoScript("receiver", "1.0.0", 0), blockProfiler(&generated))

	job := r.agent.Start("1.0.0", node.RoleReceiver, node.Options{})
	waitStatus(t, job, pipeline.StatusOK)

	var points, events int
	for i := 0; i < 5; i++ {
		time.Sleep(10 * time.Millisecond)
		b := r.agent.Jobs()[job.ID]
		points += len(b.PowerSamples)
		events += len(b.DataSamples)
	}

	resp := r.agent.Stop(context.Background())
	final := resp.Jobs[job.ID]
	points += len(final.PowerSamples)
	events += len(final.DataSamples)

	assert.Equal(t, int(generated.Load()), points)
	assert.Positive(t, events)
	assert.Empty(t, r.agent.Jobs())
}

func TestSecondJobReportsBusyDevice(t *testing.T) {
	r := newRig(t, device.DemoScript("receiver", "1.0.0", 0), nil)

	first := r.agent.Start("1.0.0", node.RoleReceiver, node.Options{})
	waitStatus(t, first, pipeline.StatusOK)

	second := r.agent.Start("1.0.0", node.RoleReceiver, node.Options{})
	waitStatus(t, second, string(errors.ErrCodeUnavailable))
	assert.Equal(t, pipeline.StatusOK, first.Status())

	resp := r.agent.Stop(context.Background())
	assert.Len(t, resp.Jobs, 2)
	assert.Equal(t, StatusStopped, second.Status())
	assert.False(t, r.agent.guard.Busy())
}

func TestStartWithoutHardware(t *testing.T) {
	r := newRig(t, nil, nil)
	r.driver.Missing = true

	job := r.agent.Start("1.0.0", node.RoleSender, node.Options{})
	waitStatus(t, job, string(errors.ErrCodeDeviceNotFound))

	resp := r.agent.Stop(context.Background())
	assert.True(t, resp.Jobs[job.ID].IsEmpty())
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(EnvVarProfiler, "PPK3")
	t.Setenv(EnvVarSerial, "1a86_7523")
	t.Setenv(EnvVarFirmwareSource, "oci://ghcr.io/powerlab/firmware")
	t.Setenv(EnvVarSimulate, "true")
	t.Setenv(EnvVarPrintLogs, "not-a-bool")
	t.Setenv(EnvVarGitHubToken, "tkn")

	cfg := LoadConfig()
	assert.Equal(t, "PPK3", cfg.Device.ProfilerSignature)
	assert.Equal(t, "1a86_7523", cfg.Device.SerialSignature)
	assert.Equal(t, "oci://ghcr.io/powerlab/firmware", cfg.FirmwareSource)
	assert.True(t, cfg.Simulate)
	assert.False(t, cfg.PrintLogs)
	assert.Equal(t, "tkn", cfg.GitHubToken)
	assert.Equal(t, "esptool.py", cfg.Esptool)
}
