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

package fleet

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/powerlab/powerlab/pkg/agent"
	"github.com/powerlab/powerlab/pkg/errors"
	"github.com/powerlab/powerlab/pkg/firmware"
	"github.com/powerlab/powerlab/pkg/header"
	"github.com/powerlab/powerlab/pkg/measurement"
	"github.com/powerlab/powerlab/pkg/node"
	"github.com/powerlab/powerlab/pkg/serializer"
	"github.com/powerlab/powerlab/pkg/server"
)

// fakeAgent answers the agent API with canned data and records every call.
type fakeAgent struct {
	flashStatus string
	checkStatus string

	mu      sync.Mutex
	calls   map[string]int
	flashes []url.Values
	starts  []url.Values
	jobs    int
	fetches int
	current string
	runIDs  map[string]int
}

func newFakeAgent(t *testing.T) (*fakeAgent, *httptest.Server) {
	t.Helper()
	f := &fakeAgent{calls: make(map[string]int), runIDs: make(map[string]int)}
	ts := httptest.NewServer(f.handler())
	t.Cleanup(ts.Close)
	return f, ts
}

// jobID returns a stable uuid for the n-th started job.
func jobID(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}

func (f *fakeAgent) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAgent) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		f.record("ping")
		serializer.Respond(w, r, http.StatusOK, agent.StatusResponse{Status: agent.StateOK})
	})
	mux.HandleFunc("/flash/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls["flash"]++
		f.flashes = append(f.flashes, r.URL.Query())
		status := f.flashStatus
		f.mu.Unlock()
		if status == "" {
			status = agent.StateOK
		}
		serializer.Respond(w, r, http.StatusOK, agent.StatusResponse{Status: status})
	})
	mux.HandleFunc("/start/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls["start"]++
		f.starts = append(f.starts, r.URL.Query())
		f.jobs++
		f.current = jobID(f.jobs)
		id := f.current
		f.mu.Unlock()
		serializer.Respond(w, r, http.StatusOK, agent.StartResponse{UUID: id, Status: agent.StatusStarted})
	})
	mux.HandleFunc("/status/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls["status"]++
		current, status := f.current, f.checkStatus
		f.mu.Unlock()
		if r.URL.Query().Get(agent.ParamUUID) != current {
			serializer.Respond(w, r, http.StatusOK, agent.ErrorPayload{Error: "unknown job"})
			return
		}
		if status == "" {
			status = agent.StateOK
		}
		serializer.Respond(w, r, http.StatusOK, agent.StatusResponse{Status: status})
	})
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls["jobs"]++
		f.fetches++
		id, n := f.current, float64(f.fetches)
		f.mu.Unlock()
		// newest first so the controller has to sort
		serializer.Respond(w, r, http.StatusOK, agent.JobsResponse{id: {
			PowerSamples: []measurement.Sample{{Time: n*10 + 5, Value: n + 0.5}, {Time: n * 10, Value: n}},
			DataSamples:  []measurement.Event{{Time: n * 10, Label: "READY"}},
		}})
	})
	mux.HandleFunc("/stop/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls["stop"]++
		id := f.current
		f.current = ""
		f.mu.Unlock()
		serializer.Respond(w, r, http.StatusOK, agent.StopResponse{
			Status: agent.StatusStopped,
			Jobs: agent.JobsResponse{id: {
				PowerSamples: []measurement.Sample{{Time: 1000, Value: 9}},
			}},
		})
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.runIDs[r.Header.Get(server.HeaderRunID)]++
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	})
}

func (f *fakeAgent) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func nodeList(nodes ...Node) *NodeList {
	return &NodeList{
		Header: header.Header{Kind: header.KindNodeList, APIVersion: header.APIVersion},
		Nodes:  nodes,
	}
}

// autoStep advances fc whenever the controller waits on it.
func autoStep(t *testing.T, fc *testingclock.FakeClock, step time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		for ctx.Err() == nil {
			if fc.HasWaiters() {
				fc.Step(step)
			}
			time.Sleep(time.Millisecond)
		}
	}()
}

func TestRunEndToEnd(t *testing.T) {
	sender, senderTS := newFakeAgent(t)
	receiver, receiverTS := newFakeAgent(t)

	list := nodeList(
		Node{ID: "s1", Address: senderTS.URL, Role: node.RoleSender, Version: "1.0.0", Options: wifiDeep},
		Node{ID: "r1", Address: receiverTS.URL, Role: node.RoleReceiver, Version: "1.0.0"},
	)

	out := t.TempDir()
	t0 := time.Date(2024, 3, 1, 12, 30, 45, 0, time.Local)
	fc := testingclock.NewFakeClock(t0)
	autoStep(t, fc, 5*time.Second)

	ctl, err := NewController(list, Config{Duration: 20 * time.Second, Interval: 5 * time.Second, OutputDir: out},
		WithClock(fc), WithRunID("run1"), WithClientOptions(WithMsgpack(true)))
	require.NoError(t, err)

	artifacts, err := ctl.Run(context.Background())
	require.NoError(t, err)

	for name, f := range map[string]*fakeAgent{"sender": sender, "receiver": receiver} {
		assert.Equal(t, 1, f.count("ping"), name)
		assert.Equal(t, 1, f.count("flash"), name)
		assert.Equal(t, 1, f.count("start"), name)
		assert.Equal(t, 1, f.count("status"), name)
		assert.Equal(t, 4, f.count("jobs"), name)
		assert.Equal(t, 1, f.count("stop"), name)
	}

	q := sender.flashes[0]
	assert.Equal(t, "1.0.0", q.Get("version"))
	assert.Equal(t, "sender", q.Get("node_type"))
	assert.Equal(t, "WIFI", q.Get("protocol"))
	assert.Equal(t, "DEEP_SLEEP", q.Get("sleep_mode"))
	assert.Equal(t, "MIN_MODEM", q.Get("power_save_mode"))

	require.Len(t, artifacts, 2)
	files, err := filepath.Glob(filepath.Join(out, "*.json"))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	nameRe := regexp.MustCompile(`^result-\d{12}-node-(s1|r1)-job-00000000-0000-4000-8000-000000000001-run-run1\.json$`)
	for _, a := range artifacts {
		assert.Regexp(t, nameRe, filepath.Base(a.Path))
		assert.Equal(t, 9, a.Samples)
		assert.Equal(t, 4, a.Events)

		r, err := LoadResult(a.Path)
		require.NoError(t, err)
		assert.Equal(t, jobID(1), r.UUID)
		// nodes start in order, each followed by one status check delay
		started := t0
		if a.Node == "r1" {
			started = t0.Add(5 * time.Second)
		}
		assert.Equal(t, float64(started.UnixMilli()), r.StartedAt)
		for i := 1; i < len(r.Averages); i++ {
			assert.LessOrEqual(t, r.Averages[i-1].Time, r.Averages[i].Time)
		}
		assert.Equal(t, 1000.0, r.Averages[len(r.Averages)-1].Time)
	}

	sr, err := LoadResult(artifacts[0].Path)
	require.NoError(t, err)
	if artifacts[0].Node == "r1" {
		sr, err = LoadResult(artifacts[1].Path)
		require.NoError(t, err)
	}
	assert.Equal(t, node.RoleSender, sr.Role)
	assert.Equal(t, "WIFI", sr.Protocol)
	assert.Equal(t, "DEEP_SLEEP", sr.SleepMode)
	assert.Equal(t, "MIN_MODEM", sr.PowerSaveMode)
}

func TestRunAborts(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fakeAgent)
		wantCode errors.ErrorCode
		starts   int
	}{
		{
			name:     "flash failure",
			setup:    func(f *fakeAgent) { f.flashStatus = agent.FlashFailedPrefix + "no image" },
			wantCode: errors.ErrCodeFlashFailure,
			starts:   0,
		},
		{
			name:     "version mismatch at status check",
			setup:    func(f *fakeAgent) { f.checkStatus = "[VERSION_MISMATCH] wrong version installed on device" },
			wantCode: errors.ErrCodeVersionMismatch,
			starts:   1,
		},
		{
			name:     "unexpected status",
			setup:    func(f *fakeAgent) { f.checkStatus = "Device not found" },
			wantCode: errors.ErrCodeUnavailable,
			starts:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ts := newFakeAgent(t)
			tt.setup(f)

			fc := testingclock.NewFakeClock(time.Now())
			autoStep(t, fc, time.Second)

			ctl, err := NewController(nodeList(Node{ID: "n1", Address: ts.URL, Role: node.RoleSender, Version: "1.0.0"}),
				Config{Duration: 2 * time.Second, Interval: time.Second, OutputDir: t.TempDir()}, WithClock(fc))
			require.NoError(t, err)

			_, err = ctl.Run(context.Background())
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.wantCode), "got %v", err)
			assert.Equal(t, tt.starts, f.count("start"))
			assert.Zero(t, f.count("jobs"))
		})
	}
}

func TestRunUnreachableNode(t *testing.T) {
	f, ts := newFakeAgent(t)
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	ctl, err := NewController(nodeList(
		Node{ID: "n1", Address: ts.URL, Role: node.RoleReceiver, Version: "1.0.0"},
		Node{ID: "n2", Address: deadURL, Role: node.RoleSender, Version: "1.0.0"},
	), Config{Duration: time.Second, Interval: time.Second, OutputDir: t.TempDir()},
		WithClientOptions(WithRetry(fastRetry)))
	require.NoError(t, err)

	_, err = ctl.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConnectivity), "got %v", err)
	assert.Zero(t, f.count("flash"))
}

func sweepCatalog(t *testing.T) firmware.Catalog {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "1.0.0")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{
		"receiver.bin",
		"sender.bin",
		"sender-ESPNOW-DEEP_SLEEP-NONE.bin",
		"sender-WIFI-DEEP_SLEEP-MIN_MODEM.bin",
		"sender-WIFI-LIGHT_SLEEP-MIN_MODEM.bin",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o600))
	}
	cat, err := firmware.NewDirCatalog(root)
	require.NoError(t, err)
	return cat
}

func TestSweep(t *testing.T) {
	sender, senderTS := newFakeAgent(t)
	receiver, receiverTS := newFakeAgent(t)

	fc := testingclock.NewFakeClock(time.Now())
	autoStep(t, fc, 5*time.Second)

	ctl, err := NewController(nodeList(
		Node{ID: "r1", Address: receiverTS.URL, Role: node.RoleReceiver, Version: "1.0.0"},
		Node{ID: "s1", Address: senderTS.URL, Role: node.RoleSender, Version: "latest"},
	), Config{Duration: 10 * time.Second, Interval: 5 * time.Second, OutputDir: t.TempDir()},
		WithClock(fc), WithCatalog(sweepCatalog(t)))
	require.NoError(t, err)

	artifacts, err := ctl.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, receiver.count("flash"))
	assert.Equal(t, 3, receiver.count("start"))
	assert.Equal(t, 3, receiver.count("stop"))
	assert.Equal(t, 6, receiver.count("jobs"))

	require.Len(t, sender.flashes, 3)
	want := []node.Options{
		{Protocol: "ESPNOW", SleepMode: "DEEP_SLEEP", PowerSaveMode: "NONE"},
		{Protocol: "WIFI", SleepMode: "DEEP_SLEEP", PowerSaveMode: "MIN_MODEM"},
		{Protocol: "WIFI", SleepMode: "LIGHT_SLEEP", PowerSaveMode: "MIN_MODEM"},
	}
	for i, q := range sender.flashes {
		assert.Equal(t, want[i], node.OptionsFromQuery(q), "flash %d", i)
		assert.Equal(t, "1.0.0", q.Get("version"), "release is pinned")
		assert.Equal(t, want[i], node.OptionsFromQuery(sender.starts[i]), "start %d", i)
	}
	assert.Equal(t, 3, sender.count("stop"))

	require.Len(t, artifacts, 6)
	var variants []string
	for _, a := range artifacts {
		if a.Node == "s1" {
			variants = append(variants, a.Variant)
		}
	}
	assert.Equal(t, []string{
		"sender-ESPNOW-DEEP_SLEEP-NONE",
		"sender-WIFI-DEEP_SLEEP-MIN_MODEM",
		"sender-WIFI-LIGHT_SLEEP-MIN_MODEM",
	}, variants)
}

func TestSweepSkipsUnknownVersion(t *testing.T) {
	sender, senderTS := newFakeAgent(t)
	receiver, receiverTS := newFakeAgent(t)

	ctl, err := NewController(nodeList(
		Node{ID: "r1", Address: receiverTS.URL, Role: node.RoleReceiver, Version: "1.0.0"},
		Node{ID: "s1", Address: senderTS.URL, Role: node.RoleSender, Version: "9.9.9"},
	), Config{Duration: 0, Interval: time.Second, OutputDir: t.TempDir()},
		WithCatalog(sweepCatalog(t)))
	require.NoError(t, err)

	artifacts, err := ctl.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, artifacts)
	assert.Equal(t, 1, receiver.count("flash"))
	assert.Zero(t, receiver.count("start"))
	assert.Zero(t, sender.count("flash"))
}

func TestSweepRequirements(t *testing.T) {
	_, ts := newFakeAgent(t)
	list := nodeList(Node{ID: "s1", Address: ts.URL, Role: node.RoleSender, Version: "1.0.0"})

	ctl, err := NewController(list, Config{Interval: time.Second})
	require.NoError(t, err)
	_, err = ctl.Sweep(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidRequest))

	ctl, err = NewController(list, Config{Interval: time.Second}, WithCatalog(sweepCatalog(t)))
	require.NoError(t, err)
	_, err = ctl.Sweep(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedConfig))
}

func TestReset(t *testing.T) {
	f, ts := newFakeAgent(t)
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	ctl, err := NewController(nodeList(
		Node{ID: "n1", Address: deadURL, Role: node.RoleReceiver, Version: "1.0.0"},
		Node{ID: "n2", Address: ts.URL, Role: node.RoleSender, Version: "1.0.0"},
	), Config{Interval: time.Second, OutputDir: t.TempDir()},
		WithClientOptions(WithRetry(fastRetry)))
	require.NoError(t, err)

	err = ctl.Reset(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConnectivity))
	assert.Equal(t, 1, f.count("stop"), "remaining nodes are still stopped")
	assert.Empty(t, ctl.Artifacts(), "reset collects nothing")
	assert.Equal(t, map[string]int{ctl.RunID(): 1}, f.runIDs, "every agent call carries the run id")
}

func TestConfig(t *testing.T) {
	assert.Equal(t, 4, Config{Duration: 20 * time.Second, Interval: 5 * time.Second}.Iterations())
	assert.Equal(t, 3, Config{Duration: 17 * time.Second, Interval: 5 * time.Second}.Iterations())
	assert.Equal(t, 0, Config{Duration: 4 * time.Second, Interval: 5 * time.Second}.Iterations())
	assert.Equal(t, 0, Config{Duration: time.Second}.Iterations())

	_, err := NewController(nodeList(Node{ID: "n", Address: "h", Role: node.RoleSender, Version: "1"}),
		Config{Duration: time.Second})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidRequest))

	_, err = NewController(nil, Config{Interval: time.Second})
	assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedConfig))
}

func TestMergeRejectsUnsafeJobID(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "a", "b", "out")
	n := Node{ID: "n1", Address: "10.0.0.5", Role: node.RoleSender, Version: "1.0.0"}
	ctl, err := NewController(nodeList(n), Config{Interval: time.Second, OutputDir: out})
	require.NoError(t, err)

	for _, id := range []string{"x/../../../../escaped", "../job", "job-1", ""} {
		err := ctl.merge(n, agent.JobsResponse{id: {}})
		require.Error(t, err, id)
		assert.True(t, errors.IsCode(err, errors.ErrCodeInternal), id)
	}
	assert.Empty(t, ctl.Artifacts())

	var written []string
	require.NoError(t, filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			written = append(written, path)
		}
		return err
	}))
	assert.Empty(t, written)

	require.NoError(t, ctl.merge(n, agent.JobsResponse{jobID(7): {}}))
	require.Len(t, ctl.Artifacts(), 1)
	assert.Equal(t, out, filepath.Dir(ctl.Artifacts()[0].Path))
}
