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

package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerlab/powerlab/pkg/agent"
	"github.com/powerlab/powerlab/pkg/device"
	"github.com/powerlab/powerlab/pkg/errors"
	"github.com/powerlab/powerlab/pkg/firmware"
	"github.com/powerlab/powerlab/pkg/serializer"
	"github.com/powerlab/powerlab/pkg/server"
)

func newAgent(t *testing.T, driver *device.SimDriver) *agent.Agent {
	t.Helper()
	catalog, err := firmware.NewCatalog(t.TempDir())
	require.NoError(t, err)
	a := agent.New(agent.DefaultConfig(), driver, &device.SimFlasher{}, catalog)
	t.Cleanup(func() { _ = a.Shutdown(context.TODO()) })
	return a
}

func newAgentServer(t *testing.T, cfg *server.Config) *httptest.Server {
	t.Helper()
	a := newAgent(t, &device.SimDriver{})
	if cfg == nil {
		cfg = server.NewConfig()
	}
	s := server.New(
		server.WithConfig(cfg),
		server.WithName("powerlabd"),
		server.WithHandler(a.Routes()),
		server.WithReadiness(a.Ready),
	)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, method, target string, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, target, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestAgentRoutesRequestID(t *testing.T) {
	ts := newAgentServer(t, nil)
	caller := uuid.NewString()

	tests := []struct {
		name   string
		method string
		path   string
		sent   string
		keep   bool
	}{
		{name: "generated on root", method: http.MethodGet, path: "/"},
		{name: "kept on status", method: http.MethodGet, path: "/status/?uuid=x", sent: caller, keep: true},
		{name: "replaced when not a uuid", method: http.MethodGet, path: "/jobs", sent: "rig-1;DROP"},
		{name: "kept on method error", method: http.MethodDelete, path: "/flash/", sent: caller, keep: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := map[string]string{}
			if tt.sent != "" {
				header["X-Request-Id"] = tt.sent
			}
			resp, _ := call(t, tt.method, ts.URL+tt.path, header)

			got := resp.Header.Get("X-Request-Id")
			_, err := uuid.Parse(got)
			require.NoError(t, err, "response request id %q", got)
			if tt.keep {
				assert.Equal(t, tt.sent, got)
			} else {
				assert.NotEqual(t, tt.sent, got)
			}
		})
	}
}

func TestAgentRoutesErrorCarriesRequestID(t *testing.T) {
	ts := newAgentServer(t, nil)

	resp, body := call(t, http.MethodPost, ts.URL+"/start/", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var e server.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, string(errors.ErrCodeInvalidRequest), e.Code)
	assert.Equal(t, resp.Header.Get("X-Request-Id"), e.RequestID)
	assert.Equal(t, server.DefaultAPIVersion, resp.Header.Get("X-API-Version"))
}

func TestAgentRoutesRunID(t *testing.T) {
	ts := newAgentServer(t, nil)
	run := uuid.NewString()

	resp, _ := call(t, http.MethodGet, ts.URL+"/status?uuid=x", map[string]string{server.HeaderRunID: run})
	assert.Equal(t, run, resp.Header.Get(server.HeaderRunID))

	resp, _ = call(t, http.MethodGet, ts.URL+"/status?uuid=x", map[string]string{server.HeaderRunID: "run1"})
	assert.Empty(t, resp.Header.Get(server.HeaderRunID))
}

func TestAgentRoutesNegotiateWireFormat(t *testing.T) {
	ts := newAgentServer(t, nil)

	resp, _ := call(t, http.MethodGet, ts.URL+"/jobs/", map[string]string{
		"Accept": serializer.MediaTypeMsgpack + ", application/vnd.powerlab.v1+msgpack",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, serializer.MediaTypeMsgpack, resp.Header.Get("Content-Type"))
	assert.Equal(t, "v1", resp.Header.Get("X-API-Version"))
}

func TestAgentRoutesRateLimit(t *testing.T) {
	cfg := server.NewConfig()
	cfg.RateLimit = 0.001
	cfg.RateLimitBurst = 1
	ts := newAgentServer(t, cfg)

	resp, _ := call(t, http.MethodGet, ts.URL+"/status?uuid=x", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := call(t, http.MethodGet, ts.URL+"/status?uuid=x", nil)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	var e server.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, string(errors.ErrCodeRateLimitExceeded), e.Code)
	assert.True(t, e.Retryable)

	// system routes stay reachable for the fleet controller
	resp, _ = call(t, http.MethodGet, ts.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAgentRoutesMetricsLabels(t *testing.T) {
	ts := newAgentServer(t, nil)

	call(t, http.MethodPost, ts.URL+"/start/", nil)
	call(t, http.MethodGet, ts.URL+"/jobs", map[string]string{"Accept": serializer.MediaTypeMsgpack})
	call(t, http.MethodGet, ts.URL+"/wp-admin/setup.php", nil)

	_, body := call(t, http.MethodGet, ts.URL+"/metrics", nil)
	text := string(body)
	for _, want := range []string{
		`powerlab_http_requests_total{format="json",method="POST",route="/start",status="400"}`,
		`powerlab_http_requests_total{format="msgpack",method="GET",route="/jobs",status="200"}`,
		`powerlab_http_requests_total{format="json",method="GET",route="other",status="404"}`,
	} {
		assert.Contains(t, text, want)
	}
	assert.NotContains(t, text, `route="/start/"`)
	assert.NotContains(t, text, "wp-admin")
}

func readyStatus(t *testing.T, url string) (int, server.HealthResponse) {
	t.Helper()
	var (
		resp *http.Response
		err  error
	)
	require.Eventually(t, func() bool {
		resp, err = http.Get(url)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	defer resp.Body.Close()

	var h server.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	return resp.StatusCode, h
}

func TestAgentReadinessFollowsDevice(t *testing.T) {
	tests := []struct {
		name       string
		port       int
		missing    bool
		wantStatus int
		wantReason string
	}{
		{name: "attached", port: 18091, wantStatus: http.StatusOK},
		{name: "unplugged", port: 18092, missing: true,
			wantStatus: http.StatusServiceUnavailable, wantReason: string(errors.ErrCodeDeviceNotFound)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAgent(t, &device.SimDriver{Missing: tt.missing})
			cfg := server.NewConfig()
			cfg.Port = tt.port
			cfg.ShutdownTimeout = time.Second
			s := server.New(server.WithConfig(cfg), server.WithHandler(a.Routes()), server.WithReadiness(a.Ready))

			ctx, cancel := context.WithCancel(context.TODO())
			done := make(chan error, 1)
			go func() { done <- s.Start(ctx) }()
			t.Cleanup(func() {
				cancel()
				<-done
			})

			status, h := readyStatus(t, fmt.Sprintf("http://127.0.0.1:%d/ready", tt.port))
			assert.Equal(t, tt.wantStatus, status)
			assert.True(t, strings.Contains(h.Reason, tt.wantReason), "reason %q", h.Reason)
		})
	}
}
