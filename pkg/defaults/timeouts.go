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

package defaults

import "time"

// Pipeline timings for the node-side sampling tasks.
const (
	// SerialReadTimeout bounds a single serial line read. Stop latency of the
	// logger task is bounded by this value.
	SerialReadTimeout = 1 * time.Second

	// SamplerInterval is the pause between two profiler polls.
	SamplerInterval = 10 * time.Microsecond

	// ProfilerWarmup is the delay between starting a measurement and powering
	// the device under test.
	ProfilerWarmup = 250 * time.Millisecond

	// DeviceDoneTimeout is how long stop waits for the pipeline to finish its
	// hardware teardown.
	DeviceDoneTimeout = 30 * time.Second
)

// Agent timeouts for device operations.
const (
	// FlashTimeout is the upper bound for a single firmware flash.
	FlashTimeout = 2 * time.Minute

	// FirmwareFetchTimeout bounds the lookup and download of a firmware image.
	FirmwareFetchTimeout = 60 * time.Second

	// PostFlashSettle is the pause after flashing before the device is powered off.
	PostFlashSettle = 1 * time.Second
)

// Controller timeouts for calls to node agents.
const (
	// PingTimeout is the timeout for the liveness probe.
	PingTimeout = 5 * time.Second

	// StatusTimeout is the timeout for job status checks.
	StatusTimeout = 10 * time.Second

	// StartTimeout is the timeout for starting a job.
	StartTimeout = 10 * time.Second

	// FlashRequestTimeout covers firmware download and flashing on the agent.
	FlashRequestTimeout = 3 * time.Minute

	// FetchTimeout is the timeout for draining job data.
	FetchTimeout = 60 * time.Second

	// StopTimeout is the timeout for stopping a node. Stop blocks until the
	// agent finished hardware teardown.
	StopTimeout = 60 * time.Second

	// StatusCheckDelay is the pause between start and the follow-up status check.
	StatusCheckDelay = 1 * time.Second
)

// Retry parameters for connection establishment.
const (
	// ConnectRetries is the number of retries after the first failed dial.
	ConnectRetries = 3

	// ConnectBackoff is the initial delay between dial attempts.
	ConnectBackoff = 200 * time.Millisecond

	// ConnectBackoffFactor multiplies the delay after each attempt.
	ConnectBackoffFactor = 2.0
)

// Server timeouts for HTTP server configuration.
const (
	// ServerReadTimeout is the maximum duration for reading request headers.
	ServerReadTimeout = 10 * time.Second

	// ServerReadHeaderTimeout prevents slow header attacks.
	ServerReadHeaderTimeout = 5 * time.Second

	// ServerWriteTimeout is the maximum duration for writing a response.
	// Must exceed the longest handler, which is flash.
	ServerWriteTimeout = 3 * time.Minute

	// ServerIdleTimeout is the maximum duration to wait for the next request.
	ServerIdleTimeout = 5 * time.Minute

	// ServerShutdownTimeout is the maximum duration for graceful shutdown.
	ServerShutdownTimeout = 30 * time.Second

	// ReadinessCheckTimeout bounds the device lookup behind /ready.
	ReadinessCheckTimeout = 2 * time.Second
)

// HTTP client timeouts for outbound requests.
const (
	// HTTPClientTimeout is the default total timeout for HTTP requests.
	HTTPClientTimeout = 30 * time.Second

	// HTTPConnectTimeout is the timeout for establishing connections.
	HTTPConnectTimeout = 5 * time.Second

	// HTTPTLSHandshakeTimeout is the timeout for TLS handshake.
	HTTPTLSHandshakeTimeout = 5 * time.Second

	// HTTPResponseHeaderTimeout is the timeout for reading response headers.
	// Agent calls such as stop and flash only answer once the work is done,
	// so this must not be shorter than FlashRequestTimeout.
	HTTPResponseHeaderTimeout = 3 * time.Minute

	// HTTPIdleConnTimeout is the timeout for idle connections in the pool.
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPKeepAlive is the keep-alive duration for connections.
	HTTPKeepAlive = 30 * time.Second

	// HTTPExpectContinueTimeout is the timeout for Expect: 100-continue.
	HTTPExpectContinueTimeout = 1 * time.Second
)

// Run parameters used by the controller CLI.
const (
	// RunDuration is the default measurement duration.
	RunDuration = 20 * time.Second

	// RunInterval is the default poll interval.
	RunInterval = 5 * time.Second

	// AgentPort is the port node agents listen on when a node address has none.
	AgentPort = 8000
)
