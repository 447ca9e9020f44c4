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

// Package defaults provides centralized configuration constants for powerlab.
//
// This package defines timeout values, retry parameters, and other configuration
// defaults used by the node agent and the fleet controller.
//
// # Timeout Categories
//
//   - Pipeline timings: serial read timeout, sampler interval, device teardown
//   - Agent timeouts: flashing and firmware download
//   - Controller timeouts: per-call limits for agent requests
//   - Retry parameters: connection-only retry budget and backoff
//   - Server and HTTP client timeouts
//
// # Usage
//
//	ctx, cancel := context.WithTimeout(ctx, defaults.StatusTimeout)
//	defer cancel()
//
// # Timeout Guidelines
//
//   - Status checks are short (seconds); a timeout aborts the run.
//   - Fetch and stop are long because stop blocks on hardware teardown.
//   - StopTimeout must exceed DeviceDoneTimeout.
package defaults
