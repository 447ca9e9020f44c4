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

// Package api runs the node agent daemon, powerlabd.
//
// Serve blocks until SIGINT/SIGTERM and is all a main package needs:
//
//	import (
//	    "log"
//	    "github.com/powerlab/powerlab/pkg/api"
//	)
//
//	func main() {
//	    if err := api.Serve(); err != nil {
//	        log.Fatalf("server error: %v", err)
//	    }
//	}
//
// # Architecture
//
// The API layer is responsible for:
//   - Configuring structured logging with application name and version
//   - Attaching the rig (tty devices and esptool, or a simulated bench)
//   - Opening the firmware catalog the agent flashes from
//   - Notifying systemd once the server runs and stopping jobs on shutdown
//
// The job API itself lives in pkg/agent; pkg/server provides the HTTP
// server, middleware, health and metrics endpoints.
//
// # Configuration
//
// The daemon is configured via environment variables:
//   - PORT: HTTP server port (default: 8000)
//   - LOG_LEVEL: Logging level (debug, info, warn, error)
//   - POWERLAB_PROFILER, POWERLAB_SERIAL: USB signatures of the profiler and device
//   - POWERLAB_FIRMWARE_SOURCE: github://owner/repo, oci://registry/repo or a directory
//   - POWERLAB_FIRMWARE_CACHE: download cache directory
//   - POWERLAB_SIMULATE: serve a simulated rig
//   - POWERLAB_ESPTOOL, POWERLAB_CHIP: flashing tool and target chip
//   - GITHUB_TOKEN: token for the GitHub releases API
//
// Version information is set at build time using ldflags:
//
//	go build -ldflags="-X 'github.com/powerlab/powerlab/pkg/api.version=1.0.0'"
package api
