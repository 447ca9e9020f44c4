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

// Package server provides the HTTP server shared by long running powerlab
// processes.
//
// Callers register their routes with WithHandler; every route is wrapped in
// the same middleware chain:
//
//	metrics -> API version -> request id -> panic recovery -> rate limit -> logging
//
// The server always exposes:
//
//	GET /health   liveness, always 200
//	GET /ready    readiness, 503 until Start is called and after Shutdown
//	GET /metrics  Prometheus exposition
//
// A root handler listing the routes is added unless "/" is registered.
//
// Errors are written as ErrorResponse JSON:
//
//	{
//	  "code": "INVALID_REQUEST",
//	  "message": "version is required",
//	  "requestId": "550e8400-e29b-41d4-a716-446655440000",
//	  "timestamp": "2025-12-22T12:00:00Z",
//	  "retryable": false
//	}
//
// Configuration comes from NewConfig (PORT and SHUTDOWN_TIMEOUT_SECONDS
// environment overrides) or WithConfig.
package server
