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

// Package pipeline turns the two hardware streams of a measurement job into
// time-aligned data.
//
// Two tasks run per job under an errgroup:
//
//   - the sampler polls the power profiler and appends each non-empty raw
//     block with its arrival time to a raw buffer;
//   - the logger reads serial lines with a bounded timeout and classifies
//     them by prefix (handshake, ready, sampled value, log, done).
//
// A sampled value triggers conversion: every buffered raw block becomes one
// averaged power point. Buffers are drained by swap-and-clear, so data
// produced during a drain is kept for the next one.
//
// All timestamps are milliseconds since the profiler was told to start
// measuring. A handshake whose role or version does not match is reported
// through the status function and measurement continues.
//
// When the sender firmware prints DONE, or Stop is called, the device is
// powered off, measuring stops and Done is closed.
package pipeline
