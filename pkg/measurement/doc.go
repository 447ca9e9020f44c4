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

// Package measurement defines the time series produced by a measurement job.
//
// A job yields two series that share one time base (milliseconds since the
// profiler started measuring):
//
//   - Sample: averaged current draw in microamps
//   - Event: a decoded device line (sampled value, ready marker, log text)
//
// Node agents return drained data as a Batch. On the wire, samples and
// events are compact two element arrays in both JSON and msgpack:
//
//	{"power_samples": [[12.5, 4310.2]], "data_samples": [[13.0, "42"]]}
//
// Persisted results use the object forms Point and LabelPoint.
//
// Ordering: a single producer appends each series in time order, but data
// fetched across several drains may interleave. Consumers call Batch.Sort
// (or SortSamples/SortEvents) after merging; sorts are stable.
package measurement
