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

// Package fleet drives measurements across a set of node agents.
//
// A NodeList names the nodes of a test bench: where their agent listens,
// which role the device plays and which firmware variant it runs. The
// Controller uses one Client per node to run a test:
//
//	list, err := fleet.LoadNodeList("nodes.yaml")
//	ctl, err := fleet.NewController(list, fleet.Config{
//		Duration:  20 * time.Second,
//		Interval:  5 * time.Second,
//		OutputDir: "results",
//	})
//	artifacts, err := ctl.Run(ctx)
//
// Run flashes and starts every node in list order, fetches data every
// Interval and stops all nodes at the end. Sweep instead measures every
// option variant a firmware release offers for each sender against the
// receiver. Data is merged per job and written to one JSON Result per
// node and job after every fetch, so an aborted run keeps what it had.
//
// Connection failures and timeouts are reported as CONNECTIVITY and end a
// run. Only failed dials are retried.
package fleet
