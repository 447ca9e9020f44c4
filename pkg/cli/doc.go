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

// Package cli implements the powerlab command-line interface.
//
// # Commands
//
// run - Measure across a bench of nodes:
//
//	powerlab run --config nodes.yaml [--duration 20s] [--interval 5s] [--all] [--output DIR]
//
// Pings every node of the node list, flashes the configured firmware,
// starts a measurement job on each node in list order and fetches data every
// interval. With --all, every option variant of each sender's firmware
// release is measured against the receiver in turn. One result file per node
// and job is written to the output directory and rewritten after each fetch.
//
// reset - Stop every node without collecting data:
//
//	powerlab reset --config nodes.yaml
//
// versions - List firmware releases:
//
//	powerlab versions [--firmware-source github://owner/repo]
//
// options - List the option combinations of a release:
//
//	powerlab options --version latest [--role sender]
//
// results merge - Combine result files:
//
//	powerlab results merge --input 'results/*.json' [--shift first-marker]
//
// firmware push - Publish firmware images as an OCI artifact:
//
//	powerlab firmware push --dir build/2.1.0 --ref oci://ghcr.io/lab/firmware:2.1.0
//
// # Node List
//
//	kind: NodeList
//	apiVersion: powerlab.dev/v1
//	nodes:
//	  - id: rx
//	    address: 192.168.1.20
//	    role: receiver
//	    version: latest
//	  - id: tx
//	    address: 192.168.1.21:8000
//	    role: sender
//	    version: "2.1.0"
//	    protocol: WIFI
//	    sleepMode: DEEP_SLEEP
//	    powerSaveMode: MIN_MODEM
//
// # Output Formats
//
// Listings and summaries are written as table (default), json or yaml,
// to stdout or the --output file.
//
// # Environment Variables
//
//	LOG_LEVEL                  Set logging verbosity (debug, info, warn, error)
//	POWERLAB_FIRMWARE_SOURCE   Default firmware catalog
//	GITHUB_TOKEN               Token for the GitHub releases API
//
// # Exit Codes
//
//	0  Success
//	1  General error (invalid arguments, execution failure)
//	2  Context canceled or timeout
//
// Version information is embedded at build time using ldflags:
//
//	go build -ldflags="-X 'github.com/powerlab/powerlab/pkg/cli.version=1.0.0'"
package cli
