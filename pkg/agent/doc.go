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

// Package agent runs measurement jobs on one rig and serves them over HTTP.
//
// A job pairs a device session with a sample pipeline. Start returns right
// away and measures in the background; Jobs drains what every job collected
// since the last call; Stop ends all jobs, returns the remaining data and
// clears the registry. Flash installs firmware from a firmware.Catalog.
//
// Hardware problems never fail a request: they become the job status or
// the flash status. Only malformed requests are answered with an error.
package agent
