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

// Package device provides the hardware seams of a measurement rig: the power
// profiler, the serial log stream of the device under test, and the tool
// that flashes its firmware.
//
// A Guard hands out at most one Session at a time. A Session owns the
// profiler handle and, for measurement jobs, the serial port; Release closes
// both and frees the guard.
//
//	guard := device.NewGuard(device.NewTTYDriver(), device.DefaultConfig())
//	s, err := guard.Acquire(ctx)
//	if err != nil {
//	    // DEVICE_NOT_FOUND or SERVICE_UNAVAILABLE (busy)
//	}
//	defer s.Release()
//
// TTYDriver resolves devices under /dev/serial/by-id by signature. The
// Sim types implement every interface in memory for benches without
// hardware and for tests.
package device
