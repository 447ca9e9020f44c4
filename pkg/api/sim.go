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

package api

import (
	"path/filepath"
	"time"

	"github.com/powerlab/powerlab/pkg/device"
	"github.com/powerlab/powerlab/pkg/firmware"
	"github.com/powerlab/powerlab/pkg/node"
)

const (
	simLinePeriod  = 50 * time.Millisecond
	simBlockPeriod = 10 * time.Millisecond
	simCycles      = 200
	simVersion     = "0.0.0"
)

// simRig is a bench without hardware. The serial device announces
// whatever image was flashed last, so a flash followed by a start passes
// the handshake check.
type simRig struct {
	driver  *device.SimDriver
	flasher *device.SimFlasher
}

func newSimRig() *simRig {
	r := &simRig{flasher: &device.SimFlasher{}}
	r.driver = &device.SimDriver{
		NewSerial: func() *device.SimSerial {
			role, ver := r.flashed()
			return device.NewSimSerial("/dev/sim").
				WithGenerator(simLinePeriod, device.DemoScript(role.String(), ver, simCycles))
		},
		NewProfiler: func() *device.SimProfiler {
			p := device.NewSimProfiler()
			p.Period = simBlockPeriod
			p.Generate = func() []byte { return device.EncodeSimBlock(110, 125, 240, 118) }
			return p
		},
	}
	return r
}

// flashed reports the role and release of the last flashed image. Images
// are cached as <dir>/<release>/<asset>.
func (r *simRig) flashed() (node.Role, string) {
	calls := r.flasher.Calls()
	if len(calls) == 0 {
		return node.RoleReceiver, simVersion
	}
	image := calls[len(calls)-1].Image
	role, _, ok := firmware.ParseAssetName(filepath.Base(image))
	if !ok {
		role = node.RoleReceiver
	}
	return role, filepath.Base(filepath.Dir(image))
}
