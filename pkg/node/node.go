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

// Package node holds the vocabulary shared by node agents and the controller:
// the role a device plays in a test and the firmware build options.
package node

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/powerlab/powerlab/pkg/errors"
)

// Role is the part a device under test plays in a measurement.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// String returns the string representation of the Role.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleSender || r == RoleReceiver
}

// ParseRole parses a role name, case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", errors.NewWithContext(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("invalid node type %q", s),
			map[string]any{"allowed": []Role{RoleSender, RoleReceiver}})
	}
	return r, nil
}

// Query parameter names used by the agent API for Options.
const (
	ParamProtocol      = "protocol"
	ParamSleepMode     = "sleep_mode"
	ParamPowerSaveMode = "power_save_mode"
)

// Options selects one firmware build variant.
type Options struct {
	Protocol      string `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	SleepMode     string `json:"sleepMode,omitempty" yaml:"sleepMode,omitempty"`
	PowerSaveMode string `json:"powerSaveMode,omitempty" yaml:"powerSaveMode,omitempty"`
}

// IsZero reports whether no option is set.
func (o Options) IsZero() bool {
	return o == Options{}
}

// String joins the options as they appear in firmware asset names,
// for example "WIFI-DEEP_SLEEP-MIN_MODEM".
func (o Options) String() string {
	if o.IsZero() {
		return ""
	}
	return strings.Join([]string{o.Protocol, o.SleepMode, o.PowerSaveMode}, "-")
}

// Encode adds the non-empty options to q.
func (o Options) Encode(q url.Values) {
	if o.Protocol != "" {
		q.Set(ParamProtocol, o.Protocol)
	}
	if o.SleepMode != "" {
		q.Set(ParamSleepMode, o.SleepMode)
	}
	if o.PowerSaveMode != "" {
		q.Set(ParamPowerSaveMode, o.PowerSaveMode)
	}
}

// OptionsFromQuery reads Options from query parameters.
func OptionsFromQuery(q url.Values) Options {
	return Options{
		Protocol:      q.Get(ParamProtocol),
		SleepMode:     q.Get(ParamSleepMode),
		PowerSaveMode: q.Get(ParamPowerSaveMode),
	}
}
