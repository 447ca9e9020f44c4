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

package node

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerlab/powerlab/pkg/errors"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{"sender", RoleSender, false},
		{"Receiver", RoleReceiver, false},
		{" sender ", RoleSender, false},
		{"gateway", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRole(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOptionsQuery(t *testing.T) {
	opts := Options{Protocol: "WIFI", SleepMode: "DEEP_SLEEP", PowerSaveMode: "MIN_MODEM"}

	q := url.Values{}
	opts.Encode(q)
	assert.Equal(t, "DEEP_SLEEP", q.Get(ParamSleepMode))
	assert.Equal(t, opts, OptionsFromQuery(q))

	empty := url.Values{}
	Options{}.Encode(empty)
	assert.Empty(t, empty)
}

func TestOptionsString(t *testing.T) {
	assert.Equal(t, "", Options{}.String())
	assert.True(t, Options{}.IsZero())
	assert.Equal(t, "BLE-LIGHT_SLEEP-NONE",
		Options{Protocol: "BLE", SleepMode: "LIGHT_SLEEP", PowerSaveMode: "NONE"}.String())
}
