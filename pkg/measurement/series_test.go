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

package measurement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
		ok     bool
	}{
		{"empty", nil, 0, false},
		{"single", []float64{4}, 4, true},
		{"several", []float64{1, 2, 3, 6}, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Mean(tt.values)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestPointConversionPreservesOrder(t *testing.T) {
	samples := []Sample{{Time: 3, Value: 1}, {Time: 1, Value: 2}}
	assert.Equal(t, samples, FromPoints(ToPoints(samples)))

	events := []Event{{Time: 2, Label: "x"}, {Time: 2, Label: "y"}}
	assert.Equal(t, events, FromLabelPoints(ToLabelPoints(events)))
}

func TestSortIsStable(t *testing.T) {
	events := []Event{{Time: 2, Label: "first"}, {Time: 1, Label: "zero"}, {Time: 2, Label: "second"}}
	SortEvents(events)
	assert.Equal(t, []string{"zero", "first", "second"}, []string{events[0].Label, events[1].Label, events[2].Label})
}

func TestShift(t *testing.T) {
	in := []Sample{{Time: 10, Value: 1}, {Time: 15, Value: 2}}
	out := Shift(in, 10)
	assert.Equal(t, []Sample{{Time: 0, Value: 1}, {Time: 5, Value: 2}}, out)
	assert.Equal(t, 10.0, in[0].Time, "input must not be modified")
}
