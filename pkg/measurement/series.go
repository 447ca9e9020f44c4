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
	"cmp"
	"slices"
)

// SortSamples sorts samples by time in place. The sort is stable.
func SortSamples(s []Sample) {
	slices.SortStableFunc(s, func(a, b Sample) int {
		return cmp.Compare(a.Time, b.Time)
	})
}

// SortEvents sorts events by time in place. The sort is stable.
func SortEvents(e []Event) {
	slices.SortStableFunc(e, func(a, b Event) int {
		return cmp.Compare(a.Time, b.Time)
	})
}

// Mean returns the arithmetic mean of values. The second return value is
// false when values is empty.
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// ToPoints converts samples into the persisted result format.
func ToPoints(samples []Sample) []Point {
	out := make([]Point, 0, len(samples))
	for _, s := range samples {
		out = append(out, Point{Time: s.Time, Value: s.Value})
	}
	return out
}

// FromPoints converts persisted points back into samples.
func FromPoints(points []Point) []Sample {
	out := make([]Sample, 0, len(points))
	for _, p := range points {
		out = append(out, Sample{Time: p.Time, Value: p.Value})
	}
	return out
}

// ToLabelPoints converts events into the persisted result format.
func ToLabelPoints(events []Event) []LabelPoint {
	out := make([]LabelPoint, 0, len(events))
	for _, e := range events {
		out = append(out, LabelPoint{Time: e.Time, Value: e.Label})
	}
	return out
}

// FromLabelPoints converts persisted label points back into events.
func FromLabelPoints(points []LabelPoint) []Event {
	out := make([]Event, 0, len(points))
	for _, p := range points {
		out = append(out, Event{Time: p.Time, Label: p.Value})
	}
	return out
}

// Shift returns a copy of samples with offset subtracted from every time.
func Shift(samples []Sample, offset float64) []Sample {
	out := make([]Sample, len(samples))
	for i, s := range samples {
		out[i] = Sample{Time: s.Time - offset, Value: s.Value}
	}
	return out
}
