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

package fleet

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerlab/powerlab/pkg/errors"
	"github.com/powerlab/powerlab/pkg/header"
	"github.com/powerlab/powerlab/pkg/measurement"
	"github.com/powerlab/powerlab/pkg/node"
)

func sampleResult(t *testing.T) *Result {
	t.Helper()
	n := Node{ID: "n1", Role: node.RoleSender, Version: "1.0.0", Options: wifiDeep}
	r := NewResult("job-1", n, time.Date(2024, 3, 1, 9, 5, 7, 0, time.Local))
	r.Add(measurement.Batch{
		PowerSamples: []measurement.Sample{{Time: 20, Value: 2}, {Time: 10, Value: 1}},
		DataSamples:  []measurement.Event{{Time: 15, Label: "ADC_READ"}},
	})
	r.Add(measurement.Batch{
		PowerSamples: []measurement.Sample{{Time: 5, Value: 0.5}},
		DataSamples:  []measurement.Event{{Time: 12, Label: "READY"}},
	})
	return r
}

func TestResultAddSorts(t *testing.T) {
	r := sampleResult(t)
	assert.Equal(t, []measurement.Point{{Time: 5, Value: 0.5}, {Time: 10, Value: 1}, {Time: 20, Value: 2}}, r.Averages)
	assert.Equal(t, []measurement.LabelPoint{{Time: 12, Value: "READY"}, {Time: 15, Value: "ADC_READ"}}, r.DataSamples)
}

func TestResultFileName(t *testing.T) {
	r := sampleResult(t)
	assert.Equal(t, "result-240301090507-node-n1-job-job-1-run-r9.json", r.FileName("n1", "r9"))
}

func TestResultRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	r := sampleResult(t)

	path, err := r.Save(dir, "n1", "r9")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, r.FileName("n1", "r9")), path)

	got, err := LoadResult(path)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"uuid", "version", "role", "protocol", "sleep_mode",
		"power_save_mode", "started_at", "averages", "data_samples"} {
		assert.Contains(t, fields, key)
	}

	// a later save of the same job replaces the file
	r.Add(measurement.Batch{PowerSamples: []measurement.Sample{{Time: 30, Value: 3}}})
	again, err := r.Save(dir, "n1", "r9")
	require.NoError(t, err)
	assert.Equal(t, path, again)
	got, err = LoadResult(path)
	require.NoError(t, err)
	assert.Len(t, got.Averages, 4)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadResultErrors(t *testing.T) {
	_, err := LoadResult(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = LoadResult(bad)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidRequest))
}

func writeResult(t *testing.T, dir string, r *Result, id string) string {
	t.Helper()
	r.UUID = id
	path, err := r.Save(dir, "n1", "r1")
	require.NoError(t, err)
	return path
}

func TestMergeResults(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)
	sender := Node{ID: "n1", Role: node.RoleSender, Version: "1.0.0", Options: wifiDeep}

	a := NewResult("", sender, start)
	a.Add(measurement.Batch{
		PowerSamples: []measurement.Sample{{Time: 100, Value: 1}, {Time: 300, Value: 3}},
		DataSamples:  []measurement.Event{{Time: 150, Label: "ADC_READ"}},
	})
	b := NewResult("", sender, start)
	b.Add(measurement.Batch{
		PowerSamples: []measurement.Sample{{Time: 200, Value: 2}},
		DataSamples:  []measurement.Event{{Time: 120, Label: "READY"}},
	})
	paths := []string{writeResult(t, dir, a, "a"), writeResult(t, dir, b, "b")}

	tests := []struct {
		name       string
		opts       MergeOptions
		wantTimes  []float64
		wantEvents []float64
		wantErr    errors.ErrorCode
	}{
		{name: "no shift", opts: MergeOptions{}, wantTimes: []float64{100, 200, 300}, wantEvents: []float64{120, 150}},
		{name: "first value", opts: MergeOptions{Shift: ShiftFirstValue}, wantTimes: []float64{0, 100, 200}, wantEvents: []float64{20, 50}},
		{name: "first marker", opts: MergeOptions{Shift: ShiftFirstMarker}, wantTimes: []float64{-50, 50, 150}, wantEvents: []float64{-30, 0}},
		{name: "missing marker", opts: MergeOptions{Shift: ShiftFirstMarker, Marker: "NOPE"}, wantErr: errors.ErrCodeNotFound},
		{name: "unknown mode", opts: MergeOptions{Shift: "sideways"}, wantErr: errors.ErrCodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := MergeResults(paths, tt.opts)
			if tt.wantErr != "" {
				assert.True(t, errors.IsCode(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, header.KindMergedResult, m.Kind)
			assert.Equal(t, paths, m.Sources)
			assert.Equal(t, "a", m.UUID)

			var times, events []float64
			for _, p := range m.Averages {
				times = append(times, p.Time)
			}
			for _, e := range m.DataSamples {
				events = append(events, e.Time)
			}
			assert.Equal(t, tt.wantTimes, times)
			assert.Equal(t, tt.wantEvents, events)
		})
	}
}

func TestMergeResultsReceiverIsNotShifted(t *testing.T) {
	dir := t.TempDir()
	r := NewResult("", Node{ID: "n1", Role: node.RoleReceiver, Version: "1"}, time.Now())
	r.Add(measurement.Batch{PowerSamples: []measurement.Sample{{Time: 40, Value: 1}}})
	path := writeResult(t, dir, r, "rx")

	m, err := MergeResults([]string{path}, MergeOptions{Shift: ShiftFirstValue})
	require.NoError(t, err)
	assert.Equal(t, 40.0, m.Averages[0].Time)

	_, err = MergeResults(nil, MergeOptions{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidRequest))
}
