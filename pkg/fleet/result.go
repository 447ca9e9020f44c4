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
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/powerlab/powerlab/pkg/errors"
	"github.com/powerlab/powerlab/pkg/header"
	"github.com/powerlab/powerlab/pkg/measurement"
	"github.com/powerlab/powerlab/pkg/node"
	"github.com/powerlab/powerlab/pkg/serializer"
)

// resultTimeLayout is yymmddHHMMSS.
const resultTimeLayout = "060102150405"

// Result is the persisted data of one job on one node.
type Result struct {
	UUID          string    `json:"uuid" yaml:"uuid"`
	Version       string    `json:"version" yaml:"version"`
	Role          node.Role `json:"role" yaml:"role"`
	Protocol      string    `json:"protocol" yaml:"protocol"`
	SleepMode     string    `json:"sleep_mode" yaml:"sleep_mode"`
	PowerSaveMode string    `json:"power_save_mode" yaml:"power_save_mode"`
	// StartedAt is the controller's start time of the job in ms since the
	// Unix epoch.
	StartedAt   float64                  `json:"started_at" yaml:"started_at"`
	Averages    []measurement.Point      `json:"averages" yaml:"averages"`
	DataSamples []measurement.LabelPoint `json:"data_samples" yaml:"data_samples"`
}

// NewResult returns an empty result for job id started on n.
func NewResult(id string, n Node, startedAt time.Time) *Result {
	return &Result{
		UUID:          id,
		Version:       n.Version,
		Role:          n.Role,
		Protocol:      n.Protocol,
		SleepMode:     n.SleepMode,
		PowerSaveMode: n.PowerSaveMode,
		StartedAt:     float64(startedAt.UnixMilli()),
		Averages:      []measurement.Point{},
		DataSamples:   []measurement.LabelPoint{},
	}
}

// Add merges a drained batch and keeps both series sorted by time.
func (r *Result) Add(b measurement.Batch) {
	r.Averages = append(r.Averages, measurement.ToPoints(b.PowerSamples)...)
	r.DataSamples = append(r.DataSamples, measurement.ToLabelPoints(b.DataSamples)...)
	r.sort()
}

func (r *Result) sort() {
	slices.SortStableFunc(r.Averages, func(a, b measurement.Point) int {
		return cmp.Compare(a.Time, b.Time)
	})
	slices.SortStableFunc(r.DataSamples, func(a, b measurement.LabelPoint) int {
		return cmp.Compare(a.Time, b.Time)
	})
}

// FileName returns the artifact name of r for a node and run.
func (r *Result) FileName(nodeID, runID string) string {
	started := time.UnixMilli(int64(r.StartedAt)).Local()
	return fmt.Sprintf("result-%s-node-%s-job-%s-run-%s.json",
		started.Format(resultTimeLayout), nodeID, r.UUID, runID)
}

// Save writes r into dir, replacing an earlier version of the same artifact.
func (r *Result) Save(dir, nodeID, runID string) (string, error) {
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, "failed to encode result", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, "failed to create output directory", err)
	}
	path := filepath.Join(dir, r.FileName(nodeID, runID))
	if err := serializer.WriteFileAtomic(path, data); err != nil {
		return "", errors.WrapWithContext(errors.ErrCodeInternal, "failed to write result", err,
			map[string]any{"path": path})
	}
	return path, nil
}

// LoadResult reads an artifact written by Save.
func LoadResult(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithContext(errors.ErrCodeNotFound, "failed to read result", err,
			map[string]any{"path": path})
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.WrapWithContext(errors.ErrCodeInvalidRequest, "invalid result file", err,
			map[string]any{"path": path})
	}
	if r.Averages == nil {
		r.Averages = []measurement.Point{}
	}
	if r.DataSamples == nil {
		r.DataSamples = []measurement.LabelPoint{}
	}
	return &r, nil
}

// Shift selects how MergeResults moves the time axis of sender results.
type Shift string

const (
	// ShiftNone keeps the recorded times.
	ShiftNone Shift = "none"
	// ShiftFirstValue moves the first power sample to time zero.
	ShiftFirstValue Shift = "first-value"
	// ShiftFirstMarker moves the first event labeled MergeOptions.Marker to
	// time zero.
	ShiftFirstMarker Shift = "first-marker"
)

// DefaultMarker is the event the device logs when it reads its sensor.
const DefaultMarker = "ADC_READ"

// MergeOptions configures MergeResults.
type MergeOptions struct {
	Shift  Shift
	Marker string
}

// MergedResult is the combination of several artifacts of one job group.
type MergedResult struct {
	header.Header `json:",inline" yaml:",inline"`

	Sources []string `json:"sources" yaml:"sources"`
	Result  `json:",inline" yaml:",inline"`
}

// MergeResults concatenates the series of all artifacts in paths and sorts
// them by time. Identity fields come from the first artifact. Shifting only
// applies when that artifact is a sender.
func MergeResults(paths []string, opts MergeOptions) (*MergedResult, error) {
	if len(paths) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidRequest, "no result files to merge")
	}

	var merged *Result
	for _, p := range paths {
		r, err := LoadResult(p)
		if err != nil {
			return nil, err
		}
		if merged == nil {
			merged = r
			continue
		}
		merged.Averages = append(merged.Averages, r.Averages...)
		merged.DataSamples = append(merged.DataSamples, r.DataSamples...)
	}
	merged.sort()

	if merged.Role == node.RoleSender {
		if err := merged.shift(opts); err != nil {
			return nil, err
		}
	}

	out := &MergedResult{Sources: paths, Result: *merged}
	out.Init(header.KindMergedResult, "")
	return out, nil
}

func (r *Result) shift(opts MergeOptions) error {
	var offset float64
	switch opts.Shift {
	case "", ShiftNone:
		return nil
	case ShiftFirstValue:
		if len(r.Averages) == 0 {
			return nil
		}
		offset = r.Averages[0].Time
	case ShiftFirstMarker:
		marker := opts.Marker
		if marker == "" {
			marker = DefaultMarker
		}
		i := slices.IndexFunc(r.DataSamples, func(p measurement.LabelPoint) bool {
			return p.Value == marker
		})
		if i < 0 {
			return errors.NewWithContext(errors.ErrCodeNotFound, "marker event not found",
				map[string]any{"marker": marker})
		}
		offset = r.DataSamples[i].Time
	default:
		return errors.NewWithContext(errors.ErrCodeInvalidRequest, "unknown shift mode",
			map[string]any{"shift": opts.Shift})
	}

	for i := range r.Averages {
		r.Averages[i].Time -= offset
	}
	for i := range r.DataSamples {
		r.DataSamples[i].Time -= offset
	}
	return nil
}
