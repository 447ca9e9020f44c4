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

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rawBlocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "powerlab_pipeline_raw_blocks_total",
			Help: "Total number of non-empty raw blocks read from the power profiler",
		},
	)

	powerPointsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "powerlab_pipeline_power_points_total",
			Help: "Total number of averaged power points produced",
		},
	)

	droppedBlocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "powerlab_pipeline_dropped_blocks_total",
			Help: "Total number of non-empty raw blocks too short to hold a sample",
		},
	)

	linesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerlab_pipeline_events_total",
			Help: "Total number of serial lines by kind",
		},
		[]string{"kind"},
	)

	conversionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "powerlab_pipeline_conversion_duration_seconds",
			Help:    "Duration of raw block to power point conversion",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)
)
