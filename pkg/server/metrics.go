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

package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// routeOther labels requests for paths outside the registered handlers so
// scans cannot grow the label set.
const routeOther = "other"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerlab_http_requests_total",
			Help: "Total number of agent API requests by route, status and wire format",
		},
		[]string{"method", "route", "status", "format"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "powerlab_http_request_duration_seconds",
			Help: "Agent API latency in seconds",
			// flash and stop run for tens of seconds
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"method", "route"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "powerlab_http_requests_in_flight",
			Help: "Current number of agent API requests being processed",
		},
	)

	rateLimitRejects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "powerlab_rate_limit_rejects_total",
			Help: "Total number of requests rejected due to rate limiting",
		},
	)

	panicRecoveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "powerlab_panic_recoveries_total",
			Help: "Total number of panics recovered in HTTP handlers",
		},
	)
)

// metricsMiddleware records request rate, status and latency per route.
func (s *Server) metricsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := newResponseWriter(w)
		next.ServeHTTP(wrapped, r)

		route := s.routeLabel(r.URL.Path)
		format := wireFormat(wrapped.Header().Get("Content-Type"))
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.Status()), format).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	}
}

// routeLabel folds "/start" and "/start/" into one label and maps unknown
// paths to routeOther.
func (s *Server) routeLabel(path string) string {
	if path == "/" {
		return path
	}
	trimmed := strings.TrimSuffix(path, "/")
	if _, ok := s.config.Handlers[trimmed]; ok {
		return trimmed
	}
	if _, ok := s.config.Handlers[trimmed+"/"]; ok {
		return trimmed
	}
	return routeOther
}

func wireFormat(contentType string) string {
	switch {
	case strings.Contains(contentType, "msgpack"):
		return "msgpack"
	case strings.Contains(contentType, "json"):
		return "json"
	case contentType == "":
		return "none"
	default:
		return routeOther
	}
}
