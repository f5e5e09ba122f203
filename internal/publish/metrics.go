// Copyright 2023 The Cockroach Authors
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
//
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/replistream/privacypub/internal/util/metrics"
)

var (
	registerTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delayed_publisher_register_total",
		Help: "the number of times a future deadline was registered for a key",
	})
	cancelTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delayed_publisher_cancel_total",
		Help: "the number of times a key's deadline was canceled",
	})
	republishTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delayed_publisher_republish_total",
		Help: "the number of keys republished into the input stream after their deadline elapsed",
	})
	scanMissingLookupTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delayed_publisher_scan_missing_lookup_total",
		Help: "the number of due keys skipped at scan time because no lookup entry was found",
	})
	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "delayed_publisher_scan_duration_seconds",
		Help:    "the length of time a wall-clock scan took to complete",
		Buckets: metrics.LatencyBuckets,
	})
	storeOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "delayed_publisher_store_op_duration_seconds",
		Help:    "the length of time a single read or write against one of the three persistent indexes took",
		Buckets: metrics.LatencyBuckets,
	}, metrics.StoreLabels)
)

// observeStore runs fn, recording its duration against storeOpDuration
// under the given store label ("lookup", "key-index", or
// "time-index").
func observeStore(store string, fn func() error) error {
	start := time.Now()
	err := fn()
	storeOpDuration.WithLabelValues(store).Observe(time.Since(start).Seconds())
	return err
}
