// Copyright 2025 LunarisDB
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lunarisdb/memquota/pkg/logutil"
)

var registry = prometheus.NewRegistry()

var (
	poolReservedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mq",
			Subsystem: "mem",
			Name:      "pool_reserved_bytes",
			Help:      "Bytes reserved from the shared pool.",
		}, []string{"channel"})
	heapReservedCounter   = poolReservedCounter.WithLabelValues("heap")
	nativeReservedCounter = poolReservedCounter.WithLabelValues("native")

	poolInuseGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mq",
			Subsystem: "mem",
			Name:      "pool_inuse_bytes",
			Help:      "Bytes currently counted against the shared pool.",
		})

	poolDeniedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mq",
			Subsystem: "mem",
			Name:      "pool_denied_total",
			Help:      "Total number of reservations the shared pool refused.",
		})
)

func init() {
	registry.MustRegister(poolReservedCounter)
	registry.MustRegister(poolInuseGauge)
	registry.MustRegister(poolDeniedCounter)
}

func startStatusServer(port int64) {
	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", port)
	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			logutil.Errorf("status server stopped: %v", err)
		}
	}()
	logutil.Infof("serving metrics on %s/metrics", addr)
}
