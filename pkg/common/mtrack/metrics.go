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

package mtrack

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsPool decorates a Pool with prometheus collectors.  Updates go
// through sharded local counters and are published in one batch per
// second at most, so the reserve path never touches a shared prometheus
// cell directly.  Any collector may be nil to skip it.
type MetricsPool struct {
	upstream Pool

	heapReservedCounter   prometheus.Counter
	nativeReservedCounter prometheus.Counter
	inuseBytesGauge       prometheus.Gauge
	deniedCounter         prometheus.Counter

	heapReserved   ShardedCounter[uint64, atomic.Uint64, *atomic.Uint64]
	nativeReserved ShardedCounter[uint64, atomic.Uint64, *atomic.Uint64]
	inuseBytes     ShardedCounter[int64, atomic.Int64, *atomic.Int64]
	denied         ShardedCounter[uint64, atomic.Uint64, *atomic.Uint64]

	updating atomic.Bool
}

var _ Pool = (*MetricsPool)(nil)

func NewMetricsPool(
	upstream Pool,
	heapReservedCounter prometheus.Counter,
	nativeReservedCounter prometheus.Counter,
	inuseBytesGauge prometheus.Gauge,
	deniedCounter prometheus.Counter,
) *MetricsPool {
	m := &MetricsPool{
		upstream:              upstream,
		heapReservedCounter:   heapReservedCounter,
		nativeReservedCounter: nativeReservedCounter,
		inuseBytesGauge:       inuseBytesGauge,
		deniedCounter:         deniedCounter,
	}
	m.heapReserved = *NewShardedCounter[uint64, atomic.Uint64](runtime.GOMAXPROCS(0))
	m.nativeReserved = *NewShardedCounter[uint64, atomic.Uint64](runtime.GOMAXPROCS(0))
	m.inuseBytes = *NewShardedCounter[int64, atomic.Int64](runtime.GOMAXPROCS(0))
	m.denied = *NewShardedCounter[uint64, atomic.Uint64](runtime.GOMAXPROCS(0))
	return m
}

func (m *MetricsPool) ReserveHeap(size int64) error {
	if err := m.upstream.ReserveHeap(size); err != nil {
		m.denied.Add(1)
		m.triggerUpdate()
		return err
	}
	m.heapReserved.Add(uint64(size))
	m.inuseBytes.Add(size)
	m.triggerUpdate()
	return nil
}

func (m *MetricsPool) ReleaseHeap(size int64) {
	m.upstream.ReleaseHeap(size)
	m.inuseBytes.Add(-size)
	m.triggerUpdate()
}

func (m *MetricsPool) ReserveNative(size int64) error {
	if err := m.upstream.ReserveNative(size); err != nil {
		m.denied.Add(1)
		m.triggerUpdate()
		return err
	}
	m.nativeReserved.Add(uint64(size))
	m.inuseBytes.Add(size)
	m.triggerUpdate()
	return nil
}

func (m *MetricsPool) ReleaseNative(size int64) {
	m.upstream.ReleaseNative(size)
	m.inuseBytes.Add(-size)
	m.triggerUpdate()
}

func (m *MetricsPool) triggerUpdate() {
	if m.updating.CompareAndSwap(false, true) {
		time.AfterFunc(time.Second, func() {

			if m.heapReservedCounter != nil {
				var n uint64
				m.heapReserved.Each(func(v *atomic.Uint64) {
					n += v.Swap(0)
				})
				m.heapReservedCounter.Add(float64(n))
			}

			if m.nativeReservedCounter != nil {
				var n uint64
				m.nativeReserved.Each(func(v *atomic.Uint64) {
					n += v.Swap(0)
				})
				m.nativeReservedCounter.Add(float64(n))
			}

			if m.inuseBytesGauge != nil {
				var n int64
				m.inuseBytes.Each(func(v *atomic.Int64) {
					n += v.Swap(0)
				})
				m.inuseBytesGauge.Add(float64(n))
			}

			if m.deniedCounter != nil {
				var n uint64
				m.denied.Each(func(v *atomic.Uint64) {
					n += v.Swap(0)
				})
				m.deniedCounter.Add(float64(n))
			}

			m.updating.Store(false)
		})
	}
}
