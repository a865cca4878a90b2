// Copyright 2024 LunarisDB
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
	"sync/atomic"

	"github.com/lunarisdb/memquota/pkg/common/mqerr"
)

// SharedPool is a bounded Pool arbitrating one joint heap+native
// budget among many trackers.  capacity 0 means unbounded.  Unlike the
// trackers above it, the pool rolls its counter back when it denies a
// reservation: a denied tracker never learns a grant it could release,
// so keeping the bytes counted here would strand pool budget forever.
type SharedPool struct {
	name     string
	capacity int64

	heapInUse   atomic.Int64
	nativeInUse atomic.Int64
	closed      atomic.Bool

	stats Stats
}

var _ Pool = (*SharedPool)(nil)

// NewSharedPool creates a pool and registers it under its name for
// ReportMemUsage.  The name must be unique among live pools.
func NewSharedPool(name string, capacity int64) (*SharedPool, error) {
	if len(name) == 0 {
		return nil, mqerr.NewInvalidArgNoCtx("pool name", name)
	}
	if capacity < 0 {
		return nil, mqerr.NewInvalidArgNoCtx("pool capacity", capacity)
	}
	p := &SharedPool{
		name:     name,
		capacity: capacity,
	}
	if err := registerPool(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *SharedPool) ReserveHeap(size int64) error {
	if size < 0 {
		return mqerr.NewInvalidArgNoCtx("reserve heap size", size)
	}
	return p.reserve(&p.heapInUse, size)
}

func (p *SharedPool) ReleaseHeap(size int64) {
	p.stats.NumRelease.Add(1)
	p.heapInUse.Add(-size)
}

func (p *SharedPool) ReserveNative(size int64) error {
	if size < 0 {
		return mqerr.NewInvalidArgNoCtx("reserve native size", size)
	}
	return p.reserve(&p.nativeInUse, size)
}

func (p *SharedPool) ReleaseNative(size int64) {
	p.stats.NumRelease.Add(1)
	p.nativeInUse.Add(-size)
}

func (p *SharedPool) reserve(inUse *atomic.Int64, size int64) error {
	if p.closed.Load() {
		return mqerr.NewPoolClosedNoCtx(p.name)
	}
	p.stats.NumReserve.Add(1)
	inUse.Add(size)
	joint := p.heapInUse.Load() + p.nativeInUse.Load()
	if p.capacity > 0 && joint > p.capacity {
		inUse.Add(-size)
		p.stats.NumDenied.Add(1)
		return mqerr.NewPoolOutOfSpaceNoCtx(p.name, size, p.capacity, joint-size)
	}
	// same racy mark policy as the trackers
	if joint > p.stats.HighWaterMark.Load() {
		p.stats.HighWaterMark.Store(joint)
	}
	return nil
}

// Close marks the pool closed.  Further reservations fail with
// ErrPoolClosed; releases still drain so outstanding trackers can
// reset.
func (p *SharedPool) Close() {
	p.closed.Store(true)
}

func (p *SharedPool) Name() string {
	return p.name
}

// Capacity returns the joint budget, 0 means unbounded.
func (p *SharedPool) Capacity() int64 {
	return p.capacity
}

func (p *SharedPool) HeapInUse() int64 {
	return p.heapInUse.Load()
}

func (p *SharedPool) NativeInUse() int64 {
	return p.nativeInUse.Load()
}

// InUse returns the joint usage of both channels.
func (p *SharedPool) InUse() int64 {
	return p.heapInUse.Load() + p.nativeInUse.Load()
}

func (p *SharedPool) Stats() *Stats {
	return &p.stats
}

func (p *SharedPool) usage() PoolUsage {
	return PoolUsage{
		Name:          p.name,
		Capacity:      p.capacity,
		HeapInUse:     p.heapInUse.Load(),
		NativeInUse:   p.nativeInUse.Load(),
		HighWaterMark: p.stats.HighWaterMark.Load(),
		NumReserve:    p.stats.NumReserve.Load(),
		NumRelease:    p.stats.NumRelease.Load(),
		NumDenied:     p.stats.NumDenied.Load(),
	}
}
