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

// Package mtrack is the per execution context memory accounting
// primitive of the kernel.  A LocalTracker counts the bytes a unit of
// work (a transaction, an operator pipeline) has allocated on two
// channels: a batched, limited heap channel, and an unbatched native
// channel forwarded call by call to a shared parent Pool.  The
// allocate and release paths are lock free; trackers are created per
// execution unit, shared by its goroutines, and recycled with Reset.
package mtrack

import (
	"sync/atomic"

	"github.com/lunarisdb/memquota/pkg/common/mqerr"
)

// DefaultGrabSize is the default batch unit taken from the pool per
// heap top up.
const DefaultGrabSize = 1024

// Tracker is the accounting surface handed to memory producers.
// LocalTracker is the real one, NopTracker the disabled one.
type Tracker interface {
	AllocateHeap(size int64) error
	ReleaseHeap(size int64) error
	AllocateNative(size int64) error
	ReleaseNative(size int64) error
	EstimatedHeapMemory() int64
	UsedNativeMemory() int64
	HeapHighWaterMark() int64
	Reset() error
	SetHeapLimit(bytes int64) error
}

// LocalTracker tracks one execution unit's memory against a shared
// parent Pool.  Every counter is an atomic cell; many goroutines may
// call into the same tracker concurrently and no call takes a lock.
//
// Heap allocations are charged to the pool in batches: the tracker
// keeps a local grant (localPoolGranted) and only goes back to the
// pool when usage outruns it, reserving at least grabSize more each
// time.  Released heap bytes stay inside the grant for reuse and are
// returned to the pool in full only at Reset.  Native allocations are
// forwarded to the pool one for one, with no batching and no local
// limit.
type LocalTracker struct {
	pool Pool

	// grabSize is fixed at construction.  0 is legal and disables
	// batching beyond the requested size.
	grabSize int64

	// heapLimit holds the Limit encoding.  Read on every heap
	// allocation, written only by SetHeapLimit.
	heapLimit atomic.Int64

	// localPoolGranted only grows between resets; see Reset.
	localPoolGranted atomic.Int64

	heapUsed          atomic.Int64
	nativeUsed        atomic.Int64
	heapHighWaterMark atomic.Int64
}

var _ Tracker = (*LocalTracker)(nil)

// NewLocalTracker returns a tracker charging the given pool.
// heapLimit follows the module convention, 0 means unlimited.
func NewLocalTracker(pool Pool, heapLimit int64, grabSize int64) (*LocalTracker, error) {
	if pool == nil {
		return nil, mqerr.NewInvalidArgNoCtx("pool", "nil")
	}
	if heapLimit < 0 {
		return nil, mqerr.NewInvalidArgNoCtx("heap limit", heapLimit)
	}
	if grabSize < 0 {
		return nil, mqerr.NewInvalidArgNoCtx("grab size", grabSize)
	}
	t := &LocalTracker{
		pool:     pool,
		grabSize: grabSize,
	}
	t.heapLimit.Store(LimitOf(heapLimit).encoded())
	return t, nil
}

// NewUnlimitedTracker returns a tracker with no limit against the
// NoTracking pool, for callers that want the numbers but no
// governance.
func NewUnlimitedTracker() *LocalTracker {
	t, err := NewLocalTracker(NoTracking, 0, DefaultGrabSize)
	if err != nil {
		panic(err)
	}
	return t
}

// AllocateHeap records a heap allocation of size bytes.  size 0 is a
// true no-op.  A failed allocation is still counted: the over limit
// bytes keep contributing to the tally until the caller releases them
// or aborts the execution unit, so heapUsed after a failure reflects
// the full requested amount.
func (t *LocalTracker) AllocateHeap(size int64) error {
	if size == 0 {
		return nil
	}
	if size < 0 {
		return mqerr.NewInvalidArgNoCtx("allocate heap size", size)
	}

	used := t.heapUsed.Add(size)

	// The mark moves whether or not the limit check below fails.  It
	// is advisory telemetry: a plain read then store, so concurrent
	// allocations may under report the true maximum.
	if used > t.heapHighWaterMark.Load() {
		t.heapHighWaterMark.Store(used)
	}

	if limit := t.heapLimit.Load(); used > limit {
		return mqerr.NewMemLimitExceededNoCtx(size, limit, used-size)
	}

	// Top up the local grant when usage has outrun it.  Check then
	// act: two goroutines can both decide to grab and the pool is
	// over asked, but heapUsed itself stays correct.
	if used > t.localPoolGranted.Load() {
		grab := max(size, t.grabSize)
		if err := t.pool.ReserveHeap(grab); err != nil {
			return err
		}
		t.localPoolGranted.Add(grab)
	}
	return nil
}

// ReleaseHeap records a heap release of size bytes.  Released bytes
// stay inside the local grant, they go back to the pool only at Reset.
func (t *LocalTracker) ReleaseHeap(size int64) error {
	if size < 0 {
		return mqerr.NewInvalidArgNoCtx("release heap size", size)
	}
	t.heapUsed.Add(-size)
	return nil
}

// AllocateNative records a native allocation of size bytes and
// forwards the same delta to the pool.  Enforcement, if any, is the
// pool's policy.  A denied reservation leaves nativeUsed incremented,
// the same no rollback policy as the heap channel.
func (t *LocalTracker) AllocateNative(size int64) error {
	if size < 0 {
		return mqerr.NewInvalidArgNoCtx("allocate native size", size)
	}
	t.nativeUsed.Add(size)
	return t.pool.ReserveNative(size)
}

// ReleaseNative records a native release of size bytes and forwards
// the same delta to the pool.
func (t *LocalTracker) ReleaseNative(size int64) error {
	if size < 0 {
		return mqerr.NewInvalidArgNoCtx("release native size", size)
	}
	t.nativeUsed.Add(-size)
	t.pool.ReleaseNative(size)
	return nil
}

// EstimatedHeapMemory returns the current heap channel usage.
func (t *LocalTracker) EstimatedHeapMemory() int64 {
	return t.heapUsed.Load()
}

// UsedNativeMemory returns the current native channel usage.
func (t *LocalTracker) UsedNativeMemory() int64 {
	return t.nativeUsed.Load()
}

// HeapHighWaterMark returns the maximum heap usage observed since the
// last Reset.  Advisory only, see AllocateHeap.
func (t *LocalTracker) HeapHighWaterMark() int64 {
	return t.heapHighWaterMark.Load()
}

// HeapLimit returns the current heap ceiling.
func (t *LocalTracker) HeapLimit() Limit {
	return limitFromEncoded(t.heapLimit.Load())
}

// GrabSize returns the batch unit used for pool top ups.
func (t *LocalTracker) GrabSize() int64 {
	return t.grabSize
}

// Reset returns the whole local grant to the pool and zeroes the
// tracker for reuse by the next execution unit.  A nonzero native
// balance means an allocation elsewhere was never released; clearing
// state then would desynchronize the pool, so Reset fails and touches
// nothing.  Resetting an already clean tracker is a no-op.
func (t *LocalTracker) Reset() error {
	if inuse := t.nativeUsed.Load(); inuse != 0 {
		return mqerr.NewMemLeakDetectedNoCtx(inuse)
	}
	t.pool.ReleaseHeap(t.localPoolGranted.Load())
	t.localPoolGranted.Store(0)
	t.heapUsed.Store(0)
	t.heapHighWaterMark.Store(0)
	return nil
}

// SetHeapLimit replaces the heap ceiling, 0 means unlimited.  The new
// limit applies to subsequent allocations immediately but is never
// retroactive: a tracker already over the new limit is not
// reconciled.
func (t *LocalTracker) SetHeapLimit(bytes int64) error {
	if bytes < 0 {
		return mqerr.NewInvalidArgNoCtx("heap limit", bytes)
	}
	t.heapLimit.Store(LimitOf(bytes).encoded())
	return nil
}
