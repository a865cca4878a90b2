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
	"sync"
	"sync/atomic"
	"testing"

	"github.com/lni/goutils/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunarisdb/memquota/pkg/common/mqerr"
)

// recordingPool counts every call so tests can see exactly what a
// tracker asked of its parent.
type recordingPool struct {
	heapReserved   atomic.Int64
	heapReleased   atomic.Int64
	nativeReserved atomic.Int64
	nativeReleased atomic.Int64

	reserveHeapCalls   atomic.Int64
	reserveNativeCalls atomic.Int64

	denyHeap   atomic.Bool
	denyNative atomic.Bool
}

var _ Pool = (*recordingPool)(nil)

func (p *recordingPool) ReserveHeap(size int64) error {
	p.reserveHeapCalls.Add(1)
	if p.denyHeap.Load() {
		return mqerr.NewPoolOutOfSpaceNoCtx("recording", size, 0, p.heapReserved.Load())
	}
	p.heapReserved.Add(size)
	return nil
}

func (p *recordingPool) ReleaseHeap(size int64) {
	p.heapReleased.Add(size)
}

func (p *recordingPool) ReserveNative(size int64) error {
	p.reserveNativeCalls.Add(1)
	if p.denyNative.Load() {
		return mqerr.NewPoolOutOfSpaceNoCtx("recording", size, 0, p.nativeReserved.Load())
	}
	p.nativeReserved.Add(size)
	return nil
}

func (p *recordingPool) ReleaseNative(size int64) {
	p.nativeReleased.Add(size)
}

func TestNewLocalTracker(t *testing.T) {
	_, err := NewLocalTracker(nil, 0, DefaultGrabSize)
	require.True(t, mqerr.IsMQErrCode(err, mqerr.ErrInvalidArg), "nil pool must be rejected, got %v", err)

	_, err = NewLocalTracker(NoTracking, -1, DefaultGrabSize)
	require.True(t, mqerr.IsMQErrCode(err, mqerr.ErrInvalidArg), "negative limit must be rejected, got %v", err)

	_, err = NewLocalTracker(NoTracking, 0, -1)
	require.True(t, mqerr.IsMQErrCode(err, mqerr.ErrInvalidArg), "negative grab size must be rejected, got %v", err)

	tr, err := NewLocalTracker(NoTracking, 0, 0)
	require.NoError(t, err, "grab size 0 is legal")
	require.NotNil(t, tr)
	require.False(t, tr.HeapLimit().Bounded())

	tr, err = NewLocalTracker(NoTracking, 4*KB, 512)
	require.NoError(t, err)
	require.Equal(t, 4*KB, tr.HeapLimit().Bytes())
	require.Equal(t, int64(512), tr.GrabSize())
}

func TestAllocateHeapRunningSum(t *testing.T) {
	tr, err := NewLocalTracker(NoTracking, 0, DefaultGrabSize)
	require.NoError(t, err)

	var sum int64
	steps := []struct {
		alloc   int64
		release int64
	}{
		{alloc: 100},
		{alloc: 250},
		{release: 50},
		{alloc: 1},
		{release: 301},
		{alloc: 4096},
	}
	for _, s := range steps {
		if s.alloc > 0 {
			require.NoError(t, tr.AllocateHeap(s.alloc))
			sum += s.alloc
		}
		if s.release > 0 {
			require.NoError(t, tr.ReleaseHeap(s.release))
			sum -= s.release
		}
		require.Equal(t, sum, tr.EstimatedHeapMemory())
	}
}

func TestAllocateHeapZeroIsNoOp(t *testing.T) {
	pool := &recordingPool{}
	tr, err := NewLocalTracker(pool, 1, DefaultGrabSize)
	require.NoError(t, err)

	require.NoError(t, tr.AllocateHeap(0))
	require.Equal(t, int64(0), tr.EstimatedHeapMemory())
	require.Equal(t, int64(0), tr.HeapHighWaterMark())
	require.Equal(t, int64(0), pool.reserveHeapCalls.Load(), "zero must not touch the pool")
}

func TestAllocateHeapNegative(t *testing.T) {
	tr := NewUnlimitedTracker()
	err := tr.AllocateHeap(-1)
	require.True(t, mqerr.IsMQErrCode(err, mqerr.ErrInvalidArg), "got %v", err)
	require.Equal(t, int64(0), tr.EstimatedHeapMemory())

	err = tr.ReleaseHeap(-1)
	require.True(t, mqerr.IsMQErrCode(err, mqerr.ErrInvalidArg), "got %v", err)
}

// Limit 1024, grab 1024: 500 fits, the next 600 fails and is still
// counted.
func TestAllocateHeapNoRollback(t *testing.T) {
	tr, err := NewLocalTracker(NoTracking, 1024, 1024)
	require.NoError(t, err)

	require.NoError(t, tr.AllocateHeap(500))
	require.Equal(t, int64(500), tr.EstimatedHeapMemory())

	err = tr.AllocateHeap(600)
	require.True(t, mqerr.IsMQErrCode(err, mqerr.ErrMemLimitExceeded), "got %v", err)
	require.EqualError(t, err,
		"memory limit exceeded: requested 600 bytes, limit 1024 bytes, used 500 bytes")
	require.Equal(t, int64(1100), tr.EstimatedHeapMemory(),
		"the failed allocation must stay counted")
}

func TestAllocateHeapUnlimited(t *testing.T) {
	tr, err := NewLocalTracker(NoTracking, 0, DefaultGrabSize)
	require.NoError(t, err)

	require.NoError(t, tr.AllocateHeap(10_000_000))
	require.Equal(t, int64(10_000_000), tr.EstimatedHeapMemory())
	require.Equal(t, int64(10_000_000), tr.HeapHighWaterMark())
}

func TestHighWaterMark(t *testing.T) {
	tr, err := NewLocalTracker(NoTracking, 0, DefaultGrabSize)
	require.NoError(t, err)

	require.NoError(t, tr.AllocateHeap(100))
	require.Equal(t, int64(100), tr.HeapHighWaterMark())
	require.NoError(t, tr.ReleaseHeap(100))
	require.Equal(t, int64(100), tr.HeapHighWaterMark(), "mark survives release")
	require.NoError(t, tr.AllocateHeap(50))
	require.Equal(t, int64(100), tr.HeapHighWaterMark())
	require.NoError(t, tr.AllocateHeap(200))
	require.Equal(t, int64(250), tr.HeapHighWaterMark())
}

// The mark moves even when the limit check fails.
func TestHighWaterMarkOnFailedAllocation(t *testing.T) {
	tr, err := NewLocalTracker(NoTracking, 400, DefaultGrabSize)
	require.NoError(t, err)

	err = tr.AllocateHeap(500)
	require.True(t, mqerr.IsMQErrCode(err, mqerr.ErrMemLimitExceeded), "got %v", err)
	require.Equal(t, int64(500), tr.HeapHighWaterMark())
}

func TestBatchTopUp(t *testing.T) {
	pool := &recordingPool{}
	tr, err := NewLocalTracker(pool, 0, 1024)
	require.NoError(t, err)

	// first allocation grabs a whole batch
	require.NoError(t, tr.AllocateHeap(10))
	require.Equal(t, int64(1), pool.reserveHeapCalls.Load())
	require.Equal(t, int64(1024), pool.heapReserved.Load())

	// within the grant, no pool traffic
	require.NoError(t, tr.AllocateHeap(500))
	require.Equal(t, int64(1), pool.reserveHeapCalls.Load())

	// outrunning the grant grabs max(size, grabSize)
	require.NoError(t, tr.AllocateHeap(600))
	require.Equal(t, int64(2), pool.reserveHeapCalls.Load())
	require.Equal(t, int64(2048), pool.heapReserved.Load())

	require.NoError(t, tr.AllocateHeap(4000))
	require.Equal(t, int64(3), pool.reserveHeapCalls.Load())
	require.Equal(t, int64(6048), pool.heapReserved.Load(), "grab of 4000 > grabSize")
}

func TestBatchTopUpZeroGrabSize(t *testing.T) {
	pool := &recordingPool{}
	tr, err := NewLocalTracker(pool, 0, 0)
	require.NoError(t, err)

	require.NoError(t, tr.AllocateHeap(10))
	require.Equal(t, int64(10), pool.heapReserved.Load(), "grab size 0 reserves the exact size")
	require.NoError(t, tr.AllocateHeap(7))
	require.Equal(t, int64(17), pool.heapReserved.Load())
}

// Released bytes stay inside the grant for reuse.
func TestReleaseKeepsGrant(t *testing.T) {
	pool := &recordingPool{}
	tr, err := NewLocalTracker(pool, 0, 1024)
	require.NoError(t, err)

	require.NoError(t, tr.AllocateHeap(800))
	require.NoError(t, tr.ReleaseHeap(800))
	require.Equal(t, int64(0), pool.heapReleased.Load(), "release must not go back to the pool")

	// reuse the grant without new pool traffic
	require.NoError(t, tr.AllocateHeap(900))
	require.Equal(t, int64(1), pool.reserveHeapCalls.Load())
}

func TestPoolDenialPropagates(t *testing.T) {
	pool := &recordingPool{}
	pool.denyHeap.Store(true)
	tr, err := NewLocalTracker(pool, 0, 1024)
	require.NoError(t, err)

	err = tr.AllocateHeap(100)
	require.True(t, mqerr.IsMQErrCode(err, mqerr.ErrPoolOutOfSpace), "got %v", err)
	require.Equal(t, int64(100), tr.EstimatedHeapMemory(),
		"denied top up leaves heapUsed incremented")
	require.Equal(t, int64(0), tr.localPoolGranted.Load(),
		"denied top up leaves the grant unchanged")

	// a later successful allocation grabs for the whole backlog
	pool.denyHeap.Store(false)
	require.NoError(t, tr.AllocateHeap(50))
	require.Equal(t, int64(1024), pool.heapReserved.Load())
}

func TestAllocateNative(t *testing.T) {
	pool := &recordingPool{}
	tr, err := NewLocalTracker(pool, 0, DefaultGrabSize)
	require.NoError(t, err)

	require.NoError(t, tr.AllocateNative(100))
	require.Equal(t, int64(100), tr.UsedNativeMemory())
	require.Equal(t, int64(100), pool.nativeReserved.Load(), "native is forwarded one for one")

	require.NoError(t, tr.AllocateNative(0))
	require.Equal(t, int64(2), pool.reserveNativeCalls.Load(), "native zero is still forwarded")

	err = tr.AllocateNative(-5)
	require.True(t, mqerr.IsMQErrCode(err, mqerr.ErrInvalidArg), "got %v", err)

	require.NoError(t, tr.ReleaseNative(40))
	require.Equal(t, int64(60), tr.UsedNativeMemory())
	require.Equal(t, int64(40), pool.nativeReleased.Load())

	err = tr.ReleaseNative(-1)
	require.True(t, mqerr.IsMQErrCode(err, mqerr.ErrInvalidArg), "got %v", err)
}

func TestAllocateNativeDenied(t *testing.T) {
	pool := &recordingPool{}
	pool.denyNative.Store(true)
	tr, err := NewLocalTracker(pool, 0, DefaultGrabSize)
	require.NoError(t, err)

	err = tr.AllocateNative(100)
	require.True(t, mqerr.IsMQErrCode(err, mqerr.ErrPoolOutOfSpace), "got %v", err)
	require.Equal(t, int64(100), tr.UsedNativeMemory(),
		"denied native reservation leaves nativeUsed incremented")
}

func TestReset(t *testing.T) {
	pool := &recordingPool{}
	tr, err := NewLocalTracker(pool, 0, 1024)
	require.NoError(t, err)

	require.NoError(t, tr.AllocateHeap(500))
	require.NoError(t, tr.AllocateNative(100))
	require.NoError(t, tr.ReleaseNative(100))

	require.NoError(t, tr.Reset())
	require.Equal(t, int64(0), tr.EstimatedHeapMemory())
	require.Equal(t, int64(0), tr.HeapHighWaterMark())
	require.Equal(t, int64(0), tr.localPoolGranted.Load())
	require.Equal(t, int64(1024), pool.heapReleased.Load(), "the whole grant goes back")

	// idempotent on a clean tracker
	require.NoError(t, tr.Reset())
	require.Equal(t, int64(1024), pool.heapReleased.Load())

	// reusable afterwards
	require.NoError(t, tr.AllocateHeap(10))
	require.Equal(t, int64(10), tr.EstimatedHeapMemory())
}

func TestResetLeakDetected(t *testing.T) {
	pool := &recordingPool{}
	tr, err := NewLocalTracker(pool, 0, 1024)
	require.NoError(t, err)

	require.NoError(t, tr.AllocateHeap(500))
	require.NoError(t, tr.AllocateNative(100))

	err = tr.Reset()
	require.True(t, mqerr.IsMQErrCode(err, mqerr.ErrMemLeakDetected), "got %v", err)
	require.EqualError(t, err, "potential native memory leak: 100 bytes still in use at reset")

	// heap side untouched, nothing returned to the pool
	require.Equal(t, int64(500), tr.EstimatedHeapMemory())
	require.Equal(t, int64(500), tr.HeapHighWaterMark())
	require.Equal(t, int64(1024), tr.localPoolGranted.Load())
	require.Equal(t, int64(0), pool.heapReleased.Load())

	// releasing the native balance makes reset pass
	require.NoError(t, tr.ReleaseNative(100))
	require.NoError(t, tr.Reset())
	require.Equal(t, int64(1024), pool.heapReleased.Load())
}

func TestSetHeapLimit(t *testing.T) {
	tr, err := NewLocalTracker(NoTracking, 0, DefaultGrabSize)
	require.NoError(t, err)

	require.NoError(t, tr.AllocateHeap(500))

	err = tr.SetHeapLimit(-1)
	require.True(t, mqerr.IsMQErrCode(err, mqerr.ErrInvalidArg), "got %v", err)

	// lowering the limit under current usage succeeds, only the next
	// allocation fails
	require.NoError(t, tr.SetHeapLimit(200))
	require.Equal(t, int64(200), tr.HeapLimit().Bytes())
	err = tr.AllocateHeap(1)
	require.True(t, mqerr.IsMQErrCode(err, mqerr.ErrMemLimitExceeded), "got %v", err)
	require.EqualError(t, err,
		"memory limit exceeded: requested 1 bytes, limit 200 bytes, used 500 bytes")

	// back to unlimited
	require.NoError(t, tr.SetHeapLimit(0))
	require.False(t, tr.HeapLimit().Bounded())
	require.NoError(t, tr.AllocateHeap(10_000))
}

func TestNewUnlimitedTracker(t *testing.T) {
	tr := NewUnlimitedTracker()
	require.NoError(t, tr.AllocateHeap(100*MB))
	require.NoError(t, tr.AllocateNative(100*MB))
	require.NoError(t, tr.ReleaseNative(100*MB))
	require.NoError(t, tr.Reset())
}

func TestNopTracker(t *testing.T) {
	var tr Tracker = NopTracker{}
	require.NoError(t, tr.AllocateHeap(100))
	require.NoError(t, tr.AllocateNative(100))
	require.NoError(t, tr.SetHeapLimit(10))
	assert.Equal(t, int64(0), tr.EstimatedHeapMemory())
	assert.Equal(t, int64(0), tr.UsedNativeMemory())
	assert.Equal(t, int64(0), tr.HeapHighWaterMark())
	require.NoError(t, tr.Reset())
}

// test race
func TestTrackerForRace(t *testing.T) {
	defer leaktest.AfterTest(t)()
	tr := NewUnlimitedTracker()
	var wg sync.WaitGroup
	run := func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if err := tr.AllocateHeap(8); err != nil {
				panic(err)
			}
			if err := tr.AllocateNative(8); err != nil {
				panic(err)
			}
			if err := tr.ReleaseNative(8); err != nil {
				panic(err)
			}
			if err := tr.ReleaseHeap(8); err != nil {
				panic(err)
			}
		}
	}
	for i := 0; i < 800; i++ {
		wg.Add(1)
		go run()
	}
	wg.Wait()

	require.Equal(t, int64(0), tr.EstimatedHeapMemory())
	require.Equal(t, int64(0), tr.UsedNativeMemory())
	require.True(t, tr.HeapHighWaterMark() >= 8, "mark must have moved")
	require.NoError(t, tr.Reset())
}

// Concurrent top ups may over ask the pool, but the tracker's own
// counters and the pool's bookkeeping must stay consistent.
func TestTopUpForRace(t *testing.T) {
	defer leaktest.AfterTest(t)()
	pool := &recordingPool{}
	tr, err := NewLocalTracker(pool, 0, 64)
	require.NoError(t, err)

	var wg sync.WaitGroup
	run := func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			if err := tr.AllocateHeap(8); err != nil {
				panic(err)
			}
		}
	}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go run()
	}
	wg.Wait()

	require.Equal(t, int64(16*100*8), tr.EstimatedHeapMemory())
	require.Equal(t, pool.heapReserved.Load(), tr.localPoolGranted.Load())
	require.True(t, tr.localPoolGranted.Load() > 0, "some batch was grabbed")

	require.NoError(t, tr.ReleaseHeap(16*100*8))
	require.NoError(t, tr.Reset())
	require.Equal(t, pool.heapReserved.Load(), pool.heapReleased.Load(),
		"reset returns exactly what was granted")
}

func TestSetHeapLimitForRace(t *testing.T) {
	defer leaktest.AfterTest(t)()
	tr := NewUnlimitedTracker()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				_ = tr.AllocateHeap(8)
				_ = tr.ReleaseHeap(8)
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if err := tr.SetHeapLimit(n * 1024); err != nil {
					panic(err)
				}
			}
		}(int64(i))
	}
	wg.Wait()
}
