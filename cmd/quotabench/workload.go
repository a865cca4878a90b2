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
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/lunarisdb/memquota/pkg/common/marena"
	"github.com/lunarisdb/memquota/pkg/common/mqerr"
	"github.com/lunarisdb/memquota/pkg/common/mtrack"
	"github.com/lunarisdb/memquota/pkg/common/rscthrottler"
	"github.com/lunarisdb/memquota/pkg/common/sm"
	"github.com/lunarisdb/memquota/pkg/config"
	"github.com/lunarisdb/memquota/pkg/logutil"
	"github.com/lunarisdb/memquota/pkg/perfcounter"
)

type eventKind int8

const (
	evHeapAlloc eventKind = iota
	evNativeAlloc
	evLimitHit
	evPoolDenied
	evThrottled
)

type allocEvent struct {
	worker int
	kind   eventKind
	size   int64
}

type workerSummary struct {
	id        int
	ops       int64
	limitHits int64
	denials   int64
	throttled int64
	hwm       int64
	elapsed   time.Duration
}

// workload drives trackers against one pool and streams every outcome
// through a queue into the reporter. Workers enqueue, the queue
// forwards into a channel, the loop folds batches into reporter state,
// so the reporter never needs a lock.
type workload struct {
	qp        *config.QuotaParameters
	pool      mtrack.Pool
	throttler *rscthrottler.MemThrottler

	events  sm.Queue
	aggCh   chan any
	aggLoop *sm.Loop
}

func newWorkload(
	qp *config.QuotaParameters,
	pool mtrack.Pool,
	throttler *rscthrottler.MemThrottler,
	rep *reporter,
) *workload {
	w := &workload{
		qp:        qp,
		pool:      pool,
		throttler: throttler,
		aggCh:     make(chan any, 10000),
	}
	w.aggLoop = sm.NewLoop(w.aggCh, nil, rep.onEvents, 200)
	w.aggLoop.Start()
	w.events = sm.NewSafeQueue(10000, 200, func(items ...any) {
		for _, item := range items {
			w.aggCh <- item
		}
	})
	w.events.Start()
	return w
}

// stop drains the pipeline. Reporter state is safe to read afterwards.
func (w *workload) stop() {
	w.events.Stop()
	w.aggLoop.Stop()
}

func (w *workload) record(item any) {
	if _, err := w.events.Enqueue(item); err != nil {
		logutil.Errorf("record event: %v", err)
	}
}

func (w *workload) run(ctx context.Context) {
	count := int(w.qp.WorkerCount)
	// a worker panic should crash the whole bench, not one goroutine
	pool, _ := ants.NewPool(count, ants.WithPanicHandler(func(v interface{}) {
		panic(v)
	}))
	defer pool.Release()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		id := i
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			w.runWorker(ctx, id)
		}); err != nil {
			wg.Done()
			logutil.Errorf("submit worker %d: %v", id, err)
		}
	}
	wg.Wait()
	logutil.Info("workload done",
		zap.Int("workers", count),
		zap.Duration("elapsed", time.Since(start)))
}

func (w *workload) runWorker(ctx context.Context, id int) {
	qp := w.qp
	tracker, err := mtrack.NewLocalTracker(w.pool, qp.DefaultHeapLimit, qp.GrabSize)
	if err != nil {
		logutil.Errorf("worker %d: create tracker: %v", id, err)
		return
	}
	arena := marena.New(tracker)
	rng := rand.New(rand.NewSource(int64(id) + 1))
	summary := workerSummary{id: id}
	start := time.Now()

	var heapHeld []int64
	var nativeHeld []marena.Handle
	var granted int64

	for op := int64(0); op < qp.OpsPerWorker; op++ {
		size := rng.Int63n(qp.MaxAllocSize) + 1

		if op%qp.NativeRatio == qp.NativeRatio-1 {
			nativeHeld = w.nativeOp(ctx, id, arena, size, nativeHeld, &summary)
			continue
		}

		if len(heapHeld) > 0 && rng.Int63n(qp.ReleaseRatio) == 0 {
			held := heapHeld[len(heapHeld)-1]
			heapHeld = heapHeld[:len(heapHeld)-1]
			w.releaseHeap(ctx, tracker, held)
			continue
		}

		if _, ok := w.throttler.Acquire(size); !ok {
			summary.throttled++
			w.record(allocEvent{worker: id, kind: evThrottled, size: size})
			continue
		}
		ok, err := w.trackHeapAlloc(ctx, id, tracker, size, &granted, &summary)
		if err != nil {
			panic(err)
		}
		if !ok {
			w.throttler.Release(size)
			continue
		}
		heapHeld = append(heapHeld, size)
	}

	for _, held := range heapHeld {
		w.releaseHeap(ctx, tracker, held)
	}
	for _, h := range nativeHeld {
		h.Free()
		perfcounter.Update(ctx, func(c *perfcounter.CounterSet) {
			c.Mem.Native.Release.Add(1)
		})
	}
	summary.hwm = tracker.HeapHighWaterMark()
	w.resetTracker(ctx, id, tracker)
	summary.elapsed = time.Since(start)
	w.record(summary)
}

// trackHeapAlloc charges size to the tracker and turns the outcome
// into events and counters. Limit hits and pool denials are absorbed
// as recorded outcomes with ok false; the returned error is only ever
// an unexpected one.
func (w *workload) trackHeapAlloc(
	ctx context.Context,
	id int,
	tracker *mtrack.LocalTracker,
	size int64,
	granted *int64,
	summary *workerSummary,
) (bool, error) {
	if err := tracker.AllocateHeap(size); err != nil {
		switch {
		case mqerr.IsMQErrCode(err, mqerr.ErrMemLimitExceeded):
			summary.limitHits++
			w.record(allocEvent{worker: id, kind: evLimitHit, size: size})
			perfcounter.Update(ctx, func(c *perfcounter.CounterSet) {
				c.Mem.Heap.LimitHit.Add(1)
			})
			return false, nil
		case mqerr.IsMQErrCode(err, mqerr.ErrPoolOutOfSpace):
			summary.denials++
			w.record(allocEvent{worker: id, kind: evPoolDenied, size: size})
			perfcounter.Update(ctx, func(c *perfcounter.CounterSet) {
				c.Mem.Heap.TopUp.Add(1)
				c.Mem.Heap.TopUpDenied.Add(1)
			})
			return false, nil
		default:
			return false, err
		}
	}
	summary.ops++
	topUp := false
	// mirrors the tracker's grant batching so grabs are countable from
	// outside; exact because each tracker here has a single caller
	if est := tracker.EstimatedHeapMemory(); est > *granted {
		*granted += max(size, tracker.GrabSize())
		topUp = true
	}
	w.record(allocEvent{worker: id, kind: evHeapAlloc, size: size})
	perfcounter.Update(ctx, func(c *perfcounter.CounterSet) {
		c.Mem.Heap.Allocate.Add(1)
		c.Mem.AllocatedBytes.Add(size)
		if topUp {
			c.Mem.Heap.TopUp.Add(1)
		}
	})
	return true, nil
}

func (w *workload) releaseHeap(ctx context.Context, tracker *mtrack.LocalTracker, size int64) {
	if err := tracker.ReleaseHeap(size); err != nil {
		panic(err)
	}
	w.throttler.Release(size)
	perfcounter.Update(ctx, func(c *perfcounter.CounterSet) {
		c.Mem.Heap.Release.Add(1)
		c.Mem.ReleasedBytes.Add(size)
	})
}

func (w *workload) nativeOp(
	ctx context.Context,
	id int,
	arena *marena.Arena,
	size int64,
	held []marena.Handle,
	summary *workerSummary,
) []marena.Handle {
	buf, h, err := arena.Alloc(int(size))
	if err != nil {
		if mqerr.IsMQErrCode(err, mqerr.ErrPoolOutOfSpace) {
			summary.denials++
			w.record(allocEvent{worker: id, kind: evPoolDenied, size: size})
			perfcounter.Update(ctx, func(c *perfcounter.CounterSet) {
				c.Mem.Native.Denied.Add(1)
			})
			return held
		}
		panic(err)
	}
	buf[0] = byte(size)
	held = append(held, h)
	summary.ops++
	// the arena charges whole classes, len(buf) is what was accounted
	w.record(allocEvent{worker: id, kind: evNativeAlloc, size: int64(len(buf))})
	perfcounter.Update(ctx, func(c *perfcounter.CounterSet) {
		c.Mem.Native.Allocate.Add(1)
	})

	if len(held) > 8 {
		old := held[0]
		held = held[1:]
		old.Free()
		perfcounter.Update(ctx, func(c *perfcounter.CounterSet) {
			c.Mem.Native.Release.Add(1)
		})
	}
	return held
}

// resetTracker returns the worker's grant to the pool and reports
// whether the reset took. Denied native allocations leave bytes on the
// tracker with nothing to free, so the reset may report them as a
// leak; that is worth seeing in the log, and the grant then stays
// stranded exactly as it would in a real embedder that ignores the
// error.
func (w *workload) resetTracker(ctx context.Context, id int, tracker *mtrack.LocalTracker) bool {
	err := tracker.Reset()
	if err == nil {
		perfcounter.Update(ctx, func(c *perfcounter.CounterSet) {
			c.Mem.Tracker.Reset.Add(1)
		})
		return true
	}
	logutil.Warnf("worker %d: %v", id, err)
	perfcounter.Update(ctx, func(c *perfcounter.CounterSet) {
		c.Mem.Tracker.LeakDetected.Add(1)
	})
	return false
}
