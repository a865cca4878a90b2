// Copyright 2022 LunarisDB
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

package sm

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/lunarisdb/memquota/pkg/common/mqerr"
	queue "github.com/yireyun/go-queue"
)

var (
	// ErrClose is returned by Enqueue once the queue has stopped.
	ErrClose = mqerr.NewInternalErrorNoCtx("sm: closed")
	// ErrFull is returned by nonblocking queues once pending items
	// reach the queue size.
	ErrFull = mqerr.NewInternalErrorNoCtx("sm: queue is full")
)

// safeQueue hands enqueued items to a single consumer goroutine. The
// ring itself is lock free; pending counts the items accepted but not
// yet handed to the callback, so capacity refusal is exact even though
// the ring rounds its size up to a power of two.
type safeQueue struct {
	ClosedState
	queue     *queue.EsQueue
	wg        sync.WaitGroup
	wakeupCh  chan struct{}
	pending   atomic.Int64
	queueSize int64
	batchSize int
	onItemsCB OnItemsCB

	// a nonblocking queue refuses new items instead of waiting for space
	nonblocking bool
}

// NewSafeQueue creates a queue whose Enqueue waits for ring space when
// full. batchSize caps the number of items per callback invocation, 0
// means a whole drain per invocation.
func NewSafeQueue(queueSize, batchSize int, onItem OnItemsCB) Queue {
	q := &safeQueue{
		queue:     queue.NewQueue(uint32(queueSize)),
		wakeupCh:  make(chan struct{}, 1),
		queueSize: int64(queueSize),
		batchSize: batchSize,
		onItemsCB: onItem,
	}
	return q
}

// NewNonBlockingQueue creates a queue whose Enqueue returns ErrFull
// once queueSize items are pending.
func NewNonBlockingQueue(queueSize, batchSize int, onItem OnItemsCB) Queue {
	q := NewSafeQueue(queueSize, batchSize, onItem).(*safeQueue)
	q.nonblocking = true
	return q
}

func (q *safeQueue) Start() {
	q.wg.Add(1)
	go q.loop()
}

// Stop drains remaining items before returning.
func (q *safeQueue) Stop() {
	if !q.TryClose() {
		return
	}
	select {
	case q.wakeupCh <- struct{}{}:
	default:
	}
	q.wg.Wait()
}

// Enqueue returns the item it was given so callers can chain on it.
func (q *safeQueue) Enqueue(item any) (any, error) {
	if q.IsClosed() {
		return item, ErrClose
	}
	if q.pending.Add(1) > q.queueSize {
		if q.nonblocking {
			q.pending.Add(-1)
			return item, ErrFull
		}
	}
	for {
		if ok, _ := q.queue.Put(item); ok {
			break
		}
		// ring full, wait for the consumer to make room
		runtime.Gosched()
		if q.IsClosed() {
			q.pending.Add(-1)
			return item, ErrClose
		}
	}
	select {
	case q.wakeupCh <- struct{}{}:
	default:
	}
	return item, nil
}

func (q *safeQueue) loop() {
	defer q.wg.Done()
	for {
		if q.IsClosed() {
			q.drain()
			return
		}
		<-q.wakeupCh
		q.drain()
	}
}

func (q *safeQueue) drain() {
	var batch []any
	if q.batchSize > 0 {
		batch = make([]any, 0, q.batchSize)
	}
	for {
		item, ok, _ := q.queue.Get()
		if !ok {
			break
		}
		// dequeued counts as handed off even while the callback runs
		q.pending.Add(-1)
		batch = append(batch, item)
		if q.batchSize > 0 && len(batch) == q.batchSize {
			q.onItemsCB(batch...)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		q.onItemsCB(batch...)
	}
}
