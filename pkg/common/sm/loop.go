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
	"context"
	"sync"
)

// Loop drains a channel in batches and hands each batch to fn together
// with the next stage's queue. nextQueue may be nil when the stage is
// terminal.
type Loop struct {
	ClosedState
	queue     chan any
	nextQueue chan any
	fn        func([]any, chan any)
	batchSize int
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewLoop(
	queue chan any,
	nextQueue chan any,
	fn func([]any, chan any),
	batchSize int,
) *Loop {
	l := &Loop{
		queue:     queue,
		nextQueue: nextQueue,
		fn:        fn,
		batchSize: batchSize,
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	return l
}

func (l *Loop) Start() {
	l.wg.Add(1)
	go l.run()
}

// Stop processes whatever is already buffered in the channel, then
// returns. Items sent after Stop are not picked up.
func (l *Loop) Stop() {
	if !l.TryClose() {
		return
	}
	l.cancel()
	l.wg.Wait()
}

func (l *Loop) run() {
	defer l.wg.Done()
	batch := make([]any, 0, l.batchSize)
	for {
		select {
		case <-l.ctx.Done():
			l.flush(batch[:0])
			return
		case item := <-l.queue:
			batch = append(batch, item)
		collect:
			for len(batch) < l.batchSize {
				select {
				case it := <-l.queue:
					batch = append(batch, it)
				default:
					break collect
				}
			}
			l.fn(batch, l.nextQueue)
			batch = batch[:0]
		}
	}
}

func (l *Loop) flush(batch []any) {
	for {
		select {
		case item := <-l.queue:
			batch = append(batch, item)
			if len(batch) == l.batchSize {
				l.fn(batch, l.nextQueue)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				l.fn(batch, l.nextQueue)
			}
			return
		}
	}
}
