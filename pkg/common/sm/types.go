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

// Package sm provides small building blocks for queue driven pipelines:
// a lock free Queue with a single consumer goroutine and a channel fed
// batching Loop. Stages are chained by forwarding items from one stage's
// callback into the next stage's queue.
package sm

import "sync/atomic"

// OnItemsCB consumes a batch of dequeued items.
type OnItemsCB = func(...any)

type Queue interface {
	Start()
	Stop()
	Enqueue(any) (any, error)
}

// ClosedState is a one way closed flag shared by queue like components.
type ClosedState struct {
	closed int32
}

func (c *ClosedState) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == int32(1)
}

// TryClose returns false if some other caller already closed.
func (c *ClosedState) TryClose() bool {
	return atomic.CompareAndSwapInt32(&c.closed, int32(0), int32(1))
}
