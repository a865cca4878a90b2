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
	_ "unsafe"
)

// ShardedCounter spreads hot Add calls over per-P cells to avoid cache
// line contention on a single atomic.  Each visits the cells, the
// caller sums or drains them.
type ShardedCounter[T int64 | uint64, A any, P interface {
	*A
	Add(delta T) (new T)
	Swap(new T) (old T)
	Load() T
}] struct {
	shards []A
}

func NewShardedCounter[T int64 | uint64, A any, P interface {
	*A
	Add(delta T) (new T)
	Swap(new T) (old T)
	Load() T
}](n int) *ShardedCounter[T, A, P] {
	return &ShardedCounter[T, A, P]{
		shards: make([]A, n),
	}
}

func (s *ShardedCounter[T, A, P]) Add(v T) {
	pid := runtime_procPin()
	runtime_procUnpin()
	P(&s.shards[pid%len(s.shards)]).Add(v)
}

func (s *ShardedCounter[T, A, P]) Each(fn func(v P)) {
	for i := range s.shards {
		fn(P(&s.shards[i]))
	}
}

// Load sums the cells.  The sum is not a snapshot, concurrent Adds may
// or may not be included.
func (s *ShardedCounter[T, A, P]) Load() T {
	var total T
	for i := range s.shards {
		total += P(&s.shards[i]).Load()
	}
	return total
}

//go:linkname runtime_procPin runtime.procPin
func runtime_procPin() int

//go:linkname runtime_procUnpin runtime.procUnpin
func runtime_procUnpin() int
