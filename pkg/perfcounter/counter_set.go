// Copyright 2023 LunarisDB
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

package perfcounter

import (
	"github.com/lunarisdb/memquota/pkg/util/stats"
)

// CounterSet contains all items that need to be tracked for memory
// accounting.
type CounterSet struct {
	Mem MemCounterSet
}

type MemCounterSet struct {
	Heap struct {
		Allocate    stats.Counter // allocateHeap calls admitted by the limit
		Release     stats.Counter // releaseHeap calls
		LimitHit    stats.Counter // allocateHeap calls rejected by the limit
		TopUp       stats.Counter // batched grabs sent to the parent pool
		TopUpDenied stats.Counter // batched grabs the parent refused
	}

	Native struct {
		Allocate stats.Counter // allocateNative calls forwarded to the parent
		Release  stats.Counter // releaseNative calls
		Denied   stats.Counter // native reservations the parent refused
	}

	Tracker struct {
		Reset        stats.Counter // resets completed
		LeakDetected stats.Counter // resets refused over a native balance
	}

	// AllocatedBytes: heap bytes admitted (rejected requests excluded)
	AllocatedBytes stats.Counter
	// ReleasedBytes: heap bytes handed back
	ReleasedBytes stats.Counter
}

func (c *CounterSet) Reset() {
	// Mem.Heap
	c.Mem.Heap.Allocate.Reset()
	c.Mem.Heap.Release.Reset()
	c.Mem.Heap.LimitHit.Reset()
	c.Mem.Heap.TopUp.Reset()
	c.Mem.Heap.TopUpDenied.Reset()

	// Mem.Native
	c.Mem.Native.Allocate.Reset()
	c.Mem.Native.Release.Reset()
	c.Mem.Native.Denied.Reset()

	// Mem.Tracker
	c.Mem.Tracker.Reset.Reset()
	c.Mem.Tracker.LeakDetected.Reset()

	// Mem top-level
	c.Mem.AllocatedBytes.Reset()
	c.Mem.ReleasedBytes.Reset()
}
