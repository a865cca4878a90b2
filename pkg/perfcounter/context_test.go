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
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithCounterSet(t *testing.T) {
	a, b := new(CounterSet), new(CounterSet)

	ctx := WithCounterSet(context.Background(), a)
	counters := ctx.Value(CtxKeyCounters).(CounterSets)
	require.Equal(t, 1, len(counters))

	// attaching an already attached set must not nest another context
	ctx2 := WithCounterSet(ctx, a)
	require.Equal(t, ctx, ctx2)

	ctx3 := WithCounterSet(ctx, b)
	require.NotEqual(t, ctx, ctx3)
	counters = ctx3.Value(CtxKeyCounters).(CounterSets)
	require.Equal(t, 2, len(counters))
	// the original context is untouched
	require.Equal(t, 1, len(ctx.Value(CtxKeyCounters).(CounterSets)))

	require.Panics(t, func() {
		WithCounterSet(context.Background(), nil)
	})
}

func TestWithCounterSetFrom(t *testing.T) {
	a := new(CounterSet)
	from := WithCounterSet(context.Background(), a)

	ctx := WithCounterSetFrom(context.Background(), from)
	counters := ctx.Value(CtxKeyCounters).(CounterSets)
	_, ok := counters[a]
	require.True(t, ok)

	// nothing to carry over
	plain := WithCounterSetFrom(context.Background(), context.Background())
	require.Nil(t, plain.Value(CtxKeyCounters))
}

func TestUpdate(t *testing.T) {
	attached, extra := new(CounterSet), new(CounterSet)
	ctx := WithCounterSet(context.Background(), attached)

	before := Global().Mem.Heap.Allocate.Load()
	Update(ctx, func(c *CounterSet) {
		c.Mem.Heap.Allocate.Add(1)
	}, extra)

	require.Equal(t, before+1, Global().Mem.Heap.Allocate.Load())
	require.Equal(t, int64(1), attached.Mem.Heap.Allocate.Load())
	require.Equal(t, int64(1), extra.Mem.Heap.Allocate.Load())

	// a bare context still updates the global set
	Update(context.Background(), func(c *CounterSet) {
		c.Mem.Heap.Release.Add(1)
	})
	require.True(t, Global().Mem.Heap.Release.Load() >= 1)
}
