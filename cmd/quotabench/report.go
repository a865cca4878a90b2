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
	"encoding/binary"
	"math/bits"
	"strings"

	hll "github.com/axiomhq/hyperloglog"
	"github.com/google/btree"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/lunarisdb/memquota/pkg/common/mtrack"
	"github.com/lunarisdb/memquota/pkg/logutil"
	"github.com/lunarisdb/memquota/pkg/perfcounter"
	"github.com/lunarisdb/memquota/pkg/util/stats"
)

// sizeBucket is one power of two cell of the allocation size histogram.
type sizeBucket struct {
	pow   int
	count int64
}

func (b *sizeBucket) Less(item btree.Item) bool {
	return b.pow < item.(*sizeBucket).pow
}

// reporter folds the event stream into the end of run report. It is
// only ever touched by the aggregation loop goroutine, then read after
// the pipeline has stopped, so it needs no lock.
type reporter struct {
	workers []workerSummary

	hist       *btree.BTree
	sizeSketch *hll.Sketch

	heapAllocs   int64
	nativeAllocs int64
	refused      int64
	refusedBytes int64
}

func newReporter() *reporter {
	return &reporter{
		hist:       btree.New(2),
		sizeSketch: hll.New(),
	}
}

func (r *reporter) onEvents(items []any, _ chan any) {
	for _, item := range items {
		switch v := item.(type) {
		case allocEvent:
			r.onAlloc(v)
		case workerSummary:
			r.workers = append(r.workers, v)
		}
	}
}

func (r *reporter) onAlloc(ev allocEvent) {
	switch ev.kind {
	case evHeapAlloc:
		r.heapAllocs++
	case evNativeAlloc:
		r.nativeAllocs++
	default:
		r.refused++
		r.refusedBytes += ev.size
		return
	}
	r.bump(ev.size)
	var key [8]byte
	binary.LittleEndian.PutUint64(key[:], uint64(ev.size))
	r.sizeSketch.Insert(key[:])
}

func (r *reporter) bump(size int64) {
	// ceil log2, size 1 lands in the "up to 1" cell
	pow := bits.Len64(uint64(size - 1))
	if item := r.hist.Get(&sizeBucket{pow: pow}); item != nil {
		item.(*sizeBucket).count++
		return
	}
	r.hist.ReplaceOrInsert(&sizeBucket{pow: pow, count: 1})
}

func (r *reporter) write(pool *mtrack.SharedPool, runCounter *perfcounter.CounterSet) {
	slices.SortFunc(r.workers, func(a, b workerSummary) bool {
		return a.id < b.id
	})
	for _, s := range r.workers {
		logutil.Info("worker",
			zap.Int("id", s.id),
			zap.Int64("allocs", s.ops),
			zap.Int64("limit hits", s.limitHits),
			zap.Int64("pool denials", s.denials),
			zap.Int64("throttled", s.throttled),
			zap.Int64("heap hwm", s.hwm),
			zap.Duration("elapsed", s.elapsed))
	}

	logutil.Info("allocation profile",
		zap.Int64("heap allocs", r.heapAllocs),
		zap.Int64("native allocs", r.nativeAllocs),
		zap.Int64("refused", r.refused),
		zap.Int64("refused bytes", r.refusedBytes),
		zap.Uint64("distinct sizes", r.sizeSketch.Estimate()))
	r.hist.Ascend(func(item btree.Item) bool {
		b := item.(*sizeBucket)
		logutil.Info("size bucket",
			zap.Int64("up to", int64(1)<<b.pow),
			zap.Int64("count", b.count))
		return true
	})

	st := pool.Stats()
	logutil.Infof("pool %s: %s", pool.Name(), st.Report())
	logutil.Infof("mem usage: %s", mtrack.ReportMemUsage(""))

	fields := make([]zap.Field, 0, 16)
	_ = runCounter.IterFields(func(path []string, counter *stats.Counter) error {
		fields = append(fields, zap.Int64(strings.Join(path, "."), counter.Load()))
		return nil
	})
	logutil.Info("run counters", fields...)
}
