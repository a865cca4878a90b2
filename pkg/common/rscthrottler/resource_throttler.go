// Copyright 2025 LunarisDB
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rscthrottler gates admission of expensive work on a byte
// budget.  Unlike a tracker, a throttler never fails a caller that can
// wait; Acquire reports whether the budget admits the request and the
// caller decides to retry, shed, or queue.
package rscthrottler

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/lunarisdb/memquota/pkg/common/mtrack"
	"github.com/lunarisdb/memquota/pkg/logutil"
)

const defaultLimit = 1 * mtrack.GB

type MemThrottler struct {
	tag       string
	limit     int64
	available atomic.Int64
}

type MemThrottlerOption func(*MemThrottler)

// WithConstLimit bases the budget on a fixed byte count instead of
// system memory.
func WithConstLimit(limit int64) MemThrottlerOption {
	return func(t *MemThrottler) {
		t.limit = limit
	}
}

// WithPool budgets a ratio of the pool's capacity instead of system
// memory.
func WithPool(pool *mtrack.SharedPool) MemThrottlerOption {
	return func(t *MemThrottler) {
		t.limit = pool.Capacity()
	}
}

// NewMemThrottler budgets ratio of the chosen base: a const limit, a
// pool capacity, or by default total system memory.
func NewMemThrottler(tag string, ratio float64, opts ...MemThrottlerOption) *MemThrottler {
	t := &MemThrottler{tag: tag}
	for _, opt := range opts {
		opt(t)
	}
	if t.limit == 0 {
		t.limit = totalMemory()
	}
	t.limit = int64(float64(t.limit) * ratio)
	if t.limit <= 0 {
		logutil.Warnf("%s mem throttler: no usable budget, falling back to %d", tag, int64(defaultLimit))
		t.limit = defaultLimit
	}
	t.available.Store(t.limit)
	return t
}

// Acquire takes n bytes from the budget.  On refusal the budget is
// untouched and left reports what was available.
func (t *MemThrottler) Acquire(n int64) (left int64, ok bool) {
	if n <= 0 {
		return t.available.Load(), true
	}
	for {
		avail := t.available.Load()
		if avail < n {
			return avail, false
		}
		if t.available.CompareAndSwap(avail, avail-n) {
			return avail - n, true
		}
	}
}

// Release puts n bytes back, never past the budget.
func (t *MemThrottler) Release(n int64) {
	if n <= 0 {
		return
	}
	for {
		avail := t.available.Load()
		newAvail := min(avail+n, t.limit)
		if t.available.CompareAndSwap(avail, newAvail) {
			return
		}
	}
}

func (t *MemThrottler) Available() int64 {
	return t.available.Load()
}

func (t *MemThrottler) Limit() int64 {
	return t.limit
}

func (t *MemThrottler) PrintUsage() {
	avail := t.available.Load()
	logutil.Info("mem throttler usage",
		zap.String("tag", t.tag),
		zap.Int64("limit", t.limit),
		zap.Int64("available", avail),
		zap.Int64("in use", t.limit-avail),
	)
}
