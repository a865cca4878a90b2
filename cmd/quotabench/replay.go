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
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/matrixorigin/simdcsv"
	"github.com/pierrec/lz4/v4"
	"go.uber.org/zap"

	"github.com/lunarisdb/memquota/pkg/common/mqerr"
	"github.com/lunarisdb/memquota/pkg/common/mtrack"
	"github.com/lunarisdb/memquota/pkg/logutil"
	"github.com/lunarisdb/memquota/pkg/perfcounter"
)

const batchReadRows = 4000

// traceReader streams op,bytes records out of a csv trace, optionally
// lz4 compressed. Rows starting with # are comments.
type traceReader struct {
	ctx     context.Context
	idx     int
	length  int
	content [][]string

	reader *simdcsv.Reader
	raw    io.ReadCloser
}

func newTraceReader(ctx context.Context, path string) (*traceReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	var in io.Reader = f
	if strings.HasSuffix(path, ".lz4") {
		in = lz4.NewReader(f)
	}
	return &traceReader{
		ctx:     ctx,
		content: make([][]string, batchReadRows),
		reader:  simdcsv.NewReaderWithOptions(in, ',', '#', true, true),
		raw:     f,
	}, nil
}

// ReadLine returns the next record, refilling its batch buffer as
// needed. At end of trace the error is OkExpectedEOF.
func (s *traceReader) ReadLine() ([]string, error) {
	if s.idx == s.length && s.reader != nil {
		var cnt int
		var err error
		s.content, cnt, err = s.reader.Read(batchReadRows, s.ctx, s.content)
		if err != nil {
			return nil, err
		}
		if cnt < batchReadRows {
			s.reader = nil
			s.raw.Close()
			s.raw = nil
		}
		s.idx = 0
		s.length = cnt
	}
	if s.idx < s.length {
		idx := s.idx
		s.idx++
		return s.content[idx], nil
	}
	return nil, mqerr.GetOkExpectedEOF()
}

func (s *traceReader) Close() {
	if s.raw != nil {
		s.raw.Close()
		s.raw = nil
	}
	s.content = s.content[:cap(s.content)]
	for idx := range s.content {
		s.content[idx] = nil
	}
}

// replay feeds a recorded allocation trace through a single tracker.
// The throttler is not consulted, the trace already decided what
// happened; tracker refusals still count and land in the report.
func (w *workload) replay(ctx context.Context, path string) error {
	qp := w.qp
	tracker, err := mtrack.NewLocalTracker(w.pool, qp.DefaultHeapLimit, qp.GrabSize)
	if err != nil {
		return err
	}
	reader, err := newTraceReader(ctx, path)
	if err != nil {
		return err
	}
	defer reader.Close()

	summary := workerSummary{}
	start := time.Now()
	var granted int64
	var records int64
	for {
		line, err := reader.ReadLine()
		if err != nil {
			if mqerr.IsMQErrCode(err, mqerr.OkExpectedEOF) {
				break
			}
			return err
		}
		if len(line) == 0 || (len(line) == 1 && line[0] == "") {
			continue
		}
		records++
		if err := w.applyRecord(ctx, tracker, line, &granted, &summary); err != nil {
			return err
		}
	}

	summary.hwm = max(summary.hwm, tracker.HeapHighWaterMark())
	w.resetTracker(ctx, 0, tracker)
	summary.elapsed = time.Since(start)
	w.record(summary)
	logutil.Info("trace replayed",
		zap.String("path", path),
		zap.Int64("records", records),
		zap.Duration("elapsed", summary.elapsed))
	return nil
}

func (w *workload) applyRecord(
	ctx context.Context,
	tracker *mtrack.LocalTracker,
	line []string,
	granted *int64,
	summary *workerSummary,
) error {
	if len(line) < 2 {
		return mqerr.NewInvalidInputNoCtx(
			"trace record %q: want op,bytes", strings.Join(line, ","))
	}
	op := strings.TrimSpace(line[0])
	size, err := strconv.ParseInt(strings.TrimSpace(line[1]), 10, 64)
	if err != nil {
		return mqerr.NewInvalidInputNoCtx(
			"trace record %q: bad byte count", strings.Join(line, ","))
	}

	switch op {
	case "alloc":
		_, err := w.trackHeapAlloc(ctx, 0, tracker, size, granted, summary)
		return err
	case "free":
		if err := tracker.ReleaseHeap(size); err != nil {
			return err
		}
		perfcounter.Update(ctx, func(c *perfcounter.CounterSet) {
			c.Mem.Heap.Release.Add(1)
			c.Mem.ReleasedBytes.Add(size)
		})
	case "nalloc":
		if err := tracker.AllocateNative(size); err != nil {
			if !mqerr.IsMQErrCode(err, mqerr.ErrPoolOutOfSpace) {
				return err
			}
			summary.denials++
			w.record(allocEvent{kind: evPoolDenied, size: size})
			perfcounter.Update(ctx, func(c *perfcounter.CounterSet) {
				c.Mem.Native.Denied.Add(1)
			})
			return nil
		}
		summary.ops++
		w.record(allocEvent{kind: evNativeAlloc, size: size})
		perfcounter.Update(ctx, func(c *perfcounter.CounterSet) {
			c.Mem.Native.Allocate.Add(1)
		})
	case "nfree":
		if err := tracker.ReleaseNative(size); err != nil {
			return err
		}
		perfcounter.Update(ctx, func(c *perfcounter.CounterSet) {
			c.Mem.Native.Release.Add(1)
		})
	case "reset":
		// the mark zeroes with the tracker, keep the best one seen
		summary.hwm = max(summary.hwm, tracker.HeapHighWaterMark())
		if w.resetTracker(ctx, 0, tracker) {
			*granted = 0
		}
	default:
		return mqerr.NewInvalidInputNoCtx("unknown trace op %q", op)
	}
	return nil
}
