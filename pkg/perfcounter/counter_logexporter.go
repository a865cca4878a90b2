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
	"strings"

	"go.uber.org/zap"

	"github.com/lunarisdb/memquota/pkg/util/stats"
)

// CounterLogExporter is the log exporter of a memory counter set.
type CounterLogExporter struct {
	counter *CounterSet
}

var _ stats.LogExporter = (*CounterLogExporter)(nil)

func NewCounterLogExporter(counter *CounterSet) stats.LogExporter {
	return &CounterLogExporter{
		counter: counter,
	}
}

// Export returns the fields and its values in loggable format.
func (c *CounterLogExporter) Export() []zap.Field {
	var fields []zap.Field

	heap := &c.counter.Mem.Heap
	fields = append(fields, zap.Any("Mem Heap Limit Hit Rate",
		float64(heap.LimitHit.LoadW())/
			float64(heap.Allocate.LoadW()+heap.LimitHit.LoadW())))
	fields = append(fields, zap.Any("Mem Top Up Denial Rate",
		float64(heap.TopUpDenied.LoadW())/
			float64(heap.TopUp.LoadW())))
	fields = append(fields, zap.Any("Mem Native Denial Rate",
		float64(c.counter.Mem.Native.Denied.LoadW())/
			float64(c.counter.Mem.Native.Allocate.LoadW())))

	// all fields in CounterSet
	_ = c.counter.IterFields(func(path []string, counter *stats.Counter) error {
		fields = append(fields, zap.Any(strings.Join(path, "."), counter.SwapW()))
		return nil
	})

	return fields
}
