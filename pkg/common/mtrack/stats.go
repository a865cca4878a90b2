// Copyright 2024 LunarisDB
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
	"fmt"
	"sync/atomic"
)

const (
	KB int64 = 1 << 10
	MB int64 = 1 << 20
	GB int64 = 1 << 30
	TB int64 = 1 << 40
)

// Stats are the running statistics of a SharedPool.  All fields are
// atomic, read them with Load.
type Stats struct {
	NumReserve    atomic.Int64
	NumRelease    atomic.Int64
	NumDenied     atomic.Int64
	HighWaterMark atomic.Int64
}

// Report returns a one line textual form of the stats for logs.
func (s *Stats) Report() string {
	return fmt.Sprintf("reserve: %d, release: %d, denied: %d, high water mark: %d",
		s.NumReserve.Load(), s.NumRelease.Load(), s.NumDenied.Load(), s.HighWaterMark.Load())
}

// PoolUsage is the json shape of one pool in ReportMemUsage.
type PoolUsage struct {
	Name          string `json:"name"`
	Capacity      int64  `json:"capacity"`
	HeapInUse     int64  `json:"heap_in_use"`
	NativeInUse   int64  `json:"native_in_use"`
	HighWaterMark int64  `json:"high_water_mark"`
	NumReserve    int64  `json:"num_reserve"`
	NumRelease    int64  `json:"num_release"`
	NumDenied     int64  `json:"num_denied"`
}
