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

package rscthrottler

import (
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/lunarisdb/memquota/pkg/logutil"
)

// var for stubbing in tests
var totalMemory = func() int64 {
	v, err := mem.VirtualMemory()
	if err != nil {
		logutil.Warnf("read total system memory: %v", err)
		return 0
	}
	return int64(v.Total)
}
