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

// Pool is the parent budget a tracker reserves against, with
// independent heap and native channels.  Reserve calls may fail when
// the concrete pool enforces a capacity; releases always succeed.  A
// Pool is shared by many trackers and outlives all of them; a reserve
// may block if the implementation chooses to wait for space.
type Pool interface {
	// ReserveHeap takes size bytes out of the pool's heap budget.
	ReserveHeap(size int64) error
	// ReleaseHeap returns size bytes to the pool's heap budget.
	ReleaseHeap(size int64)
	// ReserveNative takes size bytes out of the pool's native budget.
	// Whether the native channel is limited is the pool's policy.
	ReserveNative(size int64) error
	// ReleaseNative returns size bytes to the pool's native budget.
	ReleaseNative(size int64)
}

// NoTracking is the sentinel pool used when governance is disabled.
// It accepts every reservation and accounts nothing.
var NoTracking Pool = noTrackingPool{}

type noTrackingPool struct{}

func (noTrackingPool) ReserveHeap(int64) error   { return nil }
func (noTrackingPool) ReleaseHeap(int64)         {}
func (noTrackingPool) ReserveNative(int64) error { return nil }
func (noTrackingPool) ReleaseNative(int64)       {}
