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

// NopTracker is the disabled tracker.  Every operation succeeds and
// accounts nothing; it is safe to share across execution units.
type NopTracker struct{}

var _ Tracker = NopTracker{}

func (NopTracker) AllocateHeap(int64) error   { return nil }
func (NopTracker) ReleaseHeap(int64) error    { return nil }
func (NopTracker) AllocateNative(int64) error { return nil }
func (NopTracker) ReleaseNative(int64) error  { return nil }
func (NopTracker) EstimatedHeapMemory() int64 { return 0 }
func (NopTracker) UsedNativeMemory() int64    { return 0 }
func (NopTracker) HeapHighWaterMark() int64   { return 0 }
func (NopTracker) Reset() error               { return nil }
func (NopTracker) SetHeapLimit(int64) error   { return nil }
