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

package stats

import "sync/atomic"

// Counter is a window counter.  Adds land in the window; SwapW closes
// the window, folds it into the running total and returns it.
type Counter struct {
	window atomic.Int64
	global atomic.Int64
}

// Add adds to the current window.
func (c *Counter) Add(delta int64) (new int64) {
	return c.window.Add(delta)
}

// Load returns the running total including the open window.
func (c *Counter) Load() int64 {
	return c.global.Load() + c.window.Load()
}

// LoadW returns the open window without closing it.
func (c *Counter) LoadW() int64 {
	return c.window.Load()
}

// SwapW closes the window and returns its value.
func (c *Counter) SwapW() int64 {
	val := c.window.Swap(0)
	c.global.Add(val)
	return val
}

// Reset zeroes the window and the total.
func (c *Counter) Reset() {
	c.window.Store(0)
	c.global.Store(0)
}
