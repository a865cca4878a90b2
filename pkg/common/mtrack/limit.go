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
	"math"
	"strconv"
)

// Limit is a heap ceiling with an explicit unlimited case.  Everywhere
// in this module the external convention is that a limit of 0 bytes
// means unlimited; Limit keeps that convention at the boundary and an
// explicit representation inside.
//
// The encoding stores math.MaxInt64 for the unlimited case, so the
// allocation hot path stays one atomic load and one compare against
// the raw encoding.  The zero Limit is a bounded limit of 0 bytes and
// permits nothing; use NoLimit or LimitOf.
type Limit struct {
	bytes int64
}

const noLimitEncoding = math.MaxInt64

// NoLimit returns the unlimited Limit.
func NoLimit() Limit {
	return Limit{bytes: noLimitEncoding}
}

// LimitOf maps the external convention onto a Limit: 0 means
// unlimited, anything positive is a hard ceiling.  Negative input is
// the caller's error and must be rejected before conversion.
func LimitOf(bytes int64) Limit {
	if bytes == 0 {
		return NoLimit()
	}
	return Limit{bytes: bytes}
}

// Bounded reports whether the Limit is a real ceiling.
func (l Limit) Bounded() bool {
	return l.bytes != noLimitEncoding
}

// Bytes returns the ceiling in bytes, or 0 for the unlimited case,
// matching the external convention.
func (l Limit) Bytes() int64 {
	if !l.Bounded() {
		return 0
	}
	return l.bytes
}

// Exceeds reports whether the given usage is over the ceiling.  Always
// false for the unlimited case.
func (l Limit) Exceeds(used int64) bool {
	return used > l.bytes
}

func (l Limit) String() string {
	if !l.Bounded() {
		return "unlimited"
	}
	return strconv.FormatInt(l.bytes, 10)
}

func (l Limit) encoded() int64 {
	return l.bytes
}

func limitFromEncoded(raw int64) Limit {
	return Limit{bytes: raw}
}
