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
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestLimitOf(t *testing.T) {
	convey.Convey("bounded limit", t, func() {
		l := LimitOf(1024)
		convey.So(l.Bounded(), convey.ShouldBeTrue)
		convey.So(l.Bytes(), convey.ShouldEqual, 1024)
		convey.So(l.String(), convey.ShouldEqual, "1024")
		convey.So(l.Exceeds(1024), convey.ShouldBeFalse)
		convey.So(l.Exceeds(1025), convey.ShouldBeTrue)
	})

	convey.Convey("zero means unlimited", t, func() {
		l := LimitOf(0)
		convey.So(l.Bounded(), convey.ShouldBeFalse)
		convey.So(l.Bytes(), convey.ShouldEqual, 0)
		convey.So(l.String(), convey.ShouldEqual, "unlimited")
		convey.So(l.Exceeds(math.MaxInt64-1), convey.ShouldBeFalse)
	})

	convey.Convey("no limit", t, func() {
		l := NoLimit()
		convey.So(l.Bounded(), convey.ShouldBeFalse)
		convey.So(l.Exceeds(1<<50), convey.ShouldBeFalse)
	})
}

func TestLimitEncoding(t *testing.T) {
	convey.Convey("encoding round trip", t, func() {
		for _, bytes := range []int64{0, 1, 1024, 1 << 40} {
			l := LimitOf(bytes)
			convey.So(limitFromEncoded(l.encoded()).Bytes(), convey.ShouldEqual, bytes)
		}
		// the hot path comparison sees MaxInt64 for unlimited
		convey.So(NoLimit().encoded(), convey.ShouldEqual, int64(math.MaxInt64))
	})
}
