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

// Package marena hands out mmap backed buffers in fixed size classes.
// Every byte an arena maps is charged to a Tracker's native channel
// before the mapping happens, so a denied reservation never maps
// anything and the tracker's leak check at reset covers arena memory.
package marena

import (
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/lunarisdb/memquota/pkg/common/mqerr"
	"github.com/lunarisdb/memquota/pkg/common/mtrack"
	"github.com/lunarisdb/memquota/pkg/logutil"
)

const (
	minClassSize    = 128
	maxClassSize    = 1 << 20
	classSizeFactor = 1.5
)

var classSizes = func() (ret []int) {
	for size := minClassSize; size <= maxClassSize; size = int(float64(size) * classSizeFactor) {
		ret = append(ret, size)
	}
	return
}()

func requestSizeToClass(size int) int {
	for class, classSize := range classSizes {
		if classSize >= size {
			return class
		}
	}
	return -1
}

type Arena struct {
	tracker mtrack.Tracker
	classes []*fixedSizeClass
}

// New builds an arena charging the given tracker.  A nil tracker means
// unaccounted.
func New(tracker mtrack.Tracker) *Arena {
	if tracker == nil {
		tracker = mtrack.NopTracker{}
	}
	a := &Arena{
		tracker: tracker,
		classes: make([]*fixedSizeClass, len(classSizes)),
	}
	for i, size := range classSizes {
		a.classes[i] = newFixedSizeClass(size)
	}
	logutil.Info("memory arena",
		zap.Any("classes", len(classSizes)),
		zap.Any("min class size", minClassSize),
		zap.Any("max class size", classSizes[len(classSizes)-1]),
	)
	return a
}

func (a *Arena) Tracker() mtrack.Tracker {
	return a.tracker
}

// Handle frees one allocation.  The zero Handle is a valid no-op.
type Handle struct {
	arena     *Arena
	class     *fixedSizeClass
	slab      *_Slab
	ptr       unsafe.Pointer
	accounted int
}

// Alloc returns a zeroed buffer of at least size bytes.  Requests up to
// the largest class come from slabs and the slice is the whole class
// object; larger requests get a dedicated mapping of the exact size.
func (a *Arena) Alloc(size int) ([]byte, Handle, error) {
	if size < 0 {
		return nil, Handle{}, mqerr.NewInvalidArgNoCtx("alloc size", size)
	}
	if size == 0 {
		return nil, Handle{}, nil
	}

	class := requestSizeToClass(size)
	if class == -1 {
		return a.allocLarge(size)
	}

	classSize := classSizes[class]
	if err := a.tracker.AllocateNative(int64(classSize)); err != nil {
		return nil, Handle{}, err
	}
	slab, ptr, err := a.classes[class].allocate()
	if err != nil {
		if rerr := a.tracker.ReleaseNative(int64(classSize)); rerr != nil {
			panic(rerr)
		}
		return nil, Handle{}, err
	}

	slice := unsafe.Slice((*byte)(ptr), classSize)
	clear(slice)
	return slice, Handle{
		arena:     a,
		class:     a.classes[class],
		slab:      slab,
		ptr:       ptr,
		accounted: classSize,
	}, nil
}

func (a *Arena) allocLarge(size int) ([]byte, Handle, error) {
	if err := a.tracker.AllocateNative(int64(size)); err != nil {
		return nil, Handle{}, err
	}
	slice, err := unix.Mmap(
		-1, 0,
		size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS,
	)
	if err != nil {
		if rerr := a.tracker.ReleaseNative(int64(size)); rerr != nil {
			panic(rerr)
		}
		return nil, Handle{}, err
	}
	return slice, Handle{
		arena:     a,
		ptr:       unsafe.Pointer(unsafe.SliceData(slice)),
		accounted: size,
	}, nil
}

func (h Handle) Free() {
	if h.arena == nil {
		return
	}
	if h.class == nil {
		// dedicated mapping
		if err := unix.Munmap(unsafe.Slice((*byte)(h.ptr), h.accounted)); err != nil {
			panic(err)
		}
	} else {
		empty := h.slab.free(h.ptr)
		if empty {
			h.class.freeSlab(h.slab)
		}
	}
	if err := h.arena.tracker.ReleaseNative(int64(h.accounted)); err != nil {
		panic(err)
	}
}
