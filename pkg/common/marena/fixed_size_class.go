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

package marena

import (
	"math/bits"
	"slices"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	maxActiveSlabs  = 256
	maxActiveBytes  = 1 << 20
	minActiveSlabs  = 4
	maxStandbySlabs = 1024
	maxStandbyBytes = 16 << 20
	minStandbySlabs = 4
)

type fixedSizeClass struct {
	size int

	mu              sync.Mutex
	activeSlabs     []*_Slab // slabs serving allocations
	maxActiveSlabs  int
	standbySlabs    []*_Slab // still mapped but no physical memory backed
	maxStandbySlabs int
}

func newFixedSizeClass(size int) *fixedSizeClass {
	return &fixedSizeClass{
		size: size,

		maxActiveSlabs: max(
			min(
				maxActiveSlabs,
				maxActiveBytes/(size*slabCapacity),
			),
			minActiveSlabs,
		),

		maxStandbySlabs: max(
			min(
				maxStandbySlabs,
				maxStandbyBytes/(size*slabCapacity),
			),
			minStandbySlabs,
		),
	}
}

func (f *fixedSizeClass) allocate() (*_Slab, unsafe.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// from existing
	for _, slab := range f.activeSlabs {
		ptr, ok := slab.allocate()
		if ok {
			return slab, ptr, nil
		}
	}

	// empty or all full
	// from standby slabs
	if len(f.standbySlabs) > 0 {
		slab := f.standbySlabs[len(f.standbySlabs)-1]
		f.standbySlabs = f.standbySlabs[:len(f.standbySlabs)-1]
		reuseMem(slab.base, slab.objectSize*slabCapacity)
		f.activeSlabs = append(f.activeSlabs, slab)
		ptr, _ := slab.allocate()
		return slab, ptr, nil
	}

	// map a new slab
	slice, err := unix.Mmap(
		-1, 0,
		f.size*slabCapacity,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS,
	)
	if err != nil {
		return nil, nil, err
	}

	base := unsafe.Pointer(unsafe.SliceData(slice))
	slab := &_Slab{
		base:       base,
		objectSize: f.size,
	}
	f.activeSlabs = append(f.activeSlabs, slab)

	ptr, _ := slab.allocate()
	return slab, ptr, nil
}

func (f *fixedSizeClass) freeSlab(slab *_Slab) {
	f.mu.Lock() // to prevent new allocation
	defer f.mu.Unlock()

	if len(f.activeSlabs) < f.maxActiveSlabs {
		return
	}

	if slab.mask.Load() != 0 {
		// has new allocation
		return
	}

	offset := -1
	for i, s := range f.activeSlabs {
		if s == slab {
			offset = i
			break
		}
	}
	if offset == -1 {
		// already moved
		return
	}

	// drop the physical memory
	freeMem(slab.base, slab.objectSize*slabCapacity)

	// move to standby slabs
	f.activeSlabs = slices.Delete(f.activeSlabs, offset, offset+1)
	f.standbySlabs = append(f.standbySlabs, slab)

	// unmap standby slabs
	for len(f.standbySlabs) > f.maxStandbySlabs {
		slab := f.standbySlabs[0]
		f.standbySlabs = slices.Delete(f.standbySlabs, 0, 1)
		if err := unix.Munmap(
			unsafe.Slice(
				(*byte)(slab.base),
				slab.objectSize*slabCapacity,
			),
		); err != nil {
			panic(err)
		}
	}

}

const slabCapacity = 64 // uint64 masked, so 64

type _Slab struct {
	base       unsafe.Pointer
	objectSize int
	mask       atomic.Uint64
}

func (s *_Slab) allocate() (unsafe.Pointer, bool) {
	for {
		mask := s.mask.Load()
		reverse := ^mask
		if reverse == 0 {
			// full
			return nil, false
		}
		offset := bits.TrailingZeros64(reverse)
		addr := unsafe.Add(s.base, offset*s.objectSize)
		if s.mask.CompareAndSwap(mask, mask|(1<<offset)) {
			return addr, true
		}
	}
}

func (s *_Slab) free(ptr unsafe.Pointer) bool {
	offset := (uintptr(ptr) - uintptr(s.base)) / uintptr(s.objectSize)
	for {
		mask := s.mask.Load()
		newMask := mask & ^(uint64(1) << offset)
		if s.mask.CompareAndSwap(mask, newMask) {
			return newMask == 0
		}
	}
}
