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
	"sync"
	"testing"

	"github.com/lni/goutils/leaktest"
	"github.com/stretchr/testify/require"

	"github.com/lunarisdb/memquota/pkg/common/mqerr"
	"github.com/lunarisdb/memquota/pkg/common/mtrack"
)

func TestClassSizes(t *testing.T) {
	require.Equal(t, minClassSize, classSizes[0])
	for i := 1; i < len(classSizes); i++ {
		require.True(t, classSizes[i] > classSizes[i-1], "classes must grow")
		require.True(t, classSizes[i] <= maxClassSize)
	}

	require.Equal(t, 0, requestSizeToClass(1))
	require.Equal(t, 0, requestSizeToClass(minClassSize))
	require.Equal(t, 1, requestSizeToClass(minClassSize+1))
	last := len(classSizes) - 1
	require.Equal(t, last, requestSizeToClass(classSizes[last]))
	require.Equal(t, -1, requestSizeToClass(classSizes[last]+1))
}

func TestArenaAllocFree(t *testing.T) {
	tracker := mtrack.NewUnlimitedTracker()
	a := New(tracker)

	slice, handle, err := a.Alloc(100)
	require.NoError(t, err)
	require.Equal(t, minClassSize, len(slice), "rounded up to the class")
	require.Equal(t, int64(minClassSize), tracker.UsedNativeMemory())

	for i := range slice {
		slice[i] = byte(i)
	}

	handle.Free()
	require.Equal(t, int64(0), tracker.UsedNativeMemory())
	require.NoError(t, tracker.Reset())
}

func TestArenaZero(t *testing.T) {
	a := New(nil)
	slice, handle, err := a.Alloc(0)
	require.NoError(t, err)
	require.Nil(t, slice)
	handle.Free()

	_, _, err = a.Alloc(-1)
	require.True(t, mqerr.IsMQErrCode(err, mqerr.ErrInvalidArg), "got %v", err)
}

func TestArenaLarge(t *testing.T) {
	tracker := mtrack.NewUnlimitedTracker()
	a := New(tracker)

	const size = 2 << 20
	slice, handle, err := a.Alloc(size)
	require.NoError(t, err)
	require.Equal(t, size, len(slice))
	require.Equal(t, int64(size), tracker.UsedNativeMemory())

	slice[0] = 1
	slice[size-1] = 2

	handle.Free()
	require.Equal(t, int64(0), tracker.UsedNativeMemory())
}

// A buffer must come back zeroed even when its object is recycled.
func TestArenaCleared(t *testing.T) {
	a := New(nil)

	slice, handle, err := a.Alloc(minClassSize)
	require.NoError(t, err)
	for i := range slice {
		slice[i] = 0xff
	}
	handle.Free()

	slice, handle, err = a.Alloc(minClassSize)
	require.NoError(t, err)
	for i := range slice {
		require.Equal(t, byte(0), slice[i], "dirty byte at %d", i)
	}
	handle.Free()
}

func TestArenaDenied(t *testing.T) {
	pool, err := mtrack.NewSharedPool("test-arena-denied", 64)
	require.NoError(t, err)
	defer mtrack.DeletePool(pool)
	tracker, err := mtrack.NewLocalTracker(pool, 0, 0)
	require.NoError(t, err)
	a := New(tracker)

	slice, _, err := a.Alloc(1)
	require.True(t, mqerr.IsMQErrCode(err, mqerr.ErrPoolOutOfSpace), "got %v", err)
	require.Nil(t, slice)
	// the native counter keeps the denied reservation, nothing was mapped
	require.Equal(t, int64(minClassSize), tracker.UsedNativeMemory())
}

func TestArenaSlabTurnover(t *testing.T) {
	tracker := mtrack.NewUnlimitedTracker()
	a := New(tracker)

	// more objects than one slab holds
	const n = slabCapacity + 8
	handles := make([]Handle, 0, n)
	seen := make(map[*byte]bool)
	for i := 0; i < n; i++ {
		slice, handle, err := a.Alloc(minClassSize)
		require.NoError(t, err)
		require.False(t, seen[&slice[0]], "object %d handed out twice", i)
		seen[&slice[0]] = true
		handles = append(handles, handle)
	}
	require.Equal(t, int64(n*minClassSize), tracker.UsedNativeMemory())

	for _, h := range handles {
		h.Free()
	}
	require.Equal(t, int64(0), tracker.UsedNativeMemory())

	// the class serves again after a full drain
	slice, handle, err := a.Alloc(minClassSize)
	require.NoError(t, err)
	require.Equal(t, minClassSize, len(slice))
	handle.Free()
}

// test race
func TestArenaForRace(t *testing.T) {
	defer leaktest.AfterTest(t)()
	tracker := mtrack.NewUnlimitedTracker()
	a := New(tracker)

	var wg sync.WaitGroup
	run := func(seed int) {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			size := (seed+i)%4096 + 1
			slice, handle, err := a.Alloc(size)
			if err != nil {
				panic(err)
			}
			slice[0] = byte(i)
			slice[len(slice)-1] = byte(i)
			handle.Free()
		}
	}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go run(i * 997)
	}
	wg.Wait()

	require.Equal(t, int64(0), tracker.UsedNativeMemory())
	require.NoError(t, tracker.Reset())
}

func BenchmarkAllocFree(b *testing.B) {
	a := New(mtrack.NewUnlimitedTracker())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, handle, err := a.Alloc(4096)
		if err != nil {
			b.Fatal(err)
		}
		handle.Free()
	}
}

func BenchmarkParallelAllocFree(b *testing.B) {
	a := New(mtrack.NewUnlimitedTracker())
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for size := 1; pb.Next(); size++ {
			_, handle, err := a.Alloc(size % 65536)
			if err != nil {
				b.Fatal(err)
			}
			handle.Free()
		}
	})
}
