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
	"unsafe"

	"golang.org/x/sys/unix"
)

func reuseMem(ptr unsafe.Pointer, length int) {
	// no need to clear, re-visiting a MADV_DONTNEED-advised page reads zero
}

func freeMem(ptr unsafe.Pointer, length int) {
	if err := unix.Madvise(
		unsafe.Slice((*byte)(ptr), length),
		unix.MADV_DONTNEED,
	); err != nil {
		panic(err)
	}
}
