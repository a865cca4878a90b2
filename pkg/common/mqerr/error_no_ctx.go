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

package mqerr

// NoCtx constructors are for the accounting hot paths.  They do not
// differ from the ctx variants in behavior, only in typing overhead at
// the call sites that have no context to offer.

func NewInternalErrorNoCtx(msg string, args ...any) *Error {
	return NewInternalError(Context(), msg, args...)
}

func NewNotSupportedNoCtx(msg string, args ...any) *Error {
	return NewNotSupported(Context(), msg, args...)
}

func NewOOMNoCtx() *Error {
	return NewOOM(Context())
}

func NewOutOfRangeNoCtx(typ string, msg string, args ...any) *Error {
	return NewOutOfRange(Context(), typ, msg, args...)
}

func NewInvalidArgNoCtx(arg string, val any) *Error {
	return NewInvalidArg(Context(), arg, val)
}

func NewBadConfigNoCtx(msg string, args ...any) *Error {
	return NewBadConfig(Context(), msg, args...)
}

func NewInvalidInputNoCtx(msg string, args ...any) *Error {
	return NewInvalidInput(Context(), msg, args...)
}

func NewInvalidStateNoCtx(msg string, args ...any) *Error {
	return NewInvalidState(Context(), msg, args...)
}

func NewFileNotFoundNoCtx(f string) *Error {
	return NewFileNotFound(Context(), f)
}

func NewUnexpectedEOFNoCtx(f string) *Error {
	return NewUnexpectedEOF(Context(), f)
}

func NewMemLimitExceededNoCtx(requested, limit, used int64) *Error {
	return NewMemLimitExceeded(Context(), requested, limit, used)
}

func NewMemLeakDetectedNoCtx(inuse int64) *Error {
	return NewMemLeakDetected(Context(), inuse)
}

func NewPoolOutOfSpaceNoCtx(pool string, requested, capacity, inuse int64) *Error {
	return NewPoolOutOfSpace(Context(), pool, requested, capacity, inuse)
}

func NewPoolClosedNoCtx(pool string) *Error {
	return NewPoolClosed(Context(), pool)
}

func NewThrottleExhaustedNoCtx(tag string, n int64) *Error {
	return NewThrottleExhausted(Context(), tag, n)
}
