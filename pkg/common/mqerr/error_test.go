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

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewError(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		err  *Error
		code uint16
		msg  string
	}{
		{
			name: "internal",
			err:  NewInternalError(ctx, "boom %d", 42),
			code: ErrInternal,
			msg:  "internal error: boom 42",
		},
		{
			name: "invalid arg",
			err:  NewInvalidArg(ctx, "heap limit", -1),
			code: ErrInvalidArg,
			msg:  "invalid argument heap limit, bad value -1",
		},
		{
			name: "bad config",
			err:  NewBadConfig(ctx, "pool-capacity must be >= 0, got %d", -3),
			code: ErrBadConfig,
			msg:  "invalid configuration: pool-capacity must be >= 0, got -3",
		},
		{
			name: "limit exceeded",
			err:  NewMemLimitExceeded(ctx, 600, 1024, 500),
			code: ErrMemLimitExceeded,
			msg:  "memory limit exceeded: requested 600 bytes, limit 1024 bytes, used 500 bytes",
		},
		{
			name: "leak detected",
			err:  NewMemLeakDetected(ctx, 100),
			code: ErrMemLeakDetected,
			msg:  "potential native memory leak: 100 bytes still in use at reset",
		},
		{
			name: "pool out of space",
			err:  NewPoolOutOfSpace(ctx, "test", 512, 1024, 768),
			code: ErrPoolOutOfSpace,
			msg:  "memory pool test out of space: requested 512 bytes, capacity 1024 bytes, in use 768 bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, tt.code, tt.err.ErrorCode())
			assert.Equal(t, tt.msg, tt.err.Error())
			assert.True(t, IsMQErrCode(tt.err, tt.code))
			assert.False(t, tt.err.Succeeded())
		})
	}
}

func TestNoCtxVariants(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, NewOOM(ctx).Error(), NewOOMNoCtx().Error())
	assert.Equal(t,
		NewMemLimitExceeded(ctx, 1, 2, 3).Error(),
		NewMemLimitExceededNoCtx(1, 2, 3).Error())
	assert.Equal(t,
		NewInvalidArg(ctx, "size", 7).Error(),
		NewInvalidArgNoCtx("size", 7).Error())
	assert.True(t, IsMQErrCode(NewPoolClosedNoCtx("p"), ErrPoolClosed))
	assert.True(t, IsMQErrCode(NewThrottleExhaustedNoCtx("tag", 10), ErrThrottleExhausted))
}

func TestIsMQErrCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     uint16
		expected bool
	}{
		{
			name:     "nil is Ok",
			err:      nil,
			code:     Ok,
			expected: true,
		},
		{
			name:     "nil is not an error code",
			err:      nil,
			code:     ErrInternal,
			expected: false,
		},
		{
			name:     "matching code",
			err:      NewOOMNoCtx(),
			code:     ErrOOM,
			expected: true,
		},
		{
			name:     "non matching code",
			err:      NewOOMNoCtx(),
			code:     ErrInternal,
			expected: false,
		},
		{
			name:     "not a mqerr",
			err:      errors.New("some error"),
			code:     ErrInternal,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsMQErrCode(tt.err, tt.code))
		})
	}
}

func TestOkExpectedEOF(t *testing.T) {
	err := GetOkExpectedEOF()
	require.NotNil(t, err)
	assert.True(t, err.Succeeded())
	assert.True(t, IsMQErrCode(err, OkExpectedEOF))
	// static instance, no alloc
	assert.True(t, err == GetOkExpectedEOF())
}

func TestConvertGoError(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, ConvertGoError(ctx, nil))

	me := NewOOMNoCtx()
	assert.True(t, me == ConvertGoError(ctx, me))

	converted := ConvertGoError(ctx, io.EOF)
	assert.True(t, IsMQErrCode(converted, ErrUnexpectedEOF))

	converted = ConvertGoError(ctx, io.ErrUnexpectedEOF)
	assert.True(t, IsMQErrCode(converted, ErrUnexpectedEOF))

	converted = ConvertGoError(ctx, errors.New("some error"))
	assert.True(t, IsMQErrCode(converted, ErrInternal))
}

func TestConvertPanicError(t *testing.T) {
	ctx := context.Background()

	me := NewInvalidArgNoCtx("x", 1)
	assert.True(t, me == ConvertPanicError(ctx, me))

	func() {
		defer func() {
			err := ConvertPanicError(ctx, recover())
			require.NotNil(t, err)
			assert.True(t, IsMQErrCode(err, ErrInternal))
			assert.Contains(t, err.Error(), "panic no free space")
		}()
		panic("no free space")
	}()
}

func TestDowncastError(t *testing.T) {
	me := NewOOMNoCtx()
	assert.True(t, me == DowncastError(me))

	down := DowncastError(errors.New("some error"))
	require.NotNil(t, down)
	assert.True(t, IsMQErrCode(down, ErrInternal))
}

func TestErrorDetail(t *testing.T) {
	err := NewInternalErrorNoCtx("oops")
	assert.Equal(t, "", err.Detail())
	assert.Equal(t, err.Error(), err.Display())

	err = err.WithDetail("while replaying trace row 17")
	assert.Equal(t, "while replaying trace row 17", err.Detail())
	assert.Equal(t, "internal error: oops: while replaying trace row 17", err.Display())
}

func TestNewErrorUnknownCodePanics(t *testing.T) {
	defer func() {
		v := recover()
		require.NotNil(t, v)
		err, ok := v.(*Error)
		require.True(t, ok)
		assert.True(t, IsMQErrCode(err, ErrInternal))
	}()
	newError(context.Background(), 54321)
}
