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
	"fmt"
	"io"
)

const (
	// 0 - 99 is OK.  They do not contain info, and are special handled
	// using a static instance, no alloc.
	Ok            uint16 = 0
	OkExpectedEOF uint16 = 1 // Expected End Of File

	OkMax uint16 = 99

	// 100 - 199 is Info
	ErrInfo uint16 = 100

	// 200 - 299 is WARNING
	ErrWarn uint16 = 200

	// Group 1: internal errors
	ErrStart        uint16 = 20100
	ErrInternal     uint16 = 20101
	ErrNYI          uint16 = 20102
	ErrOOM          uint16 = 20103
	ErrNotSupported uint16 = 20104

	// Group 2: numeric and arguments
	ErrOutOfRange uint16 = 20200
	ErrInvalidArg uint16 = 20201

	// Group 3: invalid input
	ErrBadConfig    uint16 = 20300
	ErrInvalidInput uint16 = 20301
	ErrParseError   uint16 = 20302
	ErrNoConfig     uint16 = 20303

	// Group 4: unexpected state and io errors
	ErrInvalidState  uint16 = 20400
	ErrFileNotFound  uint16 = 20401
	ErrUnexpectedEOF uint16 = 20402
	ErrInvalidPath   uint16 = 20403

	// Group 5: memory accounting
	ErrMemLimitExceeded  uint16 = 20500
	ErrMemLeakDetected   uint16 = 20501
	ErrPoolOutOfSpace    uint16 = 20502
	ErrPoolClosed        uint16 = 20503
	ErrThrottleExhausted uint16 = 20504

	// ErrEnd, the max value of error code
	ErrEnd uint16 = 65535
)

var errorMsgRefer = map[uint16]string{
	// OK code not in this table.  They do not carry a message, as
	// they are OK -- should not leak back to the caller as failures.

	// Info
	ErrInfo: "info: %s",

	// Warn
	ErrWarn: "warning: %s",

	// Group 1: internal errors
	ErrStart:        "internal error: error code start",
	ErrInternal:     "internal error: %s",
	ErrNYI:          "%s is not yet implemented",
	ErrOOM:          "error: out of memory",
	ErrNotSupported: "not supported: %s",

	// Group 2: numeric and arguments
	ErrOutOfRange: "value out of range: %s %s",
	ErrInvalidArg: "invalid argument %s, bad value %s",

	// Group 3: invalid input
	ErrBadConfig:    "invalid configuration: %s",
	ErrInvalidInput: "invalid input: %s",
	ErrParseError:   "parse error: %s",
	ErrNoConfig:     "config not found: %s",

	// Group 4: unexpected state or file io error
	ErrInvalidState:  "invalid state %s",
	ErrFileNotFound:  "file %s is not found",
	ErrUnexpectedEOF: "unexpected end of file %s",
	ErrInvalidPath:   "invalid file path %s",

	// Group 5: memory accounting
	ErrMemLimitExceeded:  "memory limit exceeded: requested %d bytes, limit %d bytes, used %d bytes",
	ErrMemLeakDetected:   "potential native memory leak: %d bytes still in use at reset",
	ErrPoolOutOfSpace:    "memory pool %s out of space: requested %d bytes, capacity %d bytes, in use %d bytes",
	ErrPoolClosed:        "memory pool %s has been closed",
	ErrThrottleExhausted: "memory throttler %s exhausted: cannot admit %d bytes",

	// Group End: max value of the error code
	ErrEnd: "internal error: end of errcode code",
}

func newError(ctx context.Context, code uint16, args ...any) *Error {
	var err *Error
	format, has := errorMsgRefer[code]
	if !has {
		panic(NewInternalError(ctx, "not exist error code: %d", code))
	}
	if len(args) == 0 {
		err = &Error{
			code:    code,
			message: format,
		}
	} else {
		err = &Error{
			code:    code,
			message: fmt.Sprintf(format, args...),
		}
	}
	return err
}

// Error is the error type used across the module.  Errors are built on
// allocation hot paths, so the type stays small and construction does
// no logging and takes no stack trace.
type Error struct {
	code    uint16
	message string
	detail  string
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) Detail() string {
	return e.detail
}

func (e *Error) Display() string {
	if len(e.detail) == 0 {
		return e.message
	}
	return fmt.Sprintf("%s: %s", e.message, e.detail)
}

func (e *Error) ErrorCode() uint16 {
	return e.code
}

// WithDetail attaches free-form detail to the error.  The detail is not
// part of the message and only shows up in Display.
func (e *Error) WithDetail(detail string) *Error {
	e.detail = detail
	return e
}

func (e *Error) Succeeded() bool {
	return e.code < OkMax
}

func IsMQErrCode(e error, rc uint16) bool {
	if e == nil {
		return rc == Ok
	}

	me, ok := e.(*Error)
	if !ok {
		// This is not a mqerr
		return false
	}
	return me.code == rc
}

func DowncastError(e error) *Error {
	if err, ok := e.(*Error); ok {
		return err
	}
	return newError(Context(), ErrInternal, fmt.Sprintf("downcast error failed: %v", e))
}

// ConvertPanicError converts a runtime panic to internal error.
func ConvertPanicError(ctx context.Context, v interface{}) *Error {
	if e, ok := v.(*Error); ok {
		return e
	}
	return newError(ctx, ErrInternal, fmt.Sprintf("panic %v: %s", v, callers(3)))
}

// ConvertGoError converts a go error into a mqerr.
// Note here we must return error, because nil error
// is the same as nil *Error -- Go strangeness.
func ConvertGoError(ctx context.Context, err error) error {
	// nil is nil
	if err == nil {
		return err
	}

	// already a mqerr, return it as is
	if _, ok := err.(*Error); ok {
		return err
	}

	// Convert a few well known os/go error.
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		// if io.EOF reaches here, we believe it is not expected.
		return NewUnexpectedEOF(ctx, err.Error())
	}

	return NewInternalError(ctx, "convert go error to mqerr %v", err)
}

// Special handling of OK code.  These are not errors, but are used to
// signal different success conditions, for example the expected end of
// a replayed trace.  The paths that return them are tight loops, so we
// cannot afford to new an Error every time.  Note that exactly because
// of these, Ok code does not have any contextual info.  It is just a
// code.
//
// For these, we have a local var, and caller can use GetOkXXX() to get
// *Error.  The returned *Error can be tested with either
//
//	   if err == GetOkXXX()
//	or if mqerr.IsMQErrCode(err, mqerr.OkXXX)
//
// They are both fast, one with less typing and the other is consistent
// with other error code checking.
var errOkExpectedEOF = Error{OkExpectedEOF, "ExpectedEOF", ""}

func GetOkExpectedEOF() *Error {
	return &errOkExpectedEOF
}

func NewInfo(ctx context.Context, msg string) *Error {
	return newError(ctx, ErrInfo, msg)
}

func NewWarn(ctx context.Context, msg string) *Error {
	return newError(ctx, ErrWarn, msg)
}

func NewInternalError(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInternal, xmsg)
}

func NewNYI(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrNYI, xmsg)
}

func NewNotSupported(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrNotSupported, xmsg)
}

func NewOOM(ctx context.Context) *Error {
	return newError(ctx, ErrOOM)
}

func NewOutOfRange(ctx context.Context, typ string, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrOutOfRange, typ, xmsg)
}

func NewInvalidArg(ctx context.Context, arg string, val any) *Error {
	return newError(ctx, ErrInvalidArg, arg, fmt.Sprintf("%v", val))
}

func NewBadConfig(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrBadConfig, xmsg)
}

func NewInvalidInput(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInvalidInput, xmsg)
}

func NewParseError(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrParseError, xmsg)
}

func NewNoConfig(ctx context.Context, f string) *Error {
	return newError(ctx, ErrNoConfig, f)
}

func NewInvalidState(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInvalidState, xmsg)
}

func NewFileNotFound(ctx context.Context, f string) *Error {
	return newError(ctx, ErrFileNotFound, f)
}

func NewUnexpectedEOF(ctx context.Context, f string) *Error {
	return newError(ctx, ErrUnexpectedEOF, f)
}

func NewInvalidPath(ctx context.Context, f string) *Error {
	return newError(ctx, ErrInvalidPath, f)
}

func NewMemLimitExceeded(ctx context.Context, requested, limit, used int64) *Error {
	return newError(ctx, ErrMemLimitExceeded, requested, limit, used)
}

func NewMemLeakDetected(ctx context.Context, inuse int64) *Error {
	return newError(ctx, ErrMemLeakDetected, inuse)
}

func NewPoolOutOfSpace(ctx context.Context, pool string, requested, capacity, inuse int64) *Error {
	return newError(ctx, ErrPoolOutOfSpace, pool, requested, capacity, inuse)
}

func NewPoolClosed(ctx context.Context, pool string) *Error {
	return newError(ctx, ErrPoolClosed, pool)
}

func NewThrottleExhausted(ctx context.Context, tag string, n int64) *Error {
	return newError(ctx, ErrThrottleExhausted, tag, n)
}
