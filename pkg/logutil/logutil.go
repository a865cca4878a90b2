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

package logutil

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	_globalLogger atomic.Value // *zap.Logger
	_skip1Logger  atomic.Value // *zap.Logger
)

func init() {
	SetupLogger(&LogConfig{Level: "info", Format: "console"})
}

// SetupLogger initializes the global logger from the given config.  It
// can be called again after init, later calls replace the global
// logger.
func SetupLogger(conf *LogConfig) {
	replaceGlobalLogger(newRawLogger(conf))
}

func replaceGlobalLogger(logger *zap.Logger) {
	_globalLogger.Store(logger)
	_skip1Logger.Store(logger.WithOptions(zap.AddCallerSkip(1)))
	zap.ReplaceGlobals(logger)
}

// GetGlobalLogger returns the current global logger.
func GetGlobalLogger() *zap.Logger {
	return _globalLogger.Load().(*zap.Logger)
}

// GetSkip1Logger returns the global logger with one extra caller skip,
// for the package level helpers below.
func GetSkip1Logger() *zap.Logger {
	return _skip1Logger.Load().(*zap.Logger)
}

// Adjust returns the given logger if it is not nil, otherwise the
// global logger with the extra options applied.  Components that take
// an optional logger use it to fall back to the global one.
func Adjust(logger *zap.Logger, options ...zap.Option) *zap.Logger {
	if logger != nil {
		return logger
	}
	return GetGlobalLogger().WithOptions(options...)
}
