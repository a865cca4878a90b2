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

import "go.uber.org/zap"

func Debug(msg string, fields ...zap.Field) {
	GetSkip1Logger().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	GetSkip1Logger().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetSkip1Logger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetSkip1Logger().Error(msg, fields...)
}

func Panic(msg string, fields ...zap.Field) {
	GetSkip1Logger().Panic(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	GetSkip1Logger().Fatal(msg, fields...)
}

func Debugf(msg string, args ...interface{}) {
	GetSkip1Logger().Sugar().Debugf(msg, args...)
}

func Infof(msg string, args ...interface{}) {
	GetSkip1Logger().Sugar().Infof(msg, args...)
}

func Warnf(msg string, args ...interface{}) {
	GetSkip1Logger().Sugar().Warnf(msg, args...)
}

func Errorf(msg string, args ...interface{}) {
	GetSkip1Logger().Sugar().Errorf(msg, args...)
}

func Panicf(msg string, args ...interface{}) {
	GetSkip1Logger().Sugar().Panicf(msg, args...)
}

func Fatalf(msg string, args ...interface{}) {
	GetSkip1Logger().Sugar().Fatalf(msg, args...)
}
