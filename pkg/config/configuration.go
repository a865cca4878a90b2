// Copyright 2021 LunarisDB
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

package config

import (
	"context"

	"github.com/BurntSushi/toml"

	"github.com/lunarisdb/memquota/pkg/common/mqerr"
	"github.com/lunarisdb/memquota/pkg/common/mtrack"
	"github.com/lunarisdb/memquota/pkg/common/rscthrottler"
	"github.com/lunarisdb/memquota/pkg/logutil"
)

type ConfigurationKeyType int

const (
	ParameterUnitKey ConfigurationKeyType = 1
)

// QuotaParameters of the quota service
type QuotaParameters struct {
	Version string

	//name the shared pool registers under. default: memquota
	PoolName string `toml:"poolName"`

	//shared pool capacity in bytes. 0 means unbounded. default: 1 << 32 = 4294967296
	PoolCapacity int64 `toml:"poolCapacity"`

	//per tracker heap limit in bytes. 0 means unlimited. default: 0
	DefaultHeapLimit int64 `toml:"defaultHeapLimit"`

	//tracker batch grab size in bytes. default: 1024
	GrabSize int64 `toml:"grabSize"`

	//throttler budget as a ratio of the pool capacity. default: 0.9
	ThrottleRatio float64 `toml:"throttleRatio"`

	//default is true. if true, metrics can be scraped through host:statusPort/metrics endpoint
	MetricToProm bool `toml:"metricToProm"`

	//statusPort defines which port the status server (for metric etc.) listens on
	StatusPort int64 `toml:"statusPort"`

	//stats log gather interval in seconds. default: 15
	StatsGatherInterval int64 `toml:"statsGatherInterval"`

	//default is 'info'. the level of log.
	LogLevel string `toml:"logLevel"`

	//default is 'console'. the format of log.
	LogFormat string `toml:"logFormat"`

	//default is ''. the file
	LogFilename string `toml:"logFilename"`

	//default is 512MB. the maximum of log file size
	LogMaxSize int64 `toml:"logMaxSize"`

	//default is 0. the maximum days of log file to be kept
	LogMaxDays int64 `toml:"logMaxDays"`

	//default is 0. the maximum numbers of log file to be retained
	LogMaxBackups int64 `toml:"logMaxBackups"`

	//count of worker goroutines driving trackers. default: 8
	WorkerCount int64 `toml:"workerCount"`

	//allocations each worker performs. default: 10000
	OpsPerWorker int64 `toml:"opsPerWorker"`

	//largest single allocation a worker requests. default: 65536
	MaxAllocSize int64 `toml:"maxAllocSize"`

	//a held allocation is released once every releaseRatio ops on average. default: 4
	ReleaseRatio int64 `toml:"releaseRatio"`

	//one op in nativeRatio goes to the native arena. default: 8
	NativeRatio int64 `toml:"nativeRatio"`

	//a CSV trace to replay instead of the random workload. '.lz4' accepted. default: ''
	TracePath string `toml:"tracePath"`
}

func (qp *QuotaParameters) SetDefaultValues() {
	if qp.PoolName == "" {
		qp.PoolName = "memquota"
	}
	if qp.PoolCapacity == 0 {
		qp.PoolCapacity = 1 << 32
	}
	if qp.GrabSize == 0 {
		qp.GrabSize = mtrack.DefaultGrabSize
	}
	if qp.ThrottleRatio == 0 {
		qp.ThrottleRatio = 0.9
	}
	if qp.StatusPort == 0 {
		qp.StatusPort = 7001
	}
	if qp.StatsGatherInterval == 0 {
		qp.StatsGatherInterval = 15
	}
	if qp.LogLevel == "" {
		qp.LogLevel = "info"
	}
	if qp.LogFormat == "" {
		qp.LogFormat = "console"
	}
	if qp.LogMaxSize == 0 {
		qp.LogMaxSize = 512
	}
	if qp.WorkerCount == 0 {
		qp.WorkerCount = 8
	}
	if qp.OpsPerWorker == 0 {
		qp.OpsPerWorker = 10000
	}
	if qp.MaxAllocSize == 0 {
		qp.MaxAllocSize = 64 * mtrack.KB
	}
	if qp.ReleaseRatio == 0 {
		qp.ReleaseRatio = 4
	}
	if qp.NativeRatio == 0 {
		qp.NativeRatio = 8
	}
}

func (qp *QuotaParameters) Validate() error {
	if qp.PoolCapacity < 0 {
		return mqerr.NewBadConfigNoCtx("poolCapacity must not be negative")
	}
	if qp.DefaultHeapLimit < 0 {
		return mqerr.NewBadConfigNoCtx("defaultHeapLimit must not be negative")
	}
	if qp.GrabSize < 0 {
		return mqerr.NewBadConfigNoCtx("grabSize must not be negative")
	}
	if qp.ThrottleRatio <= 0 || qp.ThrottleRatio > 1 {
		return mqerr.NewBadConfigNoCtx("throttleRatio must be in (0, 1]")
	}
	if qp.WorkerCount <= 0 {
		return mqerr.NewBadConfigNoCtx("workerCount must be positive")
	}
	if qp.OpsPerWorker <= 0 {
		return mqerr.NewBadConfigNoCtx("opsPerWorker must be positive")
	}
	if qp.MaxAllocSize <= 0 {
		return mqerr.NewBadConfigNoCtx("maxAllocSize must be positive")
	}
	if qp.ReleaseRatio <= 0 {
		return mqerr.NewBadConfigNoCtx("releaseRatio must be positive")
	}
	if qp.NativeRatio <= 0 {
		return mqerr.NewBadConfigNoCtx("nativeRatio must be positive")
	}
	return nil
}

// LogConfig maps the log fields onto the logger setup.
func (qp *QuotaParameters) LogConfig() *logutil.LogConfig {
	return &logutil.LogConfig{
		Level:      qp.LogLevel,
		Format:     qp.LogFormat,
		Filename:   qp.LogFilename,
		MaxSize:    int(qp.LogMaxSize),
		MaxDays:    int(qp.LogMaxDays),
		MaxBackups: int(qp.LogMaxBackups),
	}
}

// LoadQuotaParameters reads the toml file, fills defaults and
// validates.
func LoadQuotaParameters(configFile string) (*QuotaParameters, error) {
	qp := &QuotaParameters{}
	if _, err := toml.DecodeFile(configFile, qp); err != nil {
		return nil, err
	}
	qp.SetDefaultValues()
	if err := qp.Validate(); err != nil {
		return nil, err
	}
	return qp, nil
}

type ParameterUnit struct {
	SV *QuotaParameters

	//shared parent pool
	Pool *mtrack.SharedPool

	//admission throttler
	Throttler *rscthrottler.MemThrottler
}

func NewParameterUnit(sv *QuotaParameters, pool *mtrack.SharedPool, throttler *rscthrottler.MemThrottler) *ParameterUnit {
	return &ParameterUnit{
		SV:        sv,
		Pool:      pool,
		Throttler: throttler,
	}
}

// GetParameterUnit gets the configuration from the context.
func GetParameterUnit(ctx context.Context) *ParameterUnit {
	pu := ctx.Value(ParameterUnitKey).(*ParameterUnit)
	if pu == nil {
		panic("parameter unit is invalid")
	}
	return pu
}
