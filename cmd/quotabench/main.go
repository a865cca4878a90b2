// Copyright 2025 LunarisDB
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

// quotabench drives the memquota accounting stack the way an embedding
// service would: a pool of workers allocating against per worker
// trackers over one shared pool, or a recorded trace replayed against a
// single tracker. It reports pool stats, counter totals and an
// allocation size profile at the end of the run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lunarisdb/memquota/pkg/common/mtrack"
	"github.com/lunarisdb/memquota/pkg/common/rscthrottler"
	"github.com/lunarisdb/memquota/pkg/config"
	"github.com/lunarisdb/memquota/pkg/logutil"
	"github.com/lunarisdb/memquota/pkg/perfcounter"
	"github.com/lunarisdb/memquota/pkg/util/stats"
)

var (
	configFile = flag.String("cfg", "", "toml configuration, built in defaults apply when empty")
)

var statsFamilyName = "memquota counter"

func waitSignal() {
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGTERM, syscall.SIGINT)
	<-sigchan
}

func cleanup() {
	fmt.Println("\rBye!")
}

func main() {
	flag.Parse()

	qp := &config.QuotaParameters{}
	if *configFile != "" {
		var err error
		qp, err = config.LoadQuotaParameters(*configFile)
		if err != nil {
			panic(fmt.Sprintf("failed to parse config from %s, error: %s", *configFile, err.Error()))
		}
	} else {
		qp.SetDefaultValues()
	}

	logutil.SetupLogger(qp.LogConfig())

	pool, err := mtrack.NewSharedPool(qp.PoolName, qp.PoolCapacity)
	if err != nil {
		fmt.Printf("create shared pool failed, %v", err)
		panic(err)
	}
	defer mtrack.DeletePool(pool)

	var tracked mtrack.Pool = pool
	if qp.MetricToProm {
		startStatusServer(qp.StatusPort)
		tracked = mtrack.NewMetricsPool(pool,
			heapReservedCounter, nativeReservedCounter, poolInuseGauge, poolDeniedCounter)
	}

	throttler := rscthrottler.NewMemThrottler("quotabench", qp.ThrottleRatio,
		rscthrottler.WithPool(pool))

	pu := config.NewParameterUnit(qp, pool, throttler)
	ctx := context.WithValue(context.Background(), config.ParameterUnitKey, pu)

	// the run counter rides the context, the global set catches it all
	runCounter := new(perfcounter.CounterSet)
	ctx = perfcounter.WithCounterSet(ctx, runCounter)

	stats.Register(statsFamilyName,
		stats.WithLogExporter(perfcounter.NewCounterLogExporter(perfcounter.Global())))
	defer stats.Unregister(statsFamilyName)

	writer := stats.NewLogWriter(&stats.DefaultRegistry,
		time.Duration(qp.StatsGatherInterval)*time.Second)
	writer.Start(ctx)
	defer func() {
		if ch, ok := writer.Stop(); ok {
			<-ch
		}
	}()

	rep := newReporter()
	bench := newWorkload(qp, tracked, throttler, rep)

	if qp.TracePath != "" {
		if err := bench.replay(ctx, qp.TracePath); err != nil {
			fmt.Printf("replay %s failed, %v", qp.TracePath, err)
			panic(err)
		}
	} else {
		bench.run(ctx)
	}
	bench.stop()

	rep.write(pool, runCounter)
	throttler.PrintUsage()

	if qp.MetricToProm {
		logutil.Infof("status server still on :%d, ctrl+c to exit", qp.StatusPort)
		waitSignal()
	}
	cleanup()
}
