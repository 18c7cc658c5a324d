// Package engine drives a single operation at maximum rate for a fixed
// window and hands the latency sample to the analyzer.
package engine

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/runningwild/fsbench/pkg/analyze"
	"github.com/runningwild/fsbench/pkg/errs"
	"github.com/runningwild/fsbench/pkg/format"
	"github.com/runningwild/fsbench/pkg/progress"
	"github.com/runningwild/fsbench/pkg/stats"
)

// stableTolerance is the relative error allowed around the behaviour trend.
const stableTolerance = 0.1

// Driver runs measurements one at a time.
type Driver struct {
	Logger   *zap.Logger
	Out      io.Writer // Progress surface
	Analyzer analyze.Analyzer
}

// New returns a driver whose analyzer takes nanosecond latencies.
func New(logger *zap.Logger, out io.Writer) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = os.Stdout
	}
	a := analyze.Default()
	a.Unit = time.Nanosecond
	return &Driver{Logger: logger, Out: out, Analyzer: a}
}

type workerResult struct {
	latencies  []float64 // ns
	timestamps []time.Time
	count      uint64
	errors     uint64
	hist       *stats.Histogram
	err        error
}

// Measure runs fn on one dedicated worker until params.RunTime elapses (or
// params.MaxIterations successes), then analyzes the successful latencies.
// Failed calls are logged and counted but never enter the sample.
func (d *Driver) Measure(params Params, fn OpFunc) (*Measurement, error) {
	if params.RunTime <= 0 {
		return nil, errs.New(errs.InvalidConfig, "run time must be positive, got %v", params.RunTime)
	}
	logger := d.Logger.With(zap.String("op", params.Name), zap.String("fs", params.Label))
	sp := progress.Start(d.Out, fmt.Sprintf("%s (%s)", params.Name, params.Label))

	results := make(chan workerResult, 1)
	done := make(chan struct{})
	capped := make(chan struct{})

	start := time.Now()
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer func() {
			if r := recover(); r != nil {
				results <- workerResult{err: errs.New(errs.SyncError, "%s worker panicked: %v", params.Name, r)}
			}
		}()
		results <- d.runWorker(params, fn, logger, done, capped)
	}()

	if params.MaxIterations > 0 {
		t := time.NewTimer(params.RunTime)
		select {
		case <-t.C:
		case <-capped:
		}
		t.Stop()
	} else {
		time.Sleep(params.RunTime)
	}
	close(done)
	res := <-results
	elapsed := time.Since(start)

	if res.err != nil {
		sp.AbandonWithMessage(fmt.Sprintf("%s (%s) failed", params.Name, params.Label))
		return nil, res.err
	}
	sp.FinishWithMessage(fmt.Sprintf("%s (%s): %d ops, %d errors", params.Name, params.Label, res.count, res.errors))

	logger.Debug("measurement finished",
		zap.Uint64("count", res.count),
		zap.Uint64("errors", res.errors),
		zap.Int64("unrecorded", res.hist.Dropped()),
		zap.Duration("elapsed", elapsed))

	data, err := d.Analyzer.Analyze(res.latencies)
	if err != nil {
		return nil, fmt.Errorf("%s (%s) after %d successful ops: %w", params.Name, params.Label, res.count, err)
	}

	m := &Measurement{
		Params:   params,
		Elapsed:  elapsed,
		Count:    res.count,
		Errors:   res.errors,
		Data:     data,
		Unit:     format.UnitOf(d.Analyzer.Seconds(data.MeanLB)),
		Behavior: analyze.OpsInWindow(res.timestamps, params.RunTime),
		Latency:  res.hist,
		analyzer: d.Analyzer,
	}
	m.Trend = analyze.FindDominantSlope(m.Behavior, stableTolerance)
	return m, nil
}

func (d *Driver) runWorker(params Params, fn OpFunc, logger *zap.Logger, done, capped chan struct{}) workerResult {
	res := workerResult{
		latencies:  make([]float64, 0, 1<<16),
		timestamps: make([]time.Time, 0, 1<<16),
		hist:       stats.NewHistogram(),
	}
	for {
		select {
		case <-done:
			return res
		default:
		}

		t0 := time.Now()
		err := fn()
		end := time.Now()
		if err != nil {
			res.errors++
			logger.Warn("operation failed", zap.Error(err))
			continue
		}

		lat := end.Sub(t0)
		res.latencies = append(res.latencies, float64(lat.Nanoseconds()))
		res.timestamps = append(res.timestamps, end)
		res.hist.Record(lat)
		res.count++

		if params.MaxIterations > 0 && res.count >= params.MaxIterations {
			close(capped)
			return res
		}
	}
}
