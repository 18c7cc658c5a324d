// Package bench runs the configured benchmark phases against every mounted
// filesystem and writes their result tables and plots under the log path.
package bench

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/runningwild/fsbench/pkg/config"
	"github.com/runningwild/fsbench/pkg/engine"
	"github.com/runningwild/fsbench/pkg/errs"
	"github.com/runningwild/fsbench/pkg/fsops"
	"github.com/runningwild/fsbench/pkg/metrics"
	"github.com/runningwild/fsbench/pkg/replay"
	"github.com/runningwild/fsbench/pkg/report"
	"github.com/runningwild/fsbench/pkg/store"
	"github.com/runningwild/fsbench/pkg/sweep"
	"github.com/runningwild/fsbench/pkg/trace"
)

const (
	configFile  = "run_config.yaml"
	metricsFile = "fsbench.prom"
)

// Orchestrator owns the components of one run.
type Orchestrator struct {
	cfg      *config.Config
	logger   *zap.Logger
	out      io.Writer
	driver   *engine.Driver
	sweeper  *sweep.Sweeper
	replayer *replay.Replayer
	store    *store.Store
	metrics  *metrics.Metrics
	dropper  fsops.CacheDropper

	// Cross-filesystem plots, filled as pairs complete.
	behaviour  map[string][]report.Series
	throughput map[sweep.Direction][]report.Series
}

type Option func(*Orchestrator)

// WithOutput sends result tables and progress to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) { o.out = w }
}

// WithStore archives every result table in s.
func WithStore(s *store.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithMetrics records results in m and writes them next to the tables.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithDropper replaces the page cache dropper used by the throughput probe.
func WithDropper(d fsops.CacheDropper) Option {
	return func(o *Orchestrator) { o.dropper = d }
}

func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		cfg:        cfg,
		logger:     logger,
		out:        os.Stdout,
		behaviour:  make(map[string][]report.Series),
		throughput: make(map[sweep.Direction][]report.Series),
	}
	if cfg.DropCaches {
		o.dropper = fsops.SystemDropper{}
	}
	for _, opt := range opts {
		opt(o)
	}

	o.driver = engine.New(logger, o.out)
	o.sweeper = sweep.New(sweep.Config{
		MinSize:    cfg.ProbeMinSize,
		MaxSize:    cfg.ProbeMaxSize,
		Step:       cfg.ProbeStep,
		Repeats:    cfg.ProbeRepeats,
		MaxRuntime: cfg.ProbeMaxRuntime,
		DropCaches: cfg.DropCaches,
	}, logger, o.out, o.dropper)
	o.replayer = replay.New(logger, o.out)
	return o
}

// target is one benchmarked filesystem and where its results go.
type target struct {
	config.Pair
	sink *report.Logger
	run  *store.Run
}

// Run executes the configured phases for every (mount, name) pair in
// order. A fatal error ends the run; results already written stay.
func (o *Orchestrator) Run() error {
	var tr *trace.Trace
	if o.cfg.Workload != "" && (o.cfg.Benchmark == config.Micro || o.cfg.Benchmark == config.Trace) {
		var err error
		if tr, err = trace.Load(o.cfg.Workload); err != nil {
			return err
		}
		s := tr.Summary()
		o.logger.Info("trace loaded",
			zap.String("workload", o.cfg.Workload),
			zap.Int("processes", s.Processes),
			zap.Int("operations", s.Operations),
			zap.Int("shared", s.Shared))
	}

	if err := o.cfg.WriteYAML(filepath.Join(o.cfg.LogPath, configFile)); err != nil {
		o.logger.Warn("could not record the configuration", zap.Error(err))
	}

	for _, pair := range o.cfg.Pairs() {
		t := &target{Pair: pair, sink: report.NewLogger(o.cfg.LogPath, pair.FSName)}
		if o.store != nil {
			run, err := o.store.BeginRun(pair.FSName, pair.Mount, o.cfg.Benchmark.String())
			if err != nil {
				return err
			}
			t.run = run
		}
		logger := o.logger.With(zap.String("fs", pair.FSName), zap.String("mount", pair.Mount))
		logger.Info("benchmarking", zap.Stringer("benchmark", o.cfg.Benchmark))

		if err := o.runTarget(t, tr); err != nil {
			return fmt.Errorf("%s (%s): %w", pair.FSName, pair.Mount, err)
		}
	}

	if err := o.plotAcrossFilesystems(); err != nil {
		return err
	}
	if o.metrics != nil {
		if err := o.metrics.WriteTextfile(filepath.Join(o.cfg.LogPath, metricsFile)); err != nil {
			return err
		}
	}
	fmt.Fprintf(o.out, "results logged to: %s\n", o.cfg.LogPath)
	return nil
}

func (o *Orchestrator) runTarget(t *target, tr *trace.Trace) error {
	switch o.cfg.Benchmark {
	case config.Micro:
		if err := o.microPhase(t, 0); err != nil {
			return err
		}
		if err := o.throughputPhase(t); err != nil {
			return err
		}
		if tr != nil {
			return o.tracePhase(t, tr)
		}
	case config.Behaviour:
		return o.microPhase(t, o.cfg.Iterations)
	case config.Throughput:
		return o.throughputPhase(t)
	case config.Trace:
		if tr == nil {
			return errs.New(errs.InvalidConfig, "the trace benchmark requires a workload")
		}
		return o.tracePhase(t, tr)
	}
	return nil
}

// emit writes res as a CSV table and archives it when a store is set.
func (o *Orchestrator) emit(t *target, name string, res *report.BenchResult) error {
	path, err := t.sink.Log(name, res)
	if err != nil {
		return err
	}
	o.logger.Debug("results written", zap.String("path", path), zap.Int("records", res.Len()))
	if t.run != nil {
		if err := t.run.Save(name, res); err != nil {
			return err
		}
	}
	return nil
}
