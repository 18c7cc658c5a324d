package bench

import (
	"fmt"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/runningwild/fsbench/pkg/engine"
	"github.com/runningwild/fsbench/pkg/errs"
	"github.com/runningwild/fsbench/pkg/micro"
	"github.com/runningwild/fsbench/pkg/replay"
	"github.com/runningwild/fsbench/pkg/report"
	"github.com/runningwild/fsbench/pkg/sweep"
	"github.com/runningwild/fsbench/pkg/trace"
)

const (
	opsTable        = "ops_per_second"
	throughputDir   = "throughput"
	traceDir        = "trace_workload"
	opTimesTable    = "op_times_trace_workload"
	accumulatedPlot = "accumulated_times"
)

// microPhase times every micro operation on its own fresh root. A cap of
// zero runs each op for the configured time.
func (o *Orchestrator) microPhase(t *target, maxIterations uint64) error {
	ops := report.New(engine.OpsHeader...)
	var bars []report.Bar

	for _, op := range micro.All {
		w := micro.Workload{
			Op:          op,
			Root:        filepath.Join(t.Mount, op.String()),
			IOSize:      o.cfg.IOSize,
			FilesetSize: o.cfg.FilesetSize,
		}
		if err := w.Setup(o.out); err != nil {
			return fmt.Errorf("setup of %s: %w", op, err)
		}
		fn, err := w.OpFunc()
		if err != nil {
			return err
		}

		params := engine.Params{
			Name:          op.String(),
			Label:         t.FSName,
			RunTime:       o.cfg.RunTime,
			MaxIterations: maxIterations,
		}
		if op.MovesData() {
			params.IOSize = o.cfg.IOSize
		}
		m, err := o.driver.Measure(params, fn)
		if errs.KindOf(err) == errs.InvalidConfig {
			o.logger.Error("skipping operation", zap.String("op", op.String()), zap.Error(err))
			fmt.Fprintf(o.out, "%s: %v\n\n", op, err)
			continue
		}
		if err != nil {
			return err
		}
		m.Print(o.out)

		if err := ops.Add(m.OpsRecord()); err != nil {
			return err
		}
		bars = append(bars, report.Bar{
			Label: op.String(),
			Value: m.Data.OpsPerSecond,
			Low:   m.Data.OpsPerSecondLB,
			High:  m.Data.OpsPerSecondUB,
		})
		if err := o.emitMeasurement(t, m); err != nil {
			return err
		}
		if o.metrics != nil {
			o.metrics.ObserveMeasurement(t.FSName, m)
		}
	}

	if err := o.emit(t, opsTable, ops); err != nil {
		return err
	}
	chart := report.Chart{Title: t.FSName + " operations per second", XLabel: "operation", YLabel: "ops/s"}
	return chart.Bars(t.sink.PlotPath(opsTable), bars...)
}

// emitMeasurement writes the behaviour and iteration tables of one op.
func (o *Orchestrator) emitMeasurement(t *target, m *engine.Measurement) error {
	behaviour := report.New(engine.BehaviorHeader...)
	if err := behaviour.AddAll(m.BehaviorRecords()); err != nil {
		return err
	}
	if err := o.emit(t, m.Name, behaviour); err != nil {
		return err
	}
	o.behaviour[m.Name] = append(o.behaviour[m.Name], report.Series{Name: t.FSName, Points: m.Behavior})

	name := m.Name + "_iteration_times"
	iterations := report.New(engine.IterationHeader(m.Unit)...)
	if err := iterations.AddAll(m.IterationRecords()); err != nil {
		return err
	}
	if err := o.emit(t, name, iterations); err != nil {
		return err
	}
	chart := report.Chart{
		Title:  fmt.Sprintf("%s %s bootstrap means", t.FSName, m.Name),
		XLabel: "iteration",
		YLabel: fmt.Sprintf("time (%s)", m.Unit),
	}
	return chart.Points(t.sink.PlotPath(name), report.Series{Name: t.FSName, Points: m.IterationPoints()})
}

// throughputPhase probes reads and then writes over one shared set of files.
func (o *Orchestrator) throughputPhase(t *target) error {
	root := filepath.Join(t.Mount, throughputDir)
	if err := o.sweeper.Setup(root); err != nil {
		return fmt.Errorf("throughput setup: %w", err)
	}
	for _, dir := range []sweep.Direction{sweep.Read, sweep.Write} {
		res, err := o.sweeper.Run(dir, root, t.FSName)
		if err != nil {
			return err
		}
		res.Print(o.out)

		table := report.New(sweep.Header...)
		if err := table.AddAll(res.Records()); err != nil {
			return err
		}
		if err := o.emit(t, dir.String()+"_throughput", table); err != nil {
			return err
		}
		o.throughput[dir] = append(o.throughput[dir], report.Series{Name: t.FSName, Points: res.MiBPoints()})
		if o.metrics != nil {
			o.metrics.ObserveThroughput(t.FSName, res)
		}
	}
	return nil
}

// tracePhase replays tr on a fresh pre-image of its files.
func (o *Orchestrator) tracePhase(t *target, tr *trace.Trace) error {
	base := filepath.Join(t.Mount, traceDir)
	if err := o.replayer.Setup(base, tr.Files); err != nil {
		return fmt.Errorf("trace setup: %w", err)
	}
	rep, err := o.replayer.Run(base, t.FSName, tr)
	if err != nil {
		return err
	}
	rep.Print(o.out)
	if o.metrics != nil {
		o.metrics.ObserveReplay(t.FSName, rep)
	}

	recs, u := rep.OpTimeRecords()
	opTimes := report.New(replay.OpTimeHeader(u)...)
	if err := opTimes.AddAll(recs); err != nil {
		return err
	}
	if err := o.emit(t, opTimesTable, opTimes); err != nil {
		return err
	}
	chart := report.Chart{Title: t.FSName + " trace op times", XLabel: "op", YLabel: fmt.Sprintf("time (%s)", u)}
	if err := chart.Points(t.sink.PlotPath(opTimesTable), rep.OpTimeSeries(u)); err != nil {
		return err
	}

	perPID, u := rep.AccumulatedRecords()
	for _, p := range perPID {
		table := report.New(replay.AccumulatedHeader(u)...)
		if err := table.AddAll(p.Records); err != nil {
			return err
		}
		if err := o.emit(t, fmt.Sprintf("%d_%s", p.PID, accumulatedPlot), table); err != nil {
			return err
		}
	}
	chart = report.Chart{Title: t.FSName + " accumulated trace time", XLabel: fmt.Sprintf("time (%s)", u), YLabel: "ops"}
	return chart.Line(t.sink.PlotPath(accumulatedPlot), rep.AccumulatedSeries(u)...)
}

// plotAcrossFilesystems draws one chart per op and direction comparing
// every filesystem of the run.
func (o *Orchestrator) plotAcrossFilesystems() error {
	ops := make([]string, 0, len(o.behaviour))
	for op := range o.behaviour {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		chart := report.Chart{Title: op, XLabel: "time (s)", YLabel: "ops"}
		if err := chart.Line(filepath.Join(o.cfg.LogPath, op+".svg"), o.behaviour[op]...); err != nil {
			return err
		}
	}
	for _, dir := range []sweep.Direction{sweep.Read, sweep.Write} {
		series, ok := o.throughput[dir]
		if !ok {
			continue
		}
		chart := report.Chart{Title: dir.String() + " throughput", XLabel: "file size (MiB)", YLabel: "MiB/s"}
		if err := chart.Line(filepath.Join(o.cfg.LogPath, dir.String()+"_throughput.svg"), series...); err != nil {
			return err
		}
	}
	return nil
}
