// Package metrics exposes benchmark results as Prometheus series. There is
// no server: the registry is written once as a node-exporter textfile so a
// collector can pick up the results of batch runs.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/runningwild/fsbench/pkg/engine"
	"github.com/runningwild/fsbench/pkg/errs"
	"github.com/runningwild/fsbench/pkg/replay"
	"github.com/runningwild/fsbench/pkg/sweep"
)

const namespace = "fsbench"

// Metrics owns a private registry.
type Metrics struct {
	reg *prometheus.Registry

	ops          *prometheus.CounterVec
	opErrors     *prometheus.CounterVec
	opsPerSecond *prometheus.GaugeVec
	throughput   *prometheus.GaugeVec
	replayOps    *prometheus.CounterVec
	replaySecs   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ops_total",
			Help:      "Successful operations in timed micro benchmarks.",
		}, []string{"fs", "op"}),
		opErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "op_errors_total",
			Help:      "Failed operations in timed micro benchmarks.",
		}, []string{"fs", "op"}),
		opsPerSecond: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ops_per_second",
			Help:      "Operation rate with its confidence bounds.",
		}, []string{"fs", "op", "bound"}),
		throughput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throughput_bytes_per_second",
			Help:      "Sequential bandwidth per transfer size.",
		}, []string{"fs", "direction", "size"}),
		replayOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replay_ops_total",
			Help:      "Timed operations replayed from a trace.",
		}, []string{"fs", "op"}),
		replaySecs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replay_op_seconds_total",
			Help:      "Time spent in replayed operations.",
		}, []string{"fs", "op"}),
	}
	m.reg.MustRegister(m.ops, m.opErrors, m.opsPerSecond, m.throughput, m.replayOps, m.replaySecs)
	return m
}

// Registry is the gatherer holding every series.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) ObserveMeasurement(fs string, meas *engine.Measurement) {
	m.ops.WithLabelValues(fs, meas.Name).Add(float64(meas.Count))
	m.opErrors.WithLabelValues(fs, meas.Name).Add(float64(meas.Errors))
	if meas.Data == nil {
		return
	}
	m.opsPerSecond.WithLabelValues(fs, meas.Name, "mean").Set(meas.Data.OpsPerSecond)
	m.opsPerSecond.WithLabelValues(fs, meas.Name, "lower").Set(meas.Data.OpsPerSecondLB)
	m.opsPerSecond.WithLabelValues(fs, meas.Name, "upper").Set(meas.Data.OpsPerSecondUB)
}

func (m *Metrics) ObserveThroughput(fs string, res *sweep.Result) {
	for _, p := range res.Points {
		size := strconv.FormatInt(int64(p.X), 10)
		m.throughput.WithLabelValues(fs, res.Direction.String(), size).Set(p.Y)
	}
}

func (m *Metrics) ObserveReplay(fs string, rep *replay.Report) {
	for op, s := range rep.Global {
		m.replayOps.WithLabelValues(fs, op).Add(float64(s.Count))
		m.replaySecs.WithLabelValues(fs, op).Add(s.Total)
	}
}

// WriteTextfile writes every series in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return errs.IOf(err, "write metrics to %s", path)
	}
	return nil
}
