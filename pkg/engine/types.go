package engine

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/runningwild/fsbench/pkg/analyze"
	"github.com/runningwild/fsbench/pkg/format"
	"github.com/runningwild/fsbench/pkg/report"
	"github.com/runningwild/fsbench/pkg/stats"
)

// OpFunc is the single operation under test.
type OpFunc func() error

// Params defines one timed measurement.
type Params struct {
	Name          string        // Operation name, used in records and logs
	Label         string        // Filesystem display name
	RunTime       time.Duration // How long the worker runs
	MaxIterations uint64        // Stop early after this many successes (0 = no cap)
	IOSize        int           // Bytes moved per op, for throughput output (0 = none)
}

// Measurement is everything one timed run produced.
type Measurement struct {
	Params
	Elapsed  time.Duration
	Count    uint64 // Successful ops
	Errors   uint64 // Failed ops, not part of the sample
	Data     *analyze.Data
	Unit     format.Unit // Unit of the iteration-time series
	Behavior []analyze.Point
	Trend    analyze.LinearResult
	Latency  *stats.Histogram

	analyzer analyze.Analyzer
}

var (
	OpsHeader      = []string{"operation", "runtime(s)", "ops/s", "ops/s_lb", "ops/s_ub"}
	BehaviorHeader = []string{"time", "ops"}
)

// IterationHeader is the header of the iteration-time series in unit u.
func IterationHeader(u format.Unit) []string {
	return []string{"op", fmt.Sprintf("time (%s)", u)}
}

func formatInt(v float64) string {
	return strconv.FormatInt(int64(math.Floor(v)), 10)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// OpsRecord is [name, runtime, ops/s, ops/s lower bound, ops/s upper bound].
func (m *Measurement) OpsRecord() report.Record {
	return report.Record{
		m.Name,
		formatFloat(m.RunTime.Seconds()),
		formatInt(m.Data.OpsPerSecond),
		formatInt(m.Data.OpsPerSecondLB),
		formatInt(m.Data.OpsPerSecondUB),
	}
}

func (m *Measurement) BehaviorRecords() []report.Record {
	out := make([]report.Record, 0, len(m.Behavior))
	for _, p := range m.Behavior {
		out = append(out, report.Record{formatFloat(p.X), formatInt(p.Y)})
	}
	return out
}

// IterationRecords has one row per bootstrap sample mean, in m.Unit.
func (m *Measurement) IterationRecords() []report.Record {
	out := make([]report.Record, 0, len(m.Data.SampleMeans))
	for i, v := range m.Data.SampleMeans {
		out = append(out, report.Record{strconv.Itoa(i), format.TimeIn(m.analyzer.Seconds(v), m.Unit)})
	}
	return out
}

// IterationPoints is the bootstrap distribution as (index, mean in m.Unit).
func (m *Measurement) IterationPoints() []analyze.Point {
	out := make([]analyze.Point, len(m.Data.SampleMeans))
	for i, v := range m.Data.SampleMeans {
		out[i] = analyze.Point{X: float64(i), Y: m.analyzer.Seconds(v) * m.Unit.Scale()}
	}
	return out
}

// Print writes the console summary of the run.
func (m *Measurement) Print(w io.Writer) {
	a := m.analyzer
	fmt.Fprintf(w, "%-18s %d\n", "iterations:", m.Count)
	if m.Errors > 0 {
		fmt.Fprintf(w, "%-18s %d\n", "errors:", m.Errors)
	}
	fmt.Fprintf(w, "%-18s %s\n", "run time:", format.Time(m.Elapsed.Seconds()))
	fmt.Fprintf(w, "%-18s [%s, %s]\n", "op time (95% CI):",
		format.Time(a.Seconds(m.Data.MeanLB)), format.Time(a.Seconds(m.Data.MeanUB)))
	if m.IOSize > 0 {
		fmt.Fprintf(w, "%-18s [%s, %s] ([%s, %s])\n", "ops/s (95% CI):",
			formatInt(m.Data.OpsPerSecondLB), formatInt(m.Data.OpsPerSecondUB),
			format.Throughput(m.Data.OpsPerSecondLB*float64(m.IOSize)),
			format.Throughput(m.Data.OpsPerSecondUB*float64(m.IOSize)))
	} else {
		fmt.Fprintf(w, "%-18s [%s, %s]\n", "ops/s (95% CI):",
			formatInt(m.Data.OpsPerSecondLB), formatInt(m.Data.OpsPerSecondUB))
	}
	fmt.Fprintf(w, "%-18s p50 %s, p99 %s, max %s\n", "latency:",
		format.Time(m.Latency.ValueAtQuantile(0.5).Seconds()),
		format.Time(m.Latency.ValueAtQuantile(0.99).Seconds()),
		format.Time(m.Latency.Max().Seconds()))
	fmt.Fprintf(w, "%-18s %s\n", "outliers:", format.Percent(m.Data.OutliersPercentage))
	if m.Trend.InlierCount > 0 {
		fmt.Fprintf(w, "%-18s %.1f%% of the run (%.2fs - %.2fs), slope %.2f ops/s per s\n", "stable region:",
			m.Trend.Coverage*100, m.Trend.StartX, m.Trend.EndX, m.Trend.Slope)
	}
	fmt.Fprintln(w)
}
