package replay

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/runningwild/fsbench/pkg/analyze"
	"github.com/runningwild/fsbench/pkg/format"
	"github.com/runningwild/fsbench/pkg/report"
	"github.com/runningwild/fsbench/pkg/stats"
)

// Summary is the time spent on one operation type and how often it ran.
type Summary struct {
	Total float64 // seconds
	Count int
}

// ExecutionResult is what one process worker recorded. OpTimes and
// AccumulatedTimes are parallel: the latency of each successful timed op
// and the time since the replay started when it finished, both in seconds.
type ExecutionResult struct {
	PID              int
	OpTimes          []float64
	AccumulatedTimes []float64
	Summaries        map[string]Summary
	Failed           int
	Untimed          int

	latency map[string]*stats.Histogram
}

func newExecutionResult(pid int) *ExecutionResult {
	return &ExecutionResult{
		PID:       pid,
		Summaries: make(map[string]Summary),
		latency:   make(map[string]*stats.Histogram),
	}
}

func (r *ExecutionResult) record(name string, lat, at float64) {
	r.OpTimes = append(r.OpTimes, lat)
	r.AccumulatedTimes = append(r.AccumulatedTimes, at)
	s := r.Summaries[name]
	s.Total += lat
	s.Count++
	r.Summaries[name] = s

	h, ok := r.latency[name]
	if !ok {
		h = stats.NewHistogram()
		r.latency[name] = h
	}
	h.RecordSeconds(lat)
}

// Total sums the summaries.
func (r *ExecutionResult) Total() (float64, int) {
	var t float64
	var n int
	for _, s := range r.Summaries {
		t += s.Total
		n += s.Count
	}
	return t, n
}

// Report aggregates a whole replay.
type Report struct {
	FSName    string
	Results   []ExecutionResult // In process order
	Global    map[string]Summary
	Latency   map[string]*stats.Histogram
	TotalTime float64 // Sum of op latencies, seconds
	TotalOps  int
	Elapsed   float64 // Wall time of the replay, seconds
}

func newReport(fsName string, results []*ExecutionResult, elapsed float64) *Report {
	rep := &Report{
		FSName:  fsName,
		Global:  make(map[string]Summary),
		Latency: make(map[string]*stats.Histogram),
		Elapsed: elapsed,
	}
	for _, res := range results {
		rep.Results = append(rep.Results, *res)
		for name, s := range res.Summaries {
			g := rep.Global[name]
			g.Total += s.Total
			g.Count += s.Count
			rep.Global[name] = g
			rep.TotalTime += s.Total
			rep.TotalOps += s.Count
		}
		for name, h := range res.latency {
			g, ok := rep.Latency[name]
			if !ok {
				g = stats.NewHistogram()
				rep.Latency[name] = g
			}
			g.Merge(h)
		}
	}
	return rep
}

// OpTimeHeader heads the op-time series in unit u.
func OpTimeHeader(u format.Unit) []string {
	return []string{"op", fmt.Sprintf("time (%s)", u)}
}

// AccumulatedHeader heads the per-process accumulated-time series in unit u.
func AccumulatedHeader(u format.Unit) []string {
	return []string{fmt.Sprintf("time (%s)", u), "ops"}
}

// OpTimeRecords lists every recorded latency, process after process. The
// unit is picked from the first latency.
func (r *Report) OpTimeRecords() ([]report.Record, format.Unit) {
	var all []float64
	for _, res := range r.Results {
		all = append(all, res.OpTimes...)
	}
	if len(all) == 0 {
		return nil, format.Seconds
	}
	u := format.UnitOf(all[0])
	out := make([]report.Record, len(all))
	for i, t := range all {
		out[i] = report.Record{strconv.Itoa(i), format.TimeIn(t, u)}
	}
	return out, u
}

// PIDRecords is the accumulated-time series of one process.
type PIDRecords struct {
	PID     int
	Records []report.Record
}

// AccumulatedRecords gives each process its [time, op count] series. The op
// count runs on across processes, so every op has a distinct index. The unit
// is picked from the last time of the last process that recorded anything.
func (r *Report) AccumulatedRecords() ([]PIDRecords, format.Unit) {
	u := format.Seconds
	for i := len(r.Results) - 1; i >= 0; i-- {
		if at := r.Results[i].AccumulatedTimes; len(at) > 0 {
			u = format.UnitOf(at[len(at)-1])
			break
		}
	}
	out := make([]PIDRecords, 0, len(r.Results))
	idx := 0
	for _, res := range r.Results {
		recs := make([]report.Record, 0, len(res.AccumulatedTimes))
		for _, t := range res.AccumulatedTimes {
			idx++
			recs = append(recs, report.Record{format.TimeIn(t, u), strconv.Itoa(idx)})
		}
		out = append(out, PIDRecords{PID: res.PID, Records: recs})
	}
	return out, u
}

// OpTimeSeries is the op-time series in unit u, for plotting.
func (r *Report) OpTimeSeries(u format.Unit) report.Series {
	s := report.Series{Name: r.FSName}
	for _, res := range r.Results {
		for _, t := range res.OpTimes {
			s.Points = append(s.Points, analyze.Point{X: float64(len(s.Points)), Y: t * u.Scale()})
		}
	}
	return s
}

// AccumulatedSeries has one [time in u, op count] curve per process.
func (r *Report) AccumulatedSeries(u format.Unit) []report.Series {
	out := make([]report.Series, 0, len(r.Results))
	idx := 0
	for _, res := range r.Results {
		s := report.Series{Name: strconv.Itoa(res.PID)}
		for _, t := range res.AccumulatedTimes {
			idx++
			s.Points = append(s.Points, analyze.Point{X: t * u.Scale(), Y: float64(idx)})
		}
		out = append(out, s)
	}
	return out
}

type namedSummary struct {
	name string
	Summary
}

// sortedByTime orders a summary map by time spent, largest first.
func sortedByTime(m map[string]Summary) []namedSummary {
	out := make([]namedSummary, 0, len(m))
	for name, s := range m {
		out = append(out, namedSummary{name, s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].name < out[j].name
	})
	return out
}

func (r *Report) share(t float64) string {
	if r.TotalTime <= 0 {
		return format.Percent(0)
	}
	return format.Percent(t / r.TotalTime * 100)
}

// Print writes per-process and global totals, each sorted by time spent.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "%-20s %s\n\n", "total run time:", format.Time(r.Elapsed))
	fmt.Fprintf(w, "%-20s %s\n", "total time:", format.Time(r.TotalTime))
	fmt.Fprintf(w, "%-20s %d\n", "total operations:", r.TotalOps)
	fmt.Fprintf(w, "%-20s %d\n\n", "total processes:", len(r.Results))

	for _, res := range r.Results {
		t, n := res.Total()
		fmt.Fprintf(w, "%d (%d ops, %s)\n", res.PID, n, format.Time(t))
		for _, s := range sortedByTime(res.Summaries) {
			fmt.Fprintf(w, "%7d %-12s %-14s (%8s of total time)\n",
				s.Count, s.name, format.Time(s.Total), r.share(s.Total))
		}
		if res.Failed > 0 {
			fmt.Fprintf(w, "%7d failed\n", res.Failed)
		}
	}

	fmt.Fprintln(w, "\nall processes")
	for _, s := range sortedByTime(r.Global) {
		fmt.Fprintf(w, "%7d %-12s %-14s (%8s of total time)", s.Count, s.name, format.Time(s.Total), r.share(s.Total))
		if h, ok := r.Latency[s.name]; ok && h.TotalCount() > 0 {
			fmt.Fprintf(w, "  p50 %s  p99 %s",
				format.Time(h.ValueAtQuantile(0.5).Seconds()),
				format.Time(h.ValueAtQuantile(0.99).Seconds()))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, "\n---------------")
}
