// Package analyze turns raw measurements into confidence intervals, behaviour
// series and curve features.
package analyze

import (
	"math"
	"time"

	"github.com/runningwild/fsbench/pkg/stats"
)

// Analyzer estimates the mean latency of a sample with a bootstrap
// confidence interval and derives ops/s from it.
type Analyzer struct {
	Level      float64       // Confidence level, in (0, 1)
	Iterations int           // Bootstrap resamples
	Unit       time.Duration // Duration of one latency unit
}

// Default analyzes latencies expressed in seconds at 95% with 1000 resamples.
func Default() Analyzer {
	return Analyzer{Level: 0.95, Iterations: 1000, Unit: time.Second}
}

// Data is the result of analyzing one sample. Mean and bounds are floored to
// whole latency units; ops/s values are their reciprocals with the bounds
// swapped.
type Data struct {
	Count              int
	Mean               float64
	MeanLB             float64
	MeanUB             float64
	SampleMeans        []float64
	OpsPerSecond       float64
	OpsPerSecondLB     float64
	OpsPerSecondUB     float64
	OutliersPercentage float64
}

func (a Analyzer) unitsPerSecond() float64 {
	if a.Unit <= 0 {
		return 1
	}
	return float64(time.Second) / float64(a.Unit)
}

// Analyze fails with InvalidConfig when the sample is too small to bootstrap.
func (a Analyzer) Analyze(latencies []float64) (*Data, error) {
	s, err := stats.NewSample(latencies)
	if err != nil {
		return nil, err
	}
	lb, ub, means, err := s.MeanConfidenceInterval(a.Level, a.Iterations)
	if err != nil {
		return nil, err
	}

	var sum float64
	for _, m := range means {
		sum += m
	}
	mean := math.Min(math.Max(sum/float64(len(means)), lb), ub)

	d := &Data{
		Count:       s.Len(),
		Mean:        math.Floor(mean),
		MeanLB:      math.Floor(lb),
		MeanUB:      math.Floor(ub),
		SampleMeans: means,
	}
	k := a.unitsPerSecond()
	d.OpsPerSecond = reciprocal(k, d.Mean)
	d.OpsPerSecondLB = reciprocal(k, d.MeanUB)
	d.OpsPerSecondUB = reciprocal(k, d.MeanLB)
	d.OutliersPercentage = float64(len(s.Outliers())) * 100 / float64(s.Len())
	return d, nil
}

// reciprocal treats a latency that floored to zero as one unit, the
// resolution of the measurement.
func reciprocal(k, v float64) float64 {
	if v < 1 {
		v = 1
	}
	return k / v
}

// Seconds converts a latency in analyzer units to seconds.
func (a Analyzer) Seconds(v float64) float64 {
	return v / a.unitsPerSecond()
}
