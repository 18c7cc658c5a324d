package stats

import (
	"math"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync"

	mstats "github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"github.com/runningwild/fsbench/pkg/errs"
)

const (
	// MinSampleSize is the smallest sample that has quartiles.
	MinSampleSize = 3
	// MinBootstrapSize is the smallest sample the bootstrap accepts.
	MinBootstrapSize = 30
)

// Sample is an immutable set of non-negative observations.
type Sample struct {
	data mstats.Float64Data
}

// NewSample copies values into a Sample.
func NewSample(values []float64) (*Sample, error) {
	if len(values) < MinSampleSize {
		return nil, errs.New(errs.InvalidConfig, "the sample size should be at least %d, got %d", MinSampleSize, len(values))
	}
	data := make(mstats.Float64Data, len(values))
	for i, v := range values {
		if v < 0 || math.IsNaN(v) {
			return nil, errs.New(errs.InvalidConfig, "observation %d is %v", i, v)
		}
		data[i] = v
	}
	return &Sample{data: data}, nil
}

func (s *Sample) Len() int { return len(s.data) }

// Values returns a copy of the observations in insertion order.
func (s *Sample) Values() []float64 {
	out := make([]float64, len(s.data))
	copy(out, s.data)
	return out
}

// Mean is zero when every observation is zero.
func (s *Sample) Mean() float64 {
	sum, _ := mstats.Sum(s.data)
	if sum == 0 {
		return 0
	}
	return sum / float64(len(s.data))
}

// Variance is the population variance.
func (s *Sample) Variance() float64 {
	v, err := mstats.PopulationVariance(s.data)
	if err != nil {
		return 0
	}
	return v
}

func (s *Sample) Std() float64 { return math.Sqrt(s.Variance()) }

// CV is the coefficient of variation, zero when undefined.
func (s *Sample) CV() float64 {
	cv := s.Std() / s.Mean()
	if math.IsNaN(cv) || math.IsInf(cv, 0) {
		return 0
	}
	return cv
}

func (s *Sample) sorted() []float64 {
	out := s.Values()
	sort.Float64s(out)
	return out
}

// Quartiles splits the sorted sample on its median, excluding the median
// itself when the length is odd, and returns the middle element of each half.
func (s *Sample) Quartiles() (q1, q3 float64) {
	data := s.sorted()
	mid := len(data) / 2
	lower := data[:mid]
	upper := data[mid:]
	if len(data)%2 != 0 {
		upper = data[mid+1:]
	}
	return lower[len(lower)/2], upper[len(upper)/2]
}

func (s *Sample) IQR() float64 {
	q1, q3 := s.Quartiles()
	return q3 - q1
}

// Outliers returns, in ascending order, the values outside Tukey's fences
// [Q1 - 1.5 IQR, Q3 + 1.5 IQR].
func (s *Sample) Outliers() []float64 {
	q1, q3 := s.Quartiles()
	iqr := q3 - q1
	lo, hi := q1-1.5*iqr, q3+1.5*iqr
	var out []float64
	for _, v := range s.sorted() {
		if v < lo || v > hi {
			out = append(out, v)
		}
	}
	return out
}

// Percentile returns the p-th percentile (0 < p <= 100).
func (s *Sample) Percentile(p float64) (float64, error) {
	v, err := mstats.Percentile(s.data, p)
	if err != nil {
		return 0, errs.Wrap(errs.InvalidConfig, err, "percentile %v", p)
	}
	return v, nil
}

// Bootstrap draws iterations resamples with replacement and returns the mean
// of each. The order of the result is not deterministic.
func (s *Sample) Bootstrap(iterations int) ([]float64, error) {
	n := len(s.data)
	if n < MinBootstrapSize {
		return nil, errs.New(errs.InvalidConfig, "the sample size is less than %d", MinBootstrapSize)
	}
	if iterations < 1 {
		return nil, errs.New(errs.InvalidConfig, "bootstrap needs at least one iteration, got %d", iterations)
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > iterations {
		workers = iterations
	}

	var (
		mu    sync.Mutex
		means = make([]float64, 0, iterations)
		g     errgroup.Group
	)
	for w := 0; w < workers; w++ {
		share := iterations / workers
		if w < iterations%workers {
			share++
		}
		g.Go(func() error {
			r := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
			batch := make([]float64, 0, share)
			for i := 0; i < share; i++ {
				var sum float64
				for j := 0; j < n; j++ {
					sum += s.data[r.IntN(n)]
				}
				batch = append(batch, sum/float64(n))
			}
			mu.Lock()
			means = append(means, batch...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errs.Wrap(errs.SyncError, err, "bootstrap")
	}
	return means, nil
}

// MeanConfidenceInterval estimates the confidence interval of the mean at
// the given level with a bootstrap of the given size. It returns the bounds
// and the bootstrap means in generation order.
func (s *Sample) MeanConfidenceInterval(level float64, iterations int) (lb, ub float64, means []float64, err error) {
	if !(level > 0 && level < 1) {
		return 0, 0, nil, errs.New(errs.InvalidConfig, "the confidence level should be in range (0, 1), got %v", level)
	}
	means, err = s.Bootstrap(iterations)
	if err != nil {
		return 0, 0, nil, err
	}
	sorted := make([]float64, len(means))
	copy(sorted, means)
	sort.Float64s(sorted)

	m := float64(len(sorted))
	tail := (1 - level) / 2
	lbIdx := clampIndex(int(math.Ceil(tail*m-1e-9)), len(sorted))
	ubIdx := clampIndex(int(math.Floor((level+tail)*m+1e-9)), len(sorted))
	return sorted[lbIdx], sorted[ubIdx], means, nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
