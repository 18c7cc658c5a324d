// Package sweep probes read and write bandwidth as a function of transfer
// size under a hard deadline.
package sweep

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	mstats "github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/runningwild/fsbench/pkg/analyze"
	"github.com/runningwild/fsbench/pkg/clock"
	"github.com/runningwild/fsbench/pkg/errs"
	"github.com/runningwild/fsbench/pkg/format"
	"github.com/runningwild/fsbench/pkg/fsops"
	"github.com/runningwild/fsbench/pkg/progress"
	"github.com/runningwild/fsbench/pkg/report"
)

// Direction is the transfer direction of a probe.
type Direction int

const (
	Read Direction = iota
	Write
)

func (d Direction) String() string {
	if d == Write {
		return "write"
	}
	return "read"
}

const mib = 1 << 20

// Config bounds a sweep.
type Config struct {
	MinSize    int64         // First transfer size in bytes
	MaxSize    int64         // Last transfer size in bytes
	Step       int64         // Linear step in bytes; 0 doubles the size each step
	Repeats    int           // Timed transfers per size
	MaxRuntime time.Duration // Deadline, checked between sizes
	DropCaches bool          // Drop the page cache before each direction
}

func DefaultConfig() Config {
	return Config{
		MinSize:    64 * mib,
		MaxSize:    1024 * mib,
		Repeats:    10,
		MaxRuntime: 5 * time.Minute,
	}
}

// Sizes lists the transfer sizes in sweep order.
func (c Config) Sizes() []int64 {
	var out []int64
	for s := c.MinSize; s > 0 && s <= c.MaxSize; {
		out = append(out, s)
		if c.Step > 0 {
			s += c.Step
		} else {
			s *= 2
		}
	}
	return out
}

func (c Config) validate() error {
	if c.MinSize <= 0 || c.MaxSize < c.MinSize {
		return errs.New(errs.InvalidConfig, "probe sizes must satisfy 0 < min <= max, got %d and %d", c.MinSize, c.MaxSize)
	}
	if c.Repeats < 1 {
		return errs.New(errs.InvalidConfig, "probe repeats must be positive, got %d", c.Repeats)
	}
	return nil
}

// Result is one direction's curve of size (bytes) against bandwidth (B/s).
type Result struct {
	Direction   Direction
	FSName      string
	Points      []analyze.Point
	Interrupted bool
	Elapsed     time.Duration
	Errors      int
}

var Header = []string{"file_size (MiB)", "throughput (MiB/s)"}

// Records converts the curve to MiB and MiB/s.
func (r *Result) Records() []report.Record {
	out := make([]report.Record, 0, len(r.Points))
	for _, p := range r.Points {
		out = append(out, report.Record{
			strconv.FormatFloat(format.MiB(p.X), 'f', -1, 64),
			strconv.FormatFloat(format.MiB(p.Y), 'f', 2, 64),
		})
	}
	return out
}

// MiBPoints is the curve in plotting units.
func (r *Result) MiBPoints() []analyze.Point {
	out := make([]analyze.Point, 0, len(r.Points))
	for _, p := range r.Points {
		out = append(out, analyze.Point{X: format.MiB(p.X), Y: format.MiB(p.Y)})
	}
	return out
}

// Knee is the size past which larger transfers stop paying off.
func (r *Result) Knee() analyze.Point {
	return analyze.FindKnee(r.Points)
}

func (r *Result) Print(w io.Writer) {
	fmt.Fprintf(w, "%-11s %s\n", "run time:", format.Time(r.Elapsed.Seconds()))
	for _, p := range r.Points {
		fmt.Fprintf(w, "  %-10s %s\n", format.Bytes(uint64(p.X)), format.Throughput(p.Y))
	}
	if len(r.Points) >= 3 {
		k := r.Knee()
		fmt.Fprintf(w, "%-11s %s (%s)\n", "knee:", format.Bytes(uint64(k.X)), format.Throughput(k.Y))
	}
	fmt.Fprintln(w)
}

// Sweeper runs throughput probes against pre-allocated files.
type Sweeper struct {
	cfg     Config
	logger  *zap.Logger
	out     io.Writer
	dropper fsops.CacheDropper
}

func New(cfg Config, logger *zap.Logger, out io.Writer, dropper fsops.CacheDropper) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = os.Stdout
	}
	if dropper == nil {
		dropper = fsops.NoopDropper{}
	}
	return &Sweeper{cfg: cfg, logger: logger, out: out, dropper: dropper}
}

func fileFor(root string, idx int) string {
	return filepath.Join(root, strconv.Itoa(idx))
}

// Setup creates file i holding Sizes()[i] random bytes under root. Files
// already at the right size are kept, so the write probe can reuse what the
// read probe allocated.
func (s *Sweeper) Setup(root string) error {
	if err := s.cfg.validate(); err != nil {
		return err
	}
	if err := fsops.MakeDirAll(root); err != nil {
		return err
	}

	sizes := s.cfg.Sizes()
	var missing []int
	var need uint64
	for i, size := range sizes {
		if fi, err := os.Stat(fileFor(root, i)); err == nil && fi.Size() == size {
			continue
		}
		missing = append(missing, i)
		need += uint64(size)
	}
	if len(missing) == 0 {
		return nil
	}

	free, err := fsops.FreeBytes(root)
	if err != nil {
		s.logger.Warn("could not check free space", zap.String("root", root), zap.Error(err))
	} else if free < need {
		return errs.New(errs.InvalidConfig, "throughput probe needs %s under %s, only %s free",
			format.Bytes(need), root, format.Bytes(free))
	}

	sp := progress.Start(s.out, "setting up "+root)
	for _, i := range missing {
		if err := fsops.MakeRandomFile(fileFor(root, i), sizes[i]); err != nil {
			sp.AbandonWithMessage("setup of " + root + " failed")
			return err
		}
	}
	sp.FinishAndClear()
	s.logger.Debug("throughput files ready", zap.String("root", root), zap.Int("created", len(missing)))
	return nil
}

// Run sweeps the sizes in one direction. The deadline is only checked
// between sizes, so a started size always completes and at least one point
// is produced when the transfers succeed.
func (s *Sweeper) Run(dir Direction, root, fsName string) (*Result, error) {
	if err := s.cfg.validate(); err != nil {
		return nil, err
	}
	sizes := s.cfg.Sizes()
	paths := make([]string, len(sizes))
	for i := range sizes {
		paths[i] = fileFor(root, i)
	}
	if s.cfg.DropCaches {
		if err := s.dropper.Drop(paths...); err != nil {
			s.logger.Warn("could not drop the page cache", zap.Error(err))
		}
	}

	buf := make([]byte, sizes[len(sizes)-1])
	if dir == Write {
		fsops.FillRandom(buf)
	}

	res := &Result{Direction: dir, FSName: fsName}
	timer := clock.NewTimer(s.cfg.MaxRuntime)
	timer.Start()
	defer timer.Stop()

	name := fmt.Sprintf("%s throughput (%s)", dir, fsName)
	sp := progress.Start(s.out, name)
	start := clock.Now()
	for i, size := range sizes {
		sp.SetMessage(fmt.Sprintf("%s: %s", name, format.Bytes(uint64(size))))
		times := make([]float64, 0, s.cfg.Repeats)
		for rep := 0; rep < s.cfg.Repeats; rep++ {
			lat, err := transfer(dir, paths[i], buf[:size])
			if err != nil {
				res.Errors++
				s.logger.Warn("transfer failed", zap.Stringer("direction", dir), zap.Int64("size", size), zap.Error(err))
				continue
			}
			times = append(times, lat)
		}
		if mean, err := mstats.Mean(times); err == nil && mean > 0 {
			res.Points = append(res.Points, analyze.Point{X: float64(size), Y: float64(size) / mean})
		}
		if i < len(sizes)-1 && timer.Finished() {
			res.Interrupted = true
			break
		}
	}
	res.Elapsed = time.Duration(clock.Since(start) * float64(time.Second))

	if res.Interrupted {
		sp.AbandonWithMessage(name + " exceeded the max runtime")
		s.logger.Warn("throughput probe hit its deadline",
			zap.Stringer("direction", dir),
			zap.Duration("max_runtime", s.cfg.MaxRuntime),
			zap.Int("points", len(res.Points)))
	} else {
		sp.FinishWithMessage(name + " done")
	}
	return res, nil
}

// transfer times one full-size read or write; opening and closing the file
// are not part of the measurement.
func transfer(dir Direction, path string, buf []byte) (float64, error) {
	f, err := fsops.OpenFile(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	start := clock.Now()
	if dir == Write {
		err = fsops.Write(f, buf)
	} else {
		err = fsops.Read(f, buf)
	}
	if err != nil {
		return 0, err
	}
	return clock.Since(start), nil
}
