// Package replay re-executes a captured multi-process trace against a
// mounted filesystem, one goroutine per captured process, preserving the
// order in which processes observed their shared operations.
package replay

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/runningwild/fsbench/pkg/clock"
	"github.com/runningwild/fsbench/pkg/errs"
	"github.com/runningwild/fsbench/pkg/fsops"
	"github.com/runningwild/fsbench/pkg/progress"
	"github.com/runningwild/fsbench/pkg/trace"
)

const (
	DefaultBackoff = 50 * time.Microsecond
	MaxBackoff     = 5 * time.Millisecond
)

// Replayer replays traces below a base directory.
type Replayer struct {
	Logger  *zap.Logger
	Out     io.Writer     // Progress surface
	Backoff time.Duration // First wait after a full pass over the queue made no progress
}

func New(logger *zap.Logger, out io.Writer) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = os.Stdout
	}
	return &Replayer{Logger: logger, Out: out, Backoff: DefaultBackoff}
}

// Setup empties base and materializes the pre-image below it.
func (r *Replayer) Setup(base string, files []trace.FileDir) error {
	if err := fsops.Reset(base, r.Out); err != nil {
		return err
	}
	sp := progress.Start(r.Out, "creating the trace pre-image in "+base)
	for _, f := range files {
		rel, err := fsops.PathToStr(f.Path)
		if err != nil {
			sp.AbandonWithMessage("pre-image setup in " + base + " failed")
			return err
		}
		path := fsops.MapPath(base, rel)
		if f.Dir {
			err = fsops.MakeDirAll(path)
		} else {
			err = fsops.MakeRandomFile(path, f.Size)
		}
		if err != nil {
			sp.AbandonWithMessage("pre-image setup in " + base + " failed")
			return err
		}
	}
	sp.FinishAndClear()
	r.Logger.Debug("pre-image ready", zap.String("base", base), zap.Int("entries", len(files)))
	return nil
}

// Run replays every process of tr concurrently. Per-op failures are
// logged and counted but still mark the op executed, so later observers
// are never starved. A worker panic fails the run with SyncError.
func (r *Replayer) Run(base, fsName string, tr *trace.Trace) (*Report, error) {
	tr.Reset()
	msg := fmt.Sprintf("replaying logs (%s)", fsName)
	sp := progress.Start(r.Out, msg)

	results := make([]*ExecutionResult, len(tr.Processes))
	start := clock.Now()
	var g errgroup.Group
	for i, p := range tr.Processes {
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = errs.New(errs.SyncError, "replay of process %d panicked: %v", p.PID, rec)
				}
			}()
			res, err := r.runProcess(base, p, start)
			results[i] = res
			return err
		})
	}
	err := g.Wait()
	elapsed := clock.Since(start)
	if err != nil {
		sp.AbandonWithMessage(msg + " failed")
		return nil, err
	}
	sp.FinishWithMessage(fmt.Sprintf("%s: %d processes in %s", msg, len(tr.Processes), formatSeconds(elapsed)))

	rep := newReport(fsName, results, elapsed)
	r.Logger.Info("replay finished",
		zap.String("fs", fsName),
		zap.Int("processes", len(results)),
		zap.Int("ops", rep.TotalOps),
		zap.Float64("elapsed_s", elapsed))
	return rep, nil
}

func waitForTurn(op *trace.SharedOp, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-op.Turn():
	case <-t.C:
	}
}

func formatSeconds(s float64) string {
	return time.Duration(s * float64(time.Second)).Round(time.Millisecond).String()
}

// runProcess drains one process's queue. The head is popped; if an earlier
// observer has not executed it yet it goes back to the tail. Ops execute
// outside the lock so that the filesystem call never serializes unrelated
// processes. After a full pass without progress the worker blocks until the
// head's turn comes or the backoff expires, whichever is first; the backoff
// doubles up to MaxBackoff and resets on progress.
func (r *Replayer) runProcess(base string, p *trace.Process, start clock.Instant) (*ExecutionResult, error) {
	logger := r.Logger.With(zap.Int("pid", p.PID))
	res := newExecutionResult(p.PID)

	queue := make([]*trace.SharedOp, len(p.Ops))
	copy(queue, p.Ops)
	stalled := 0
	backoff := r.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	wait := backoff
	for len(queue) > 0 {
		op := queue[0]
		queue = queue[1:]

		op.Lock()
		ready := op.CanBeExecuted()
		op.Unlock()
		if !ready {
			queue = append(queue, op)
			stalled++
			if stalled >= len(queue) {
				waitForTurn(queue[0], wait)
				wait = min(wait*2, MaxBackoff)
				stalled = 0
			}
			continue
		}
		stalled = 0
		wait = backoff

		lat, err := execute(base, op.Op)
		at := clock.Since(start)

		op.Lock()
		merr := op.MarkExecuted()
		op.Unlock()
		if merr != nil {
			return res, merr
		}

		switch {
		case err == nil:
			res.record(op.Op.Kind.String(), lat, at)
		case errs.Is(err, errs.NoTimeRecord):
			res.Untimed++
		default:
			res.Failed++
			logger.Warn("replayed operation failed", zap.Stringer("op", op.Op), zap.Error(err))
		}
	}
	return res, nil
}
