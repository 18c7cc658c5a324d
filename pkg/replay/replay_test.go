package replay

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/runningwild/fsbench/pkg/format"
	"github.com/runningwild/fsbench/pkg/trace"
)

func newTestReplayer() (*Replayer, *bytes.Buffer) {
	var out bytes.Buffer
	return New(zap.NewNop(), &out), &out
}

func allExecuted(t *testing.T, tr *trace.Trace) {
	t.Helper()
	for _, p := range tr.Processes {
		for _, s := range p.Ops {
			assert.True(t, s.Executed(), "pid %d op %s", p.PID, s.Op)
		}
	}
}

func TestSetup(t *testing.T) {
	r, _ := newTestReplayer()
	base := filepath.Join(t.TempDir(), "trace_workload")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "stale"), 0o755))

	files := []trace.FileDir{
		{Path: "/data/in", Size: 5000},
		{Path: "logs/app", Dir: true},
		{Path: "/empty", Size: 0},
	}
	require.NoError(t, r.Setup(base, files))

	fi, err := os.Stat(filepath.Join(base, "data", "in"))
	require.NoError(t, err)
	assert.EqualValues(t, 5000, fi.Size())
	fi, err = os.Stat(filepath.Join(base, "logs", "app"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
	fi, err = os.Stat(filepath.Join(base, "empty"))
	require.NoError(t, err)
	assert.Zero(t, fi.Size())
	assert.NoDirExists(t, filepath.Join(base, "stale"))
}

func TestSharedOpen(t *testing.T) {
	tr, err := trace.NewBuilder().
		Op(&trace.Operation{ID: 1, Kind: trace.Mkdir, Path: "/a"}).
		Op(&trace.Operation{ID: 2, Kind: trace.OpenAt, Path: "/a/f", Create: true}).
		Process(1, 1, 2).
		Process(2, 2).
		Build()
	require.NoError(t, err)

	r, out := newTestReplayer()
	base := filepath.Join(t.TempDir(), "trace_workload")
	require.NoError(t, r.Setup(base, tr.Files))
	rep, err := r.Run(base, "tmp", tr)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Global["mkdir"].Count)
	assert.Equal(t, 2, rep.Global["openat"].Count)
	assert.Equal(t, 3, rep.TotalOps)
	assert.FileExists(t, filepath.Join(base, "a", "f"))
	allExecuted(t, tr)

	require.Len(t, rep.Results, 2)
	assert.Equal(t, 1, rep.Results[0].PID)
	assert.Len(t, rep.Results[0].OpTimes, 2)
	assert.Len(t, rep.Results[1].AccumulatedTimes, 1)
	assert.Contains(t, out.String(), "replaying logs (tmp)")
}

func TestFailuresStillMarkExecuted(t *testing.T) {
	tr, err := trace.NewBuilder().
		Op(&trace.Operation{ID: 1, Kind: trace.Read, Path: "/missing", Len: 10}).
		Op(&trace.Operation{ID: 2, Kind: trace.StatFS, Path: "/"}).
		Op(&trace.Operation{ID: 3, Kind: trace.GetRandom, Len: 64}).
		Op(&trace.Operation{ID: 4, Kind: trace.NoOp}).
		Process(7, 1, 2, 3).
		Process(8, 1, 4).
		Build()
	require.NoError(t, err)

	r, _ := newTestReplayer()
	base := t.TempDir()
	rep, err := r.Run(base, "tmp", tr)
	require.NoError(t, err)
	allExecuted(t, tr)

	assert.Equal(t, 1, rep.Results[0].Failed)
	assert.Equal(t, 1, rep.Results[0].Untimed)
	assert.Equal(t, 1, rep.Results[1].Failed)
	assert.Equal(t, 1, rep.Results[1].Untimed)
	assert.Equal(t, map[string]Summary{"getrandom": rep.Global["getrandom"]}, rep.Global)
	assert.Equal(t, 1, rep.TotalOps)
}

func TestFileOperations(t *testing.T) {
	tr, err := trace.NewBuilder().
		File("/f", 8192).
		File("/g", 10).
		Dir("/d").
		Op(&trace.Operation{ID: 1, Kind: trace.Read, Path: "/f", Offset: 4096, Len: 4096}).
		Op(&trace.Operation{ID: 2, Kind: trace.Write, Path: "/f", Offset: 8192, Len: 100}).
		Op(&trace.Operation{ID: 3, Kind: trace.Stat, Path: "/f"}).
		Op(&trace.Operation{ID: 4, Kind: trace.Fstat, Path: "/f"}).
		Op(&trace.Operation{ID: 5, Kind: trace.Statx, Path: "/f"}).
		Op(&trace.Operation{ID: 6, Kind: trace.Fstatat, Path: "/d"}).
		Op(&trace.Operation{ID: 7, Kind: trace.OpenAt, Path: "/d"}).
		Op(&trace.Operation{ID: 8, Kind: trace.Mknod, Path: "/d/n"}).
		Op(&trace.Operation{ID: 9, Kind: trace.Rename, Path: "/d/n", To: "/d/m"}).
		Op(&trace.Operation{ID: 10, Kind: trace.Truncate, Path: "/g"}).
		Op(&trace.Operation{ID: 11, Kind: trace.Remove, Path: "/d"}).
		Process(1, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11).
		Process(2, 1).
		Process(3, 9).
		Build()
	require.NoError(t, err)

	r, _ := newTestReplayer()
	base := filepath.Join(t.TempDir(), "trace_workload")
	require.NoError(t, r.Setup(base, tr.Files))
	rep, err := r.Run(base, "tmp", tr)
	require.NoError(t, err)
	allExecuted(t, tr)

	for _, name := range []string{"read", "write", "stat", "fstat", "statx", "fstatat", "openat", "mknod", "truncate", "remove"} {
		assert.Positive(t, rep.Global[name].Count, name)
	}
	assert.Equal(t, 2, rep.Global["read"].Count)
	assert.Equal(t, 0, rep.Results[0].Failed)
	// Ops of one process that are ready run in order; the third process
	// renames after the first one did, so its source is gone.
	assert.Equal(t, 1, rep.Global["rename"].Count)
	assert.Equal(t, 1, rep.Results[2].Failed)
}

func TestManyProcesses(t *testing.T) {
	const procs = 1500
	b := trace.NewBuilder().
		Op(&trace.Operation{ID: 1, Kind: trace.Mkdir, Path: "/d"}).
		Op(&trace.Operation{ID: 2, Kind: trace.Stat, Path: "/d"})
	b.Process(0, 1, 2)
	for pid := 1; pid < procs; pid++ {
		b.Process(pid, 2)
	}
	tr, err := b.Build()
	require.NoError(t, err)

	r, _ := newTestReplayer()
	base := filepath.Join(t.TempDir(), "trace_workload")
	require.NoError(t, r.Setup(base, nil))
	start := time.Now()
	rep, err := r.Run(base, "tmp", tr)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 20*time.Second, "every observer waits on one chain of turns")
	allExecuted(t, tr)
	assert.Equal(t, procs, rep.Global["stat"].Count)
	assert.Len(t, rep.Results, procs)

	// A second run resets the executed flags first.
	require.NoError(t, r.Setup(base, nil))
	start = time.Now()
	rep, err = r.Run(base, "tmp", tr)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 20*time.Second)
	assert.Equal(t, procs+1, rep.TotalOps)
}

func TestRecords(t *testing.T) {
	rep := newReport("fs", []*ExecutionResult{
		{PID: 1, OpTimes: []float64{2e-6, 4e-6}, AccumulatedTimes: []float64{0.001, 0.002}, Summaries: map[string]Summary{"stat": {Total: 6e-6, Count: 2}}},
		{PID: 2, OpTimes: []float64{1e-6}, AccumulatedTimes: []float64{0.0015}, Summaries: map[string]Summary{"mkdir": {Total: 1e-6, Count: 1}}},
	}, 0.01)

	ops, u := rep.OpTimeRecords()
	assert.Equal(t, format.Microseconds, u)
	require.Len(t, ops, 3)
	assert.Equal(t, []string{"2", "1"}, []string(ops[2]))
	assert.Equal(t, []string{"op", "time (us)"}, OpTimeHeader(u))

	acc, u := rep.AccumulatedRecords()
	assert.Equal(t, format.Milliseconds, u)
	require.Len(t, acc, 2)
	assert.Equal(t, 2, acc[1].PID)
	assert.Equal(t, []string{"1.5", "3"}, []string(acc[1].Records[0]))
	assert.Equal(t, []string{"time (ms)", "ops"}, AccumulatedHeader(u))

	assert.Equal(t, 3, rep.TotalOps)
	assert.InDelta(t, 7e-6, rep.TotalTime, 1e-12)

	var buf bytes.Buffer
	rep.Print(&buf)
	assert.Contains(t, buf.String(), "total operations:    3")
	assert.Contains(t, buf.String(), "all processes")
}

func TestEmptyRecords(t *testing.T) {
	rep := newReport("fs", nil, 0)
	ops, u := rep.OpTimeRecords()
	assert.Empty(t, ops)
	assert.Equal(t, format.Seconds, u)
	acc, _ := rep.AccumulatedRecords()
	assert.Empty(t, acc)
}
