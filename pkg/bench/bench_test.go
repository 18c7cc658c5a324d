package bench

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/runningwild/fsbench/pkg/config"
	"github.com/runningwild/fsbench/pkg/metrics"
	"github.com/runningwild/fsbench/pkg/report"
	"github.com/runningwild/fsbench/pkg/store"
)

const workload = `
files:
  - {path: /data/in, size: 4096}
operations:
  - {id: 1, type: mkdir, path: /a}
  - {id: 2, type: openat, path: /a/f, create: true}
  - {id: 3, type: write, path: /data/in, offset: 0, len: 100}
  - {id: 4, type: stat, path: /data/in}
processes:
  - {pid: 10, ops: [1, 2, 3]}
  - {pid: 20, ops: [2, 4]}
`

func testConfig(t *testing.T, mode config.Mode, names ...string) *config.Config {
	cfg := &config.Config{
		Benchmark:       mode,
		IOSize:          4096,
		RunTime:         5 * time.Second,
		Iterations:      200,
		LogPath:         filepath.Join(t.TempDir(), "logs"),
		FilesetSize:     5,
		ProbeMinSize:    4 << 10,
		ProbeMaxSize:    16 << 10,
		ProbeRepeats:    2,
		ProbeMaxRuntime: time.Minute,
	}
	for _, n := range names {
		cfg.Mounts = append(cfg.Mounts, t.TempDir())
		cfg.FSNames = append(cfg.FSNames, n)
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func readTable(t *testing.T, path string) *report.BenchResult {
	t.Helper()
	res, err := report.ReadCSV(path)
	require.NoError(t, err)
	return res
}

func TestBehaviour(t *testing.T) {
	cfg := testConfig(t, config.Behaviour, "a", "b")
	var out bytes.Buffer
	require.NoError(t, New(cfg, zap.NewNop(), WithOutput(&out)).Run())

	for _, fs := range cfg.FSNames {
		ops := readTable(t, filepath.Join(cfg.LogPath, fs+"_ops_per_second.csv"))
		assert.Len(t, ops.Records, 4)
		assert.FileExists(t, filepath.Join(cfg.LogPath, fs+"_ops_per_second.svg"))
		for _, op := range []string{"mkdir", "mknod", "read", "write"} {
			assert.FileExists(t, filepath.Join(cfg.LogPath, fs+"_"+op+".csv"))
			iters := readTable(t, filepath.Join(cfg.LogPath, fs+"_"+op+"_iteration_times.csv"))
			assert.Len(t, iters.Records, 1000)
			assert.FileExists(t, filepath.Join(cfg.LogPath, fs+"_"+op+"_iteration_times.svg"))
		}
	}
	for _, op := range []string{"mkdir", "mknod", "read", "write"} {
		assert.FileExists(t, filepath.Join(cfg.LogPath, op+".svg"))
	}
	assert.FileExists(t, filepath.Join(cfg.LogPath, configFile))
	assert.NoFileExists(t, filepath.Join(cfg.LogPath, "read_throughput.svg"))
	assert.Contains(t, out.String(), "results logged to: "+cfg.LogPath)
	assert.DirExists(t, filepath.Join(cfg.Mounts[0], "mkdir"))
}

func TestMicro(t *testing.T) {
	cfg := testConfig(t, config.Micro, "tmp")
	cfg.RunTime = 100 * time.Millisecond
	cfg.Workload = filepath.Join(t.TempDir(), "trace.yaml")
	require.NoError(t, os.WriteFile(cfg.Workload, []byte(workload), 0o644))

	var out bytes.Buffer
	require.NoError(t, New(cfg, zap.NewNop(), WithOutput(&out)).Run())

	ops := readTable(t, filepath.Join(cfg.LogPath, "tmp_ops_per_second.csv"))
	assert.Equal(t, []string{"operation", "runtime(s)", "ops/s", "ops/s_lb", "ops/s_ub"}, ops.Header)
	require.Len(t, ops.Records, 4)
	for i, op := range []string{"mkdir", "mknod", "read", "write"} {
		rec := ops.Records[i]
		assert.Equal(t, op, rec[0])
		assert.Equal(t, "0.1", rec[1])
		lb, err := strconv.Atoi(rec[3])
		require.NoError(t, err)
		ub, err := strconv.Atoi(rec[4])
		require.NoError(t, err)
		assert.Positive(t, lb, op)
		assert.LessOrEqual(t, lb, ub, op)
		assert.FileExists(t, filepath.Join(cfg.LogPath, "tmp_"+op+"_iteration_times.csv"))
	}

	for _, dir := range []string{"read", "write"} {
		table := readTable(t, filepath.Join(cfg.LogPath, "tmp_"+dir+"_throughput.csv"))
		assert.Len(t, table.Records, 3, dir)
	}
	opTimes := readTable(t, filepath.Join(cfg.LogPath, "tmp_op_times_trace_workload.csv"))
	assert.Len(t, opTimes.Records, 5)

	for _, sub := range []string{"mkdir", "mknod", "read", "write", "throughput", "trace_workload"} {
		assert.DirExists(t, filepath.Join(cfg.Mounts[0], sub))
	}
	assert.Contains(t, out.String(), "results logged to: "+cfg.LogPath)
}

func TestThroughputWithStoreAndMetrics(t *testing.T) {
	cfg := testConfig(t, config.Throughput, "tmp")
	db, err := store.Open(filepath.Join(t.TempDir(), "results.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	var out bytes.Buffer
	o := New(cfg, zap.NewNop(), WithOutput(&out), WithStore(db), WithMetrics(metrics.New()))
	require.NoError(t, o.Run())

	for _, dir := range []string{"read", "write"} {
		table := readTable(t, filepath.Join(cfg.LogPath, "tmp_"+dir+"_throughput.csv"))
		assert.Len(t, table.Records, 3, dir)
		assert.FileExists(t, filepath.Join(cfg.LogPath, dir+"_throughput.svg"))
	}
	assert.NoFileExists(t, filepath.Join(cfg.LogPath, "tmp_ops_per_second.csv"))

	runs, err := db.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "tmp", runs[0].FSName)
	assert.Equal(t, "throughput", runs[0].Mode)
	archived, err := db.Results(runs[0].ID, "write_throughput")
	require.NoError(t, err)
	assert.Len(t, archived.Records, 3)

	prom, err := os.ReadFile(filepath.Join(cfg.LogPath, metricsFile))
	require.NoError(t, err)
	assert.Contains(t, string(prom), `fsbench_throughput_bytes_per_second{direction="read",fs="tmp",size="4096"}`)
}

func TestTrace(t *testing.T) {
	cfg := testConfig(t, config.Throughput, "tmp")
	cfg.Benchmark = config.Trace
	cfg.Workload = filepath.Join(t.TempDir(), "trace.yaml")
	require.NoError(t, os.WriteFile(cfg.Workload, []byte(workload), 0o644))

	var out bytes.Buffer
	require.NoError(t, New(cfg, zap.NewNop(), WithOutput(&out)).Run())

	opTimes := readTable(t, filepath.Join(cfg.LogPath, "tmp_op_times_trace_workload.csv"))
	assert.Len(t, opTimes.Records, 5)
	assert.FileExists(t, filepath.Join(cfg.LogPath, "tmp_op_times_trace_workload.svg"))

	acc10 := readTable(t, filepath.Join(cfg.LogPath, "tmp_10_accumulated_times.csv"))
	acc20 := readTable(t, filepath.Join(cfg.LogPath, "tmp_20_accumulated_times.csv"))
	assert.Len(t, acc10.Records, 3)
	assert.Len(t, acc20.Records, 2)
	assert.Equal(t, "5", acc20.Records[1][1], "the op index runs on across processes")
	assert.FileExists(t, filepath.Join(cfg.LogPath, "tmp_accumulated_times.svg"))

	assert.DirExists(t, filepath.Join(cfg.Mounts[0], "trace_workload", "a"))
	assert.Contains(t, out.String(), "results logged to:")
}

func TestTraceRequiresWorkload(t *testing.T) {
	cfg := testConfig(t, config.Throughput, "tmp")
	cfg.Benchmark = config.Trace
	err := New(cfg, zap.NewNop(), WithOutput(&bytes.Buffer{})).Run()
	assert.Error(t, err)
}
