package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runningwild/fsbench/pkg/analyze"
	"github.com/runningwild/fsbench/pkg/engine"
	"github.com/runningwild/fsbench/pkg/replay"
	"github.com/runningwild/fsbench/pkg/sweep"
)

func TestObserveAndWrite(t *testing.T) {
	m := New()
	m.ObserveMeasurement("ext4", &engine.Measurement{
		Params: engine.Params{Name: "mkdir"},
		Count:  1200,
		Errors: 3,
		Data:   &analyze.Data{OpsPerSecond: 20000, OpsPerSecondLB: 19000, OpsPerSecondUB: 21000},
	})
	m.ObserveThroughput("ext4", &sweep.Result{
		Direction: sweep.Write,
		Points:    []analyze.Point{{X: 64 << 20, Y: 500 << 20}},
	})
	m.ObserveReplay("ext4", &replay.Report{
		Global: map[string]replay.Summary{"openat": {Total: 0.5, Count: 40}},
	})

	assert.Equal(t, 1200.0, testutil.ToFloat64(m.ops.WithLabelValues("ext4", "mkdir")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.opErrors.WithLabelValues("ext4", "mkdir")))
	assert.Equal(t, 19000.0, testutil.ToFloat64(m.opsPerSecond.WithLabelValues("ext4", "mkdir", "lower")))
	assert.Equal(t, float64(500<<20), testutil.ToFloat64(m.throughput.WithLabelValues("ext4", "write", "67108864")))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.replayOps.WithLabelValues("ext4", "openat")))

	path := filepath.Join(t.TempDir(), "fsbench.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `fsbench_ops_total{fs="ext4",op="mkdir"} 1200`)
	assert.Contains(t, text, `fsbench_replay_op_seconds_total{fs="ext4",op="openat"} 0.5`)
	assert.Contains(t, text, "# TYPE fsbench_ops_per_second gauge")
}

func TestMeasurementWithoutData(t *testing.T) {
	m := New()
	m.ObserveMeasurement("xfs", &engine.Measurement{Params: engine.Params{Name: "read"}, Count: 10})
	assert.Equal(t, 10.0, testutil.ToFloat64(m.ops.WithLabelValues("xfs", "read")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ops))
	assert.Equal(t, 0, testutil.CollectAndCount(m.opsPerSecond))
}
