package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runningwild/fsbench/pkg/errs"
	"github.com/runningwild/fsbench/pkg/report"
)

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	run, err := s.BeginRun("ext4", "/mnt/a", "micro")
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)

	res := report.New("operation", "runtime(s)", "ops/s", "ops/s_lb", "ops/s_ub")
	require.NoError(t, res.Add(report.Record{"mkdir", "60", "1000", "990", "1010"}))
	require.NoError(t, res.Add(report.Record{"read, cached", "60", "5", "4", "6"}))
	require.NoError(t, run.Save("ops_per_second", res))

	back, err := s.Results(run.ID, "ops_per_second")
	require.NoError(t, err)
	assert.Equal(t, res, back)

	// Saving again replaces the earlier rows.
	short := report.New(res.Header...)
	require.NoError(t, short.Add(report.Record{"mknod", "1", "2", "3", "4"}))
	require.NoError(t, run.Save("ops_per_second", short))
	back, err = s.Results(run.ID, "ops_per_second")
	require.NoError(t, err)
	assert.Equal(t, short, back)

	_, err = s.Results(run.ID, "missing")
	assert.True(t, errs.Is(err, errs.InvalidIndex))
}

func TestRunsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	a, err := s.BeginRun("ext4", "/mnt/a", "micro")
	require.NoError(t, err)
	b, err := s.BeginRun("xfs", "/mnt/b", "throughput")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	ids := []string{runs[0].ID, runs[1].ID}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
	assert.NotEqual(t, a.ID, b.ID)
}
