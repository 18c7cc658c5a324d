package trace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runningwild/fsbench/pkg/errs"
)

const twoProcs = `
files:
  - {path: /, dir: true}
  - {path: ., dir: true}
  - {path: /data/in, size: 8192}
  - {path: /logs, dir: true}
operations:
  - {id: 1, type: mkdir, path: /a}
  - {id: 2, type: openat, path: /a/f, create: true}
  - {id: 3, type: read, path: /data/in, offset: 4096, len: 100}
  - {id: 4, type: rename, path: /a/f, to: /a/g}
processes:
  - {pid: 10, ops: [1, 2, 3]}
  - {pid: 20, ops: [2, 4]}
`

func TestParse(t *testing.T) {
	tr, err := Parse([]byte(twoProcs))
	require.NoError(t, err)

	assert.Equal(t, []FileDir{{Path: "/data/in", Size: 8192}, {Path: "/logs", Dir: true}}, tr.Files)
	require.Len(t, tr.Processes, 2)
	p1, p2 := tr.Processes[0], tr.Processes[1]
	assert.Equal(t, 10, p1.PID)
	require.Len(t, p1.Ops, 3)
	require.Len(t, p2.Ops, 2)

	open1, open2 := p1.Ops[1], p2.Ops[0]
	assert.Same(t, open1.Op, open2.Op, "the shared open is one operation")
	assert.Equal(t, 0, open1.Observer)
	assert.Equal(t, 1, open2.Observer)
	assert.Equal(t, []int{10, 20}, open1.Op.Observers())
	assert.True(t, open1.Op.Create)

	read := p1.Ops[2].Op
	assert.Equal(t, Read, read.Kind)
	assert.EqualValues(t, 4096, read.Offset)
	assert.EqualValues(t, 100, read.Len)

	s := tr.Summary()
	assert.Equal(t, Summary{Processes: 2, Operations: 4, Shared: 1, Handles: 5, Files: 1, Dirs: 1}, s)
}

func TestHappensBefore(t *testing.T) {
	tr, err := Parse([]byte(twoProcs))
	require.NoError(t, err)
	open1, open2 := tr.Processes[0].Ops[1], tr.Processes[1].Ops[0]

	open2.Lock()
	assert.False(t, open2.CanBeExecuted(), "second observer waits for the first")
	open2.Unlock()

	open1.Lock()
	require.True(t, open1.CanBeExecuted())
	require.NoError(t, open1.MarkExecuted())
	assert.False(t, open1.CanBeExecuted(), "an executed handle is not ready again")
	assert.True(t, errs.Is(open1.MarkExecuted(), errs.LockError))
	open1.Unlock()

	open2.Lock()
	assert.True(t, open2.CanBeExecuted())
	open2.Unlock()
	assert.True(t, open1.Executed())
	assert.False(t, open2.Executed())

	tr.Reset()
	assert.False(t, open1.Executed())
}

func TestTurn(t *testing.T) {
	tr, err := NewBuilder().
		Op(&Operation{ID: 1, Kind: Stat, Path: "/f"}).
		Process(1, 1).Process(2, 1).Process(3, 1).
		Build()
	require.NoError(t, err)
	first, second, third := tr.Processes[0].Ops[0], tr.Processes[1].Ops[0], tr.Processes[2].Ops[0]

	select {
	case <-first.Turn():
	default:
		t.Fatal("the first observer may always execute")
	}
	select {
	case <-second.Turn():
		t.Fatal("the second observer waits for the first")
	default:
	}

	// Marking out of order does not hand a turn past a gap.
	third.Lock()
	require.NoError(t, third.MarkExecuted())
	third.Unlock()
	first.Lock()
	require.NoError(t, first.MarkExecuted())
	first.Unlock()
	<-second.Turn()
	second.Lock()
	assert.True(t, second.CanBeExecuted())
	require.NoError(t, second.MarkExecuted())
	assert.False(t, second.CanBeExecuted())
	second.Unlock()

	tr.Reset()
	first.Lock()
	assert.True(t, first.CanBeExecuted())
	first.Unlock()
	second.Lock()
	assert.False(t, second.CanBeExecuted())
	second.Unlock()
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		kind errs.Kind
	}{
		{"bad yaml", "files: [", errs.ParseError},
		{"unknown type", "operations: [{id: 1, type: fsync, path: /a}]\nprocesses: [{pid: 1, ops: [1]}]", errs.ParseError},
		{"duplicate id", "operations: [{id: 1, type: mkdir, path: /a}, {id: 1, type: mkdir, path: /b}]\nprocesses: [{pid: 1, ops: [1]}]", errs.ParseError},
		{"unknown ref", "operations: [{id: 1, type: mkdir, path: /a}]\nprocesses: [{pid: 1, ops: [1, 2]}]", errs.ParseError},
		{"unreferenced", "operations: [{id: 1, type: mkdir, path: /a}, {id: 2, type: mkdir, path: /b}]\nprocesses: [{pid: 1, ops: [1]}]", errs.ParseError},
		{"twice in one process", "operations: [{id: 1, type: mkdir, path: /a}]\nprocesses: [{pid: 1, ops: [1, 1]}]", errs.ParseError},
		{"duplicate pid", "operations: [{id: 1, type: mkdir, path: /a}]\nprocesses: [{pid: 1, ops: [1]}, {pid: 1, ops: [1]}]", errs.ParseError},
		{"negative size", "files: [{path: /f, size: -1}]", errs.InvalidConfig},
		{"negative len", "operations: [{id: 1, type: read, path: /a, len: -5}]\nprocesses: [{pid: 1, ops: [1]}]", errs.InvalidConfig},
		{"escaping path", "operations: [{id: 1, type: mkdir, path: /../etc}]\nprocesses: [{pid: 1, ops: [1]}]", errs.InvalidPath},
		{"rename without target", "operations: [{id: 1, type: rename, path: /a}]\nprocesses: [{pid: 1, ops: [1]}]", errs.InvalidPath},
		{"empty path", "operations: [{id: 1, type: stat}]\nprocesses: [{pid: 1, ops: [1]}]", errs.InvalidPath},
		{"relative path", "operations: [{id: 1, type: stat, path: a/b}]\nprocesses: [{pid: 1, ops: [1]}]", errs.InvalidPath},
		{"relative rename target", "operations: [{id: 1, type: rename, path: /a, to: b}]\nprocesses: [{pid: 1, ops: [1]}]", errs.InvalidPath},
		{"relative pre-image file", "files: [{path: data/in, size: 1}]", errs.InvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err), "%v", err)
		})
	}
}

func TestNoPathNeeded(t *testing.T) {
	tr, err := Parse([]byte("operations: [{id: 1, type: getrandom, len: 16}, {id: 2, type: noop}]\nprocesses: [{pid: 1, ops: [1, 2]}]"))
	require.NoError(t, err)
	assert.Len(t, tr.Processes[0].Ops, 2)
}

func TestLoadRoundTrip(t *testing.T) {
	tr, err := Parse([]byte(twoProcs))
	require.NoError(t, err)
	data, err := Marshal(tr)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "trace.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, tr.Summary(), back.Summary())
	assert.Equal(t, tr.Processes[1].Ops[1].Op.To, back.Processes[1].Ops[1].Op.To)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errs.Is(err, errs.IO))
}

func TestKindNames(t *testing.T) {
	for k := Mkdir; k <= NoOp; k++ {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	assert.False(t, StatFS.Timed())
	assert.False(t, NoOp.Timed())
	assert.True(t, OpenAt.Timed())
}

func TestBuilder(t *testing.T) {
	tr, err := NewBuilder().
		Dir("/d").
		Op(&Operation{ID: 1, Kind: Mkdir, Path: "/d/x"}).
		Op(&Operation{ID: 2, Kind: Stat, Path: "/d/x"}).
		Process(1, 1, 2).
		Process(2, 2).
		Process(3, 2).
		Build()
	require.NoError(t, err)
	stat := tr.Operations[1]
	assert.Equal(t, []int{1, 2, 3}, stat.Observers())
	assert.Equal(t, 2, tr.Processes[2].Ops[0].Observer)
}
