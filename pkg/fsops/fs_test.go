package fsops

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runningwild/fsbench/pkg/errs"
)

func TestMapPath(t *testing.T) {
	base := "/mnt/bench"
	assert.Equal(t, "/mnt/bench/x/y", MapPath(base, "/x/y"))
	assert.Equal(t, "/mnt/bench/x/y", MapPath(base, "x/y"))
	assert.Equal(t, MapPath(base, "/x/y"), MapPath(base, "x/y"))
	assert.Equal(t, "/mnt/bench", MapPath(base, "/"))
}

func TestPathToStr(t *testing.T) {
	s, err := PathToStr("/a/b")
	require.NoError(t, err)
	assert.Equal(t, "/a/b", s)

	_, err = PathToStr("/a/\xff")
	assert.True(t, errs.Is(err, errs.Unknown))
}

func TestMakeFileCreatesParents(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a", "b", "f")
	f, err := MakeFile(p)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.True(t, Exists(p))
}

func TestOpenWriteReadAt(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f")
	require.NoError(t, MakeRandomFile(p, 8192))

	data := []byte("hello world")
	require.NoError(t, OpenWriteAt(p, data, 100))

	got := make([]byte, len(data))
	require.NoError(t, OpenReadAt(p, got, 100))
	assert.Equal(t, data, got)

	// No append and no truncate.
	fi, err := Stat(p)
	require.NoError(t, err)
	assert.EqualValues(t, 8192, fi.Size())

	require.NoError(t, OpenWrite(p, []byte("abc")))
	head := make([]byte, 3)
	require.NoError(t, OpenRead(p, head))
	assert.Equal(t, []byte("abc"), head)
}

func TestReadPastEnd(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "small")
	require.NoError(t, MakeRandomFile(p, 10))
	err := OpenRead(p, make([]byte, 20))
	assert.True(t, errs.Is(err, errs.IO))
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadWriteHandles(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f")
	f, err := MakeFile(p)
	require.NoError(t, err)
	require.NoError(t, Write(f, []byte("0123456789")))
	require.NoError(t, WriteAt(f, []byte("xy"), 2))
	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, 10)
	require.NoError(t, Read(f, buf))
	assert.Equal(t, "01xy456789", string(buf))
	require.NoError(t, ReadAt(f, buf[:3], 7))
	assert.Equal(t, "789", string(buf[:3]))
	require.NoError(t, f.Close())
}

func TestMakeRandomFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "deep", "r")
	size := int64(fillChunk + 12345)
	require.NoError(t, MakeRandomFile(p, size))
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Len(t, data, int(size))
	assert.False(t, bytes.Equal(data[:4096], make([]byte, 4096)), "content should be random")

	require.NoError(t, MakeRandomFile(filepath.Join(dir, "empty"), 0))
	fi, err := Stat(filepath.Join(dir, "empty"))
	require.NoError(t, err)
	assert.Zero(t, fi.Size())
}

func TestRenameTruncateRemove(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	require.NoError(t, MakeRandomFile(a, 100))
	require.NoError(t, Rename(a, b))
	assert.False(t, Exists(a))

	require.NoError(t, Truncate(b))
	fi, err := Stat(b)
	require.NoError(t, err)
	assert.Zero(t, fi.Size())

	require.NoError(t, Remove(b))
	assert.False(t, Exists(b))

	tree := filepath.Join(dir, "t")
	require.NoError(t, MakeDirAll(filepath.Join(tree, "x", "y")))
	require.NoError(t, Remove(tree))
	assert.False(t, Exists(tree))

	assert.True(t, errs.Is(Remove(tree), errs.IO))
	assert.True(t, errs.Is(MakeDir(filepath.Join(dir, "no", "parent")), errs.IO))
}

func TestCleanupAndReset(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "root")
	require.NoError(t, MakeRandomFile(filepath.Join(root, "a", "f"), 10))

	var out bytes.Buffer
	require.NoError(t, Reset(root, &out))
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Contains(t, out.String(), "cleaning up")

	require.NoError(t, Cleanup(root, io.Discard))
	assert.False(t, Exists(root))
	require.NoError(t, Cleanup(root, io.Discard), "missing trees are fine")
}
