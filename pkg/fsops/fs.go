// Package fsops is the uniform set of filesystem operations the benchmarks
// time. Every failure is classified with the errs taxonomy.
package fsops

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/runningwild/fsbench/pkg/errs"
	"github.com/runningwild/fsbench/pkg/progress"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// MapPath joins a captured path onto base. A leading "/" is dropped so that
// absolute and relative captured paths land in the same place.
func MapPath(base, p string) string {
	return filepath.Join(base, strings.TrimPrefix(p, "/"))
}

// PathToStr fails with Unknown when p is not valid UTF-8.
func PathToStr(p string) (string, error) {
	if !utf8.ValidString(p) {
		return "", errs.New(errs.Unknown, "path %q is not valid UTF-8", p)
	}
	return p, nil
}

func MakeDir(path string) error {
	return errs.IOf(os.Mkdir(path, dirPerm), "mkdir %s", path)
}

func MakeDirAll(path string) error {
	return errs.IOf(os.MkdirAll(path, dirPerm), "mkdir -p %s", path)
}

// MakeFile creates (or truncates) a file, creating missing parents.
func MakeFile(path string) (*os.File, error) {
	if err := MakeDirAll(filepath.Dir(path)); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return nil, errs.IOf(err, "create %s", path)
	}
	return f, nil
}

// OpenFile opens an existing file for reading and writing without append.
func OpenFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errs.IOf(err, "open %s", path)
	}
	return f, nil
}

func OpenDir(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.IOf(err, "open dir %s", path)
	}
	return f, nil
}

// Write writes all of buf at the current offset.
func Write(f *os.File, buf []byte) error {
	_, err := f.Write(buf)
	return errs.IOf(err, "write %s", f.Name())
}

func WriteAt(f *os.File, buf []byte, off int64) error {
	_, err := f.WriteAt(buf, off)
	return errs.IOf(err, "write %s at %d", f.Name(), off)
}

// Read fills buf exactly from the current offset.
func Read(f *os.File, buf []byte) error {
	_, err := io.ReadFull(f, buf)
	return errs.IOf(err, "read %s", f.Name())
}

// ReadAt fills buf exactly from off.
func ReadAt(f *os.File, buf []byte, off int64) error {
	_, err := f.ReadAt(buf, off)
	return errs.IOf(err, "read %s at %d", f.Name(), off)
}

// OpenWrite opens path, writes buf from offset zero and closes it.
func OpenWrite(path string, buf []byte) error {
	return OpenWriteAt(path, buf, 0)
}

func OpenWriteAt(path string, buf []byte, off int64) error {
	f, err := OpenFile(path)
	if err != nil {
		return err
	}
	if err := WriteAt(f, buf, off); err != nil {
		f.Close()
		return err
	}
	return errs.IOf(f.Close(), "close %s", path)
}

// OpenRead opens path read-only and fills buf from offset zero.
func OpenRead(path string, buf []byte) error {
	return OpenReadAt(path, buf, 0)
}

func OpenReadAt(path string, buf []byte, off int64) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.IOf(err, "open %s", path)
	}
	defer f.Close()
	return ReadAt(f, buf, off)
}

func Rename(from, to string) error {
	return errs.IOf(os.Rename(from, to), "rename %s", from)
}

// Truncate cuts path to zero length.
func Truncate(path string) error {
	return errs.IOf(os.Truncate(path, 0), "truncate %s", path)
}

func RemoveFile(path string) error {
	return errs.IOf(os.Remove(path), "remove %s", path)
}

// RemoveDir removes a directory tree.
func RemoveDir(path string) error {
	return errs.IOf(os.RemoveAll(path), "remove %s", path)
}

// Remove removes a file, or a directory recursively.
func Remove(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		return errs.IOf(err, "remove %s", path)
	}
	if fi.IsDir() {
		return RemoveDir(path)
	}
	return RemoveFile(path)
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

// Cleanup removes the tree at path if it exists, showing a spinner on out.
func Cleanup(path string, out io.Writer) error {
	if !Exists(path) {
		return nil
	}
	sp := progress.Start(out, "cleaning up "+path)
	if err := RemoveDir(path); err != nil {
		sp.AbandonWithMessage("cleanup of " + path + " failed")
		return err
	}
	sp.FinishAndClear()
	return nil
}

// Reset cleans path and recreates it empty.
func Reset(path string, out io.Writer) error {
	if err := Cleanup(path, out); err != nil {
		return err
	}
	return MakeDirAll(path)
}
