package replay

import (
	"os"

	"github.com/runningwild/fsbench/pkg/clock"
	"github.com/runningwild/fsbench/pkg/errs"
	"github.com/runningwild/fsbench/pkg/fsops"
	"github.com/runningwild/fsbench/pkg/trace"
)

// execute replays one operation below base and returns its latency in
// seconds. Opening a file for a read or write is not part of the latency.
// StatFS and NoOp have no meaningful latency and fail with NoTimeRecord.
func execute(base string, op *trace.Operation) (float64, error) {
	path := fsops.MapPath(base, op.Path)

	switch op.Kind {
	case trace.StatFS, trace.NoOp:
		return 0, errs.New(errs.NoTimeRecord, "%s", op.Kind)

	case trace.Read:
		f, err := os.Open(path)
		if err != nil {
			return 0, errs.IOf(err, "open %s", path)
		}
		defer f.Close()
		buf := make([]byte, op.Len)
		return timed(func() error { return fsops.ReadAt(f, buf, op.Offset) })

	case trace.Write:
		f, err := fsops.OpenFile(path)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		buf := fsops.RandomBytes(int(op.Len))
		return timed(func() error { return fsops.WriteAt(f, buf, op.Offset) })

	case trace.GetRandom:
		return timed(func() error {
			fsops.RandomBytes(int(op.Len))
			return nil
		})

	case trace.OpenAt:
		var f *os.File
		lat, err := timed(func() error {
			var err error
			f, err = openAt(path, op.Create)
			return err
		})
		if f != nil {
			f.Close()
		}
		return lat, err

	case trace.Mknod:
		return timed(func() error {
			f, err := fsops.MakeFile(path)
			if err != nil {
				return err
			}
			if err := f.Truncate(0); err != nil {
				f.Close()
				return errs.IOf(err, "truncate %s", path)
			}
			return errs.IOf(f.Close(), "close %s", path)
		})

	case trace.Mkdir:
		return timed(func() error { return fsops.MakeDir(path) })
	case trace.Remove:
		return timed(func() error { return fsops.Remove(path) })
	case trace.Truncate:
		return timed(func() error { return fsops.Truncate(path) })
	case trace.Rename:
		to := fsops.MapPath(base, op.To)
		return timed(func() error { return fsops.Rename(path, to) })

	case trace.Stat:
		return timed(func() error {
			_, err := fsops.Stat(path)
			return err
		})
	case trace.Fstat:
		return timed(func() error {
			_, err := fsops.Fstat(path)
			return err
		})
	case trace.Statx:
		return timed(func() error {
			_, err := fsops.Statx(path)
			return err
		})
	case trace.Fstatat:
		return timed(func() error {
			_, err := fsops.Fstatat(path)
			return err
		})
	}
	return 0, errs.New(errs.Unknown, "cannot replay %s", op.Kind)
}

// openAt opens a directory or a file, creating the file when asked to.
func openAt(path string, create bool) (*os.File, error) {
	fi, err := os.Stat(path)
	switch {
	case err == nil && fi.IsDir():
		return fsops.OpenDir(path)
	case err != nil && create:
		return fsops.MakeFile(path)
	}
	return fsops.OpenFile(path)
}

func timed(fn func() error) (float64, error) {
	start := clock.Now()
	if err := fn(); err != nil {
		return 0, err
	}
	return clock.Since(start), nil
}
