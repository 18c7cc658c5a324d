package fsops

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/runningwild/fsbench/pkg/errs"
)

func Stat(path string) (os.FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, errs.IOf(err, "stat %s", path)
	}
	return fi, nil
}

// Fstat opens path and stats the descriptor.
func Fstat(path string) (*unix.Stat_t, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.IOf(err, "open %s", path)
	}
	defer f.Close()
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return nil, errs.IOf(os.NewSyscallError("fstat", err), "fstat %s", path)
	}
	return &st, nil
}

func Fstatat(path string) (*unix.Stat_t, error) {
	var st unix.Stat_t
	if err := unix.Fstatat(unix.AT_FDCWD, path, &st, 0); err != nil {
		return nil, errs.IOf(os.NewSyscallError("fstatat", err), "fstatat %s", path)
	}
	return &st, nil
}

func Statx(path string) (*unix.Statx_t, error) {
	var stx unix.Statx_t
	if err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BASIC_STATS, &stx); err != nil {
		return nil, errs.IOf(os.NewSyscallError("statx", err), "statx %s", path)
	}
	return &stx, nil
}

func Statfs(path string) (*unix.Statfs_t, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return nil, errs.IOf(os.NewSyscallError("statfs", err), "statfs %s", path)
	}
	return &st, nil
}

// Mknod creates an empty regular file node. Filesystems that refuse mknod
// for unprivileged users get a plain exclusive create instead.
func Mknod(path string) error {
	err := unix.Mknod(path, unix.S_IFREG|filePerm, 0)
	if errors.Is(err, unix.EPERM) {
		f, cerr := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
		if cerr != nil {
			return errs.IOf(cerr, "mknod %s", path)
		}
		return errs.IOf(f.Close(), "mknod %s", path)
	}
	if err != nil {
		return errs.IOf(os.NewSyscallError("mknod", err), "mknod %s", path)
	}
	return nil
}

// CheckWritable fails with InvalidPath unless path is a writable directory.
func CheckWritable(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return errs.Wrap(errs.InvalidPath, err, "%s", path)
	}
	if !fi.IsDir() {
		return errs.New(errs.InvalidPath, "%s is not a directory", path)
	}
	if err := unix.Access(path, unix.W_OK); err != nil {
		return errs.Wrap(errs.InvalidPath, err, "%s is not writable", path)
	}
	return nil
}
