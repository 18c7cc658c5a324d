package fsops

import (
	"os"

	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sys/unix"

	"github.com/runningwild/fsbench/pkg/errs"
)

// CacheDropper evicts cached pages before a cold measurement.
type CacheDropper interface {
	Drop(paths ...string) error
}

// NoopDropper leaves the page cache alone.
type NoopDropper struct{}

func (NoopDropper) Drop(...string) error { return nil }

// SystemDropper syncs and drops the kernel page cache. Without the
// privilege to write drop_caches it advises the kernel to drop the pages
// of each given file instead.
type SystemDropper struct {
	DropCachesPath string // defaults to /proc/sys/vm/drop_caches
}

func (d SystemDropper) Drop(paths ...string) error {
	unix.Sync()
	p := d.DropCachesPath
	if p == "" {
		p = "/proc/sys/vm/drop_caches"
	}
	if err := os.WriteFile(p, []byte("3\n"), 0); err == nil {
		return nil
	}
	var first error
	for _, path := range paths {
		if err := adviseDontNeed(path); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func adviseDontNeed(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.IOf(err, "open %s", path)
	}
	defer f.Close()
	if err := unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_DONTNEED); err != nil {
		return errs.IOf(os.NewSyscallError("fadvise", err), "fadvise %s", path)
	}
	return nil
}

// FreeBytes reports the space available to unprivileged users under path.
func FreeBytes(path string) (uint64, error) {
	u, err := disk.Usage(path)
	if err != nil {
		return 0, errs.IOf(err, "disk usage of %s", path)
	}
	return u.Free, nil
}
