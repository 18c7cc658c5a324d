// Package micro builds the primitive operations timed by the
// micro-benchmarks and the working sets they run against.
package micro

import (
	"fmt"
	"io"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/runningwild/fsbench/pkg/engine"
	"github.com/runningwild/fsbench/pkg/errs"
	"github.com/runningwild/fsbench/pkg/fsops"
	"github.com/runningwild/fsbench/pkg/progress"
)

// Op is a micro-benchmarked operation.
type Op int

const (
	Mkdir Op = iota
	Mknod
	Read
	Write
)

// All lists the operations in the order they are benchmarked.
var All = []Op{Mkdir, Mknod, Read, Write}

func (o Op) String() string {
	switch o {
	case Mkdir:
		return "mkdir"
	case Mknod:
		return "mknod"
	case Read:
		return "read"
	case Write:
		return "write"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

func ParseOp(s string) (Op, error) {
	for _, o := range All {
		if strings.EqualFold(s, o.String()) {
			return o, nil
		}
	}
	return 0, errs.New(errs.ParseError, "unknown operation %q", s)
}

// MovesData reports whether each op transfers io-size bytes.
func (o Op) MovesData() bool { return o == Read || o == Write }

// writeContentFactor sizes the write source buffer in io-size windows.
const writeContentFactor = 8192

// maxWriteContent bounds the write source buffer for large io sizes.
const maxWriteContent = 256 << 20

// Workload is the working set of one operation under root.
type Workload struct {
	Op          Op
	Root        string
	IOSize      int
	FilesetSize int
}

func (w Workload) file(i int) string {
	return filepath.Join(w.Root, strconv.Itoa(i))
}

func (w Workload) validate() error {
	if w.IOSize <= 0 {
		return errs.New(errs.InvalidConfig, "io size must be positive, got %d", w.IOSize)
	}
	if w.Op.MovesData() && w.FilesetSize <= 0 {
		return errs.New(errs.InvalidConfig, "fileset size must be positive, got %d", w.FilesetSize)
	}
	return nil
}

// Setup empties the root and pre-allocates what the op reads or writes:
// FilesetSize random files of IOSize bytes for read, as many empty files
// for write, nothing for mkdir and mknod.
func (w Workload) Setup(out io.Writer) error {
	if err := w.validate(); err != nil {
		return err
	}
	if err := fsops.Reset(w.Root, out); err != nil {
		return err
	}
	if !w.Op.MovesData() {
		return nil
	}

	sp := progress.Start(out, fmt.Sprintf("creating %d files for %s", w.FilesetSize, w.Op))
	for i := 1; i <= w.FilesetSize; i++ {
		var err error
		if w.Op == Read {
			err = fsops.MakeRandomFile(w.file(i), int64(w.IOSize))
		} else {
			f, ferr := fsops.MakeFile(w.file(i))
			if ferr == nil {
				ferr = f.Close()
			}
			err = ferr
		}
		if err != nil {
			sp.AbandonWithMessage(fmt.Sprintf("setup of %s failed", w.Op))
			return err
		}
	}
	sp.FinishAndClear()
	return nil
}

// OpFunc returns the timed operation. Each call of mkdir and mknod creates a
// new child named by an index that only grows. Read and write pick a file
// uniformly from 1..FilesetSize and move IOSize bytes at offset zero.
func (w Workload) OpFunc() (engine.OpFunc, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	r := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))

	switch w.Op {
	case Mkdir:
		next := 0
		return func() error {
			next++
			return fsops.MakeDir(w.file(next))
		}, nil

	case Mknod:
		next := 0
		return func() error {
			next++
			return fsops.Mknod(w.file(next))
		}, nil

	case Read:
		buf := make([]byte, w.IOSize)
		return func() error {
			return fsops.OpenRead(w.file(r.IntN(w.FilesetSize)+1), buf)
		}, nil

	case Write:
		size := writeContentFactor * w.IOSize
		if size > maxWriteContent {
			size = max(maxWriteContent, w.IOSize)
		}
		content := fsops.RandomBytes(size)
		windows := len(content) - w.IOSize + 1
		return func() error {
			off := r.IntN(windows)
			return fsops.OpenWrite(w.file(r.IntN(w.FilesetSize)+1), content[off:off+w.IOSize])
		}, nil
	}
	return nil, errs.New(errs.InvalidConfig, "unknown operation %v", w.Op)
}
