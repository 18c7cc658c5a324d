package trace

import (
	"path"
	"strings"

	"github.com/runningwild/fsbench/pkg/errs"
)

// Builder assembles a Trace and validates it on Build.
type Builder struct {
	files []FileDir
	ops   []*Operation
	byID  map[int]*Operation
	procs []procRefs
	errs  []error
}

type procRefs struct {
	pid int
	ids []int
}

func NewBuilder() *Builder {
	return &Builder{byID: make(map[int]*Operation)}
}

// File adds a regular file of size bytes to the pre-image.
func (b *Builder) File(p string, size int64) *Builder {
	b.files = append(b.files, FileDir{Path: p, Size: size})
	return b
}

// Dir adds a directory to the pre-image.
func (b *Builder) Dir(p string) *Builder {
	b.files = append(b.files, FileDir{Path: p, Dir: true})
	return b
}

// Op registers an operation. IDs must be unique. The builder owns o from
// here on.
func (b *Builder) Op(o *Operation) *Builder {
	if _, ok := b.byID[o.ID]; ok {
		b.errs = append(b.errs, errs.New(errs.ParseError, "duplicate operation id %d", o.ID))
		return b
	}
	o.observers = nil
	b.ops = append(b.ops, o)
	b.byID[o.ID] = o
	return b
}

// Process adds a process issuing the given operation ids in order.
func (b *Builder) Process(pid int, ids ...int) *Builder {
	b.procs = append(b.procs, procRefs{pid: pid, ids: ids})
	return b
}

// checkPath accepts rooted paths that stay below the replay base once
// mapped.
func checkPath(p string) error {
	if p == "" {
		return errs.New(errs.InvalidPath, "empty path")
	}
	if !strings.HasPrefix(p, "/") {
		return errs.New(errs.InvalidPath, "path %q is not rooted", p)
	}
	for _, elem := range strings.Split(p, "/") {
		if elem == ".." {
			return errs.New(errs.InvalidPath, "path %q leaves the replay root", p)
		}
	}
	return nil
}

func (b *Builder) checkOp(o *Operation) error {
	if o.Kind < Mkdir || o.Kind > NoOp {
		return errs.New(errs.ParseError, "op %d: unknown kind %d", o.ID, int(o.Kind))
	}
	if o.Offset < 0 || o.Len < 0 {
		return errs.New(errs.InvalidConfig, "op %d: negative offset or length", o.ID)
	}
	switch o.Kind {
	case NoOp, GetRandom:
		return nil
	case Rename:
		if err := checkPath(o.To); err != nil {
			return errs.Wrap(errs.InvalidPath, err, "op %d target", o.ID)
		}
	}
	if err := checkPath(o.Path); err != nil {
		return errs.Wrap(errs.InvalidPath, err, "op %d", o.ID)
	}
	return nil
}

// Build resolves process references, assigns observer positions in process
// order and validates everything. Because an observer only waits on
// observers listed in earlier processes, the happens-before relation of a
// built trace is acyclic.
func (b *Builder) Build() (*Trace, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	t := &Trace{Operations: b.ops}

	for _, f := range b.files {
		clean := path.Clean("/" + f.Path)
		if clean == "/" || f.Path == "." {
			continue
		}
		if err := checkPath(f.Path); err != nil {
			return nil, err
		}
		if f.Size < 0 {
			return nil, errs.New(errs.InvalidConfig, "file %s has negative size %d", f.Path, f.Size)
		}
		t.Files = append(t.Files, f)
	}

	for _, o := range b.ops {
		if err := b.checkOp(o); err != nil {
			return nil, err
		}
	}

	seenPID := make(map[int]bool)
	for _, pr := range b.procs {
		if seenPID[pr.pid] {
			return nil, errs.New(errs.ParseError, "duplicate process %d", pr.pid)
		}
		seenPID[pr.pid] = true

		p := &Process{PID: pr.pid}
		inProc := make(map[int]bool)
		for _, id := range pr.ids {
			o, ok := b.byID[id]
			if !ok {
				return nil, errs.New(errs.ParseError, "process %d references unknown operation %d", pr.pid, id)
			}
			if inProc[id] {
				return nil, errs.New(errs.ParseError, "process %d references operation %d twice", pr.pid, id)
			}
			inProc[id] = true
			p.Ops = append(p.Ops, &SharedOp{Op: o, Observer: len(o.observers)})
			o.observers = append(o.observers, pr.pid)
		}
		t.Processes = append(t.Processes, p)
	}

	for _, o := range b.ops {
		if len(o.observers) == 0 {
			return nil, errs.New(errs.ParseError, "operation %d is never issued by a process", o.ID)
		}
		o.reset()
	}
	return t, nil
}
