// Package trace models a captured multi-process workload: the pre-image of
// files it expects and, per process, the ordered operations it issued.
// Operations observed by several processes carry the happens-before
// relation between them.
package trace

import (
	"fmt"
	"strings"
	"sync"

	"github.com/runningwild/fsbench/pkg/errs"
)

// Kind is the type of a captured operation.
type Kind int

const (
	Mkdir Kind = iota
	Mknod
	Remove
	Read
	Write
	OpenAt
	Truncate
	Stat
	Fstat
	Statx
	StatFS
	Fstatat
	Rename
	GetRandom
	NoOp
)

var kindNames = [...]string{
	Mkdir:     "mkdir",
	Mknod:     "mknod",
	Remove:    "remove",
	Read:      "read",
	Write:     "write",
	OpenAt:    "openat",
	Truncate:  "truncate",
	Stat:      "stat",
	Fstat:     "fstat",
	Statx:     "statx",
	StatFS:    "statfs",
	Fstatat:   "fstatat",
	Rename:    "rename",
	GetRandom: "getrandom",
	NoOp:      "noop",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if strings.EqualFold(s, n) {
			return Kind(i), nil
		}
	}
	return 0, errs.New(errs.ParseError, "unknown operation type %q", s)
}

// Timed reports whether replaying the kind produces a latency.
func (k Kind) Timed() bool { return k != StatFS && k != NoOp }

// Operation is one captured kernel event. The same Operation is shared by
// every process that observed it.
type Operation struct {
	ID     int
	Kind   Kind
	Path   string
	To     string // Rename target
	Offset int64
	Len    int64
	Mode   uint32
	Create bool // OpenAt creates the file when missing

	mu        sync.Mutex
	observers []int // pids, in trace order
	executed  []bool
	next      int             // first observer that has not executed
	turns     []chan struct{} // turns[i] is closed once observer i may execute
}

// reset clears the executed flags and hands the first turn out. The
// caller must hold the lock.
func (o *Operation) reset() {
	o.executed = make([]bool, len(o.observers))
	o.next = 0
	o.turns = make([]chan struct{}, len(o.observers))
	for i := range o.turns {
		o.turns[i] = make(chan struct{})
	}
	if len(o.turns) > 0 {
		close(o.turns[0])
	}
}

// Observers returns the pids that observe the op, in the order they must
// execute it.
func (o *Operation) Observers() []int {
	out := make([]int, len(o.observers))
	copy(out, o.observers)
	return out
}

// Shared reports whether more than one process observes the op.
func (o *Operation) Shared() bool { return len(o.observers) > 1 }

func (o *Operation) String() string {
	switch o.Kind {
	case Rename:
		return fmt.Sprintf("#%d %s %s -> %s", o.ID, o.Kind, o.Path, o.To)
	case Read, Write:
		return fmt.Sprintf("#%d %s %s [%d+%d]", o.ID, o.Kind, o.Path, o.Offset, o.Len)
	case GetRandom:
		return fmt.Sprintf("#%d %s %d", o.ID, o.Kind, o.Len)
	}
	return fmt.Sprintf("#%d %s %s", o.ID, o.Kind, o.Path)
}

// SharedOp is one process's handle on an Operation: the op plus the
// position of that process among its observers.
type SharedOp struct {
	Op       *Operation
	Observer int
}

func (s *SharedOp) Lock()   { s.Op.mu.Lock() }
func (s *SharedOp) Unlock() { s.Op.mu.Unlock() }

// CanBeExecuted is true once every earlier observer has executed the op
// and this one has not. The caller must hold the lock.
func (s *SharedOp) CanBeExecuted() bool {
	return s.Op.next == s.Observer
}

// MarkExecuted sets this observer's flag and, when it completes the
// executed prefix, passes the turn on. The caller must hold the lock.
// A flag is set at most once.
func (s *SharedOp) MarkExecuted() error {
	o := s.Op
	if o.executed[s.Observer] {
		return errs.New(errs.LockError, "op %d already executed by observer %d", o.ID, s.Observer)
	}
	o.executed[s.Observer] = true
	for o.next < len(o.executed) && o.executed[o.next] {
		o.next++
		if o.next < len(o.turns) {
			close(o.turns[o.next])
		}
	}
	return nil
}

// Turn is closed once every earlier observer has executed the op.
func (s *SharedOp) Turn() <-chan struct{} {
	s.Lock()
	defer s.Unlock()
	return s.Op.turns[s.Observer]
}

// Executed reports this observer's flag.
func (s *SharedOp) Executed() bool {
	s.Lock()
	defer s.Unlock()
	return s.Op.executed[s.Observer]
}

// Process is one captured process and its operations in issue order.
type Process struct {
	PID int
	Ops []*SharedOp
}

// FileDir is one entry of the pre-image.
type FileDir struct {
	Path string
	Size int64
	Dir  bool
}

// Trace is a validated, replayable workload.
type Trace struct {
	Files      []FileDir
	Operations []*Operation
	Processes  []*Process
}

// Reset clears every executed flag so the trace can be replayed again.
func (t *Trace) Reset() {
	for _, op := range t.Operations {
		op.mu.Lock()
		op.reset()
		op.mu.Unlock()
	}
}

// Summary counts the parts of a trace.
type Summary struct {
	Processes  int
	Operations int
	Shared     int
	Handles    int
	Files      int
	Dirs       int
}

func (t *Trace) Summary() Summary {
	s := Summary{Processes: len(t.Processes), Operations: len(t.Operations)}
	for _, op := range t.Operations {
		if op.Shared() {
			s.Shared++
		}
	}
	for _, p := range t.Processes {
		s.Handles += len(p.Ops)
	}
	for _, f := range t.Files {
		if f.Dir {
			s.Dirs++
		} else {
			s.Files++
		}
	}
	return s
}
