package trace

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/runningwild/fsbench/pkg/errs"
)

// The on-disk trace format:
//
//	files:
//	  - {path: /a/f, size: 4096}
//	  - {path: /d, dir: true}
//	operations:
//	  - {id: 1, type: mkdir, path: /a}
//	  - {id: 2, type: openat, path: /a/f, create: true}
//	processes:
//	  - {pid: 1, ops: [1, 2]}
//	  - {pid: 2, ops: [2]}
type document struct {
	Files      []fileSpec `yaml:"files"`
	Operations []opSpec   `yaml:"operations"`
	Processes  []procSpec `yaml:"processes"`
}

type fileSpec struct {
	Path string `yaml:"path"`
	Size int64  `yaml:"size"`
	Dir  bool   `yaml:"dir"`
}

type opSpec struct {
	ID     int    `yaml:"id"`
	Type   string `yaml:"type"`
	Path   string `yaml:"path"`
	To     string `yaml:"to"`
	Offset int64  `yaml:"offset"`
	Len    int64  `yaml:"len"`
	Mode   uint32 `yaml:"mode"`
	Create bool   `yaml:"create"`
}

type procSpec struct {
	PID int   `yaml:"pid"`
	Ops []int `yaml:"ops"`
}

// Load reads and validates a trace file.
func Load(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.IOf(err, "read trace")
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("trace %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates a trace document.
func Parse(data []byte) (*Trace, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errs.Wrap(errs.ParseError, err, "decode trace")
	}
	b := NewBuilder()
	for _, f := range doc.Files {
		if f.Dir {
			b.Dir(f.Path)
		} else {
			b.File(f.Path, f.Size)
		}
	}
	for _, o := range doc.Operations {
		kind, err := ParseKind(o.Type)
		if err != nil {
			return nil, errs.Wrap(errs.ParseError, err, "operation %d", o.ID)
		}
		b.Op(&Operation{
			ID:     o.ID,
			Kind:   kind,
			Path:   o.Path,
			To:     o.To,
			Offset: o.Offset,
			Len:    o.Len,
			Mode:   o.Mode,
			Create: o.Create,
		})
	}
	for _, p := range doc.Processes {
		b.Process(p.PID, p.Ops...)
	}
	return b.Build()
}

// Marshal encodes a trace in the on-disk format.
func Marshal(t *Trace) ([]byte, error) {
	var doc document
	for _, f := range t.Files {
		doc.Files = append(doc.Files, fileSpec{Path: f.Path, Size: f.Size, Dir: f.Dir})
	}
	for _, o := range t.Operations {
		doc.Operations = append(doc.Operations, opSpec{
			ID: o.ID, Type: o.Kind.String(), Path: o.Path, To: o.To,
			Offset: o.Offset, Len: o.Len, Mode: o.Mode, Create: o.Create,
		})
	}
	for _, p := range t.Processes {
		ps := procSpec{PID: p.PID}
		for _, s := range p.Ops {
			ps.Ops = append(ps.Ops, s.Op.ID)
		}
		doc.Processes = append(doc.Processes, ps)
	}
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, errs.Wrap(errs.FormatError, err, "encode trace")
	}
	return out, nil
}
