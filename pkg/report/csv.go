package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/runningwild/fsbench/pkg/errs"
)

// Logger writes the result tables of one filesystem as {fs}_{name}.csv
// under Dir.
type Logger struct {
	Dir    string
	FSName string
}

func NewLogger(dir, fsName string) *Logger {
	return &Logger{Dir: dir, FSName: fsName}
}

// Path is the file a table called name is written to. The same base name
// with an .svg extension is used for its plot.
func (l *Logger) Path(name string) string {
	return filepath.Join(l.Dir, fmt.Sprintf("%s_%s.csv", l.FSName, name))
}

// PlotPath is Path with an .svg extension.
func (l *Logger) PlotPath(name string) string {
	return filepath.Join(l.Dir, fmt.Sprintf("%s_%s.svg", l.FSName, name))
}

// Log replaces any previous table of that name.
func (l *Logger) Log(name string, res *BenchResult) (string, error) {
	path := l.Path(name)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", errs.IOf(err, "remove old log")
	}
	if err := WriteCSV(path, res); err != nil {
		return "", err
	}
	return path, nil
}

// WriteCSV writes the header and then every record, in order.
func WriteCSV(path string, res *BenchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.IOf(err, "create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(res.Header); err != nil {
		return errs.Wrap(errs.CsvError, err, "%s header", path)
	}
	for _, r := range res.Records {
		if err := w.Write(r); err != nil {
			return errs.Wrap(errs.CsvError, err, "%s", path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errs.Wrap(errs.CsvError, err, "%s", path)
	}
	return errs.IOf(f.Close(), "close %s", path)
}

// ReadCSV loads a table written by WriteCSV.
func ReadCSV(path string) (*BenchResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.IOf(err, "open %s", path)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errs.Wrap(errs.CsvError, err, "%s", path)
	}
	if len(rows) == 0 {
		return nil, errs.New(errs.CsvError, "%s has no header", path)
	}
	res := New(rows[0]...)
	for _, r := range rows[1:] {
		if err := res.Add(r); err != nil {
			return nil, err
		}
	}
	return res, nil
}
