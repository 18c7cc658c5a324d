// Package report holds benchmark records and writes them as CSV tables and
// SVG plots.
package report

import (
	"github.com/runningwild/fsbench/pkg/errs"
)

// Record is one row of a result table.
type Record []string

// BenchResult is a header plus rows, every row as wide as the header.
type BenchResult struct {
	Header  []string
	Records []Record
}

func New(header ...string) *BenchResult {
	return &BenchResult{Header: header}
}

// Add appends rec, failing with InvalidIndex when its width is wrong.
func (b *BenchResult) Add(rec Record) error {
	if len(rec) != len(b.Header) {
		return errs.New(errs.InvalidIndex, "record has %d fields, header has %d", len(rec), len(b.Header))
	}
	b.Records = append(b.Records, rec)
	return nil
}

// AddAll appends every record or none.
func (b *BenchResult) AddAll(recs []Record) error {
	for _, r := range recs {
		if len(r) != len(b.Header) {
			return errs.New(errs.InvalidIndex, "record has %d fields, header has %d", len(r), len(b.Header))
		}
	}
	b.Records = append(b.Records, recs...)
	return nil
}

func (b *BenchResult) Len() int { return len(b.Records) }
