// Package format renders durations, byte counts and rates for reports.
package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/runningwild/fsbench/pkg/errs"
)

// Unit is the display unit of a time series.
type Unit int

const (
	Nanoseconds Unit = iota
	Microseconds
	Milliseconds
	Seconds
)

func (u Unit) String() string {
	switch u {
	case Nanoseconds:
		return "ns"
	case Microseconds:
		return "us"
	case Milliseconds:
		return "ms"
	}
	return "s"
}

// Scale is the factor that converts seconds into u.
func (u Unit) Scale() float64 {
	switch u {
	case Nanoseconds:
		return 1e9
	case Microseconds:
		return 1e6
	case Milliseconds:
		return 1e3
	}
	return 1
}

// UnitOf picks the unit for a series from its representative value in seconds.
func UnitOf(t float64) Unit {
	switch {
	case t*1e9 < 1000:
		return Nanoseconds
	case t*1e6 < 1000:
		return Microseconds
	case t*1e3 < 1000:
		return Milliseconds
	}
	return Seconds
}

const fracDigits = 5

// truncUnits returns floor(v * 10^5), tolerant of the representation error
// that would otherwise turn 1.2587 into 1.25869.
func truncUnits(v float64) int64 {
	scaled := v * 1e5
	return int64(math.Floor(scaled + scaled*1e-12 + 1e-9))
}

func decimal(n int64) string {
	whole := n / 100000
	frac := n % 100000
	if frac == 0 {
		return strconv.FormatInt(whole, 10)
	}
	f := strings.TrimRight(fmt.Sprintf("%05d", frac), "0")
	return strconv.FormatInt(whole, 10) + "." + f
}

// Time renders seconds in the composite human form: "1.2587 ns" below a
// second, "12.5 s" below a minute, "MM:SS.fffff" below an hour and
// "H:MM:SS.fffff" above. Fractions are truncated to five digits.
func Time(t float64) string {
	if t <= 0 || math.IsNaN(t) {
		return "0 ns"
	}
	if t < 60 {
		u := UnitOf(t)
		return decimal(truncUnits(t*u.Scale())) + " " + u.String()
	}

	n := truncUnits(t)
	frac := n % 100000
	secs := n / 100000
	h, m, s := secs/3600, (secs/60)%60, secs%60

	var b strings.Builder
	if h > 0 {
		fmt.Fprintf(&b, "%d:%02d:%02d", h, m, s)
	} else {
		fmt.Fprintf(&b, "%02d:%02d", m, s)
	}
	if frac != 0 {
		b.WriteByte('.')
		b.WriteString(strings.TrimRight(fmt.Sprintf("%05d", frac), "0"))
	}
	return b.String()
}

// TimeIn renders seconds converted to u, truncated, without a suffix.
func TimeIn(t float64, u Unit) string {
	if t <= 0 || math.IsNaN(t) {
		return "0"
	}
	return decimal(truncUnits(t * u.Scale()))
}

// Percent renders p with two decimals.
func Percent(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64) + "%"
}

// Bytes renders n in IEC units ("4.0 KiB").
func Bytes(n uint64) string {
	return humanize.IBytes(n)
}

// Throughput renders a byte rate.
func Throughput(bytesPerSec float64) string {
	if bytesPerSec <= 0 || math.IsNaN(bytesPerSec) || math.IsInf(bytesPerSec, 0) {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}

const mib = 1 << 20

// MiB converts a byte quantity to mebibytes.
func MiB(bytes float64) float64 {
	return bytes / mib
}

// ParseSize parses a human byte string such as "4KiB" or "64 MiB".
func ParseSize(s string) (uint64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, errs.Wrap(errs.FormatError, err, "parse size %q", s)
	}
	return n, nil
}
