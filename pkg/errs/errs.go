// Package errs holds the error taxonomy shared by every fsbench component.
package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Kind classifies a failure.
type Kind int

const (
	Unknown Kind = iota
	FormatError
	InvalidConfig
	InvalidIndex
	InvalidPath
	IO
	CsvError
	SvgError
	SystemTimeError
	ParseError
	SyncError
	LockError
	NoTimeRecord
)

var kindNames = map[Kind]string{
	Unknown:         "Unknown",
	FormatError:     "FormatError",
	InvalidConfig:   "InvalidConfig",
	InvalidIndex:    "InvalidIndex",
	InvalidPath:     "InvalidPath",
	IO:              "IO",
	CsvError:        "CsvError",
	SvgError:        "SvgError",
	SystemTimeError: "SystemTimeError",
	ParseError:      "ParseError",
	SyncError:       "SyncError",
	LockError:       "LockError",
	NoTimeRecord:    "NoTimeRecord",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a classified error with an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err == nil:
		return e.Kind.String()
	case e.Err == nil:
		return e.Kind.String() + ": " + e.Msg
	case e.Msg == "":
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// IOf wraps an underlying filesystem failure.
func IOf(err error, format string, args ...any) error {
	return Wrap(IO, err, format, args...)
}

// KindOf reports the kind of err. Filesystem errors that were never
// classified count as IO.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	var sysErr *os.SyscallError
	if errors.As(err, &pathErr) || errors.As(err, &linkErr) || errors.As(err, &sysErr) {
		return IO
	}
	return Unknown
}

// Is reports whether err has the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
