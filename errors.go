package plist

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode    Phase = "decode"    // wire to Value
	PhaseEncode    Phase = "encode"    // Value to wire
	PhaseMarshal   Phase = "marshal"   // Go to Value
	PhaseUnmarshal Phase = "unmarshal" // Value to Go
	PhaseValue     Phase = "value"     // Value model operations
)

// Kind categorizes the error
type Kind string

const (
	KindIO                Kind = "io_failure"
	KindMalformedHeader   Kind = "malformed_header"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindUnsupportedObject Kind = "unsupported_object"
	KindDuplicateKey      Kind = "duplicate_key"
	KindCyclicReference   Kind = "cyclic_reference"
	KindUnrepresentable   Kind = "unrepresentable"
	KindTypeMismatch      Kind = "type_mismatch"
	KindNumericRange      Kind = "numeric_range"
	KindXMLSyntax         Kind = "xml_syntax"
	KindLimitExceeded     Kind = "limit_exceeded"
)

// Error is the single error type returned by every codec and by the typed
// bridge. Offset is a byte offset into binary input, or -1 when unknown.
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Format string
	Detail string
	Path   []string
	Offset int64
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Format != "" {
		b.WriteString(" (")
		b.WriteString(e.Format)
		b.WriteByte(')')
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Offset >= 0 {
		b.WriteString(" @0x")
		b.WriteString(strconv.FormatInt(e.Offset, 16))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Phase and Kind must match;
// a zero Phase in target matches any phase.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind && (t.Phase == "" || e.Phase == t.Phase)
	}
	return false
}

// IsKind reports whether err is, or wraps, a plist error of the given kind.
func IsKind(err error, kind Kind) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind == kind
	}
	return false
}

func newError(phase Phase, kind Kind, format string, detail string, args ...interface{}) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{Phase: phase, Kind: kind, Format: format, Detail: detail, Offset: -1}
}

func (e *Error) at(offset uint64) *Error {
	e.Offset = int64(offset)
	return e
}

func (e *Error) wrap(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) path(path []string) *Error {
	e.Path = append([]string(nil), path...)
	return e
}

// ioError wraps a failure of the caller-supplied source or sink.
func ioError(phase Phase, format string, cause error) *Error {
	return newError(phase, KindIO, format, "").wrap(cause)
}

func typeMismatch(phase Phase, path []string, want string, got string) *Error {
	return newError(phase, KindTypeMismatch, "", "cannot use %s as %s", got, want).path(path)
}

func numericRange(phase Phase, path []string, value interface{}, target string) *Error {
	return newError(phase, KindNumericRange, "", "value %v overflows %s", value, target).path(path)
}
