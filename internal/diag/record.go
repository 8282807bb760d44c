package diag

import (
	"fmt"
	"io"
	"strings"
)

// Severity of a single accumulated line.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

type line struct {
	sev Severity
	msg string
}

// Record accumulates info/warning/error lines over the course of a
// command, to be flushed atomically on scope exit — the language-neutral
// replacement for the original's scope-guarded exception diagnostic
// buffer (spec.md §9 Design Notes).
type Record struct {
	stream string
	lines  []line
}

// NewRecord creates a Record labeled with the given stream name (the
// command or subsystem producing diagnostics, e.g. "bpkg").
func NewRecord(stream string) *Record {
	return &Record{stream: stream}
}

func (r *Record) Info(format string, args ...any)    { r.add(SeverityInfo, format, args...) }
func (r *Record) Warning(format string, args ...any) { r.add(SeverityWarning, format, args...) }
func (r *Record) Error(format string, args ...any)   { r.add(SeverityError, format, args...) }

func (r *Record) add(sev Severity, format string, args ...any) {
	r.lines = append(r.lines, line{sev: sev, msg: fmt.Sprintf(format, args...)})
}

// HasErrors reports whether any error-severity line was recorded.
func (r *Record) HasErrors() bool {
	for _, l := range r.lines {
		if l.sev == SeverityError {
			return true
		}
	}
	return false
}

// Flush writes every accumulated line to w in the
// "<stream>: <severity>: <summary>" shape from spec.md §7, and resets the
// record.
func (r *Record) Flush(w io.Writer) {
	for _, l := range r.lines {
		fmt.Fprintf(w, "%s: %s: %s\n", r.stream, l.sev, l.msg)
	}
	r.lines = nil
}

// FlushError renders a *Error (and its Info continuation lines) in the
// same shape, as the top-level command error handler does for the
// terminal failure.
func (r *Record) FlushError(w io.Writer, err error) {
	var de *Error
	if e, ok := err.(*Error); ok {
		de = e
	} else {
		de = &Error{Kind: KindLogic, Summary: err.Error()}
	}
	fmt.Fprintf(w, "%s: error: %s\n", r.stream, de.Summary)
	for _, info := range de.Info {
		fmt.Fprintf(w, "  info: %s\n", info)
	}
}

// String renders the currently accumulated (unflushed) lines, useful in
// tests.
func (r *Record) String() string {
	var b strings.Builder
	for _, l := range r.lines {
		fmt.Fprintf(&b, "%s: %s: %s\n", r.stream, l.sev, l.msg)
	}
	return b.String()
}
