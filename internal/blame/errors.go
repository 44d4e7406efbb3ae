package blame

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can tell them apart.
type ErrorKind int

const (
	// ParseFailure means blame output did not match the expected grammar.
	ParseFailure ErrorKind = iota + 1
	// ToolInvocationFailure means git exited non-zero or could not be run.
	ToolInvocationFailure
	// InvalidArgument means a caller broke a builder precondition.
	InvalidArgument
)

func (k ErrorKind) String() string {
	switch k {
	case ParseFailure:
		return "parse failure"
	case ToolInvocationFailure:
		return "tool invocation failure"
	case InvalidArgument:
		return "invalid argument"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by this package.
type Error struct {
	Kind   ErrorKind
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("blame %s: %s", e.Op, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return 0
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

func parseErr(op, detail string) error {
	return &Error{Kind: ParseFailure, Op: op, Detail: detail}
}

func argErr(op, format string, args ...any) error {
	return &Error{Kind: InvalidArgument, Op: op, Detail: fmt.Sprintf(format, args...)}
}

func toolErr(op string, err error) error {
	e := &Error{Kind: ToolInvocationFailure, Op: op, Err: err}
	var ee *ExecError
	if errors.As(err, &ee) {
		e.Detail = ee.Output
	}
	return e
}
