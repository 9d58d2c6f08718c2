// Package errs defines the core's error taxonomy.
package errs

import "fmt"

// Kind discriminates the five failure categories the core distinguishes.
type Kind int

const (
	// FileAccess means a file referenced by the operation could not be
	// opened, read, or stat'd.
	FileAccess Kind = iota
	// ParseFormat means a plugin file or metadata document did not match
	// its schema.
	ParseFormat
	// ConditionSyntax means a condition string failed to parse or named
	// an unsafe path.
	ConditionSyntax
	// Sorting means a cycle was detected in the plugin graph.
	Sorting
	// InvalidArgument covers unknown game kinds, nil arguments, and
	// similar boundary misuse.
	InvalidArgument
)

func (k Kind) String() string {
	switch k {
	case FileAccess:
		return "FileAccess"
	case ParseFormat:
		return "ParseFormat"
	case ConditionSyntax:
		return "ConditionSyntax"
	case Sorting:
		return "Sorting"
	case InvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}

// Error is the error type returned at the core's boundary.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an Error of the given kind around a lower-level cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
