package jobs

import (
	"fmt"
)

// Kind classifies store failures
type Kind int

// failure kinds
const (
	KindNotFound Kind = iota + 1
	KindStorage
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindStorage:
		return "storage failure"
	case KindParse:
		return "parse failure"
	default:
		return "unknown"
	}
}

// Error is returned (and recorded) by all store operations
type Error struct {
	Kind Kind
	Op   string // load, add, update or delete
	Key  string // job id or key-value store key, empty for load
	Err  error
}

// sentinels for errors.Is, match by Kind only
var (
	ErrNotFound = &Error{Kind: KindNotFound}
	ErrStorage  = &Error{Kind: KindStorage}
	ErrParse    = &Error{Kind: KindParse}
)

func (e *Error) Error() string {
	msg := e.Op
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", msg, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", msg, e.Kind, e.Err)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same Kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}
