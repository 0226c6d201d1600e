package survey

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrPermission        = errors.New("permission denied")
	ErrNotFound          = errors.New("survey not found")
	ErrConflict          = errors.New("survey modified concurrently")
)

// Error is the structured failure returned by lifecycle operations.
type Error struct {
	Op   string
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("survey: %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("survey: %s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the taxonomy kind of err, or nil when err is not a survey error.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrInvalidTransition, ErrPermission, ErrNotFound, ErrConflict} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
