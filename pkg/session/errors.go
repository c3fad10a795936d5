package session

import (
	"errors"

	"github.com/mash-protocol/tlsbridge/pkg/native"
)

// Usage errors.
var (
	// ErrBadRequest is returned when an operation is not valid in the
	// engine's current state, such as asking for the peer trust while Idle.
	ErrBadRequest = errors.New("session: bad request")

	// ErrConsumed is returned when a value whose resources have moved to
	// another holder, or been released, is used again.
	ErrConsumed = errors.New("session: already consumed")

	// ErrUnsupportedOption is returned when setting or reading a session
	// option the engine does not implement.
	ErrUnsupportedOption = errors.New("session: unsupported session option")
)

// EngineError is a non-success status reported by the native engine.
//
// errors.Is matches the status itself, so callers can test for a specific
// condition with errors.Is(err, native.StatusHostNameMismatch). StatusBadReq
// also matches ErrBadRequest and StatusUnimplemented matches
// ErrUnsupportedOption.
type EngineError struct {
	// Op is the operation that failed.
	Op string

	// Status is the engine's status code.
	Status native.Status
}

func (e *EngineError) Error() string {
	return "session: " + e.Op + ": " + e.Status.String()
}

func (e *EngineError) Unwrap() error {
	return e.Status
}

func (e *EngineError) Is(target error) bool {
	switch target {
	case ErrBadRequest:
		return e.Status == native.StatusBadReq
	case ErrUnsupportedOption:
		return e.Status == native.StatusUnimplemented
	}
	return false
}

// check converts a status into an error, nil on success.
func check(op string, st native.Status) error {
	if st == native.StatusSuccess {
		return nil
	}
	return &EngineError{Op: op, Status: st}
}
