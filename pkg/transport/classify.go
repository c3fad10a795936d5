package transport

import (
	"errors"
	"io/fs"
	"os"
	"syscall"

	"github.com/mash-protocol/tlsbridge/pkg/native"
)

// ErrWouldBlock is returned by non-blocking transports that cannot make
// progress. It satisfies net.Error with Timeout() true.
var ErrWouldBlock error = wouldBlockError{}

type wouldBlockError struct{}

func (wouldBlockError) Error() string   { return "transport: operation would block" }
func (wouldBlockError) Timeout() bool   { return true }
func (wouldBlockError) Temporary() bool { return true }

// IsWouldBlock reports whether err means "retry later": ErrWouldBlock,
// EAGAIN/EWOULDBLOCK from a non-blocking socket, or an expired deadline.
func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EWOULDBLOCK) ||
		errors.Is(err, os.ErrDeadlineExceeded)
}

// Classify maps a transport error onto the coarse status vocabulary the
// engine understands:
//
//	not found        -> StatusClosedGraceful
//	connection reset -> StatusClosedAbort
//	would block      -> StatusWouldBlock
//	anything else    -> StatusIO
//
// A nil error is StatusSuccess.
func Classify(err error) native.Status {
	switch {
	case err == nil:
		return native.StatusSuccess
	case errors.Is(err, fs.ErrNotExist):
		return native.StatusClosedGraceful
	case errors.Is(err, syscall.ECONNRESET):
		return native.StatusClosedAbort
	case IsWouldBlock(err):
		return native.StatusWouldBlock
	default:
		return native.StatusIO
	}
}
