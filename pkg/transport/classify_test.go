package transport

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"syscall"
	"testing"

	"github.com/mash-protocol/tlsbridge/pkg/native"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want native.Status
	}{
		{"nil", nil, native.StatusSuccess},
		{"not exist", fs.ErrNotExist, native.StatusClosedGraceful},
		{"wrapped not exist", fmt.Errorf("open: %w", os.ErrNotExist), native.StatusClosedGraceful},
		{"reset", os.NewSyscallError("read", syscall.ECONNRESET), native.StatusClosedAbort},
		{"would block", ErrWouldBlock, native.StatusWouldBlock},
		{"eagain", os.NewSyscallError("read", syscall.EAGAIN), native.StatusWouldBlock},
		{"deadline", fmt.Errorf("read: %w", os.ErrDeadlineExceeded), native.StatusWouldBlock},
		{"eof", io.EOF, native.StatusIO},
		{"other", errors.New("boom"), native.StatusIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrWouldBlockIsTimeout(t *testing.T) {
	var ne interface{ Timeout() bool }
	if !errors.As(ErrWouldBlock, &ne) || !ne.Timeout() {
		t.Error("ErrWouldBlock should report Timeout() == true")
	}
}
