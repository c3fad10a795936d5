package session

import (
	"slices"

	"github.com/mash-protocol/tlsbridge/pkg/native"
)

// SupportedSessionOptions lists the options the engine implements. Options
// not listed fail with ErrUnsupportedOption.
func (e *Engine) SupportedSessionOptions() []native.SessionOption {
	if e.ctx == nil {
		return nil
	}
	return e.ctx.SupportedSessionOptions()
}

func (e *Engine) SessionOption(opt native.SessionOption) (bool, error) {
	ctx, err := e.native()
	if err != nil {
		return false, err
	}
	if !slices.Contains(ctx.SupportedSessionOptions(), opt) {
		return false, ErrUnsupportedOption
	}
	v, st := ctx.SessionOption(opt)
	return v, check("session option "+opt.String(), st)
}

func (e *Engine) SetSessionOption(opt native.SessionOption, value bool) error {
	ctx, err := e.native()
	if err != nil {
		return err
	}
	if !slices.Contains(ctx.SupportedSessionOptions(), opt) {
		return ErrUnsupportedOption
	}
	return check("set session option "+opt.String(), ctx.SetSessionOption(opt, value))
}

// BreakOnServerAuth reports whether a client handshake pauses with
// ServerAuthCompleted once the server chain is known.
func (e *Engine) BreakOnServerAuth() (bool, error) {
	return e.SessionOption(native.OptionBreakOnServerAuth)
}

// SetBreakOnServerAuth makes a client handshake pause with
// ServerAuthCompleted. Built-in verification of the server chain is skipped;
// the caller evaluates PeerTrust before resuming.
func (e *Engine) SetBreakOnServerAuth(v bool) error {
	return e.SetSessionOption(native.OptionBreakOnServerAuth, v)
}

// BreakOnCertRequested reports whether a client handshake pauses with
// ClientCertRequested.
func (e *Engine) BreakOnCertRequested() (bool, error) {
	return e.SessionOption(native.OptionBreakOnCertRequested)
}

// SetBreakOnCertRequested makes a client handshake pause with
// ClientCertRequested when the server asks for a certificate.
func (e *Engine) SetBreakOnCertRequested(v bool) error {
	return e.SetSessionOption(native.OptionBreakOnCertRequested, v)
}

// BreakOnClientAuth reports whether a server handshake pauses once the
// client chain is known.
func (e *Engine) BreakOnClientAuth() (bool, error) {
	return e.SessionOption(native.OptionBreakOnClientAuth)
}

// SetBreakOnClientAuth makes a server handshake pause with
// ServerAuthCompleted after the client certificate arrives.
func (e *Engine) SetBreakOnClientAuth(v bool) error {
	return e.SetSessionOption(native.OptionBreakOnClientAuth, v)
}

func (e *Engine) FalseStart() (bool, error) {
	return e.SessionOption(native.OptionFalseStart)
}

func (e *Engine) SetFalseStart(v bool) error {
	return e.SetSessionOption(native.OptionFalseStart, v)
}

func (e *Engine) SendOneByteRecord() (bool, error) {
	return e.SessionOption(native.OptionSendOneByteRecord)
}

// SetSendOneByteRecord splits the first application write into a one-byte
// record followed by the rest.
func (e *Engine) SetSendOneByteRecord(v bool) error {
	return e.SetSessionOption(native.OptionSendOneByteRecord, v)
}
