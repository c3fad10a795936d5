package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mash-protocol/tlsbridge/pkg/session"
)

// ErrPeerRejected wraps the error returned by a peer authentication check.
var ErrPeerRejected = errors.New("connection: peer rejected")

// Handlers decide what happens at each suspension point.
type Handlers struct {
	// OnPeerAuth is called on ServerAuthCompleted with the live engine. A
	// non-nil error abandons the handshake. When nil, the peer trust is
	// evaluated against the engine's anchors and expected name.
	OnPeerAuth func(e *session.Engine) error

	// OnClientCertRequested is called on ClientCertRequested, typically to
	// call SetCertificate. When nil the handshake continues without one.
	OnClientCertRequested func(e *session.Engine) error

	// Backoff paces resumes after WouldBlock. When nil a default Backoff is
	// used.
	Backoff *Backoff
}

// Drive resumes out until the handshake is Ready or fails.
//
// ctx bounds the wait between would-block resumes only; a step already
// blocked inside the transport is not interrupted. On cancellation the
// handshake is abandoned and ctx.Err() returned.
func Drive(ctx context.Context, out session.Outcome, h Handlers) (*session.Session, error) {
	b := h.Backoff
	if b == nil {
		b = NewBackoff()
	}

	for {
		switch o := out.(type) {
		case session.Ready:
			return o.Session, nil

		case session.Failed:
			return nil, o.Err

		case session.ServerAuthCompleted:
			b.Reset()
			check := h.OnPeerAuth
			if check == nil {
				check = EvaluatePeer
			}
			if err := check(o.Suspended.Engine()); err != nil {
				o.Suspended.Abandon()
				return nil, fmt.Errorf("%w: %w", ErrPeerRejected, err)
			}
			out = o.Suspended.Resume()

		case session.ClientCertRequested:
			b.Reset()
			if h.OnClientCertRequested != nil {
				if err := h.OnClientCertRequested(o.Suspended.Engine()); err != nil {
					o.Suspended.Abandon()
					return nil, err
				}
			}
			out = o.Suspended.Resume()

		case session.WouldBlock:
			if err := sleep(ctx, b.Next()); err != nil {
				o.Suspended.Abandon()
				return nil, err
			}
			out = o.Suspended.Resume()

		default:
			return nil, fmt.Errorf("connection: unexpected outcome %T", out)
		}
	}
}

// EvaluatePeer checks the peer chain against the engine's configured
// anchors and expected peer name.
func EvaluatePeer(e *session.Engine) error {
	trust, err := e.PeerTrust()
	if err != nil {
		return err
	}
	return trust.Evaluate()
}

// PinPeer returns an OnPeerAuth check that accepts only a leaf with the
// given SHA-256 fingerprint.
func PinPeer(fingerprint string) func(*session.Engine) error {
	return func(e *session.Engine) error {
		trust, err := e.PeerTrust()
		if err != nil {
			return err
		}
		return trust.MatchFingerprint(fingerprint)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
