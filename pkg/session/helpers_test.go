package session

import (
	"crypto/x509"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/tlsbridge/pkg/cert"
	"github.com/mash-protocol/tlsbridge/pkg/native"
	"github.com/mash-protocol/tlsbridge/pkg/transport"
)

const serverName = "device.local"

type pki struct {
	ca     *cert.Authority
	server cert.Identity
	client cert.Identity
}

func newPKI(t *testing.T) *pki {
	t.Helper()
	ca, err := cert.NewAuthority("test-ca")
	require.NoError(t, err)
	server, err := ca.IssueServer(serverName, []string{serverName}, nil)
	require.NoError(t, err)
	client, err := ca.IssueClient("controller")
	require.NoError(t, err)
	return &pki{ca: ca, server: server, client: client}
}

func (p *pki) anchors() []*x509.Certificate {
	return []*x509.Certificate{p.ca.Certificate}
}

func newClient(t *testing.T, p *pki, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(native.SideClient, native.ConnectionStream, opts...)
	require.NoError(t, err)
	require.NoError(t, e.SetPeerDomainName(serverName))
	require.NoError(t, e.SetCertificateAuthorities(p.anchors(), true))
	return e
}

func newServer(t *testing.T, p *pki, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(native.SideServer, native.ConnectionStream, opts...)
	require.NoError(t, err)
	require.NoError(t, e.SetCertificate(p.server, nil))
	require.NoError(t, e.SetCertificateAuthorities(p.anchors(), true))
	return e
}

// pipe returns a non-blocking in-memory stream pair.
func pipe() (*transport.PipeConn, *transport.PipeConn) {
	a, b := transport.Pipe()
	a.SetNonBlocking(true)
	b.SetNonBlocking(true)
	return a, b
}

// drive resumes WouldBlock outcomes on both ends from one goroutine until
// neither would block, or one end stops on anything but Ready.
func drive(t *testing.T, c, s Outcome) (Outcome, Outcome) {
	t.Helper()
	for range 100 {
		if wb, ok := c.(WouldBlock); ok {
			c = wb.Suspended.Resume()
		}
		if wb, ok := s.(WouldBlock); ok {
			s = wb.Suspended.Resume()
		}
		_, cw := c.(WouldBlock)
		_, sw := s.(WouldBlock)
		if !cw && !sw {
			return c, s
		}
		if _, ok := c.(Ready); !cw && !ok {
			return c, s
		}
		if _, ok := s.(Ready); !sw && !ok {
			return c, s
		}
	}
	t.Fatalf("handshake did not settle: client=%s server=%s", c.Kind(), s.Kind())
	return c, s
}

// settle resumes o until it stops reporting WouldBlock.
func settle(t *testing.T, o Outcome) Outcome {
	t.Helper()
	for range 100 {
		wb, ok := o.(WouldBlock)
		if !ok {
			return o
		}
		o = wb.Suspended.Resume()
	}
	t.Fatalf("outcome still %s", o.Kind())
	return o
}

// connect runs both handshakes and returns the two sessions.
func connect(t *testing.T, client, server *Engine) (*Session, *Session) {
	t.Helper()
	cc, sc := pipe()
	c, s := drive(t, client.Handshake(cc), server.Handshake(sc))
	return ready(t, c), ready(t, s)
}

func ready(t *testing.T, o Outcome) *Session {
	t.Helper()
	r, ok := o.(Ready)
	if !ok {
		if f, failed := o.(Failed); failed {
			t.Fatalf("handshake failed: %v", f.Err)
		}
		t.Fatalf("expected READY, got %s", o.Kind())
	}
	return r.Session
}

func failed(t *testing.T, o Outcome) error {
	t.Helper()
	f, ok := o.(Failed)
	require.True(t, ok, "expected FAILED, got %s", o.Kind())
	require.Error(t, f.Err)
	return f.Err
}

// readN reads exactly n bytes from a session over a non-blocking stream.
func readN(t *testing.T, s *Session, n int) []byte {
	t.Helper()
	out := make([]byte, 0, n)
	buf := make([]byte, 4096)
	for spins := 0; len(out) < n; spins++ {
		require.Less(t, spins, 10000, "read stalled at %d of %d bytes", len(out), n)
		m, err := s.Read(buf[:min(len(buf), n-len(out))])
		out = append(out, buf[:m]...)
		if errors.Is(err, transport.ErrWouldBlock) {
			continue
		}
		require.NoError(t, err)
	}
	return out
}

// readEOF reads until the session reports an error other than would-block.
func readEOF(t *testing.T, s *Session) error {
	t.Helper()
	buf := make([]byte, 256)
	for range 10000 {
		_, err := s.Read(buf)
		if err == nil || errors.Is(err, transport.ErrWouldBlock) {
			continue
		}
		return err
	}
	t.Fatal("no end of stream")
	return io.ErrNoProgress
}

// faultyConn fails reads with err once set.
type faultyConn struct {
	*transport.PipeConn
	err error
}

func (f *faultyConn) Read(p []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.PipeConn.Read(p)
}

// quietConn reports (0, nil) from Read once quiet is set.
type quietConn struct {
	*transport.PipeConn
	quiet bool
}

func (q *quietConn) Read(p []byte) (int, error) {
	if q.quiet {
		return 0, nil
	}
	return q.PipeConn.Read(p)
}

// stallConn refuses writes with a would-block error while stalled.
type stallConn struct {
	*transport.PipeConn
	stalled bool
}

func (s *stallConn) Write(p []byte) (int, error) {
	if s.stalled {
		return 0, transport.ErrWouldBlock
	}
	return s.PipeConn.Write(p)
}

// brokenConn fails every operation.
type brokenConn struct {
	err error
}

func (b brokenConn) Read([]byte) (int, error)  { return 0, b.err }
func (b brokenConn) Write([]byte) (int, error) { return 0, b.err }
