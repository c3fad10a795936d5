package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/tlsbridge/pkg/cert"
	"github.com/mash-protocol/tlsbridge/pkg/connection"
	"github.com/mash-protocol/tlsbridge/pkg/native"
	"github.com/mash-protocol/tlsbridge/pkg/session"
)

const serverName = "device.local"

type fixture struct {
	ca     *cert.Authority
	server cert.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ca, err := cert.NewAuthority("test-ca")
	require.NoError(t, err)
	server, err := ca.IssueServer(serverName, []string{serverName}, nil)
	require.NoError(t, err)
	return &fixture{ca: ca, server: server}
}

// listenTLS starts a crypto/tls echo server.
func (f *fixture) listenTLS(t *testing.T) net.Listener {
	t.Helper()
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{f.server.TLSCertificate(nil)},
	})
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()
	return ln
}

func (f *fixture) newEngine(opts ...func(*session.Engine) error) func() (*session.Engine, error) {
	return func() (*session.Engine, error) {
		e, err := session.NewEngine(native.SideClient, native.ConnectionStream)
		if err != nil {
			return nil, err
		}
		if err := e.SetPeerDomainName(serverName); err != nil {
			return nil, err
		}
		if err := e.SetCertificateAuthorities([]*x509.Certificate{f.ca.Certificate}, true); err != nil {
			return nil, err
		}
		for _, opt := range opts {
			if err := opt(e); err != nil {
				return nil, err
			}
		}
		return e, nil
	}
}

// silentListener accepts connections and never answers.
func silentListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		var held []net.Conn
		defer func() {
			for _, c := range held {
				c.Close()
			}
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			held = append(held, conn)
		}
	}()
	return ln
}

func closedAddress(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestNewRequiresEngine(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	c, err := New(Config{NewEngine: func() (*session.Engine, error) { return nil, nil }})
	require.NoError(t, err)
	assert.Equal(t, DefaultConnectTimeout, c.config.ConnectTimeout)
}

func TestConnectStandardServer(t *testing.T) {
	f := newFixture(t)
	ln := f.listenTLS(t)

	c, err := New(Config{NewEngine: f.newEngine()})
	require.NoError(t, err)

	conn, err := c.Connect(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, ln.Addr().String(), conn.RemoteAddr().String())
	assert.NotNil(t, conn.LocalAddr())

	v, err := conn.Engine().NegotiatedProtocolVersion()
	require.NoError(t, err)
	assert.Equal(t, native.VersionTLS13, v)

	msg := []byte(strings.Repeat("ping ", 1000))
	_, err = conn.Write(msg)
	require.NoError(t, err)

	got := make([]byte, len(msg))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestConnectTLS12(t *testing.T) {
	f := newFixture(t)
	ln := f.listenTLS(t)

	c, err := New(Config{NewEngine: f.newEngine(func(e *session.Engine) error {
		return e.SetProtocolVersionMax(native.VersionTLS12)
	})})
	require.NoError(t, err)

	conn, err := c.Connect(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	v, err := conn.Engine().NegotiatedProtocolVersion()
	require.NoError(t, err)
	assert.Equal(t, native.VersionTLS12, v)
}

func TestConnectTimeout(t *testing.T) {
	ln := silentListener(t)
	f := newFixture(t)

	c, err := New(Config{NewEngine: f.newEngine()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Connect(ctx, ln.Addr().String())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestConnectCancel(t *testing.T) {
	ln := silentListener(t)
	f := newFixture(t)

	c, err := New(Config{NewEngine: f.newEngine()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err = c.Connect(ctx, ln.Addr().String())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnectPinMismatch(t *testing.T) {
	f := newFixture(t)
	ln := f.listenTLS(t)

	c, err := New(Config{
		NewEngine: f.newEngine(func(e *session.Engine) error {
			return e.SetBreakOnServerAuth(true)
		}),
		Handlers: connection.Handlers{OnPeerAuth: connection.PinPeer(strings.Repeat("ab", 32))},
	})
	require.NoError(t, err)

	_, err = c.Connect(context.Background(), ln.Addr().String())
	assert.ErrorIs(t, err, connection.ErrPeerRejected)
	assert.ErrorIs(t, err, cert.ErrFingerprintMismatch)
}

func TestConnectPinMatch(t *testing.T) {
	f := newFixture(t)
	ln := f.listenTLS(t)

	c, err := New(Config{
		NewEngine: f.newEngine(func(e *session.Engine) error {
			return e.SetBreakOnServerAuth(true)
		}),
		Handlers: connection.Handlers{OnPeerAuth: connection.PinPeer(cert.Fingerprint(f.server.Certificate))},
	})
	require.NoError(t, err)

	conn, err := c.Connect(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	assert.NoError(t, conn.Close())
}

func TestDialRetries(t *testing.T) {
	f := newFixture(t)
	addr := closedAddress(t)

	var engines atomic.Int32
	newEngine := f.newEngine()
	c, err := New(Config{NewEngine: func() (*session.Engine, error) {
		engines.Add(1)
		return newEngine()
	}})
	require.NoError(t, err)

	var retries int
	_, err = c.Dial(context.Background(), addr, connection.RetryConfig{
		Attempts: 3,
		Backoff:  connection.NewBackoffWithConfig(connection.BackoffConfig{Initial: time.Millisecond, Max: time.Millisecond}),
		OnRetry:  func(int, time.Duration, error) { retries++ },
	})
	assert.ErrorIs(t, err, connection.ErrRetriesExhausted)
	assert.EqualValues(t, 3, engines.Load())
	assert.Equal(t, 2, retries)
}

func TestDialSucceeds(t *testing.T) {
	f := newFixture(t)
	ln := f.listenTLS(t)

	c, err := New(Config{NewEngine: f.newEngine()})
	require.NoError(t, err)

	conn, err := c.Dial(context.Background(), ln.Addr().String(), connection.RetryConfig{Attempts: 2})
	require.NoError(t, err)
	assert.NoError(t, conn.Close())
}

// closeCounter counts Close calls on a net.Conn.
type closeCounter struct {
	net.Conn
	closes atomic.Int32
}

func (c *closeCounter) Close() error {
	c.closes.Add(1)
	return c.Conn.Close()
}

func TestEstablishClosesConnOnce(t *testing.T) {
	f := newFixture(t)

	t.Run("peer hangs up", func(t *testing.T) {
		local, remote := net.Pipe()
		remote.Close()
		conn := &closeCounter{Conn: local}

		engine, err := f.newEngine()()
		require.NoError(t, err)
		_, err = Establish(context.Background(), engine, conn, connection.Handlers{})
		require.Error(t, err)
		assert.Equal(t, int32(1), conn.closes.Load())
	})

	t.Run("peer rejected", func(t *testing.T) {
		local, remote := net.Pipe()
		defer remote.Close()
		go tls.Server(remote, &tls.Config{
			Certificates: []tls.Certificate{f.server.TLSCertificate(nil)},
		}).Handshake()
		conn := &closeCounter{Conn: local}

		engine, err := f.newEngine(func(e *session.Engine) error {
			return e.SetBreakOnServerAuth(true)
		})()
		require.NoError(t, err)
		_, err = Establish(context.Background(), engine, conn, connection.Handlers{
			OnPeerAuth: func(*session.Engine) error { return errors.New("not this one") },
		})
		assert.ErrorIs(t, err, connection.ErrPeerRejected)
		assert.Equal(t, int32(1), conn.closes.Load())
	})
}
