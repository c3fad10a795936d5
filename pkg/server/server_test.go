package server_test

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mash-protocol/tlsbridge/pkg/cert"
	"github.com/mash-protocol/tlsbridge/pkg/client"
	"github.com/mash-protocol/tlsbridge/pkg/log"
	"github.com/mash-protocol/tlsbridge/pkg/native"
	"github.com/mash-protocol/tlsbridge/pkg/server"
	"github.com/mash-protocol/tlsbridge/pkg/session"
)

const serverName = "device.local"

type testPKI struct {
	ca     *cert.Authority
	server cert.Identity
	client cert.Identity
}

func newTestPKI(t *testing.T) *testPKI {
	t.Helper()
	ca, err := cert.NewAuthority("test-ca")
	if err != nil {
		t.Fatalf("Failed to create CA: %v", err)
	}
	srv, err := ca.IssueServer(serverName, []string{serverName}, nil)
	if err != nil {
		t.Fatalf("Failed to issue server certificate: %v", err)
	}
	cli, err := ca.IssueClient("controller")
	if err != nil {
		t.Fatalf("Failed to issue client certificate: %v", err)
	}
	return &testPKI{ca: ca, server: srv, client: cli}
}

func (p *testPKI) pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(p.ca.Certificate)
	return pool
}

func (p *testPKI) serverEngine(policy native.AuthPolicy) func() (*session.Engine, error) {
	return func() (*session.Engine, error) {
		e, err := session.NewEngine(native.SideServer, native.ConnectionStream)
		if err != nil {
			return nil, err
		}
		if err := e.SetCertificate(p.server, nil); err != nil {
			return nil, err
		}
		if err := e.SetCertificateAuthorities([]*x509.Certificate{p.ca.Certificate}, true); err != nil {
			return nil, err
		}
		if policy != native.AuthNever {
			if err := e.SetClientSideAuthenticate(policy); err != nil {
				return nil, err
			}
		}
		return e, nil
	}
}

func (p *testPKI) clientEngine() (*session.Engine, error) {
	e, err := session.NewEngine(native.SideClient, native.ConnectionStream)
	if err != nil {
		return nil, err
	}
	if err := e.SetPeerDomainName(serverName); err != nil {
		return nil, err
	}
	if err := e.SetCertificateAuthorities([]*x509.Certificate{p.ca.Certificate}, true); err != nil {
		return nil, err
	}
	if err := e.SetCertificate(p.client, nil); err != nil {
		return nil, err
	}
	return e, nil
}

// echo serves a session by writing back everything it reads.
func echo(_ context.Context, s *server.Session) {
	buf := make([]byte, 4096)
	for {
		n, err := s.Read(buf)
		if n > 0 {
			if _, werr := s.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func startServer(t *testing.T, cfg server.Config) *server.Server {
	t.Helper()
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:0"
	}
	srv, err := server.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv
}

// TestServerStandardClient verifies a crypto/tls client can talk to the
// server.
func TestServerStandardClient(t *testing.T) {
	pki := newTestPKI(t)
	srv := startServer(t, server.Config{
		NewEngine: pki.serverEngine(native.AuthNever),
		Handler:   echo,
	})

	conn, err := tls.Dial("tcp", srv.Addr().String(), &tls.Config{
		RootCAs:    pki.pool(),
		ServerName: serverName,
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if conn.ConnectionState().Version != tls.VersionTLS13 {
		t.Errorf("Expected TLS 1.3, got %x", conn.ConnectionState().Version)
	}

	msg := []byte("hello over the bridge")
	if _, err := conn.Write(msg); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got := make([]byte, len(msg))
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(got) != string(msg) {
		t.Errorf("Expected %q, got %q", msg, got)
	}
}

// TestServerClientPackage connects with the client package and mutual
// authentication.
func TestServerClientPackage(t *testing.T) {
	pki := newTestPKI(t)

	var events atomic.Int32
	srv := startServer(t, server.Config{
		NewEngine: pki.serverEngine(native.AuthAlways),
		Handler:   echo,
		EventLog: log.LoggerFunc(func(e log.Event) {
			if e.Category == log.CategoryState {
				events.Add(1)
			}
		}),
	})

	c, err := client.New(client.Config{NewEngine: pki.clientEngine})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := c.Connect(ctx, srv.Addr().String())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if conn.RemoteAddr().String() != srv.Addr().String() {
		t.Errorf("Expected remote %s, got %s", srv.Addr(), conn.RemoteAddr())
	}

	msg := make([]byte, 40000)
	for i := range msg {
		msg[i] = byte(i)
	}
	if _, err := conn.Write(msg); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got := make([]byte, len(msg))
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	for i := range msg {
		if got[i] != msg[i] {
			t.Fatalf("Mismatch at byte %d", i)
		}
	}

	if srv.SessionCount() != 1 {
		t.Errorf("Expected 1 session, got %d", srv.SessionCount())
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	waitFor(t, func() bool { return srv.SessionCount() == 0 })
	waitFor(t, func() bool { return events.Load() == 2 })
}

// TestServerHandshakeFailure verifies a failed handshake is reported.
func TestServerHandshakeFailure(t *testing.T) {
	pki := newTestPKI(t)

	errs := make(chan error, 1)
	srv := startServer(t, server.Config{
		NewEngine: pki.serverEngine(native.AuthAlways),
		Handler:   echo,
		OnError: func(_ net.Addr, err error) {
			select {
			case errs <- err:
			default:
			}
		},
	})

	// No client certificate while the server requires one.
	conn, err := tls.Dial("tcp", srv.Addr().String(), &tls.Config{
		RootCAs:    pki.pool(),
		ServerName: serverName,
	})
	if err == nil {
		// TLS 1.3 client auth failures surface on the first read.
		_, err = conn.Read(make([]byte, 1))
		conn.Close()
	}
	if err == nil {
		t.Fatal("Expected the connection to fail")
	}

	select {
	case err := <-errs:
		if err == nil {
			t.Error("Expected a non-nil error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnError was not called")
	}
	if srv.SessionCount() != 0 {
		t.Errorf("Expected no sessions, got %d", srv.SessionCount())
	}
}

// TestServerStopClosesSessions verifies Stop interrupts blocked handlers.
func TestServerStopClosesSessions(t *testing.T) {
	pki := newTestPKI(t)

	entered := make(chan struct{})
	returned := make(chan error, 1)
	srv, err := server.New(server.Config{
		Address:   "127.0.0.1:0",
		NewEngine: pki.serverEngine(native.AuthNever),
		Handler: func(_ context.Context, s *server.Session) {
			close(entered)
			_, err := s.Read(make([]byte, 16))
			returned <- err
		},
	})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if err := srv.Start(context.Background()); !errors.Is(err, server.ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}

	conn, err := tls.Dial("tcp", srv.Addr().String(), &tls.Config{
		RootCAs:    pki.pool(),
		ServerName: serverName,
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("Handler was not called")
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	select {
	case err := <-returned:
		if err == nil {
			t.Error("Expected the blocked read to fail")
		}
	default:
		t.Fatal("Stop returned before the handler")
	}

	// Stop is idempotent.
	if err := srv.Stop(); err != nil {
		t.Errorf("Second Stop failed: %v", err)
	}
}

// TestServerConcurrentStart verifies only one of several racing Starts
// listens.
func TestServerConcurrentStart(t *testing.T) {
	pki := newTestPKI(t)
	srv, err := server.New(server.Config{
		Address:   "127.0.0.1:0",
		NewEngine: pki.serverEngine(native.AuthNever),
		Handler:   echo,
	})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	defer srv.Stop()

	const racers = 8
	errs := make(chan error, racers)
	start := make(chan struct{})
	for range racers {
		go func() {
			<-start
			errs <- srv.Start(context.Background())
		}()
	}
	close(start)

	var started int
	for range racers {
		err := <-errs
		switch {
		case err == nil:
			started++
		case !errors.Is(err, server.ErrAlreadyRunning):
			t.Errorf("Unexpected Start error: %v", err)
		}
	}
	if started != 1 {
		t.Errorf("Expected exactly one Start to succeed, got %d", started)
	}
}

// TestServerStartAfterListenFailure verifies a failed Start can be retried.
func TestServerStartAfterListenFailure(t *testing.T) {
	pki := newTestPKI(t)
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	srv, err := server.New(server.Config{
		Address:   busy.Addr().String(),
		NewEngine: pki.serverEngine(native.AuthNever),
		Handler:   echo,
	})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	defer srv.Stop()

	if err := srv.Start(context.Background()); err == nil || errors.Is(err, server.ErrAlreadyRunning) {
		t.Fatalf("Expected a listen error, got %v", err)
	}
	busy.Close()
	if err := srv.Start(context.Background()); err != nil {
		t.Errorf("Start after the port was freed failed: %v", err)
	}
}

func TestNewServerValidation(t *testing.T) {
	if _, err := server.New(server.Config{Handler: echo}); err == nil {
		t.Error("Expected an error without NewEngine")
	}
	pki := newTestPKI(t)
	if _, err := server.New(server.Config{NewEngine: pki.serverEngine(native.AuthNever)}); err == nil {
		t.Error("Expected an error without Handler")
	}
	srv, err := server.New(server.Config{NewEngine: pki.serverEngine(native.AuthNever), Handler: echo})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if srv.Addr() != nil {
		t.Error("Expected nil Addr before Start")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
