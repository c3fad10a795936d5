package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mash-protocol/tlsbridge/pkg/cert"
	"github.com/mash-protocol/tlsbridge/pkg/client"
	"github.com/mash-protocol/tlsbridge/pkg/config"
	"github.com/mash-protocol/tlsbridge/pkg/log"
	"github.com/mash-protocol/tlsbridge/pkg/server"
	"github.com/mash-protocol/tlsbridge/pkg/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startServer runs a server for profile p on a loopback port.
func startServer(t *testing.T, p *config.Profile, handler func(context.Context, *server.Session)) *server.Server {
	t.Helper()
	srv, err := server.New(server.Config{
		Address:   "127.0.0.1:0",
		NewEngine: func() (*session.Engine, error) { return p.NewEngine() },
		Handlers:  p.Handlers(),
		Handler:   handler,
		Logger:    discardLogger(),
	})
	if err != nil {
		t.Fatalf("server.New failed: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func connectTo(t *testing.T, p *config.Profile, address string) *client.Conn {
	t.Helper()
	c, err := client.New(client.Config{
		NewEngine: func() (*session.Engine, error) { return p.NewEngine() },
		Handlers:  p.Handlers(),
		Logger:    discardLogger(),
	})
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := c.Connect(ctx, address)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func generate(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "pki")
	var out bytes.Buffer
	if err := runGencert([]string{"-out", dir, "-name", "device.local", "-ip", "127.0.0.1"}, &out); err != nil {
		t.Fatalf("gencert failed: %v", err)
	}
	if !strings.Contains(out.String(), "Server: ") {
		t.Errorf("unexpected gencert output: %s", out.String())
	}
	return dir
}

func TestGencertProfilesEcho(t *testing.T) {
	dir := generate(t)

	serverP, err := config.Load(filepath.Join(dir, serverProfile))
	if err != nil {
		t.Fatalf("load server profile: %v", err)
	}
	clientP, err := config.Load(filepath.Join(dir, clientProfile))
	if err != nil {
		t.Fatalf("load client profile: %v", err)
	}
	if serverP.ClientAuth != "always" || clientP.PeerName != "device.local" {
		t.Fatalf("unexpected profiles: %+v %+v", serverP, clientP)
	}

	srv := startServer(t, serverP, echoHandler(discardLogger()))
	conn := connectTo(t, clientP, srv.Addr().String())

	reply, err := exchange(conn, []byte("hello bridge"), 5*time.Second)
	if err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	if string(reply) != "hello bridge" {
		t.Errorf("expected echo, got %q", reply)
	}

	alpn, _ := conn.Engine().NegotiatedALPN()
	if alpn != "tlsbridge/1" {
		t.Errorf("expected tlsbridge/1, got %q", alpn)
	}

	var summary bytes.Buffer
	printSummary(&summary, conn.Engine())
	for _, want := range []string{"Connected: ", "ALPN:      tlsbridge/1", "Server:    device.local"} {
		if !strings.Contains(summary.String(), want) {
			t.Errorf("expected %q in summary, got: %s", want, summary.String())
		}
	}
}

func TestExchangeTimesOutWithoutReply(t *testing.T) {
	dir := generate(t)
	serverP, _ := config.Load(filepath.Join(dir, serverProfile))
	clientP, _ := config.Load(filepath.Join(dir, clientProfile))

	srv := startServer(t, serverP, func(ctx context.Context, s *server.Session) {
		<-ctx.Done()
	})
	conn := connectTo(t, clientP, srv.Addr().String())

	start := time.Now()
	reply, err := exchange(conn, []byte("anyone there?"), 200*time.Millisecond)
	if err != nil {
		t.Fatalf("expected a silent timeout, got %v", err)
	}
	if len(reply) != 0 {
		t.Errorf("expected no reply, got %q", reply)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("returned after %v, before the wait elapsed", elapsed)
	}
}

func TestPairingCodeConnect(t *testing.T) {
	stateDir := t.TempDir()
	serverP, err := serveProfile(serveOptions{stateDir: stateDir, name: "bridge.local", clientAuth: "never"})
	if err != nil {
		t.Fatalf("serveProfile failed: %v", err)
	}
	leaf, err := profileLeaf(serverP)
	if err != nil {
		t.Fatalf("profileLeaf failed: %v", err)
	}
	if leafName(leaf) != "bridge.local" {
		t.Errorf("unexpected leaf name %q", leafName(leaf))
	}

	srv := startServer(t, serverP, echoHandler(discardLogger()))
	code := "TLSB:1:" + srv.Addr().String() + ":" + cert.Fingerprint(leaf)

	tgt, err := resolveTarget(context.Background(), connectOptions{pairing: code}, nil)
	if err != nil {
		t.Fatalf("resolveTarget failed: %v", err)
	}
	clientP, err := connectProfile(connectOptions{}, tgt)
	if err != nil {
		t.Fatalf("connectProfile failed: %v", err)
	}
	if clientP.Pin != cert.Fingerprint(leaf) {
		t.Errorf("pin not taken from pairing code: %q", clientP.Pin)
	}

	conn := connectTo(t, clientP, tgt.address)
	reply, err := exchange(conn, []byte("paired"), 5*time.Second)
	if err != nil || string(reply) != "paired" {
		t.Errorf("exchange = %q, %v", reply, err)
	}
}

func TestEnsureIdentityIsStable(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile, err := ensureIdentity(dir, "bridge.local")
	if err != nil {
		t.Fatalf("ensureIdentity failed: %v", err)
	}
	first, err := cert.ReadCertsFile(certFile)
	if err != nil {
		t.Fatalf("read cert: %v", err)
	}

	certFile2, keyFile2, err := ensureIdentity(dir, "other.local")
	if err != nil {
		t.Fatalf("second ensureIdentity failed: %v", err)
	}
	if certFile2 != certFile || keyFile2 != keyFile {
		t.Errorf("paths changed: %s %s", certFile2, keyFile2)
	}
	second, _ := cert.ReadCertsFile(certFile2)
	if cert.Fingerprint(first[0]) != cert.Fingerprint(second[0]) {
		t.Error("identity regenerated although it existed")
	}
}

func TestServeProfileRejectsClientProfile(t *testing.T) {
	dir := generate(t)
	if _, err := serveProfile(serveOptions{commonFlags: commonFlags{profile: filepath.Join(dir, clientProfile)}}); err == nil {
		t.Error("expected error for a client profile")
	}
}

func TestConnectProfileOverrides(t *testing.T) {
	fp := strings.Repeat("ab", 32)
	tgt := target{address: "10.0.0.5:8443", pin: fp, peerName: "found.local"}

	p, err := connectProfile(connectOptions{}, tgt)
	if err != nil {
		t.Fatalf("connectProfile failed: %v", err)
	}
	if p.Pin != fp || p.PeerName != "found.local" {
		t.Errorf("discovered values not used: %+v", p)
	}
	if len(p.ALPN) != 1 || p.ALPN[0] != "tlsbridge/1" {
		t.Errorf("unexpected default ALPN %v", p.ALPN)
	}

	other := strings.Repeat("cd", 32)
	p, err = connectProfile(connectOptions{
		pin:         other,
		peerName:    "given.local",
		alpn:        "h2,tlsbridge/1",
		clientHello: "chrome",
		timeout:     3 * time.Second,
	}, tgt)
	if err != nil {
		t.Fatalf("connectProfile failed: %v", err)
	}
	if p.Pin != other || p.PeerName != "given.local" {
		t.Errorf("flags did not win: %+v", p)
	}
	if len(p.ALPN) != 2 || p.ALPN[0] != "h2" {
		t.Errorf("unexpected ALPN %v", p.ALPN)
	}
	if p.Timeout() != 3*time.Second {
		t.Errorf("unexpected timeout %v", p.Timeout())
	}

	if _, err := connectProfile(connectOptions{clientHello: "netscape"}, tgt); err == nil {
		t.Error("expected error for unknown client hello")
	}
	if _, err := connectProfile(connectOptions{pin: "xyz"}, tgt); err == nil {
		t.Error("expected error for malformed pin")
	}
}

func TestResolveTarget(t *testing.T) {
	tgt, err := resolveTarget(context.Background(), connectOptions{}, []string{"device.local:8443"})
	if err != nil || tgt.address != "device.local:8443" || tgt.pin != "" {
		t.Errorf("resolveTarget = %+v, %v", tgt, err)
	}

	if _, err := resolveTarget(context.Background(), connectOptions{}, nil); err == nil {
		t.Error("expected error without an address")
	}
	if _, err := resolveTarget(context.Background(), connectOptions{pairing: "PAIR:1:x"}, nil); err == nil {
		t.Error("expected error for a bad pairing code")
	}
}

func TestFingerprintCommand(t *testing.T) {
	dir := generate(t)

	var out bytes.Buffer
	if err := runFingerprint([]string{filepath.Join(dir, serverCertFile)}, &out); err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	certs, _ := cert.ReadCertsFile(filepath.Join(dir, serverCertFile))
	if !strings.Contains(out.String(), cert.Fingerprint(certs[0])) {
		t.Errorf("fingerprint missing from output: %s", out.String())
	}
	if !strings.Contains(out.String(), "Subject:     device.local") {
		t.Errorf("subject missing from output: %s", out.String())
	}

	if err := runFingerprint(nil, io.Discard); err == nil {
		t.Error("expected error without arguments")
	}
}

func TestGencertRejectsBadIP(t *testing.T) {
	err := runGencert([]string{"-out", t.TempDir(), "-ip", "300.1.1.1"}, io.Discard)
	if err == nil {
		t.Error("expected error for invalid IP")
	}
}

// loopback is an in-memory stream that reports end of data once its input is
// consumed.
type loopback struct {
	in      *strings.Reader
	out     bytes.Buffer
	flushes int
}

func (l *loopback) Read(p []byte) (int, error)  { return l.in.Read(p) }
func (l *loopback) Write(p []byte) (int, error) { return l.out.Write(p) }
func (l *loopback) Flush() error                { l.flushes++; return nil }

func TestEcho(t *testing.T) {
	l := &loopback{in: strings.NewReader("ping")}
	n, err := echo(l)
	if err != nil {
		t.Fatalf("echo failed: %v", err)
	}
	if n != 4 || l.out.String() != "ping" {
		t.Errorf("echoed %d bytes: %q", n, l.out.String())
	}
	if l.flushes == 0 {
		t.Error("echo did not flush")
	}
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"", "debug", "info", "warn", "ERROR"} {
		if _, err := newLogger(level, io.Discard); err != nil {
			t.Errorf("newLogger(%q) failed: %v", level, err)
		}
	}
	if _, err := newLogger("verbose", io.Discard); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestOpenEventLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cbor")
	events, closeFn, err := openEventLog(path, discardLogger())
	if err != nil {
		t.Fatalf("openEventLog failed: %v", err)
	}
	events.Log(log.Event{Timestamp: time.Now(), ConnectionID: "c1", Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{NewState: "CONNECTED"}})
	if err := closeFn(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()
	event, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if event.ConnectionID != "c1" {
		t.Errorf("unexpected event %+v", event)
	}

	_, closeFn, err = openEventLog("", discardLogger())
	if err != nil || closeFn() != nil {
		t.Errorf("console-only event log: %v", err)
	}
}
