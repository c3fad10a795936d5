package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mash-protocol/tlsbridge/pkg/cert"
	"github.com/mash-protocol/tlsbridge/pkg/client"
	"github.com/mash-protocol/tlsbridge/pkg/config"
	"github.com/mash-protocol/tlsbridge/pkg/connection"
	"github.com/mash-protocol/tlsbridge/pkg/discovery"
	"github.com/mash-protocol/tlsbridge/pkg/native/gotls"
	"github.com/mash-protocol/tlsbridge/pkg/session"
	"github.com/mash-protocol/tlsbridge/pkg/transport"
	"github.com/mash-protocol/tlsbridge/pkg/version"
)

// ticketLifetime bounds how long a session ticket is offered for
// resumption across retries.
const ticketLifetime = time.Hour

type connectOptions struct {
	commonFlags
	pin         string
	pairing     string
	find        string
	iface       string
	peerName    string
	alpn        string
	clientHello string
	retries     int
	timeout     time.Duration
	send        string
	wait        time.Duration
}

// target is where to connect and what to expect there.
type target struct {
	address  string
	pin      string
	peerName string
}

func runConnect(args []string) error {
	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	fs.Usage = usageFor(fs, `tlsbridge connect - Establish a session and exchange data

The server is given as host:port, as a pairing code (-pairing), or found over
mDNS by instance name or certificate fingerprint (-find). Without -send an
interactive prompt is started.

Usage:
  tlsbridge connect [flags] [host:port]

Flags:
`)

	var opts connectOptions
	opts.register(fs)
	fs.StringVar(&opts.pin, "pin", "", "Accept the server on this SHA-256 certificate fingerprint")
	fs.StringVar(&opts.pairing, "pairing", "", "Pairing code printed by tlsbridge serve")
	fs.StringVar(&opts.find, "find", "", "Find the server over mDNS by instance name or fingerprint")
	fs.StringVar(&opts.iface, "interface", "", "Network interface for mDNS (default: all)")
	fs.StringVar(&opts.peerName, "peer-name", "", "Expected server name")
	fs.StringVar(&opts.alpn, "alpn", "", "Comma-separated ALPN protocols (default: "+strings.Join(version.SupportedALPNProtocols(), ",")+")")
	fs.StringVar(&opts.clientHello, "client-hello", "", "ClientHello profile: standard, golang, chrome, firefox, safari, ios, randomized")
	fs.IntVar(&opts.retries, "retries", 0, "Additional connection attempts")
	fs.DurationVar(&opts.timeout, "timeout", 0, "Connect and handshake timeout (default: profile or 10s)")
	fs.StringVar(&opts.send, "send", "", "Send this text, print the reply and exit")
	fs.DurationVar(&opts.wait, "wait", 2*time.Second, "How long to wait for a reply")

	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var shell *Shell
	var logOut io.Writer = os.Stderr
	if opts.send == "" {
		var err error
		if shell, err = NewShell(opts.wait); err != nil {
			return err
		}
		defer shell.Close()
		logOut = shell.Stderr()
	}

	logger, err := newLogger(opts.logLevel, logOut)
	if err != nil {
		return err
	}

	tgt, err := resolveTarget(ctx, opts, fs.Args())
	if err != nil {
		return err
	}
	p, err := connectProfile(opts, tgt)
	if err != nil {
		return err
	}

	eventPath := opts.eventLog
	if eventPath == "" {
		eventPath = p.Resolve(p.EventLog)
	}
	events, closeEvents, err := openEventLog(eventPath, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	tickets := gotls.NewTicketCache(ticketLifetime)
	c, err := client.New(client.Config{
		NewEngine: func() (*session.Engine, error) {
			return p.NewEngine(
				session.WithFactory(p.Factory(tickets)),
				session.WithLogger(events),
				session.WithSlog(logger),
			)
		},
		Handlers:       p.Handlers(),
		ConnectTimeout: p.Timeout(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	conn, err := c.Dial(ctx, tgt.address, connection.RetryConfig{
		Attempts: opts.retries + 1,
		Logger:   logger,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logger.Warn("connect failed, retrying",
				"attempt", attempt,
				"delay", delay,
				"error", err)
		},
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	out := os.Stdout
	if shell != nil {
		printSummary(shell.Stdout(), conn.Engine())
		shell.Run(ctx, conn)
		return nil
	}

	printSummary(out, conn.Engine())
	reply, err := exchange(conn, []byte(opts.send), opts.wait)
	if len(reply) > 0 {
		fmt.Fprintf(out, "%s\n", reply)
	}
	return err
}

// resolveTarget turns the connect flags and arguments into an address.
func resolveTarget(ctx context.Context, opts connectOptions, args []string) (target, error) {
	switch {
	case opts.pairing != "":
		code, err := discovery.ParsePairingCode(opts.pairing)
		if err != nil {
			return target{}, err
		}
		return target{address: code.Address, pin: code.Fingerprint}, nil

	case opts.find != "":
		browser, err := discovery.NewMDNSBrowser(discovery.BrowserConfig{
			BrowseTimeout: discovery.BrowseTimeout,
			Interface:     opts.iface,
		})
		if err != nil {
			return target{}, err
		}
		defer browser.Stop()

		match := discovery.MatchInstance(opts.find)
		if fp, ok := cert.NormalizeFingerprint(opts.find); ok {
			match = discovery.MatchFingerprint(fp)
		}
		svc, err := browser.Find(ctx, match)
		if err != nil {
			return target{}, fmt.Errorf("find %s: %w", opts.find, err)
		}
		return target{address: svc.Address(), pin: svc.Fingerprint, peerName: svc.PeerName}, nil

	case len(args) > 0:
		return target{address: args[0]}, nil
	}
	return target{}, errors.New("server address, -pairing or -find required")
}

// connectProfile loads the client profile, or builds one, and applies the
// command-line overrides. Values found through discovery only fill gaps.
func connectProfile(opts connectOptions, tgt target) (*config.Profile, error) {
	p := &config.Profile{
		Side: "client",
		ALPN: version.SupportedALPNProtocols(),
	}
	if opts.profile != "" {
		var err error
		if p, err = config.Load(opts.profile); err != nil {
			return nil, err
		}
		if p.Side != "client" {
			return nil, fmt.Errorf("profile %s is a %s profile", opts.profile, p.Side)
		}
	}

	switch {
	case opts.pin != "":
		p.Pin = opts.pin
	case p.Pin == "":
		p.Pin = tgt.pin
	}
	switch {
	case opts.peerName != "":
		p.PeerName = opts.peerName
	case p.PeerName == "":
		p.PeerName = tgt.peerName
	}
	if opts.alpn != "" {
		p.ALPN = strings.Split(opts.alpn, ",")
	}
	if opts.clientHello != "" {
		p.ClientHello = opts.clientHello
	}
	if opts.timeout > 0 {
		p.HandshakeTimeout = opts.timeout
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// printSummary reports the negotiated session parameters.
func printSummary(w io.Writer, e *session.Engine) {
	v, _ := e.NegotiatedProtocolVersion()
	suite, _ := e.NegotiatedCipher()
	alpn, _ := e.NegotiatedALPN()
	certState, _ := e.ClientCertificateState()

	fmt.Fprintf(w, "Connected: %s %s\n", v, suite)
	if alpn != "" {
		fmt.Fprintf(w, "ALPN:      %s\n", alpn)
	}
	fmt.Fprintf(w, "Client certificate: %s\n", certState)
	if trust, err := e.PeerTrust(); err == nil && trust.Leaf() != nil {
		fmt.Fprintf(w, "Server:    %s (%s)\n", trust.Leaf().Subject.CommonName, cert.ShortFingerprint(trust.Leaf()))
	}

	if err := version.CheckNegotiated(alpn); err != nil {
		fmt.Fprintf(w, "Warning:   %v\n", err)
	}
}

// stream is an established session whose transport accepts deadlines.
type stream interface {
	io.ReadWriter
	Flush() error
	SetDeadline(t time.Time) error
}

// exchange sends msg and collects the reply until as many bytes as were sent
// arrived or wait elapsed. A partial reply after a timeout is not an error.
func exchange(s stream, msg []byte, wait time.Duration) ([]byte, error) {
	if _, err := s.Write(msg); err != nil {
		return nil, err
	}
	if err := s.Flush(); err != nil {
		return nil, err
	}

	if err := s.SetDeadline(time.Now().Add(wait)); err != nil {
		return nil, err
	}
	defer s.SetDeadline(time.Time{})

	reply := make([]byte, 0, len(msg))
	buf := make([]byte, 16*1024)
	for len(reply) < len(msg) {
		n, err := s.Read(buf)
		reply = append(reply, buf[:n]...)
		if transport.IsWouldBlock(err) {
			return reply, nil
		}
		if err != nil {
			return reply, err
		}
	}
	return reply, nil
}
