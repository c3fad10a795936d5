package main

import (
	"context"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/mash-protocol/tlsbridge/pkg/cert"
	"github.com/mash-protocol/tlsbridge/pkg/config"
	"github.com/mash-protocol/tlsbridge/pkg/discovery"
	"github.com/mash-protocol/tlsbridge/pkg/server"
	"github.com/mash-protocol/tlsbridge/pkg/session"
	"github.com/mash-protocol/tlsbridge/pkg/version"
)

type serveOptions struct {
	commonFlags
	listen     string
	name       string
	clientAuth string
	stateDir   string
	host       string
	advertise  bool
	instance   string
	iface      string
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.Usage = usageFor(fs, `tlsbridge serve - Accept sessions and echo what each peer sends

Without -profile a self-signed identity is created in the state directory on
first use and reused afterwards, so its fingerprint stays stable.

Usage:
  tlsbridge serve [flags]

Flags:
`)

	var opts serveOptions
	opts.register(fs)
	fs.StringVar(&opts.listen, "listen", fmt.Sprintf(":%d", server.DefaultPort), "Listen address")
	fs.StringVar(&opts.name, "name", "device.local", "DNS name of the self-signed identity")
	fs.StringVar(&opts.clientAuth, "client-auth", "never", "Client certificate policy without a profile: never, try, always")
	fs.StringVar(&opts.stateDir, "state-dir", "", "Directory for the self-signed identity (default: user config dir)")
	fs.StringVar(&opts.host, "host", "", "Host to put in the pairing code (default: first non-loopback address)")
	fs.BoolVar(&opts.advertise, "advertise", false, "Advertise the server over mDNS")
	fs.StringVar(&opts.instance, "instance", "", "mDNS instance name (default: derived from the fingerprint)")
	fs.StringVar(&opts.iface, "interface", "", "Network interface for mDNS (default: all)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	logger, err := newLogger(opts.logLevel, os.Stderr)
	if err != nil {
		return err
	}

	p, err := serveProfile(opts)
	if err != nil {
		return err
	}
	leaf, err := profileLeaf(p)
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

	srv, err := server.New(server.Config{
		Address: opts.listen,
		NewEngine: func() (*session.Engine, error) {
			return p.NewEngine(session.WithLogger(events), session.WithSlog(logger))
		},
		Handlers:         p.Handlers(),
		Handler:          echoHandler(logger),
		HandshakeTimeout: p.Timeout(),
		Logger:           logger,
		EventLog:         events,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Stop()

	port := srv.Addr().(*net.TCPAddr).Port
	fp := cert.Fingerprint(leaf)

	host := opts.host
	if host == "" {
		host = pairingHost()
	}
	code, err := discovery.NewPairingCode(net.JoinHostPort(host, strconv.Itoa(port)), fp)
	if err != nil {
		return err
	}

	fmt.Printf("Listening on %s\n", srv.Addr())
	fmt.Printf("Fingerprint:  %s\n", fp)
	fmt.Printf("Pairing code: %s\n", code)

	if opts.advertise {
		adv, err := discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{
			Interface: opts.iface,
			TTL:       discovery.DefaultTTL,
		})
		if err != nil {
			return err
		}
		info := &discovery.ServiceInfo{
			InstanceName: opts.instance,
			Port:         uint16(port),
			Fingerprint:  fp,
			PeerName:     leafName(leaf),
			ALPN:         p.ALPN,
			MinVersion:   p.MinVersion,
		}
		if err := adv.Advertise(ctx, info); err != nil {
			return err
		}
		defer adv.Stop()
		fmt.Printf("Advertising %s.%s\n", info.Instance(), discovery.ServiceType)
	}

	<-ctx.Done()
	logger.Info("shutting down", "sessions", srv.SessionCount())
	return nil
}

// serveProfile loads the configured profile, or describes a server using a
// persistent self-signed identity.
func serveProfile(opts serveOptions) (*config.Profile, error) {
	if opts.profile != "" {
		p, err := config.Load(opts.profile)
		if err != nil {
			return nil, err
		}
		if p.Side != "server" {
			return nil, fmt.Errorf("profile %s is a %s profile", opts.profile, p.Side)
		}
		return p, nil
	}

	dir := opts.stateDir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(base, "tlsbridge")
	}
	certFile, keyFile, err := ensureIdentity(dir, opts.name)
	if err != nil {
		return nil, err
	}

	p := &config.Profile{
		Side:        "server",
		Certificate: certFile,
		Key:         keyFile,
		ALPN:        version.SupportedALPNProtocols(),
		ClientAuth:  opts.clientAuth,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ensureIdentity returns the self-signed identity files in dir, creating them
// when either is missing.
func ensureIdentity(dir, name string) (certFile, keyFile string, err error) {
	certFile = filepath.Join(dir, "identity.pem")
	keyFile = filepath.Join(dir, "identity.key")

	_, certErr := os.Stat(certFile)
	_, keyErr := os.Stat(keyFile)
	if certErr == nil && keyErr == nil {
		return certFile, keyFile, nil
	}
	if certErr != nil && !errors.Is(certErr, os.ErrNotExist) {
		return "", "", certErr
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", err
	}
	id, err := cert.NewSelfSigned(name, name)
	if err != nil {
		return "", "", err
	}
	if err := cert.WriteCertFile(certFile, id.Certificate); err != nil {
		return "", "", err
	}
	if err := cert.WriteKeyFile(keyFile, id.PrivateKey); err != nil {
		return "", "", err
	}
	return certFile, keyFile, nil
}

// profileLeaf reads the leaf certificate a profile presents.
func profileLeaf(p *config.Profile) (*x509.Certificate, error) {
	certs, err := cert.ReadCertsFile(p.Resolve(p.Certificate))
	if err != nil {
		return nil, err
	}
	return certs[0], nil
}

// leafName is the name clients should expect for leaf.
func leafName(leaf *x509.Certificate) string {
	if len(leaf.DNSNames) > 0 {
		return leaf.DNSNames[0]
	}
	return leaf.Subject.CommonName
}

// pairingHost returns the first non-loopback unicast address, or the host
// name when there is none.
func pairingHost() string {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() || !ipnet.IP.IsGlobalUnicast() {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return ip4.String()
			}
		}
	}
	if name, err := os.Hostname(); err == nil {
		return name
	}
	return "localhost"
}

// echoHandler returns a session handler that writes back everything it
// reads.
func echoHandler(logger *slog.Logger) func(context.Context, *server.Session) {
	return func(_ context.Context, s *server.Session) {
		n, err := echo(s)
		logger.Info("session ended",
			"remote", s.RemoteAddr(),
			"bytes", n,
			"error", err)
	}
}

// echo copies s onto itself until end of stream. It returns the number of
// bytes echoed and any error other than io.EOF.
func echo(s io.ReadWriter) (int64, error) {
	buf := make([]byte, 16*1024)
	var total int64
	for {
		n, err := s.Read(buf)
		if n > 0 {
			if _, werr := s.Write(buf[:n]); werr != nil {
				return total, werr
			}
			if f, ok := s.(interface{ Flush() error }); ok {
				if ferr := f.Flush(); ferr != nil {
					return total, ferr
				}
			}
			total += int64(n)
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
