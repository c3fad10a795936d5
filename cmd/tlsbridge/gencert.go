package main

import (
	"crypto/x509"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/mash-protocol/tlsbridge/pkg/cert"
	"github.com/mash-protocol/tlsbridge/pkg/config"
	"github.com/mash-protocol/tlsbridge/pkg/version"
)

// Files written by gencert, relative to the output directory.
const (
	caCertFile     = "ca.pem"
	caKeyFile      = "ca.key"
	serverCertFile = "server.pem"
	serverKeyFile  = "server.key"
	clientCertFile = "client.pem"
	clientKeyFile  = "client.key"
	serverProfile  = "server.yaml"
	clientProfile  = "client.yaml"
)

type gencertOptions struct {
	out    string
	name   string
	client string
	ips    string
}

func runGencert(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("gencert", flag.ContinueOnError)
	fs.Usage = usageFor(fs, `tlsbridge gencert - Create a CA, server and client identities plus profiles

Usage:
  tlsbridge gencert [flags]

Flags:
`)

	var opts gencertOptions
	fs.StringVar(&opts.out, "out", "pki", "Output directory")
	fs.StringVar(&opts.name, "name", "device.local", "Server DNS name")
	fs.StringVar(&opts.client, "client", "controller", "Client common name")
	fs.StringVar(&opts.ips, "ip", "", "Comma-separated server IP addresses")

	if err := fs.Parse(args); err != nil {
		return err
	}
	return gencert(opts, w)
}

func gencert(opts gencertOptions, w io.Writer) error {
	var ips []net.IP
	if opts.ips != "" {
		for _, s := range strings.Split(opts.ips, ",") {
			ip := net.ParseIP(strings.TrimSpace(s))
			if ip == nil {
				return fmt.Errorf("invalid IP address %q", s)
			}
			ips = append(ips, ip)
		}
	}

	if err := os.MkdirAll(opts.out, 0o700); err != nil {
		return err
	}

	ca, err := cert.NewAuthority(opts.name + " CA")
	if err != nil {
		return err
	}
	server, err := ca.IssueServer(opts.name, []string{opts.name}, ips)
	if err != nil {
		return err
	}
	client, err := ca.IssueClient(opts.client)
	if err != nil {
		return err
	}

	path := func(name string) string { return filepath.Join(opts.out, name) }
	for _, f := range []struct {
		certFile, keyFile string
		id                cert.Identity
		chain             []*x509.Certificate
	}{
		{caCertFile, caKeyFile, ca.Identity, nil},
		{serverCertFile, serverKeyFile, server, []*x509.Certificate{ca.Certificate}},
		{clientCertFile, clientKeyFile, client, []*x509.Certificate{ca.Certificate}},
	} {
		certs := append([]*x509.Certificate{f.id.Certificate}, f.chain...)
		if err := cert.WriteCertFile(path(f.certFile), certs...); err != nil {
			return err
		}
		if err := cert.WriteKeyFile(path(f.keyFile), f.id.PrivateKey); err != nil {
			return err
		}
	}

	alpn := version.SupportedALPNProtocols()
	profiles := map[string]*config.Profile{
		serverProfile: {
			Side:        "server",
			Certificate: serverCertFile,
			Key:         serverKeyFile,
			CA:          caCertFile,
			MinVersion:  "1.2",
			ALPN:        alpn,
			ClientAuth:  "always",
		},
		clientProfile: {
			Side:        "client",
			PeerName:    opts.name,
			Certificate: clientCertFile,
			Key:         clientKeyFile,
			CA:          caCertFile,
			MinVersion:  "1.2",
			ALPN:        alpn,
		},
	}
	for name, p := range profiles {
		data, err := p.Marshal()
		if err != nil {
			return err
		}
		if err := os.WriteFile(path(name), data, 0o600); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "CA:     %s  %s\n", path(caCertFile), cert.Fingerprint(ca.Certificate))
	fmt.Fprintf(w, "Server: %s  %s\n", path(serverCertFile), cert.Fingerprint(server.Certificate))
	fmt.Fprintf(w, "Client: %s  %s\n", path(clientCertFile), cert.Fingerprint(client.Certificate))
	fmt.Fprintf(w, "Profiles: %s, %s\n", path(serverProfile), path(clientProfile))
	return nil
}

func runFingerprint(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("fingerprint", flag.ContinueOnError)
	fs.Usage = usageFor(fs, `tlsbridge fingerprint - Print the SHA-256 fingerprint of a certificate

Usage:
  tlsbridge fingerprint <cert.pem>...

`)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("certificate file required")
	}

	for _, file := range fs.Args() {
		certs, err := cert.ReadCertsFile(file)
		if err != nil {
			return err
		}
		info := cert.GetInfo(certs[0])
		fmt.Fprintf(w, "%s\n", file)
		fmt.Fprintf(w, "  Subject:     %s\n", info.CommonName)
		fmt.Fprintf(w, "  Issuer:      %s\n", info.Issuer)
		fmt.Fprintf(w, "  Valid until: %s\n", info.NotAfter.Format("2006-01-02"))
		fmt.Fprintf(w, "  Fingerprint: %s\n", info.Fingerprint)
	}
	return nil
}
