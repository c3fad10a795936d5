// Command tlsbridge runs TLS sessions over plain TCP through the native
// engine bridge.
//
// Usage:
//
//	tlsbridge <command> [flags]
//
// Commands:
//
//	serve        Accept sessions and echo what each peer sends
//	connect      Establish a session and exchange data interactively
//	gencert      Create a CA, server and client identities plus profiles
//	fingerprint  Print the SHA-256 fingerprint of a certificate
//
// Examples:
//
//	# Create certificates and matching profiles in ./pki
//	tlsbridge gencert -out pki -name device.local
//
//	# Serve with mutual authentication and advertise over mDNS
//	tlsbridge serve -profile pki/server.yaml -advertise
//
//	# Connect to the advertised server by instance name
//	tlsbridge connect -profile pki/client.yaml -find tlsbridge-3a7f01c2
//
//	# Serve with a self-signed identity and connect with its pairing code
//	tlsbridge serve -listen :9443
//	tlsbridge connect -pairing TLSB:1:192.168.1.10:9443:3a7f...
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mash-protocol/tlsbridge/pkg/log"
)

const usage = `tlsbridge - TLS sessions over the native engine bridge

Usage:
  tlsbridge <command> [flags]

Commands:
  serve        Accept sessions and echo what each peer sends
  connect      Establish a session and exchange data interactively
  gencert      Create a CA, server and client identities plus profiles
  fingerprint  Print the SHA-256 fingerprint of a certificate

Use "tlsbridge <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "connect":
		err = runConnect(args)
	case "gencert":
		err = runGencert(args, os.Stdout)
	case "fingerprint":
		err = runFingerprint(args, os.Stdout)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commonFlags are shared by serve and connect.
type commonFlags struct {
	profile  string
	logLevel string
	eventLog string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.profile, "profile", "", "Engine profile (YAML)")
	fs.StringVar(&c.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&c.eventLog, "event-log", "", "Write protocol events to this CBOR file (overrides the profile)")
}

func usageFor(fs *flag.FlagSet, header string) func() {
	return func() {
		fmt.Fprint(fs.Output(), header)
		fs.PrintDefaults()
	}
}

// newLogger returns a text slog logger at the named level.
func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "", "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// openEventLog combines a debug-level slog view of protocol events with an
// optional CBOR file. The returned close function is never nil.
func openEventLog(path string, logger *slog.Logger) (log.Logger, func() error, error) {
	console := log.NewSlogAdapter(logger)
	if path == "" {
		return console, func() error { return nil }, nil
	}

	file, err := log.NewFileLogger(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open event log: %w", err)
	}
	closeFn := func() error {
		return errors.Join(file.Sync(), file.Close())
	}
	return log.NewMultiLogger(console, file), closeFn, nil
}
