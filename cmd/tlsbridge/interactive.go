package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/mash-protocol/tlsbridge/pkg/cert"
	"github.com/mash-protocol/tlsbridge/pkg/client"
)

// Shell is the interactive prompt of tlsbridge connect.
type Shell struct {
	rl   *readline.Instance
	wait time.Duration
}

// NewShell creates the prompt. wait bounds how long send waits for a reply.
func NewShell(wait time.Duration) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tlsbridge> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("send"),
			readline.PcItem("info"),
			readline.PcItem("peer"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{rl: rl, wait: wait}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Close releases the terminal.
func (s *Shell) Close() error {
	return s.rl.Close()
}

// Run reads commands until quit, end of input, ctx cancellation or the end
// of the session.
func (s *Shell) Run(ctx context.Context, conn *client.Conn) {
	s.printHelp()

	// Readline blocks; closing it is the only way to interrupt it.
	stop := context.AfterFunc(ctx, func() { s.rl.Close() })
	defer stop()

	for {
		line, err := s.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		cmd, rest, _ := strings.Cut(input, " ")
		switch strings.ToLower(cmd) {
		case "help", "?":
			s.printHelp()

		case "send", "s":
			if !s.cmdSend(conn, rest) {
				return
			}

		case "info", "i":
			printSummary(s.rl.Stdout(), conn.Engine())

		case "peer", "p":
			s.cmdPeer(conn)

		case "quit", "exit", "q":
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			return

		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
Commands:
  send <text>   - Send text and print the reply
  info          - Show negotiated session parameters
  peer          - Show the server certificate chain
  help          - Show this help
  quit          - Close the session and exit`)
}

// cmdSend reports whether the session is still usable.
func (s *Shell) cmdSend(conn *client.Conn, text string) bool {
	if text == "" {
		fmt.Fprintln(s.rl.Stdout(), "Usage: send <text>")
		return true
	}

	reply, err := exchange(conn, []byte(text), s.wait)
	if len(reply) > 0 {
		fmt.Fprintf(s.rl.Stdout(), "< %s\n", reply)
	}
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Session ended: %v\n", err)
		return false
	}
	if len(reply) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "(no reply)")
	}
	return true
}

func (s *Shell) cmdPeer(conn *client.Conn) {
	trust, err := conn.Engine().PeerTrust()
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	for i, c := range trust.Certificates() {
		info := cert.GetInfo(c)
		fmt.Fprintf(s.rl.Stdout(), "[%d] %s\n", i, info.CommonName)
		fmt.Fprintf(s.rl.Stdout(), "    Issuer:      %s\n", info.Issuer)
		if len(info.DNSNames) > 0 {
			fmt.Fprintf(s.rl.Stdout(), "    DNS names:   %s\n", strings.Join(info.DNSNames, ", "))
		}
		fmt.Fprintf(s.rl.Stdout(), "    Valid:       %s to %s\n",
			info.NotBefore.Format("2006-01-02"), info.NotAfter.Format("2006-01-02"))
		fmt.Fprintf(s.rl.Stdout(), "    Fingerprint: %s\n", info.Fingerprint)
	}
}
