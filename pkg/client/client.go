// Package client dials TCP peers and establishes sessions over them.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/mash-protocol/tlsbridge/pkg/connection"
	"github.com/mash-protocol/tlsbridge/pkg/session"
)

// DefaultConnectTimeout bounds Connect when the context has no deadline.
const DefaultConnectTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	// NewEngine returns a fresh client engine for each connection.
	NewEngine func() (*session.Engine, error)

	// Handlers are passed to connection.Drive.
	Handlers connection.Handlers

	// ConnectTimeout applies when the context has no deadline (default: 30s).
	ConnectTimeout time.Duration

	// Dialer is used for the TCP connection. A zero Dialer is used when nil.
	Dialer *net.Dialer

	// Logger receives connection lifecycle logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client establishes sessions to servers.
type Client struct {
	config Config
}

// New creates a client.
func New(config Config) (*Client, error) {
	if config.NewEngine == nil {
		return nil, errors.New("client: NewEngine is required")
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.Dialer == nil {
		config.Dialer = &net.Dialer{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{config: config}, nil
}

// Conn is an established session together with its network connection.
type Conn struct {
	*session.Session
	conn net.Conn
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// SetDeadline sets read and write deadlines on the underlying connection.
// An expired deadline surfaces from Read and Write as a would-block error.
func (c *Conn) SetDeadline(t time.Time) error { return c.conn.SetDeadline(t) }

// Connect dials address and drives a handshake to completion.
//
// The context deadline is applied to the TCP connection for the duration
// of the handshake, and cancelling the context interrupts a blocked step.
func (c *Client) Connect(ctx context.Context, address string) (*Conn, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	engine, err := c.config.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("client: new engine: %w", err)
	}

	conn, err := c.config.Dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		engine.Dispose()
		return nil, fmt.Errorf("client: dial failed: %w", err)
	}

	s, err := Establish(ctx, engine, conn, c.config.Handlers)
	if err != nil {
		c.config.Logger.Debug("handshake failed",
			"address", address,
			"error", err)
		return nil, err
	}

	c.config.Logger.Debug("connected",
		"address", address,
		"connection", s.Engine().ConnectionID())
	return &Conn{Session: s, conn: conn}, nil
}

// Dial connects once and retries according to retry. The retry logger
// defaults to the client's.
func (c *Client) Dial(ctx context.Context, address string, retry connection.RetryConfig) (*Conn, error) {
	if retry.Logger == nil {
		retry.Logger = c.config.Logger.With("address", address)
	}
	var conn *Conn
	_, err := connection.Retry(ctx, retry, func(ctx context.Context) (*session.Session, error) {
		var err error
		conn, err = c.Connect(ctx, address)
		if err != nil {
			return nil, err
		}
		return conn.Session, nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Establish runs a handshake for engine over an already connected conn.
// The handshake owns conn from the start: on failure it has already been
// closed, exactly once, by the failed or abandoned handshake.
func Establish(ctx context.Context, engine *session.Engine, conn net.Conn, h connection.Handlers) (*session.Session, error) {
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	forced := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
		close(forced)
	})

	s, err := connection.Drive(ctx, engine.Handshake(conn), h)
	if !stop() {
		<-forced
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, err
	}
	conn.SetDeadline(time.Time{})
	return s, nil
}
