// Package server accepts TCP connections and establishes a session on each.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mash-protocol/tlsbridge/pkg/client"
	"github.com/mash-protocol/tlsbridge/pkg/connection"
	"github.com/mash-protocol/tlsbridge/pkg/log"
	"github.com/mash-protocol/tlsbridge/pkg/session"
)

// DefaultPort is the default listen port.
const DefaultPort = 8443

// DefaultHandshakeTimeout bounds each accepted handshake.
const DefaultHandshakeTimeout = 10 * time.Second

// ErrAlreadyRunning is returned by Start on a running server.
var ErrAlreadyRunning = errors.New("server: already running")

// Config configures a Server.
type Config struct {
	// Address to listen on (e.g., ":8443" or "127.0.0.1:0").
	Address string

	// NewEngine returns a fresh server engine for each connection.
	NewEngine func() (*session.Engine, error)

	// Handlers are passed to connection.Drive for each handshake.
	Handlers connection.Handlers

	// Handler serves an established session. The server closes the
	// session when Handler returns. ctx is cancelled by Stop.
	Handler func(ctx context.Context, s *Session)

	// HandshakeTimeout bounds each handshake (default: 10s).
	HandshakeTimeout time.Duration

	// Logger receives server lifecycle logs. Defaults to slog.Default().
	Logger *slog.Logger

	// EventLog receives connection state events (optional).
	EventLog log.Logger

	// OnError is called when accepting or establishing a session fails.
	OnError func(remote net.Addr, err error)
}

// Session is an accepted session.
type Session struct {
	*session.Session
	remote net.Addr
}

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() net.Addr { return s.remote }

// Server accepts connections and hands established sessions to a Handler.
type Server struct {
	config   Config
	listener net.Listener

	// Accepted connections, closed by Stop.
	conns   map[net.Conn]struct{}
	connsMu sync.Mutex

	sessions atomic.Int64

	// lifecycle serializes Start and Stop; running is also read by the
	// accept loop without it.
	lifecycle sync.Mutex
	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a server.
func New(config Config) (*Server, error) {
	if config.NewEngine == nil {
		return nil, errors.New("server: NewEngine is required")
	}
	if config.Handler == nil {
		return nil, errors.New("server: Handler is required")
	}
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	config.EventLog = log.OrNoop(config.EventLog)

	return &Server{
		config: config,
		conns:  make(map[net.Conn]struct{}),
	}, nil
}

// Start listens and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("server: failed to listen: %w", err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.config.Logger.Info("listening", "address", listener.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every accepted connection, then waits for
// handlers to return.
func (s *Server) Stop() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	s.listener.Close()

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// SessionCount returns the number of established sessions being served.
func (s *Server) SessionCount() int {
	return int(s.sessions.Load())
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			s.reportError(nil, fmt.Errorf("accept error: %w", err))
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return
		}

		if !s.track(conn) {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// track registers conn, reporting false once the server is stopping.
func (s *Server) track(conn net.Conn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if !s.running.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)

	remote := conn.RemoteAddr()
	engine, err := s.config.NewEngine()
	if err != nil {
		conn.Close()
		s.reportError(remote, fmt.Errorf("new engine: %w", err))
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.config.HandshakeTimeout)
	sess, err := client.Establish(ctx, engine, conn, s.config.Handlers)
	cancel()
	if err != nil {
		s.reportError(remote, fmt.Errorf("handshake failed: %w", err))
		return
	}

	connID := sess.Engine().ConnectionID()
	s.logState(connID, remote, "", "CONNECTED")
	s.config.Logger.Debug("session established",
		"remote", remote.String(),
		"connection", connID)

	s.sessions.Add(1)
	s.config.Handler(s.ctx, &Session{Session: sess, remote: remote})
	s.sessions.Add(-1)

	if err := sess.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.config.Logger.Debug("close failed", "connection", connID, "error", err)
	}
	s.logState(connID, remote, "CONNECTED", "DISCONNECTED")
}

func (s *Server) reportError(remote net.Addr, err error) {
	attrs := []any{"error", err}
	if remote != nil {
		attrs = append(attrs, "remote", remote.String())
	}
	s.config.Logger.Warn("connection error", attrs...)
	if s.config.OnError != nil {
		s.config.OnError(remote, err)
	}
}

func (s *Server) logState(connID string, remote net.Addr, oldState, newState string) {
	s.config.EventLog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		LocalRole:    log.RoleServer,
		RemoteAddr:   remote.String(),
		StateChange: &log.StateChangeEvent{
			OldState: oldState,
			NewState: newState,
		},
	})
}
