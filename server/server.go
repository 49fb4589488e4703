// Package server implements an ABCI socket server. A Server accepts
// connections and runs one session per connection; the session routes each
// request to the consensus, mempool, info or snapshot handler service and
// writes responses back in request order.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/go-abci/idgenerator"
	"github.com/cyberinferno/go-abci/logger"
	"github.com/cyberinferno/go-abci/netaddr"
	"github.com/cyberinferno/go-abci/safemap"
	"github.com/cyberinferno/go-abci/service"
)

// ErrServerRunning is returned by Start when the server is already running.
var ErrServerRunning = errors.New("server: already running")

type handlers struct {
	consensus service.ConsensusService
	mempool   service.MempoolService
	info      service.InfoService
	snapshot  service.SnapshotService
}

// Server accepts ABCI connections and serves each with its own session.
// Handler services are shared by all sessions; session state is not.
// Build a Server with a Builder.
type Server struct {
	logger   logger.Logger
	handlers handlers
	opts     Options

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	running  atomic.Bool

	sessions *safemap.SafeMap[uint64, *session]
	ids      *idgenerator.IdGenerator
}

func newServer(h handlers, opts Options, l logger.Logger) *Server {
	return &Server{
		logger:   l.With(logger.Field{Key: "server", Value: opts.Name}),
		handlers: h,
		opts:     opts,
		sessions: safemap.NewSafeMap[uint64, *session](),
		ids:      idgenerator.NewIdGenerator(0),
	}
}

// Listen binds addr and serves connections until ctx is cancelled. Accept
// errors are logged and do not stop the server.
//
// Parameters:
//   - ctx: Context whose cancellation stops the server and its sessions
//   - addr: "host:port", "tcp://host:port" or "unix:///path/to/socket"
//
// Returns:
//   - An error if the address cannot be bound; nil after ctx is cancelled
func (s *Server) Listen(ctx context.Context, addr string) error {
	if err := s.start(ctx, addr); err != nil {
		return err
	}

	<-ctx.Done()
	s.Stop()
	return nil
}

// Start binds addr and runs the accept loop in a goroutine until Stop.
//
// Parameters:
//   - addr: "host:port", "tcp://host:port" or "unix:///path/to/socket"
//
// Returns:
//   - ErrServerRunning if already started, or the bind error
func (s *Server) Start(addr string) error {
	return s.start(context.Background(), addr)
}

func (s *Server) start(parent context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return fmt.Errorf("%w: %s", ErrServerRunning, s.opts.Name)
	}

	network, address := netaddr.Parse(addr)
	s.logger.Info("starting ABCI server", logger.Field{Key: "addr", Value: addr})

	ln, err := net.Listen(network, address)
	if err != nil {
		s.logger.Error("server failed to start", logger.Err(err))
		return fmt.Errorf("server %s failed to start: %w", s.opts.Name, err)
	}

	ctx, cancel := context.WithCancel(parent)
	s.listener = ln
	s.cancel = cancel
	s.running.Store(true)

	s.logger.Info("bound listener", logger.Field{Key: "local_addr", Value: ln.Addr().String()})
	go s.acceptLoop(ctx, ln)

	return nil
}

// Stop closes the listener, cancels every session and closes its connection.
// Safe to call when the server is not running.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return
	}

	s.running.Store(false)
	s.cancel()
	_ = s.listener.Close()

	s.sessions.Range(func(_ uint64, sess *session) bool {
		_ = sess.Close()
		return true
	})

	s.logger.Info("server stopped")
}

// Addr returns the bound listener address, or nil when not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil || !s.running.Load() {
		return nil
	}

	return s.listener.Addr()
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	return s.sessions.Len()
}

// ServeConn runs a session on conn in the calling goroutine until the peer
// closes the connection, ctx is cancelled, or the session fails. The
// connection is closed on return.
//
// Returns:
//   - nil when the peer closed the connection cleanly, the fatal error otherwise
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) error {
	id := s.ids.Id()
	sess := newSession(id, conn, s.handlers, s.opts, s.logger.With(
		logger.Field{Key: "session", Value: id},
		logger.Field{Key: "remote", Value: remoteAddr(conn)},
	))

	s.sessions.Store(id, sess)
	defer s.sessions.Delete(id)

	return sess.Run(ctx)
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}

			s.logger.Warn("error accepting new connection", logger.Err(err))
			continue
		}

		go s.serve(ctx, conn)
	}
}

// serve runs one accepted connection. A panicking session only takes down its
// own connection.
func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			_ = conn.Close()
			s.logger.Error("session panicked",
				logger.Field{Key: "panic", Value: fmt.Sprint(r)},
				logger.Field{Key: "stack", Value: string(debug.Stack())},
			)
		}
	}()

	if err := s.ServeConn(ctx, conn); err != nil && ctx.Err() == nil {
		s.logger.Error("session terminated", logger.Field{Key: "remote", Value: remoteAddr(conn)}, logger.Err(err))
	}
}

func remoteAddr(conn net.Conn) string {
	if ra := conn.RemoteAddr(); ra != nil {
		return ra.String()
	}

	return ""
}
