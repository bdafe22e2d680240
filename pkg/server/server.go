package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/vango-dev/readyroom/internal/bridge"
	"github.com/vango-dev/readyroom/internal/hub"
	"github.com/vango-dev/readyroom/internal/metrics"
	"github.com/vango-dev/readyroom/pkg/game"
	"github.com/vango-dev/readyroom/pkg/protocol"
)

// Session is the part of the game the connection layer may see.
type Session interface {
	// Admitting reports whether new clients are accepted.
	Admitting() bool

	// Status returns the latest published session status.
	Status() game.Status
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the collectors and the gatherer served on /metrics.
func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		if gatherer != nil {
			s.gatherer = gatherer
		}
	}
}

// Server accepts clients and runs their pumps.
type Server struct {
	config   *ServerConfig
	hub      *hub.Hub
	session  Session
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger

	// ctx ends the write pumps on shutdown.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	listeners  []net.Listener
	httpServer *http.Server
	conns      map[protocol.ClientID]frameConn
}

// New creates a server over h. session gates admissions.
func New(h *hub.Hub, session Session, config *ServerConfig, opts ...Option) *Server {
	config = config.Clone()
	config.applyDefaults()

	limit := rate.Inf
	if config.AcceptRate > 0 {
		limit = rate.Limit(config.AcceptRate)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:  config,
		hub:     h,
		session: session,
		limiter: rate.NewLimiter(limit, config.AcceptBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[protocol.ClientID]frameConn),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	return s
}

// Config returns the effective configuration.
func (s *Server) Config() *ServerConfig { return s.config }

// ListenAndServe listens on the configured addresses and serves until ctx is
// done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.config.ValidateConfig(); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	if addr := s.config.TCPAddress; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		s.logger.Info("tcp listener started", "address", ln.Addr().String())
		go func() { errCh <- s.ServeTCP(ln) }()
	}
	if addr := s.config.HTTPAddress; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			s.Shutdown(context.Background())
			return err
		}
		s.logger.Info("http listener started", "address", ln.Addr().String())
		go func() { errCh <- s.ServeAdmin(ln) }()
	}

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errCh:
		s.Shutdown(context.Background())
		if errors.Is(err, ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ServeTCP accepts raw TCP clients on ln until the server shuts down.
func (s *Server) ServeTCP(ln net.Listener) error {
	if !s.track(ln) {
		ln.Close()
		return ErrServerClosed
	}
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn("accept failed", "error", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return err
		}
		s.admit(newTCPConn(c))
	}
}

// ServeAdmin serves the admin router on ln until the server shuts down.
func (s *Server) ServeAdmin(ln net.Listener) error {
	hs := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.httpServer = hs
	s.mu.Unlock()

	if err := hs.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ErrServerClosed
}

// Shutdown stops the listeners, closes every client socket and waits for the
// pumps to finish or ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listeners := s.listeners
	hs := s.httpServer
	conns := make([]frameConn, 0, len(s.conns))
	for _, fc := range s.conns {
		conns = append(conns, fc)
	}
	s.mu.Unlock()

	for _, ln := range listeners {
		ln.Close()
	}

	var err error
	if hs != nil {
		err = hs.Shutdown(ctx)
	}

	s.cancel()
	for _, fc := range conns {
		fc.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}
	s.logger.Info("server shutdown complete")
	return nil
}

func (s *Server) track(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.listeners = append(s.listeners, ln)
	return true
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// admission decides whether a new socket may ask for an id.
func (s *Server) admission() error {
	if !s.session.Admitting() {
		return ErrNotAdmitting
	}
	if !s.limiter.Allow() {
		return ErrRateLimited
	}
	return nil
}

func (s *Server) admit(fc frameConn) {
	if err := s.admission(); err != nil {
		s.refuse(fc, err)
		return
	}
	s.connect(fc)
}

// connect allocates an id for an admitted socket and starts its pumps.
func (s *Server) connect(fc frameConn) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fc.Close()
		return
	}
	conn, err := s.hub.Connect()
	if err != nil {
		s.mu.Unlock()
		s.refuse(fc, err)
		return
	}
	s.conns[conn.ID()] = fc
	s.wg.Add(1)
	s.mu.Unlock()

	s.metrics.ClientConnected()
	s.logger.Info("client connected",
		"client_id", conn.ID(),
		"remote", fc.RemoteAddr().String(),
		"transport", fc.Transport())
	go s.serve(fc, conn)
}

func (s *Server) refuse(fc frameConn, err error) {
	reason := rejectReason(err)
	s.metrics.ConnectionRejected(reason)
	s.logger.Warn("connection refused",
		"remote", fc.RemoteAddr().String(),
		"transport", fc.Transport(),
		"reason", reason)
	fc.Close()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limit"
	case errors.Is(err, ErrNotAdmitting):
		return "closed"
	case errors.Is(err, hub.ErrExhausted):
		return "exhausted"
	default:
		return "error"
	}
}

// serve runs the pumps of one client and tears it down.
func (s *Server) serve(fc frameConn, conn *bridge.Conn) {
	defer s.wg.Done()

	id := conn.ID()
	logger := s.logger.With("client_id", id)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(fc, conn, logger)
	}()

	if err := s.readPump(fc, conn); err != nil {
		s.metrics.ProtocolError(errorKind(err))
		logger.Info("client dropped", "error", NewConnError(id, "read", err))
	} else {
		logger.Info("client disconnected")
	}

	// Releasing the id closes the bridge entry; the write pump flushes what
	// is already queued and returns.
	s.hub.Disconnect(id)
	s.metrics.ClientDisconnected()
	<-writerDone
	fc.Close()

	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

// readPump delivers decoded frames until the stream ends. A clean end and a
// voluntary disconnect return nil.
func (s *Server) readPump(fc frameConn, conn *bridge.Conn) error {
	for {
		m, err := fc.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		s.metrics.MessageReceived(m.Type.String())

		if m.Type == protocol.ConnectionRejected {
			conn.Send(protocol.NewMessage(protocol.ConnectionRejected))
			return nil
		}
		conn.Deliver(m)
	}
}

// writePump writes queued frames. ConnectionRejected is the last frame a
// client ever receives.
func (s *Server) writePump(fc frameConn, conn *bridge.Conn, logger *slog.Logger) {
	for {
		m, ok := conn.Next(s.ctx)
		if !ok {
			return
		}
		if err := fc.WriteMessage(m, time.Now().Add(s.config.WriteTimeout)); err != nil {
			logger.Debug("write failed", "error", NewConnError(conn.ID(), "write", err))
			fc.Close()
			return
		}
		s.metrics.MessageSent(m.Type.String())
		if m.Type == protocol.ConnectionRejected {
			fc.Close()
			return
		}
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, protocol.ErrTruncatedFrame):
		return "truncated"
	case errors.Is(err, protocol.ErrUnknownType):
		return "unknown_type"
	case errors.Is(err, protocol.ErrPayloadTooLarge):
		return "too_large"
	case errors.Is(err, protocol.ErrTrailingData):
		return "trailing_data"
	default:
		return "io"
	}
}
