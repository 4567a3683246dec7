// Package server accepts charge point connections on the central system side.
//
// Each websocket connection to /<prefix>/{chargePointID} gets its own session answering calls with
// the shared router:
//
//	Upgrade → session.New → Run (blocks until the charge point goes away)
//	                      └→ ConnectHandler (may issue calls to the charge point)
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"ocpp-rpc/registry"
	"ocpp-rpc/router"
	"ocpp-rpc/session"
	"ocpp-rpc/transport"
)

const registrationTTL = 10 // seconds, renewed by the registry

// ConnectHandler runs once a charge point session is open. ctx ends with the session.
type ConnectHandler func(ctx context.Context, chargePointID string, sess *session.Session)

type Option func(*Server)

func WithSessionOptions(opts ...session.Option) Option {
	return func(s *Server) {
		s.sessionOpts = append(s.sessionOpts, opts...)
	}
}

func WithSubprotocols(protocols ...string) Option {
	return func(s *Server) {
		s.subprotocols = protocols
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRegistry publishes advertise under service while the server is serving.
func WithRegistry(reg registry.Registry, service string, advertise registry.Endpoint) Option {
	return func(s *Server) {
		s.registry = reg
		s.service = service
		s.advertise = advertise
	}
}

func WithConnectHandler(fn ConnectHandler) Option {
	return func(s *Server) {
		s.onConnect = fn
	}
}

type Server struct {
	router       *router.Router
	sessionOpts  []session.Option
	subprotocols []string
	logger       *zap.Logger
	onConnect    ConnectHandler

	registry  registry.Registry
	service   string
	advertise registry.Endpoint

	mu       sync.Mutex
	sessions map[string]*session.Session
	wg       sync.WaitGroup // running sessions

	httpServer *http.Server
	shutdown   atomic.Bool
	baseCtx    context.Context
	cancel     context.CancelFunc
}

func New(r *router.Router, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:       r,
		subprotocols: []string{"ocpp1.6"},
		logger:       zap.NewNop(),
		sessions:     make(map[string]*session.Session),
		baseCtx:      ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.httpServer = &http.Server{Handler: s}
	return s
}

// Session returns the open session of a connected charge point.
func (s *Server) Session(chargePointID string) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chargePointID]
	return sess, ok
}

// ServeHTTP upgrades the request and serves the charge point until it disconnects. A second
// connection for an id that is already connected is refused with 409.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := path.Base(r.URL.Path)
	if id == "" || id == "/" || id == "." {
		http.Error(w, "missing charge point id", http.StatusNotFound)
		return
	}
	if s.shutdown.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	if _, ok := s.Session(id); ok {
		http.Error(w, "charge point already connected", http.StatusConflict)
		return
	}

	ws, err := transport.UpgradeWebSocket(w, r, s.subprotocols)
	if err != nil {
		s.logger.Info("rejected connection", zap.String("chargePointId", id), zap.Error(err))
		return
	}
	logger := s.logger.With(zap.String("chargePointId", id))
	opts := append([]session.Option{session.WithLogger(logger)}, s.sessionOpts...)
	sess := session.New(ws, s.router, opts...)

	s.mu.Lock()
	if _, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		ws.Close()
		return
	}
	s.sessions[id] = sess
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		s.wg.Done()
	}()

	ctx, cancel := context.WithCancel(s.baseCtx)
	defer cancel()
	if s.onConnect != nil {
		go s.onConnect(ctx, id, sess)
	}

	logger.Info("charge point connected", zap.String("subprotocol", ws.Subprotocol()))
	if err := sess.Run(ctx); err != nil {
		logger.Info("charge point disconnected", zap.Error(err))
		return
	}
	logger.Info("charge point disconnected")
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	if s.registry != nil {
		if err := s.registry.Register(s.baseCtx, s.service, s.advertise, registrationTTL); err != nil {
			return fmt.Errorf("register %s: %w", s.service, err)
		}
	}
	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) && s.shutdown.Load() {
		return nil
	}
	return err
}

func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown deregisters the server, stops accepting, closes every session and waits for them to
// finish or ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	// Deregister first so charge points reconnect elsewhere.
	if s.registry != nil {
		if err := s.registry.Deregister(ctx, s.service, s.advertise.URL); err != nil {
			s.logger.Warn("deregister failed", zap.Error(err))
		}
	}
	s.shutdown.Store(true)
	err := s.httpServer.Shutdown(ctx)

	// Hijacked websocket connections are not tracked by http.Server.
	s.cancel()
	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for sessions to finish: %w", ctx.Err())
	}
}
