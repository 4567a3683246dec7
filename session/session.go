// Package session runs one OCPP-J connection between a charge point and a central system.
//
//	app ──Call──▶ pending.Register ──▶ sendq ──▶ writeLoop ──▶ transport
//	                                                             │
//	transport ──▶ receiveLoop ──▶ CallResult/CallError ──▶ pending.Resolve ──▶ app wakes up
//	                          └──▶ Call ──▶ inq ──▶ dispatchLoop ──▶ router (≤ MaxInboundConcurrency) ──▶ sendq
//
// The receive loop never waits for a handler: responses to our own calls are resolved while inbound
// calls are still queued. A Call that finds inq full is answered with GenericError at once.
//
// A Session is created Connecting, becomes Open when Run starts, and ends Closed once Run returns.
// Only the write loop touches transport.Send and only the receive loop touches transport.Receive.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"ocpp-rpc/codec"
	"ocpp-rpc/message"
	"ocpp-rpc/observability"
	"ocpp-rpc/pending"
	"ocpp-rpc/router"
	"ocpp-rpc/schema"
	"ocpp-rpc/transport"
)

// ErrClosed is returned by Run on a session that already ran or was closed.
var ErrClosed = errors.New("session: closed")

const maxIDAttempts = 8

type State int32

const (
	Connecting State = iota
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type outbound struct {
	frame []byte
	sent  chan<- error // optional, told the result of the write
}

type Session struct {
	transport transport.Transport
	router    *router.Router
	codec     codec.Codec
	cfg       Config
	observer  observability.Observer
	logger    *zap.Logger
	nextID    func() string

	pending  *pending.Table
	sendq    chan outbound
	inq      chan *message.Call
	callLock chan struct{}
	inbound  *semaphore.Weighted
	handlers sync.WaitGroup

	mu       sync.Mutex
	state    State
	started  bool
	opened   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// New builds a session over t answering inbound calls with r. A nil router answers every action
// with NotImplemented.
func New(t transport.Transport, r *router.Router, opts ...Option) *Session {
	s := &Session{
		transport: t,
		router:    r,
		codec:     &codec.JSONCodec{},
		cfg:       DefaultConfig(),
		observer:  observability.Nop,
		logger:    zap.NewNop(),
		nextID:    uuidIDs,
		pending:   pending.New(),
		opened:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	if ct, ok := t.(interface{ Codec() codec.Codec }); ok {
		s.codec = ct.Codec()
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.router == nil {
		s.router = router.New(nil)
	}
	def := DefaultConfig()
	if s.cfg.CallTimeout <= 0 {
		s.cfg.CallTimeout = def.CallTimeout
	}
	if s.cfg.MaxInboundConcurrency <= 0 {
		s.cfg.MaxInboundConcurrency = def.MaxInboundConcurrency
	}
	if s.cfg.InboundQueueSize <= 0 {
		s.cfg.InboundQueueSize = def.InboundQueueSize
	}
	if s.cfg.SendQueueSize <= 0 {
		s.cfg.SendQueueSize = def.SendQueueSize
	}
	s.sendq = make(chan outbound, s.cfg.SendQueueSize)
	s.inq = make(chan *message.Call, s.cfg.InboundQueueSize)
	s.callLock = make(chan struct{}, 1)
	s.inbound = semaphore.NewWeighted(s.cfg.MaxInboundConcurrency)
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed as soon as the session starts closing.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Run opens the session and serves it until ctx is cancelled, Close is called or the transport
// fails. Only the last case yields a non-nil error.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Connecting {
		s.mu.Unlock()
		return ErrClosed
	}
	s.state = Open
	s.started = true
	s.mu.Unlock()
	s.stateChanged(Connecting, Open)
	close(s.opened)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.receiveLoop(gctx)
	})
	g.Go(func() error {
		return s.writeLoop(gctx)
	})
	g.Go(func() error {
		return s.dispatchLoop(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.done:
		}
		s.shutdown()
		cancel()
		return nil
	})

	err := g.Wait()
	s.handlers.Wait()
	s.setState(Closed)
	return err
}

// Close stops the session. Pending calls fail with message.ErrConnectionClosed. It is safe to call
// more than once; later calls return the first result.
func (s *Session) Close() error {
	err := s.shutdown()
	s.mu.Lock()
	neverRan := !s.started
	s.mu.Unlock()
	if neverRan {
		s.setState(Closed)
	}
	return err
}

func (s *Session) shutdown() error {
	s.stopOnce.Do(func() {
		s.setState(Closing)
		close(s.done)
		s.stopErr = s.transport.Close()
		if n := s.pending.CancelAll(message.ErrConnectionClosed); n > 0 {
			s.logger.Debug("cancelled pending calls", zap.Int("count", n))
		}
	})
	return s.stopErr
}

func (s *Session) closing() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) setState(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	if from != to {
		s.stateChanged(from, to)
	}
}

func (s *Session) stateChanged(from, to State) {
	s.logger.Debug("state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	s.observer.StateChanged(from.String(), to.String())
}

// Call sends req and decodes the result into resp, which may be nil. Both payloads are checked
// against their validate tags; a mismatch is a FormationViolation.
func (s *Session) Call(ctx context.Context, req message.Request, resp any) error {
	if req == nil {
		return errors.New("session: nil request")
	}
	if err := schema.Validate(req); err != nil {
		return fmt.Errorf("%s request: %w", req.Action(), err)
	}
	payload, err := schema.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", req.Action(), err)
	}
	result, err := s.CallRaw(ctx, req.Action(), payload)
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	if err := schema.Bind(result, resp); err != nil {
		return fmt.Errorf("%s response: %w", req.Action(), err)
	}
	return nil
}

// CallRaw sends a Call for action and waits for its answer. A CallError from the peer is returned as
// *message.Error. Otherwise the error is message.ErrTimeout, message.ErrConnectionClosed or ctx.Err().
func (s *Session) CallRaw(ctx context.Context, action string, payload json.RawMessage) (result json.RawMessage, err error) {
	start := time.Now()
	defer func() {
		s.observer.CallFinished(action, time.Since(start), err)
	}()

	timer := time.NewTimer(s.cfg.CallTimeout)
	defer timer.Stop()

	select {
	case <-s.opened:
	case <-s.done:
		return nil, message.ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, message.ErrTimeout
	}

	if s.cfg.SingleOutstandingCall {
		select {
		case s.callLock <- struct{}{}:
			defer func() { <-s.callLock }()
		case <-s.done:
			return nil, message.ErrConnectionClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, message.ErrTimeout
		}
	}

	w, err := s.register()
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		payload = message.EmptyPayload
	}
	frame, err := s.codec.Encode(&message.Call{ID: w.ID, Action: action, Payload: payload})
	if err != nil {
		s.pending.Remove(w.ID)
		return nil, err
	}

	select {
	case s.sendq <- outbound{frame: frame}:
	case <-s.done:
		return s.abandon(w, message.ErrConnectionClosed)
	case <-ctx.Done():
		return s.abandon(w, ctx.Err())
	case <-timer.C:
		return s.abandon(w, message.ErrTimeout)
	}

	select {
	case out := <-w.Done():
		return out.Payload, out.Err
	case <-timer.C:
		// Expire and a concurrent Resolve are serialized by the table; either way the waiter now
		// holds exactly one outcome.
		s.pending.Expire(w.ID)
		out := <-w.Done()
		return out.Payload, out.Err
	case <-ctx.Done():
		return s.abandon(w, ctx.Err())
	case <-s.done:
		return s.abandon(w, message.ErrConnectionClosed)
	}
}

// abandon drops w with err unless an outcome was delivered first, in which case that outcome wins.
func (s *Session) abandon(w *pending.Waiter, err error) (json.RawMessage, error) {
	if s.pending.Remove(w.ID) {
		return nil, err
	}
	out := <-w.Done()
	return out.Payload, out.Err
}

func (s *Session) register() (*pending.Waiter, error) {
	for i := 0; i < maxIDAttempts; i++ {
		w, err := s.pending.Register(s.nextID())
		if errors.Is(err, pending.ErrDuplicateID) {
			continue
		}
		return w, err
	}
	return nil, fmt.Errorf("session: no free message id after %d attempts", maxIDAttempts)
}

func (s *Session) receiveLoop(ctx context.Context) error {
	for {
		frame, err := s.transport.Receive(ctx)
		if err != nil {
			if s.closing() || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		env, err := s.codec.Decode(frame)
		if err != nil {
			s.decodeFailed(err)
			continue
		}

		switch m := env.(type) {
		case *message.Call:
			select {
			case s.inq <- m:
			default:
				s.logger.Warn("inbound queue full", zap.String("id", m.ID), zap.String("action", m.Action))
				s.tryReply(message.NewError(message.CodeGenericError, "too many inbound calls in progress").ToCallError(m.ID))
			}
		case *message.CallResult:
			if !s.pending.Resolve(m.ID, pending.Outcome{Payload: m.Payload}) {
				s.observer.UnexpectedResponse(m.ID, message.TypeCallResult)
			}
		case *message.CallError:
			if !s.pending.Resolve(m.ID, pending.Outcome{Err: m.Err()}) {
				s.observer.UnexpectedResponse(m.ID, message.TypeCallError)
			}
		}
	}
}

// decodeFailed answers a broken Call when its id survived, and fails the waiter of a broken response.
func (s *Session) decodeFailed(err error) {
	s.observer.DecodeFailure(err)

	var de *codec.DecodeError
	if !errors.As(err, &de) || de.ID == "" {
		return
	}
	switch de.Type {
	case message.TypeCallResult, message.TypeCallError:
		s.pending.Resolve(de.ID, pending.Outcome{Err: de.Err})
	default:
		s.tryReply(de.Err.ToCallError(de.ID))
	}
}

// dispatchLoop starts handlers for queued calls in arrival order, at most MaxInboundConcurrency at
// a time.
func (s *Session) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case call := <-s.inq:
			if err := s.inbound.Acquire(ctx, 1); err != nil {
				return nil
			}
			s.dispatch(ctx, call)
		}
	}
}

// dispatch runs call on its own goroutine; the caller holds one inbound slot for it.
func (s *Session) dispatch(ctx context.Context, call *message.Call) {
	s.handlers.Add(1)
	go func() {
		defer s.handlers.Done()
		defer s.inbound.Release(1)

		env := s.router.Dispatch(ctx, call)
		res, ok := env.(*message.CallResult)
		if !ok {
			s.reply(ctx, env, nil)
			return
		}
		sent := make(chan error, 1)
		if !s.reply(ctx, res, sent) {
			return
		}
		select {
		case err := <-sent:
			if err == nil {
				s.router.After(ctx, call, res)
			}
		case <-s.done:
		}
	}()
}

// tryReply queues env without waiting; the receive loop must not stall behind a full send queue.
func (s *Session) tryReply(env message.Envelope) {
	frame, err := s.codec.Encode(env)
	if err != nil {
		s.logger.Error("dropping reply", zap.String("id", env.UniqueID()), zap.Error(err))
		return
	}
	select {
	case s.sendq <- outbound{frame: frame}:
	default:
		s.logger.Warn("send queue full, dropping reply", zap.String("id", env.UniqueID()))
	}
}

func (s *Session) reply(ctx context.Context, env message.Envelope, sent chan<- error) bool {
	frame, err := s.codec.Encode(env)
	if err != nil {
		s.logger.Error("dropping reply", zap.String("id", env.UniqueID()), zap.Error(err))
		return false
	}
	select {
	case s.sendq <- outbound{frame: frame, sent: sent}:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case o := <-s.sendq:
			err := s.transport.Send(ctx, o.frame)
			if o.sent != nil {
				o.sent <- err
			}
			if err != nil {
				if s.closing() || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}
