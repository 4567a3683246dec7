// Package router answers inbound calls.
//
// The action→handler table is handed to New once and never changes afterwards. Dispatch always
// produces an envelope for the peer:
//
//	no handler for the action            → CallError NotImplemented
//	payload does not match the handler   → CallError FormationViolation (details name the fields)
//	handler returns a *message.Error     → CallError with that code and description
//	  (Timeout and ConnectionClosed, which never go on the wire, become InternalError)
//	handler returns another error/panics → CallError InternalError, reported to the Observer
//	handler succeeds                     → CallResult
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"ocpp-rpc/message"
	"ocpp-rpc/middleware"
	"ocpp-rpc/observability"
	"ocpp-rpc/schema"
)

// Handler serves one action. The returned value is marshalled as the CallResult payload and must
// encode to a JSON object; nil means "{}".
type Handler interface {
	ServeCall(ctx context.Context, call *message.Call) (any, error)
}

type HandlerFunc func(ctx context.Context, call *message.Call) (any, error)

func (f HandlerFunc) ServeCall(ctx context.Context, call *message.Call) (any, error) {
	return f(ctx, call)
}

// Routes maps action names to handlers.
type Routes map[string]Handler

// AfterFunc runs once the CallResult for its action has been written to the transport.
type AfterFunc func(ctx context.Context, call *message.Call, result json.RawMessage) error

type Option func(*Router)

// WithMiddleware wraps handler invocation; the first middleware is the outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(r *Router) {
		r.middlewares = append(r.middlewares, mws...)
	}
}

// WithAfter registers a hook for action.
func WithAfter(action string, fn AfterFunc) Option {
	return func(r *Router) {
		r.after[action] = append(r.after[action], fn)
	}
}

func WithObserver(o observability.Observer) Option {
	return func(r *Router) {
		r.observer = o
	}
}

type Router struct {
	routes      Routes
	after       map[string][]AfterFunc
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // middleware chain around invoke, built once
	observer    observability.Observer
}

func New(routes Routes, opts ...Option) *Router {
	r := &Router{
		routes:   make(Routes, len(routes)),
		after:    make(map[string][]AfterFunc),
		observer: observability.Nop,
	}
	for action, h := range routes {
		r.routes[action] = h
	}
	for _, opt := range opts {
		opt(r)
	}
	r.handler = middleware.Chain(r.middlewares...)(r.invoke)
	return r
}

// Actions lists the registered action names in order.
func (r *Router) Actions() []string {
	actions := make([]string, 0, len(r.routes))
	for action := range r.routes {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}

func (r *Router) Has(action string) bool {
	_, ok := r.routes[action]
	return ok
}

// Dispatch answers call. It never panics and never returns nil.
func (r *Router) Dispatch(ctx context.Context, call *message.Call) message.Envelope {
	if _, ok := r.routes[call.Action]; !ok {
		return message.NewError(message.CodeNotImplemented, "no handler for action %s", call.Action).ToCallError(call.ID)
	}
	env := r.handler(ctx, call)
	if env == nil {
		r.observer.HandlerFault(call.Action, errors.New("middleware returned no envelope"))
		return internalError(call)
	}
	return env
}

// After runs the hooks registered for the action of call. Hook failures go to the Observer.
func (r *Router) After(ctx context.Context, call *message.Call, result *message.CallResult) {
	for _, fn := range r.after[call.Action] {
		if err := fn(ctx, call, result.Payload); err != nil {
			r.observer.HandlerFault(call.Action, fmt.Errorf("after hook: %w", err))
		}
	}
}

func (r *Router) invoke(ctx context.Context, call *message.Call) (env message.Envelope) {
	defer func() {
		if p := recover(); p != nil {
			r.observer.HandlerFault(call.Action, fmt.Errorf("handler panic: %v", p))
			env = internalError(call)
		}
	}()

	result, err := r.routes[call.Action].ServeCall(ctx, call)
	if err != nil {
		var pe *message.Error
		if errors.As(err, &pe) && pe.Code.Wire() {
			return pe.ToCallError(call.ID)
		}
		r.observer.HandlerFault(call.Action, err)
		return internalError(call)
	}

	payload, err := schema.Marshal(result)
	if err != nil {
		r.observer.HandlerFault(call.Action, fmt.Errorf("marshal result: %w", err))
		return internalError(call)
	}
	if trimmed := bytes.TrimSpace(payload); len(trimmed) == 0 || trimmed[0] != '{' {
		r.observer.HandlerFault(call.Action, fmt.Errorf("result %T is not a JSON object", result))
		return internalError(call)
	}
	return &message.CallResult{ID: call.ID, Payload: payload}
}

func internalError(call *message.Call) *message.CallError {
	return message.NewError(message.CodeInternalError, "an unexpected error occurred").ToCallError(call.ID)
}
