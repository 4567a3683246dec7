// Package middleware wraps the router's handler invocation. Every HandlerFunc answers a Call with
// either a *message.CallResult or a *message.CallError.
package middleware

import (
	"context"

	"ocpp-rpc/message"
)

type HandlerFunc func(ctx context.Context, call *message.Call) message.Envelope

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so that the first one listed is the outermost:
// Chain(A, B, C)(h) runs A.before, B.before, C.before, h, C.after, B.after, A.after.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

func callError(call *message.Call, code message.ErrorCode, desc string) message.Envelope {
	return (&message.Error{Code: code, Description: desc}).ToCallError(call.ID)
}
