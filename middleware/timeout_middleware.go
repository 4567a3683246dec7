package middleware

import (
	"context"
	"time"

	"ocpp-rpc/message"
)

// TimeOutMiddleware answers InternalError when the handler has not finished within timeout. The
// handler keeps running with a cancelled context; its late answer is dropped.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) message.Envelope {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan message.Envelope, 1)
			go func() {
				done <- next(ctx, call)
			}()

			select {
			case env := <-done:
				return env
			case <-ctx.Done():
				return callError(call, message.CodeInternalError, "handler timed out")
			}
		}
	}
}
