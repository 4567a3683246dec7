package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ocpp-rpc/message"
)

// RetryMiddleware re-runs a handler that answered InternalError, up to maxRetries more times, waiting
// baseDelay, 2*baseDelay, 4*baseDelay... in between. Only use it for idempotent handlers.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) message.Envelope {
			env := next(ctx, call)
			for i := 0; i < maxRetries; i++ {
				ce, ok := env.(*message.CallError)
				if !ok || ce.Code != message.CodeInternalError {
					return env
				}
				logger.Debug("retrying inbound call",
					zap.Int("attempt", i+1),
					zap.String("action", call.Action),
					zap.String("description", ce.Description))

				timer := time.NewTimer(baseDelay * time.Duration(1<<i))
				select {
				case <-ctx.Done():
					timer.Stop()
					return env
				case <-timer.C:
				}
				env = next(ctx, call)
			}
			return env
		}
	}
}
