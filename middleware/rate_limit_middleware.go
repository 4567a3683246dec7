package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"ocpp-rpc/message"
)

// RateLimitMiddleware admits r inbound calls per second with the given burst (token bucket). Calls
// over the limit are answered with GenericError without reaching the handler.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) message.Envelope {
			if !limiter.Allow() {
				return callError(call, message.CodeGenericError, "rate limit exceeded")
			}
			return next(ctx, call)
		}
	}
}
