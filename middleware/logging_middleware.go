package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ocpp-rpc/message"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) message.Envelope {
			start := time.Now()
			env := next(ctx, call)
			fields := []zap.Field{
				zap.String("id", call.ID),
				zap.String("action", call.Action),
				zap.Duration("took", time.Since(start)),
			}
			if ce, ok := env.(*message.CallError); ok {
				logger.Info("inbound call failed", append(fields,
					zap.String("code", string(ce.Code)),
					zap.String("description", ce.Description))...)
				return env
			}
			logger.Debug("inbound call handled", fields...)
			return env
		}
	}
}
