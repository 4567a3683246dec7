package router

import (
	"context"
	"fmt"

	"ocpp-rpc/message"
	"ocpp-rpc/schema"
)

// Typed adapts a function over concrete payload types. The inbound payload is unmarshalled into Req
// and validated; a mismatch is answered with FormationViolation before fn runs. A Resp that breaks
// its own constraints is a handler bug and is answered with InternalError.
func Typed[Req any, Resp any](fn func(ctx context.Context, req *Req) (*Resp, error)) Handler {
	return HandlerFunc(func(ctx context.Context, call *message.Call) (any, error) {
		req := new(Req)
		if err := schema.Bind(call.Payload, req); err != nil {
			return nil, err
		}
		resp, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := schema.Validate(resp); err != nil {
			return nil, fmt.Errorf("%s handler returned an invalid response: %v", call.Action, err)
		}
		return resp, nil
	})
}
