package router

import (
	"context"
	"fmt"
	"reflect"

	"ocpp-rpc/message"
	"ocpp-rpc/schema"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Methods builds routes from the exported methods of rcvr, using each method name as the action:
//
//	func (cp *ChargePoint) ReserveNow(ctx context.Context, req *v16.ReserveNowRequest) (*v16.ReserveNowResponse, error)
//
// Methods with any other shape are skipped. It is an error for rcvr to expose none.
func Methods(rcvr any) (Routes, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Pointer || typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("router: receiver must be a pointer to a struct, got %T", rcvr)
	}
	val := reflect.ValueOf(rcvr)

	routes := make(Routes)
	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		if !isHandlerMethod(m.Type) {
			continue
		}
		routes[m.Name] = &methodHandler{
			fn:      val.Method(i),
			argType: m.Type.In(2).Elem(),
		}
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("router: %s has no handler methods", typ.Elem().Name())
	}
	return routes, nil
}

// isHandlerMethod checks (receiver, context.Context, *Req) (*Resp, error).
func isHandlerMethod(t reflect.Type) bool {
	return t.NumIn() == 3 && t.NumOut() == 2 &&
		t.In(1) == contextType &&
		t.In(2).Kind() == reflect.Pointer && t.In(2).Elem().Kind() == reflect.Struct &&
		t.Out(0).Kind() == reflect.Pointer &&
		t.Out(1) == errorType
}

type methodHandler struct {
	fn      reflect.Value
	argType reflect.Type
}

func (h *methodHandler) ServeCall(ctx context.Context, call *message.Call) (any, error) {
	argv := reflect.New(h.argType)
	if err := schema.Bind(call.Payload, argv.Interface()); err != nil {
		return nil, err
	}
	out := h.fn.Call([]reflect.Value{reflect.ValueOf(ctx), argv})
	if errv := out[1]; !errv.IsNil() {
		return nil, errv.Interface().(error)
	}
	resp := out[0].Interface()
	if err := schema.Validate(resp); err != nil {
		return nil, fmt.Errorf("%s handler returned an invalid response: %v", call.Action, err)
	}
	return resp, nil
}
