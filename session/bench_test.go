package session

import (
	"context"
	"testing"
	"time"

	"ocpp-rpc/message"
	v16 "ocpp-rpc/ocpp/v16"
	"ocpp-rpc/router"
	"ocpp-rpc/transport"
)

// connectedPair runs a charge point session against a central system session over a pipe.
func connectedPair(b *testing.B) *Session {
	b.Helper()
	cpEnd, csEnd := transport.Pipe()
	cs := New(csEnd, router.New(router.Routes{
		v16.ActionHeartbeat: router.Typed(func(ctx context.Context, req *v16.HeartbeatRequest) (*v16.HeartbeatResponse, error) {
			return &v16.HeartbeatResponse{CurrentTime: time.Now()}, nil
		}),
	}), WithConfig(Config{MaxInboundConcurrency: 16}))
	cp := New(cpEnd, nil)

	go cs.Run(context.Background())
	go cp.Run(context.Background())
	b.Cleanup(func() {
		cp.Close()
		cs.Close()
	})
	return cp
}

func BenchmarkSerialCall(b *testing.B) {
	cp := connectedPair(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var resp v16.HeartbeatResponse
		if err := cp.Call(ctx, v16.HeartbeatRequest{}, &resp); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConcurrentCall(b *testing.B) {
	cp := connectedPair(b)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := cp.CallRaw(ctx, v16.ActionHeartbeat, message.EmptyPayload); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
