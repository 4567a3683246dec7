package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeDeliversInOrder(t *testing.T) {
	a, b := Pipe()
	ctx := context.Background()

	require.NoError(t, a.Send(ctx, []byte(`[2,"1","Heartbeat",{}]`)))
	require.NoError(t, a.Send(ctx, []byte(`[2,"2","Heartbeat",{}]`)))

	first, err := b.Receive(ctx)
	require.NoError(t, err)
	second, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, `[2,"1","Heartbeat",{}]`, string(first))
	assert.Equal(t, `[2,"2","Heartbeat",{}]`, string(second))
}

func TestPipeCopiesFrames(t *testing.T) {
	a, b := Pipe()
	frame := []byte(`[3,"1",{}]`)
	require.NoError(t, a.Send(context.Background(), frame))
	frame[1] = '4'

	got, err := b.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `[3,"1",{}]`, string(got))
}

func TestPipeCloseUnblocksBothEnds(t *testing.T) {
	a, b := Pipe()
	errc := make(chan error, 1)
	go func() {
		_, err := b.Receive(context.Background())
		errc <- err
	}()

	require.NoError(t, a.Close())
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Receive still blocked after Close")
	}
	assert.ErrorIs(t, b.Send(context.Background(), []byte("x")), ErrClosed)
	assert.NoError(t, b.Close())
}

func TestPipeReceiveHonoursContext(t *testing.T) {
	_, b := Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
