package pending

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocpp-rpc/message"
)

func TestRegisterResolve(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tbl := New().WithClock(func() time.Time { return now })

	w, err := tbl.Register("1")
	require.NoError(t, err)
	assert.Equal(t, now, w.CreatedAt)
	assert.True(t, tbl.Has("1"))

	ok := tbl.Resolve("1", Outcome{Payload: json.RawMessage(`{"status":"Accepted"}`)})
	require.True(t, ok)
	assert.False(t, tbl.Has("1"))

	out := <-w.Done()
	assert.NoError(t, out.Err)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(out.Payload))
}

func TestRegisterDuplicate(t *testing.T) {
	tbl := New()
	_, err := tbl.Register("1")
	require.NoError(t, err)

	_, err = tbl.Register("1")
	assert.True(t, errors.Is(err, ErrDuplicateID))
	assert.Equal(t, 1, tbl.Len())
}

func TestResolveUnknownIsNoop(t *testing.T) {
	tbl := New()
	assert.False(t, tbl.Resolve("ghost", Outcome{}))
	assert.Equal(t, 0, tbl.Len())
	assert.False(t, tbl.Has("ghost"))
}

func TestExpireThenLateResponse(t *testing.T) {
	tbl := New()
	w, err := tbl.Register("7")
	require.NoError(t, err)

	require.True(t, tbl.Expire("7"))
	out := <-w.Done()
	assert.True(t, errors.Is(out.Err, message.ErrTimeout))

	assert.False(t, tbl.Resolve("7", Outcome{Payload: json.RawMessage(`{}`)}), "late response must find nothing")
	select {
	case o := <-w.Done():
		t.Fatalf("waiter received a second outcome: %+v", o)
	default:
	}
}

func TestExpireAfterResolveKeepsResponse(t *testing.T) {
	tbl := New()
	w, err := tbl.Register("8")
	require.NoError(t, err)

	require.True(t, tbl.Resolve("8", Outcome{Payload: json.RawMessage(`{"a":1}`)}))
	assert.False(t, tbl.Expire("8"))

	out := <-w.Done()
	assert.NoError(t, out.Err)
}

func TestCancelAll(t *testing.T) {
	tbl := New()
	var waiters []*Waiter
	for i := 0; i < 5; i++ {
		w, err := tbl.Register(fmt.Sprint(i))
		require.NoError(t, err)
		waiters = append(waiters, w)
	}

	assert.Equal(t, 5, tbl.CancelAll(message.ErrConnectionClosed))
	assert.Equal(t, 0, tbl.Len())
	for _, w := range waiters {
		out := <-w.Done()
		assert.True(t, errors.Is(out.Err, message.ErrConnectionClosed))
	}
}

func TestRemove(t *testing.T) {
	tbl := New()
	_, err := tbl.Register("1")
	require.NoError(t, err)
	assert.True(t, tbl.Remove("1"))
	assert.False(t, tbl.Remove("1"))
}

// Resolve and Expire racing on the same id deliver exactly one outcome.
func TestResolveExpireRace(t *testing.T) {
	tbl := New()
	for i := 0; i < 200; i++ {
		id := fmt.Sprint(i)
		w, err := tbl.Register(id)
		require.NoError(t, err)

		var wg sync.WaitGroup
		var resolved, expired bool
		wg.Add(2)
		go func() { defer wg.Done(); resolved = tbl.Resolve(id, Outcome{}) }()
		go func() { defer wg.Done(); expired = tbl.Expire(id) }()
		wg.Wait()

		assert.NotEqual(t, resolved, expired, "exactly one side must win for id %s", id)
		<-w.Done()
		assert.Len(t, w.Done(), 0)
	}
}
