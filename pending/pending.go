// Package pending tracks outbound calls that are waiting for their CallResult or CallError.
//
// Every entry ends in exactly one of three ways, after which it is gone from the table:
//
//	registered ──Resolve──▶ resolved (response or classified failure)
//	           ──Expire───▶ timed out (message.ErrTimeout)
//	           ──CancelAll▶ cancelled (reason, normally message.ErrConnectionClosed)
//
// Removal and delivery happen under the same lock, so a response that arrives after Expire finds
// nothing and is reported as unsolicited by the caller of Resolve.
package pending

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"ocpp-rpc/message"
)

var ErrDuplicateID = errors.New("pending: unique id already in use")

// Outcome is what a waiter receives: the result payload, or the error that ended the call.
type Outcome struct {
	Payload json.RawMessage
	Err     error
}

// Waiter is the caller's handle on a registered call.
type Waiter struct {
	ID        string
	CreatedAt time.Time
	ch        chan Outcome // buffered so delivery never blocks the table
}

// Done yields the outcome exactly once.
func (w *Waiter) Done() <-chan Outcome {
	return w.ch
}

type Table struct {
	mu    sync.Mutex
	calls map[string]*Waiter
	now   func() time.Time
}

func New() *Table {
	return &Table{
		calls: make(map[string]*Waiter),
		now:   time.Now,
	}
}

// WithClock replaces the time source used for CreatedAt.
func (t *Table) WithClock(now func() time.Time) *Table {
	t.now = now
	return t
}

func (t *Table) Register(id string) (*Waiter, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.calls[id]; ok {
		return nil, ErrDuplicateID
	}
	w := &Waiter{ID: id, CreatedAt: t.now(), ch: make(chan Outcome, 1)}
	t.calls[id] = w
	return w, nil
}

// Resolve delivers o to the waiter registered under id. It returns false when no such call is
// pending; nothing is recorded in that case.
func (t *Table) Resolve(id string, o Outcome) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.calls[id]
	if !ok {
		return false
	}
	delete(t.calls, id)
	w.ch <- o
	return true
}

// Expire times out the call registered under id. It returns false when the call was already
// resolved, in which case the waiter holds that outcome instead.
func (t *Table) Expire(id string) bool {
	return t.Resolve(id, Outcome{Err: message.ErrTimeout})
}

// Remove drops the entry for id without delivering anything, for calls whose frame never left.
func (t *Table) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.calls[id]
	delete(t.calls, id)
	return ok
}

// CancelAll fails every pending call with reason and empties the table. It returns how many calls
// were cancelled.
func (t *Table) CancelAll(reason error) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.calls)
	for id, w := range t.calls {
		w.ch <- Outcome{Err: reason}
		delete(t.calls, id)
	}
	return n
}

func (t *Table) Has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.calls[id]
	return ok
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
