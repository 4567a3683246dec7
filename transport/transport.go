// Package transport moves opaque frames between the two endpoints of a session.
//
// A Transport delivers whole frames in order and never interleaves two of them. The session owns a
// single reader and a single writer, so implementations only need to tolerate one Receive running
// concurrently with one Send plus Close from anywhere.
package transport

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("transport: closed")

type Transport interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}
