// Package registry tells a charge point where its central system can be reached.
//
// A central system deployment registers one Endpoint per websocket listener under a service name;
// charge points discover the current list and pick one with package loadbalance.
package registry

import (
	"context"
	"errors"
)

var ErrNoEndpoints = errors.New("registry: no endpoints")

// Endpoint is one reachable central system listener.
type Endpoint struct {
	URL     string `json:"url"`              // ws:// or wss:// base, the charge point id is appended
	Weight  int    `json:"weight,omitempty"` // relative share for weighted balancing
	Version string `json:"version,omitempty"`
}

type Registry interface {
	// Register publishes ep for ttl seconds, renewed until Deregister or Close.
	Register(ctx context.Context, service string, ep Endpoint, ttl int64) error
	Deregister(ctx context.Context, service, url string) error
	Discover(ctx context.Context, service string) ([]Endpoint, error)
	// Watch emits the full endpoint list after every change until ctx is done.
	Watch(ctx context.Context, service string) <-chan []Endpoint
	Close() error
}

// publish replaces whatever list is still unread in ch.
func publish(ch chan []Endpoint, eps []Endpoint) {
	for {
		select {
		case ch <- eps:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
