package loadbalance

import (
	"sync/atomic"

	"ocpp-rpc/registry"
)

// RoundRobinBalancer hands out endpoints in order, ignoring the key.
type RoundRobinBalancer struct {
	counter atomic.Uint64
}

func (b *RoundRobinBalancer) Pick(_ string, endpoints []registry.Endpoint) (registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return registry.Endpoint{}, registry.ErrNoEndpoints
	}
	index := (b.counter.Add(1) - 1) % uint64(len(endpoints))
	return endpoints[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return NameRoundRobin
}
