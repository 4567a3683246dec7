// Package loadbalance picks the central system endpoint a charge point connects to.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity endpoints, reconnects spread in turn
//   - WeightedRandom:  endpoints of different capacity
//   - ConsistentHash:  the same charge point id keeps landing on the same endpoint
package loadbalance

import (
	"fmt"

	"ocpp-rpc/registry"
)

const (
	NameRoundRobin     = "round_robin"
	NameWeightedRandom = "weighted_random"
	NameConsistentHash = "consistent_hash"
)

// Balancer selects one endpoint for key, normally the charge point id. Implementations are safe
// for concurrent use.
type Balancer interface {
	Pick(key string, endpoints []registry.Endpoint) (registry.Endpoint, error)
	Name() string
}

// New returns the balancer registered under name.
func New(name string) (Balancer, error) {
	switch name {
	case NameRoundRobin, "":
		return &RoundRobinBalancer{}, nil
	case NameWeightedRandom:
		return &WeightedRandomBalancer{}, nil
	case NameConsistentHash:
		return NewConsistentHashBalancer(), nil
	default:
		return nil, fmt.Errorf("loadbalance: unknown balancer %q", name)
	}
}
