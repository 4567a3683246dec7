package loadbalance

import (
	"fmt"
	"hash/crc32"
	"slices"
	"sort"
	"strings"
	"sync"

	"ocpp-rpc/registry"
)

const defaultReplicas = 100

// ConsistentHashBalancer maps a charge point id onto a hash ring of endpoints, so reconnects reach
// the same central system node while the endpoint list is unchanged and only ids owned by a
// removed node move when it changes.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	         B ●           ● A
//	           │  CP_1 ◆──►│      (clockwise to nearest node → A)
//	         C ●           ● A'   (virtual node of A)
//	                ╲   ╱
type ConsistentHashBalancer struct {
	replicas int

	mu    sync.Mutex
	sig   string                       // endpoint URLs the ring was built from
	ring  []uint32                     // sorted virtual node hashes
	nodes map[uint32]registry.Endpoint // virtual node hash → endpoint
}

func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: defaultReplicas,
		nodes:    make(map[uint32]registry.Endpoint),
	}
}

// Pick rebuilds the ring when endpoints differ from the previous call.
func (b *ConsistentHashBalancer) Pick(key string, endpoints []registry.Endpoint) (registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return registry.Endpoint{}, registry.ErrNoEndpoints
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if sig := signature(endpoints); sig != b.sig {
		b.rebuild(endpoints)
		b.sig = sig
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) rebuild(endpoints []registry.Endpoint) {
	b.ring = b.ring[:0]
	clear(b.nodes)
	for _, ep := range endpoints {
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", ep.URL, i)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = ep
		}
	}
	slices.Sort(b.ring)
}

func (b *ConsistentHashBalancer) Name() string {
	return NameConsistentHash
}

func signature(endpoints []registry.Endpoint) string {
	urls := make([]string, len(endpoints))
	for i, ep := range endpoints {
		urls[i] = ep.URL
	}
	slices.Sort(urls)
	return strings.Join(urls, "\x00")
}
