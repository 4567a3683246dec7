package loadbalance

import (
	"math/rand/v2"

	"ocpp-rpc/registry"
)

// WeightedRandomBalancer picks endpoints with probability proportional to their weight. A weight
// of zero or less counts as 1.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(_ string, endpoints []registry.Endpoint) (registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return registry.Endpoint{}, registry.ErrNoEndpoints
	}

	// 计算总权重
	totalWeight := 0
	for _, ep := range endpoints {
		totalWeight += weightOf(ep)
	}

	// 生成一个随机数，范围是0到总权重
	r := rand.IntN(totalWeight)
	for _, ep := range endpoints {
		r -= weightOf(ep)
		if r < 0 {
			return ep, nil
		}
	}
	return endpoints[len(endpoints)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return NameWeightedRandom
}

func weightOf(ep registry.Endpoint) int {
	if ep.Weight <= 0 {
		return 1
	}
	return ep.Weight
}
