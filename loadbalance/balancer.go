// Package loadbalance picks one vehicle server out of the instances discovered for a
// vehicle.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity instances
//   - WeightedRandom:  heterogeneous instances (different hardware)
//   - ConsistentHash:  sticky choice per key, e.g. one ground station always lands
//     on the same server while the instance set is stable
package loadbalance

import (
	"errors"
	"fmt"
	"strings"

	"drone-rpc/registry"
)

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer selects one instance. Pick must be goroutine-safe.
type Balancer interface {
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)
	Name() string
}

// New returns the balancer named name. key is only used by "consistent_hash".
func New(name, key string) (Balancer, error) {
	switch strings.ToLower(name) {
	case "", "round_robin", "roundrobin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random", "weightedrandom":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash", "consistenthash":
		return NewConsistentHashBalancer(key), nil
	default:
		return nil, fmt.Errorf("loadbalance: unknown strategy %q", name)
	}
}
