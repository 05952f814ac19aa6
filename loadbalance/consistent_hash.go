package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"sync"

	"drone-rpc/registry"
)

// ConsistentHashBalancer maps a key to an instance on a hash ring. The same key maps
// to the same instance as long as the instance set does not change.
//
// Each real instance is placed on the ring as 100 virtual nodes so a few instances
// still spread evenly.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	                ╲   ╱
type ConsistentHashBalancer struct {
	key      string
	replicas int

	mu    sync.Mutex
	ring  []uint32
	nodes map[uint32]*registry.ServiceInstance
	addrs map[string]struct{}
}

// NewConsistentHashBalancer creates a ring whose Pick hashes key.
func NewConsistentHashBalancer(key string) *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		key:      key,
		replicas: 100,
		nodes:    make(map[uint32]*registry.ServiceInstance),
		addrs:    make(map[string]struct{}),
	}
}

// Add places an instance onto the ring.
func (b *ConsistentHashBalancer) Add(instance *registry.ServiceInstance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addLocked(instance)
	b.sortLocked()
}

func (b *ConsistentHashBalancer) addLocked(instance *registry.ServiceInstance) {
	if _, ok := b.addrs[instance.Addr]; ok {
		return
	}
	b.addrs[instance.Addr] = struct{}{}
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
}

func (b *ConsistentHashBalancer) sortLocked() {
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

// PickKey finds the instance responsible for key on the current ring.
func (b *ConsistentHashBalancer) PickKey(key string) (*registry.ServiceInstance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pickLocked(key)
}

func (b *ConsistentHashBalancer) pickLocked(key string) (*registry.ServiceInstance, error) {
	if len(b.ring) == 0 {
		return nil, ErrNoInstances
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool { return b.ring[i] >= hash })
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

// Pick rebuilds the ring from instances and picks the balancer's key.
func (b *ConsistentHashBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring = b.ring[:0]
	clear(b.nodes)
	clear(b.addrs)
	for i := range instances {
		b.addLocked(&instances[i])
	}
	b.sortLocked()
	return b.pickLocked(b.key)
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
