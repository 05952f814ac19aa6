package registry

import (
	"context"
	"sort"
	"sync"
)

// MemoryRegistry is an in-process Registry. TTLs are ignored.
type MemoryRegistry struct {
	mu       sync.Mutex
	vehicles map[string]map[string]ServiceInstance
	watchers map[string][]chan []ServiceInstance
}

// NewMemoryRegistry returns an empty in-process registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		vehicles: make(map[string]map[string]ServiceInstance),
		watchers: make(map[string][]chan []ServiceInstance),
	}
}

func (r *MemoryRegistry) Register(_ context.Context, vehicle string, instance ServiceInstance, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.vehicles[vehicle] == nil {
		r.vehicles[vehicle] = make(map[string]ServiceInstance)
	}
	r.vehicles[vehicle][instance.Addr] = instance
	r.notifyLocked(vehicle)
	return nil
}

func (r *MemoryRegistry) Deregister(_ context.Context, vehicle string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.vehicles[vehicle], addr)
	r.notifyLocked(vehicle)
	return nil
}

func (r *MemoryRegistry) Discover(_ context.Context, vehicle string) ([]ServiceInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	instances := r.listLocked(vehicle)
	if len(instances) == 0 {
		return nil, ErrNotFound
	}
	return instances, nil
}

func (r *MemoryRegistry) Watch(ctx context.Context, vehicle string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	r.mu.Lock()
	r.watchers[vehicle] = append(r.watchers[vehicle], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		ws := r.watchers[vehicle]
		for i, w := range ws {
			if w == ch {
				r.watchers[vehicle] = append(ws[:i], ws[i+1:]...)
				close(ch)
				break
			}
		}
	}()
	return ch
}

func (r *MemoryRegistry) Close() error { return nil }

func (r *MemoryRegistry) listLocked(vehicle string) []ServiceInstance {
	instances := make([]ServiceInstance, 0, len(r.vehicles[vehicle]))
	for _, inst := range r.vehicles[vehicle] {
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].Addr < instances[j].Addr })
	return instances
}

// notifyLocked replaces any unread update with the latest list.
func (r *MemoryRegistry) notifyLocked(vehicle string) {
	list := r.listLocked(vehicle)
	for _, ch := range r.watchers[vehicle] {
		select {
		case <-ch:
		default:
		}
		ch <- list
	}
}
