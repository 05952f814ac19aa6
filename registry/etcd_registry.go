// etcd is used as a "distributed phonebook" of vehicle servers:
//
//	Key:   /drone-rpc/vehicles/{vehicle}/{addr}
//	Value: JSON-encoded ServiceInstance
//
// Registration uses TTL-based leases: if a server crashes, the lease expires and the
// entry is removed, so no ghost instance is ever discovered.

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const keyPrefix = "/drone-rpc/vehicles/"

func vehiclePrefix(vehicle string) string { return keyPrefix + vehicle + "/" }

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client
	log    *zap.Logger

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // key → lease, revoked on Deregister
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, log *zap.Logger) (*EtcdRegistry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
		Logger:      log.Named("etcd"),
	})
	if err != nil {
		return nil, fmt.Errorf("registry: connect etcd: %w", err)
	}
	return &EtcdRegistry{
		client: c,
		log:    log.Named("registry"),
		leases: make(map[string]clientv3.LeaseID),
	}, nil
}

// Register puts the instance under a lease of ttl seconds and keeps the lease alive
// in the background.
func (r *EtcdRegistry) Register(ctx context.Context, vehicle string, instance ServiceInstance, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	key := vehiclePrefix(vehicle) + instance.Addr
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	// the keepalive must outlive ctx, it ends with the lease
	ch, err := r.client.KeepAlive(context.WithoutCancel(ctx), lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
		r.log.Debug("lease keepalive ended", zap.String("key", key))
	}()

	r.mu.Lock()
	r.leases[key] = lease.ID
	r.mu.Unlock()
	return nil
}

// Deregister removes the instance and revokes its lease.
func (r *EtcdRegistry) Deregister(ctx context.Context, vehicle string, addr string) error {
	key := vehiclePrefix(vehicle) + addr

	r.mu.Lock()
	lease, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if ok {
		// revoking deletes the key and stops the keepalive
		_, err := r.client.Revoke(ctx, lease)
		return err
	}
	_, err := r.client.Delete(ctx, key)
	return err
}

// Watch re-reads the instance list on every change under the vehicle prefix.
func (r *EtcdRegistry) Watch(ctx context.Context, vehicle string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, vehiclePrefix(vehicle), clientv3.WithPrefix())
		for range watchChan {
			instances, err := r.Discover(ctx, vehicle)
			if errors.Is(err, ErrNotFound) {
				instances, err = []ServiceInstance{}, nil
			}
			if err != nil {
				r.log.Warn("discover after watch event failed", zap.String("vehicle", vehicle), zap.Error(err))
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns all instances currently registered for vehicle.
func (r *EtcdRegistry) Discover(ctx context.Context, vehicle string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, vehiclePrefix(vehicle), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.log.Warn("skipping malformed instance", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	if len(instances) == 0 {
		return nil, ErrNotFound
	}
	return instances, nil
}

func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
