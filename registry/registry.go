// Package registry keeps track of running vehicle servers so a drone can attach to
// one by vehicle name instead of a fixed address.
package registry

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Discover when no instance serves the vehicle. Watch
// reports the same condition as an empty list.
var ErrNotFound = errors.New("registry: no instances")

// ServiceInstance is one running vehicle server.
type ServiceInstance struct {
	Addr    string            `json:"addr"`
	Weight  int               `json:"weight"` // load balancing weight
	Version string            `json:"version,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// Registry advertises and finds vehicle servers by vehicle name.
type Registry interface {
	// Register advertises instance under vehicle for ttl seconds, renewed until
	// Deregister or Close.
	Register(ctx context.Context, vehicle string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, vehicle string, addr string) error
	Discover(ctx context.Context, vehicle string) ([]ServiceInstance, error)
	// Watch emits the full instance list on every change until ctx is done.
	Watch(ctx context.Context, vehicle string) <-chan []ServiceInstance
	Close() error
}
