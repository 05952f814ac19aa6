package registry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRegistry(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := reg.Watch(ctx, "x500")

	if err := reg.Register(ctx, "x500", ServiceInstance{Addr: "10.0.0.2:50051", Weight: 1}, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(ctx, "x500", ServiceInstance{Addr: "10.0.0.1:50051", Weight: 1}, 10); err != nil {
		t.Fatal(err)
	}

	instances, _ := reg.Discover(ctx, "x500")
	if len(instances) != 2 || instances[0].Addr != "10.0.0.1:50051" {
		t.Fatalf("expect 2 sorted instances, got %v", instances)
	}

	select {
	case list := <-updates:
		if len(list) != 2 {
			t.Fatalf("expect latest update with 2 instances, got %v", list)
		}
	case <-time.After(time.Second):
		t.Fatal("no watch update")
	}

	reg.Deregister(ctx, "x500", "10.0.0.2:50051")
	select {
	case list := <-updates:
		if len(list) != 1 {
			t.Fatalf("expect 1 instance after deregister, got %v", list)
		}
	case <-time.After(time.Second):
		t.Fatal("no watch update after deregister")
	}

	if other, err := reg.Discover(ctx, "other"); !errors.Is(err, ErrNotFound) || len(other) != 0 {
		t.Fatalf("expect ErrNotFound for unknown vehicle, got %v, %v", other, err)
	}

	cancel()
	select {
	case _, ok := <-updates:
		for ok {
			_, ok = <-updates
		}
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}
