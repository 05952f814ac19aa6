package sim

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"drone-rpc/server"
)

// NewServer returns a server hosting every service of v.
func NewServer(v *Vehicle, opts ...server.Option) (*server.Server, error) {
	srv := server.NewServer(opts...)
	if err := v.Register(srv); err != nil {
		return nil, err
	}
	return srv, nil
}

// Backend runs a simulated vehicle inside the current process, on an ephemeral
// loopback port. It satisfies backend.Backend.
type Backend struct {
	Config  Config
	Options []server.Option
	Logger  *zap.Logger

	mu      sync.Mutex
	vehicle *Vehicle
	srv     *server.Server
	done    chan struct{}
}

func (b *Backend) Run(vehicleAddress string) (bool, int) {
	log := b.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("sim-backend").With(zap.String("vehicle", vehicleAddress))

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.srv != nil {
		log.Warn("backend already running")
		return false, 0
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Error("listen", zap.Error(err))
		return false, 0
	}
	v := NewVehicle(b.Config, log)
	opts := append([]server.Option{server.WithLogger(log)}, b.Options...)
	srv, err := NewServer(v, opts...)
	if err != nil {
		log.Error("register services", zap.Error(err))
		lis.Close()
		v.Close()
		return false, 0
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(lis); err != nil {
			log.Error("serve", zap.Error(err))
		}
	}()

	b.vehicle, b.srv, b.done = v, srv, done
	return true, lis.Addr().(*net.TCPAddr).Port
}

func (b *Backend) Stop() {
	b.mu.Lock()
	v, srv, done := b.vehicle, b.srv, b.done
	b.vehicle, b.srv, b.done = nil, nil, nil
	b.mu.Unlock()
	if srv == nil {
		return
	}
	v.Close()
	_ = srv.Shutdown(time.Second)
	<-done
}

// Vehicle is the running vehicle, or nil.
func (b *Backend) Vehicle() *Vehicle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.vehicle
}
