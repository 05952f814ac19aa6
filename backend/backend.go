// Package backend starts and stops the vehicle server a Drone connects to when it is
// asked to run one locally.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Backend runs a vehicle server for one vehicle address.
//
// Run reports whether the server started and the local port it accepts gRPC calls
// on. Stop terminates it; calling Stop on a stopped backend is a no-op.
type Backend interface {
	Run(vehicleAddress string) (started bool, port int)
	Stop()
}

const (
	DefaultBinary       = "mavsdk_server"
	DefaultStartTimeout = 10 * time.Second
)

// Process runs an external server binary as a child process:
//
//	<Binary> -p <port> [Args...] <vehicleAddress>
//
// The port is picked by binding an ephemeral listener and releasing it just before
// the child starts.
type Process struct {
	Binary       string
	Args         []string
	StartTimeout time.Duration
	Logger       *zap.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

func (p *Process) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger.Named("backend")
}

// Run starts the binary for vehicleAddress and waits until it accepts connections.
func (p *Process) Run(vehicleAddress string) (bool, int) {
	log := p.logger().With(zap.String("vehicle", vehicleAddress))

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		log.Warn("backend already running")
		return false, 0
	}

	port, err := freePort()
	if err != nil {
		log.Error("pick port", zap.Error(err))
		return false, 0
	}

	bin := p.Binary
	if bin == "" {
		bin = DefaultBinary
	}
	args := append([]string{"-p", strconv.Itoa(port)}, p.Args...)
	args = append(args, vehicleAddress)

	cmd := exec.Command(bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		log.Error("start backend", zap.String("binary", bin), zap.Error(err))
		return false, 0
	}

	done := make(chan struct{})
	go func() {
		err := cmd.Wait()
		log.Info("backend exited", zap.Int("pid", cmd.Process.Pid), zap.Error(err))
		close(done)
	}()

	timeout := p.StartTimeout
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}
	if err := waitListening(port, timeout, done); err != nil {
		log.Error("backend did not come up", zap.Int("port", port), zap.Error(err))
		_ = cmd.Process.Kill()
		<-done
		return false, 0
	}

	p.cmd, p.done = cmd, done
	log.Info("backend started", zap.Int("pid", cmd.Process.Pid), zap.Int("port", port))
	return true, port
}

// Stop interrupts the child and kills it if it has not exited within a second.
func (p *Process) Stop() {
	p.mu.Lock()
	cmd, done := p.cmd, p.done
	p.cmd, p.done = nil, nil
	p.mu.Unlock()
	if cmd == nil {
		return
	}

	_ = cmd.Process.Signal(os.Interrupt)
	select {
	case <-done:
	case <-time.After(time.Second):
		_ = cmd.Process.Kill()
		<-done
	}
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

var errExited = errors.New("process exited")

func waitListening(port int, timeout time.Duration, exited <-chan struct{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn.Close()
		}
		select {
		case <-exited:
			return errExited
		case <-ctx.Done():
			return fmt.Errorf("wait for %s: %w", addr, ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
}
