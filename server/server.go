// Package server hosts vehicle services over gRPC without generated stubs.
//
// Services are plain structs registered by reflection, the way net/rpc does it. All
// calls arrive through one unknown-service handler which looks up "/Service/Method",
// decodes the request with the server's codec and invokes the handler:
//
//	gRPC stream → stream interceptors → handle
//	  → lookup service/method → RecvMsg(args) → reflect.Call
//	    → unary:     SendMsg(reply)
//	    → streaming: handler calls Stream.Send until it returns
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"reflect"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"drone-rpc/codec"
	"drone-rpc/message"
	"drone-rpc/registry"
)

type options struct {
	codec        codec.CodecType
	interceptors []grpc.StreamServerInterceptor
	registry     registry.Registry
	vehicle      string
	instance     registry.ServiceInstance
	ttl          int64
	logger       *zap.Logger
}

// Option configures a Server.
type Option func(*options)

// WithCodec forces the codec for every call the server handles.
func WithCodec(t codec.CodecType) Option {
	return func(o *options) { o.codec = t }
}

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRegistry advertises the server under vehicle while it serves. The instance
// address is filled from the listener when empty.
func WithRegistry(reg registry.Registry, vehicle string, instance registry.ServiceInstance, ttl int64) Option {
	return func(o *options) {
		o.registry = reg
		o.vehicle = vehicle
		o.instance = instance
		o.ttl = ttl
	}
}

// Server hosts registered services.
type Server struct {
	mu         sync.RWMutex
	serviceMap map[string]*service
	opts       options
	grpc       *grpc.Server
	log        *zap.Logger
	advertised string
}

// NewServer returns a server with no services registered.
func NewServer(opts ...Option) *Server {
	o := options{logger: zap.NewNop(), ttl: 10}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{
		serviceMap: make(map[string]*service),
		opts:       o,
		log:        o.logger.Named("server"),
	}
	s.grpc = grpc.NewServer(
		grpc.ForceServerCodec(codec.GetCodec(o.codec)),
		grpc.UnknownServiceHandler(s.handle),
		grpc.StreamInterceptor(s.intercept),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	return s
}

// Use adds a stream interceptor. Every call, unary ones included, passes through
// stream interceptors, in the order they were added.
func (s *Server) Use(i grpc.StreamServerInterceptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.interceptors = append(s.opts.interceptors, i)
}

// intercept wraps handler in the registered interceptors:
// Use(A), Use(B) runs A.before → B.before → handler → B.after → A.after.
func (s *Server) intercept(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	s.mu.RLock()
	chain := s.opts.interceptors
	s.mu.RUnlock()

	h := handler
	for i := len(chain) - 1; i >= 0; i-- {
		next, ic := h, chain[i]
		h = func(srv any, ss grpc.ServerStream) error {
			return ic(srv, ss, info, next)
		}
	}
	return h(srv, ss)
}

// Register registers rcvr under its type name.
func (s *Server) Register(rcvr any) error {
	return s.RegisterName("", rcvr)
}

// RegisterName registers rcvr under the fully-qualified service name.
func (s *Server) RegisterName(name string, rcvr any) error {
	svc, err := newService(name, rcvr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.serviceMap[svc.name]; dup {
		return fmt.Errorf("server: service %s already registered", svc.name)
	}
	s.serviceMap[svc.name] = svc
	return nil
}

// Serve accepts connections on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	if s.opts.registry != nil {
		inst := s.opts.instance
		if inst.Addr == "" {
			inst.Addr = lis.Addr().String()
		}
		if err := s.opts.registry.Register(context.Background(), s.opts.vehicle, inst, s.opts.ttl); err != nil {
			return fmt.Errorf("server: advertise: %w", err)
		}
		s.mu.Lock()
		s.advertised = inst.Addr
		s.mu.Unlock()
	}

	s.log.Info("serving", zap.String("addr", lis.Addr().String()), zap.Stringer("codec", s.opts.codec))
	err := s.grpc.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Shutdown deregisters the server, stops accepting calls and waits up to timeout
// for running calls before cutting them off.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	advertised := s.advertised
	s.advertised = ""
	s.mu.Unlock()

	var err error
	if advertised != "" {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err = s.opts.registry.Deregister(ctx, s.opts.vehicle, advertised)
		cancel()
	}
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-time.After(timeout):
		s.grpc.Stop()
		return multierr.Append(err, fmt.Errorf("server: timeout waiting for ongoing calls to finish"))
	}
}

func (s *Server) lookup(fullMethod string) (*service, *methodType, error) {
	svcName, methodName, ok := message.ParseFullMethod(fullMethod)
	if !ok {
		return nil, nil, status.Errorf(codes.InvalidArgument, "malformed method %q", fullMethod)
	}
	s.mu.RLock()
	svc := s.serviceMap[svcName]
	s.mu.RUnlock()
	if svc == nil {
		return nil, nil, status.Errorf(codes.Unimplemented, "unknown service %s", svcName)
	}
	m := svc.method[methodName]
	if m == nil {
		return nil, nil, status.Errorf(codes.Unimplemented, "unknown method %s for service %s", methodName, svcName)
	}
	return svc, m, nil
}

func (s *Server) handle(_ any, ss grpc.ServerStream) error {
	fullMethod, ok := grpc.MethodFromServerStream(ss)
	if !ok {
		return status.Error(codes.Internal, "no method in stream context")
	}
	svc, m, err := s.lookup(fullMethod)
	if err != nil {
		return err
	}

	argv := reflect.New(m.ArgType)
	if err := ss.RecvMsg(argv.Interface()); err != nil {
		return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}

	if m.streaming {
		st := &Stream{ctx: ss.Context(), send: ss.SendMsg}
		return toStatus(svc.call(m, argv, reflect.ValueOf(st)))
	}

	replyv := reflect.New(m.ReplyType)
	if err := svc.call(m, argv, replyv); err != nil {
		return toStatus(err)
	}
	return ss.SendMsg(replyv.Interface())
}

// toStatus keeps gRPC status errors and context errors, and maps anything else to
// codes.Unknown.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Unknown, err.Error())
}
