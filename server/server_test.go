package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"drone-rpc/codec"
	"drone-rpc/registry"
)

type Args struct {
	A, B int
}

type Reply struct {
	Result int
}

type Arith struct{}

func (a *Arith) Add(args *Args, reply *Reply) error {
	reply.Result = args.A + args.B
	return nil
}

func (a *Arith) Div(args *Args, reply *Reply) error {
	if args.B == 0 {
		return errors.New("divide by zero")
	}
	reply.Result = args.A / args.B
	return nil
}

func (a *Arith) Count(args *Args, stream *Stream) error {
	for i := args.A; i < args.B; i++ {
		if err := stream.Send(&Reply{Result: i}); err != nil {
			return err
		}
	}
	return nil
}

// not a handler: wrong signature
func (a *Arith) Helper(x int) int { return x }

func serve(t *testing.T, svr *Server) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go svr.Serve(lis)
	t.Cleanup(func() { svr.Shutdown(time.Second) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(&codec.JSONCodec{})))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRegister(t *testing.T) {
	svr := NewServer()
	require.NoError(t, svr.Register(&Arith{}))
	assert.Error(t, svr.Register(&Arith{}), "duplicate registration")
	assert.Error(t, svr.Register(Arith{}), "receiver must be a pointer")

	svc := svr.serviceMap["Arith"]
	require.NotNil(t, svc)
	assert.Len(t, svc.method, 3)
	assert.True(t, svc.method["Count"].streaming)
	assert.False(t, svc.method["Add"].streaming)
}

func TestUnaryCall(t *testing.T) {
	svr := NewServer(WithCodec(codec.CodecTypeJSON))
	require.NoError(t, svr.RegisterName("test.Arith", &Arith{}))
	conn := serve(t, svr)

	var reply Reply
	require.NoError(t, conn.Invoke(context.Background(), "/test.Arith/Add", &Args{A: 1, B: 2}, &reply))
	assert.Equal(t, 3, reply.Result)

	err := conn.Invoke(context.Background(), "/test.Arith/Div", &Args{A: 1}, &reply)
	assert.Equal(t, codes.Unknown, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "divide by zero")

	err = conn.Invoke(context.Background(), "/test.Other/Add", &Args{}, &reply)
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestStreamingCall(t *testing.T) {
	svr := NewServer(WithCodec(codec.CodecTypeJSON))
	require.NoError(t, svr.RegisterName("test.Arith", &Arith{}))
	conn := serve(t, svr)

	cs, err := conn.NewStream(context.Background(), &grpc.StreamDesc{ServerStreams: true}, "/test.Arith/Count")
	require.NoError(t, err)
	require.NoError(t, cs.SendMsg(&Args{A: 2, B: 5}))
	require.NoError(t, cs.CloseSend())

	var got []int
	for {
		var r Reply
		err := cs.RecvMsg(&r)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, r.Result)
	}
	assert.Equal(t, []int{2, 3, 4}, got)
}

func TestInterceptorOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	mark := func(name string) grpc.StreamServerInterceptor {
		return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
			mu.Lock()
			order = append(order, name+".before")
			mu.Unlock()
			err := handler(srv, ss)
			mu.Lock()
			order = append(order, name+".after")
			mu.Unlock()
			return err
		}
	}

	svr := NewServer(WithCodec(codec.CodecTypeJSON))
	svr.Use(mark("A"))
	svr.Use(mark("B"))
	require.NoError(t, svr.RegisterName("test.Arith", &Arith{}))
	conn := serve(t, svr)

	var reply Reply
	require.NoError(t, conn.Invoke(context.Background(), "/test.Arith/Add", &Args{A: 1, B: 1}, &reply))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"A.before", "B.before", "B.after", "A.after"}, order)
}

func TestAdvertiseAndShutdown(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	svr := NewServer(WithRegistry(reg, "x500", registry.ServiceInstance{Weight: 1}, 10))
	require.NoError(t, svr.Register(&Arith{}))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- svr.Serve(lis) }()

	require.Eventually(t, func() bool {
		instances, _ := reg.Discover(context.Background(), "x500")
		return len(instances) == 1 && instances[0].Addr == lis.Addr().String()
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, svr.Shutdown(time.Second))
	instances, err := reg.Discover(context.Background(), "x500")
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.Empty(t, instances)

	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}
