package sim

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/test/bufconn"

	"drone-rpc/codec"
	"drone-rpc/plugins/action"
	"drone-rpc/server"
	"drone-rpc/transport"
)

func setupBench(b *testing.B, ct codec.CodecType) *action.Action {
	v := NewVehicle(Config{}, zap.NewNop())
	srv, err := NewServer(v, server.WithCodec(ct))
	if err != nil {
		b.Fatal(err)
	}
	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	b.Cleanup(func() {
		v.Close()
		srv.Shutdown(3 * time.Second)
	})

	ch, err := transport.Open(context.Background(), transport.Endpoint{Host: "bufnet", Port: 1},
		transport.WithCodec(ct),
		transport.WithWorkers(8),
		transport.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { ch.Close() })
	return action.New(ch)
}

// single caller, one call at a time
func BenchmarkSerialCall(b *testing.B) {
	a := setupBench(b, codec.CodecTypeBinary)
	ctx := context.Background()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := a.GetTakeoffAltitude(ctx).Await(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

// many callers multiplexed over one channel
func BenchmarkConcurrentCall(b *testing.B) {
	for _, ct := range []codec.CodecType{codec.CodecTypeBinary, codec.CodecTypeJSON} {
		b.Run(ct.String(), func(b *testing.B) {
			a := setupBench(b, ct)
			ctx := context.Background()
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					if _, err := a.GetTakeoffAltitude(ctx).Await(ctx); err != nil {
						b.Error(err)
						return
					}
				}
			})
		})
	}
}
