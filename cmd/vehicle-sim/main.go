// Command vehicle-sim serves a simulated vehicle over gRPC, optionally advertising
// itself in etcd so drones can attach by vehicle name.
package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"drone-rpc/codec"
	"drone-rpc/config"
	"drone-rpc/logging"
	"drone-rpc/middleware"
	"drone-rpc/registry"
	"drone-rpc/server"
	"drone-rpc/sim"
)

type CLI struct {
	Listen        string        `help:"Address to serve gRPC on." default:"127.0.0.1:50051"`
	Codec         string        `help:"Wire codec: proto or json." default:"proto" enum:"proto,json"`
	TelemetryRate float64       `help:"Telemetry rate in Hz." default:"10"`
	DenyArm       bool          `help:"Refuse to arm with COMMAND_DENIED."`
	DropTelemetry int           `help:"Cut telemetry streams this many times."`
	RateLimit     float64       `help:"Calls per second accepted, 0 for no limit."`
	Vehicle       string        `help:"Vehicle name to advertise." default:"sim"`
	Registry      []string      `help:"etcd endpoints to advertise on." placeholder:"HOST:PORT"`
	Status        time.Duration `help:"Status line interval, 0 to disable." default:"10s"`
	LogLevel      string        `help:"Log level." default:"info"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("vehicle-sim"),
		kong.Description("Serve a simulated vehicle."),
	)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	kctx.FatalIfErrorf(cli.run(ctx))
}

func (c *CLI) run(ctx context.Context) error {
	logCfg := config.Default().Log
	logCfg.Level = c.LogLevel
	log, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ct, err := codec.ParseCodecType(c.Codec)
	if err != nil {
		return err
	}
	opts := []server.Option{server.WithCodec(ct), server.WithLogger(log)}
	if len(c.Registry) > 0 {
		reg, err := registry.NewEtcdRegistry(c.Registry, log)
		if err != nil {
			return err
		}
		defer reg.Close()
		opts = append(opts, server.WithRegistry(reg, c.Vehicle, registry.ServiceInstance{Weight: 1}, 10))
	}

	v := sim.NewVehicle(sim.Config{
		TelemetryRate: c.TelemetryRate,
		Faults: sim.Faults{
			DenyArm:       c.DenyArm,
			DropTelemetry: c.DropTelemetry,
		},
	}, log)
	defer v.Close()

	srv, err := sim.NewServer(v, opts...)
	if err != nil {
		return err
	}
	srv.Use(middleware.ServerLogging(log))
	if c.RateLimit > 0 {
		srv.Use(middleware.ServerRateLimit(c.RateLimit, int(c.RateLimit)+1))
	}

	lis, err := net.Listen("tcp", c.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", c.Listen, err)
	}

	started := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(lis) })
	g.Go(func() error {
		<-ctx.Done()
		v.Close()
		return srv.Shutdown(5 * time.Second)
	})
	if c.Status > 0 {
		g.Go(func() error {
			t := time.NewTicker(c.Status)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
					log.Info("status",
						zap.String("sent", humanize.Comma(int64(v.Sent()))),
						zap.Bool("armed", v.Armed()),
						zap.String("up since", humanize.Time(started)))
				}
			}
		})
	}
	return g.Wait()
}
