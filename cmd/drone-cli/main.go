// Command drone-cli attaches to a vehicle server, runs a few example calls and
// prints telemetry until interrupted.
//
//	drone-cli 192.168.1.20 --port 50051 --metrics-addr :9100
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	mangokong "github.com/alecthomas/mango-kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"drone-rpc/config"
	"drone-rpc/drone"
	"drone-rpc/logging"
	"drone-rpc/metrics"
	"drone-rpc/plugins/telemetry"
	"drone-rpc/result"
)

type CLI struct {
	Address     string            `arg:"" help:"IPv4 address of the vehicle server (a.b.c.d)."`
	Port        int               `help:"gRPC port of the vehicle server. Defaults to the configured port."`
	Config      string            `help:"TOML configuration file." type:"path"`
	Verbose     bool              `short:"v" help:"Log at debug level."`
	MetricsAddr string            `help:"Serve Prometheus metrics on this address." placeholder:"HOST:PORT"`
	Man         mangokong.ManFlag `help:"Write man page." hidden:""`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("drone-cli"),
		kong.Description("Attach to a vehicle server and print what it reports."),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	ip, err := parseIPv4(cli.Address)
	kctx.FatalIfErrorf(err)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	kctx.FatalIfErrorf(cli.run(ctx, ip))
}

func (c *CLI) run(ctx context.Context, ip net.IP) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if c.Verbose {
		cfg.Log.Level = "debug"
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	port := c.Port
	if port == 0 {
		port = cfg.Port
	}
	d := drone.New(
		drone.WithLogger(log),
		drone.WithTransportOptions(cfg.TransportOptions(log, m)...),
		drone.WithClientOptions(cfg.ClientOptions(log, m)...),
	)
	if err := d.Connect(ctx, drone.Remote{Host: ip.String(), Port: port}); err != nil {
		return err
	}
	defer func() {
		if err := d.Disconnect(); err != nil {
			log.Warn("disconnect", zap.Error(err))
		}
	}()
	fmt.Printf("connected to %s\n", net.JoinHostPort(ip.String(), strconv.Itoa(port)))

	g, ctx := errgroup.WithContext(ctx)
	if c.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              c.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("serving metrics", zap.String("addr", c.MetricsAddr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error { return demo(ctx, d) })
	return g.Wait()
}

// demo issues a few calls and prints telemetry until ctx is done.
func demo(ctx context.Context, d *drone.Drone) error {
	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	alt, err := d.Action().GetTakeoffAltitude(callCtx).Await(callCtx)
	cancel()
	report("takeoff altitude", fmt.Sprintf("%.1f m", alt), err)

	callCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
	_, err = d.Action().Arm(callCtx).Await(callCtx)
	cancel()
	report("arm", "ok", err)

	tel := d.Telemetry()
	listeners := []interface{ Close() }{
		tel.Position().Subscribe(func(p telemetry.Position) {
			fmt.Printf("position  lat=%.6f lon=%.6f rel_alt=%.1fm\n", p.LatitudeDeg, p.LongitudeDeg, p.RelativeAltitudeM)
		}, ended("position")),
		tel.Battery().Subscribe(func(b telemetry.Battery) {
			fmt.Printf("battery   %.2fV %.1f%%\n", b.VoltageV, b.RemainingPercent)
		}, ended("battery")),
		tel.FlightMode().Subscribe(func(m telemetry.FlightMode) {
			fmt.Printf("mode      %s\n", m)
		}, ended("flight mode")),
	}
	<-ctx.Done()
	for _, l := range listeners {
		l.Close()
	}
	return nil
}

func report(what, value string, err error) {
	switch result.KindOf(err) {
	case result.KindSuccess:
		fmt.Printf("%-16s %s\n", what, value)
	case result.KindDomainFailure:
		fmt.Printf("%-16s refused: %v\n", what, err)
	default:
		fmt.Fprintf(os.Stderr, "%-16s failed: %v\n", what, err)
	}
}

func ended(what string) func(error) {
	return func(err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s stream ended: %v\n", what, err)
		}
	}
}
