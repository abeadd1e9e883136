package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/go-i2p/wgmobile/lib/backend"
	"github.com/go-i2p/wgmobile/lib/config"
	"github.com/go-i2p/wgmobile/lib/metrics"
	"github.com/go-i2p/wgmobile/lib/rpc"
	"github.com/go-i2p/wgmobile/lib/settings"
	"github.com/go-i2p/wgmobile/lib/tunnel"
	"github.com/go-i2p/wgmobile/version"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd(opts *rootOptions) *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.load()
			if err != nil {
				return err
			}
			if profile != "" {
				s.Tunnel.Profile = profile
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := newDaemon(s, nil)
			if err != nil {
				return err
			}
			return d.run(ctx)
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "tunnel profile to connect at start (overrides settings)")
	return cmd
}

// daemon wires one tunnel controller to the RPC server and, optionally, a
// Prometheus endpoint.
type daemon struct {
	settings *settings.Settings
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	ctrl     *tunnel.Controller
	server   *rpc.Server

	// owned is the backend the daemon created and must close.
	owned *backend.Netstack

	// onReady runs once the RPC socket is listening.
	onReady func()
}

// newDaemon builds a daemon on be, or on a fresh netstack backend when be
// is nil.
func newDaemon(s *settings.Settings, be backend.Backend) (*daemon, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	d := &daemon{
		settings: s,
		registry: reg,
		metrics:  metrics.New(reg),
	}
	if be == nil {
		d.owned = backend.NewNetstack(backend.NetstackConfig{MTU: s.Tunnel.MTU})
		be = d.owned
	}
	d.ctrl = tunnel.New(be,
		tunnel.WithTunnelName(s.Tunnel.Name),
		tunnel.WithMetrics(d.metrics),
	)

	server, err := rpc.NewServer(rpc.ServerConfig{
		SocketPath:     s.SocketPath(),
		MaxConnections: s.RPC.MaxConnections,
		HandlerTimeout: s.Tunnel.CallTimeout,
	})
	if err != nil {
		return nil, err
	}
	rpc.NewHandlers(rpc.HandlersConfig{
		Tunnel:  d.ctrl,
		Metrics: d.metrics,
		Limiter: rate.NewLimiter(rate.Limit(s.RPC.LifecycleRate), s.RPC.LifecycleBurst),
	}).RegisterAll(server)
	d.server = server

	return d, nil
}

// run serves until ctx is cancelled, then takes the tunnel down.
func (d *daemon) run(ctx context.Context) error {
	if err := d.settings.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	if err := d.server.Start(ctx); err != nil {
		return err
	}
	defer d.shutdown()

	d.metrics.RecordStartTime()
	log.WithField("version", version.Full()).
		WithField("socket", d.server.SocketPath()).
		Info("wgmobiled started")

	g, ctx := errgroup.WithContext(ctx)

	if d.settings.Metrics.Enabled {
		srv := &http.Server{
			Addr:              d.settings.Metrics.Listen,
			Handler:           d.metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.WithField("listen", srv.Addr).Info("serving metrics")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if profile := d.settings.ProfilePath(); profile != "" {
		g.Go(func() error {
			d.autoConnect(ctx, profile)
			return nil
		})
	}

	if d.onReady != nil {
		d.onReady()
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		return nil
	})
	return g.Wait()
}

// autoConnect brings up the profile tunnel. Failures are logged and leave
// the daemon running so a client can retry over RPC.
func (d *daemon) autoConnect(ctx context.Context, path string) {
	raw, err := config.LoadProfile(path)
	if err != nil {
		log.WithField("profile", path).WithError(err).Error("loading tunnel profile")
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, d.settings.Tunnel.CallTimeout)
	defer cancel()

	if err := d.ctrl.Initialize(callCtx); err != nil {
		log.WithError(err).Error("initializing tunnel backend")
		return
	}
	if err := d.ctrl.Connect(callCtx, raw); err != nil {
		log.WithField("profile", path).WithError(err).Error("connecting tunnel profile")
		return
	}
	log.WithField("profile", path).Info("tunnel profile connected")
}

func (d *daemon) metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(d.registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// shutdown stops accepting RPC calls, takes a connected tunnel down and
// releases the backend.
func (d *daemon) shutdown() {
	if err := d.server.Stop(); err != nil {
		log.WithError(err).Warn("stopping RPC server")
	}

	if d.ctrl.Lifecycle() == tunnel.LifecycleConnected {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := d.ctrl.Disconnect(ctx); err != nil {
			log.WithError(err).Warn("disconnecting tunnel on shutdown")
		}
		cancel()
	}

	d.ctrl.Close()
	if d.owned != nil {
		if err := d.owned.Close(); err != nil {
			log.WithError(err).Warn("closing backend")
		}
	}
	log.Info("wgmobiled stopped")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
