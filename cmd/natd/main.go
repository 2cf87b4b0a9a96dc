// natd -- NAT64 session/binding state-plane daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/grpchealth"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/nat64io/natd/internal/adminapi"
	"github.com/nat64io/natd/internal/config"
	"github.com/nat64io/natd/internal/engine"
	"github.com/nat64io/natd/internal/icmpfacade"
	"github.com/nat64io/natd/internal/icmpwire"
	"github.com/nat64io/natd/internal/metrics"
	"github.com/nat64io/natd/internal/natstate"
	"github.com/nat64io/natd/internal/pool4"
	"github.com/nat64io/natd/internal/pool6"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("natd starting",
		slog.String("admin_addr", cfg.Admin.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	e, err := buildEngine(cfg, logger)
	if err != nil {
		logger.Error("failed to build engine", slog.String("error", err.Error()))
		return 1
	}

	if err := runServers(cfg, e, collector, reg, logger); err != nil {
		logger.Error("natd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("natd stopped")
	return 0
}

// buildEngine constructs the pool4/pool6/icmp collaborators and the
// session/binding engine from configuration.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	ranges := make([]pool4.AddressRange, 0, len(cfg.Pool4))
	for i, r := range cfg.Pool4 {
		addr, err := r.ParsedAddr()
		if err != nil {
			return nil, fmt.Errorf("pool4[%d]: %w", i, err)
		}
		ranges = append(ranges, pool4.AddressRange{
			Addr: addr, MinID: r.MinID, MaxID: r.MaxID, Stride: r.Stride,
			ShuffleSeed: uint64(i) + 1,
		})
	}
	p4, err := pool4.New(ranges)
	if err != nil {
		return nil, fmt.Errorf("build pool4: %w", err)
	}

	p6 := pool6.New()
	for _, prefixStr := range cfg.Pool6 {
		prefix, err := netip.ParsePrefix(prefixStr)
		if err != nil {
			return nil, fmt.Errorf("parse pool6 prefix %q: %w", prefixStr, err)
		}
		if err := p6.Add(prefix); err != nil {
			return nil, fmt.Errorf("add pool6 prefix %q: %w", prefixStr, err)
		}
	}

	wire := icmpwire.Listen(logger)
	facade := icmpfacade.New(wire)

	engCfg := engine.Config{
		Timeouts: map[natstate.Proto]time.Duration{
			natstate.ProtoUDP:  cfg.Sessions.UDPTimeout,
			natstate.ProtoTCP:  cfg.Sessions.TCPTimeout,
			natstate.ProtoICMP: cfg.Sessions.ICMPTimeout,
		},
		ReapInterval: cfg.Reaper.Interval,
	}

	return engine.New(logger, p4, p6, facade, engCfg), nil
}

// runServers sets up and runs the admin and metrics HTTP servers plus the
// reaper goroutine, using an errgroup with signal-aware context for
// graceful shutdown.
func runServers(
	cfg *config.Config,
	e *engine.Engine,
	collector *metrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
) error {
	adminSrv := newAdminServer(cfg.Admin, e, logger)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	startHTTPServers(gCtx, g, cfg, adminSrv, metricsSrv, logger)

	g.Go(func() error {
		e.StartReaper(gCtx)
		return nil
	})

	g.Go(func() error {
		return runWatchdog(gCtx, logger)
	})

	g.Go(func() error {
		runMetricsScraper(gCtx, e, collector, cfg.Reaper.Interval)
		return nil
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, adminSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// startHTTPServers registers the admin and metrics HTTP server goroutines.
func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	adminSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("admin server listening", slog.String("addr", cfg.Admin.Addr))
		return listenAndServe(ctx, &lc, adminSrv, cfg.Admin.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

// -------------------------------------------------------------------------
// Metrics Scraper
// -------------------------------------------------------------------------

// natProtocols lists the three protocols the metrics scraper samples,
// mirroring internal/engine's own fixed protocol set.
var natProtocols = [...]natstate.Proto{natstate.ProtoUDP, natstate.ProtoTCP, natstate.ProtoICMP}

// runMetricsScraper periodically samples BIB entry and session counts per
// protocol and records them on collector, until ctx is canceled. Polling
// rather than inline instrumentation keeps internal/engine's packet-path
// methods free of a metrics dependency, at the cost of up-to-interval
// staleness in the exported gauges.
func runMetricsScraper(ctx context.Context, e *engine.Engine, collector *metrics.Collector, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, proto := range natProtocols {
				if bindings, err := e.ListBindings(proto); err == nil {
					collector.SetBIBEntries(proto, len(bindings))
				}
				if sessions, err := e.ListSessions(proto); err == nil {
					collector.SetSessions(proto, len(sessions))
				}
			}
		}
	}
}

// -------------------------------------------------------------------------
// Systemd Integration -- sd_notify + watchdog
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd at half the
// configured watchdog interval, exiting immediately if no watchdog is
// configured.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newAdminServer builds the admin HTTP server: internal/adminapi's
// static-route/BIB/session surface plus a grpchealth health endpoint
// reporting SERVING for the admin API itself.
func newAdminServer(cfg config.AdminConfig, e *engine.Engine, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/", adminapi.New(e, logger).Handler())

	checker := grpchealth.NewStaticChecker(grpchealth.HealthV1ServiceName, "natd.adminapi")
	mux.Handle(grpchealth.NewHandler(checker))

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// -------------------------------------------------------------------------
// Config + Logging
// -------------------------------------------------------------------------

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
