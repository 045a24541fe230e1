package manager

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/core-tools/hsu-devlauncher/pkg/control"
	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/core-tools/hsu-devlauncher/pkg/logging"
	"github.com/core-tools/hsu-devlauncher/pkg/metrics"
	"github.com/core-tools/hsu-devlauncher/pkg/monitoring"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 5 * time.Second

// Daemon serves the manager over gRPC, exposes metrics and keeps a poller running.
// Being the only writer in its process, it serializes all registry updates.
type Daemon struct {
	manager  *Manager
	metrics  *metrics.PrometheusCollector
	poller   *monitoring.Poller
	logger   logging.Logger
	listener net.Listener

	grpcServer    *grpc.Server
	healthServer  *health.Server
	metricsServer *http.Server
	metricsAddr   net.Addr
}

func NewDaemon(config Config, logger logging.Logger) (*Daemon, error) {
	collector := metrics.NewPrometheusCollector("")

	manager, err := New(config, Options{Metrics: collector}, logger)
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", config.Daemon.Address)
	if err != nil {
		manager.Close()
		return nil, errors.NewIOError("failed to listen for control connections", err).WithContext("address", config.Daemon.Address)
	}

	d := &Daemon{
		manager:      manager,
		metrics:      collector,
		logger:       logger,
		listener:     listener,
		grpcServer:   grpc.NewServer(),
		healthServer: health.NewServer(),
	}

	control.RegisterGRPCServerHandler(d.grpcServer, manager, logger)
	healthpb.RegisterHealthServer(d.grpcServer, d.healthServer)
	d.healthServer.SetServingStatus(control.ServiceName, healthpb.HealthCheckResponse_SERVING)

	if config.Daemon.MetricsAddress != "" {
		metricsListener, err := net.Listen("tcp", config.Daemon.MetricsAddress)
		if err != nil {
			listener.Close()
			manager.Close()
			return nil, errors.NewIOError("failed to listen for metrics", err).WithContext("address", config.Daemon.MetricsAddress)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		d.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		d.metricsAddr = metricsListener.Addr()
		go func() {
			if err := d.metricsServer.Serve(metricsListener); err != nil && err != http.ErrServerClosed {
				logger.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	d.poller = manager.NewPoller(0, d.reportSnapshot)

	return d, nil
}

// Address is the bound control address
func (d *Daemon) Address() string {
	return d.listener.Addr().String()
}

// MetricsAddress is the bound metrics address, empty when metrics are disabled
func (d *Daemon) MetricsAddress() string {
	if d.metricsAddr == nil {
		return ""
	}
	return d.metricsAddr.String()
}

func (d *Daemon) reportSnapshot(snapshot monitoring.Snapshot) {
	if snapshot.Err != nil {
		return
	}
	dead := 0
	for _, status := range snapshot.Services {
		if !status.Alive {
			dead++
		}
	}
	d.logger.Debugf("Registry snapshot, instances: %d, dead: %d", len(snapshot.Services), dead)
}

// Serve blocks until ctx is done, then shuts everything down. Running services are left alone.
func (d *Daemon) Serve(ctx context.Context) error {
	if err := d.poller.Start(ctx); err != nil {
		d.shutdown()
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- d.grpcServer.Serve(d.listener)
	}()

	d.logger.Infof("Launcher daemon serving, address: %s, metrics: %s", d.Address(), d.MetricsAddress())

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if err != nil {
			err = errors.NewInternalError("control server failed", err)
		}
	}

	d.shutdown()
	return err
}

func (d *Daemon) shutdown() {
	d.healthServer.Shutdown()
	d.poller.Stop()

	stopped := make(chan struct{})
	go func() {
		d.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		d.logger.Warnf("Control server did not stop in time, forcing")
		d.grpcServer.Stop()
	}

	if d.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = d.metricsServer.Shutdown(ctx)
	}

	d.manager.Close()
	d.logger.Infof("Launcher daemon stopped")
}

// Run serves the daemon until a termination signal arrives or runDuration elapses
func Run(runDuration time.Duration, config Config, logger logging.Logger) error {
	logger.Infof("Launcher daemon starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if runDuration > 0 {
		logger.Infof("Using RUN DURATION of %v", runDuration)
		ctx, cancel = context.WithTimeout(ctx, runDuration)
		defer cancel()
	}

	daemon, err := NewDaemon(config, logger)
	if err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig, os.Interrupt)
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}
	defer signal.Stop(sig)

	go func() {
		select {
		case receivedSignal := <-sig:
			logger.Infof("Launcher daemon received signal: %v", receivedSignal)
			cancel()
		case <-ctx.Done():
		}
	}()

	return daemon.Serve(ctx)
}
