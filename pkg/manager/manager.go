package manager

import (
	"context"
	"sort"
	"time"

	"github.com/core-tools/hsu-devlauncher/pkg/catalog"
	"github.com/core-tools/hsu-devlauncher/pkg/domain"
	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/core-tools/hsu-devlauncher/pkg/launcher"
	"github.com/core-tools/hsu-devlauncher/pkg/logging"
	"github.com/core-tools/hsu-devlauncher/pkg/metrics"
	"github.com/core-tools/hsu-devlauncher/pkg/monitoring"
	"github.com/core-tools/hsu-devlauncher/pkg/ports"
	"github.com/core-tools/hsu-devlauncher/pkg/process"
	"github.com/core-tools/hsu-devlauncher/pkg/processfile"
	"github.com/core-tools/hsu-devlauncher/pkg/registry"
	"github.com/core-tools/hsu-devlauncher/pkg/terminator"
)

// Options replaces the OS-facing collaborators, nil fields get the real ones
type Options struct {
	Catalog     *catalog.Catalog
	Metrics     metrics.Collector
	Signaller   process.Signaller
	OwnerFinder ports.OwnerFinder
	Prober      monitoring.Prober
}

// Manager wires the launcher components together and serves domain.Contract in-process
type Manager struct {
	config     Config
	layout     *processfile.Layout
	catalog    *catalog.Catalog
	registry   *registry.Registry
	reconciler *ports.Reconciler
	launcher   *launcher.Launcher
	terminator *terminator.Terminator
	monitor    *monitoring.Monitor
	metrics    metrics.Collector
	logger     logging.Logger
}

var _ domain.Contract = (*Manager)(nil)

func New(config Config, options Options, logger logging.Logger) (*Manager, error) {
	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}

	moduleLogger := func(module string) logging.Logger {
		return logging.NewLogger(logging.ModulePrefix(module), logging.LogFuncs{
			Debugf: logger.Debugf,
			Infof:  logger.Infof,
			Warnf:  logger.Warnf,
			Errorf: logger.Errorf,
		})
	}

	layout := processfile.NewLayout(config.layoutConfig(), moduleLogger("layout"))
	if err := layout.Prepare(); err != nil {
		return nil, err
	}

	cat := options.Catalog
	if cat == nil {
		var err error
		cat, err = catalog.Load(layout.CatalogFilePath(), moduleLogger("catalog"))
		if err != nil {
			return nil, err
		}
	}

	if options.Metrics == nil {
		options.Metrics = metrics.NewNoopCollector()
	}
	if options.Signaller == nil {
		options.Signaller = process.NewOSSignaller()
	}
	if options.OwnerFinder == nil {
		options.OwnerFinder = ports.NewOwnerFinder()
	}
	if options.Prober == nil {
		options.Prober = monitoring.NewHTTPProber(config.Monitor.ProbeTimeout)
	}

	reg := registry.New(registry.NewFileStore(layout.RegistryFilePath()), layout.RegistryLockFilePath(), moduleLogger("registry"))

	reconciler := ports.NewReconciler(options.OwnerFinder, options.Signaller, ports.ReconcilerConfig{
		GracePeriod: config.Launch.ReconcileGrace,
	}, options.Metrics, moduleLogger("ports"))

	l := launcher.New(launcher.Dependencies{
		Catalog:    cat,
		Registry:   reg,
		Reconciler: reconciler,
		Signaller:  options.Signaller,
		Logs:       layout,
		Metrics:    options.Metrics,
	}, launcher.Config{
		RootDirectory:  config.RootDirectory,
		StartupWait:    config.Launch.StartupWait,
		PrepareTimeout: config.Launch.PrepareTimeout,
		StopGrace:      config.Launch.StopGrace,
	}, moduleLogger("launcher"))

	term := terminator.New(reg, options.Signaller, terminator.Config{
		GracePeriod: config.Launch.StopGrace,
	}, options.Metrics, moduleLogger("terminator"))

	monitor := monitoring.NewMonitor(reg, options.Signaller, options.Prober, options.Metrics, moduleLogger("monitor"))

	logger.Infof("Manager ready, root: %s, state: %s, services: %d", config.RootDirectory, layout.StateDirectory(), cat.Len())

	return &Manager{
		config:     config,
		layout:     layout,
		catalog:    cat,
		registry:   reg,
		reconciler: reconciler,
		launcher:   l,
		terminator: term,
		monitor:    monitor,
		metrics:    options.Metrics,
		logger:     logger,
	}, nil
}

func (m *Manager) Catalog() *catalog.Catalog {
	return m.catalog
}

func (m *Manager) Layout() *processfile.Layout {
	return m.layout
}

// NewPoller creates a background poller over this manager's registry.
// A zero interval keeps the configured one.
func (m *Manager) NewPoller(interval time.Duration, handler monitoring.SnapshotHandler) *monitoring.Poller {
	config := m.config.pollerConfig(m.layout.RegistryFilePath())
	if interval > 0 {
		config.Interval = interval
		if config.ProbeCacheTTL >= interval {
			config.ProbeCacheTTL = interval / 2
		}
	}
	return monitoring.NewPoller(m.monitor, config, handler, m.metrics, m.logger)
}

// Close releases the registry; running services are left alone
func (m *Manager) Close() {
	m.registry.Close()
}

// Start launches one instance per port. Failures are reported per port and
// aggregated into the returned error.
func (m *Manager) Start(ctx context.Context, request domain.StartRequest) ([]domain.StartResult, error) {
	requested := request.Ports
	if len(requested) == 0 {
		requested = []int{0}
	}

	results := make([]domain.StartResult, 0, len(requested))
	for _, port := range requested {
		record, err := m.launcher.Start(ctx, launcher.StartRequest{
			Service: request.Service,
			Kind:    request.Kind,
			Port:    port,
		})
		result := domain.StartResult{Port: port, Failure: domain.FailureOf(err)}
		if err == nil {
			result.Port = record.Port
			result.Record = &record
		}
		results = append(results, result)
	}

	return results, domain.StartError(results)
}

func (m *Manager) Stop(ctx context.Context, request domain.StopRequest) (domain.StopResult, error) {
	result, err := m.terminator.Stop(ctx, request.Service, request.Kind, request.Ports...)
	return stopResult(result), err
}

func (m *Manager) StopAll(ctx context.Context) (domain.StopResult, error) {
	result, err := m.terminator.StopAll(ctx)
	return stopResult(result), err
}

func stopResult(result terminator.StopResult) domain.StopResult {
	converted := domain.StopResult{Stopped: result.Stopped}
	for _, failed := range result.Failed {
		converted.Failed = append(converted.Failed, domain.StopFailure{
			Record:  failed.Record,
			Failure: domain.FailureOf(failed.Err),
		})
	}
	return converted
}

func (m *Manager) ListServices(ctx context.Context) ([]catalog.ServiceDefinition, error) {
	return m.catalog.Services(), nil
}

func (m *Manager) ListRunning(ctx context.Context) ([]domain.InstanceStatus, error) {
	statuses, err := m.monitor.Status(ctx)
	if err != nil {
		return nil, err
	}
	instances := make([]domain.InstanceStatus, 0, len(statuses))
	for _, status := range statuses {
		instances = append(instances, domain.InstanceStatus{Record: status.Record, Alive: status.Alive})
	}
	return instances, nil
}

// Probe checks the health endpoint of the selected instances
func (m *Manager) Probe(ctx context.Context, request domain.ProbeRequest) ([]domain.ProbeReport, error) {
	entries, err := m.registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var targets []registry.ProcessRecord
	for _, record := range entries.Records() {
		if record.ServiceName != request.Service {
			continue
		}
		if request.Port != 0 && record.Port != request.Port {
			continue
		}
		targets = append(targets, record)
	}
	if len(targets) == 0 {
		return nil, errors.NewNotFoundError("no running instances matched", nil).
			WithContext("service", request.Service).WithContext("port", request.Port)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Port < targets[j].Port })

	reports := make([]domain.ProbeReport, 0, len(targets))
	for _, record := range targets {
		result := m.monitor.ProbeDetailed(ctx, record)
		reports = append(reports, domain.ProbeReport{
			Record:         record,
			Healthy:        result.Healthy,
			StatusCode:     result.StatusCode,
			Message:        result.Message,
			DurationMillis: result.Duration.Milliseconds(),
		})
	}
	return reports, nil
}

func (m *Manager) Prune(ctx context.Context) ([]registry.ProcessRecord, error) {
	return m.monitor.Prune(ctx)
}

// Cleanup frees the given ports, every catalog default port when none are given,
// and prunes the entries whose process is gone afterwards
func (m *Manager) Cleanup(ctx context.Context, request domain.CleanupRequest) (domain.CleanupResult, error) {
	started := time.Now()
	targets := request.Ports
	if len(targets) == 0 {
		targets = m.catalog.DefaultPorts()
	}

	result := domain.CleanupResult{Ports: targets}

	freed, reconcileErr := m.reconciler.ReconcileAll(ctx, targets)
	result.Freed = freed
	if reconcileErr != nil {
		m.logger.Warnf("Cleanup could not free every port, error: %v", reconcileErr)
	}

	pruned, err := m.monitor.Prune(ctx)
	if err != nil {
		return result, err
	}
	result.Pruned = pruned

	m.logger.Infof("Cleanup done, ports: %d, freed: %d, pruned: %d, took: %v", len(targets), freed, len(pruned), time.Since(started))
	return result, reconcileErr
}
