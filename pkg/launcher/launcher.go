package launcher

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/core-tools/hsu-devlauncher/pkg/catalog"
	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/core-tools/hsu-devlauncher/pkg/logging"
	"github.com/core-tools/hsu-devlauncher/pkg/metrics"
	"github.com/core-tools/hsu-devlauncher/pkg/process"
	"github.com/core-tools/hsu-devlauncher/pkg/registry"

	"github.com/google/uuid"
)

const (
	DefaultStartupWait    = 2 * time.Second
	DefaultPrepareTimeout = 5 * time.Minute
	DefaultStopGrace      = 2 * time.Second
)

type Config struct {
	// Base for relative service paths; also exported to python services
	RootDirectory string

	// How long a fresh child must survive to count as started
	StartupWait time.Duration

	PrepareTimeout time.Duration

	// Grace period used when a just-spawned child has to be withdrawn
	StopGrace time.Duration
}

// PortReconciler frees a port before a launch
type PortReconciler interface {
	Reconcile(ctx context.Context, port int) (bool, error)
}

// LogPaths places the captured output of each instance
type LogPaths interface {
	InstanceLogFilePath(service string, port int) string
}

type StartRequest struct {
	Service string
	// Expected kind, empty accepts any
	Kind catalog.Kind
	// Zero selects the catalog default port
	Port int
}

// Launcher starts catalog services and records them in the registry
type Launcher struct {
	catalog    *catalog.Catalog
	registry   *registry.Registry
	reconciler PortReconciler
	signaller  process.Signaller
	logs       LogPaths
	config     Config
	metrics    metrics.Collector
	logger     logging.Logger

	// Keys with a start in flight in this process
	pendingMutex sync.Mutex
	pending      map[string]bool
}

type Dependencies struct {
	Catalog    *catalog.Catalog
	Registry   *registry.Registry
	Reconciler PortReconciler
	Signaller  process.Signaller
	Logs       LogPaths
	Metrics    metrics.Collector
}

func New(deps Dependencies, config Config, logger logging.Logger) *Launcher {
	if config.StartupWait <= 0 {
		config.StartupWait = DefaultStartupWait
	}
	if config.PrepareTimeout <= 0 {
		config.PrepareTimeout = DefaultPrepareTimeout
	}
	if config.StopGrace <= 0 {
		config.StopGrace = DefaultStopGrace
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopCollector()
	}
	return &Launcher{
		catalog:    deps.Catalog,
		registry:   deps.Registry,
		reconciler: deps.Reconciler,
		signaller:  deps.Signaller,
		logs:       deps.Logs,
		config:     config,
		metrics:    deps.Metrics,
		logger:     logger,
		pending:    make(map[string]bool),
	}
}

// Start launches one instance of a service and returns its registry record
func (l *Launcher) Start(ctx context.Context, req StartRequest) (registry.ProcessRecord, error) {
	started := time.Now()

	record, err := l.start(ctx, req)

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = string(errors.TypeOf(err))
		if outcome == "" {
			outcome = metrics.OutcomeFailure
		}
	}
	l.metrics.LaunchCompleted(req.Service, outcome, time.Since(started))

	return record, err
}

func (l *Launcher) start(ctx context.Context, req StartRequest) (registry.ProcessRecord, error) {
	definition, ok := l.catalog.Lookup(req.Service)
	if !ok {
		l.logger.Errorf("Unknown service, service: %s", req.Service)
		return registry.ProcessRecord{}, errors.NewUnknownServiceError(req.Service)
	}

	if req.Kind != "" && definition.Kind != req.Kind {
		l.logger.Errorf("Service kind mismatch, service: %s, expected: %s, actual: %s", req.Service, req.Kind, definition.Kind)
		return registry.ProcessRecord{}, errors.NewKindMismatchError(req.Service, string(req.Kind), string(definition.Kind))
	}

	port := req.Port
	if port == 0 {
		port = definition.DefaultPort
	}
	if err := process.ValidatePort(port); err != nil {
		return registry.ProcessRecord{}, err
	}

	workDir := definition.ResolvePath(l.config.RootDirectory)
	if info, err := os.Stat(workDir); err != nil || !info.IsDir() {
		l.logger.Errorf("Service path does not exist, service: %s, path: %s", req.Service, workDir)
		return registry.ProcessRecord{}, errors.NewPathNotFoundError(workDir, err)
	}

	key := registry.Key(definition.Name, port)
	launchID := uuid.NewString()
	l.logger.Infof("Starting service, key: %s, launch: %s, path: %s", key, launchID, workDir)

	if !l.reserve(key) {
		l.logger.Warnf("Service start already in progress, key: %s", key)
		return registry.ProcessRecord{}, errors.NewAlreadyRunningError(definition.Name, port, 0).WithContext("in_progress", true)
	}
	defer l.release(key)

	// Our own live instance must not be mistaken for a foreign port owner
	if err := l.checkNotRunning(ctx, key); err != nil {
		return registry.ProcessRecord{}, err
	}

	if freed, err := l.reconciler.Reconcile(ctx, port); err != nil {
		l.logger.Warnf("Port reconciliation incomplete, launching anyway, port: %d, error: %v", port, err)
	} else if freed {
		l.logger.Infof("Port reclaimed from previous owner, port: %d", port)
	}

	if err := l.discardStale(ctx, key); err != nil {
		return registry.ProcessRecord{}, err
	}

	envContext := catalog.EnvironmentContext{
		RootDirectory:    l.config.RootDirectory,
		WorkingDirectory: workDir,
		Port:             port,
	}
	environment := definition.Environment(envContext)

	l.prepare(ctx, definition, workDir, environment)

	logFile := ""
	if l.logs != nil {
		logFile = l.logs.InstanceLogFilePath(definition.Name, port)
	}

	child, err := process.Start(process.ExecutionConfig{
		Argv:             definition.StartCommand.Expand(port),
		Environment:      environment,
		WorkingDirectory: workDir,
		OutputFile:       logFile,
	}, key, l.logger)
	if err != nil {
		l.logger.Errorf("Failed to spawn service, key: %s, error: %v", key, err)
		return registry.ProcessRecord{}, errors.NewLaunchFailedError(definition.Name, err.Error(), err).WithContext("port", port)
	}

	if child.ExitedWithin(ctx, l.config.StartupWait) {
		diagnostic := child.OutputTail()
		l.logger.Errorf("Service exited during startup, key: %s, PID: %d, exit: %v, output: %s", key, child.Pid, child.ExitError(), diagnostic)
		return registry.ProcessRecord{}, errors.NewLaunchFailedError(definition.Name, diagnostic, child.ExitError()).
			WithContext("port", port).WithContext("log_file", logFile)
	}
	if ctx.Err() != nil {
		l.withdraw(child.Pid, key)
		return registry.ProcessRecord{}, errors.NewCancelledError("start cancelled during startup confirmation", ctx.Err())
	}

	record := registry.ProcessRecord{
		PID:                   child.Pid,
		ServiceName:           definition.Name,
		Port:                  port,
		Kind:                  definition.Kind,
		Language:              definition.Language,
		HealthCheckPath:       definition.HealthCheckPath,
		StartedAtEpochSeconds: time.Now().Unix(),
		LaunchID:              launchID,
		LogFile:               logFile,
	}

	_, err = l.registry.Update(ctx, func(entries registry.Entries) error {
		if existing, ok := entries[key]; ok && existing.PID != child.Pid && l.signaller.Alive(existing.PID) {
			return errors.NewAlreadyRunningError(definition.Name, port, existing.PID)
		}
		entries.Put(record)
		return nil
	})
	if err != nil {
		l.logger.Errorf("Failed to record service, withdrawing it, key: %s, error: %v", key, err)
		l.withdraw(child.Pid, key)
		return registry.ProcessRecord{}, err
	}

	l.logger.Infof("Service started, key: %s, PID: %d, launch: %s, url: http://localhost:%d", key, child.Pid, launchID, port)
	return record, nil
}

func (l *Launcher) reserve(key string) bool {
	l.pendingMutex.Lock()
	defer l.pendingMutex.Unlock()
	if l.pending[key] {
		return false
	}
	l.pending[key] = true
	return true
}

func (l *Launcher) release(key string) {
	l.pendingMutex.Lock()
	defer l.pendingMutex.Unlock()
	delete(l.pending, key)
}

func (l *Launcher) checkNotRunning(ctx context.Context, key string) error {
	entries, err := l.registry.Snapshot(ctx)
	if err != nil {
		return err
	}
	if existing, ok := entries[key]; ok && l.signaller.Alive(existing.PID) {
		l.logger.Warnf("Service already running, key: %s, PID: %d", key, existing.PID)
		return errors.NewAlreadyRunningError(existing.ServiceName, existing.Port, existing.PID)
	}
	return nil
}

// discardStale drops a record whose process is gone
func (l *Launcher) discardStale(ctx context.Context, key string) error {
	entries, err := l.registry.Snapshot(ctx)
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}

	_, err = l.registry.Update(ctx, func(entries registry.Entries) error {
		existing, ok := entries[key]
		if !ok {
			return nil
		}
		if l.signaller.Alive(existing.PID) {
			return errors.NewAlreadyRunningError(existing.ServiceName, existing.Port, existing.PID)
		}
		l.logger.Infof("Discarding stale registry entry, key: %s, PID: %d", key, existing.PID)
		delete(entries, key)
		return nil
	})
	return err
}

// withdraw stops a child that will not be recorded
func (l *Launcher) withdraw(pid int, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), l.config.StopGrace+time.Second)
	defer cancel()

	outcome, err := process.GracefulStop(ctx, l.signaller, pid, process.GracefulStopOptions{
		Group:       true,
		GracePeriod: l.config.StopGrace,
	})
	if err != nil {
		l.logger.Errorf("Failed to withdraw child, key: %s, PID: %d, error: %v", key, pid, err)
		return
	}
	l.logger.Infof("Child withdrawn, key: %s, PID: %d, outcome: %s", key, pid, outcome)
}
