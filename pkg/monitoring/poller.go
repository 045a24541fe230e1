package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/core-tools/hsu-devlauncher/pkg/logging"
	"github.com/core-tools/hsu-devlauncher/pkg/metrics"

	"github.com/patrickmn/go-cache"
)

const (
	DefaultPollInterval  = 10 * time.Second
	DefaultProbeCacheTTL = 5 * time.Second
	DefaultWatchDebounce = 200 * time.Millisecond
)

type PollerConfig struct {
	Interval time.Duration

	// Probe the health endpoint of every live instance on each poll
	ProbeHealth   bool
	ProbeCacheTTL time.Duration

	// Registry file to watch; a change triggers an early poll
	WatchFile     string
	WatchDebounce time.Duration
}

// Snapshot is the result of one poll
type Snapshot struct {
	Taken    time.Time
	Services []ServiceStatus
	Err      error
}

// SnapshotHandler receives every snapshot the poller takes
type SnapshotHandler func(Snapshot)

// Poller refreshes an external view of the registry in the background.
// It only reads: stale entries are reported, never pruned.
type Poller struct {
	monitor *Monitor
	config  PollerConfig
	handler SnapshotHandler
	metrics metrics.Collector
	logger  logging.Logger

	probes *cache.Cache

	mutex  sync.Mutex
	states map[string]*HealthCheckState
	latest Snapshot

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
}

func NewPoller(monitor *Monitor, config PollerConfig, handler SnapshotHandler, collector metrics.Collector, logger logging.Logger) *Poller {
	if config.Interval == 0 {
		config.Interval = DefaultPollInterval
	}
	if config.ProbeCacheTTL == 0 {
		config.ProbeCacheTTL = DefaultProbeCacheTTL
	}
	if config.WatchDebounce == 0 {
		config.WatchDebounce = DefaultWatchDebounce
	}
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}

	return &Poller{
		monitor:  monitor,
		config:   config,
		handler:  handler,
		metrics:  collector,
		logger:   logger,
		probes:   cache.New(config.ProbeCacheTTL, 2*config.ProbeCacheTTL),
		states:   make(map[string]*HealthCheckState),
		stopChan: make(chan struct{}),
	}
}

// Start runs the polling loop until Stop is called or ctx is done
func (p *Poller) Start(ctx context.Context) error {
	if err := ValidatePollerConfig(p.config); err != nil {
		p.logger.Errorf("Poller configuration validation failed, error: %v", err)
		return err
	}

	var changes <-chan struct{}
	var watcher *fileWatcher
	if p.config.WatchFile != "" {
		w, err := newFileWatcher(p.config.WatchFile, p.config.WatchDebounce)
		if err == nil {
			changes, err = w.start()
		}
		if err != nil {
			// Polling still works without change notifications
			p.logger.Warnf("Registry watch unavailable, file: %s, error: %v", p.config.WatchFile, err)
		} else {
			watcher = w
		}
	}

	p.logger.Infof("Starting poller, interval: %v, probe health: %v, watch: '%s'",
		p.config.Interval, p.config.ProbeHealth, p.config.WatchFile)

	p.started = true
	p.wg.Add(1)
	go p.loop(ctx, changes, watcher)
	return nil
}

// Stop waits for the loop to exit
func (p *Poller) Stop() {
	if !p.started {
		return
	}
	p.logger.Infof("Stopping poller")
	close(p.stopChan)
	p.wg.Wait()
	p.started = false
	p.logger.Infof("Poller stopped")
}

// Latest returns the most recent snapshot
func (p *Poller) Latest() Snapshot {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.latest
}

func (p *Poller) loop(ctx context.Context, changes <-chan struct{}, watcher *fileWatcher) {
	defer p.wg.Done()
	if watcher != nil {
		defer watcher.stop()
	}

	var watchErrors <-chan error
	if watcher != nil {
		watchErrors = watcher.errors
	}

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.Refresh(ctx)

	for {
		select {
		case <-ticker.C:
			p.Refresh(ctx)
		case <-changes:
			p.logger.Debugf("Registry changed, refreshing")
			p.Refresh(ctx)
		case err := <-watchErrors:
			p.logger.Warnf("Registry watch error, error: %v", err)
		case <-p.stopChan:
			p.logger.Debugf("Poller loop stopping")
			return
		case <-ctx.Done():
			p.logger.Debugf("Poller loop stopping, context done")
			return
		}
	}
}

// Refresh polls once, publishes the snapshot and returns it
func (p *Poller) Refresh(ctx context.Context) Snapshot {
	statuses, err := p.monitor.Status(ctx)
	snapshot := Snapshot{Taken: time.Now(), Err: err}

	if err != nil {
		p.logger.Warnf("Status poll failed, error: %v", err)
	} else {
		if p.config.ProbeHealth {
			p.probeAll(ctx, statuses)
		}
		snapshot.Services = statuses
		p.publishMetrics(statuses)
	}

	p.mutex.Lock()
	p.latest = snapshot
	p.mutex.Unlock()

	if p.handler != nil {
		p.handler(snapshot)
	}
	return snapshot
}

func (p *Poller) probeAll(ctx context.Context, statuses []ServiceStatus) {
	// A probe may take a full timeout, the lock only covers the state updates
	results := make([]ProbeResult, len(statuses))
	for i := range statuses {
		if statuses[i].Alive {
			results[i] = p.cachedProbe(ctx, statuses[i])
		}
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	present := make(map[string]bool, len(statuses))
	for i := range statuses {
		record := statuses[i].Record
		key := record.Key()
		present[key] = true

		state, ok := p.states[key]
		if !ok {
			state = &HealthCheckState{Status: HealthCheckStatusUnknown}
			p.states[key] = state
		}

		if !statuses[i].Alive {
			updateState(state, key, false, fmt.Sprintf("Process not running: PID %d", record.PID), p.logger)
		} else {
			updateState(state, key, results[i].Healthy, results[i].Message, p.logger)
		}

		stateCopy := *state
		statuses[i].Health = &stateCopy
	}

	for key := range p.states {
		if !present[key] {
			delete(p.states, key)
		}
	}
}

func (p *Poller) cachedProbe(ctx context.Context, status ServiceStatus) ProbeResult {
	// The PID is part of the key so a restarted instance is probed afresh
	cacheKey := fmt.Sprintf("%s/%d", status.Record.Key(), status.Record.PID)
	if cached, found := p.probes.Get(cacheKey); found {
		return cached.(ProbeResult)
	}

	result := p.monitor.ProbeDetailed(ctx, status.Record)
	p.probes.SetDefault(cacheKey, result)
	return result
}

func (p *Poller) publishMetrics(statuses []ServiceStatus) {
	live := make(map[string]int)
	dead := make(map[string]int)
	for _, status := range statuses {
		if status.Alive {
			live[status.Record.ServiceName]++
		} else {
			dead[status.Record.ServiceName]++
		}
	}
	p.metrics.InstancesObserved(live, dead)
}

// ValidatePollerConfig validates poller configuration
func ValidatePollerConfig(config PollerConfig) error {
	if config.Interval <= 0 {
		return errors.NewValidationError("poll interval must be positive", nil)
	}
	if config.ProbeCacheTTL < 0 {
		return errors.NewValidationError("probe cache TTL cannot be negative", nil)
	}
	if config.ProbeHealth && config.ProbeCacheTTL >= config.Interval {
		return errors.NewValidationError("probe cache TTL must be less than poll interval", nil)
	}
	if config.WatchDebounce < 0 {
		return errors.NewValidationError("watch debounce cannot be negative", nil)
	}
	return nil
}
