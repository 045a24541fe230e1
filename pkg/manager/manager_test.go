package manager

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/core-tools/hsu-devlauncher/pkg/catalog"
	"github.com/core-tools/hsu-devlauncher/pkg/domain"
	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/core-tools/hsu-devlauncher/pkg/monitoring"
	"github.com/core-tools/hsu-devlauncher/pkg/ports"
	"github.com/core-tools/hsu-devlauncher/pkg/process/processtest"
	"github.com/core-tools/hsu-devlauncher/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockLogger for testing
type MockLogger struct{}

func (m *MockLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (m *MockLogger) Debugf(format string, args ...interface{})               {}
func (m *MockLogger) Infof(format string, args ...interface{})                {}
func (m *MockLogger) Warnf(format string, args ...interface{})                {}
func (m *MockLogger) Errorf(format string, args ...interface{})               {}

type fakeSignaller struct {
	alive map[int]bool
}

func (f *fakeSignaller) Terminate(pid int, group bool) error { delete(f.alive, pid); return nil }
func (f *fakeSignaller) Kill(pid int, group bool) error      { delete(f.alive, pid); return nil }
func (f *fakeSignaller) Alive(pid int) bool                  { return f.alive[pid] }

type fakeFinder struct {
	mutex  sync.Mutex
	owners map[int][]ports.Owner
	asked  []int
}

func (f *fakeFinder) Owners(ctx context.Context, port int) ([]ports.Owner, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.asked = append(f.asked, port)
	return f.owners[port], nil
}

type fakeProber struct{}

func (fakeProber) Probe(ctx context.Context, port int, path string) monitoring.ProbeResult {
	return monitoring.ProbeResult{Healthy: port%2 == 0, StatusCode: 200, Message: path, Duration: time.Millisecond}
}

func testConfig(t *testing.T) Config {
	isolateConfig(t)

	config, err := LoadConfig("")
	require.NoError(t, err)
	config.RootDirectory = t.TempDir()
	config.State.Directory = t.TempDir()
	config.Launch.StartupWait = 500 * time.Millisecond
	config.Launch.ReconcileGrace = time.Second
	config.Launch.StopGrace = time.Second
	config.Monitor.ProbeTimeout = time.Second
	return *config
}

func testCatalog(t *testing.T, definitions ...catalog.ServiceDefinition) *catalog.Catalog {
	cat, err := catalog.New(definitions...)
	require.NoError(t, err)
	return cat
}

func backend(name string, port int, argv ...string) catalog.ServiceDefinition {
	return catalog.ServiceDefinition{
		Name:            name,
		Kind:            catalog.KindBackend,
		Language:        catalog.LanguageGeneric,
		Path:            name,
		StartCommand:    catalog.Command(argv),
		DefaultPort:     port,
		HealthCheckPath: "/health",
	}
}

func newFakeManager(t *testing.T, signaller *fakeSignaller, finder *fakeFinder) *Manager {
	m, err := New(testConfig(t), Options{
		Catalog: testCatalog(t,
			backend("docA", 9100, "server"),
			backend("docB", 9200, "server"),
		),
		Signaller:   signaller,
		OwnerFinder: finder,
		Prober:      fakeProber{},
	}, &MockLogger{})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func seed(t *testing.T, m *Manager, records ...registry.ProcessRecord) {
	_, err := m.registry.Update(context.Background(), func(entries registry.Entries) error {
		for _, record := range records {
			entries.Put(record)
		}
		return nil
	})
	require.NoError(t, err)
}

func running(service string, port, pid int) registry.ProcessRecord {
	return registry.ProcessRecord{PID: pid, ServiceName: service, Port: port, Kind: catalog.KindBackend, HealthCheckPath: "/health"}
}

func TestNew_InvalidConfig(t *testing.T) {
	config := testConfig(t)
	config.Log.Level = "loud"

	_, err := New(config, Options{}, &MockLogger{})
	assert.True(t, errors.IsValidationError(err))
}

func TestNew_WritesDefaultCatalog(t *testing.T) {
	config := testConfig(t)

	m, err := New(config, Options{Signaller: &fakeSignaller{}, OwnerFinder: &fakeFinder{}}, &MockLogger{})
	require.NoError(t, err)
	defer m.Close()

	assert.FileExists(t, filepath.Join(config.State.Directory, "service_config.yaml"))
	assert.Equal(t, catalog.Default().Len(), m.Catalog().Len())
}

func TestManager_ListServices(t *testing.T) {
	m := newFakeManager(t, &fakeSignaller{}, &fakeFinder{})

	services, err := m.ListServices(context.Background())
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "docA", services[0].Name)
	assert.Equal(t, "docB", services[1].Name)
}

func TestManager_StartReportsFailuresPerPort(t *testing.T) {
	m := newFakeManager(t, &fakeSignaller{}, &fakeFinder{})

	results, err := m.Start(context.Background(), domain.StartRequest{Service: "nope", Kind: catalog.KindBackend, Ports: []int{9100, 9101}})

	require.Error(t, err)
	assert.True(t, errors.IsUnknownServiceError(err))
	require.Len(t, results, 2)
	for _, result := range results {
		assert.Nil(t, result.Record)
		require.NotNil(t, result.Failure)
		assert.Equal(t, errors.ErrorTypeUnknownService, result.Failure.Type)
	}
}

func TestManager_ListRunningAndPrune(t *testing.T) {
	signaller := &fakeSignaller{alive: map[int]bool{101: true}}
	m := newFakeManager(t, signaller, &fakeFinder{})
	seed(t, m, running("docA", 9100, 101), running("docA", 9101, 102))

	instances, err := m.ListRunning(context.Background())
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.True(t, instances[0].Alive)
	assert.False(t, instances[1].Alive)

	pruned, err := m.Prune(context.Background())
	require.NoError(t, err)
	require.Len(t, pruned, 1)
	assert.Equal(t, 102, pruned[0].PID)
}

func TestManager_Probe(t *testing.T) {
	m := newFakeManager(t, &fakeSignaller{}, &fakeFinder{})
	seed(t, m, running("docA", 9101, 101), running("docA", 9100, 102), running("docB", 9200, 103))

	reports, err := m.Probe(context.Background(), domain.ProbeRequest{Service: "docA"})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, 9100, reports[0].Record.Port)
	assert.True(t, reports[0].Healthy)
	assert.False(t, reports[1].Healthy)
	assert.Equal(t, "/health", reports[0].Message)

	reports, err = m.Probe(context.Background(), domain.ProbeRequest{Service: "docA", Port: 9101})
	require.NoError(t, err)
	assert.Len(t, reports, 1)

	_, err = m.Probe(context.Background(), domain.ProbeRequest{Service: "docA", Port: 9999})
	assert.True(t, errors.IsNotFoundError(err))
}

func TestManager_CleanupDefaultsToCatalogPorts(t *testing.T) {
	signaller := &fakeSignaller{alive: map[int]bool{555: true}}
	finder := &fakeFinder{owners: map[int][]ports.Owner{9200: {{PID: 555, Name: "python"}}}}
	m := newFakeManager(t, signaller, finder)
	seed(t, m, running("docB", 9200, 555))

	result, err := m.Cleanup(context.Background(), domain.CleanupRequest{})
	require.NoError(t, err)

	assert.Equal(t, []int{9100, 9200}, result.Ports)
	assert.Equal(t, []int{9100, 9200}, finder.asked)
	assert.Equal(t, 1, result.Freed)
	require.Len(t, result.Pruned, 1)
	assert.Equal(t, 555, result.Pruned[0].PID)

	result, err = m.Cleanup(context.Background(), domain.CleanupRequest{Ports: []int{7000}})
	require.NoError(t, err)
	assert.Equal(t, []int{7000}, result.Ports)
	assert.Zero(t, result.Freed)
}

func TestManager_StopAllEmpty(t *testing.T) {
	m := newFakeManager(t, &fakeSignaller{}, &fakeFinder{})

	result, err := m.StopAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Stopped)

	_, err = m.Stop(context.Background(), domain.StopRequest{Service: "docA", Kind: catalog.KindBackend})
	assert.True(t, errors.IsNotFoundError(err))
}

func TestMain(m *testing.M) {
	processtest.MaybeRun()
	os.Exit(m.Run())
}
