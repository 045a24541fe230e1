package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/core-tools/hsu-devlauncher/pkg/catalog"
	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// MockLogger for testing
type MockLogger struct{}

func (m *MockLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (m *MockLogger) Debugf(format string, args ...interface{})               {}
func (m *MockLogger) Infof(format string, args ...interface{})                {}
func (m *MockLogger) Warnf(format string, args ...interface{})                {}
func (m *MockLogger) Errorf(format string, args ...interface{})               {}

func record(service string, port, pid int) ProcessRecord {
	return ProcessRecord{
		PID:                   pid,
		ServiceName:           service,
		Port:                  port,
		Kind:                  catalog.KindBackend,
		Language:              catalog.LanguagePython,
		HealthCheckPath:       "/health",
		StartedAtEpochSeconds: 1700000000,
	}
}

func newTestRegistry(t *testing.T) (*Registry, string) {
	dir := t.TempDir()
	path := filepath.Join(dir, "running_services.json")
	r := New(NewFileStore(path), path+".lock", &MockLogger{})
	t.Cleanup(r.Close)
	return r, path
}

// ===== KEYS =====

func TestKey(t *testing.T) {
	assert.Equal(t, "docA_9100", Key("docA", 9100))
	assert.Equal(t, "python_textract_8001", record("python_textract", 8001, 1).Key())
}

func TestParseKey(t *testing.T) {
	service, port, err := ParseKey("csharp_analyze_document_5002")
	require.NoError(t, err)
	assert.Equal(t, "csharp_analyze_document", service)
	assert.Equal(t, 5002, port)

	for _, bad := range []string{"", "docA", "_9100", "docA_", "docA_x", "docA_-1"} {
		_, _, err := ParseKey(bad)
		assert.Error(t, err, "key %q", bad)
	}
}

func TestKey_RoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		service := rapid.StringMatching(`[a-zA-Z][a-zA-Z0-9_]{0,20}`).Draw(t, "service")
		port := rapid.IntRange(1, 65535).Draw(t, "port")

		gotService, gotPort, err := ParseKey(Key(service, port))
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if gotService != service || gotPort != port {
			t.Fatalf("round trip mismatch: %s/%d != %s/%d", gotService, gotPort, service, port)
		}
	})
}

// ===== ENTRIES =====

func TestEntries_MatchAndOrder(t *testing.T) {
	entries := Entries{}
	entries.Put(record("docA", 9102, 3))
	entries.Put(record("docA", 9100, 1))
	entries.Put(record("docB", 9101, 2))
	frontend := record("docA", 9200, 4)
	frontend.Kind = catalog.KindFrontend
	entries.Put(frontend)

	matched := entries.Match("docA", catalog.KindBackend)
	require.Len(t, matched, 2)
	assert.Equal(t, 9100, matched[0].Port)
	assert.Equal(t, 9102, matched[1].Port)

	assert.Equal(t, []string{"docA_9100", "docA_9102", "docA_9200", "docB_9101"}, entries.Keys())
	assert.Empty(t, entries.Match("docC", catalog.KindBackend))
}

func TestEntries_OrderedByServiceThenNumericPort(t *testing.T) {
	entries := Entries{}
	entries.Put(record("docA", 10000, 1))
	entries.Put(record("docA", 9100, 2))
	entries.Put(record("doc", 9300, 3))
	entries.Put(record("docA_v2", 8000, 4))
	entries["broken"] = record("docZ", 1, 5)

	assert.Equal(t, []string{"doc_9300", "docA_9100", "docA_10000", "docA_v2_8000", "broken"}, entries.Keys())

	records := entries.Records()
	require.Len(t, records, 5)
	assert.Equal(t, 9100, records[1].Port)
	assert.Equal(t, 10000, records[2].Port)
}

func TestEntries_CloneIsIndependent(t *testing.T) {
	entries := Entries{}
	entries.Put(record("docA", 9100, 1))

	clone := entries.Clone()
	delete(clone, "docA_9100")

	assert.Len(t, entries, 1)
}

// ===== FILE STORE =====

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "none.json"))

	entries, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStore_SaveWritesDocumentFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "running_services.json")
	store := NewFileStore(path)

	entries := Entries{}
	entries.Put(record("docA", 9100, 4242))
	require.NoError(t, store.Save(entries))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"docA_9100": {
			"pid": 4242,
			"serviceName": "docA",
			"port": 9100,
			"kind": "backend",
			"language": "python",
			"healthCheckPath": "/health",
			"startedAtEpochSeconds": 1700000000
		}
	}`, string(data))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, entries, loaded)

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileStore_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "running_services.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewFileStore(path).Load()
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

// ===== REGISTRY =====

func TestRegistry_UpdateAndSnapshot(t *testing.T) {
	r, path := newTestRegistry(t)
	ctx := context.Background()

	saved, err := r.Update(ctx, func(entries Entries) error {
		entries.Put(record("docA", 9100, 11))
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, saved, 1)
	assert.FileExists(t, path)

	snapshot, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 11, snapshot["docA_9100"].PID)
}

func TestRegistry_FailedMutationLeavesStoreUntouched(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Update(ctx, func(entries Entries) error {
		entries.Put(record("docA", 9100, 11))
		return nil
	})
	require.NoError(t, err)

	_, err = r.Update(ctx, func(entries Entries) error {
		delete(entries, "docA_9100")
		return errors.NewAlreadyRunningError("docA", 9100, 11)
	})
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyRunningError(err))

	snapshot, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Contains(t, snapshot, "docA_9100")
}

func TestRegistry_ConcurrentUpdatesAreNotLost(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Update(ctx, func(entries Entries) error {
				entries.Put(record("svc", 9000+i, 100+i))
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snapshot, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshot, writers)
}

func TestRegistry_TwoInstancesShareFileSafely(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "running_services.json")
	first := New(NewFileStore(path), path+".lock", &MockLogger{})
	second := New(NewFileStore(path), path+".lock", &MockLogger{})
	defer first.Close()
	defer second.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := first
			if i%2 == 1 {
				target = second
			}
			_, err := target.Update(ctx, func(entries Entries) error {
				entries.Put(record(fmt.Sprintf("svc%d", i), 9000+i, 100+i))
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snapshot, err := first.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshot, 20)
}

func TestRegistry_ClosedAndCancelled(t *testing.T) {
	r, _ := newTestRegistry(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Snapshot(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCancelledError(err))

	r.Close()
	_, err = r.Snapshot(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInternalError(err))
}

func TestRegistry_ApplyModelProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dir, err := os.MkdirTemp("", "registry-rapid-")
		if err != nil {
			t.Fatalf("temp dir: %v", err)
		}
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, "running_services.json")
		r := New(NewFileStore(path), "", &MockLogger{})
		defer r.Close()

		model := map[string]int{}
		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			port := rapid.IntRange(9000, 9005).Draw(t, "port")
			key := Key("svc", port)
			if rapid.Bool().Draw(t, "insert") {
				pid := rapid.IntRange(1, 1<<20).Draw(t, "pid")
				model[key] = pid
				_, err = r.Update(context.Background(), func(entries Entries) error {
					entries.Put(record("svc", port, pid))
					return nil
				})
			} else {
				delete(model, key)
				_, err = r.Update(context.Background(), func(entries Entries) error {
					delete(entries, key)
					return nil
				})
			}
			if err != nil {
				t.Fatalf("update failed: %v", err)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		snapshot, err := r.Snapshot(ctx)
		if err != nil {
			t.Fatalf("snapshot failed: %v", err)
		}
		if len(snapshot) != len(model) {
			t.Fatalf("size mismatch: %d != %d", len(snapshot), len(model))
		}
		for key, pid := range model {
			if snapshot[key].PID != pid {
				t.Fatalf("pid mismatch for %s: %d != %d", key, snapshot[key].PID, pid)
			}
		}
	})
}
