package registry

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/core-tools/hsu-devlauncher/pkg/catalog"
)

// ProcessRecord describes one running service instance
type ProcessRecord struct {
	PID                   int              `json:"pid"`
	ServiceName           string           `json:"serviceName"`
	Port                  int              `json:"port"`
	Kind                  catalog.Kind     `json:"kind"`
	Language              catalog.Language `json:"language"`
	HealthCheckPath       string           `json:"healthCheckPath"`
	StartedAtEpochSeconds int64            `json:"startedAtEpochSeconds"`

	LaunchID string `json:"launchId,omitempty"`
	LogFile  string `json:"logFile,omitempty"`
}

func (r ProcessRecord) Key() string {
	return Key(r.ServiceName, r.Port)
}

func (r ProcessRecord) StartedAt() time.Time {
	return time.Unix(r.StartedAtEpochSeconds, 0)
}

// Key builds the registry key of a service instance
func Key(service string, port int) string {
	return fmt.Sprintf("%s_%d", service, port)
}

// ParseKey splits a key into service name and port. Service names may contain underscores.
func ParseKey(key string) (string, int, error) {
	separator := strings.LastIndex(key, "_")
	if separator <= 0 || separator == len(key)-1 {
		return "", 0, fmt.Errorf("malformed registry key '%s'", key)
	}
	port, err := strconv.Atoi(key[separator+1:])
	if err != nil || port <= 0 {
		return "", 0, fmt.Errorf("malformed port in registry key '%s'", key)
	}
	return key[:separator], port, nil
}

// Entries is the full registry content
type Entries map[string]ProcessRecord

func (e Entries) Clone() Entries {
	clone := make(Entries, len(e))
	for key, record := range e {
		clone[key] = record
	}
	return clone
}

// Keys returns the keys ordered by service name, then numeric port.
// Keys that do not parse sort after the others, by text.
func (e Entries) Keys() []string {
	keys := make([]string, 0, len(e))
	for key := range e {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
	return keys
}

func keyLess(a, b string) bool {
	serviceA, portA, errA := ParseKey(a)
	serviceB, portB, errB := ParseKey(b)
	switch {
	case errA != nil && errB != nil:
		return a < b
	case errA != nil:
		return false
	case errB != nil:
		return true
	case serviceA != serviceB:
		return serviceA < serviceB
	}
	return portA < portB
}

// Records returns the records in key order
func (e Entries) Records() []ProcessRecord {
	records := make([]ProcessRecord, 0, len(e))
	for _, key := range e.Keys() {
		records = append(records, e[key])
	}
	return records
}

// Match returns the records of service and kind ordered by port
func (e Entries) Match(service string, kind catalog.Kind) []ProcessRecord {
	var matched []ProcessRecord
	for _, record := range e {
		if record.ServiceName == service && record.Kind == kind {
			matched = append(matched, record)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Port < matched[j].Port })
	return matched
}

// Put inserts or replaces the record under its key
func (e Entries) Put(record ProcessRecord) {
	e[record.Key()] = record
}
