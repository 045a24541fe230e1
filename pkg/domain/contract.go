package domain

import (
	"context"
	"strings"

	"github.com/core-tools/hsu-devlauncher/pkg/catalog"
	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/core-tools/hsu-devlauncher/pkg/registry"
)

// Contract is the operator surface, served in-process by the manager or remotely by the daemon
type Contract interface {
	Start(ctx context.Context, request StartRequest) ([]StartResult, error)
	Stop(ctx context.Context, request StopRequest) (StopResult, error)
	StopAll(ctx context.Context) (StopResult, error)
	ListServices(ctx context.Context) ([]catalog.ServiceDefinition, error)
	ListRunning(ctx context.Context) ([]InstanceStatus, error)
	Probe(ctx context.Context, request ProbeRequest) ([]ProbeReport, error)
	Prune(ctx context.Context) ([]registry.ProcessRecord, error)
	Cleanup(ctx context.Context, request CleanupRequest) (CleanupResult, error)
}

type StartRequest struct {
	Service string       `json:"service"`
	Kind    catalog.Kind `json:"kind"`
	// Empty starts one instance on the default port
	Ports []int `json:"ports,omitempty"`
}

type StartResult struct {
	Port    int                     `json:"port"`
	Record  *registry.ProcessRecord `json:"record,omitempty"`
	Failure *Failure                `json:"failure,omitempty"`
}

type StopRequest struct {
	Service string       `json:"service"`
	Kind    catalog.Kind `json:"kind"`
	// Empty stops every instance of the service
	Ports []int `json:"ports,omitempty"`
}

type StopResult struct {
	Stopped []registry.ProcessRecord `json:"stopped"`
	Failed  []StopFailure            `json:"failed,omitempty"`
}

type StopFailure struct {
	Record  registry.ProcessRecord `json:"record"`
	Failure *Failure               `json:"failure"`
}

type InstanceStatus struct {
	Record registry.ProcessRecord `json:"record"`
	Alive  bool                   `json:"alive"`
}

type ProbeRequest struct {
	Service string `json:"service"`
	// Zero probes every instance of the service
	Port int `json:"port,omitempty"`
}

type ProbeReport struct {
	Record         registry.ProcessRecord `json:"record"`
	Healthy        bool                   `json:"healthy"`
	StatusCode     int                    `json:"statusCode,omitempty"`
	Message        string                 `json:"message,omitempty"`
	DurationMillis int64                  `json:"durationMillis"`
}

type CleanupRequest struct {
	// Empty selects every catalog default port
	Ports []int `json:"ports,omitempty"`
}

type CleanupResult struct {
	Ports  []int                    `json:"ports"`
	Freed  int                      `json:"freed"`
	Pruned []registry.ProcessRecord `json:"pruned,omitempty"`
}

// Failure is the serializable form of an error
type Failure struct {
	Type    errors.ErrorType `json:"type,omitempty"`
	Message string           `json:"message"`
}

// FailureOf captures err, nil stays nil
func FailureOf(err error) *Failure {
	if err == nil {
		return nil
	}
	return &Failure{Type: errors.TypeOf(err), Message: err.Error()}
}

// Err rebuilds an error that answers the errors.IsXxxError helpers like the original did
func (f *Failure) Err() error {
	if f == nil {
		return nil
	}
	return RebuildError(f.Type, f.Message)
}

// RebuildError turns a type and a rendered message back into a DomainError
func RebuildError(errorType errors.ErrorType, message string) error {
	if errorType == "" {
		errorType = errors.ErrorTypeInternal
	}
	return errors.NewDomainError(errorType, strings.TrimPrefix(message, string(errorType)+": "), nil)
}

// StartError aggregates the per-port failures of a start
func StartError(results []StartResult) error {
	collection := errors.NewErrorCollection()
	for _, result := range results {
		collection.Add(result.Failure.Err())
	}
	return collection.ToError()
}

// StopError rebuilds the partial failure error of a stop result
func StopError(label string, result StopResult) error {
	if len(result.Failed) == 0 {
		return nil
	}
	collection := errors.NewErrorCollection()
	for _, failed := range result.Failed {
		collection.Add(failed.Failure.Err())
	}
	return errors.NewPartialStopFailureError(label, len(result.Stopped), len(result.Failed), collection.ToError())
}
