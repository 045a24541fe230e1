package domain

import (
	"fmt"
	"testing"

	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/core-tools/hsu-devlauncher/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailure_RoundTripKeepsTypeAndMessage(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"already running", errors.NewAlreadyRunningError("docA", 9100, 42), errors.IsAlreadyRunningError},
		{"launch failed with cause", errors.NewLaunchFailedError("docA", "boom", fmt.Errorf("exit status 3")), errors.IsLaunchFailedError},
		{"wrapped", fmt.Errorf("start: %w", errors.NewUnknownServiceError("nope")), errors.IsUnknownServiceError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failure := FailureOf(tt.err)
			require.NotNil(t, failure)

			rebuilt := failure.Err()
			assert.True(t, tt.check(rebuilt))
			if _, ok := tt.err.(*errors.DomainError); ok {
				assert.Equal(t, tt.err.Error(), rebuilt.Error())
			}
		})
	}
}

func TestFailure_PlainErrorBecomesInternal(t *testing.T) {
	rebuilt := FailureOf(fmt.Errorf("disk on fire")).Err()

	assert.True(t, errors.IsInternalError(rebuilt))
	assert.Contains(t, rebuilt.Error(), "disk on fire")
}

func TestFailure_Nil(t *testing.T) {
	assert.Nil(t, FailureOf(nil))
	var failure *Failure
	assert.NoError(t, failure.Err())
}

func TestStartError(t *testing.T) {
	assert.NoError(t, StartError([]StartResult{{Port: 9100, Record: &registry.ProcessRecord{PID: 1}}}))

	err := StartError([]StartResult{
		{Port: 9100, Record: &registry.ProcessRecord{PID: 1}},
		{Port: 9101, Failure: FailureOf(errors.NewAlreadyRunningError("docA", 9101, 7))},
	})
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyRunningError(err))
}

func TestStopError(t *testing.T) {
	assert.NoError(t, StopError("docA", StopResult{Stopped: []registry.ProcessRecord{{PID: 1}}}))

	err := StopError("docA", StopResult{
		Stopped: []registry.ProcessRecord{{PID: 1}},
		Failed: []StopFailure{{
			Record:  registry.ProcessRecord{PID: 2},
			Failure: FailureOf(errors.NewPermissionError("not permitted to signal process", nil)),
		}},
	})
	require.Error(t, err)
	assert.True(t, errors.IsPartialStopFailureError(err))
	assert.Contains(t, err.Error(), "stopped 1 of 2 instances of 'docA'")
}
