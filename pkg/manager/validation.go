package manager

import (
	"net"
	"strconv"
	"time"

	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/core-tools/hsu-devlauncher/pkg/process"
)

// ValidateNetworkAddress validates a host:port listen or dial address
func ValidateNetworkAddress(address string) error {
	if address == "" {
		return errors.NewValidationError("network address cannot be empty", nil)
	}

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return errors.NewValidationError("invalid network address format: "+address, err)
	}

	if host == "" {
		return errors.NewValidationError("host cannot be empty in address: "+address, nil)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return errors.NewValidationError("invalid port in address: "+address, err)
	}

	// Port 0 asks the OS for a free port when listening
	if port != 0 {
		if err := process.ValidatePort(port); err != nil {
			return errors.NewValidationError("invalid port in address: "+address, err)
		}
	}

	return nil
}

// ValidateTimeout validates timeout duration
func ValidateTimeout(timeout time.Duration, name string) error {
	if timeout < 0 {
		return errors.NewValidationError(name+" timeout cannot be negative", nil)
	}

	if timeout == 0 {
		return errors.NewValidationError(name+" timeout cannot be zero", nil)
	}

	return nil
}
