package process

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/core-tools/hsu-devlauncher/pkg/errors"
)

// ValidatePort checks the TCP port range
func ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return errors.NewValidationError(fmt.Sprintf("invalid port number: %d", port), nil).WithContext("valid_range", "1-65535")
	}
	return nil
}

// ValidateExecutionConfig validates execution configuration
func ValidateExecutionConfig(config ExecutionConfig) error {
	if len(config.Argv) == 0 || strings.TrimSpace(config.Argv[0]) == "" {
		return errors.NewValidationError("command is required", nil)
	}

	if config.WorkingDirectory == "" {
		return errors.NewValidationError("working directory is required", nil)
	}
	if !filepath.IsAbs(config.WorkingDirectory) {
		return errors.NewValidationError("working directory must be absolute path", nil)
	}
	if info, err := os.Stat(config.WorkingDirectory); err != nil {
		return errors.NewValidationError("working directory not accessible: "+config.WorkingDirectory, err)
	} else if !info.IsDir() {
		return errors.NewValidationError("working directory is not a directory: "+config.WorkingDirectory, nil)
	}

	for _, env := range config.Environment {
		if !strings.Contains(env, "=") {
			return errors.NewValidationError("invalid environment variable format: "+env, nil)
		}
	}

	return nil
}
