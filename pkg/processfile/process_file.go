package processfile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/core-tools/hsu-devlauncher/pkg/logging"
)

// Default application name, used as the state subdirectory
const DefaultAppName = "hsu-devlauncher"

const (
	DefaultRegistryFileName = "running_services.json"
	DefaultCatalogFileName  = "service_config.yaml"
	instanceLogDirectory    = "logs"
)

// LayoutConfig holds configuration for the state directory layout
type LayoutConfig struct {
	// Base directory for state files. If empty, uses OS-appropriate default
	BaseDirectory string

	// Service context - affects directory selection
	ServiceContext ServiceContext

	// Application name for subdirectory creation
	AppName string

	// Explicit file locations, relative paths resolve against the state directory
	RegistryFile string
	CatalogFile  string
}

// ServiceContext defines the context in which the launcher runs
type ServiceContext string

const (
	// UserService keeps state in a per-user runtime directory
	UserService ServiceContext = "user"

	// SessionService keeps state in a directory cleaned up on logout
	SessionService ServiceContext = "session"

	// ProjectService keeps state next to the project (working directory)
	ProjectService ServiceContext = "project"
)

// Layout resolves every file the launcher reads or writes
type Layout struct {
	config LayoutConfig
	logger logging.Logger
}

// NewLayout creates a layout with the given configuration
func NewLayout(config LayoutConfig, logger logging.Logger) *Layout {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}

	if config.ServiceContext == "" {
		config.ServiceContext = UserService
	}

	return &Layout{
		config: config,
		logger: logger,
	}
}

// StateDirectory is where the registry, lock and instance logs live
func (l *Layout) StateDirectory() string {
	if l.config.BaseDirectory != "" {
		return l.config.BaseDirectory
	}

	switch l.config.ServiceContext {
	case SessionService:
		return filepath.Join(getSessionServiceDirectory(), l.config.AppName)
	case ProjectService:
		wd, err := os.Getwd()
		if err != nil {
			return filepath.Join(os.TempDir(), l.config.AppName)
		}
		return filepath.Join(wd, "."+l.config.AppName)
	default:
		return filepath.Join(getUserServiceDirectory(), l.config.AppName)
	}
}

// RegistryFilePath returns the registry document path
func (l *Layout) RegistryFilePath() string {
	return l.resolve(l.config.RegistryFile, DefaultRegistryFileName)
}

// RegistryLockFilePath returns the advisory lock guarding the registry
func (l *Layout) RegistryLockFilePath() string {
	return l.RegistryFilePath() + ".lock"
}

// CatalogFilePath returns the catalog document path
func (l *Layout) CatalogFilePath() string {
	return l.resolve(l.config.CatalogFile, DefaultCatalogFileName)
}

// InstanceLogDirectoryPath returns the directory receiving child output
func (l *Layout) InstanceLogDirectoryPath() string {
	return filepath.Join(l.StateDirectory(), instanceLogDirectory)
}

// InstanceLogFilePath returns the output file of one service instance
func (l *Layout) InstanceLogFilePath(service string, port int) string {
	name := fmt.Sprintf("%s_%d.log", sanitizeFileName(service), port)
	return filepath.Join(l.InstanceLogDirectoryPath(), name)
}

// Prepare makes sure the state directory and the instance log directory are usable
func (l *Layout) Prepare() error {
	stateDir := l.StateDirectory()
	l.logger.Debugf("Preparing state directory, path: %s", stateDir)

	if err := ValidateStateDirectory(stateDir); err != nil {
		l.logger.Errorf("State directory validation failed, path: %s, error: %v", stateDir, err)
		return err
	}
	if err := ValidateStateDirectory(l.InstanceLogDirectoryPath()); err != nil {
		l.logger.Errorf("Instance log directory validation failed, path: %s, error: %v", l.InstanceLogDirectoryPath(), err)
		return err
	}
	if err := ValidateStateDirectory(filepath.Dir(l.RegistryFilePath())); err != nil {
		return err
	}
	return nil
}

func (l *Layout) resolve(configured, defaultName string) string {
	if configured == "" {
		return filepath.Join(l.StateDirectory(), defaultName)
	}
	if filepath.IsAbs(configured) {
		return configured
	}
	return filepath.Join(l.StateDirectory(), configured)
}

func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
}

// getUserServiceDirectory returns the per-user runtime directory
func getUserServiceDirectory() string {
	switch runtime.GOOS {
	case "windows":
		// Use LocalAppData for user services on Windows
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile != "" {
				localAppData = filepath.Join(userProfile, "AppData", "Local")
			} else {
				localAppData = os.TempDir()
			}
		}
		return localAppData

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "/tmp"
		}
		return filepath.Join(homeDir, "Library", "Application Support")

	default:
		// Use XDG_RUNTIME_DIR if available, otherwise /tmp
		if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
			return runtimeDir
		}
		return "/tmp"
	}
}

// getSessionServiceDirectory returns the directory for session-scoped state
func getSessionServiceDirectory() string {
	switch runtime.GOOS {
	case "windows", "darwin":
		return os.TempDir()

	default:
		sessionDir := fmt.Sprintf("/run/user/%d", os.Getuid())
		if _, err := os.Stat(sessionDir); err == nil {
			return sessionDir
		}
		return "/tmp"
	}
}

// ValidateStateDirectory validates that the directory exists (creating it if needed) and is writable
func ValidateStateDirectory(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return errors.NewIOError("failed to create state directory", err).WithContext("directory", dir)
			}
		} else {
			return errors.NewIOError("failed to access state directory", err).WithContext("directory", dir)
		}
	} else if !info.IsDir() {
		return errors.NewValidationError("state path is not a directory", nil).WithContext("path", dir)
	}

	// Check if directory is writable
	testFile := filepath.Join(dir, ".write_test")
	if file, err := os.Create(testFile); err != nil {
		return errors.NewPermissionError("state directory is not writable", err).WithContext("directory", dir)
	} else {
		file.Close()
		os.Remove(testFile)
	}

	return nil
}
