package manager

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/core-tools/hsu-devlauncher/pkg/launcher"
	"github.com/core-tools/hsu-devlauncher/pkg/logging"
	"github.com/core-tools/hsu-devlauncher/pkg/monitoring"
	"github.com/core-tools/hsu-devlauncher/pkg/ports"
	"github.com/core-tools/hsu-devlauncher/pkg/processfile"
	"github.com/core-tools/hsu-devlauncher/pkg/terminator"

	"github.com/spf13/viper"
)

const (
	ConfigFileName = "launcher"
	EnvPrefix      = "HSU_LAUNCHER"

	DefaultDaemonAddress  = "127.0.0.1:50077"
	DefaultMetricsAddress = "127.0.0.1:9477"
)

// Config represents the launcher configuration
type Config struct {
	// Base for relative service paths, defaults to the working directory
	RootDirectory string `mapstructure:"root_dir"`

	State   StateConfig       `mapstructure:"state"`
	Log     logging.ZapConfig `mapstructure:"log"`
	Launch  LaunchConfig      `mapstructure:"launch"`
	Monitor MonitorConfig     `mapstructure:"monitor"`
	Daemon  DaemonConfig      `mapstructure:"daemon"`
}

// StateConfig places the registry, catalog and instance logs
type StateConfig struct {
	Directory    string `mapstructure:"dir"`
	Context      string `mapstructure:"context"` // "user", "session", "project"
	RegistryFile string `mapstructure:"registry_file"`
	CatalogFile  string `mapstructure:"catalog_file"`
}

type LaunchConfig struct {
	StartupWait    time.Duration `mapstructure:"startup_wait"`
	PrepareTimeout time.Duration `mapstructure:"prepare_timeout"`
	ReconcileGrace time.Duration `mapstructure:"reconcile_grace"`
	StopGrace      time.Duration `mapstructure:"stop_grace"`
}

type MonitorConfig struct {
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	ProbeOnPoll   bool          `mapstructure:"probe_on_poll"`
	ProbeCacheTTL time.Duration `mapstructure:"probe_cache_ttl"`
}

type DaemonConfig struct {
	Address        string `mapstructure:"address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

func setConfigDefaults(v *viper.Viper) {
	workDir, err := os.Getwd()
	if err != nil {
		workDir = "."
	}

	v.SetDefault("root_dir", workDir)

	v.SetDefault("state.dir", "")
	v.SetDefault("state.context", string(processfile.UserService))
	v.SetDefault("state.registry_file", processfile.DefaultRegistryFileName)
	v.SetDefault("state.catalog_file", processfile.DefaultCatalogFileName)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.caller", false)

	v.SetDefault("launch.startup_wait", launcher.DefaultStartupWait)
	v.SetDefault("launch.prepare_timeout", launcher.DefaultPrepareTimeout)
	v.SetDefault("launch.reconcile_grace", ports.DefaultReconcileGracePeriod)
	v.SetDefault("launch.stop_grace", terminator.DefaultGracePeriod)

	v.SetDefault("monitor.probe_timeout", monitoring.DefaultProbeTimeout)
	v.SetDefault("monitor.poll_interval", monitoring.DefaultPollInterval)
	v.SetDefault("monitor.probe_on_poll", true)
	v.SetDefault("monitor.probe_cache_ttl", monitoring.DefaultProbeCacheTTL)

	v.SetDefault("daemon.address", DefaultDaemonAddress)
	v.SetDefault("daemon.metrics_address", DefaultMetricsAddress)
}

// LoadConfig layers defaults, an optional launcher.yaml and HSU_LAUNCHER_* variables.
// An explicit configFile must exist; otherwise launcher.yaml is looked up in the
// working directory and the user config directory.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	setConfigDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", configFile)
		}
	} else {
		v.SetConfigName(ConfigFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if userConfig, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(userConfig, processfile.DefaultAppName))
		}
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errors.NewValidationError("failed to parse configuration", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewValidationError("failed to decode configuration", err)
	}

	if config.RootDirectory != "" {
		root, err := filepath.Abs(config.RootDirectory)
		if err != nil {
			return nil, errors.NewValidationError("invalid root directory", err).WithContext("root_dir", config.RootDirectory)
		}
		config.RootDirectory = root
	}

	return &config, nil
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if config.RootDirectory == "" {
		return errors.NewValidationError("root directory is required", nil)
	}

	switch processfile.ServiceContext(config.State.Context) {
	case processfile.UserService, processfile.SessionService, processfile.ProjectService:
	default:
		return errors.NewValidationError("invalid state context: "+config.State.Context, nil).
			WithContext("supported_contexts", "user, session, project")
	}

	if err := validateLogConfig(config.Log); err != nil {
		return errors.NewValidationError("invalid log configuration", err)
	}

	timeouts := []struct {
		name  string
		value time.Duration
	}{
		{"startup wait", config.Launch.StartupWait},
		{"prepare", config.Launch.PrepareTimeout},
		{"reconcile grace", config.Launch.ReconcileGrace},
		{"stop grace", config.Launch.StopGrace},
		{"probe", config.Monitor.ProbeTimeout},
	}
	for _, timeout := range timeouts {
		if err := ValidateTimeout(timeout.value, timeout.name); err != nil {
			return err
		}
	}

	if err := monitoring.ValidatePollerConfig(config.pollerConfig("")); err != nil {
		return errors.NewValidationError("invalid monitor configuration", err)
	}

	if err := ValidateNetworkAddress(config.Daemon.Address); err != nil {
		return errors.NewValidationError("invalid daemon address", err)
	}
	if config.Daemon.MetricsAddress != "" {
		if err := ValidateNetworkAddress(config.Daemon.MetricsAddress); err != nil {
			return errors.NewValidationError("invalid metrics address", err)
		}
	}

	return nil
}

func validateLogConfig(config logging.ZapConfig) error {
	switch config.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.NewValidationError("invalid log level: "+config.Level, nil).
			WithContext("supported_levels", "debug, info, warn, error")
	}
	switch config.Format {
	case "console", "json":
	default:
		return errors.NewValidationError("invalid log format: "+config.Format, nil).
			WithContext("supported_formats", "console, json")
	}
	return nil
}

func (c *Config) layoutConfig() processfile.LayoutConfig {
	return processfile.LayoutConfig{
		BaseDirectory:  c.State.Directory,
		ServiceContext: processfile.ServiceContext(c.State.Context),
		RegistryFile:   c.State.RegistryFile,
		CatalogFile:    c.State.CatalogFile,
	}
}

func (c *Config) pollerConfig(registryFile string) monitoring.PollerConfig {
	return monitoring.PollerConfig{
		Interval:      c.Monitor.PollInterval,
		ProbeHealth:   c.Monitor.ProbeOnPoll,
		ProbeCacheTTL: c.Monitor.ProbeCacheTTL,
		WatchFile:     registryFile,
	}
}
