package main

import (
	"fmt"
	"os"
	"time"

	"github.com/core-tools/hsu-devlauncher/pkg/logging"
	"github.com/core-tools/hsu-devlauncher/pkg/manager"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	ConfigFile     string        `long:"config" description:"path to launcher.yaml"`
	Address        string        `long:"address" description:"control address to listen on (overrides daemon.address)"`
	MetricsAddress string        `long:"metrics-address" description:"metrics address to listen on (overrides daemon.metrics_address)"`
	RunDuration    time.Duration `long:"run-duration" description:"stop after this long (debug feature)"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	config, err := manager.LoadConfig(opts.ConfigFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if opts.Address != "" {
		config.Daemon.Address = opts.Address
	}
	if opts.MetricsAddress != "" {
		config.Daemon.MetricsAddress = opts.MetricsAddress
	}

	backend := logging.NewZapBackend(config.Log)
	defer backend.Sync()

	logger := backend.Named("launchersrv")
	logger.Infof("opts: %+v", opts)

	if err := manager.Run(opts.RunDuration, *config, logger); err != nil {
		logger.Errorf("Launcher daemon failed: %v", err)
		_ = backend.Sync()
		os.Exit(1)
	}
}
