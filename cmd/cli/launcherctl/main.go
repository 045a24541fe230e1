package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/core-tools/hsu-devlauncher/pkg/control"
	"github.com/core-tools/hsu-devlauncher/pkg/domain"
	"github.com/core-tools/hsu-devlauncher/pkg/logging"
	"github.com/core-tools/hsu-devlauncher/pkg/manager"

	flags "github.com/jessevdk/go-flags"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type globalOptions struct {
	ConfigFile string `long:"config" description:"path to launcher.yaml (default: ./launcher.yaml, then the user config directory)"`
	Daemon     string `long:"daemon" description:"address of a running launchersrv; operations run in-process when empty"`
	Verbose    bool   `short:"v" long:"verbose" description:"log at the configured level instead of warnings only"`
	JSON       bool   `long:"json" description:"print results as JSON"`

	Start   startCommand   `command:"start" description:"start a service on one or more ports"`
	Stop    stopCommand    `command:"stop" description:"stop instances of a service"`
	StopAll stopAllCommand `command:"stop-all" description:"stop every running instance"`
	List    listCommand    `command:"list" description:"list the services of the catalog"`
	Status  statusCommand  `command:"status" description:"list running instances and whether their process exists"`
	Probe   probeCommand   `command:"probe" description:"check the health endpoint of a service"`
	Prune   pruneCommand   `command:"prune" description:"remove registry entries whose process is gone"`
	Cleanup cleanupCommand `command:"cleanup" description:"free service ports held by stray processes"`
	Watch   watchCommand   `command:"watch" description:"print the running instances whenever they change"`
}

var opts globalOptions

// session is what every command works with, built after flags are parsed
type session struct {
	config   *manager.Config
	contract domain.Contract
	manager  *manager.Manager // nil in daemon mode
	logger   logging.Logger
	closers  []func()
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openSession() (*session, error) {
	config, err := manager.LoadConfig(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	if !opts.Verbose && config.Log.Level != "debug" {
		config.Log.Level = "warn"
	}

	backend := logging.NewZapBackend(config.Log)
	s := &session{
		config:  config,
		logger:  backend.Named("launcherctl"),
		closers: []func(){func() { _ = backend.Sync() }},
	}

	if opts.Daemon != "" {
		conn, err := grpc.NewClient(opts.Daemon, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = conn.Close() })
		s.contract = control.NewGRPCClientGateway(conn, backend.Named("control"))
		return s, nil
	}

	m, err := manager.New(*config, manager.Options{}, backend.Named("manager"))
	if err != nil {
		s.close()
		return nil, err
	}
	s.closers = append(s.closers, m.Close)
	s.manager = m
	s.contract = m
	return s, nil
}

// commandContext is cancelled by the first interrupt
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
