package main

import (
	"context"
	"time"

	"github.com/core-tools/hsu-devlauncher/pkg/catalog"
	"github.com/core-tools/hsu-devlauncher/pkg/domain"
	"github.com/core-tools/hsu-devlauncher/pkg/monitoring"
)

func withSession(run func(ctx context.Context, s *session) error) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := commandContext()
	defer cancel()

	return run(ctx, s)
}

type startCommand struct {
	Args struct {
		Service string `positional-arg-name:"service" required:"yes"`
		Kind    string `positional-arg-name:"kind" required:"yes"`
		Ports   []int  `positional-arg-name:"ports"`
	} `positional-args:"yes"`
}

func (c *startCommand) Execute(args []string) error {
	kind, err := catalog.ParseKind(c.Args.Kind)
	if err != nil {
		return err
	}
	return withSession(func(ctx context.Context, s *session) error {
		results, err := s.contract.Start(ctx, domain.StartRequest{Service: c.Args.Service, Kind: kind, Ports: c.Args.Ports})
		printStartResults(results)
		return err
	})
}

type stopCommand struct {
	Args struct {
		Service string `positional-arg-name:"service" required:"yes"`
		Kind    string `positional-arg-name:"kind" required:"yes"`
		Ports   []int  `positional-arg-name:"ports"`
	} `positional-args:"yes"`
}

func (c *stopCommand) Execute(args []string) error {
	kind, err := catalog.ParseKind(c.Args.Kind)
	if err != nil {
		return err
	}
	return withSession(func(ctx context.Context, s *session) error {
		result, err := s.contract.Stop(ctx, domain.StopRequest{Service: c.Args.Service, Kind: kind, Ports: c.Args.Ports})
		printStopResult(result)
		return err
	})
}

type stopAllCommand struct{}

func (c *stopAllCommand) Execute(args []string) error {
	return withSession(func(ctx context.Context, s *session) error {
		result, err := s.contract.StopAll(ctx)
		printStopResult(result)
		return err
	})
}

type listCommand struct{}

func (c *listCommand) Execute(args []string) error {
	return withSession(func(ctx context.Context, s *session) error {
		services, err := s.contract.ListServices(ctx)
		if err != nil {
			return err
		}
		printServices(services)
		return nil
	})
}

type statusCommand struct{}

func (c *statusCommand) Execute(args []string) error {
	return withSession(func(ctx context.Context, s *session) error {
		instances, err := s.contract.ListRunning(ctx)
		if err != nil {
			return err
		}
		printInstances(instances)
		return nil
	})
}

type probeCommand struct {
	Args struct {
		Service string `positional-arg-name:"service" required:"yes"`
		Port    int    `positional-arg-name:"port"`
	} `positional-args:"yes"`
}

func (c *probeCommand) Execute(args []string) error {
	return withSession(func(ctx context.Context, s *session) error {
		reports, err := s.contract.Probe(ctx, domain.ProbeRequest{Service: c.Args.Service, Port: c.Args.Port})
		if err != nil {
			return err
		}
		printProbeReports(reports)
		return nil
	})
}

type pruneCommand struct{}

func (c *pruneCommand) Execute(args []string) error {
	return withSession(func(ctx context.Context, s *session) error {
		removed, err := s.contract.Prune(ctx)
		if err != nil {
			return err
		}
		printPruned(removed)
		return nil
	})
}

type cleanupCommand struct {
	Args struct {
		Ports []int `positional-arg-name:"ports"`
	} `positional-args:"yes"`
}

func (c *cleanupCommand) Execute(args []string) error {
	return withSession(func(ctx context.Context, s *session) error {
		result, err := s.contract.Cleanup(ctx, domain.CleanupRequest{Ports: c.Args.Ports})
		printCleanup(result)
		return err
	})
}

type watchCommand struct {
	Interval time.Duration `long:"interval" description:"poll interval (default: monitor.poll_interval)"`
}

func (c *watchCommand) Execute(args []string) error {
	return withSession(func(ctx context.Context, s *session) error {
		interval := c.Interval
		if interval <= 0 {
			interval = s.config.Monitor.PollInterval
		}

		if s.manager != nil {
			return watchInProcess(ctx, s, interval)
		}
		return watchDaemon(ctx, s, interval)
	})
}

// watchInProcess runs a poller, which also reacts to registry file changes
func watchInProcess(ctx context.Context, s *session, interval time.Duration) error {
	var last string
	poller := s.manager.NewPoller(interval, func(snapshot monitoring.Snapshot) {
		if snapshot.Err != nil {
			s.logger.Warnf("Status poll failed: %v", snapshot.Err)
			return
		}
		instances := make([]domain.InstanceStatus, 0, len(snapshot.Services))
		for _, status := range snapshot.Services {
			instances = append(instances, domain.InstanceStatus{Record: status.Record, Alive: status.Alive})
		}
		last = printIfChanged(last, snapshot.Taken, instances)
	})
	if err := poller.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	poller.Stop()
	return nil
}

func watchDaemon(ctx context.Context, s *session, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last string
	for {
		instances, err := s.contract.ListRunning(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		last = printIfChanged(last, time.Now(), instances)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
