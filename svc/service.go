package svc

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"

	"github.com/edgefleet/hawkbit-agent/cmn/log"
	"github.com/edgefleet/hawkbit-agent/config"
	"github.com/edgefleet/hawkbit-agent/coordinator"
	"github.com/edgefleet/hawkbit-agent/ddiclient"
	"github.com/edgefleet/hawkbit-agent/poll"
)

// Service owns the process lifetime: it builds the Client, Coordinator and
// Poll Loop from Config, then runs the loop under systemd readiness and
// watchdog notification until a shutdown signal arrives.
type Service struct {
	Cfg     *config.Config
	ZapLog  *zap.Logger
	RunOnce bool
}

// Run blocks until the poll loop exits (run-once mode) or a termination
// signal is received (daemon mode). It returns the error, if any, the poll
// loop or client construction produced.
func (s *Service) Run() error {
	logger := log.NewNamed(s.ZapLog, "svc")

	client, err := ddiclient.New(s.Cfg)
	if err != nil {
		return err
	}

	coord := coordinator.New(s.Cfg, client, log.NewNamed(s.ZapLog, "coordinator"))

	loop := &poll.Loop{
		Client:      client,
		Coordinator: coord,
		RetryWait:   s.Cfg.RetryWait,
		Logger:      log.NewNamed(s.ZapLog, "poll"),
		RunOnce:     s.RunOnce,
	}

	if s.RunOnce {
		return loop.Run(context.Background())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)
	notifier := NewNotifier(logger)
	stopWatchdog := make(chan struct{})

	group.Go(func() error {
		notifier.RunWatchdog(stopWatchdog)
		return nil
	})
	group.Go(func() error {
		return loop.Run(gctx)
	})

	notifier.Ready()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal: " + sig.String())
	case <-gctx.Done():
	}

	notifier.Stopping()
	close(stopWatchdog)
	cancel()

	return group.Wait()
}
