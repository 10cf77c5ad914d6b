package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Service owns the cron lifecycle around the Runner: the processing tick and
// the slower reconciliation pass. It is constructed once at process start —
// there is no package-level state.
type Service struct {
	cron          *cron.Cron
	runner        *Runner
	reconciler    *Reconciler
	tickSpec      string
	reconcileSpec string
	log           *zap.Logger
}

func NewService(runner *Runner, reconciler *Reconciler, tickSpec, reconcileSpec string, log *zap.Logger) *Service {
	if tickSpec == "" {
		tickSpec = "@every 1m"
	}
	if reconcileSpec == "" {
		reconcileSpec = "@every 30m"
	}
	return &Service{
		cron:          cron.New(),
		runner:        runner,
		reconciler:    reconciler,
		tickSpec:      tickSpec,
		reconcileSpec: reconcileSpec,
		log:           log.Named("scheduler"),
	}
}

// Start registers both jobs and starts the cron. The passed context bounds
// every job run; cancel it before Stop on shutdown.
func (s *Service) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.tickSpec, func() {
		s.runner.Tick(ctx)
	}); err != nil {
		return fmt.Errorf("register tick: %w", err)
	}
	if _, err := s.cron.AddFunc(s.reconcileSpec, func() {
		s.reconciler.Run(ctx)
	}); err != nil {
		return fmt.Errorf("register reconcile: %w", err)
	}
	s.cron.Start()
	s.log.Info("started",
		zap.String("tick", s.tickSpec),
		zap.String("reconcile", s.reconcileSpec))
	return nil
}

// Stop halts the cron and waits for running jobs to finish.
func (s *Service) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.log.Info("stopped")
}
