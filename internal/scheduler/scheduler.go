package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/qurban-engine/internal/product/dto"
	"github.com/fekuna/qurban-engine/pkg/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Reconciler is satisfied by product.UseCase.
type Reconciler interface {
	Reconcile(ctx context.Context) (*dto.ReconcileReport, error)
}

// Scheduler runs the periodic conservation sweep.
type Scheduler struct {
	cron       *cron.Cron
	reconciler Reconciler
	schedule   string
	timeout    time.Duration
	logger     logger.ZapLogger
}

func NewScheduler(schedule string, timeout time.Duration, reconciler Reconciler, log logger.ZapLogger) *Scheduler {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Scheduler{
		// A slow sweep must not overlap the next tick.
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		reconciler: reconciler,
		schedule:   schedule,
		timeout:    timeout,
		logger:     log.Named("scheduler"),
	}
}

// Start registers the sweep and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", s.schedule, err)
	}
	s.logger.Info("starting scheduler", zap.String("reconcile", s.schedule))
	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.Info("stopping scheduler")
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stopped before the running sweep finished")
	}
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	report, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		s.logger.Error("reconcile sweep failed", zap.Error(err))
		return
	}
	s.logger.Debug("reconcile sweep done", zap.Int("checked", report.Checked), zap.Int("findings", len(report.Findings)))
}
