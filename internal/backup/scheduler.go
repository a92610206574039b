package backup

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mybudgetplus/mybudget/internal/common/logger"
)

// Scheduler runs the Runner on a cron schedule. Overlapping passes are skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	logger *logger.Logger
}

// NewScheduler parses schedule (standard 5-field cron or descriptors such as
// "@hourly") and registers the backup job.
func NewScheduler(runner *Runner, schedule string, log *logger.Logger) (*Scheduler, error) {
	log = log.WithFields(zap.String("component", "backup-scheduler"))
	cl := cronLogger{sugar: log.Zap().Sugar()}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	s := &Scheduler{cron: c, runner: runner, logger: log}
	if _, err := c.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Backup scheduler started")
}

// Stop prevents new passes and waits for a running one until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Backup pass still running at shutdown")
	}
}

func (s *Scheduler) run() {
	if _, err := s.runner.RunOnce(context.Background()); err != nil {
		s.logger.Error("backup pass reported failures", zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
