// Package scheduler fires the weekly summary sweep on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"alcyxob/gym-notifier/internal/service"
)

// Sweeper is the job the scheduler runs.
type Sweeper interface {
	RunSweep(ctx context.Context, reference time.Time) (service.SweepResult, error)
}

type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// New parses spec in the given IANA timezone. Overlapping runs are skipped
// and a panicking run is recovered and logged.
func New(spec, timezone string, sweeper Sweeper, log *zap.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, sweeper: sweeper, log: log, ctx: ctx, cancel: cancel}
	if _, err := c.AddFunc(spec, s.runWeeklySweep); err != nil {
		cancel()
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Info("weekly sweep scheduled", zap.Time("next_run", e.Next))
	}
}

// Stop cancels a running sweep and waits for it to return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}

func (s *Scheduler) runWeeklySweep() {
	res, err := s.sweeper.RunSweep(s.ctx, time.Now())
	if err != nil {
		s.log.Error("scheduled weekly sweep failed", zap.String("run_id", res.RunID), zap.Error(err))
		return
	}
	s.log.Info("scheduled weekly sweep done",
		zap.String("run_id", res.RunID),
		zap.Int64("sent", res.Sent),
		zap.Int64("failed", res.Failed))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
