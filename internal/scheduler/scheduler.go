// Package scheduler drives sensor refreshes on a cron schedule and on demand.
// Refreshes never overlap: a tick that arrives while one is running is skipped.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"ouraring/internal/sensor"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule polls twice an hour
const DefaultSchedule = "@every 30m"

// Refresher runs one refresh cycle
type Refresher interface {
	Refresh(ctx context.Context) (sensor.Outcome, error)
}

// Scheduler serializes refresh cycles from cron ticks and manual triggers
type Scheduler struct {
	spec      string
	refresher Refresher
	logger    *zap.Logger
	cron      *cron.Cron
	runMu     sync.Mutex
	trigger   chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   bool
	startedMu sync.Mutex
}

// New validates spec and creates a stopped scheduler
func New(spec string, refresher Refresher, logger *zap.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid poll schedule %q: %w", spec, err)
	}

	logger = logger.Named("scheduler")
	return &Scheduler{
		spec:      spec,
		refresher: refresher,
		logger:    logger,
		cron:      cron.New(cron.WithLogger(cronLogger{logger.Sugar()})),
		trigger:   make(chan struct{}, 1),
	}, nil
}

// Start registers the cron job, runs an initial refresh in the background
// and begins serving triggers. ctx bounds every refresh.
func (s *Scheduler) Start(ctx context.Context) error {
	s.startedMu.Lock()
	defer s.startedMu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	if _, err := s.cron.AddFunc(s.spec, func() { s.tryRun("schedule") }); err != nil {
		s.cancel()
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}

	s.wg.Add(1)
	go s.triggerLoop()

	s.cron.Start()
	s.started = true

	s.logger.Info("Scheduler started", zap.String("schedule", s.spec))

	s.Trigger()
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish
func (s *Scheduler) Stop() {
	s.startedMu.Lock()
	defer s.startedMu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info("Stopping scheduler")
	stopCtx := s.cron.Stop()
	s.cancel()
	<-stopCtx.Done()
	s.wg.Wait()
	s.started = false
}

// Trigger requests a refresh as soon as possible. At most one request is
// queued; it returns false when one was already pending.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// RunNow runs a refresh synchronously, waiting for any running refresh first
func (s *Scheduler) RunNow(ctx context.Context) (sensor.Outcome, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.run(ctx, "manual")
}

func (s *Scheduler) triggerLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.trigger:
			s.runMu.Lock()
			s.run(s.ctx, "trigger")
			s.runMu.Unlock()
		}
	}
}

// tryRun is the cron entry point; it skips the tick if a refresh is running
func (s *Scheduler) tryRun(source string) {
	if !s.runMu.TryLock() {
		s.logger.Debug("Refresh already running, skipping tick", zap.String("source", source))
		return
	}
	defer s.runMu.Unlock()
	s.run(s.ctx, source)
}

// run must be called with runMu held
func (s *Scheduler) run(ctx context.Context, source string) (sensor.Outcome, error) {
	if ctx.Err() != nil {
		return sensor.Unchanged, ctx.Err()
	}

	outcome, err := s.refresher.Refresh(ctx)
	if err != nil {
		s.logger.Error("Refresh failed",
			zap.String("source", source),
			zap.String("outcome", outcome.String()),
			zap.Error(err))
		return outcome, err
	}

	s.logger.Debug("Refresh finished",
		zap.String("source", source),
		zap.String("outcome", outcome.String()))
	return outcome, nil
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
