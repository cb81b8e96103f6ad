package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-approval/internal/clock"
	"go-approval/internal/config"
	"go-approval/internal/features/approval"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Processor is the part of the approval engine the scheduler drives.
type Processor interface {
	FindDue(ctx context.Context, before time.Time, limit int) ([]string, error)
	ProcessTimers(ctx context.Context, id string) (*approval.ApprovalRequest, error)
}

// RunStats summarizes one scheduler tick.
type RunStats struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Due        int       `json:"due"`
	Processed  int       `json:"processed"`
	Exhausted  int       `json:"exhausted"`
	Failed     int       `json:"failed"`
	BatchFull  bool      `json:"batch_full"`
}

type Scheduler struct {
	processor Processor
	clock     clock.Clock
	interval  time.Duration
	workers   int
	batch     int
	logger    *zap.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	last   *RunStats
}

func NewScheduler(processor Processor, clk clock.Clock, cfg *config.Config, logger *zap.Logger) *Scheduler {
	workers := cfg.EscalationWorkers
	if workers <= 0 {
		workers = 1
	}
	interval := cfg.EscalationInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		processor: processor,
		clock:     clk,
		interval:  interval,
		workers:   workers,
		batch:     cfg.EscalationBatch,
		logger:    logger.Named("escalation"),
	}
}

// Start registers the recurring tick. Overlapping ticks are skipped.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("escalation scheduler already started")
	}

	cronLog := cronLogger{s.logger.Sugar()}
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		if _, err := s.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("escalation tick failed", zap.Error(err))
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule escalation tick: %w", err)
	}

	s.cron, s.cancel = c, cancel
	c.Start()
	s.logger.Info("escalation scheduler started",
		zap.Duration("interval", s.interval),
		zap.Int("workers", s.workers),
		zap.Int("batch", s.batch))
	return nil
}

// Stop halts the schedule and waits for a running tick until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	done := c.Stop()
	defer cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick processes every request whose next deadline has passed, up to the
// configured batch size, on a bounded worker pool.
func (s *Scheduler) Tick(ctx context.Context) (RunStats, error) {
	stats := RunStats{StartedAt: s.clock.Now()}

	ids, err := s.processor.FindDue(ctx, stats.StartedAt, s.batch)
	if err != nil {
		return stats, fmt.Errorf("failed to query due requests: %w", err)
	}
	stats.Due = len(ids)
	stats.BatchFull = s.batch > 0 && len(ids) == s.batch

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, id := range ids {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			_, err := s.processor.ProcessTimers(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				stats.Processed++
			case errors.Is(err, approval.ErrEscalationExhausted):
				stats.Exhausted++
				s.logger.Info("escalation levels exhausted", zap.String("request_id", id))
			default:
				stats.Failed++
				s.logger.Warn("failed to process request timers", zap.String("request_id", id), zap.Error(err))
			}
			return nil
		})
	}
	err = g.Wait()
	stats.FinishedAt = s.clock.Now()

	s.mu.Lock()
	last := stats
	s.last = &last
	s.mu.Unlock()

	if stats.BatchFull {
		s.logger.Warn("escalation batch full, remaining requests wait for the next tick", zap.Int("batch", s.batch))
	}
	if stats.Due > 0 {
		s.logger.Debug("escalation tick finished",
			zap.Int("due", stats.Due),
			zap.Int("processed", stats.Processed),
			zap.Int("exhausted", stats.Exhausted),
			zap.Int("failed", stats.Failed))
	}
	return stats, err
}

// LastRun returns the stats of the most recent tick, if any.
func (s *Scheduler) LastRun() (RunStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return RunStats{}, false
	}
	return *s.last, true
}

// Running reports whether the recurring tick is registered.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
