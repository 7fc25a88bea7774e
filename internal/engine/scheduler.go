package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"signal-core/pkg/logger"
)

// Scheduler drives RunCycle on a fixed interval. A cycle that overruns the
// interval delays the next one instead of overlapping it.
type Scheduler struct {
	svc      Service
	interval time.Duration
	log      *zap.Logger
	wg       sync.WaitGroup
}

func NewScheduler(svc Service, interval time.Duration, log *zap.Logger) *Scheduler {
	return &Scheduler{svc: svc, interval: interval, log: logger.OrNop(log)}
}

// Start runs one cycle immediately and then every interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info("⏱️ scheduler started", zap.Duration("interval", s.interval))

		s.svc.RunCycle(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.log.Info("scheduler stopped")
				return
			case <-ticker.C:
				s.svc.RunCycle(ctx)
			}
		}
	}()
}

// Wait blocks until the loop started by Start has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
