// package schedule
//
// periodic trigger of migration cycles
package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/baderkha/events-migrator/pkg/migrate"
	"github.com/rs/zerolog"
)

// Scheduler : fires a scheduled cycle every period, each one in its own goroutine
type Scheduler struct {
	runner migrate.Runner
	period time.Duration
	log    zerolog.Logger
	wg     sync.WaitGroup
}

func New(runner migrate.Runner, period time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		period: period,
		log:    log.With().Str("component", "scheduler").Logger(),
	}
}

// Run : fires immediately then on every tick until ctx is done, then waits
// for the cycles still running
func (s *Scheduler) Run(ctx context.Context) error {
	if s.period <= 0 {
		return errors.New("migration period must be positive")
	}
	// cycles in flight are allowed to finish after shutdown starts
	cycleCtx := context.WithoutCancel(ctx)

	s.log.Info().Dur("period", s.period).Msg("scheduler started")
	s.fire(cycleCtx)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopping, waiting for running cycles")
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.fire(cycleCtx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// failures were already logged and handled by the runner
		_, _ = s.runner.RunCycle(ctx, migrate.TriggerScheduled)
	}()
}
