package migrate

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/baderkha/events-migrator/pkg/migrate/config"
	"github.com/baderkha/events-migrator/pkg/migrate/state"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
)

// Trigger : what started a cycle
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// Run : identity of one cycle
type Run struct {
	ID      string
	Trigger Trigger
}

func NewRun(trigger Trigger) Run {
	return Run{ID: uuid.Must(uuid.NewV4()).String(), Trigger: trigger}
}

// Transferer : performs a single transfer
type Transferer interface {
	Transfer(ctx context.Context, run Run) (Result, error)
}

// Runner : runs whole cycles, used by the scheduler and the http surface
type Runner interface {
	RunCycle(ctx context.Context, trigger Trigger) (Result, error)
}

type MigratorOptions struct {
	// Exclusive : at most one cycle in flight, later ones wait their turn
	Exclusive     bool
	RetryAttempts int
	RetryBackoff  time.Duration
	OnFailure     config.FailurePolicy
	// Exit : process termination under FailureExit, os.Exit when nil
	Exit func(code int)
}

// Migrator : wraps transfers with retries, cycle bookkeeping and the failure policy
type Migrator struct {
	engine  Transferer
	state   state.Manager
	opts    MigratorOptions
	log     zerolog.Logger
	mu      sync.Mutex
	sleep   func(ctx context.Context, d time.Duration) error
	running sync.WaitGroup
}

func NewMigrator(engine Transferer, st state.Manager, opts MigratorOptions, log zerolog.Logger) *Migrator {
	if st == nil {
		st = state.Nop{}
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	if opts.OnFailure == "" {
		opts.OnFailure = config.FailureContinue
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	return &Migrator{
		engine: engine,
		state:  st,
		opts:   opts,
		log:    log,
		sleep:  sleepCtx,
	}
}

// RunCycle : one transfer, retried on failure as configured. The returned error
// is the last attempt's.
func (m *Migrator) RunCycle(ctx context.Context, trigger Trigger) (Result, error) {
	m.running.Add(1)
	defer m.running.Done()
	if m.opts.Exclusive {
		m.mu.Lock()
		defer m.mu.Unlock()
	}

	run := NewRun(trigger)
	log := m.log.With().Str("run_id", run.ID).Str("trigger", string(trigger)).Logger()
	if err := m.state.InitCycleLog(run.ID, string(trigger)); err != nil {
		log.Warn().Err(err).Msg("could not record cycle start")
	}

	var (
		res Result
		err error
	)
	for attempt := 0; attempt <= m.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			log.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", m.opts.RetryBackoff).Msg("retrying transfer")
			if sleepErr := m.sleep(ctx, m.opts.RetryBackoff); sleepErr != nil {
				break
			}
		}
		res, err = m.engine.Transfer(ctx, run)
		if err == nil {
			if stErr := m.state.PassedCycle(run.ID, res.RowCount, res.Elapsed); stErr != nil {
				log.Warn().Err(stErr).Msg("could not record cycle success")
			}
			return res, nil
		}
		var te *TransferError
		if errors.As(err, &te) && !te.Retryable() {
			break
		}
	}

	if stErr := m.state.FailedCycle(run.ID, res.RowCount, err); stErr != nil {
		log.Warn().Err(stErr).Msg("could not record cycle failure")
	}
	log.Error().Err(err).Msg("EXCEPTION ROLLED BACK")
	if m.opts.OnFailure == config.FailureExit {
		log.Error().Msg("exiting on transfer failure")
		m.opts.Exit(1)
	}
	return res, err
}

// Wait : blocks until the cycles in flight are done
func (m *Migrator) Wait() {
	m.running.Wait()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
