// package connection
//
// opens the source and target stores, waiting for them to come up
package connection

import (
	"context"
	"database/sql"
	"time"

	"github.com/baderkha/events-migrator/pkg/migrate/config/storecfg"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultBackoff : wait between two connection attempts
const DefaultBackoff = 3 * time.Second

// Dialer : one connection attempt, the handle must be usable when err is nil
type Dialer func(ctx context.Context) (*sql.DB, error)

// Supervisor : connects to one store, retrying until it is reachable
type Supervisor struct {
	Role    string
	Kind    storecfg.Kind
	dial    Dialer
	backoff time.Duration
	log     zerolog.Logger
}

// NewSupervisor : supervisor dialing the store described by creds
func NewSupervisor(role string, creds storecfg.Credentials, backoff time.Duration, log zerolog.Logger) *Supervisor {
	s := NewSupervisorWithDialer(role, creds.Kind, nil, backoff, log)
	s.dial = func(ctx context.Context) (*sql.DB, error) {
		db, kind, err := Open(&creds, s.log)
		if err != nil {
			return nil, err
		}
		s.Kind = kind
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}
	return s
}

// NewSupervisorWithDialer : supervisor around a custom dialer
func NewSupervisorWithDialer(role string, kind storecfg.Kind, dial Dialer, backoff time.Duration, log zerolog.Logger) *Supervisor {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &Supervisor{
		Role:    role,
		Kind:    kind,
		dial:    dial,
		backoff: backoff,
		log:     log.With().Str("store", role).Logger(),
	}
}

// Connect : blocks until the store answers. The only error is ctx being done.
func (s *Supervisor) Connect(ctx context.Context) (*sql.DB, error) {
	for attempt := 1; ; attempt++ {
		db, err := s.dial(ctx)
		if err == nil {
			s.log.Info().Int("attempt", attempt).Msgf("connected to %s", s.Kind)
			return db, nil
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", s.backoff).
			Msg("database does not seem to be ready yet")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.backoff):
		}
	}
}

// ConnectPair : connects source and target concurrently, either may come up last
func ConnectPair(ctx context.Context, source *Supervisor, target *Supervisor) (*sql.DB, *sql.DB, error) {
	var (
		src, tgt *sql.DB
		wg, gctx = errgroup.WithContext(ctx)
	)
	wg.Go(func() (err error) {
		src, err = source.Connect(gctx)
		return err
	})
	wg.Go(func() (err error) {
		tgt, err = target.Connect(gctx)
		return err
	})
	if err := wg.Wait(); err != nil {
		for _, db := range []*sql.DB{src, tgt} {
			if db != nil {
				_ = db.Close()
			}
		}
		return nil, nil, err
	}
	return src, tgt, nil
}
