// package api
//
// http control surface of the migrator: manual triggers, the migration log,
// cycle state and a live stream of new log entries
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/baderkha/events-migrator/pkg/migrate"
	"github.com/baderkha/events-migrator/pkg/migrate/archive"
	"github.com/baderkha/events-migrator/pkg/migrate/state"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const (
	urlStartMigration   = "/start_migration"
	urlGetMigrations    = "/get_migrations"
	urlHealth           = "/health"
	urlCycles           = "/cycles"
	urlArchive          = "/archive_migrations"
	urlMigrationsStream = "/ws/migrations"
)

// LogReader : read side of the migration log
type LogReader interface {
	ReadAll() ([]string, error)
}

// CycleLister : read side of the cycle state
type CycleLister interface {
	RecentCycles(limit int) ([]*state.CycleLog, error)
}

// Deps : what the handlers need, Archiver and Stream are optional
type Deps struct {
	Runner   migrate.Runner
	Log      LogReader
	Cycles   CycleLister
	Archiver archive.Archiver
	Stream   *LogStream
	Logger   zerolog.Logger
}

// Server : the http server plus the background work its handlers started
type Server struct {
	srv   *http.Server
	log   zerolog.Logger
	tasks *sync.WaitGroup
	addr  net.Addr
}

// NewRouter : routes of the control surface, tasks tracks work started in the background
func NewRouter(d Deps, tasks *sync.WaitGroup) *mux.Router {
	r := mux.NewRouter()
	r.Path(urlStartMigration).Methods(http.MethodGet, http.MethodPost).HandlerFunc(GetHandlerStartMigration(d.Logger, d.Runner, tasks))
	r.Path(urlGetMigrations).Methods(http.MethodGet).HandlerFunc(GetHandlerGetMigrations(d.Logger, d.Log))
	r.Path(urlHealth).HandlerFunc(GetHandlerHealth(d.Logger))
	r.Path(urlCycles).Methods(http.MethodGet).HandlerFunc(GetHandlerCycles(d.Logger, d.Cycles))
	r.Path(urlArchive).Methods(http.MethodGet, http.MethodPost).HandlerFunc(GetHandlerArchive(d.Logger, d.Archiver, tasks))
	if d.Stream != nil {
		r.Path(urlMigrationsStream).Handler(d.Stream)
	}
	return r
}

func NewServer(address string, port int, d Deps) *Server {
	tasks := &sync.WaitGroup{}
	return &Server{
		srv: &http.Server{
			Addr:         net.JoinHostPort(address, fmt.Sprint(port)),
			WriteTimeout: time.Second * 15,
			ReadTimeout:  time.Second * 15,
			IdleTimeout:  time.Second * 60,
			Handler:      NewRouter(d, tasks),
		},
		log:   d.Logger,
		tasks: tasks,
	}
}

// Start : binds the listener and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s : %w", s.srv.Addr, err)
	}
	s.addr = ln.Addr()
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("http server stopped")
		}
	}()
	s.log.Info().Msgf("Listening on http://%s", s.addr)
	return nil
}

// Addr : bound address, nil before Start
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Shutdown : stops accepting requests then waits for the cycles and uploads
// the handlers started
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down web server...")
	err := s.srv.Shutdown(ctx)
	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}
