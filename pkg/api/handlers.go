package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/baderkha/events-migrator/pkg/migrate"
	"github.com/baderkha/events-migrator/pkg/migrate/archive"
	"github.com/rs/zerolog"
)

const (
	msgMigrationStarted = "Migration started"
	msgMigrationsEmpty  = "Migrations list is empty"
	defaultCycleLimit   = 20
	maxCycleLimit       = 500
)

type ResponseStatus string

const (
	Okay  ResponseStatus = "ok"
	Error ResponseStatus = "error"
)

type ResponseSimple struct {
	Status  ResponseStatus `json:"status"`
	Message string         `json:"message,omitempty"`
}

func GetHandlerStartMigration(log zerolog.Logger, runner migrate.Runner, tasks *sync.WaitGroup) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks.Add(1)
		go func() {
			defer tasks.Done()
			// not tied to the request, the cycle outlives the response
			_, _ = runner.RunCycle(context.Background(), migrate.TriggerManual)
		}()
		log.Info().Str("remote", r.RemoteAddr).Msg("manual migration requested")
		respondText(log, w, http.StatusOK, msgMigrationStarted)
	}
}

// GetHandlerGetMigrations : raw log entries as a json array, or a plain message
// when there is nothing to show
func GetHandlerGetMigrations(log zerolog.Logger, reader LogReader) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		lines, err := reader.ReadAll()
		if err != nil {
			log.Warn().Err(err).Msg("could not read the migration log")
			respondText(log, w, http.StatusOK, msgMigrationsEmpty)
			return
		}
		if len(lines) == 0 {
			respondText(log, w, http.StatusOK, msgMigrationsEmpty)
			return
		}
		respond(log, w, http.StatusOK, lines)
	}
}

func GetHandlerHealth(log zerolog.Logger) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		respond(log, w, http.StatusOK, ResponseSimple{Status: Okay})
	}
}

// GetHandlerCycles : most recent cycles first, ?limit=n
func GetHandlerCycles(log zerolog.Logger, cycles CycleLister) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultCycleLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxCycleLimit {
				respond(log, w, http.StatusBadRequest, ResponseSimple{
					Status:  Error,
					Message: fmt.Sprintf("limit must be between 1 and %d", maxCycleLimit),
				})
				return
			}
			limit = n
		}
		list, err := cycles.RecentCycles(limit)
		if err != nil {
			log.Error().Err(err).Msg("could not list cycles")
			respond(log, w, http.StatusInternalServerError, ResponseSimple{Status: Error, Message: "cycle state unavailable"})
			return
		}
		respond(log, w, http.StatusOK, list)
	}
}

// GetHandlerArchive : uploads the migration log in the background
func GetHandlerArchive(log zerolog.Logger, archiver archive.Archiver, tasks *sync.WaitGroup) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if archiver == nil {
			respond(log, w, http.StatusNotFound, ResponseSimple{Status: Error, Message: "archive is not configured"})
			return
		}
		tasks.Add(1)
		go func() {
			defer tasks.Done()
			if _, err := archiver.Archive(context.Background()); err != nil && !errors.Is(err, archive.ErrNothingToArchive) {
				log.Error().Err(err).Msg("archive failed")
			}
		}()
		respond(log, w, http.StatusAccepted, ResponseSimple{Status: Okay, Message: "archive started"})
	}
}

func respond(log zerolog.Logger, w http.ResponseWriter, status int, i interface{}) {
	j, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("could not encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(j); err != nil {
		log.Debug().Err(err).Msg("could not write response")
	}
}

func respondText(log zerolog.Logger, w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := fmt.Fprint(w, msg); err != nil {
		log.Debug().Err(err).Msg("could not write response")
	}
}
