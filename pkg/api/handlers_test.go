package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/baderkha/events-migrator/pkg/migrate"
	"github.com/baderkha/events-migrator/pkg/migrate/migrationlog"
	"github.com/baderkha/events-migrator/pkg/migrate/state"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

type fakeRunner struct {
	triggers chan migrate.Trigger
}

func (f *fakeRunner) RunCycle(ctx context.Context, trigger migrate.Trigger) (migrate.Result, error) {
	f.triggers <- trigger
	return migrate.Result{}, nil
}

type fakeCycles struct {
	limit int
	err   error
}

func (f *fakeCycles) RecentCycles(limit int) ([]*state.CycleLog, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []*state.CycleLog{{RunID: "r2", Status: state.Success}, {RunID: "r1", Status: state.Failed}}, nil
}

type brokenLog struct{}

func (brokenLog) ReadAll() ([]string, error) { return nil, errors.New("permission denied") }

type fakeArchiver struct {
	calls chan struct{}
}

func (f *fakeArchiver) Archive(context.Context) (string, error) {
	f.calls <- struct{}{}
	return "k", nil
}

var _ = Describe("control surface", func() {
	var (
		runner *fakeRunner
		cycles *fakeCycles
		mlog   *migrationlog.Log
		tasks  *sync.WaitGroup
		deps   Deps
	)

	serve := func(method, target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		NewRouter(deps, tasks).ServeHTTP(rec, httptest.NewRequest(method, target, nil))
		return rec
	}

	BeforeEach(func() {
		var err error
		runner = &fakeRunner{triggers: make(chan migrate.Trigger, 1)}
		cycles = &fakeCycles{}
		mlog, err = migrationlog.New(afero.NewMemMapFs(), "migrations.log", migrationlog.FormatNDJSON)
		Expect(err).ToNot(HaveOccurred())
		tasks = &sync.WaitGroup{}
		deps = Deps{Runner: runner, Log: mlog, Cycles: cycles, Logger: zerolog.Nop()}
	})

	AfterEach(func() {
		tasks.Wait()
	})

	Describe("GET /start_migration", func() {
		It("acknowledges and starts a manual cycle", func() {
			rec := serve(http.MethodGet, "/start_migration")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("Migration started"))
			Eventually(runner.triggers, time.Second).Should(Receive(Equal(migrate.TriggerManual)))
		})
	})

	Describe("GET /get_migrations", func() {
		It("reports an empty list when the log does not exist", func() {
			rec := serve(http.MethodGet, "/get_migrations")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("Migrations list is empty"))
		})

		It("hides read failures behind the same message", func() {
			deps.Log = brokenLog{}
			rec := serve(http.MethodGet, "/get_migrations")
			Expect(rec.Body.String()).To(Equal("Migrations list is empty"))
			Expect(rec.Body.String()).ToNot(ContainSubstring("permission"))
		})

		It("returns the raw entries in order", func() {
			at := time.Date(2026, 10, 19, 14, 5, 9, 0, time.UTC)
			Expect(mlog.Append(migrationlog.Record{RunID: "a", Date: at, RowCount: 3})).To(Succeed())
			Expect(mlog.Append(migrationlog.Record{RunID: "b", Date: at, RowCount: 0})).To(Succeed())

			rec := serve(http.MethodGet, "/get_migrations")
			Expect(rec.Code).To(Equal(http.StatusOK))
			var lines []string
			Expect(json.Unmarshal(rec.Body.Bytes(), &lines)).To(Succeed())
			Expect(lines).To(HaveLen(2))
			Expect(lines[0]).To(ContainSubstring(`"run_id":"a"`))
			Expect(lines[1]).To(ContainSubstring(`"run_id":"b"`))
		})
	})

	Describe("GET /health", func() {
		It("is ok", func() {
			rec := serve(http.MethodGet, "/health")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"status":"ok"}`))
		})
	})

	Describe("GET /cycles", func() {
		It("lists recent cycles with the default limit", func() {
			rec := serve(http.MethodGet, "/cycles")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(cycles.limit).To(Equal(defaultCycleLimit))
			var list []state.CycleLog
			Expect(json.Unmarshal(rec.Body.Bytes(), &list)).To(Succeed())
			Expect(list).To(HaveLen(2))
			Expect(list[0].RunID).To(Equal("r2"))
		})

		It("honours the limit parameter", func() {
			serve(http.MethodGet, "/cycles?limit=5")
			Expect(cycles.limit).To(Equal(5))
		})

		It("rejects a bad limit", func() {
			rec := serve(http.MethodGet, "/cycles?limit=zero")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("does not leak storage errors", func() {
			cycles.err = errors.New("database is locked")
			rec := serve(http.MethodGet, "/cycles")
			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(rec.Body.String()).ToNot(ContainSubstring("locked"))
		})
	})

	Describe("GET /archive_migrations", func() {
		It("is not found without an archive", func() {
			rec := serve(http.MethodGet, "/archive_migrations")
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("uploads in the background", func() {
			a := &fakeArchiver{calls: make(chan struct{}, 1)}
			deps.Archiver = a
			rec := serve(http.MethodGet, "/archive_migrations")
			Expect(rec.Code).To(Equal(http.StatusAccepted))
			Eventually(a.calls, time.Second).Should(Receive())
		})
	})

	Describe("Server", func() {
		It("serves on the bound address and shuts down", func() {
			srv := NewServer("127.0.0.1", 0, deps)
			Expect(srv.Start()).To(Succeed())

			resp, err := http.Get("http://" + srv.Addr().String() + "/health")
			Expect(err).ToNot(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			Expect(srv.Shutdown(ctx)).To(Succeed())
		})
	})
})
