package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baderkha/events-migrator/pkg/api"
	"github.com/baderkha/events-migrator/pkg/logging"
	"github.com/baderkha/events-migrator/pkg/migrate"
	"github.com/baderkha/events-migrator/pkg/migrate/archive"
	"github.com/baderkha/events-migrator/pkg/migrate/config"
	"github.com/baderkha/events-migrator/pkg/migrate/connection"
	"github.com/baderkha/events-migrator/pkg/migrate/migrationlog"
	"github.com/baderkha/events-migrator/pkg/migrate/schedule"
	"github.com/baderkha/events-migrator/pkg/migrate/state"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduled transfers and the http control surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(afero.NewOsFs())
		if err != nil {
			return err
		}
		log, err := logging.New(serviceName, cfg.Log.Level, logging.Format(cfg.Log.Format))
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func openState(cfg *config.Config) (state.Manager, error) {
	if cfg.StateDB == "" {
		return state.Nop{}, nil
	}
	return state.NewSqliteGormManager(cfg.StateDB)
}

// serve : runs until ctx is done, then drains the cycles in flight
func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	osFs := afero.NewOsFs()
	st, err := openState(cfg)
	if err != nil {
		return fmt.Errorf("state database : %w", err)
	}
	mlog, err := migrationlog.New(osFs, cfg.LogFileName, migrationlog.Format(cfg.LogFormat))
	if err != nil {
		return err
	}
	log.Info().Str("path", mlog.Path()).Str("format", string(mlog.Format())).Msg("migration log")

	source := connection.NewSupervisor("source", cfg.SourceConfig, cfg.ConnectRetry(), log)
	target := connection.NewSupervisor("target", cfg.Target, cfg.ConnectRetry(), log)
	src, tgt, err := connection.ConnectPair(ctx, source, target)
	if err != nil {
		if ctx.Err() != nil {
			log.Info().Msg("interrupted before the databases were reachable")
			return nil
		}
		return err
	}
	defer src.Close()
	defer tgt.Close()

	engine, err := migrate.NewEventTransfer(migrate.EventTransferConfig{
		Source:          src,
		Target:          tgt,
		SourceKind:      source.Kind,
		TargetKind:      target.Kind,
		SourceTable:     cfg.SourceConfig.Table,
		TargetTable:     cfg.Target.Table,
		Mapping:         cfg.SchemaMapping,
		BatchRecordSize: cfg.BatchRecordSize,
		Recorder:        mlog,
		Log:             log,
	})
	if err != nil {
		return err
	}
	migrator := migrate.NewMigrator(engine, st, migrate.MigratorOptions{
		Exclusive:     cfg.ExclusiveCycles,
		RetryAttempts: cfg.TransferRetry.Attempts,
		RetryBackoff:  cfg.RetryBackoff(),
		OnFailure:     cfg.OnTransferFailure,
		Exit: func(code int) {
			if err := st.OnShutDownEv(); err != nil {
				log.Warn().Err(err).Msg("could not mark running cycles aborted")
			}
			os.Exit(code)
		},
	}, log)

	var archiver archive.Archiver
	if cfg.Archive.Enabled() {
		a, err := archive.NewS3Archiver(cfg.Archive, osFs, mlog.Path(), log)
		if err != nil {
			return err
		}
		archiver = a
	}

	stream := api.NewLogStream(mlog.Path(), log)
	srv := api.NewServer(cfg.HTTP.Address, cfg.HTTP.Port, api.Deps{
		Runner:   migrator,
		Log:      mlog,
		Cycles:   st,
		Archiver: archiver,
		Stream:   stream,
		Logger:   log,
	})
	if err := srv.Start(); err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error {
		return schedule.New(migrator, cfg.Period(), log).Run(ctx)
	})
	g.Go(func() error {
		if err := stream.Run(ctx); err != nil {
			log.Warn().Err(err).Msg("migration log stream stopped")
		}
		return nil
	})

	<-ctx.Done()
	log.Info().Msg("Interrupt received. Stopping gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("web server did not shut down cleanly")
	}
	runErr := g.Wait()
	migrator.Wait()
	if err := st.OnShutDownEv(); err != nil {
		log.Warn().Err(err).Msg("could not mark running cycles aborted")
	}
	if archiver != nil {
		if _, err := archiver.Archive(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("migration log was not archived")
		}
	}
	return runErr
}
