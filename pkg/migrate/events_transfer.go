package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/baderkha/events-migrator/pkg/migrate/config/storecfg"
	"github.com/baderkha/events-migrator/pkg/migrate/dialect"
	"github.com/baderkha/events-migrator/pkg/migrate/migrationlog"
	"github.com/baderkha/events-migrator/pkg/migrate/table/colmap"
	"github.com/rs/zerolog"
)

const (
	logAppendAttempts = 3
	logAppendBackoff  = 100 * time.Millisecond
)

// Recorder : where completed transfers are written
type Recorder interface {
	Append(rec migrationlog.Record) error
}

// Result : outcome of one transfer
type Result struct {
	Run
	RowCount int
	Elapsed  time.Duration
}

// EventTransferConfig : dependencies of an EventTransfer, owned by the caller
type EventTransferConfig struct {
	Source          *sql.DB
	Target          *sql.DB
	SourceKind      storecfg.Kind
	TargetKind      storecfg.Kind
	SourceTable     string
	TargetTable     string
	Mapping         *colmap.SchemaMap
	BatchRecordSize int
	Recorder        Recorder
	Log             zerolog.Logger
}

// EventTransfer : moves every row of the source table into the target table
type EventTransfer struct {
	source        *sql.DB
	target        *sql.DB
	targetDialect dialect.Dialect
	extraction    dialect.Extraction
	targetTable   string
	mapping       *colmap.SchemaMap
	rowsPerInsert int
	recorder      Recorder
	log           zerolog.Logger
	now           func() time.Time
}

func NewEventTransfer(cfg EventTransferConfig) (*EventTransfer, error) {
	if cfg.Mapping == nil || cfg.Mapping.Arity() == 0 {
		return nil, colmap.ErrEmpty
	}
	if cfg.Source == nil || cfg.Target == nil {
		return nil, errors.New("source and target handles are required")
	}
	if cfg.Recorder == nil {
		return nil, errors.New("a migration log is required")
	}
	srcDialect, err := dialect.For(cfg.SourceKind)
	if err != nil {
		return nil, err
	}
	extraction, err := srcDialect.Extraction(cfg.SourceTable, cfg.Mapping.SourceColumns())
	if err != nil {
		return nil, err
	}
	tgtDialect, err := dialect.For(cfg.TargetKind)
	if err != nil {
		return nil, err
	}
	return &EventTransfer{
		source:        cfg.Source,
		target:        cfg.Target,
		targetDialect: tgtDialect,
		extraction:    extraction,
		targetTable:   cfg.TargetTable,
		mapping:       cfg.Mapping,
		rowsPerInsert: tgtDialect.RowsPerInsert(cfg.Mapping.Arity(), cfg.BatchRecordSize),
		recorder:      cfg.Recorder,
		log:           cfg.Log,
		now:           time.Now,
	}, nil
}

// Transfer : removes the source rows, inserts them into the target, commits the
// target then the source, and records the transfer in the migration log.
// On failure the source is rolled back and a *TransferError is returned.
func (e *EventTransfer) Transfer(ctx context.Context, run Run) (Result, error) {
	var (
		start = e.now()
		res   = Result{Run: run}
		log   = e.log.With().Str("run_id", run.ID).Str("trigger", string(run.Trigger)).Logger()
	)
	srcTx, err := e.source.BeginTx(ctx, e.extraction.TxOptions)
	if err != nil {
		return res, &TransferError{Phase: PhaseExtract, Err: fmt.Errorf("begin source transaction: %w", err)}
	}
	batch, err := e.extract(ctx, srcTx)
	if err != nil {
		_ = srcTx.Rollback()
		return res, &TransferError{Phase: PhaseExtract, Err: err}
	}
	res.RowCount = len(batch)

	if len(batch) > 0 {
		if phase, err := e.load(ctx, batch); err != nil {
			if rbErr := srcTx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Msg("source rollback failed")
				err = errors.Join(err, fmt.Errorf("source rollback: %w", rbErr))
			}
			log.Error().Err(err).Int("rows", len(batch)).Str("phase", string(phase)).
				Msg("transfer rolled back, rows restored on source")
			return res, &TransferError{Phase: phase, RowCount: len(batch), Err: err}
		}
	}
	if err := srcTx.Commit(); err != nil {
		if len(batch) > 0 {
			log.Error().Err(err).Int("rows", len(batch)).
				Msg("source commit failed after target commit, target holds rows the source still has")
		}
		return res, &TransferError{Phase: PhaseSourceCommit, RowCount: len(batch), Err: fmt.Errorf("commit source: %w", err)}
	}

	res.Elapsed = e.now().Sub(start)
	log.Info().Int("rows", res.RowCount).Dur("elapsed", res.Elapsed).Msg("transfer complete")
	e.record(ctx, log, res)
	return res, nil
}

func (e *EventTransfer) extract(ctx context.Context, tx *sql.Tx) ([][]interface{}, error) {
	rows, err := tx.QueryContext(ctx, e.extraction.Query)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	defer rows.Close()
	var (
		arity = e.mapping.Arity()
		batch = [][]interface{}{}
	)
	for rows.Next() {
		row := make([]interface{}, arity)
		dest := make([]interface{}, arity)
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("extract: scan row %d: %w", len(batch)+1, err)
		}
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	if !e.extraction.TwoPhase() {
		return batch, nil
	}
	r, err := tx.ExecContext(ctx, e.extraction.Delete)
	if err != nil {
		return nil, fmt.Errorf("extract: delete: %w", err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("extract: delete: %w", err)
	}
	if int(n) != len(batch) {
		return nil, fmt.Errorf("extract: deleted %d rows but read %d, source changed during extraction", n, len(batch))
	}
	return batch, nil
}

// load : writes batch in its own target transaction, phase tells which step failed
func (e *EventTransfer) load(ctx context.Context, batch [][]interface{}) (Phase, error) {
	tx, err := e.target.BeginTx(ctx, nil)
	if err != nil {
		return PhaseInsert, fmt.Errorf("begin target transaction: %w", err)
	}
	cols := e.mapping.TargetColumns()
	for from := 0; from < len(batch); from += e.rowsPerInsert {
		to := min(from+e.rowsPerInsert, len(batch))
		chunk := batch[from:to]
		args := make([]interface{}, 0, len(chunk)*len(cols))
		for _, row := range chunk {
			args = append(args, row...)
		}
		if _, err := tx.ExecContext(ctx, e.targetDialect.InsertStatement(e.targetTable, cols, len(chunk)), args...); err != nil {
			_ = tx.Rollback()
			return PhaseInsert, fmt.Errorf("insert rows %d-%d: %w", from+1, to, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return PhaseTargetCommit, fmt.Errorf("commit target: %w", err)
	}
	return "", nil
}

// record : the data already moved, a log failure only warrants a warning
func (e *EventTransfer) record(ctx context.Context, log zerolog.Logger, res Result) {
	rec := migrationlog.Record{
		RunID:         res.ID,
		Trigger:       string(res.Trigger),
		Date:          e.now(),
		RowCount:      res.RowCount,
		ExecutionTime: res.Elapsed,
	}
	var err error
	for attempt := 1; attempt <= logAppendAttempts; attempt++ {
		if err = e.recorder.Append(rec); err == nil {
			return
		}
		if attempt < logAppendAttempts {
			if sleepErr := sleepCtx(ctx, time.Duration(attempt)*logAppendBackoff); sleepErr != nil {
				break
			}
		}
	}
	log.Warn().Err(err).Int("rows", res.RowCount).Msg("transfer committed but could not be written to the migration log")
}
