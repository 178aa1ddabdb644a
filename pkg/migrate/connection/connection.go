package connection

import (
	"database/sql"
	"fmt"

	"github.com/baderkha/events-migrator/pkg/migrate/config/storecfg"
	"github.com/rs/zerolog"
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/simukti/sqldb-logger/logadapter/zerologadapter"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"
	_ "github.com/snowflakedb/gosnowflake"
)

// AddLogger : wraps db so every statement goes through the zerolog logger at debug level
func AddLogger(db *sql.DB, dsn string, driverName string, log zerolog.Logger) *sql.DB {
	loggerAdapter := zerologadapter.New(log.With().Str("driver", driverName).Logger())
	wrapped := sqldblogger.OpenDriver(dsn, db.Driver(), loggerAdapter,
		sqldblogger.WithWrapResult(false),
		sqldblogger.WithDurationFieldname("dur_ms"),
		sqldblogger.WithDurationUnit(sqldblogger.DurationMillisecond),
		sqldblogger.WithSQLQueryAsMessage(true),
		sqldblogger.WithSQLQueryFieldname("sql_query"),
	)
	_ = db.Close()
	return wrapped
}

// Open : handle for the store, no connection is made until first use
func Open(creds *storecfg.Credentials, log zerolog.Logger) (*sql.DB, storecfg.Kind, error) {
	ep, err := creds.Resolve()
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open(ep.Driver, ep.DSN)
	if err != nil {
		return nil, "", fmt.Errorf("%s : could not open %s handle due to : %w", ep.Kind, ep.Driver, err)
	}
	if creds.QueryLogging {
		db = AddLogger(db, ep.DSN, ep.Driver, log)
	}
	if creds.MaxOpenConns > 0 {
		db.SetMaxOpenConns(creds.MaxOpenConns)
		db.SetMaxIdleConns(creds.MaxOpenConns)
	}
	return db, ep.Kind, nil
}
