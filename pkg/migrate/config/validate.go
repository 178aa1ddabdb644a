package config

import (
	"errors"
	"fmt"

	"github.com/baderkha/events-migrator/pkg/migrate/config/storecfg"
	"github.com/baderkha/events-migrator/pkg/migrate/dialect"
	"github.com/hashicorp/go-multierror"
)

// ApplyDefaults : fills every optional setting left empty
func (c *Config) ApplyDefaults() {
	c.SourceConfig.ApplyDefaults(storecfg.Postgres)
	c.Target.ApplyDefaults(storecfg.MariaDB)
	if c.LogFormat == "" {
		c.LogFormat = LogFormatNDJSON
	}
	if c.BatchRecordSize <= 0 {
		c.BatchRecordSize = 1000
	}
	if c.ConnectRetrySeconds <= 0 {
		c.ConnectRetrySeconds = 3
	}
	if c.OnTransferFailure == "" {
		c.OnTransferFailure = FailureContinue
	}
	if c.TransferRetry.BackoffSeconds <= 0 {
		c.TransferRetry.BackoffSeconds = 5
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = "0.0.0.0"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 5000
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Archive.MaxRetry <= 0 {
		c.Archive.MaxRetry = 3
	}
}

// Validate : every problem of the main document, aggregated
func (c *Config) Validate() error {
	var errs error
	add := func(err error) {
		errs = multierror.Append(errs, err)
	}
	if c.MigrationPeriod <= 0 {
		add(errors.New("migration_period must be a positive number of seconds"))
	}
	if c.LogFileName == "" {
		add(errors.New("log_file_name is required"))
	}
	if c.LogFormat != LogFormatLegacy && c.LogFormat != LogFormatNDJSON {
		add(fmt.Errorf("log_format must be %q or %q, got %q", LogFormatLegacy, LogFormatNDJSON, c.LogFormat))
	}
	if c.OnTransferFailure != FailureContinue && c.OnTransferFailure != FailureExit {
		add(fmt.Errorf("on_transfer_failure must be %q or %q, got %q", FailureContinue, FailureExit, c.OnTransferFailure))
	}
	if c.TransferRetry.Attempts < 0 {
		add(errors.New("transfer_retry.attempts cannot be negative"))
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		add(fmt.Errorf("http.port %d is out of range", c.HTTP.Port))
	}
	if err := c.SourceConfig.Validate("source_table_credentials"); err != nil {
		add(err)
	} else if ep, err := c.SourceConfig.Resolve(); err != nil {
		add(fmt.Errorf("source_table_credentials: %w", err))
	} else if _, err := dialect.For(ep.Kind); err != nil {
		add(fmt.Errorf("source_table_credentials: %w", err))
	} else if !ep.Kind.CanExtract() {
		add(fmt.Errorf("source_table_credentials: %s : %w", ep.Kind, dialect.ErrNoExtraction))
	}
	if err := c.Target.Validate("target_table_credentials"); err != nil {
		add(err)
	} else if ep, err := c.Target.Resolve(); err != nil {
		add(fmt.Errorf("target_table_credentials: %w", err))
	} else if _, err := dialect.For(ep.Kind); err != nil {
		add(fmt.Errorf("target_table_credentials: %w", err))
	}
	return errs
}
