package config

import (
	"time"

	"github.com/baderkha/events-migrator/pkg/migrate/config/storecfg"
	"github.com/baderkha/events-migrator/pkg/migrate/table/colmap"
)

// FailurePolicy : what a failed transfer does to the process
type FailurePolicy string

const (
	// FailureContinue : keep the service and the scheduler running
	FailureContinue FailurePolicy = "continue"
	// FailureExit : terminate the process once the source has been rolled back
	FailureExit FailurePolicy = "exit"
)

// Log formats accepted by log_format
const (
	LogFormatLegacy = "legacy"
	LogFormatNDJSON = "ndjson"
)

// Config : configuration for the migrator process
type Config struct {
	MigrationPeriod     int                  `yaml:"migration_period"`
	LogFileName         string               `yaml:"log_file_name"`
	LogFormat           string               `yaml:"log_format"`
	SourceConfig        storecfg.Credentials `yaml:"source_table_credentials"`
	Target              storecfg.Credentials `yaml:"target_table_credentials"`
	BatchRecordSize     int                  `yaml:"max_batch_record_size"`
	ConnectRetrySeconds int                  `yaml:"connect_retry_seconds"`
	ExclusiveCycles     bool                 `yaml:"exclusive_cycles"`
	OnTransferFailure   FailurePolicy        `yaml:"on_transfer_failure"`
	TransferRetry       RetryConfig          `yaml:"transfer_retry"`
	StateDB             string               `yaml:"state_db"`
	HTTP                HTTPConfig           `yaml:"http"`
	Log                 LogConfig            `yaml:"log"`
	Archive             ArchiveConfig        `yaml:"archive"`

	// SchemaMapping is loaded from the mapping file, never from the main document
	SchemaMapping *colmap.SchemaMap `yaml:"-"`
}

// RetryConfig : extra attempts of a failed transfer within the same cycle
type RetryConfig struct {
	Attempts       int `yaml:"attempts"`
	BackoffSeconds int `yaml:"backoff_seconds"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ArchiveConfig : optional s3 copy of the migration log, off when Bucket is empty
type ArchiveConfig struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	MaxRetry int    `yaml:"max_retry"`
}

// Enabled : whether an archive target is configured
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

func (c *Config) Period() time.Duration {
	return time.Duration(c.MigrationPeriod) * time.Second
}

func (c *Config) ConnectRetry() time.Duration {
	return time.Duration(c.ConnectRetrySeconds) * time.Second
}

func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.TransferRetry.BackoffSeconds) * time.Second
}

// Redacted : copy without secrets, for printing
func (c Config) Redacted() Config {
	c.SourceConfig = c.SourceConfig.Redacted()
	c.Target = c.Target.Redacted()
	return c
}
