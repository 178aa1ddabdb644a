package main

import (
	"github.com/baderkha/events-migrator/pkg/migrate/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const serviceName = "events-migrator"

var (
	// Default values may be set at compile time.
	version   = "0.1.0"
	buildDate = "unknown"
)

type rootFlags struct {
	configPath  string
	mappingPath string
	envPath     string
	logLevel    string
}

var flags rootFlags

var rootCmd = &cobra.Command{
	Use:   "migrator",
	Short: "Periodically moves event rows from a source database to a target database",
	Long: `Periodically moves event rows from a source database to a target database.
Each transfer removes the rows from the source and inserts them into the target
in one unit, then appends its row count and duration to the migration log.`,
	SilenceUsage: true,
}

func init() {
	cobra.EnableCommandSorting = false
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", config.DefaultConfigFile, "migrator configuration file")
	rootCmd.PersistentFlags().StringVarP(&flags.mappingPath, "schema", "s", config.DefaultMappingFile, "source to target column mapping file")
	rootCmd.PersistentFlags().StringVar(&flags.envPath, "env-file", config.DefaultEnvFile, "optional dotenv file used to expand ${VAR} references")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "overrides log.level from the configuration")
}

func loadConfig(fs afero.Fs) (*config.Config, error) {
	cfg, err := config.NewLoader(fs).Load(flags.configPath, flags.mappingPath, flags.envPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	return cfg, nil
}
