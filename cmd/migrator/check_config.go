package main

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var dumper = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Load and validate the configuration, then print it without secrets",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(afero.NewOsFs())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		redacted := cfg.Redacted()
		redacted.SchemaMapping = nil
		dumper.Fdump(out, redacted)
		fmt.Fprintln(out, "schema mapping:")
		for _, p := range cfg.SchemaMapping.Pairs() {
			fmt.Fprintf(out, "  %s -> %s\n", p.Source, p.Target)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}
