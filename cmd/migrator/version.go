package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), `%s
  Version:	%v
  Build date:	%v
`, serviceName, version, buildDate)
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
