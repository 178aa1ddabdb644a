package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Execute() prints the error.
		os.Exit(1)
	}
}
