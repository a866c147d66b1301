// Package main provides the entry point for the sdc ingestion CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/somali-nlp/somali-dialect-classifier/cmd/sdc/commands"
	"github.com/somali-nlp/somali-dialect-classifier/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "sdc",
		Short: "Somali dialect classifier - text ingestion core",
		Long: `sdc acquires Somali text from public sources, cleans and filters it,
deduplicates it, and writes schema-validated silver parquet partitions.

Commands:
  ingest           Run one source's ingestion pipeline end to end
  validate-silver  Re-verify a written silver partition`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewIngestCommand())
	rootCmd.AddCommand(commands.NewValidateSilverCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(commands.ExitCodeFor(err))
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "sdc %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
