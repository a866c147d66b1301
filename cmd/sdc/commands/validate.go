package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/somali-nlp/somali-dialect-classifier/internal/silver"
)

// NewValidateSilverCommand creates the validate-silver command. It re-reads
// a partition end to end: manifest schema, part checksums, and every row
// against the record schema.
func NewValidateSilverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-silver <partition-dir>",
		Short: "Re-verify a written silver partition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := silver.ValidatePartition(args[0])
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.New(color.FgRed).Sprint("FAIL"), args[0])

				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d manifests, %d files, %d records\n",
				color.New(color.FgGreen).Sprint("OK"), args[0],
				report.Manifests, report.Files, report.Records)

			return nil
		},
	}
}
