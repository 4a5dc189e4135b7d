package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jask/jaskledger/internal/service"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import statements",
}

var (
	importTarget string
	importSource string
)

var importCSVCmd = &cobra.Command{
	Use:   "csv FILE",
	Short: "Import a CSV statement into an account",
	Long: `Import a CSV statement. The header must name date, description and
amount columns; category, category_parent, account and reference are
optional. Positive amounts are money into the target account.

Each row becomes a transaction between the target account and an account
chosen by the category rules. Rows that cannot be posted are reported and
skipped. A file that was already imported is refused. Duplicate detection
runs over the new batch when the import finishes.

Example:
  jaskledger import csv march.csv --target Assets:Bank:Checking --source bank`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			res, err := a.ingest.ImportCSV(ctx, args[0], importTarget, importSource)
			if err != nil {
				return err
			}
			printImport(cmd.OutOrStdout(), res)
			return nil
		})
	},
}

func printImport(out io.Writer, res service.ImportResult) {
	printTitle(out, "Batch %s", shortID(res.BatchID))
	fmt.Fprintf(out, "imported: %d\n", res.Imported)
	if len(res.Errors) > 0 {
		fmt.Fprintf(out, "skipped:  %d\n", len(res.Errors))
		for _, err := range res.Errors {
			fmt.Fprintf(out, "  %s\n", errorStyle.Render(err.Error()))
		}
	}
	switch {
	case res.DetectionErr != nil:
		fmt.Fprintf(out, "duplicate detection failed: %s\n", errorStyle.Render(res.DetectionErr.Error()))
	case res.Detection != nil:
		printDetection(out, *res.Detection)
	}
}

func init() {
	importCSVCmd.Flags().StringVar(&importTarget, "target", "", "account the statement belongs to")
	importCSVCmd.Flags().StringVar(&importSource, "source", "csv", "import source name, e.g. the bank")
	_ = importCSVCmd.MarkFlagRequired("target")

	importCmd.AddCommand(importCSVCmd)
}
