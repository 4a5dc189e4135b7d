package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jask/jaskledger/internal/database"
	"github.com/jask/jaskledger/internal/testdata"
)

var migrateDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply every pending schema migration to the configured database.

Migrations compiled into the binary are used unless --dir points at a
directory of *.up.sql / *.down.sql files.

Example:
  jaskledger migrate
  jaskledger migrate --dir internal/database/migrations`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Database.Path
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("mkdir db dir: %w", err)
		}
		var err error
		if migrateDir != "" {
			err = database.RunMigrations(path, migrateDir)
		} else {
			err = database.RunEmbeddedMigrations(path)
		}
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		version, dirty, err := database.SchemaVersion(path)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", "path", path, "version", version, "dirty", dirty)
		fmt.Fprintf(cmd.OutOrStdout(), "%s at schema version %d\n", path, version)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the default chart of accounts",
	Long: `Create the default equity, income and expense accounts. Running it
again changes nothing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			accounts, err := a.maintenance.SeedDefaults(ctx)
			if err != nil {
				return err
			}
			for _, acct := range accounts {
				fmt.Fprintln(cmd.OutOrStdout(), acct.FullPath)
			}
			return nil
		})
	},
}

var demoDate string

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Load a demo household with a cross-source duplicate",
	Long: `Load a demo household: an opening balance, a month of bank activity
and a card feed that repeats one bank purchase. Duplicate detection runs
after each import, so 'duplicates list' has something to review.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		today, err := parseDateFlag(demoDate, time.Now())
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			res, err := testdata.Seed(ctx, testdata.Services{
				Accounts:     a.accounts,
				Transactions: a.transactions,
				Ingest:       a.ingest,
				Maintenance:  a.maintenance,
			}, today)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printTitle(out, "Demo household loaded")
			for _, batch := range []struct {
				name string
				id   string
				n    int
			}{
				{"bank", res.BankBatch.BatchID, res.BankBatch.Imported},
				{"card", res.FeedBatch.BatchID, res.FeedBatch.Imported},
			} {
				fmt.Fprintf(out, "%-5s batch %s: %d transactions\n", batch.name, shortID(batch.id), batch.n)
			}
			if d := res.FeedBatch.Detection; d != nil {
				fmt.Fprintf(out, "duplicates: %d new, %d auto-confirmed\n", d.Created, d.AutoConfirmed)
			}
			return nil
		})
	},
}

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all ledger data",
	Long: `Delete every account, transaction, match and import batch. The schema
is kept. Requires --yes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			return errors.New("reset deletes all ledger data; pass --yes to confirm")
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.maintenance.Reset(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ledger reset")
			return nil
		})
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDir, "dir", "", "directory of migration files (default: embedded)")
	demoCmd.Flags().StringVar(&demoDate, "today", "", "date the demo is built around, YYYY-MM-DD (default: today)")
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "confirm deleting all data")
}
