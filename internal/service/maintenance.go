package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jask/jaskledger/internal/database"
	"github.com/jask/jaskledger/internal/database/repository"
	"github.com/jask/jaskledger/internal/ledger"
)

// MaintenanceService houses destructive ops actions surfaced through the CLI.
type MaintenanceService struct {
	DB       *sql.DB
	Accounts *AccountService
	Logger   *slog.Logger
}

// Reset wipes all ledger data. It keeps the schema intact so the app can
// continue running.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		// children before parents; self references are cut before the delete
		stmts := []string{
			"DELETE FROM transaction_matches",
			"DELETE FROM journal_entries",
			"UPDATE transactions SET merged_into_transaction_id = NULL",
			"DELETE FROM transactions",
			"DELETE FROM import_batches",
			"UPDATE accounts SET is_active = 0, parent_id = NULL",
			"DELETE FROM accounts",
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("reset: %s: %w", stmt, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	if _, err := s.DB.ExecContext(ctx, "VACUUM"); err != nil {
		logger(s.Logger).Warn("vacuum after reset failed", "error", err)
	}
	logger(s.Logger).Info("ledger reset")
	return nil
}

// DefaultAccount is an account every ledger starts with.
type DefaultAccount struct {
	Path    string
	Type    ledger.AccountType
	Subtype ledger.AccountSubtype
}

// DefaultChart is the baseline chart of accounts: somewhere to book opening
// balances and the fallbacks for uncategorized imports.
var DefaultChart = []DefaultAccount{
	{Path: "Equity:Opening Balances", Type: ledger.Equity, Subtype: ledger.OpeningBalance},
	{Path: "Equity:Uncategorized", Type: ledger.Equity, Subtype: ledger.Category},
	{Path: UncategorizedExpensePath, Type: ledger.Expense, Subtype: ledger.Category},
	{Path: UncategorizedIncomePath, Type: ledger.Income, Subtype: ledger.Category},
}

// SeedDefaults ensures the default chart exists. It is idempotent and safe
// to run on every startup.
func (s *MaintenanceService) SeedDefaults(ctx context.Context) ([]ledger.Account, error) {
	var out []ledger.Account
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		repos := repository.New(tx)
		for _, d := range DefaultChart {
			a, err := s.Accounts.resolveOrCreate(ctx, repos, d.Path, d.Type, d.Subtype, ledger.AccountAttrs{})
			if err != nil {
				return fmt.Errorf("seed %s: %w", d.Path, err)
			}
			out = append(out, a)
		}
		return nil
	})
	return out, err
}
