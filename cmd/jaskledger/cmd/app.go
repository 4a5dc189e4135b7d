package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jask/jaskledger/internal/config"
	"github.com/jask/jaskledger/internal/database"
	"github.com/jask/jaskledger/internal/database/repository"
	"github.com/jask/jaskledger/internal/ledger"
	"github.com/jask/jaskledger/internal/matcher"
	"github.com/jask/jaskledger/internal/prefs"
	"github.com/jask/jaskledger/internal/service"
)

// app holds the services wired over one database handle.
type app struct {
	cfg          config.Config
	db           *sql.DB
	accounts     *service.AccountService
	transactions *service.TransactionService
	balances     *service.BalanceService
	reconciler   *service.Reconciler
	ingest       *service.IngestService
	maintenance  *service.MaintenanceService
}

// openApp migrates the database to the latest schema, opens it and builds
// every service from cfg.
func openApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunEmbeddedMigrations(cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.Database.Path, database.Options{
		MaxOpenConns:  cfg.Database.MaxOpenConns,
		BusyTimeoutMS: cfg.Database.BusyTimeoutMS,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	tol, err := cfg.Reconcile.Tolerance()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	rules, err := categoryRules(cfg.Ledger.CategoryRules)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	accounts := &service.AccountService{DB: db, DefaultCurrency: cfg.Ledger.DefaultCurrency, Logger: logger}
	reconciler := &service.Reconciler{
		DB:      db,
		Options: matcher.Options{AmountTolerance: tol, DateToleranceDays: cfg.Reconcile.DateToleranceDays},
		Workers: cfg.Reconcile.Workers,
		Logger:  logger,
	}
	return &app{
		cfg:          cfg,
		db:           db,
		accounts:     accounts,
		transactions: &service.TransactionService{DB: db, Accounts: accounts, Logger: logger},
		balances:     &service.BalanceService{DB: db},
		reconciler:   reconciler,
		ingest: &service.IngestService{
			DB:               db,
			Accounts:         accounts,
			Categorizer:      &service.Categorizer{Rules: rules, Accounts: accounts},
			Reconciler:       reconciler,
			AutoConfirmExact: cfg.Reconcile.AutoConfirmExact,
			Logger:           logger,
		},
		maintenance: &service.MaintenanceService{DB: db, Accounts: accounts, Logger: logger},
	}, nil
}

func (a *app) Close() error { return a.db.Close() }

// categoryRules loads the rules file named in config, falling back to the
// per-user default location and then to the built-in rules.
func categoryRules(path string) (prefs.CategoryRules, error) {
	if path == "" {
		p, err := prefs.DefaultRulesPath()
		if err != nil {
			return prefs.DefaultCategoryRules(), nil
		}
		path = p
	}
	rules, err := prefs.LoadCategoryRules(path)
	if err != nil {
		return prefs.CategoryRules{}, fmt.Errorf("category rules: %w", err)
	}
	return rules, nil
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

// resolveAccount finds an account by full path. Inactive accounts are only
// considered when includeInactive is set.
func (a *app) resolveAccount(ctx context.Context, path string, includeInactive bool) (ledger.Account, error) {
	if !includeInactive {
		return a.accounts.GetByPath(ctx, path)
	}
	norm, err := ledger.NormalizePath(path)
	if err != nil {
		return ledger.Account{}, err
	}
	all, err := a.accounts.ListAccounts(ctx, repository.AccountFilters{PathPrefix: norm, IncludeInactive: true})
	if err != nil {
		return ledger.Account{}, err
	}
	// prefer the active one when an inactive account shares the path
	var found *ledger.Account
	for i := range all {
		if all[i].FullPath != norm {
			continue
		}
		if found == nil || all[i].Active {
			found = &all[i]
		}
	}
	if found == nil {
		return ledger.Account{}, &ledger.NotFoundError{Kind: "account", ID: norm}
	}
	return *found, nil
}

func parseDateFlag(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return ledger.Day(fallback), nil
	}
	d, err := ledger.ParseDay(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}
