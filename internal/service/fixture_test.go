package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/jaskledger/internal/database/dbtest"
	"github.com/jask/jaskledger/internal/ledger"
	"github.com/jask/jaskledger/internal/matcher"
	"github.com/jask/jaskledger/internal/prefs"
)

type fixture struct {
	db       *sql.DB
	accounts *AccountService
	txs      *TransactionService
	balances *BalanceService
	rec      *Reconciler
	ingest   *IngestService
	maint    *MaintenanceService
}

func newFixture(t *testing.T) (*fixture, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	db, _ := dbtest.Open(t)
	accounts := &AccountService{DB: db, DefaultCurrency: "EUR"}
	rec := &Reconciler{DB: db, Options: matcher.DefaultOptions(), Workers: 4}
	f := &fixture{
		db:       db,
		accounts: accounts,
		txs:      &TransactionService{DB: db, Accounts: accounts},
		balances: &BalanceService{DB: db},
		rec:      rec,
		ingest: &IngestService{
			DB:          db,
			Accounts:    accounts,
			Categorizer: &Categorizer{Rules: prefs.DefaultCategoryRules(), Accounts: accounts},
			Reconciler:  rec,
		},
		maint: &MaintenanceService{DB: db, Accounts: accounts},
	}
	return f, ctx
}

func (f *fixture) account(t *testing.T, ctx context.Context, path string, typ ledger.AccountType, sub ledger.AccountSubtype) ledger.Account {
	t.Helper()
	a, err := f.accounts.ResolveOrCreate(ctx, path, typ, sub, ledger.AccountAttrs{})
	require.NoError(t, err)
	return a
}

// post writes a two-entry transaction debiting debit and crediting credit.
func (f *fixture) post(t *testing.T, ctx context.Context, desc string, debit, credit ledger.Account, amount string, date time.Time, opts ...ledger.DraftOption) ledger.TransactionWithEntries {
	t.Helper()
	tx, err := f.txs.CreateTransaction(ctx, ledger.SimpleTransaction(desc, debit.ID, credit.ID, dec(amount), date, opts...))
	require.NoError(t, err)
	return tx
}

func (f *fixture) balance(t *testing.T, ctx context.Context, a ledger.Account) decimal.Decimal {
	t.Helper()
	bal, err := f.balances.Balance(ctx, a.ID, farFuture)
	require.NoError(t, err)
	return bal
}

func (f *fixture) count(t *testing.T, ctx context.Context, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

var (
	farFuture = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
	day0      = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}
