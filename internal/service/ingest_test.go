package service

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/jaskledger/internal/database/repository"
	"github.com/jask/jaskledger/internal/ledger"
	"github.com/jask/jaskledger/internal/prefs"
)

func writeCSV(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statement.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600))
	return path
}

func TestImportCSV(t *testing.T) {
	t.Parallel()
	f, ctx := newFixture(t)

	checking := f.account(t, ctx, "Assets:Bank:Checking", ledger.Asset, ledger.Checking)
	path := writeCSV(t,
		"Date,Description,Amount,Category,Reference",
		"2024-03-01,WOOLWORTHS 123,-45.67,Groceries,ext-1",
		"2024-03-02,SALARY ACME,\"+2,500.00\",,",
		"not-a-date,BROKEN,10.00,,",
		"2024-03-03,NOTHING,0,,",
		"3/03/2024,MYSTERY SHOP,-9.99,Mystery,",
	)

	res, err := f.ingest.ImportCSV(ctx, path, "Assets:Bank:Checking", "anz")
	require.NoError(t, err)
	require.Equal(t, 3, res.Imported)
	require.Len(t, res.Errors, 2)

	var rowErr *RowError
	require.True(t, errors.As(res.Errors[0], &rowErr))
	require.Equal(t, 4, rowErr.Line)
	require.True(t, ledger.HasIssue(res.Errors[0], ledger.CodeInvalidImportedDate))
	require.True(t, errors.As(res.Errors[1], &rowErr))
	require.Equal(t, 5, rowErr.Line)
	require.True(t, ledger.HasIssue(res.Errors[1], ledger.CodeInvalidImportedAmount))

	requireDec(t, "2444.34", f.balance(t, ctx, checking))

	groceries, err := f.accounts.GetByPath(ctx, "Expenses:Food:Groceries")
	require.NoError(t, err)
	require.Equal(t, ledger.Food, groceries.Subtype)
	requireDec(t, "45.67", f.balance(t, ctx, groceries))

	salary, err := f.accounts.GetByPath(ctx, "Income:Salary")
	require.NoError(t, err)
	requireDec(t, "-2500", f.balance(t, ctx, salary))

	uncategorized, err := f.accounts.GetByPath(ctx, UncategorizedExpensePath)
	require.NoError(t, err)
	requireDec(t, "9.99", f.balance(t, ctx, uncategorized))

	txs, err := f.txs.ListTransactions(ctx, repository.TransactionFilters{ImportBatchID: res.BatchID})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	for _, tx := range txs {
		require.Equal(t, "anz", *tx.ImportSource)
		if tx.Description == "WOOLWORTHS 123" {
			require.Equal(t, "ext-1", *tx.ExternalReference)
		}
	}

	batch, err := repository.NewBatchRepo(f.db).Get(ctx, res.BatchID)
	require.NoError(t, err)
	require.Equal(t, 3, batch.TransactionCount)
	require.Equal(t, "statement.csv", *batch.FileName)

	_, err = f.ingest.ImportCSV(ctx, path, "Assets:Bank:Checking", "anz")
	require.True(t, ledger.IsConflict(err, ledger.ReasonFileImported))
	require.Equal(t, 3, f.count(t, ctx, "transactions"))
	require.Equal(t, 1, f.count(t, ctx, "import_batches"))
}

func TestImportRequiresExistingTarget(t *testing.T) {
	t.Parallel()
	f, ctx := newFixture(t)

	_, err := f.ingest.ImportProposals(ctx, ImportRequest{
		TargetPath: "Assets:Nowhere",
		Proposals:  []Proposal{{Line: 2, Date: day0, Description: "X", Amount: dec("1")}},
	})
	require.ErrorIs(t, err, ledger.ErrNotFound)
	require.Equal(t, 0, f.count(t, ctx, "import_batches"))

	_, err = f.ingest.ImportProposals(ctx, ImportRequest{TargetPath: " : "})
	require.True(t, ledger.HasIssue(err, ledger.CodeEmptyImportTargetPath))
}

func TestImportRowsAgainstMismatchedRuleAreSkipped(t *testing.T) {
	t.Parallel()
	f, ctx := newFixture(t)

	f.account(t, ctx, "Assets:Checking", ledger.Asset, ledger.Checking)
	// a Salary rule targets Income:Salary; make that path an expense first
	f.account(t, ctx, "Income", ledger.Expense, ledger.Category)

	res, err := f.ingest.ImportProposals(ctx, ImportRequest{
		TargetPath: "Assets:Checking",
		Source:     "bank",
		Proposals: []Proposal{
			{Line: 2, Date: day0, Description: "SALARY", Amount: dec("100"), CategoryHint: "Salary"},
			{Line: 3, Date: day0, Description: "RENT", Amount: dec("-900"), CategoryHint: "Rent"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Imported)
	require.Len(t, res.Errors, 1)
	require.True(t, ledger.HasIssue(res.Errors[0], ledger.CodeAccountTypeMismatch))
}

func TestParseCSVHeader(t *testing.T) {
	t.Parallel()

	_, _, err := ParseCSV(strings.NewReader("when,what\n2024-01-01,x\n"))
	require.ErrorContains(t, err, `missing "date" column`)

	_, _, err = ParseCSV(strings.NewReader(""))
	require.Error(t, err)

	props, errs, err := ParseCSV(strings.NewReader("\ufeffdate,description,amount,category_parent,category\n2024-01-02,Coffee,-3.5,Food,Cafe\n"))
	require.NoError(t, err)
	require.Empty(t, errs)
	require.Len(t, props, 1)
	require.Equal(t, "Food", props[0].CategoryParentHint)
	require.Equal(t, "Cafe", props[0].CategoryHint)
	require.Equal(t, "Coffee", props[0].Raw["description"])
	requireDec(t, "-3.5", props[0].Amount)
}

func TestImportIntoForeignCurrencyTarget(t *testing.T) {
	t.Parallel()
	f, ctx := newFixture(t)

	target, err := f.accounts.ResolveOrCreate(ctx, "Assets:US Checking", ledger.Asset, ledger.Checking,
		ledger.AccountAttrs{Currency: "USD"})
	require.NoError(t, err)

	res, err := f.ingest.ImportProposals(ctx, ImportRequest{
		TargetPath: "Assets:US Checking",
		Source:     "us-bank",
		Proposals: []Proposal{
			{Line: 2, Date: day0, Description: "HARDWARE STORE", Amount: dec("-18.40")},
			{Line: 3, Date: day0, Description: "WHOLE FOODS", Amount: dec("-63.10"), CategoryHint: "Groceries"},
		},
	})
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Equal(t, 2, res.Imported)
	requireDec(t, "-81.50", f.balance(t, ctx, target))

	for _, path := range []string{UncategorizedExpensePath, "Expenses:Food:Groceries", "Expenses"} {
		a, err := f.accounts.GetByPath(ctx, path)
		require.NoError(t, err)
		require.Equal(t, "USD", a.Currency, path)
	}
}

func TestSkippedImportRowLeavesNoAccounts(t *testing.T) {
	t.Parallel()
	f, ctx := newFixture(t)

	f.account(t, ctx, "Assets:Checking", ledger.Asset, ledger.Checking)
	ingest := *f.ingest
	ingest.Categorizer = &Categorizer{
		Rules: prefs.CategoryRules{Rules: []prefs.CategoryRule{
			{Category: "Cafe", Account: "Expenses:Eating Out:Cafe/Bar", Type: "expense", Subtype: string(ledger.Food)},
		}},
		Accounts: f.accounts,
	}

	res, err := ingest.ImportProposals(ctx, ImportRequest{
		TargetPath: "Assets:Checking",
		Source:     "bank",
		Proposals: []Proposal{
			{Line: 2, Date: day0, Description: "FLAT WHITE", Amount: dec("-4.50"), CategoryHint: "Cafe"},
			{Line: 3, Date: day0, Description: "CORNER SHOP", Amount: dec("-7")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Imported)
	require.Len(t, res.Errors, 1)
	require.True(t, ledger.HasIssue(res.Errors[0], ledger.CodeInvalidNameCharacters))

	// Assets, Checking, Expenses and Expenses:Uncategorized
	require.Equal(t, 4, f.count(t, ctx, "accounts"))
	_, err = f.accounts.GetByPath(ctx, "Expenses:Eating Out")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}
