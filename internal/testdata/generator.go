package testdata

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/jaskledger/internal/ledger"
	"github.com/jask/jaskledger/internal/service"
)

// Services bundles the services used by Seed.
type Services struct {
	Accounts     *service.AccountService
	Transactions *service.TransactionService
	Ingest       *service.IngestService
	Maintenance  *service.MaintenanceService
}

// Paths of the demo household.
const (
	CheckingPath   = "Assets:Bank:Checking"
	CreditCardPath = "Liabilities:Credit Card"
	OpeningPath    = "Equity:Opening Balances"
)

// Result points at what Seed created.
type Result struct {
	Checking  ledger.Account
	Card      ledger.Account
	BankBatch service.ImportResult
	FeedBatch service.ImportResult
}

// Seed builds a small household ledger dated around today: an opening
// balance, a month of bank activity and a card feed that repeats one bank
// row under a different source, so duplicate detection has something to
// find.
func Seed(ctx context.Context, svc Services, today time.Time) (Result, error) {
	var res Result
	today = ledger.Day(today)
	if _, err := svc.Maintenance.SeedDefaults(ctx); err != nil {
		return res, err
	}

	var err error
	res.Checking, err = svc.Accounts.ResolveOrCreate(ctx, CheckingPath, ledger.Asset, ledger.Checking, ledger.AccountAttrs{})
	if err != nil {
		return res, err
	}
	res.Card, err = svc.Accounts.ResolveOrCreate(ctx, CreditCardPath, ledger.Liability, ledger.CreditCard, ledger.AccountAttrs{})
	if err != nil {
		return res, err
	}
	opening := ledger.SimpleTransfer("Opening balance", today.AddDate(0, -1, 0), OpeningPath, CheckingPath, dec("2500.00"))
	if _, err := svc.Transactions.CreateTransactionByPath(ctx, opening, ledger.WithCreatedBy("demo")); err != nil {
		return res, fmt.Errorf("opening balance: %w", err)
	}

	day := func(n int) time.Time { return today.AddDate(0, 0, -n) }
	bank := []service.Proposal{
		{Line: 1, Date: day(25), Description: "SALARY ACME PTY LTD", Amount: dec("3200.00"), CategoryHint: "Salary"},
		{Line: 2, Date: day(20), Description: "RENT MARCH", Amount: dec("-1450.00"), CategoryHint: "Rent"},
		{Line: 3, Date: day(12), Description: "UBER EATS* SUSHI", Amount: dec("-18.90"), CategoryHint: "Restaurants"},
		{Line: 4, Date: day(9), Description: "SPOTIFY", Amount: dec("-12.99"), CategoryHint: "Subscriptions"},
		{Line: 5, Date: day(5), Description: "CARREFOUR", Amount: dec("-42.17"), CategoryHint: "Groceries"},
		{Line: 6, Date: day(3), Description: "ELECTRICITY BILL", Amount: dec("-96.40"), CategoryHint: "Utilities"},
		{Line: 7, Date: day(1), Description: "INTEREST PAID", Amount: dec("0.84"), CategoryHint: "Interest"},
	}
	res.BankBatch, err = svc.Ingest.ImportProposals(ctx, service.ImportRequest{
		TargetPath: CheckingPath,
		Source:     "bank-csv",
		Notes:      "demo bank statement",
		Proposals:  bank,
	})
	if err != nil {
		return res, fmt.Errorf("bank import: %w", err)
	}

	feed := []service.Proposal{
		{Line: 1, Date: day(5), Description: "CARREFOUR MARKET", Amount: dec("-42.17"), CategoryHint: "Groceries"},
		{Line: 2, Date: day(4), Description: "WOOLWORTHS", Amount: dec("-63.25"), CategoryHint: "Groceries"},
	}
	res.FeedBatch, err = svc.Ingest.ImportProposals(ctx, service.ImportRequest{
		TargetPath: CheckingPath,
		Source:     "card-feed",
		Notes:      "demo open banking feed",
		Proposals:  feed,
	})
	if err != nil {
		return res, fmt.Errorf("feed import: %w", err)
	}
	return res, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
