package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/jaskledger/internal/database/repository"
	"github.com/jask/jaskledger/internal/ledger"
)

// BalanceService materializes balances from journal entries on every call.
// Nothing is cached, so a merge or unmerge is reflected by the next query.
type BalanceService struct {
	DB *sql.DB
}

// AccountBalance is one row of a trial balance.
type AccountBalance struct {
	Account ledger.Account
	Balance decimal.Decimal
	// Display is Balance with the sign flipped for credit-normal accounts.
	Display decimal.Decimal
}

// Balance returns the signed balance of accountID as of the end of asOf,
// excluding hidden transactions. An account without entries has balance 0.
func (s *BalanceService) Balance(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, error) {
	a, err := repository.NewAccountRepo(s.DB).Get(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	if a == nil {
		return decimal.Zero, &ledger.NotFoundError{Kind: "account", ID: accountID}
	}
	return repository.NewBalanceRepo(s.DB).Account(ctx, accountID, asOf)
}

// Balances returns every account's balance as of asOf, in path order. Signed
// balances of all accounts sum to zero.
func (s *BalanceService) Balances(ctx context.Context, asOf time.Time, includeInactive bool) ([]AccountBalance, error) {
	sums, err := repository.NewBalanceRepo(s.DB).All(ctx, asOf)
	if err != nil {
		return nil, err
	}
	accounts, err := repository.NewAccountRepo(s.DB).List(ctx, repository.AccountFilters{IncludeInactive: true})
	if err != nil {
		return nil, err
	}
	out := make([]AccountBalance, 0, len(accounts))
	for _, a := range accounts {
		bal := sums[a.ID]
		if !a.Active && !includeInactive && bal.IsZero() {
			continue
		}
		out = append(out, AccountBalance{Account: a, Balance: bal, Display: ledger.DisplayAmount(a.Type, bal)})
	}
	return out, nil
}

// SubtreeBalance rolls up the account at path and all of its descendants.
func (s *BalanceService) SubtreeBalance(ctx context.Context, path string, asOf time.Time) (AccountBalance, error) {
	norm, err := ledger.NormalizePath(path)
	if err != nil {
		return AccountBalance{}, err
	}
	a, err := repository.NewAccountRepo(s.DB).GetByPath(ctx, norm)
	if err != nil {
		return AccountBalance{}, err
	}
	if a == nil {
		return AccountBalance{}, &ledger.NotFoundError{Kind: "account", ID: norm}
	}
	bal, err := repository.NewBalanceRepo(s.DB).Subtree(ctx, norm, asOf)
	if err != nil {
		return AccountBalance{}, err
	}
	return AccountBalance{Account: *a, Balance: bal, Display: ledger.DisplayAmount(a.Type, bal)}, nil
}

// DailyBalances returns the running balance at the close of each day in
// [from, to] with activity, plus the opening balance before from.
func (s *BalanceService) DailyBalances(ctx context.Context, accountID string, from, to time.Time) (decimal.Decimal, []repository.DailyBalance, error) {
	a, err := repository.NewAccountRepo(s.DB).Get(ctx, accountID)
	if err != nil {
		return decimal.Zero, nil, err
	}
	if a == nil {
		return decimal.Zero, nil, &ledger.NotFoundError{Kind: "account", ID: accountID}
	}
	if to.Before(from) {
		return decimal.Zero, nil, ledger.NewValidationError(ledger.Issue{
			Code:    ledger.CodeInvalidDateRange,
			Field:   "to",
			Message: "range end " + to.Format(ledger.DateLayout) + " is before start " + from.Format(ledger.DateLayout),
		})
	}
	return repository.NewBalanceRepo(s.DB).Daily(ctx, accountID, from, to)
}
