package repository

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/jask/jaskledger/internal/database"
	"github.com/jask/jaskledger/internal/ledger"
)

// visibleTransaction is the one place the merge visibility rule is expressed
// in SQL. Every balance and default listing query filters through it.
const visibleTransaction = "t.merged_into_transaction_id IS NULL"

// BalanceRepo computes balances from journal entries. Amounts are exact
// decimal text, so sums are taken in Go rather than with SQL SUM. Each method
// reads with a single statement so it observes one consistent snapshot.
type BalanceRepo struct {
	db database.DBTX
}

func NewBalanceRepo(db database.DBTX) *BalanceRepo { return &BalanceRepo{db: db} }

// Account returns the signed balance of accountID over visible transactions
// dated on or before asOf.
func (r *BalanceRepo) Account(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, error) {
	return r.sum(ctx, `
	SELECT e.amount FROM journal_entries e
	JOIN transactions t ON t.id = e.transaction_id
	WHERE e.account_id = ? AND t.transaction_date <= ? AND `+visibleTransaction,
		accountID, dateArg(asOf))
}

// Subtree returns the combined balance of the account at path and all of its
// descendants.
func (r *BalanceRepo) Subtree(ctx context.Context, path string, asOf time.Time) (decimal.Decimal, error) {
	return r.sum(ctx, `
	SELECT e.amount FROM journal_entries e
	JOIN transactions t ON t.id = e.transaction_id
	JOIN accounts a ON a.id = e.account_id
	WHERE (a.full_path = ? OR substr(a.full_path, 1, ?) = ?)
	 AND t.transaction_date <= ? AND `+visibleTransaction,
		path, utf8.RuneCountInString(path)+1, path+ledger.PathSeparator, dateArg(asOf))
}

// All returns the balance of every account with visible activity on or
// before asOf, keyed by account id.
func (r *BalanceRepo) All(ctx context.Context, asOf time.Time) (map[string]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT e.account_id, e.amount FROM journal_entries e
	JOIN transactions t ON t.id = e.transaction_id
	WHERE t.transaction_date <= ? AND `+visibleTransaction, dateArg(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var id string
		var amount decimal.Decimal
		if err := rows.Scan(&id, &amount); err != nil {
			return nil, err
		}
		out[id] = out[id].Add(amount)
	}
	return out, rows.Err()
}

// Daily returns the running balance of accountID at the close of each day in
// [from, to] that has visible activity. The opening balance before from is
// folded into the first day.
func (r *BalanceRepo) Daily(ctx context.Context, accountID string, from, to time.Time) (opening decimal.Decimal, days []DailyBalance, err error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT t.transaction_date, e.amount FROM journal_entries e
	JOIN transactions t ON t.id = e.transaction_id
	WHERE e.account_id = ? AND t.transaction_date <= ? AND `+visibleTransaction+`
	ORDER BY t.transaction_date`, accountID, dateArg(to))
	if err != nil {
		return decimal.Zero, nil, err
	}
	defer rows.Close()

	start := dateArg(from)
	running := decimal.Zero
	for rows.Next() {
		var date string
		var amount decimal.Decimal
		if err := rows.Scan(&date, &amount); err != nil {
			return decimal.Zero, nil, err
		}
		running = running.Add(amount)
		if date < start {
			opening = running
			continue
		}
		day, err := ledger.ParseDay(date)
		if err != nil {
			return decimal.Zero, nil, err
		}
		if n := len(days); n > 0 && days[n-1].Date.Equal(day) {
			days[n-1].Change = days[n-1].Change.Add(amount)
			days[n-1].Balance = running
			continue
		}
		days = append(days, DailyBalance{Date: day, Change: amount, Balance: running})
	}
	return opening, days, rows.Err()
}

func (r *BalanceRepo) sum(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()
	total := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}
