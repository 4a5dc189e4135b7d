package repository

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/jaskledger/internal/ledger"
)

// ImportBatch represents an import_batches row.
type ImportBatch struct {
	ID               string
	Source           string
	FileName         *string
	FileHash         *string
	TransactionCount int
	Notes            *string
	ImportedAt       time.Time
}

// AccountFilters defines account list filters.
type AccountFilters struct {
	Type            ledger.AccountType // empty = all types
	IncludeInactive bool
	PathPrefix      string // the account itself and its descendants
}

// TransactionFilters defines list filters.
type TransactionFilters struct {
	From          time.Time // inclusive; zero = unbounded
	To            time.Time // inclusive; zero = unbounded
	AccountPath   string    // transactions with an entry on this account or a descendant
	ImportBatchID string
	IncludeHidden bool
	Limit         int
}

// MatchFilters defines match list filters.
type MatchFilters struct {
	Status ledger.MatchStatus
	Type   ledger.MatchType
	Limit  int
}

// DailyBalance is the closing balance of an account on a day with activity.
type DailyBalance struct {
	Date    time.Time
	Change  decimal.Decimal
	Balance decimal.Decimal
}

// DuplicateSummary counts the matches recorded against a transaction.
type DuplicateSummary struct {
	Transaction ledger.Transaction
	Matches     int
	Pending     int
}

// scanner handles both Row and Rows.
type scanner interface {
	Scan(dest ...any) error
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func decPtr(nd decimal.NullDecimal) *decimal.Decimal {
	if !nd.Valid {
		return nil
	}
	d := nd.Decimal
	return &d
}

func nullDec(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(ledger.DateLayout), Valid: true}
}

func datePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := ledger.ParseDay(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func dateArg(t time.Time) string { return ledger.Day(t).Format(ledger.DateLayout) }
