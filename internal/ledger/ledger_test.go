package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestClassifyBands(t *testing.T) {
	t.Parallel()

	cases := []struct {
		conf string
		want MatchType
		ok   bool
	}{
		{"1", Exact, true},
		{"0.95", Exact, true},
		{"0.9499", Probable, true},
		{"0.8", Probable, true},
		{"0.7999", Possible, true},
		{"0.6", Possible, true},
		{"0.5999", "", false},
		{"0", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.conf, func(t *testing.T) {
			got, ok := Classify(d(tc.conf))
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestClassifyIsTotal(t *testing.T) {
	t.Parallel()

	step := d("0.0001")
	for c := decimal.Zero; c.LessThanOrEqual(decimal.NewFromInt(1)); c = c.Add(step) {
		band, ok := Classify(c)
		matched := 0
		if c.GreaterThanOrEqual(ExactThreshold) {
			matched++
			require.Equal(t, Exact, band)
		}
		if c.GreaterThanOrEqual(ProbableThreshold) && c.LessThan(ExactThreshold) {
			matched++
			require.Equal(t, Probable, band)
		}
		if c.GreaterThanOrEqual(PossibleThreshold) && c.LessThan(ProbableThreshold) {
			matched++
			require.Equal(t, Possible, band)
		}
		if c.LessThan(PossibleThreshold) {
			matched++
			require.False(t, ok)
		}
		require.Equal(t, 1, matched, "confidence %s", c)
	}
}

func TestStatusTransition(t *testing.T) {
	t.Parallel()

	changed, err := Pending.Transition(Confirmed)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = Pending.Transition(Rejected)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = Confirmed.Transition(Confirmed)
	require.NoError(t, err)
	require.False(t, changed)

	_, err = Confirmed.Transition(Rejected)
	require.True(t, IsConflict(err, ReasonTerminalStatus))
	require.ErrorIs(t, err, ErrConflict)

	_, err = Rejected.Transition(Pending)
	require.True(t, IsConflict(err, ReasonTerminalStatus))

	_, err = Pending.Transition("MAYBE")
	require.True(t, HasIssue(err, CodeInvalidStatus))
}

func TestParseMatchStatus(t *testing.T) {
	t.Parallel()

	st, err := ParseMatchStatus("confirmed")
	require.NoError(t, err)
	require.Equal(t, Confirmed, st)

	_, err = ParseMatchStatus("done")
	require.Error(t, err)
}

func TestSubtypeTable(t *testing.T) {
	t.Parallel()

	for _, typ := range AccountTypes {
		require.True(t, typ.Valid())
		require.True(t, typ.Permits(Category), "%s must permit category", typ)
	}
	require.True(t, Asset.Permits(Checking))
	require.False(t, Asset.Permits(Food))
	require.False(t, Expense.Permits(Checking))
	require.True(t, Liability.Permits(CreditCard))
	require.False(t, AccountType("bogus").Valid())

	require.True(t, Stocks.IsInvestment())
	require.False(t, Checking.IsInvestment())
	require.True(t, RealEstate.IsRealEstate())
}

func TestParseAccountType(t *testing.T) {
	t.Parallel()

	typ, err := ParseAccountType("Assets")
	require.NoError(t, err)
	require.Equal(t, Asset, typ)

	typ, err = ParseAccountType("expense")
	require.NoError(t, err)
	require.Equal(t, Expense, typ)

	_, err = ParseAccountType("things")
	require.Error(t, err)
}

func TestDisplayAmount(t *testing.T) {
	t.Parallel()

	require.True(t, DisplayAmount(Asset, d("10")).Equal(d("10")))
	require.True(t, DisplayAmount(Expense, d("10")).Equal(d("10")))
	require.True(t, DisplayAmount(Income, d("-10")).Equal(d("10")))
	require.True(t, DisplayAmount(Liability, d("-250.5")).Equal(d("250.5")))
	require.True(t, DisplayAmount(Equity, d("-1000")).Equal(d("1000")))

	for _, typ := range []AccountType{Asset, Liability, Equity, Income, Expense} {
		require.NotEqual(t, typ.IncreasesWithDebit(), typ.IncreasesWithCredit(), typ)
	}
}

func TestSplitPath(t *testing.T) {
	t.Parallel()

	segs, err := SplitPath(" Assets : Bank:Checking ")
	require.NoError(t, err)
	require.Equal(t, []string{"Assets", "Bank", "Checking"}, segs)

	segs, err = SplitPath("Expenses:Dr. Smith")
	require.NoError(t, err)
	require.Equal(t, []string{"Expenses", "Dr. Smith"}, segs)

	_, err = SplitPath("   ")
	require.ErrorIs(t, err, ErrEmptyAccountName)
	require.ErrorIs(t, err, ErrValidation)

	_, err = SplitPath("Assets::Bank")
	require.True(t, HasIssue(err, CodeEmptyPathSegment))

	require.True(t, IsDescendantPath("Assets:Bank:Checking", "Assets:Bank"))
	require.False(t, IsDescendantPath("Assets:Banking", "Assets:Bank"))
	require.Equal(t, "Assets:Bank", JoinPath("Assets", "Bank"))
	require.Equal(t, "Assets", JoinPath("", "Assets"))
}

func TestDraftCheck(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 3, 1, 15, 4, 0, 0, time.UTC)

	t.Run("balanced", func(t *testing.T) {
		dr := SimpleTransaction("CARREFOUR", "groceries", "checking", d("42.17"), day, WithReference("r-1"))
		require.NoError(t, dr.Check())
		require.True(t, dr.IsBalanced())
		require.True(t, dr.TotalDebits().Equal(d("42.17")))
		require.True(t, dr.TotalCredits().Equal(d("42.17")))
		require.Equal(t, Day(day), dr.Date)
		require.Equal(t, "r-1", *dr.Reference)
	})

	t.Run("unbalanced", func(t *testing.T) {
		dr := Draft{Description: "bad", Date: day, Entries: []EntryDraft{
			{AccountID: "a", Amount: d("10")},
			{AccountID: "b", Amount: d("-9.99")},
		}}
		err := dr.Check()
		var ue *UnbalancedTransactionError
		require.True(t, errors.As(err, &ue))
		require.True(t, ue.Expected.IsZero())
		require.True(t, ue.Actual.Equal(d("0.01")))
		require.ErrorIs(t, err, ErrValidation)
		require.Contains(t, err.Error(), "0.01")
	})

	t.Run("shape issues collected", func(t *testing.T) {
		dr := Draft{Entries: []EntryDraft{{AccountID: "", Amount: d("1.00001")}}}
		err := dr.Check()
		var ve *ValidationError
		require.True(t, errors.As(err, &ve))
		require.True(t, ve.Has(CodeMissingDate))
		require.True(t, ve.Has(CodeTooFewEntries))
		require.True(t, ve.Has(CodeUnknownAccount))
		require.True(t, ve.Has(CodeAmountPrecision))
	})
}

func TestVisibility(t *testing.T) {
	t.Parallel()

	var tx Transaction
	require.True(t, tx.Visibility().IsVisible())

	p := "primary"
	tx.MergedIntoTransactionID = &p
	v := tx.Visibility()
	require.False(t, v.IsVisible())
	id, ok := v.Primary()
	require.True(t, ok)
	require.Equal(t, "primary", id)
	require.Equal(t, HiddenInto("primary"), v)
}

func TestPathDraftBuilders(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	pd := ExpenseTransfer("Lunch", day, "Expenses:Food", "Assets:Checking", d("12.50"))
	require.Equal(t, "Expenses:Food", pd.Entries[0].AccountPath)
	require.True(t, pd.Entries[0].Amount.Equal(d("12.50")))
	require.Equal(t, "Assets:Checking", pd.Entries[1].AccountPath)
	require.True(t, pd.Entries[1].Amount.Equal(d("-12.50")))

	pd = IncomeTransfer("Salary", day, "Income:Salary", "Assets:Checking", d("3000"))
	require.Equal(t, "Assets:Checking", pd.Entries[0].AccountPath)
	require.Equal(t, "Income:Salary", pd.Entries[1].AccountPath)
}
