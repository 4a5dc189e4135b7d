package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/jaskledger/internal/ledger"
)

func str(s string) *string { return &s }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var day = time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)

func newMatcher(t *testing.T) *Matcher {
	t.Helper()
	m, err := New(DefaultOptions())
	require.NoError(t, err)
	return m
}

func TestScoreCrossSourceNearDescription(t *testing.T) {
	t.Parallel()

	m := newMatcher(t)
	a := Candidate{ID: "a", Date: day, Amount: dec("42.17"), Description: "CARREFOUR", Source: str("bank"), BatchID: str("b1")}
	b := Candidate{ID: "b", Date: day, Amount: dec("42.17"), Description: "CARREFOUR MARKET", Source: str("card"), BatchID: str("b2")}

	res, ok := m.Score(a, b)
	require.True(t, ok)
	require.Equal(t, "b", res.CandidateID)
	require.True(t, res.Confidence.Equal(dec("0.9125")), "got %s", res.Confidence)
	require.Equal(t, ledger.Probable, res.Type)

	require.True(t, res.Criteria.AmountDifference.IsZero())
	require.Equal(t, 0, res.Criteria.DateDifferenceDays)
	require.True(t, res.Criteria.DescriptionSimilarity.Equal(dec("0.5625")))
	require.Equal(t, ledger.DifferentSource, res.Criteria.SourceRelation)
	require.Len(t, res.Criteria.Contributions, 4)
	require.True(t, res.Criteria.Confidence().Equal(res.Confidence))

	// symmetric
	back, ok := m.Score(b, a)
	require.True(t, ok)
	require.True(t, back.Confidence.Equal(res.Confidence))
}

func TestScoreExactDuplicate(t *testing.T) {
	t.Parallel()

	m := newMatcher(t)
	a := Candidate{ID: "a", Date: day, Amount: dec("10"), Description: "Coffee  shop", Source: str("bank")}
	b := Candidate{ID: "b", Date: day, Amount: dec("10.00"), Description: "COFFEE SHOP", Source: str("card")}

	res, ok := m.Score(a, b)
	require.True(t, ok)
	require.True(t, res.Confidence.Equal(decimal.NewFromInt(1)))
	require.Equal(t, ledger.Exact, res.Type)
}

func TestScoreGates(t *testing.T) {
	t.Parallel()

	m := newMatcher(t)
	base := Candidate{ID: "a", Date: day, Amount: dec("10"), Description: "X"}

	_, ok := m.Score(base, Candidate{ID: "b", Date: day, Amount: dec("10.02"), Description: "X"})
	require.False(t, ok, "amount outside tolerance")

	_, ok = m.Score(base, Candidate{ID: "b", Date: day.AddDate(0, 0, 4), Amount: dec("10"), Description: "X"})
	require.False(t, ok, "date outside tolerance")

	res, ok := m.Score(base, Candidate{ID: "b", Date: day.AddDate(0, 0, -3), Amount: dec("10.01"), Description: "X"})
	require.True(t, ok, "edges are inclusive")
	require.Equal(t, 3, res.Criteria.DateDifferenceDays)
	require.True(t, res.Criteria.AmountDifference.Equal(dec("0.01")))
	// amount 0.5*0.4 + date 0.25*0.3 + desc 0.2 + unknown source 0.05
	require.True(t, res.Confidence.Equal(dec("0.525")), "got %s", res.Confidence)
}

func TestSourceRelation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b Candidate
		want ledger.SourceRelation
	}{
		{"same batch", Candidate{Source: str("bank"), BatchID: str("1")}, Candidate{Source: str("bank"), BatchID: str("1")}, ledger.SameBatch},
		{"same source", Candidate{Source: str("bank"), BatchID: str("1")}, Candidate{Source: str("bank"), BatchID: str("2")}, ledger.SameSource},
		{"different", Candidate{Source: str("bank")}, Candidate{Source: str("card")}, ledger.DifferentSource},
		{"manual", Candidate{}, Candidate{Source: str("card")}, ledger.UnknownSource},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, SourceRelationOf(tc.a, tc.b))
		})
	}
}

func TestFindMatchesOrdersAndFilters(t *testing.T) {
	t.Parallel()

	m := newMatcher(t)
	subject := Candidate{ID: "s", Date: day, Amount: dec("42.17"), Description: "CARREFOUR", Source: str("bank"), BatchID: str("b1")}
	population := []Candidate{
		subject,
		{ID: "weak", Date: day.AddDate(0, 0, 3), Amount: dec("42.18"), Description: "SOMETHING ELSE", Source: str("bank"), BatchID: str("b1")},
		{ID: "probable", Date: day, Amount: dec("42.17"), Description: "CARREFOUR MARKET", Source: str("card")},
		{ID: "exact", Date: day, Amount: dec("42.17"), Description: "carrefour", Source: str("card")},
		{ID: "far", Date: day, Amount: dec("50"), Description: "CARREFOUR", Source: str("card")},
	}

	got := m.FindMatches(subject, population)
	require.Len(t, got, 2)
	require.Equal(t, "exact", got[0].CandidateID)
	require.Equal(t, ledger.Exact, got[0].Type)
	require.Equal(t, "probable", got[1].CandidateID)
}

func TestNewRejectsBadConfiguration(t *testing.T) {
	t.Parallel()

	_, err := New(Options{AmountTolerance: dec("-1"), DateToleranceDays: 3})
	require.True(t, ledger.HasIssue(err, ledger.CodeInvalidTolerance))

	_, err = New(DefaultOptions(), AmountScorer{})
	require.Error(t, err)
}

func TestDescriptionSimilarity(t *testing.T) {
	t.Parallel()

	require.True(t, DescriptionSimilarity("abc", "ABC").Equal(decimal.NewFromInt(1)))
	require.True(t, DescriptionSimilarity("", "").Equal(decimal.NewFromInt(1)))
	require.True(t, DescriptionSimilarity("abcd", "wxyz").IsZero())
}
