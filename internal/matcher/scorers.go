package matcher

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"

	"github.com/jask/jaskledger/internal/ledger"
)

// Declared field weights. They sum to 1.
var (
	AmountWeight      = decimal.RequireFromString("0.40")
	DateWeight        = decimal.RequireFromString("0.30")
	DescriptionWeight = decimal.RequireFromString("0.20")
	SourceWeight      = decimal.RequireFromString("0.10")
)

// DefaultScorers returns the amount, date, description and source scorers.
func DefaultScorers() []Scorer {
	return []Scorer{AmountScorer{}, DateScorer{}, DescriptionScorer{}, SourceScorer{}}
}

// AmountScorer gives 1 for equal amounts, falling linearly to 0.5 at the
// tolerance edge.
type AmountScorer struct{}

func (AmountScorer) Field() string           { return "amount" }
func (AmountScorer) Weight() decimal.Decimal { return AmountWeight }

func (AmountScorer) Score(a, b Candidate, opts Options, c *ledger.Criteria) decimal.Decimal {
	diff := a.Amount.Sub(b.Amount).Abs()
	c.AmountDifference = diff
	if diff.IsZero() {
		return one
	}
	if !opts.AmountTolerance.IsPositive() {
		return decimal.Zero
	}
	half := decimal.RequireFromString("0.5")
	return one.Sub(half.Mul(diff.DivRound(opts.AmountTolerance, 8)))
}

// DateScorer gives 1 on the same day and loses 1/(tolerance+1) per day apart.
type DateScorer struct{}

func (DateScorer) Field() string           { return "date" }
func (DateScorer) Weight() decimal.Decimal { return DateWeight }

func (DateScorer) Score(a, b Candidate, opts Options, c *ledger.Criteria) decimal.Decimal {
	days := DaysBetween(a.Date, b.Date)
	c.DateDifferenceDays = days
	if days == 0 {
		return one
	}
	return one.Sub(decimal.NewFromInt(int64(days)).DivRound(decimal.NewFromInt(int64(opts.DateToleranceDays+1)), 8))
}

// DescriptionScorer is the normalised Levenshtein similarity of the two
// descriptions, compared upper-cased with runs of whitespace collapsed.
type DescriptionScorer struct{}

func (DescriptionScorer) Field() string           { return "description" }
func (DescriptionScorer) Weight() decimal.Decimal { return DescriptionWeight }

func (DescriptionScorer) Score(a, b Candidate, _ Options, c *ledger.Criteria) decimal.Decimal {
	sim := DescriptionSimilarity(a.Description, b.Description)
	c.DescriptionSimilarity = sim
	return sim
}

// DescriptionSimilarity returns 1 - distance/maxlen over normalised text.
func DescriptionSimilarity(a, b string) decimal.Decimal {
	na, nb := normalizeDescription(a), normalizeDescription(b)
	if na == nb {
		return one
	}
	maxLen := utf8.RuneCountInString(na)
	if n := utf8.RuneCountInString(nb); n > maxLen {
		maxLen = n
	}
	dist := levenshtein.ComputeDistance(na, nb)
	return one.Sub(decimal.NewFromInt(int64(dist)).DivRound(decimal.NewFromInt(int64(maxLen)), 8)).Round(ledger.AmountScale)
}

func normalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// SourceScorer rewards pairs that arrived through different import sources,
// the usual shape of a real duplicate (bank export vs. card export). Two rows
// of the same batch are never duplicates of each other by provenance.
type SourceScorer struct{}

func (SourceScorer) Field() string           { return "source" }
func (SourceScorer) Weight() decimal.Decimal { return SourceWeight }

func (SourceScorer) Score(a, b Candidate, _ Options, c *ledger.Criteria) decimal.Decimal {
	rel := SourceRelationOf(a, b)
	c.SourceRelation = rel
	switch rel {
	case ledger.DifferentSource:
		return one
	case ledger.SameBatch:
		return decimal.Zero
	default:
		return decimal.RequireFromString("0.5")
	}
}

// SourceRelationOf classifies the import provenance of a pair.
func SourceRelationOf(a, b Candidate) ledger.SourceRelation {
	if a.BatchID != nil && b.BatchID != nil && *a.BatchID == *b.BatchID {
		return ledger.SameBatch
	}
	if a.Source == nil || b.Source == nil {
		return ledger.UnknownSource
	}
	if *a.Source == *b.Source {
		return ledger.SameSource
	}
	return ledger.DifferentSource
}
