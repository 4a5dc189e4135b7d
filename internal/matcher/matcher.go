// Package matcher scores pairs of transactions as potential duplicates.
//
// Each field has its own Scorer with a declared weight. A pair is only scored
// when it passes the amount and date tolerance gates; the resulting confidence
// is the sum of weight*score over all scorers, and the per-field breakdown is
// returned as ledger.Criteria so it can be stored verbatim on a match.
package matcher

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/jaskledger/internal/ledger"
)

// Candidate is the projection of a transaction the scorers look at.
type Candidate struct {
	ID          string
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	Source      *string
	BatchID     *string
}

// FromTransaction projects a stored transaction. Amount is the total debits.
func FromTransaction(t ledger.TransactionWithEntries) Candidate {
	return Candidate{
		ID:          t.ID,
		Date:        t.Date,
		Amount:      t.TotalDebits(),
		Description: t.Description,
		Source:      t.ImportSource,
		BatchID:     t.ImportBatchID,
	}
}

// Options are the tolerance gates.
type Options struct {
	AmountTolerance   decimal.Decimal
	DateToleranceDays int
}

// DefaultOptions returns a 0.01 amount tolerance and a 3 day date tolerance.
func DefaultOptions() Options {
	return Options{
		AmountTolerance:   decimal.RequireFromString("0.01"),
		DateToleranceDays: 3,
	}
}

// Validate rejects negative tolerances.
func (o Options) Validate() error {
	var issues ledger.Issues
	if o.AmountTolerance.IsNegative() {
		issues.Add(ledger.CodeInvalidTolerance, "amount_tolerance", "must not be negative, got %s", o.AmountTolerance)
	}
	if o.DateToleranceDays < 0 {
		issues.Add(ledger.CodeInvalidTolerance, "date_tolerance_days", "must not be negative, got %d", o.DateToleranceDays)
	}
	return issues.Err()
}

// Scorer rates one field of a pair in [0,1] and records what it observed on c.
type Scorer interface {
	Field() string
	Weight() decimal.Decimal
	Score(a, b Candidate, opts Options, c *ledger.Criteria) decimal.Decimal
}

// Result is one surfaced candidate.
type Result struct {
	CandidateID string
	Confidence  decimal.Decimal
	Type        ledger.MatchType
	Criteria    ledger.Criteria
}

// Matcher combines scorers behind the tolerance gates.
type Matcher struct {
	opts    Options
	scorers []Scorer
}

// New returns a matcher using opts and the given scorers, or DefaultScorers
// when none are passed.
func New(opts Options, scorers ...Scorer) (*Matcher, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(scorers) == 0 {
		scorers = DefaultScorers()
	}
	total := decimal.Zero
	for _, s := range scorers {
		total = total.Add(s.Weight())
	}
	if !total.Equal(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("matcher: scorer weights sum to %s, want 1", total)
	}
	return &Matcher{opts: opts, scorers: scorers}, nil
}

// Options returns the tolerances the matcher was built with.
func (m *Matcher) Options() Options { return m.opts }

// Score compares a and b. ok is false when the pair falls outside either
// tolerance gate, in which case it is not a candidate at all.
func (m *Matcher) Score(a, b Candidate) (Result, bool) {
	if !m.withinGates(a, b) {
		return Result{}, false
	}
	c := ledger.Criteria{
		AmountTolerance:   m.opts.AmountTolerance,
		DateToleranceDays: m.opts.DateToleranceDays,
	}
	for _, s := range m.scorers {
		score := clamp01(s.Score(a, b, m.opts, &c)).Round(ledger.AmountScale)
		c.Contributions = append(c.Contributions, ledger.Contribution{
			Field:        s.Field(),
			Weight:       s.Weight(),
			Score:        score,
			Contribution: s.Weight().Mul(score).Round(ledger.AmountScale),
		})
	}
	conf := clamp01(c.Confidence())
	band, _ := Classify(conf)
	return Result{CandidateID: b.ID, Confidence: conf, Type: band, Criteria: c}, true
}

// Classify is ledger.Classify; re-exported for callers that only import matcher.
func Classify(conf decimal.Decimal) (ledger.MatchType, bool) { return ledger.Classify(conf) }

// FindMatches scores subject against population and returns the surfaced
// candidates ordered by confidence descending, then id. The subject itself is
// skipped.
func (m *Matcher) FindMatches(subject Candidate, population []Candidate) []Result {
	var out []Result
	for _, cand := range population {
		if cand.ID == subject.ID {
			continue
		}
		res, ok := m.Score(subject, cand)
		if !ok {
			continue
		}
		if _, surfaced := ledger.Classify(res.Confidence); !surfaced {
			continue
		}
		out = append(out, res)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Confidence.Cmp(out[j].Confidence); c != 0 {
			return c > 0
		}
		return out[i].CandidateID < out[j].CandidateID
	})
	return out
}

func (m *Matcher) withinGates(a, b Candidate) bool {
	if a.Amount.Sub(b.Amount).Abs().GreaterThan(m.opts.AmountTolerance) {
		return false
	}
	return DaysBetween(a.Date, b.Date) <= m.opts.DateToleranceDays
}

// DaysBetween is the absolute number of calendar days between a and b.
func DaysBetween(a, b time.Time) int {
	diff := ledger.Day(a).Sub(ledger.Day(b))
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}

var one = decimal.NewFromInt(1)

func clamp01(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if v.GreaterThan(one) {
		return one
	}
	return v
}
