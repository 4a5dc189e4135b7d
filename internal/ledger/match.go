package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MatchType is the confidence band of a candidate duplicate.
type MatchType string

const (
	Exact    MatchType = "EXACT"
	Probable MatchType = "PROBABLE"
	Possible MatchType = "POSSIBLE"
)

// Band thresholds are inclusive lower bounds.
var (
	ExactThreshold    = decimal.RequireFromString("0.95")
	ProbableThreshold = decimal.RequireFromString("0.8")
	PossibleThreshold = decimal.RequireFromString("0.6")
)

// Classify maps a confidence to its band. The second result is false when the
// confidence is below PossibleThreshold and the candidate is not surfaced.
func Classify(confidence decimal.Decimal) (MatchType, bool) {
	switch {
	case confidence.GreaterThanOrEqual(ExactThreshold):
		return Exact, true
	case confidence.GreaterThanOrEqual(ProbableThreshold):
		return Probable, true
	case confidence.GreaterThanOrEqual(PossibleThreshold):
		return Possible, true
	default:
		return "", false
	}
}

// ParseMatchType parses a stored match type.
func ParseMatchType(s string) (MatchType, error) {
	switch t := MatchType(s); t {
	case Exact, Probable, Possible:
		return t, nil
	}
	return "", fmt.Errorf("unknown match type %q", s)
}

// MatchStatus is the review state of a match.
type MatchStatus string

const (
	Pending   MatchStatus = "PENDING"
	Confirmed MatchStatus = "CONFIRMED"
	Rejected  MatchStatus = "REJECTED"
)

// ParseMatchStatus parses a stored or user supplied status.
func ParseMatchStatus(s string) (MatchStatus, error) {
	switch st := MatchStatus(s); st {
	case Pending, Confirmed, Rejected:
		return st, nil
	}
	switch s {
	case "pending":
		return Pending, nil
	case "confirmed":
		return Confirmed, nil
	case "rejected":
		return Rejected, nil
	}
	return "", fmt.Errorf("unknown match status %q", s)
}

// Terminal reports whether no further transition is allowed.
func (s MatchStatus) Terminal() bool { return s == Confirmed || s == Rejected }

// Transition checks moving from s to next. It reports changed=false for a
// same-state assignment, and a ConflictError for leaving a terminal state.
func (s MatchStatus) Transition(next MatchStatus) (changed bool, err error) {
	if _, err := ParseMatchStatus(string(next)); err != nil {
		return false, NewValidationError(Issue{Code: CodeInvalidStatus, Field: "status", Message: err.Error()})
	}
	if s == next {
		return false, nil
	}
	if s.Terminal() {
		return false, &ConflictError{
			Op:     "update match status",
			Reason: ReasonTerminalStatus,
			Detail: fmt.Sprintf("%s -> %s", s, next),
		}
	}
	// Pending -> Confirmed | Rejected
	return true, nil
}

// Contribution records one scored field of a match.
type Contribution struct {
	Field        string          `json:"field"`
	Weight       decimal.Decimal `json:"weight"`
	Score        decimal.Decimal `json:"score"`
	Contribution decimal.Decimal `json:"contribution"`
	Detail       string          `json:"detail,omitempty"`
}

// SourceRelation describes how the import provenance of two transactions relates.
type SourceRelation string

const (
	DifferentSource SourceRelation = "different_source"
	SameSource      SourceRelation = "same_source"
	SameBatch       SourceRelation = "same_batch"
	UnknownSource   SourceRelation = "unknown_source"
)

// Criteria is the audit record stored verbatim on a match: the inputs the
// scorer saw and what each field contributed.
type Criteria struct {
	AmountTolerance       decimal.Decimal `json:"amount_tolerance"`
	DateToleranceDays     int             `json:"date_tolerance_days"`
	AmountDifference      decimal.Decimal `json:"amount_difference"`
	DateDifferenceDays    int             `json:"date_difference_days"`
	DescriptionSimilarity decimal.Decimal `json:"description_similarity"`
	SourceRelation        SourceRelation  `json:"source_relation"`
	Contributions         []Contribution  `json:"contributions"`
}

// Confidence is the sum of all contributions.
func (c Criteria) Confidence() decimal.Decimal {
	total := decimal.Zero
	for _, contrib := range c.Contributions {
		total = total.Add(contrib.Contribution)
	}
	return total
}

// Match is a persisted candidate-duplicate relationship between two
// transactions. Direction is informative only.
type Match struct {
	ID                     string
	PrimaryTransactionID   string
	DuplicateTransactionID string
	Confidence             decimal.Decimal
	Criteria               Criteria
	Type                   MatchType
	Status                 MatchStatus
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Other returns the transaction on the opposite side of id.
func (m Match) Other(id string) string {
	if m.PrimaryTransactionID == id {
		return m.DuplicateTransactionID
	}
	return m.PrimaryTransactionID
}
