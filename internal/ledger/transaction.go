package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits amounts are stored with.
const AmountScale = 4

// DateLayout is the storage layout of effective dates.
const DateLayout = time.DateOnly

// Day truncates t to its calendar date, expressed as midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// Transaction is a posted event. It is immutable after creation except for
// the duplicate-tracking fields.
type Transaction struct {
	ID          string
	Description string
	Reference   *string
	Date        time.Time
	CreatedBy   *string
	CreatedAt   time.Time

	ImportSource      *string
	ImportBatchID     *string
	ExternalReference *string

	IsDuplicate             bool
	MergedIntoTransactionID *string
}

// Visibility is derived from MergedIntoTransactionID: a transaction merged into
// another one is hidden from balances and reports but keeps its entries.
type Visibility struct {
	into string
}

// Visible is the visibility of a transaction that was never merged.
var Visible = Visibility{}

// HiddenInto is the visibility of a transaction merged into primaryID.
func HiddenInto(primaryID string) Visibility { return Visibility{into: primaryID} }

// IsVisible reports whether the transaction contributes to balances.
func (v Visibility) IsVisible() bool { return v.into == "" }

// Primary returns the transaction this one was merged into.
func (v Visibility) Primary() (string, bool) { return v.into, v.into != "" }

func (v Visibility) String() string {
	if v.into == "" {
		return "visible"
	}
	return "hidden into " + v.into
}

// Visibility derives the transaction's visibility from its merge target.
func (t Transaction) Visibility() Visibility {
	if t.MergedIntoTransactionID == nil || *t.MergedIntoTransactionID == "" {
		return Visible
	}
	return HiddenInto(*t.MergedIntoTransactionID)
}

// JournalEntry is one signed leg of a transaction: positive amounts are
// debits, negative amounts are credits.
type JournalEntry struct {
	ID            string
	TransactionID string
	Index         int
	AccountID     string
	Amount        decimal.Decimal
	Memo          *string
	CreatedAt     time.Time

	// Populated by queries that join accounts.
	AccountPath string
	AccountName string
}

// TransactionWithEntries is a transaction and its ordered entries.
type TransactionWithEntries struct {
	Transaction
	Entries []JournalEntry
}

// TotalDebits sums the positive entry amounts. For a balanced transaction this
// is the amount that moved.
func (t TransactionWithEntries) TotalDebits() decimal.Decimal {
	total := decimal.Zero
	for _, e := range t.Entries {
		if e.Amount.IsPositive() {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// EntryDraft is one leg of a Draft.
type EntryDraft struct {
	AccountID string
	Amount    decimal.Decimal
	Memo      *string
}

// Draft is a transaction proposal that has not been written yet.
type Draft struct {
	Description string
	Reference   *string
	Date        time.Time
	CreatedBy   *string
	Entries     []EntryDraft

	ImportSource      *string
	ImportBatchID     *string
	ExternalReference *string
}

// Sum returns the signed sum of all entry amounts.
func (d Draft) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range d.Entries {
		sum = sum.Add(e.Amount)
	}
	return sum
}

// IsBalanced reports whether the entries sum to exactly zero.
func (d Draft) IsBalanced() bool { return d.Sum().IsZero() }

// TotalDebits sums the positive entry amounts.
func (d Draft) TotalDebits() decimal.Decimal {
	total := decimal.Zero
	for _, e := range d.Entries {
		if e.Amount.IsPositive() {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// TotalCredits sums the negative entry amounts, returned as a positive value.
func (d Draft) TotalCredits() decimal.Decimal {
	total := decimal.Zero
	for _, e := range d.Entries {
		if e.Amount.IsNegative() {
			total = total.Sub(e.Amount)
		}
	}
	return total
}

// Check validates the draft's shape and the zero-sum invariant. It never
// touches storage. An unbalanced draft yields *UnbalancedTransactionError.
func (d Draft) Check() error {
	var issues Issues
	if d.Date.IsZero() {
		issues.Add(CodeMissingDate, "date", "transaction date is required")
	}
	if len(d.Entries) < 2 {
		issues.Add(CodeTooFewEntries, "entries", "a transaction needs at least 2 entries, got %d", len(d.Entries))
	}
	for i, e := range d.Entries {
		if e.AccountID == "" {
			issues.Add(CodeUnknownAccount, "entries", "entry %d has no account", i)
		}
		if !e.Amount.Equal(e.Amount.Truncate(AmountScale)) {
			issues.Add(CodeAmountPrecision, "entries",
				"entry %d amount %s has more than %d fractional digits", i, e.Amount.String(), AmountScale)
		}
	}
	if err := issues.Err(); err != nil {
		return err
	}
	if sum := d.Sum(); !sum.IsZero() {
		return &UnbalancedTransactionError{Expected: decimal.Zero, Actual: sum}
	}
	return nil
}

// DraftOption customises drafts built by SimpleTransaction.
type DraftOption func(*Draft)

// WithReference sets the external reference number (check number, transfer id).
func WithReference(ref string) DraftOption {
	return func(d *Draft) { d.Reference = &ref }
}

// WithCreatedBy records who created the transaction.
func WithCreatedBy(who string) DraftOption {
	return func(d *Draft) { d.CreatedBy = &who }
}

// WithImport records import provenance.
func WithImport(source, batchID, externalRef string) DraftOption {
	return func(d *Draft) {
		if source != "" {
			d.ImportSource = &source
		}
		if batchID != "" {
			d.ImportBatchID = &batchID
		}
		if externalRef != "" {
			d.ExternalReference = &externalRef
		}
	}
}

// SimpleTransaction builds a balanced two-entry draft: amount is debited to
// debitAccountID and credited (as -amount) to creditAccountID.
func SimpleTransaction(description, debitAccountID, creditAccountID string, amount decimal.Decimal, date time.Time, opts ...DraftOption) Draft {
	d := Draft{
		Description: description,
		Date:        Day(date),
		Entries: []EntryDraft{
			{AccountID: debitAccountID, Amount: amount},
			{AccountID: creditAccountID, Amount: amount.Neg()},
		},
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// PathEntry is a draft leg that names its account by path.
type PathEntry struct {
	AccountPath string
	Amount      decimal.Decimal
	Memo        *string
}

// PathDraft is a Draft whose accounts are named by path and resolved at
// creation time.
type PathDraft struct {
	Description string
	Date        time.Time
	Reference   *string
	Entries     []PathEntry
}

// SimpleTransfer moves a positive amount from one account to another: the
// receiving account is debited and the giving account credited.
func SimpleTransfer(description string, date time.Time, fromPath, toPath string, amount decimal.Decimal) PathDraft {
	return PathDraft{
		Description: description,
		Date:        Day(date),
		Entries: []PathEntry{
			{AccountPath: toPath, Amount: amount},
			{AccountPath: fromPath, Amount: amount.Neg()},
		},
	}
}

// IncomeTransfer records income flowing into an asset account.
func IncomeTransfer(description string, date time.Time, incomePath, assetPath string, amount decimal.Decimal) PathDraft {
	return SimpleTransfer(description, date, incomePath, assetPath, amount)
}

// ExpenseTransfer records an expense paid from an asset or liability account.
func ExpenseTransfer(description string, date time.Time, expensePath, paymentPath string, amount decimal.Decimal) PathDraft {
	return SimpleTransfer(description, date, paymentPath, expensePath, amount)
}
