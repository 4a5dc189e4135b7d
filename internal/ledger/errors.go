package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Sentinels for the error taxonomy. Concrete error types match them through
// errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// ErrEmptyAccountName is returned for an empty or whitespace-only path.
	ErrEmptyAccountName = fmt.Errorf("%w: empty account name", ErrValidation)
)

// Code identifies which rule a validation Issue violates.
type Code string

const (
	CodeEmptyName              Code = "empty_name"
	CodeNameTooLong            Code = "name_too_long"
	CodeInvalidNameCharacters  Code = "invalid_name_characters"
	CodeDuplicateName          Code = "duplicate_name"
	CodeInvalidCurrency        Code = "invalid_currency"
	CodeInvalidType            Code = "invalid_account_type"
	CodeInvalidTypeSubtype     Code = "invalid_type_subtype"
	CodeInvalidSymbol          Code = "invalid_symbol"
	CodeMissingQuantity        Code = "missing_quantity_for_symbol"
	CodeInvalidQuantity        Code = "invalid_quantity"
	CodeInvalidAverageCost     Code = "invalid_average_cost"
	CodeInvestmentFields       Code = "investment_fields_on_non_investment"
	CodeEmptyAddress           Code = "empty_address"
	CodeInvalidPurchasePrice   Code = "invalid_purchase_price"
	CodeRealEstateFields       Code = "real_estate_fields_on_non_real_estate"
	CodeInvalidHierarchy       Code = "invalid_hierarchy"
	CodeHierarchyTooDeep       Code = "hierarchy_too_deep"
	CodeParentNotFound         Code = "parent_not_found"
	CodeParentInactive         Code = "parent_inactive"
	CodeEmptyPathSegment       Code = "empty_path_segment"
	CodePathTooLong            Code = "path_too_long"
	CodeHasActiveChildren      Code = "has_active_children"
	CodeTooFewEntries          Code = "too_few_entries"
	CodeAmountPrecision        Code = "amount_precision"
	CodeAccountInactive        Code = "account_inactive"
	CodeUnknownAccount         Code = "unknown_account"
	CodeCurrencyMismatch       Code = "currency_mismatch"
	CodeMissingDate            Code = "missing_date"
	CodeInvalidDateRange       Code = "invalid_date_range"
	CodeInvalidTolerance       Code = "invalid_tolerance"
	CodeLowConfidence          Code = "confidence_below_threshold"
	CodeInvalidStatus          Code = "invalid_status"
	CodeAccountTypeMismatch    Code = "account_type_mismatch"
	CodeEmptyImportTargetPath  Code = "empty_import_target"
	CodeInvalidImportedAmount  Code = "invalid_imported_amount"
	CodeInvalidImportedDate    Code = "invalid_imported_date"
	CodeEmptyImportDescription Code = "empty_import_description"
)

// Issue is one violated rule, with the offending values in Message.
type Issue struct {
	Code    Code
	Field   string
	Message string
}

func (i Issue) String() string {
	if i.Field == "" {
		return i.Message
	}
	return i.Field + ": " + i.Message
}

// ValidationError collects every issue found before any write happened.
type ValidationError struct {
	Issues []Issue
}

// NewValidationError builds a ValidationError from issues.
func NewValidationError(issues ...Issue) *ValidationError {
	return &ValidationError{Issues: issues}
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return "validation failed: " + e.Issues[0].String()
	}
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("validation failed (%d issues): %s", len(e.Issues), strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Has reports whether an issue with the given code is present.
func (e *ValidationError) Has(code Code) bool {
	for _, issue := range e.Issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}

// Issues accumulates validation issues; the zero value is ready to use.
type Issues []Issue

// Add records an issue.
func (is *Issues) Add(code Code, field, format string, args ...any) {
	*is = append(*is, Issue{Code: code, Field: field, Message: fmt.Sprintf(format, args...)})
}

// Err returns a *ValidationError if any issue was recorded, otherwise nil.
func (is Issues) Err() error {
	if len(is) == 0 {
		return nil
	}
	return NewValidationError(is...)
}

// UnbalancedTransactionError is returned when a draft's entries do not sum to zero.
type UnbalancedTransactionError struct {
	Expected decimal.Decimal
	Actual   decimal.Decimal
}

func (e *UnbalancedTransactionError) Error() string {
	return fmt.Sprintf("transaction does not balance: expected %s, got %s",
		e.Expected.String(), e.Actual.String())
}

func (e *UnbalancedTransactionError) Is(target error) bool { return target == ErrValidation }

// NotFoundError is returned when an id or path does not resolve.
type NotFoundError struct {
	Kind string // "account", "transaction", "match", "import batch"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictReason names the invariant a conflicting operation would break.
type ConflictReason string

const (
	ReasonSelfMerge         ConflictReason = "cannot merge a transaction into itself"
	ReasonPrimaryHidden     ConflictReason = "primary transaction is itself merged into another transaction"
	ReasonDuplicateIsTarget ConflictReason = "duplicate transaction is the merge target of other transactions"
	ReasonAlreadyHidden     ConflictReason = "duplicate transaction is already merged"
	ReasonMergeRaceLost     ConflictReason = "transaction was merged concurrently"
	ReasonTerminalStatus    ConflictReason = "match status is terminal"
	ReasonMatchNotConfirmed ConflictReason = "match is not confirmed"
	ReasonFileImported      ConflictReason = "file already imported"
	ReasonAmbiguousID       ConflictReason = "id prefix is ambiguous"
)

// ConflictError is returned when an operation conflicts with current state.
type ConflictError struct {
	Op     string
	Reason ConflictReason
	Detail string
}

func (e *ConflictError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Op, e.Reason, e.Detail)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// IsConflict reports whether err is a ConflictError with the given reason.
func IsConflict(err error, reason ConflictReason) bool {
	var ce *ConflictError
	return errors.As(err, &ce) && ce.Reason == reason
}

// HasIssue reports whether err is a ValidationError carrying code.
func HasIssue(err error, code Code) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Has(code)
}
