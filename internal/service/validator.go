package service

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Rhymond/go-money"

	"github.com/jask/jaskledger/internal/ledger"
)

// ValidationConfig holds the limits enforced by AccountValidator.
type ValidationConfig struct {
	MaxNameLength int
	MaxDepth      int
	MaxPathLength int
}

// DefaultValidationConfig returns the standard limits.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{MaxNameLength: 100, MaxDepth: 10, MaxPathLength: 500}
}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9.]{1,10}$`)

// AccountValidator checks account rules before anything is written. Every
// check appends to an Issues list so callers see all problems at once.
type AccountValidator struct {
	cfg ValidationConfig
}

func NewAccountValidator(cfg ValidationConfig) *AccountValidator {
	return &AccountValidator{cfg: cfg}
}

// CheckName validates a single account name segment.
func (v *AccountValidator) CheckName(name string, issues *ledger.Issues) {
	if strings.TrimSpace(name) == "" {
		issues.Add(ledger.CodeEmptyName, "name", "account name must not be empty")
		return
	}
	if n := utf8.RuneCountInString(name); n > v.cfg.MaxNameLength {
		issues.Add(ledger.CodeNameTooLong, "name", "account name '%s' is %d characters, max %d", name, n, v.cfg.MaxNameLength)
	}
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(" -_.,()&'", r) {
			continue
		}
		issues.Add(ledger.CodeInvalidNameCharacters, "name", "account name '%s' contains invalid character %q", name, r)
		return
	}
}

// CheckCurrency requires an ISO 4217 code known to go-money.
func (v *AccountValidator) CheckCurrency(code string, issues *ledger.Issues) {
	if code != strings.ToUpper(code) || money.GetCurrency(code) == nil {
		issues.Add(ledger.CodeInvalidCurrency, "currency", "'%s' is not an ISO 4217 currency code", code)
	}
}

// CheckTypeSubtype looks the pair up in the subtype table.
func (v *AccountValidator) CheckTypeSubtype(typ ledger.AccountType, sub ledger.AccountSubtype, issues *ledger.Issues) {
	if !typ.Valid() {
		issues.Add(ledger.CodeInvalidType, "account_type", "unknown account type '%s'", typ)
		return
	}
	if !typ.Permits(sub) {
		issues.Add(ledger.CodeInvalidTypeSubtype, "account_subtype",
			"subtype '%s' is not valid for %s accounts (allowed: %s)", sub, typ, joinSubtypes(ledger.SubtypesFor(typ)))
	}
}

// CheckInvestment validates investment fields and gates them on the subtype.
func (v *AccountValidator) CheckInvestment(sub ledger.AccountSubtype, f ledger.InvestmentFields, issues *ledger.Issues) {
	if f.IsZero() {
		return
	}
	if !sub.IsInvestment() {
		issues.Add(ledger.CodeInvestmentFields, "symbol", "investment fields are not allowed on '%s' accounts", sub)
		return
	}
	if f.Symbol != nil {
		if !symbolPattern.MatchString(*f.Symbol) {
			issues.Add(ledger.CodeInvalidSymbol, "symbol", "symbol '%s' must be 1-10 of A-Z, 0-9 or '.'", *f.Symbol)
		}
		if f.Quantity == nil {
			issues.Add(ledger.CodeMissingQuantity, "quantity", "symbol '%s' requires a quantity", *f.Symbol)
		}
	}
	if f.Quantity != nil && !f.Quantity.IsPositive() {
		issues.Add(ledger.CodeInvalidQuantity, "quantity", "quantity must be positive, got %s", f.Quantity)
	}
	if f.AverageCost != nil && !f.AverageCost.IsPositive() {
		issues.Add(ledger.CodeInvalidAverageCost, "average_cost", "average cost must be positive, got %s", f.AverageCost)
	}
}

// CheckRealEstate validates real estate fields and gates them on the subtype.
func (v *AccountValidator) CheckRealEstate(sub ledger.AccountSubtype, f ledger.RealEstateFields, issues *ledger.Issues) {
	if f.IsZero() {
		return
	}
	if !sub.IsRealEstate() {
		issues.Add(ledger.CodeRealEstateFields, "address", "real estate fields are not allowed on '%s' accounts", sub)
		return
	}
	if f.Address != nil && strings.TrimSpace(*f.Address) == "" {
		issues.Add(ledger.CodeEmptyAddress, "address", "address must not be blank")
	}
	if f.PurchasePrice != nil && !f.PurchasePrice.IsPositive() {
		issues.Add(ledger.CodeInvalidPurchasePrice, "purchase_price", "purchase price must be positive, got %s", f.PurchasePrice)
	}
}

// CheckParent requires an existing, active parent of the same type.
func (v *AccountValidator) CheckParent(typ ledger.AccountType, parentID *string, parent *ledger.Account, issues *ledger.Issues) {
	if parentID == nil {
		return
	}
	if parent == nil {
		issues.Add(ledger.CodeParentNotFound, "parent_id", "parent account %s does not exist", *parentID)
		return
	}
	if !parent.Active {
		issues.Add(ledger.CodeParentInactive, "parent_id", "parent account '%s' is inactive", parent.FullPath)
	}
	if parent.Type != typ {
		issues.Add(ledger.CodeInvalidHierarchy, "account_type",
			"a %s account cannot be placed under '%s' which is %s", typ, parent.FullPath, parent.Type)
	}
}

// CheckPath enforces the depth and length limits of a full path.
func (v *AccountValidator) CheckPath(fullPath string, issues *ledger.Issues) {
	if depth := strings.Count(fullPath, ledger.PathSeparator) + 1; depth > v.cfg.MaxDepth {
		issues.Add(ledger.CodeHierarchyTooDeep, "path", "'%s' is %d levels deep, max %d", fullPath, depth, v.cfg.MaxDepth)
	}
	if n := utf8.RuneCountInString(fullPath); n > v.cfg.MaxPathLength {
		issues.Add(ledger.CodePathTooLong, "path", "path is %d characters, max %d", n, v.cfg.MaxPathLength)
	}
}

// ValidateNew checks an account about to be created. siblingTaken reports
// whether an active sibling already has the name.
func (v *AccountValidator) ValidateNew(a ledger.NewAccount, parent *ledger.Account, fullPath string, siblingTaken bool) error {
	var issues ledger.Issues
	v.CheckName(a.Name, &issues)
	v.CheckCurrency(a.Currency, &issues)
	v.CheckTypeSubtype(a.Type, a.Subtype, &issues)
	v.CheckInvestment(a.Subtype, a.InvestmentFields, &issues)
	v.CheckRealEstate(a.Subtype, a.RealEstateFields, &issues)
	v.CheckParent(a.Type, a.ParentID, parent, &issues)
	v.CheckPath(fullPath, &issues)
	if siblingTaken {
		issues.Add(ledger.CodeDuplicateName, "name", "an active account named '%s' already exists under the same parent", a.Name)
	}
	return issues.Err()
}

// ValidateUpdate checks a partial update against the current account.
func (v *AccountValidator) ValidateUpdate(current ledger.Account, u ledger.AccountUpdates, newPath string, siblingTaken bool) error {
	var issues ledger.Issues
	if u.Name != nil {
		v.CheckName(*u.Name, &issues)
		v.CheckPath(newPath, &issues)
		if siblingTaken {
			issues.Add(ledger.CodeDuplicateName, "name", "an active account named '%s' already exists under the same parent", *u.Name)
		}
	}
	if u.Currency != nil {
		v.CheckCurrency(*u.Currency, &issues)
	}
	if u.TouchesInvestment() {
		merged := current.InvestmentFields
		if u.Symbol != nil {
			merged.Symbol = u.Symbol
		}
		if u.Quantity != nil {
			merged.Quantity = u.Quantity
		}
		if u.AverageCost != nil {
			merged.AverageCost = u.AverageCost
		}
		v.CheckInvestment(current.Subtype, merged, &issues)
	}
	if u.TouchesRealEstate() {
		merged := current.RealEstateFields
		if u.Address != nil {
			merged.Address = u.Address
		}
		if u.PurchaseDate != nil {
			merged.PurchaseDate = u.PurchaseDate
		}
		if u.PurchasePrice != nil {
			merged.PurchasePrice = u.PurchasePrice
		}
		v.CheckRealEstate(current.Subtype, merged, &issues)
	}
	return issues.Err()
}

// ValidateDeactivation rejects deactivating an account with active children.
func (v *AccountValidator) ValidateDeactivation(a ledger.Account, activeChildren int) error {
	if activeChildren == 0 {
		return nil
	}
	return ledger.NewValidationError(ledger.Issue{
		Code:    ledger.CodeHasActiveChildren,
		Field:   "is_active",
		Message: fmt.Sprintf("account '%s' has %d active child account(s)", a.FullPath, activeChildren),
	})
}

func joinSubtypes(subs []ledger.AccountSubtype) string {
	parts := make([]string, len(subs))
	for i, s := range subs {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
