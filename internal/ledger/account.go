package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType is the double-entry classification of an account. It is fixed
// when the account is created.
type AccountType string

const (
	Asset     AccountType = "asset"
	Liability AccountType = "liability"
	Equity    AccountType = "equity"
	Income    AccountType = "income"
	Expense   AccountType = "expense"
)

// AccountTypes lists every account type in chart order.
var AccountTypes = []AccountType{Asset, Liability, Equity, Income, Expense}

// ParseAccountType accepts the stored lowercase name as well as the common
// plural root names used in paths ("Assets", "Expenses").
func ParseAccountType(s string) (AccountType, error) {
	switch s {
	case "asset", "Asset", "assets", "Assets":
		return Asset, nil
	case "liability", "Liability", "liabilities", "Liabilities":
		return Liability, nil
	case "equity", "Equity":
		return Equity, nil
	case "income", "Income":
		return Income, nil
	case "expense", "Expense", "expenses", "Expenses":
		return Expense, nil
	}
	return "", fmt.Errorf("unknown account type %q", s)
}

// Valid reports whether t is one of the five known types.
func (t AccountType) Valid() bool {
	_, ok := subtypesByType[t]
	return ok
}

// IncreasesWithDebit is true for Asset and Expense accounts.
func (t AccountType) IncreasesWithDebit() bool {
	return t == Asset || t == Expense
}

// IncreasesWithCredit is true for Liability, Equity and Income accounts.
func (t AccountType) IncreasesWithCredit() bool {
	return t == Liability || t == Equity || t == Income
}

// DisplayAmount flips the sign of credit-normal balances so that a normal
// balance reads as positive. Stored amounts are never changed.
func DisplayAmount(t AccountType, amount decimal.Decimal) decimal.Decimal {
	if t.IncreasesWithCredit() {
		return amount.Neg()
	}
	return amount
}

// AccountSubtype is the fine-grained category of an account, constrained by
// its AccountType.
type AccountSubtype string

const (
	// asset
	Cash              AccountSubtype = "cash"
	Checking          AccountSubtype = "checking"
	Savings           AccountSubtype = "savings"
	InvestmentAccount AccountSubtype = "investment_account"
	Stocks            AccountSubtype = "stocks"
	ETF               AccountSubtype = "etf"
	Bonds             AccountSubtype = "bonds"
	MutualFund        AccountSubtype = "mutual_fund"
	Crypto            AccountSubtype = "crypto"
	RealEstate        AccountSubtype = "real_estate"
	Equipment         AccountSubtype = "equipment"
	OtherAsset        AccountSubtype = "other_asset"

	// liability
	CreditCard     AccountSubtype = "credit_card"
	Loan           AccountSubtype = "loan"
	Mortgage       AccountSubtype = "mortgage"
	OtherLiability AccountSubtype = "other_liability"

	// equity
	OpeningBalance   AccountSubtype = "opening_balance"
	RetainedEarnings AccountSubtype = "retained_earnings"
	OwnerEquity      AccountSubtype = "owner_equity"

	// income
	Salary       AccountSubtype = "salary"
	Bonus        AccountSubtype = "bonus"
	Dividend     AccountSubtype = "dividend"
	Interest     AccountSubtype = "interest"
	Investment   AccountSubtype = "investment"
	Rental       AccountSubtype = "rental"
	CapitalGains AccountSubtype = "capital_gains"
	OtherIncome  AccountSubtype = "other_income"

	// expense
	Food           AccountSubtype = "food"
	Housing        AccountSubtype = "housing"
	Transportation AccountSubtype = "transportation"
	Communication  AccountSubtype = "communication"
	Entertainment  AccountSubtype = "entertainment"
	Personal       AccountSubtype = "personal"
	Utilities      AccountSubtype = "utilities"
	Healthcare     AccountSubtype = "healthcare"
	Taxes          AccountSubtype = "taxes"
	Fees           AccountSubtype = "fees"
	OtherExpense   AccountSubtype = "other_expense"

	// Category is the generic grouping node permitted under every type. Path
	// resolution creates intermediate nodes with this subtype.
	Category AccountSubtype = "category"
)

// subtypesByType is the single source of truth for which subtypes each
// account type may carry.
var subtypesByType = map[AccountType][]AccountSubtype{
	Asset: {
		Cash, Checking, Savings, InvestmentAccount, Stocks, ETF, Bonds,
		MutualFund, Crypto, RealEstate, Equipment, OtherAsset, Category,
	},
	Liability: {CreditCard, Loan, Mortgage, OtherLiability, Category},
	Equity:    {OpeningBalance, RetainedEarnings, OwnerEquity, Category},
	Income: {
		Salary, Bonus, Dividend, Interest, Investment, Rental, CapitalGains,
		OtherIncome, Category,
	},
	Expense: {
		Food, Housing, Transportation, Communication, Entertainment, Personal,
		Utilities, Healthcare, Taxes, Fees, OtherExpense, Category,
	},
}

// SubtypesFor returns the permitted subtypes for t, or nil for an unknown type.
func SubtypesFor(t AccountType) []AccountSubtype {
	subs := subtypesByType[t]
	out := make([]AccountSubtype, len(subs))
	copy(out, subs)
	return out
}

// Permits reports whether subtype s may be used with account type t.
func (t AccountType) Permits(s AccountSubtype) bool {
	for _, allowed := range subtypesByType[t] {
		if allowed == s {
			return true
		}
	}
	return false
}

// ParseAccountSubtype validates s against the known subtypes.
func ParseAccountSubtype(s string) (AccountSubtype, error) {
	sub := AccountSubtype(s)
	for _, subs := range subtypesByType {
		for _, known := range subs {
			if known == sub {
				return sub, nil
			}
		}
	}
	return "", fmt.Errorf("unknown account subtype %q", s)
}

// IsInvestment reports whether the subtype carries symbol/quantity/cost fields.
func (s AccountSubtype) IsInvestment() bool {
	switch s {
	case InvestmentAccount, Stocks, ETF, Bonds, MutualFund, Crypto:
		return true
	}
	return false
}

// IsRealEstate reports whether the subtype carries address/purchase fields.
func (s AccountSubtype) IsRealEstate() bool {
	return s == RealEstate
}

// Account is a node of the chart of accounts.
type Account struct {
	ID       string
	Name     string
	Type     AccountType
	Subtype  AccountSubtype
	ParentID *string
	FullPath string

	InvestmentFields
	RealEstateFields

	Currency  string
	Active    bool
	Notes     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InvestmentFields are only set on investment subtypes.
type InvestmentFields struct {
	Symbol      *string
	Quantity    *decimal.Decimal
	AverageCost *decimal.Decimal
}

// IsZero reports whether none of the investment fields is set.
func (f InvestmentFields) IsZero() bool {
	return f.Symbol == nil && f.Quantity == nil && f.AverageCost == nil
}

// RealEstateFields are only set on the real estate subtype.
type RealEstateFields struct {
	Address       *string
	PurchaseDate  *time.Time
	PurchasePrice *decimal.Decimal
}

// IsZero reports whether none of the real estate fields is set.
func (f RealEstateFields) IsZero() bool {
	return f.Address == nil && f.PurchaseDate == nil && f.PurchasePrice == nil
}

// NewAccount is the input for creating a single account under an explicit parent.
type NewAccount struct {
	Name     string
	Type     AccountType
	Subtype  AccountSubtype
	ParentID *string

	InvestmentFields
	RealEstateFields

	Currency string
	Notes    *string
}

// AccountAttrs are the leaf attributes applied by path resolution to the last
// segment only.
type AccountAttrs struct {
	InvestmentFields
	RealEstateFields

	Currency string
	Notes    *string
}

// AccountUpdates is a partial update; nil fields are left unchanged.
type AccountUpdates struct {
	Name          *string
	Notes         *string
	Symbol        *string
	Quantity      *decimal.Decimal
	AverageCost   *decimal.Decimal
	Address       *string
	PurchaseDate  *time.Time
	PurchasePrice *decimal.Decimal
	Currency      *string
}

// HasUpdates reports whether any field is set.
func (u AccountUpdates) HasUpdates() bool {
	return u.Name != nil || u.Notes != nil || u.Symbol != nil || u.Quantity != nil ||
		u.AverageCost != nil || u.Address != nil || u.PurchaseDate != nil ||
		u.PurchasePrice != nil || u.Currency != nil
}

// TouchesInvestment reports whether the update sets any investment field.
func (u AccountUpdates) TouchesInvestment() bool {
	return u.Symbol != nil || u.Quantity != nil || u.AverageCost != nil
}

// TouchesRealEstate reports whether the update sets any real estate field.
func (u AccountUpdates) TouchesRealEstate() bool {
	return u.Address != nil || u.PurchaseDate != nil || u.PurchasePrice != nil
}
