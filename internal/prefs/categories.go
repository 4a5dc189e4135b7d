package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jask/jaskledger/internal/ledger"
)

const rulesFile = "category_rules.yaml"

// Pattern types for description rules.
const (
	PatternExact    = "exact"
	PatternContains = "contains"
	PatternPrefix   = "prefix"
)

// CategoryRule maps an imported row to the account on the other side of the
// target account. A rule matches on the category hint (and optionally the
// parent hint) or on a description pattern.
type CategoryRule struct {
	Category       string `yaml:"category,omitempty"`
	CategoryParent string `yaml:"category_parent,omitempty"`
	Pattern        string `yaml:"pattern,omitempty"`
	PatternType    string `yaml:"pattern_type,omitempty"`

	Account string `yaml:"account"`
	Type    string `yaml:"type"`
	Subtype string `yaml:"subtype,omitempty"`
}

// Target parses the account the rule points at. An empty subtype means
// ledger.Category.
func (r CategoryRule) Target() (path string, typ ledger.AccountType, sub ledger.AccountSubtype, err error) {
	path, err = ledger.NormalizePath(r.Account)
	if err != nil {
		return "", "", "", err
	}
	typ, err = ledger.ParseAccountType(r.Type)
	if err != nil {
		return "", "", "", err
	}
	sub = ledger.Category
	if r.Subtype != "" {
		if sub, err = ledger.ParseAccountSubtype(r.Subtype); err != nil {
			return "", "", "", err
		}
	}
	if !typ.Permits(sub) {
		return "", "", "", fmt.Errorf("subtype %s is not valid for %s accounts", sub, typ)
	}
	return path, typ, sub, nil
}

func (r CategoryRule) matches(category, parent, description string) bool {
	if r.Category != "" {
		if !strings.EqualFold(strings.TrimSpace(category), r.Category) {
			return false
		}
		return r.CategoryParent == "" || strings.EqualFold(strings.TrimSpace(parent), r.CategoryParent)
	}
	if r.Pattern == "" {
		return false
	}
	desc := strings.ToUpper(strings.TrimSpace(description))
	pattern := strings.ToUpper(r.Pattern)
	switch r.PatternType {
	case PatternExact:
		return desc == pattern
	case PatternPrefix:
		return strings.HasPrefix(desc, pattern)
	default:
		return strings.Contains(desc, pattern)
	}
}

// CategoryRules is the rules file. Rules are tried in order; the first match wins.
type CategoryRules struct {
	Rules []CategoryRule `yaml:"rules"`
}

// Match returns the first rule matching the hints.
func (rs CategoryRules) Match(category, parent, description string) (CategoryRule, bool) {
	for _, r := range rs.Rules {
		if r.matches(category, parent, description) {
			return r, true
		}
	}
	return CategoryRule{}, false
}

// Validate checks every rule's target and pattern.
func (rs CategoryRules) Validate() error {
	var errs []error
	for i, r := range rs.Rules {
		if r.Category == "" && r.Pattern == "" {
			errs = append(errs, fmt.Errorf("rule %d: needs a category or a pattern", i+1))
		}
		switch r.PatternType {
		case "", PatternExact, PatternContains, PatternPrefix:
		default:
			errs = append(errs, fmt.Errorf("rule %d: unknown pattern_type %q", i+1, r.PatternType))
		}
		if _, _, _, err := r.Target(); err != nil {
			errs = append(errs, fmt.Errorf("rule %d: %w", i+1, err))
		}
	}
	return errors.Join(errs...)
}

// DefaultCategoryRules is used when no rules file exists.
func DefaultCategoryRules() CategoryRules {
	return CategoryRules{Rules: []CategoryRule{
		{Category: "Groceries", Account: "Expenses:Food:Groceries", Type: "expense", Subtype: string(ledger.Food)},
		{Category: "Restaurants", Account: "Expenses:Food:Restaurants", Type: "expense", Subtype: string(ledger.Food)},
		{Category: "Transport", Account: "Expenses:Transportation", Type: "expense", Subtype: string(ledger.Transportation)},
		{Category: "Utilities", Account: "Expenses:Utilities", Type: "expense", Subtype: string(ledger.Utilities)},
		{Category: "Rent", Account: "Expenses:Housing:Rent", Type: "expense", Subtype: string(ledger.Housing)},
		{Category: "Health", Account: "Expenses:Healthcare", Type: "expense", Subtype: string(ledger.Healthcare)},
		{Category: "Fees", Account: "Expenses:Fees", Type: "expense", Subtype: string(ledger.Fees)},
		{Category: "Salary", Account: "Income:Salary", Type: "income", Subtype: string(ledger.Salary)},
		{Category: "Interest", Account: "Income:Interest", Type: "income", Subtype: string(ledger.Interest)},
		{Pattern: "SALARY", PatternType: PatternPrefix, Account: "Income:Salary", Type: "income", Subtype: string(ledger.Salary)},
		{Pattern: "DIVIDEND", PatternType: PatternContains, Account: "Income:Dividends", Type: "income", Subtype: string(ledger.Dividend)},
	}}
}

// DefaultRulesPath is category_rules.yaml in the user config dir.
func DefaultRulesPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "jaskledger", rulesFile), nil
}

// LoadCategoryRules reads rules from path. A missing file yields the defaults.
func LoadCategoryRules(path string) (CategoryRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultCategoryRules(), nil
		}
		return CategoryRules{}, err
	}
	var rules CategoryRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return CategoryRules{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := rules.Validate(); err != nil {
		return CategoryRules{}, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// SaveCategoryRules writes rules to path atomically.
func SaveCategoryRules(path string, rules CategoryRules) error {
	if err := rules.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(rules)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
