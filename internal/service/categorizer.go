package service

import (
	"context"
	"fmt"

	"github.com/jask/jaskledger/internal/database/repository"
	"github.com/jask/jaskledger/internal/ledger"
	"github.com/jask/jaskledger/internal/prefs"
)

// Fallback counter accounts for imported rows no rule matches.
const (
	UncategorizedExpensePath = "Expenses:Uncategorized"
	UncategorizedIncomePath  = "Income:Uncategorized"
)

// Categorizer picks the account on the other side of an imported row.
// Precedence: the first matching category rule, then the uncategorized
// fallback for the flow direction.
type Categorizer struct {
	Rules    prefs.CategoryRules
	Accounts *AccountService
}

// CounterAccount resolves (creating if needed) the counter account for p
// posted against target. Accounts it creates take target's currency.
// repos must be bound to the import's SQL transaction.
func (c *Categorizer) CounterAccount(ctx context.Context, repos repository.Repos, target ledger.Account, p Proposal) (ledger.Account, error) {
	path, typ, sub, err := c.target(p)
	if err != nil {
		return ledger.Account{}, err
	}
	return c.Accounts.resolveOrCreate(ctx, repos, path, typ, sub, ledger.AccountAttrs{Currency: target.Currency})
}

func (c *Categorizer) target(p Proposal) (string, ledger.AccountType, ledger.AccountSubtype, error) {
	if rule, ok := c.Rules.Match(p.CategoryHint, p.CategoryParentHint, p.Description); ok {
		path, typ, sub, err := rule.Target()
		if err != nil {
			return "", "", "", fmt.Errorf("category rule for %q: %w", rule.Account, err)
		}
		return path, typ, sub, nil
	}
	if p.Amount.IsPositive() {
		return UncategorizedIncomePath, ledger.Income, ledger.Category, nil
	}
	return UncategorizedExpensePath, ledger.Expense, ledger.Category, nil
}
