package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/jask/jaskledger/internal/database"
	"github.com/jask/jaskledger/internal/database/repository"
	"github.com/jask/jaskledger/internal/ledger"
)

// AccountService maintains the chart of accounts.
type AccountService struct {
	DB              *sql.DB
	Validator       *AccountValidator
	DefaultCurrency string
	Logger          *slog.Logger
}

func (s *AccountService) validator() *AccountValidator {
	if s.Validator == nil {
		return NewAccountValidator(DefaultValidationConfig())
	}
	return s.Validator
}

func (s *AccountService) currency(c string) string {
	if c != "" {
		return c
	}
	if s.DefaultCurrency != "" {
		return s.DefaultCurrency
	}
	return "EUR"
}

// ResolveOrCreate returns the account at path, creating every missing segment
// in one SQL transaction. Intermediate segments become Category nodes of the
// leaf's type; the leaf gets subtype and attrs. An existing leaf of the same
// type is returned unchanged.
func (s *AccountService) ResolveOrCreate(ctx context.Context, path string, typ ledger.AccountType, subtype ledger.AccountSubtype, attrs ledger.AccountAttrs) (ledger.Account, error) {
	var out ledger.Account
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		a, err := s.resolveOrCreate(ctx, repository.New(tx), path, typ, subtype, attrs)
		out = a
		return err
	})
	return out, err
}

func (s *AccountService) resolveOrCreate(ctx context.Context, repos repository.Repos, path string, typ ledger.AccountType, subtype ledger.AccountSubtype, attrs ledger.AccountAttrs) (ledger.Account, error) {
	segments, err := ledger.SplitPath(path)
	if err != nil {
		return ledger.Account{}, err
	}
	var issues ledger.Issues
	s.validator().CheckTypeSubtype(typ, subtype, &issues)
	if err := issues.Err(); err != nil {
		return ledger.Account{}, err
	}
	currency := s.currency(attrs.Currency)

	var parent *ledger.Account
	for i, name := range segments {
		last := i == len(segments)-1
		var parentID *string
		if parent != nil {
			parentID = &parent.ID
		}
		existing, err := repos.Accounts.FindChild(ctx, parentID, name)
		if err != nil {
			return ledger.Account{}, fmt.Errorf("look up %s: %w", name, err)
		}
		if existing != nil {
			if existing.Type != typ {
				return ledger.Account{}, ledger.NewValidationError(ledger.Issue{
					Code:  ledger.CodeAccountTypeMismatch,
					Field: "path",
					Message: fmt.Sprintf("'%s' already exists as a %s account, cannot resolve '%s' as %s",
						existing.FullPath, existing.Type, path, typ),
				})
			}
			if last {
				return *existing, nil
			}
			parent = existing
			continue
		}

		na := ledger.NewAccount{Name: name, Type: typ, Subtype: ledger.Category, ParentID: parentID, Currency: currency}
		if last {
			na.Subtype = subtype
			na.InvestmentFields = attrs.InvestmentFields
			na.RealEstateFields = attrs.RealEstateFields
			na.Notes = attrs.Notes
		}
		created, err := s.insert(ctx, repos, na, parent, false)
		if err != nil {
			return ledger.Account{}, err
		}
		parent = &created
	}
	return *parent, nil
}

// CreateAccount creates a single account under an explicit parent (or at the
// root when ParentID is nil).
func (s *AccountService) CreateAccount(ctx context.Context, na ledger.NewAccount) (ledger.Account, error) {
	na.Currency = s.currency(na.Currency)
	var out ledger.Account
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		repos := repository.New(tx)
		var parent *ledger.Account
		if na.ParentID != nil {
			p, err := repos.Accounts.Get(ctx, *na.ParentID)
			if err != nil {
				return err
			}
			parent = p
		}
		sibling, err := repos.Accounts.FindChild(ctx, na.ParentID, strings.TrimSpace(na.Name))
		if err != nil {
			return err
		}
		a, err := s.insert(ctx, repos, na, parent, sibling != nil)
		out = a
		return err
	})
	return out, err
}

func (s *AccountService) insert(ctx context.Context, repos repository.Repos, na ledger.NewAccount, parent *ledger.Account, siblingTaken bool) (ledger.Account, error) {
	na.Name = strings.TrimSpace(na.Name)
	parentPath := ""
	if parent != nil {
		parentPath = parent.FullPath
	}
	fullPath := ledger.JoinPath(parentPath, na.Name)
	if err := s.validator().ValidateNew(na, parent, fullPath, siblingTaken); err != nil {
		return ledger.Account{}, err
	}
	now := database.Now()
	a := ledger.Account{
		ID:               uuid.NewString(),
		Name:             na.Name,
		Type:             na.Type,
		Subtype:          na.Subtype,
		ParentID:         na.ParentID,
		FullPath:         fullPath,
		InvestmentFields: na.InvestmentFields,
		RealEstateFields: na.RealEstateFields,
		Currency:         na.Currency,
		Active:           true,
		Notes:            na.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := repos.Accounts.Insert(ctx, a); err != nil {
		return ledger.Account{}, fmt.Errorf("insert account %s: %w", fullPath, err)
	}
	logger(s.Logger).Debug("account created", "path", a.FullPath, "type", a.Type, "subtype", a.Subtype)
	return a, nil
}

// GetAccount returns the account with id.
func (s *AccountService) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	a, err := repository.NewAccountRepo(s.DB).Get(ctx, id)
	if err != nil {
		return ledger.Account{}, err
	}
	if a == nil {
		return ledger.Account{}, &ledger.NotFoundError{Kind: "account", ID: id}
	}
	return *a, nil
}

// GetByPath returns the active account at path.
func (s *AccountService) GetByPath(ctx context.Context, path string) (ledger.Account, error) {
	norm, err := ledger.NormalizePath(path)
	if err != nil {
		return ledger.Account{}, err
	}
	a, err := repository.NewAccountRepo(s.DB).GetByPath(ctx, norm)
	if err != nil {
		return ledger.Account{}, err
	}
	if a == nil {
		return ledger.Account{}, &ledger.NotFoundError{Kind: "account", ID: norm}
	}
	return *a, nil
}

func (s *AccountService) ListAccounts(ctx context.Context, f repository.AccountFilters) ([]ledger.Account, error) {
	return repository.NewAccountRepo(s.DB).List(ctx, f)
}

// Children returns the direct children of id.
func (s *AccountService) Children(ctx context.Context, id string, includeInactive bool) ([]ledger.Account, error) {
	if _, err := s.GetAccount(ctx, id); err != nil {
		return nil, err
	}
	return repository.NewAccountRepo(s.DB).Children(ctx, id, includeInactive)
}

// UpdateAccount applies a partial update. A rename rewrites the full path of
// the whole subtree in the same SQL transaction.
func (s *AccountService) UpdateAccount(ctx context.Context, id string, u ledger.AccountUpdates) (ledger.Account, error) {
	var out ledger.Account
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		repos := repository.New(tx)
		cur, err := repos.Accounts.Get(ctx, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return &ledger.NotFoundError{Kind: "account", ID: id}
		}
		if !u.HasUpdates() {
			out = *cur
			return nil
		}

		newPath := cur.FullPath
		renamed := false
		if u.Name != nil {
			name := strings.TrimSpace(*u.Name)
			u.Name = &name
			renamed = name != cur.Name
			newPath = strings.TrimSuffix(cur.FullPath, cur.Name) + name
		}
		siblingTaken := false
		if renamed {
			sib, err := repos.Accounts.FindChild(ctx, cur.ParentID, *u.Name)
			if err != nil {
				return err
			}
			siblingTaken = sib != nil && sib.ID != cur.ID
		}
		if err := s.validator().ValidateUpdate(*cur, u, newPath, siblingTaken); err != nil {
			return err
		}

		next := *cur
		applyUpdates(&next, u)
		next.UpdatedAt = database.Now()
		if err := repos.Accounts.Update(ctx, next); err != nil {
			return fmt.Errorf("update account %s: %w", cur.FullPath, err)
		}
		if renamed {
			n, err := repos.Accounts.RewritePaths(ctx, cur.ID, cur.FullPath, newPath)
			if err != nil {
				return fmt.Errorf("rewrite paths under %s: %w", cur.FullPath, err)
			}
			next.FullPath = newPath
			logger(s.Logger).Info("account renamed", "from", cur.FullPath, "to", newPath, "rewritten", n)
		}
		out = next
		return nil
	})
	return out, err
}

func applyUpdates(a *ledger.Account, u ledger.AccountUpdates) {
	if u.Name != nil {
		a.Name = *u.Name
	}
	if u.Notes != nil {
		a.Notes = u.Notes
	}
	if u.Symbol != nil {
		a.Symbol = u.Symbol
	}
	if u.Quantity != nil {
		a.Quantity = u.Quantity
	}
	if u.AverageCost != nil {
		a.AverageCost = u.AverageCost
	}
	if u.Address != nil {
		a.Address = u.Address
	}
	if u.PurchaseDate != nil {
		a.PurchaseDate = u.PurchaseDate
	}
	if u.PurchasePrice != nil {
		a.PurchasePrice = u.PurchasePrice
	}
	if u.Currency != nil {
		a.Currency = *u.Currency
	}
}

// Deactivate soft-deletes an account. Accounts with active children cannot be
// deactivated. Deactivating an inactive account is a no-op.
func (s *AccountService) Deactivate(ctx context.Context, id string) error {
	return database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		repos := repository.New(tx)
		a, err := repos.Accounts.Get(ctx, id)
		if err != nil {
			return err
		}
		if a == nil {
			return &ledger.NotFoundError{Kind: "account", ID: id}
		}
		if !a.Active {
			return nil
		}
		n, err := repos.Accounts.CountActiveChildren(ctx, id)
		if err != nil {
			return err
		}
		if err := s.validator().ValidateDeactivation(*a, n); err != nil {
			return err
		}
		if err := repos.Accounts.SetActive(ctx, id, false, database.Now()); err != nil {
			return err
		}
		logger(s.Logger).Info("account deactivated", "path", a.FullPath)
		return nil
	})
}

// Reactivate restores a deactivated account. It is rejected under an inactive
// parent or when an active sibling has taken the name.
func (s *AccountService) Reactivate(ctx context.Context, id string) error {
	return database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		repos := repository.New(tx)
		a, err := repos.Accounts.Get(ctx, id)
		if err != nil {
			return err
		}
		if a == nil {
			return &ledger.NotFoundError{Kind: "account", ID: id}
		}
		if a.Active {
			return nil
		}
		var issues ledger.Issues
		if a.ParentID != nil {
			p, err := repos.Accounts.Get(ctx, *a.ParentID)
			if err != nil {
				return err
			}
			if p != nil && !p.Active {
				issues.Add(ledger.CodeParentInactive, "parent_id", "parent account '%s' is inactive", p.FullPath)
			}
		}
		sib, err := repos.Accounts.FindChild(ctx, a.ParentID, a.Name)
		if err != nil {
			return err
		}
		if sib != nil {
			issues.Add(ledger.CodeDuplicateName, "name", "an active account named '%s' already exists under the same parent", a.Name)
		}
		if err := issues.Err(); err != nil {
			return err
		}
		if err := repos.Accounts.SetActive(ctx, id, true, database.Now()); err != nil {
			return err
		}
		logger(s.Logger).Info("account reactivated", "path", a.FullPath)
		return nil
	})
}
