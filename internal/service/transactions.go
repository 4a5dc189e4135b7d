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

// TransactionService is the ledger store: it writes balanced transactions and
// reads them back with their entries.
type TransactionService struct {
	DB       *sql.DB
	Accounts *AccountService
	Logger   *slog.Logger
}

// CreateTransaction validates the draft and writes the header and all entries
// atomically. Nothing is written when validation fails.
func (s *TransactionService) CreateTransaction(ctx context.Context, d ledger.Draft) (ledger.TransactionWithEntries, error) {
	if err := d.Check(); err != nil {
		return ledger.TransactionWithEntries{}, err
	}
	var out ledger.TransactionWithEntries
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		t, err := createTransaction(ctx, repository.New(tx), d)
		out = t
		return err
	})
	if err != nil {
		return ledger.TransactionWithEntries{}, err
	}
	logger(s.Logger).Debug("transaction created", "id", out.ID, "date", out.Date.Format(ledger.DateLayout),
		"amount", out.TotalDebits().String())
	return out, nil
}

// createTransaction writes a checked draft through repos, which must be bound
// to an open SQL transaction.
func createTransaction(ctx context.Context, repos repository.Repos, d ledger.Draft) (ledger.TransactionWithEntries, error) {
	if err := d.Check(); err != nil {
		return ledger.TransactionWithEntries{}, err
	}
	ids := make([]string, 0, len(d.Entries))
	for _, e := range d.Entries {
		ids = append(ids, e.AccountID)
	}
	accounts, err := repos.Accounts.GetMany(ctx, ids)
	if err != nil {
		return ledger.TransactionWithEntries{}, fmt.Errorf("load entry accounts: %w", err)
	}

	var issues ledger.Issues
	currency := ""
	for i, e := range d.Entries {
		a, ok := accounts[e.AccountID]
		if !ok {
			issues.Add(ledger.CodeUnknownAccount, "entries", "entry %d references unknown account %s", i, e.AccountID)
			continue
		}
		if !a.Active {
			issues.Add(ledger.CodeAccountInactive, "entries", "entry %d posts to inactive account '%s'", i, a.FullPath)
		}
		if currency == "" {
			currency = a.Currency
		} else if a.Currency != currency {
			issues.Add(ledger.CodeCurrencyMismatch, "entries",
				"entry %d account '%s' is in %s, transaction is in %s", i, a.FullPath, a.Currency, currency)
		}
	}
	if err := issues.Err(); err != nil {
		return ledger.TransactionWithEntries{}, err
	}

	now := database.Now()
	t := ledger.Transaction{
		ID:                uuid.NewString(),
		Description:       strings.TrimSpace(d.Description),
		Reference:         d.Reference,
		Date:              ledger.Day(d.Date),
		CreatedBy:         d.CreatedBy,
		CreatedAt:         now,
		ImportSource:      d.ImportSource,
		ImportBatchID:     d.ImportBatchID,
		ExternalReference: d.ExternalReference,
	}
	if err := repos.Transactions.Insert(ctx, t); err != nil {
		return ledger.TransactionWithEntries{}, fmt.Errorf("insert transaction: %w", err)
	}
	out := ledger.TransactionWithEntries{Transaction: t, Entries: make([]ledger.JournalEntry, 0, len(d.Entries))}
	for i, e := range d.Entries {
		a := accounts[e.AccountID]
		je := ledger.JournalEntry{
			ID:            uuid.NewString(),
			TransactionID: t.ID,
			Index:         i,
			AccountID:     e.AccountID,
			Amount:        e.Amount,
			Memo:          e.Memo,
			CreatedAt:     now,
			AccountPath:   a.FullPath,
			AccountName:   a.Name,
		}
		if err := repos.Transactions.InsertEntry(ctx, je); err != nil {
			return ledger.TransactionWithEntries{}, fmt.Errorf("insert entry %d: %w", i, err)
		}
		out.Entries = append(out.Entries, je)
	}
	return out, nil
}

// CreateTransactionByPath resolves every entry's account path and writes the
// transaction in the same SQL transaction. A missing account is created when
// its root segment names an account type ("Expenses:Food"); otherwise the
// path must already exist.
func (s *TransactionService) CreateTransactionByPath(ctx context.Context, pd ledger.PathDraft, opts ...ledger.DraftOption) (ledger.TransactionWithEntries, error) {
	var out ledger.TransactionWithEntries
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		repos := repository.New(tx)
		d := ledger.Draft{Description: pd.Description, Date: pd.Date, Reference: pd.Reference}
		for _, pe := range pd.Entries {
			a, err := s.accountForPath(ctx, repos, pe.AccountPath)
			if err != nil {
				return err
			}
			d.Entries = append(d.Entries, ledger.EntryDraft{AccountID: a.ID, Amount: pe.Amount, Memo: pe.Memo})
		}
		for _, opt := range opts {
			opt(&d)
		}
		t, err := createTransaction(ctx, repos, d)
		out = t
		return err
	})
	return out, err
}

func (s *TransactionService) accountForPath(ctx context.Context, repos repository.Repos, path string) (ledger.Account, error) {
	norm, err := ledger.NormalizePath(path)
	if err != nil {
		return ledger.Account{}, err
	}
	a, err := repos.Accounts.GetByPath(ctx, norm)
	if err != nil {
		return ledger.Account{}, err
	}
	if a != nil {
		return *a, nil
	}
	root, _, _ := strings.Cut(norm, ledger.PathSeparator)
	typ, err := ledger.ParseAccountType(root)
	if err != nil || s.Accounts == nil {
		return ledger.Account{}, &ledger.NotFoundError{Kind: "account", ID: norm}
	}
	return s.Accounts.resolveOrCreate(ctx, repos, norm, typ, ledger.Category, ledger.AccountAttrs{})
}

// GetTransaction returns the transaction with its ordered entries, or nil if
// id does not exist. Hidden transactions are returned too.
func (s *TransactionService) GetTransaction(ctx context.Context, id string) (*ledger.TransactionWithEntries, error) {
	return repository.NewTransactionRepo(s.DB).GetWithEntries(ctx, id)
}

func (s *TransactionService) ListTransactions(ctx context.Context, f repository.TransactionFilters) ([]ledger.TransactionWithEntries, error) {
	return repository.NewTransactionRepo(s.DB).List(ctx, f)
}

// ResolveTransactionID expands an id prefix to a full transaction id.
func (s *TransactionService) ResolveTransactionID(ctx context.Context, prefix string) (string, error) {
	return resolvePrefix(ctx, "transaction", prefix, repository.NewTransactionRepo(s.DB).IDsWithPrefix)
}

func resolvePrefix(ctx context.Context, kind, prefix string, lookup func(context.Context, string, int) ([]string, error)) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", &ledger.NotFoundError{Kind: kind, ID: prefix}
	}
	ids, err := lookup(ctx, prefix, 2)
	if err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", &ledger.NotFoundError{Kind: kind, ID: prefix}
	case 1:
		return ids[0], nil
	default:
		return "", &ledger.ConflictError{Op: "resolve " + kind + " id", Reason: ledger.ReasonAmbiguousID, Detail: prefix}
	}
}
