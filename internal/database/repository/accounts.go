package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/jask/jaskledger/internal/database"
	"github.com/jask/jaskledger/internal/ledger"
)

const accountColumns = `id, name, account_type, account_subtype, parent_id, full_path,
 symbol, quantity, average_cost, address, purchase_date, purchase_price,
 currency, is_active, notes, created_at, updated_at`

// AccountRepo handles accounts.
type AccountRepo struct {
	db database.DBTX
}

func NewAccountRepo(db database.DBTX) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) Insert(ctx context.Context, a ledger.Account) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO accounts(`+accountColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID, a.Name, string(a.Type), string(a.Subtype), a.ParentID, a.FullPath,
		a.Symbol, nullDec(a.Quantity), nullDec(a.AverageCost), a.Address, nullDate(a.PurchaseDate), nullDec(a.PurchasePrice),
		a.Currency, a.Active, a.Notes, a.CreatedAt, a.UpdatedAt)
	return err
}

// Update writes every mutable column of a. Type, parent and full_path are not
// touched here; see RewritePaths.
func (r *AccountRepo) Update(ctx context.Context, a ledger.Account) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE accounts SET
	 name = ?, account_subtype = ?, symbol = ?, quantity = ?, average_cost = ?,
	 address = ?, purchase_date = ?, purchase_price = ?, currency = ?, notes = ?, updated_at = ?
	WHERE id = ?
	`,
		a.Name, string(a.Subtype), a.Symbol, nullDec(a.Quantity), nullDec(a.AverageCost),
		a.Address, nullDate(a.PurchaseDate), nullDec(a.PurchasePrice), a.Currency, a.Notes, a.UpdatedAt,
		a.ID)
	return err
}

// RewritePaths replaces the oldPath prefix of full_path on rootID and every
// account below it, active or not. It returns the number of rows rewritten.
func (r *AccountRepo) RewritePaths(ctx context.Context, rootID, oldPath, newPath string) (int64, error) {
	// substr counts characters, not bytes.
	res, err := r.db.ExecContext(ctx, `
	WITH RECURSIVE subtree(id) AS (
	 SELECT ?
	 UNION ALL
	 SELECT a.id FROM accounts a JOIN subtree s ON a.parent_id = s.id
	)
	UPDATE accounts
	SET full_path = ? || substr(full_path, ?)
	WHERE id IN (SELECT id FROM subtree)
	`, rootID, newPath, utf8.RuneCountInString(oldPath)+1)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *AccountRepo) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE accounts SET is_active = ?, updated_at = ? WHERE id = ?`, active, at, id)
	return err
}

func (r *AccountRepo) Get(ctx context.Context, id string) (*ledger.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return oneAccount(row)
}

// GetByPath returns the active account at path.
func (r *AccountRepo) GetByPath(ctx context.Context, path string) (*ledger.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE full_path = ? AND is_active = 1`, path)
	return oneAccount(row)
}

// FindChild returns the active child of parentID named name; a nil parentID
// looks among root accounts.
func (r *AccountRepo) FindChild(ctx context.Context, parentID *string, name string) (*ledger.Account, error) {
	var row *sql.Row
	if parentID == nil {
		row = r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE parent_id IS NULL AND name = ? AND is_active = 1`, name)
	} else {
		row = r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE parent_id = ? AND name = ? AND is_active = 1`, *parentID, name)
	}
	return oneAccount(row)
}

func (r *AccountRepo) List(ctx context.Context, f AccountFilters) ([]ledger.Account, error) {
	var where []string
	var args []any
	if f.Type != "" {
		where = append(where, "account_type = ?")
		args = append(args, string(f.Type))
	}
	if !f.IncludeInactive {
		where = append(where, "is_active = 1")
	}
	if f.PathPrefix != "" {
		where = append(where, "(full_path = ? OR substr(full_path, 1, ?) = ?)")
		args = append(args, f.PathPrefix, utf8.RuneCountInString(f.PathPrefix)+1, f.PathPrefix+ledger.PathSeparator)
	}
	query := `SELECT ` + accountColumns + ` FROM accounts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY full_path, is_active DESC"
	return r.query(ctx, query, args...)
}

// Children returns the direct children of id.
func (r *AccountRepo) Children(ctx context.Context, id string, includeInactive bool) ([]ledger.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE parent_id = ?`
	if !includeInactive {
		query += " AND is_active = 1"
	}
	query += " ORDER BY name"
	return r.query(ctx, query, id)
}

func (r *AccountRepo) CountActiveChildren(ctx context.Context, id string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE parent_id = ? AND is_active = 1`, id).Scan(&n)
	return n, err
}

// GetMany returns the accounts in ids keyed by id. Unknown ids are absent
// from the result.
func (r *AccountRepo) GetMany(ctx context.Context, ids []string) (map[string]ledger.Account, error) {
	out := make(map[string]ledger.Account, len(ids))
	for _, chunk := range chunks(ids, maxParams) {
		accts, err := r.query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id IN (`+placeholders(len(chunk))+`)`, anySlice(chunk)...)
		if err != nil {
			return nil, err
		}
		for _, a := range accts {
			out[a.ID] = a
		}
	}
	return out, nil
}

func (r *AccountRepo) query(ctx context.Context, query string, args ...any) ([]ledger.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func oneAccount(row *sql.Row) (*ledger.Account, error) {
	a, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func scanAccount(row scanner) (ledger.Account, error) {
	var a ledger.Account
	var typ, subtype string
	var parent, symbol, address, purchaseDate, notes sql.NullString
	var quantity, avgCost, price decimal.NullDecimal
	if err := row.Scan(&a.ID, &a.Name, &typ, &subtype, &parent, &a.FullPath,
		&symbol, &quantity, &avgCost, &address, &purchaseDate, &price,
		&a.Currency, &a.Active, &notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return ledger.Account{}, err
	}
	a.Type = ledger.AccountType(typ)
	a.Subtype = ledger.AccountSubtype(subtype)
	a.ParentID = strPtr(parent)
	a.Symbol = strPtr(symbol)
	a.Quantity = decPtr(quantity)
	a.AverageCost = decPtr(avgCost)
	a.Address = strPtr(address)
	a.PurchasePrice = decPtr(price)
	a.Notes = strPtr(notes)
	pd, err := datePtr(purchaseDate)
	if err != nil {
		return ledger.Account{}, err
	}
	a.PurchaseDate = pd
	return a, nil
}

// maxParams keeps IN lists well below SQLite's bound-variable limit.
const maxParams = 500

func chunks(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
