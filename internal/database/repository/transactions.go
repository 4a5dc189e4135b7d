package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jask/jaskledger/internal/database"
	"github.com/jask/jaskledger/internal/ledger"
)

const transactionColumns = `t.id, t.description, t.reference, t.transaction_date, t.created_by, t.created_at,
 t.import_source, t.import_batch_id, t.external_reference, t.is_duplicate, t.merged_into_transaction_id`

// TransactionRepo handles transactions and their journal entries.
type TransactionRepo struct {
	db database.DBTX
}

func NewTransactionRepo(db database.DBTX) *TransactionRepo { return &TransactionRepo{db: db} }

func (r *TransactionRepo) Insert(ctx context.Context, t ledger.Transaction) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO transactions(
	 id, description, reference, transaction_date, created_by, created_at,
	 import_source, import_batch_id, external_reference, is_duplicate, merged_into_transaction_id)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`,
		t.ID, t.Description, t.Reference, dateArg(t.Date), t.CreatedBy, t.CreatedAt,
		t.ImportSource, t.ImportBatchID, t.ExternalReference, t.IsDuplicate, t.MergedIntoTransactionID)
	return err
}

func (r *TransactionRepo) InsertEntry(ctx context.Context, e ledger.JournalEntry) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO journal_entries(id, transaction_id, entry_index, account_id, amount, memo, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?);
	`, e.ID, e.TransactionID, e.Index, e.AccountID, e.Amount.String(), e.Memo, e.CreatedAt)
	return err
}

func (r *TransactionRepo) Get(ctx context.Context, id string) (*ledger.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions t WHERE t.id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// GetWithEntries returns the transaction with its entries in entry order.
func (r *TransactionRepo) GetWithEntries(ctx context.Context, id string) (*ledger.TransactionWithEntries, error) {
	t, err := r.Get(ctx, id)
	if err != nil || t == nil {
		return nil, err
	}
	entries, err := r.entriesFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	return &ledger.TransactionWithEntries{Transaction: *t, Entries: entries[id]}, nil
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilters) ([]ledger.TransactionWithEntries, error) {
	var where []string
	var args []any

	if !f.IncludeHidden {
		where = append(where, visibleTransaction)
	}
	if !f.From.IsZero() {
		where = append(where, "t.transaction_date >= ?")
		args = append(args, dateArg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "t.transaction_date <= ?")
		args = append(args, dateArg(f.To))
	}
	if f.ImportBatchID != "" {
		where = append(where, "t.import_batch_id = ?")
		args = append(args, f.ImportBatchID)
	}
	if f.AccountPath != "" {
		where = append(where, `EXISTS (
		 SELECT 1 FROM journal_entries je JOIN accounts a ON a.id = je.account_id
		 WHERE je.transaction_id = t.id AND (a.full_path = ? OR substr(a.full_path, 1, ?) = ?))`)
		args = append(args, f.AccountPath, utf8.RuneCountInString(f.AccountPath)+1, f.AccountPath+ledger.PathSeparator)
	}

	query := "SELECT " + transactionColumns + " FROM transactions t"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY t.transaction_date DESC, t.created_at DESC, t.id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.listWithEntries(ctx, query, args...)
}

// VisibleBetween returns every visible transaction dated within [from, to],
// with entries. It is the candidate population for duplicate matching.
func (r *TransactionRepo) VisibleBetween(ctx context.Context, from, to time.Time) ([]ledger.TransactionWithEntries, error) {
	return r.listWithEntries(ctx, `SELECT `+transactionColumns+` FROM transactions t
	WHERE `+visibleTransaction+` AND t.transaction_date >= ? AND t.transaction_date <= ?
	ORDER BY t.transaction_date, t.id`, dateArg(from), dateArg(to))
}

// InBatch returns the transactions imported under batchID, hidden ones included.
func (r *TransactionRepo) InBatch(ctx context.Context, batchID string) ([]ledger.TransactionWithEntries, error) {
	return r.listWithEntries(ctx, `SELECT `+transactionColumns+` FROM transactions t
	WHERE t.import_batch_id = ? ORDER BY t.transaction_date, t.id`, batchID)
}

// MarkMerged hides duplicateID behind primaryID, but only if it is still
// visible. Zero rows affected means another writer got there first.
func (r *TransactionRepo) MarkMerged(ctx context.Context, duplicateID, primaryID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET is_duplicate = 1, merged_into_transaction_id = ?
	WHERE id = ? AND merged_into_transaction_id IS NULL
	`, primaryID, duplicateID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClearMerge makes id visible again. Zero rows affected means it was not merged.
func (r *TransactionRepo) ClearMerge(ctx context.Context, id string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET is_duplicate = 0, merged_into_transaction_id = NULL
	WHERE id = ? AND merged_into_transaction_id IS NOT NULL
	`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountMergedInto counts transactions currently hidden behind id.
func (r *TransactionRepo) CountMergedInto(ctx context.Context, id string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE merged_into_transaction_id = ?`, id).Scan(&n)
	return n, err
}

// MergedInto lists transactions currently hidden behind id.
func (r *TransactionRepo) MergedInto(ctx context.Context, id string) ([]ledger.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions t
	WHERE t.merged_into_transaction_id = ? ORDER BY t.transaction_date, t.id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// IDsWithPrefix returns up to limit transaction ids starting with prefix.
func (r *TransactionRepo) IDsWithPrefix(ctx context.Context, prefix string, limit int) ([]string, error) {
	return idsWithPrefix(ctx, r.db, "transactions", prefix, limit)
}

func (r *TransactionRepo) listWithEntries(ctx context.Context, query string, args ...any) ([]ledger.TransactionWithEntries, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []ledger.TransactionWithEntries
	var ids []string
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, ledger.TransactionWithEntries{Transaction: t})
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	entries, err := r.entriesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Entries = entries[out[i].ID]
	}
	return out, nil
}

func (r *TransactionRepo) entriesFor(ctx context.Context, txIDs []string) (map[string][]ledger.JournalEntry, error) {
	out := make(map[string][]ledger.JournalEntry, len(txIDs))
	for _, chunk := range chunks(txIDs, maxParams) {
		rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.transaction_id, e.entry_index, e.account_id, e.amount, e.memo, e.created_at, a.full_path, a.name
		FROM journal_entries e JOIN accounts a ON a.id = e.account_id
		WHERE e.transaction_id IN (`+placeholders(len(chunk))+`)
		ORDER BY e.transaction_id, e.entry_index`, anySlice(chunk)...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var e ledger.JournalEntry
			var memo sql.NullString
			if err := rows.Scan(&e.ID, &e.TransactionID, &e.Index, &e.AccountID, &e.Amount, &memo,
				&e.CreatedAt, &e.AccountPath, &e.AccountName); err != nil {
				rows.Close()
				return nil, err
			}
			e.Memo = strPtr(memo)
			out[e.TransactionID] = append(out[e.TransactionID], e)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

func scanTransaction(row scanner) (ledger.Transaction, error) {
	return scanTransactionWith(row)
}

// scanTransactionWith scans transactionColumns followed by extra columns.
func scanTransactionWith(row scanner, extra ...any) (ledger.Transaction, error) {
	var t ledger.Transaction
	var date string
	var reference, createdBy, source, batch, external, mergedInto sql.NullString
	dest := []any{&t.ID, &t.Description, &reference, &date, &createdBy, &t.CreatedAt,
		&source, &batch, &external, &t.IsDuplicate, &mergedInto}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return ledger.Transaction{}, err
	}
	d, err := ledger.ParseDay(date)
	if err != nil {
		return ledger.Transaction{}, err
	}
	t.Date = d
	t.Reference = strPtr(reference)
	t.CreatedBy = strPtr(createdBy)
	t.ImportSource = strPtr(source)
	t.ImportBatchID = strPtr(batch)
	t.ExternalReference = strPtr(external)
	t.MergedIntoTransactionID = strPtr(mergedInto)
	return t, nil
}

func idsWithPrefix(ctx context.Context, db database.DBTX, table, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 2
	}
	rows, err := db.QueryContext(ctx, `SELECT id FROM `+table+` WHERE substr(id, 1, ?) = ? ORDER BY id LIMIT ?`,
		utf8.RuneCountInString(prefix), prefix, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
