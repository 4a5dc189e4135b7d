package repository

import (
	"context"
	"database/sql"

	"github.com/jask/jaskledger/internal/database"
)

const batchColumns = `id, source, file_name, file_hash, transaction_count, notes, imported_at`

// BatchRepo handles import_batches.
type BatchRepo struct{ db database.DBTX }

func NewBatchRepo(db database.DBTX) *BatchRepo { return &BatchRepo{db: db} }

func (r *BatchRepo) Insert(ctx context.Context, b ImportBatch) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO import_batches(`+batchColumns+`) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Source, b.FileName, b.FileHash, b.TransactionCount, b.Notes, b.ImportedAt)
	return err
}

func (r *BatchRepo) SetTransactionCount(ctx context.Context, id string, n int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE import_batches SET transaction_count = ? WHERE id = ?`, n, id)
	return err
}

func (r *BatchRepo) Get(ctx context.Context, id string) (*ImportBatch, error) {
	return oneBatch(r.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM import_batches WHERE id = ?`, id))
}

// GetByHash finds the batch a file with the given SHA-256 was imported in.
func (r *BatchRepo) GetByHash(ctx context.Context, hash string) (*ImportBatch, error) {
	return oneBatch(r.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM import_batches WHERE file_hash = ?`, hash))
}

func (r *BatchRepo) List(ctx context.Context) ([]ImportBatch, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+batchColumns+` FROM import_batches ORDER BY imported_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ImportBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func oneBatch(row *sql.Row) (*ImportBatch, error) {
	b, err := scanBatch(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func scanBatch(row scanner) (ImportBatch, error) {
	var b ImportBatch
	var fileName, fileHash, notes sql.NullString
	if err := row.Scan(&b.ID, &b.Source, &fileName, &fileHash, &b.TransactionCount, &notes, &b.ImportedAt); err != nil {
		return ImportBatch{}, err
	}
	b.FileName = strPtr(fileName)
	b.FileHash = strPtr(fileHash)
	b.Notes = strPtr(notes)
	return b, nil
}
