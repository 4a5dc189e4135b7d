package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/jaskledger/internal/database"
	"github.com/jask/jaskledger/internal/ledger"
)

const matchColumns = `m.id, m.primary_transaction_id, m.duplicate_transaction_id, m.match_confidence,
 m.match_criteria, m.match_type, m.status, m.created_at, m.updated_at`

// MatchRepo handles transaction_matches.
type MatchRepo struct{ db database.DBTX }

func NewMatchRepo(db database.DBTX) *MatchRepo { return &MatchRepo{db: db} }

// Insert stores m unless a match for the same unordered pair already exists.
// It reports whether a row was written.
func (r *MatchRepo) Insert(ctx context.Context, m ledger.Match) (bool, error) {
	criteria, err := json.Marshal(m.Criteria)
	if err != nil {
		return false, fmt.Errorf("encode match criteria: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO transaction_matches(
	 id, primary_transaction_id, duplicate_transaction_id, match_confidence, match_criteria,
	 match_type, status, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT DO NOTHING
	`, m.ID, m.PrimaryTransactionID, m.DuplicateTransactionID, m.Confidence.String(), string(criteria),
		string(m.Type), string(m.Status), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *MatchRepo) Get(ctx context.Context, id string) (*ledger.Match, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM transaction_matches m WHERE m.id = ?`, id)
	return oneMatch(row)
}

// GetByPair finds the match between a and b in either direction.
func (r *MatchRepo) GetByPair(ctx context.Context, a, b string) (*ledger.Match, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM transaction_matches m
	WHERE (m.primary_transaction_id = ? AND m.duplicate_transaction_id = ?)
	   OR (m.primary_transaction_id = ? AND m.duplicate_transaction_id = ?)`, a, b, b, a)
	return oneMatch(row)
}

// SetStatus moves a match from one status to another. Zero rows affected
// means the stored status was no longer from.
func (r *MatchRepo) SetStatus(ctx context.Context, id string, from, to ledger.MatchStatus, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE transaction_matches SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), at, id, string(from))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ResolvePendingFor settles the pending matches touching a transaction that
// has just been hidden behind primaryID: the match for that pair becomes
// Confirmed and every other pending match on hiddenID becomes Rejected.
func (r *MatchRepo) ResolvePendingFor(ctx context.Context, hiddenID, primaryID string, at time.Time) (confirmed, rejected int64, err error) {
	res, err := r.db.ExecContext(ctx, `
	UPDATE transaction_matches SET status = ?, updated_at = ?
	WHERE status = ? AND (
	 (primary_transaction_id = ? AND duplicate_transaction_id = ?) OR
	 (primary_transaction_id = ? AND duplicate_transaction_id = ?))
	`, string(ledger.Confirmed), at, string(ledger.Pending), hiddenID, primaryID, primaryID, hiddenID)
	if err != nil {
		return 0, 0, err
	}
	if confirmed, err = res.RowsAffected(); err != nil {
		return 0, 0, err
	}
	res, err = r.db.ExecContext(ctx, `
	UPDATE transaction_matches SET status = ?, updated_at = ?
	WHERE status = ? AND (primary_transaction_id = ? OR duplicate_transaction_id = ?)
	`, string(ledger.Rejected), at, string(ledger.Pending), hiddenID, hiddenID)
	if err != nil {
		return 0, 0, err
	}
	rejected, err = res.RowsAffected()
	return confirmed, rejected, err
}

// ForTransaction returns the matches naming id on either side, most
// confident first.
func (r *MatchRepo) ForTransaction(ctx context.Context, id string) ([]ledger.Match, error) {
	return r.query(ctx, `SELECT `+matchColumns+` FROM transaction_matches m
	WHERE m.primary_transaction_id = ? OR m.duplicate_transaction_id = ?
	ORDER BY CAST(m.match_confidence AS REAL) DESC, m.created_at, m.id`, id, id)
}

func (r *MatchRepo) List(ctx context.Context, f MatchFilters) ([]ledger.Match, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "m.status = ?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		where = append(where, "m.match_type = ?")
		args = append(args, string(f.Type))
	}
	query := `SELECT ` + matchColumns + ` FROM transaction_matches m`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY CAST(m.match_confidence AS REAL) DESC, m.created_at, m.id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.query(ctx, query, args...)
}

// DuplicateSummaries counts matches per visible transaction, busiest first.
// With onlyWithMatches unset, transactions without matches are included.
func (r *MatchRepo) DuplicateSummaries(ctx context.Context, limit int, onlyWithMatches bool) ([]DuplicateSummary, error) {
	query := `
	SELECT ` + transactionColumns + `,
	 COUNT(m.id),
	 COALESCE(SUM(CASE WHEN m.status = 'PENDING' THEN 1 ELSE 0 END), 0)
	FROM transactions t
	LEFT JOIN transaction_matches m
	 ON m.primary_transaction_id = t.id OR m.duplicate_transaction_id = t.id
	WHERE ` + visibleTransaction + `
	GROUP BY t.id`
	if onlyWithMatches {
		query += " HAVING COUNT(m.id) > 0"
	}
	query += " ORDER BY COUNT(m.id) DESC, t.transaction_date DESC, t.id"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DuplicateSummary
	for rows.Next() {
		var s DuplicateSummary
		t, err := scanTransactionWith(rows, &s.Matches, &s.Pending)
		if err != nil {
			return nil, err
		}
		s.Transaction = t
		out = append(out, s)
	}
	return out, rows.Err()
}

// IDsWithPrefix returns up to limit match ids starting with prefix.
func (r *MatchRepo) IDsWithPrefix(ctx context.Context, prefix string, limit int) ([]string, error) {
	return idsWithPrefix(ctx, r.db, "transaction_matches", prefix, limit)
}

func (r *MatchRepo) query(ctx context.Context, query string, args ...any) ([]ledger.Match, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func oneMatch(row *sql.Row) (*ledger.Match, error) {
	m, err := scanMatch(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func scanMatch(row scanner) (ledger.Match, error) {
	var m ledger.Match
	var conf decimal.Decimal
	var criteria, typ, status string
	if err := row.Scan(&m.ID, &m.PrimaryTransactionID, &m.DuplicateTransactionID, &conf,
		&criteria, &typ, &status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return ledger.Match{}, err
	}
	m.Confidence = conf
	if err := json.Unmarshal([]byte(criteria), &m.Criteria); err != nil {
		return ledger.Match{}, fmt.Errorf("decode criteria of match %s: %w", m.ID, err)
	}
	var err error
	if m.Type, err = ledger.ParseMatchType(typ); err != nil {
		return ledger.Match{}, err
	}
	if m.Status, err = ledger.ParseMatchStatus(status); err != nil {
		return ledger.Match{}, err
	}
	return m, nil
}
