package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jask/jaskledger/internal/database"
	"github.com/jask/jaskledger/internal/database/repository"
	"github.com/jask/jaskledger/internal/ledger"
)

// Proposal is one normalized row from an import file. Amount is signed from
// the target account's point of view: positive amounts flow into it.
type Proposal struct {
	Line               int
	Date               time.Time
	Description        string
	Amount             decimal.Decimal
	CategoryHint       string
	CategoryParentHint string
	AccountLabel       string
	ExternalReference  string
	Raw                map[string]string
}

// ImportRequest is a batch of proposals posted against one target account.
type ImportRequest struct {
	TargetPath string
	Source     string
	FileName   string
	// FileHash is the hex SHA-256 of the file. A file is imported at most once.
	FileHash  string
	Notes     string
	Proposals []Proposal
}

// RowError is a proposal that could not be posted. The rest of the batch is
// unaffected.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *RowError) Unwrap() error { return e.Err }

// ImportResult summarizes an import.
type ImportResult struct {
	BatchID  string
	Imported int
	Errors   []error
	// Detection is nil when detection did not run or failed; DetectionErr
	// carries the failure. Neither undoes the import.
	Detection    *DetectionSummary
	DetectionErr error
}

// IngestService is the import adapter: it maps proposals to balanced
// two-entry transactions under a new import batch, then runs duplicate
// detection for that batch.
type IngestService struct {
	DB               *sql.DB
	Accounts         *AccountService
	Categorizer      *Categorizer
	Reconciler       *Reconciler
	AutoConfirmExact bool
	Logger           *slog.Logger
}

// ImportProposals writes the batch row and every valid proposal in one SQL
// transaction. Invalid rows are reported in the result and skipped; each row
// runs in its own savepoint so a skipped row leaves no accounts behind.
func (s *IngestService) ImportProposals(ctx context.Context, req ImportRequest) (ImportResult, error) {
	var res ImportResult
	target, err := ledger.NormalizePath(req.TargetPath)
	if err != nil {
		return res, ledger.NewValidationError(ledger.Issue{
			Code:    ledger.CodeEmptyImportTargetPath,
			Field:   "target",
			Message: fmt.Sprintf("import target '%s' is not a valid account path: %v", req.TargetPath, err),
		})
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "import"
	}

	batch := repository.ImportBatch{
		ID:         uuid.NewString(),
		Source:     source,
		FileName:   optional(req.FileName),
		FileHash:   optional(req.FileHash),
		Notes:      optional(req.Notes),
		ImportedAt: database.Now(),
	}
	err = database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		repos := repository.New(tx)
		if batch.FileHash != nil {
			prev, err := repos.Batches.GetByHash(ctx, *batch.FileHash)
			if err != nil {
				return err
			}
			if prev != nil {
				return &ledger.ConflictError{Op: "import", Reason: ledger.ReasonFileImported,
					Detail: fmt.Sprintf("imported %s from %s as batch %s",
						prev.ImportedAt.Format(time.DateTime), prev.Source, prev.ID)}
			}
		}
		acct, err := repos.Accounts.GetByPath(ctx, target)
		if err != nil {
			return err
		}
		if acct == nil {
			return &ledger.NotFoundError{Kind: "account", ID: target}
		}
		if err := repos.Batches.Insert(ctx, batch); err != nil {
			return fmt.Errorf("insert import batch: %w", err)
		}

		for _, p := range req.Proposals {
			err := database.Savepoint(ctx, tx, "import_row", func() error {
				return s.post(ctx, repos, *acct, batch, p)
			})
			if err != nil {
				if !errors.Is(err, ledger.ErrValidation) && !errors.Is(err, ledger.ErrNotFound) {
					return fmt.Errorf("line %d: %w", p.Line, err)
				}
				res.Errors = append(res.Errors, &RowError{Line: p.Line, Err: err})
				continue
			}
			res.Imported++
		}
		return repos.Batches.SetTransactionCount(ctx, batch.ID, res.Imported)
	})
	if err != nil {
		return ImportResult{}, err
	}
	res.BatchID = batch.ID
	logger(s.Logger).Info("import finished", "batch", batch.ID, "source", source, "target", target,
		"imported", res.Imported, "errors", len(res.Errors))

	if s.Reconciler != nil && res.Imported > 0 {
		sum, err := s.Reconciler.DetectDuplicatesForBatch(ctx, batch.ID, s.AutoConfirmExact)
		if err != nil {
			logger(s.Logger).Warn("duplicate detection failed", "batch", batch.ID, "error", err)
			res.DetectionErr = err
		} else {
			res.Detection = &sum
		}
	}
	return res, nil
}

func (s *IngestService) post(ctx context.Context, repos repository.Repos, target ledger.Account, batch repository.ImportBatch, p Proposal) error {
	var issues ledger.Issues
	if p.Date.IsZero() {
		issues.Add(ledger.CodeInvalidImportedDate, "date", "date is required")
	}
	if strings.TrimSpace(p.Description) == "" {
		issues.Add(ledger.CodeEmptyImportDescription, "description", "description is required")
	}
	if p.Amount.IsZero() {
		issues.Add(ledger.CodeInvalidImportedAmount, "amount", "amount must not be zero")
	}
	if err := issues.Err(); err != nil {
		return err
	}

	other, err := s.Categorizer.CounterAccount(ctx, repos, target, p)
	if err != nil {
		return err
	}
	debit, credit := target.ID, other.ID
	if p.Amount.IsNegative() {
		debit, credit = other.ID, target.ID
	}
	d := ledger.SimpleTransaction(strings.TrimSpace(p.Description), debit, credit, p.Amount.Abs(), p.Date,
		ledger.WithImport(batch.Source, batch.ID, p.ExternalReference))
	_, err = createTransaction(ctx, repos, d)
	return err
}

// ImportCSV reads a CSV file with a header row and imports it against
// targetPath. Rows that fail to parse are reported alongside rows that fail
// to post.
func (s *IngestService) ImportCSV(ctx context.Context, path, targetPath, source string) (ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("read %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	proposals, parseErrs, err := ParseCSV(bytes.NewReader(data))
	if err != nil {
		return ImportResult{}, fmt.Errorf("parse %s: %w", path, err)
	}
	res, err := s.ImportProposals(ctx, ImportRequest{
		TargetPath: targetPath,
		Source:     source,
		FileName:   filepath.Base(path),
		FileHash:   hex.EncodeToString(sum[:]),
		Proposals:  proposals,
	})
	if err != nil {
		return res, err
	}
	res.Errors = append(parseErrs, res.Errors...)
	return res, nil
}

// CSV header columns. date, description and amount are required.
const (
	colDate           = "date"
	colDescription    = "description"
	colAmount         = "amount"
	colCategory       = "category"
	colCategoryParent = "category_parent"
	colReference      = "reference"
	colAccount        = "account"
)

var csvDateLayouts = []string{time.DateOnly, "2/01/2006"}

// ParseCSV turns a CSV with a header row into proposals. A malformed header
// is an error; malformed rows are returned as RowErrors.
func ParseCSV(r io.Reader) ([]Proposal, []error, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil, errors.New("empty file")
		}
		return nil, nil, err
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, req := range []string{colDate, colDescription, colAmount} {
		if _, ok := cols[req]; !ok {
			return nil, nil, fmt.Errorf("missing %q column", req)
		}
	}

	var out []Proposal
	var rowErrs []error
	line := 1
	for {
		line++
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, &RowError{Line: line, Err: err})
			continue
		}
		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		p := Proposal{
			Line:               line,
			Description:        field(colDescription),
			CategoryHint:       field(colCategory),
			CategoryParentHint: field(colCategoryParent),
			AccountLabel:       field(colAccount),
			ExternalReference:  field(colReference),
			Raw:                make(map[string]string, len(header)),
		}
		for name, i := range cols {
			if i < len(rec) {
				p.Raw[name] = rec[i]
			}
		}
		if p.Date, err = parseImportDate(field(colDate)); err != nil {
			rowErrs = append(rowErrs, &RowError{Line: line, Err: ledger.NewValidationError(ledger.Issue{
				Code: ledger.CodeInvalidImportedDate, Field: colDate, Message: err.Error(),
			})})
			continue
		}
		if p.Amount, err = parseImportAmount(field(colAmount)); err != nil {
			rowErrs = append(rowErrs, &RowError{Line: line, Err: ledger.NewValidationError(ledger.Issue{
				Code: ledger.CodeInvalidImportedAmount, Field: colAmount, Message: err.Error(),
			})})
			continue
		}
		out = append(out, p)
	}
	return out, rowErrs, nil
}

func parseImportDate(s string) (time.Time, error) {
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return ledger.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse date %q", s)
}

func parseImportAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "+")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cannot parse amount %q", s)
	}
	return d, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
