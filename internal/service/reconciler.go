package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jask/jaskledger/internal/database"
	"github.com/jask/jaskledger/internal/database/repository"
	"github.com/jask/jaskledger/internal/ledger"
	"github.com/jask/jaskledger/internal/matcher"
)

// Reconciler implements duplicate detection, the match review state machine
// and merge/unmerge.
type Reconciler struct {
	DB      *sql.DB
	Options matcher.Options
	// Workers bounds the parallel scoring fan-out of batch detection.
	Workers int
	Logger  *slog.Logger
}

func (r *Reconciler) options() matcher.Options { return withDefaults(r.Options) }

// withDefaults replaces zero-valued options with matcher.DefaultOptions.
func withDefaults(o matcher.Options) matcher.Options {
	if o.AmountTolerance.IsZero() && o.DateToleranceDays == 0 {
		return matcher.DefaultOptions()
	}
	return o
}

// FindPotentialDuplicates scores every other visible transaction against
// transactionID and returns the surfaced candidates, most confident first.
// Nothing is persisted. Zero-valued opts mean the default tolerances.
func (r *Reconciler) FindPotentialDuplicates(ctx context.Context, transactionID string, opts matcher.Options) ([]matcher.Result, error) {
	opts = withDefaults(opts)
	m, err := matcher.New(opts)
	if err != nil {
		return nil, err
	}
	txs := repository.NewTransactionRepo(r.DB)
	subject, err := txs.GetWithEntries(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if subject == nil {
		return nil, &ledger.NotFoundError{Kind: "transaction", ID: transactionID}
	}
	population, err := txs.VisibleBetween(ctx,
		subject.Date.AddDate(0, 0, -opts.DateToleranceDays),
		subject.Date.AddDate(0, 0, opts.DateToleranceDays))
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	results := m.FindMatches(matcher.FromTransaction(*subject), candidates(population))
	for _, res := range results {
		logger(r.Logger).Debug("candidate scored", "subject", transactionID, "candidate", res.CandidateID,
			"confidence", res.Confidence.String(), "type", res.Type)
	}
	return results, nil
}

func candidates(txs []ledger.TransactionWithEntries) []matcher.Candidate {
	out := make([]matcher.Candidate, len(txs))
	for i, t := range txs {
		out[i] = matcher.FromTransaction(t)
	}
	return out
}

// DetectionSummary reports what a batch detection pass did.
type DetectionSummary struct {
	BatchID       string
	Scanned       int
	Candidates    int
	Created       int
	Existing      int
	AutoConfirmed int
	ByType        map[ledger.MatchType]int
	Matches       []ledger.Match
}

// DetectDuplicatesForBatch runs the matcher for every visible transaction of
// batchID against the full visible population and persists one match per
// surfaced pair. Scoring fans out over Workers goroutines; writes happen
// serially in one SQL transaction. With autoConfirmExact, Exact matches are
// confirmed immediately.
func (r *Reconciler) DetectDuplicatesForBatch(ctx context.Context, batchID string, autoConfirmExact bool) (DetectionSummary, error) {
	sum := DetectionSummary{BatchID: batchID, ByType: map[ledger.MatchType]int{}}
	opts := r.options()
	m, err := matcher.New(opts)
	if err != nil {
		return sum, err
	}

	repos := repository.New(r.DB)
	batch, err := repos.Batches.Get(ctx, batchID)
	if err != nil {
		return sum, err
	}
	if batch == nil {
		return sum, &ledger.NotFoundError{Kind: "import batch", ID: batchID}
	}
	inBatch, err := repos.Transactions.InBatch(ctx, batchID)
	if err != nil {
		return sum, fmt.Errorf("load batch transactions: %w", err)
	}
	var subjects []matcher.Candidate
	from, to := ledger.Day(batch.ImportedAt), ledger.Day(batch.ImportedAt)
	for _, t := range inBatch {
		if !t.Visibility().IsVisible() {
			continue
		}
		if len(subjects) == 0 || t.Date.Before(from) {
			from = t.Date
		}
		if len(subjects) == 0 || t.Date.After(to) {
			to = t.Date
		}
		subjects = append(subjects, matcher.FromTransaction(t))
	}
	sum.Scanned = len(subjects)
	if len(subjects) == 0 {
		return sum, nil
	}

	population, err := repos.Transactions.VisibleBetween(ctx,
		from.AddDate(0, 0, -opts.DateToleranceDays), to.AddDate(0, 0, opts.DateToleranceDays))
	if err != nil {
		return sum, fmt.Errorf("load candidates: %w", err)
	}
	pool := candidates(population)

	results := make([][]matcher.Result, len(subjects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.Workers, 1))
	for i, subject := range subjects {
		i, subject := i, subject
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = m.FindMatches(subject, pool)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}

	err = database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		txRepos := repository.New(tx)
		for i, subject := range subjects {
			for _, res := range results[i] {
				sum.Candidates++
				// the existing transaction is the primary, the imported one the duplicate
				match, created, err := recordMatch(ctx, txRepos, res.CandidateID, subject.ID, res)
				if err != nil {
					return err
				}
				if !created {
					sum.Existing++
					continue
				}
				sum.Created++
				sum.ByType[match.Type]++
				if autoConfirmExact && match.Type == ledger.Exact {
					n, err := txRepos.Matches.SetStatus(ctx, match.ID, ledger.Pending, ledger.Confirmed, database.Now())
					if err != nil {
						return fmt.Errorf("auto-confirm match %s: %w", match.ID, err)
					}
					if n > 0 {
						match.Status = ledger.Confirmed
						sum.AutoConfirmed++
					}
				}
				sum.Matches = append(sum.Matches, match)
			}
		}
		return nil
	})
	if err != nil {
		return sum, err
	}
	logger(r.Logger).Info("duplicate detection finished", "batch", batchID, "scanned", sum.Scanned,
		"created", sum.Created, "existing", sum.Existing, "auto_confirmed", sum.AutoConfirmed)
	return sum, nil
}

// CreateMatch persists a scored candidate pair as a Pending match. If the
// pair already has a match (in either direction) that match is returned and
// created is false.
func (r *Reconciler) CreateMatch(ctx context.Context, primaryID, duplicateID string, res matcher.Result) (match ledger.Match, created bool, err error) {
	err = database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		repos := repository.New(tx)
		for _, id := range []string{primaryID, duplicateID} {
			t, err := repos.Transactions.Get(ctx, id)
			if err != nil {
				return err
			}
			if t == nil {
				return &ledger.NotFoundError{Kind: "transaction", ID: id}
			}
		}
		match, created, err = recordMatch(ctx, repos, primaryID, duplicateID, res)
		return err
	})
	return match, created, err
}

func recordMatch(ctx context.Context, repos repository.Repos, primaryID, duplicateID string, res matcher.Result) (ledger.Match, bool, error) {
	if primaryID == duplicateID {
		return ledger.Match{}, false, &ledger.ConflictError{Op: "create match", Reason: ledger.ReasonSelfMerge, Detail: primaryID}
	}
	band, ok := ledger.Classify(res.Confidence)
	if !ok {
		return ledger.Match{}, false, ledger.NewValidationError(ledger.Issue{
			Code:    ledger.CodeLowConfidence,
			Field:   "confidence",
			Message: fmt.Sprintf("confidence %s is below the %s surfacing threshold", res.Confidence, ledger.PossibleThreshold),
		})
	}
	now := database.Now()
	m := ledger.Match{
		ID:                     uuid.NewString(),
		PrimaryTransactionID:   primaryID,
		DuplicateTransactionID: duplicateID,
		Confidence:             res.Confidence,
		Criteria:               res.Criteria,
		Type:                   band,
		Status:                 ledger.Pending,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	inserted, err := repos.Matches.Insert(ctx, m)
	if err != nil {
		return ledger.Match{}, false, fmt.Errorf("insert match: %w", err)
	}
	if inserted {
		return m, true, nil
	}
	existing, err := repos.Matches.GetByPair(ctx, primaryID, duplicateID)
	if err != nil {
		return ledger.Match{}, false, err
	}
	if existing == nil {
		return ledger.Match{}, false, fmt.Errorf("match for %s/%s neither inserted nor found", primaryID, duplicateID)
	}
	return *existing, false, nil
}

// UpdateMatchStatus moves a match out of Pending. Re-assigning the current
// status is a no-op; leaving Confirmed or Rejected is a conflict.
func (r *Reconciler) UpdateMatchStatus(ctx context.Context, matchID string, status ledger.MatchStatus) (ledger.Match, error) {
	var out ledger.Match
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		repos := repository.New(tx)
		m, err := repos.Matches.Get(ctx, matchID)
		if err != nil {
			return err
		}
		if m == nil {
			return &ledger.NotFoundError{Kind: "match", ID: matchID}
		}
		changed, err := m.Status.Transition(status)
		if err != nil {
			return err
		}
		out = *m
		if !changed {
			return nil
		}
		now := database.Now()
		n, err := repos.Matches.SetStatus(ctx, m.ID, m.Status, status, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return &ledger.ConflictError{Op: "update match status", Reason: ledger.ReasonTerminalStatus,
				Detail: "status changed concurrently"}
		}
		out.Status = status
		out.UpdatedAt = now
		return nil
	})
	if err != nil {
		return ledger.Match{}, err
	}
	logger(r.Logger).Info("match status updated", "match", matchID, "status", out.Status)
	return out, nil
}

func (r *Reconciler) GetMatch(ctx context.Context, matchID string) (ledger.Match, error) {
	m, err := repository.NewMatchRepo(r.DB).Get(ctx, matchID)
	if err != nil {
		return ledger.Match{}, err
	}
	if m == nil {
		return ledger.Match{}, &ledger.NotFoundError{Kind: "match", ID: matchID}
	}
	return *m, nil
}

// MatchesForTransaction returns every match naming transactionID on either
// side, most confident first.
func (r *Reconciler) MatchesForTransaction(ctx context.Context, transactionID string) ([]ledger.Match, error) {
	return repository.NewMatchRepo(r.DB).ForTransaction(ctx, transactionID)
}

func (r *Reconciler) ListMatches(ctx context.Context, f repository.MatchFilters) ([]ledger.Match, error) {
	return repository.NewMatchRepo(r.DB).List(ctx, f)
}

// ResolveMatchID expands an id prefix to a full match id.
func (r *Reconciler) ResolveMatchID(ctx context.Context, prefix string) (string, error) {
	return resolvePrefix(ctx, "match", prefix, repository.NewMatchRepo(r.DB).IDsWithPrefix)
}

// MergeResult acknowledges a merge.
type MergeResult struct {
	PrimaryID   string
	DuplicateID string
	// Changed is false when the duplicate was already merged into the primary.
	Changed   bool
	Confirmed int64
	Rejected  int64
}

// Merge hides duplicateID behind primaryID. The duplicate keeps its entries
// but stops contributing to balances. In the same SQL transaction a pending
// match for the pair becomes Confirmed and every other pending match touching
// the duplicate becomes Rejected.
func (r *Reconciler) Merge(ctx context.Context, primaryID, duplicateID string) (MergeResult, error) {
	var out MergeResult
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := merge(ctx, repository.New(tx), primaryID, duplicateID)
		out = res
		return err
	})
	if err != nil {
		return MergeResult{}, err
	}
	if out.Changed {
		logger(r.Logger).Info("transactions merged", "primary", primaryID, "duplicate", duplicateID,
			"matches_confirmed", out.Confirmed, "matches_rejected", out.Rejected)
	}
	return out, nil
}

func merge(ctx context.Context, repos repository.Repos, primaryID, duplicateID string) (MergeResult, error) {
	res := MergeResult{PrimaryID: primaryID, DuplicateID: duplicateID}
	const op = "merge"
	if primaryID == duplicateID {
		return res, &ledger.ConflictError{Op: op, Reason: ledger.ReasonSelfMerge, Detail: primaryID}
	}
	primary, err := repos.Transactions.Get(ctx, primaryID)
	if err != nil {
		return res, err
	}
	if primary == nil {
		return res, &ledger.NotFoundError{Kind: "transaction", ID: primaryID}
	}
	dup, err := repos.Transactions.Get(ctx, duplicateID)
	if err != nil {
		return res, err
	}
	if dup == nil {
		return res, &ledger.NotFoundError{Kind: "transaction", ID: duplicateID}
	}

	if into, hidden := primary.Visibility().Primary(); hidden {
		return res, &ledger.ConflictError{Op: op, Reason: ledger.ReasonPrimaryHidden,
			Detail: fmt.Sprintf("%s is merged into %s", primaryID, into)}
	}
	if into, hidden := dup.Visibility().Primary(); hidden {
		if into == primaryID {
			return res, nil
		}
		return res, &ledger.ConflictError{Op: op, Reason: ledger.ReasonAlreadyHidden,
			Detail: fmt.Sprintf("%s is merged into %s", duplicateID, into)}
	}
	n, err := repos.Transactions.CountMergedInto(ctx, duplicateID)
	if err != nil {
		return res, err
	}
	if n > 0 {
		return res, &ledger.ConflictError{Op: op, Reason: ledger.ReasonDuplicateIsTarget,
			Detail: fmt.Sprintf("%d transaction(s) are merged into %s", n, duplicateID)}
	}

	rows, err := repos.Transactions.MarkMerged(ctx, duplicateID, primaryID)
	if err != nil {
		return res, fmt.Errorf("mark %s merged: %w", duplicateID, err)
	}
	if rows == 0 {
		return res, &ledger.ConflictError{Op: op, Reason: ledger.ReasonMergeRaceLost, Detail: duplicateID}
	}
	res.Changed = true
	res.Confirmed, res.Rejected, err = repos.Matches.ResolvePendingFor(ctx, duplicateID, primaryID, database.Now())
	if err != nil {
		return res, fmt.Errorf("resolve matches of %s: %w", duplicateID, err)
	}
	return res, nil
}

// MergeMatch merges the pair of a Confirmed match, duplicate into primary.
func (r *Reconciler) MergeMatch(ctx context.Context, matchID string) (MergeResult, error) {
	var out MergeResult
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		repos := repository.New(tx)
		m, err := repos.Matches.Get(ctx, matchID)
		if err != nil {
			return err
		}
		if m == nil {
			return &ledger.NotFoundError{Kind: "match", ID: matchID}
		}
		if m.Status != ledger.Confirmed {
			return &ledger.ConflictError{Op: "merge match", Reason: ledger.ReasonMatchNotConfirmed,
				Detail: fmt.Sprintf("match %s is %s", m.ID, m.Status)}
		}
		res, err := merge(ctx, repos, m.PrimaryTransactionID, m.DuplicateTransactionID)
		out = res
		return err
	})
	if err != nil {
		return MergeResult{}, err
	}
	if out.Changed {
		logger(r.Logger).Info("match merged", "match", matchID, "primary", out.PrimaryID, "duplicate", out.DuplicateID)
	}
	return out, nil
}

// Unmerge makes transactionID visible again. It does not consult or change
// any match. Unmerging a visible transaction is a no-op and reports false.
func (r *Reconciler) Unmerge(ctx context.Context, transactionID string) (bool, error) {
	var changed bool
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		txs := repository.NewTransactionRepo(tx)
		t, err := txs.Get(ctx, transactionID)
		if err != nil {
			return err
		}
		if t == nil {
			return &ledger.NotFoundError{Kind: "transaction", ID: transactionID}
		}
		n, err := txs.ClearMerge(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("unmerge %s: %w", transactionID, err)
		}
		changed = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if changed {
		logger(r.Logger).Info("transaction unmerged", "transaction", transactionID)
	}
	return changed, nil
}

// HiddenBehind lists the transactions currently merged into primaryID.
func (r *Reconciler) HiddenBehind(ctx context.Context, primaryID string) ([]ledger.Transaction, error) {
	return repository.NewTransactionRepo(r.DB).MergedInto(ctx, primaryID)
}

// TransactionsWithDuplicates lists visible transactions with their match
// counts, busiest first.
func (r *Reconciler) TransactionsWithDuplicates(ctx context.Context, limit int, onlyWithDuplicates bool) ([]repository.DuplicateSummary, error) {
	return repository.NewMatchRepo(r.DB).DuplicateSummaries(ctx, limit, onlyWithDuplicates)
}

// Comparison is a side-by-side view of two transactions.
type Comparison struct {
	A, B ledger.TransactionWithEntries
	// WithinTolerance is false when the pair fails the amount or date gate;
	// Result is then nil.
	WithinTolerance       bool
	Result                *matcher.Result
	AmountDifference      decimal.Decimal
	DateDifferenceDays    int
	DescriptionSimilarity decimal.Decimal
	SourceRelation        ledger.SourceRelation
	Match                 *ledger.Match
}

// CompareTransactions scores a against b and returns both with their entries
// and any recorded match between them.
func (r *Reconciler) CompareTransactions(ctx context.Context, aID, bID string) (Comparison, error) {
	repos := repository.New(r.DB)
	var pair [2]ledger.TransactionWithEntries
	for i, id := range []string{aID, bID} {
		t, err := repos.Transactions.GetWithEntries(ctx, id)
		if err != nil {
			return Comparison{}, err
		}
		if t == nil {
			return Comparison{}, &ledger.NotFoundError{Kind: "transaction", ID: id}
		}
		pair[i] = *t
	}
	m, err := matcher.New(r.options())
	if err != nil {
		return Comparison{}, err
	}
	ca, cb := matcher.FromTransaction(pair[0]), matcher.FromTransaction(pair[1])
	diff := ca.Amount.Sub(cb.Amount).Abs()
	cmp := Comparison{
		A:                     pair[0],
		B:                     pair[1],
		AmountDifference:      diff,
		DateDifferenceDays:    matcher.DaysBetween(ca.Date, cb.Date),
		DescriptionSimilarity: matcher.DescriptionSimilarity(ca.Description, cb.Description),
		SourceRelation:        matcher.SourceRelationOf(ca, cb),
	}
	if res, ok := m.Score(ca, cb); ok {
		cmp.WithinTolerance = true
		cmp.Result = &res
	}
	cmp.Match, err = repos.Matches.GetByPair(ctx, aID, bID)
	if err != nil {
		return Comparison{}, err
	}
	return cmp, nil
}
