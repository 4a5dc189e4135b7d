package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/jaskledger/internal/database/repository"
	"github.com/jask/jaskledger/internal/ledger"
	"github.com/jask/jaskledger/internal/matcher"
)

type carrefour struct {
	checking, groceries ledger.Account
	bank, card          ledger.TransactionWithEntries
}

// newCarrefour posts the same purchase twice under two import sources.
func newCarrefour(t *testing.T, ctx context.Context, f *fixture) carrefour {
	t.Helper()
	var c carrefour
	c.checking = f.account(t, ctx, "Checking", ledger.Asset, ledger.Checking)
	c.groceries = f.account(t, ctx, "Groceries", ledger.Expense, ledger.Food)
	c.bank = f.post(t, ctx, "CARREFOUR", c.groceries, c.checking, "42.17", day0, ledger.WithImport("bank", "", ""))
	c.card = f.post(t, ctx, "CARREFOUR MARKET", c.groceries, c.checking, "42.17", day0, ledger.WithImport("card", "", ""))
	return c
}

func TestCarrefourScenario(t *testing.T) {
	t.Parallel()
	f, ctx := newFixture(t)
	c := newCarrefour(t, ctx, f)

	for _, pair := range [][2]ledger.TransactionWithEntries{{c.bank, c.card}, {c.card, c.bank}} {
		results, err := f.rec.FindPotentialDuplicates(ctx, pair[0].ID, matcher.DefaultOptions())
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.Equal(t, pair[1].ID, results[0].CandidateID)
		requireDec(t, "0.9125", results[0].Confidence)
		require.Equal(t, ledger.Probable, results[0].Type)
		require.Equal(t, ledger.DifferentSource, results[0].Criteria.SourceRelation)
	}

	results, err := f.rec.FindPotentialDuplicates(ctx, c.bank.ID, matcher.DefaultOptions())
	require.NoError(t, err)
	m, created, err := f.rec.CreateMatch(ctx, c.bank.ID, c.card.ID, results[0])
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, ledger.Pending, m.Status)

	again, created, err := f.rec.CreateMatch(ctx, c.card.ID, c.bank.ID, results[0])
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, m.ID, again.ID)

	stored, err := f.rec.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, stored.Criteria.Contributions, 4)
	requireDec(t, "0.9125", stored.Criteria.Confidence())

	_, err = f.rec.UpdateMatchStatus(ctx, m.ID, ledger.Confirmed)
	require.NoError(t, err)
	requireDec(t, "84.34", f.balance(t, ctx, c.groceries))

	res, err := f.rec.MergeMatch(ctx, m.ID)
	require.NoError(t, err)
	require.True(t, res.Changed)
	requireDec(t, "42.17", f.balance(t, ctx, c.groceries))
	requireDec(t, "-42.17", f.balance(t, ctx, c.checking))

	for _, id := range []string{c.bank.ID, c.card.ID} {
		got, err := f.txs.GetTransaction(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Len(t, got.Entries, 2)
	}
	hidden, err := f.txs.GetTransaction(ctx, c.card.ID)
	require.NoError(t, err)
	into, ok := hidden.Visibility().Primary()
	require.True(t, ok)
	require.Equal(t, c.bank.ID, into)
	require.True(t, hidden.IsDuplicate)

	visible, err := f.txs.ListTransactions(ctx, repository.TransactionFilters{})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	withHidden, err := f.txs.ListTransactions(ctx, repository.TransactionFilters{IncludeHidden: true})
	require.NoError(t, err)
	require.Len(t, withHidden, 2)
}

func TestMergeUnmergeRestoresBalancesExactly(t *testing.T) {
	t.Parallel()
	f, ctx := newFixture(t)
	c := newCarrefour(t, ctx, f)
	f.post(t, ctx, "LIDL", c.groceries, c.checking, "13.33", day0.AddDate(0, 0, 1))

	before, err := f.balances.Balances(ctx, farFuture, true)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := f.rec.Merge(ctx, c.bank.ID, c.card.ID)
		require.NoError(t, err)
		require.True(t, res.Changed)
		requireDec(t, "55.50", f.balance(t, ctx, c.groceries))
		hidden, err := f.rec.HiddenBehind(ctx, c.bank.ID)
		require.NoError(t, err)
		require.Len(t, hidden, 1)
		require.Equal(t, c.card.ID, hidden[0].ID)

		changed, err := f.rec.Unmerge(ctx, c.card.ID)
		require.NoError(t, err)
		require.True(t, changed)
		hidden, err = f.rec.HiddenBehind(ctx, c.bank.ID)
		require.NoError(t, err)
		require.Empty(t, hidden)

		after, err := f.balances.Balances(ctx, farFuture, true)
		require.NoError(t, err)
		require.Len(t, after, len(before))
		for j := range before {
			require.Equal(t, before[j].Account.ID, after[j].Account.ID)
			require.True(t, before[j].Balance.Equal(after[j].Balance), "cycle %d %s", i, before[j].Account.FullPath)
		}
	}

	changed, err := f.rec.Unmerge(ctx, c.card.ID)
	require.NoError(t, err)
	require.False(t, changed)

	_, err = f.rec.Unmerge(ctx, "missing")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestMergeRefusesChains(t *testing.T) {
	t.Parallel()
	f, ctx := newFixture(t)

	checking := f.account(t, ctx, "Checking", ledger.Asset, ledger.Checking)
	food := f.account(t, ctx, "Food", ledger.Expense, ledger.Food)
	a := f.post(t, ctx, "A", food, checking, "5", day0)
	b := f.post(t, ctx, "B", food, checking, "5", day0)
	c := f.post(t, ctx, "C", food, checking, "5", day0)

	_, err := f.rec.Merge(ctx, a.ID, a.ID)
	require.True(t, ledger.IsConflict(err, ledger.ReasonSelfMerge))

	_, err = f.rec.Merge(ctx, a.ID, "missing")
	require.ErrorIs(t, err, ledger.ErrNotFound)

	res, err := f.rec.Merge(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.True(t, res.Changed)

	res, err = f.rec.Merge(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.False(t, res.Changed)

	_, err = f.rec.Merge(ctx, c.ID, a.ID)
	require.True(t, ledger.IsConflict(err, ledger.ReasonDuplicateIsTarget))

	_, err = f.rec.Merge(ctx, b.ID, c.ID)
	require.True(t, ledger.IsConflict(err, ledger.ReasonPrimaryHidden))

	_, err = f.rec.Merge(ctx, c.ID, b.ID)
	require.True(t, ledger.IsConflict(err, ledger.ReasonAlreadyHidden))
	require.ErrorIs(t, err, ledger.ErrConflict)

	requireDec(t, "10", f.balance(t, ctx, food))
}

func TestMergeResolvesPendingMatches(t *testing.T) {
	t.Parallel()
	f, ctx := newFixture(t)

	checking := f.account(t, ctx, "Checking", ledger.Asset, ledger.Checking)
	food := f.account(t, ctx, "Food", ledger.Expense, ledger.Food)
	a := f.post(t, ctx, "SHOP", food, checking, "5", day0, ledger.WithImport("bank", "", ""))
	b := f.post(t, ctx, "SHOP", food, checking, "5", day0, ledger.WithImport("card", "", ""))
	c := f.post(t, ctx, "SHOP", food, checking, "5", day0, ledger.WithImport("wallet", "", ""))

	score := func(x, y ledger.TransactionWithEntries) matcher.Result {
		m, err := matcher.New(matcher.DefaultOptions())
		require.NoError(t, err)
		res, ok := m.Score(matcher.FromTransaction(x), matcher.FromTransaction(y))
		require.True(t, ok)
		return res
	}
	ab, _, err := f.rec.CreateMatch(ctx, a.ID, b.ID, score(a, b))
	require.NoError(t, err)
	require.Equal(t, ledger.Exact, ab.Type)
	cb, _, err := f.rec.CreateMatch(ctx, c.ID, b.ID, score(c, b))
	require.NoError(t, err)
	ac, _, err := f.rec.CreateMatch(ctx, a.ID, c.ID, score(a, c))
	require.NoError(t, err)

	res, err := f.rec.Merge(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Confirmed)
	require.EqualValues(t, 1, res.Rejected)

	for id, want := range map[string]ledger.MatchStatus{ab.ID: ledger.Confirmed, cb.ID: ledger.Rejected, ac.ID: ledger.Pending} {
		m, err := f.rec.GetMatch(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, m.Status)
	}

	_, err = f.rec.Unmerge(ctx, b.ID)
	require.NoError(t, err)
	m, err := f.rec.GetMatch(ctx, ab.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.Confirmed, m.Status)

	forB, err := f.rec.MatchesForTransaction(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, forB, 2)

	pending, err := f.rec.ListMatches(ctx, repository.MatchFilters{Status: ledger.Pending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, ac.ID, pending[0].ID)

	summaries, err := f.rec.TransactionsWithDuplicates(ctx, 0, true)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	for _, s := range summaries {
		require.Equal(t, 2, s.Matches)
	}
}

func TestMatchStatusTransitions(t *testing.T) {
	t.Parallel()
	f, ctx := newFixture(t)
	c := newCarrefour(t, ctx, f)

	results, err := f.rec.FindPotentialDuplicates(ctx, c.bank.ID, matcher.DefaultOptions())
	require.NoError(t, err)
	m, _, err := f.rec.CreateMatch(ctx, c.bank.ID, c.card.ID, results[0])
	require.NoError(t, err)

	_, err = f.rec.MergeMatch(ctx, m.ID)
	require.True(t, ledger.IsConflict(err, ledger.ReasonMatchNotConfirmed))

	_, err = f.rec.UpdateMatchStatus(ctx, m.ID, ledger.MatchStatus("BOGUS"))
	require.True(t, ledger.HasIssue(err, ledger.CodeInvalidStatus))

	rejected, err := f.rec.UpdateMatchStatus(ctx, m.ID, ledger.Rejected)
	require.NoError(t, err)
	require.Equal(t, ledger.Rejected, rejected.Status)

	same, err := f.rec.UpdateMatchStatus(ctx, m.ID, ledger.Rejected)
	require.NoError(t, err)
	require.Equal(t, ledger.Rejected, same.Status)

	_, err = f.rec.UpdateMatchStatus(ctx, m.ID, ledger.Confirmed)
	require.True(t, ledger.IsConflict(err, ledger.ReasonTerminalStatus))
	_, err = f.rec.UpdateMatchStatus(ctx, m.ID, ledger.Pending)
	require.True(t, ledger.IsConflict(err, ledger.ReasonTerminalStatus))

	_, err = f.rec.UpdateMatchStatus(ctx, "missing", ledger.Confirmed)
	require.ErrorIs(t, err, ledger.ErrNotFound)

	id, err := f.rec.ResolveMatchID(ctx, m.ID[:6])
	require.NoError(t, err)
	require.Equal(t, m.ID, id)
}

func TestConcurrentMergesOfOneDuplicate(t *testing.T) {
	t.Parallel()
	f, ctx := newFixture(t)

	checking := f.account(t, ctx, "Checking", ledger.Asset, ledger.Checking)
	food := f.account(t, ctx, "Food", ledger.Expense, ledger.Food)
	p1 := f.post(t, ctx, "P1", food, checking, "7", day0)
	p2 := f.post(t, ctx, "P2", food, checking, "7", day0)
	dup := f.post(t, ctx, "DUP", food, checking, "7", day0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	results := make([]MergeResult, 2)
	for i, primary := range []string{p1.ID, p2.ID} {
		i, primary := i, primary
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.rec.Merge(ctx, primary, dup.ID)
		}()
	}
	wg.Wait()

	winners := 0
	for i, err := range errs {
		if err == nil {
			require.True(t, results[i].Changed)
			winners++
			continue
		}
		require.True(t, ledger.IsConflict(err, ledger.ReasonAlreadyHidden) || ledger.IsConflict(err, ledger.ReasonMergeRaceLost), "unexpected error %v", err)
	}
	require.Equal(t, 1, winners)
	requireDec(t, "14", f.balance(t, ctx, food))

	got, err := f.txs.GetTransaction(ctx, dup.ID)
	require.NoError(t, err)
	into, hidden := got.Visibility().Primary()
	require.True(t, hidden)
	require.Contains(t, []string{p1.ID, p2.ID}, into)
}

func TestDetectDuplicatesForBatch(t *testing.T) {
	t.Parallel()
	f, ctx := newFixture(t)

	f.account(t, ctx, "Assets:Checking", ledger.Asset, ledger.Checking)
	bank, err := f.ingest.ImportProposals(ctx, ImportRequest{
		TargetPath: "Assets:Checking",
		Source:     "bank",
		Proposals: []Proposal{
			{Line: 2, Date: day0, Description: "CARREFOUR", Amount: dec("-42.17"), CategoryHint: "Groceries"},
			{Line: 3, Date: day0, Description: "SPOTIFY", Amount: dec("-12.99")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, bank.Imported)
	require.NotNil(t, bank.Detection)
	require.Equal(t, 0, bank.Detection.Created)

	card, err := f.ingest.ImportProposals(ctx, ImportRequest{
		TargetPath: "Assets:Checking",
		Source:     "card",
		Proposals: []Proposal{
			{Line: 2, Date: day0.AddDate(0, 0, 1), Description: "CARREFOUR MARKET", Amount: dec("-42.17"), CategoryHint: "Groceries"},
			{Line: 3, Date: day0, Description: "SPOTIFY", Amount: dec("-12.99")},
		},
	})
	require.NoError(t, err)
	require.NoError(t, card.DetectionErr)
	sum := card.Detection
	require.NotNil(t, sum)
	require.Equal(t, 2, sum.Scanned)
	require.Equal(t, 2, sum.Created)
	require.Equal(t, 1, sum.ByType[ledger.Exact])
	require.Equal(t, 0, sum.AutoConfirmed)

	for _, m := range sum.Matches {
		primary, err := f.txs.GetTransaction(ctx, m.PrimaryTransactionID)
		require.NoError(t, err)
		require.Equal(t, "bank", *primary.ImportSource)
		dup, err := f.txs.GetTransaction(ctx, m.DuplicateTransactionID)
		require.NoError(t, err)
		require.Equal(t, card.BatchID, *dup.ImportBatchID)
		require.Equal(t, ledger.Pending, m.Status)
	}

	rerun, err := f.rec.DetectDuplicatesForBatch(ctx, card.BatchID, true)
	require.NoError(t, err)
	require.Equal(t, 0, rerun.Created)
	require.Equal(t, 2, rerun.Existing)

	_, err = f.rec.DetectDuplicatesForBatch(ctx, "missing", false)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestDetectAutoConfirmsExactOnly(t *testing.T) {
	t.Parallel()
	f, ctx := newFixture(t)
	f.ingest.AutoConfirmExact = true

	f.account(t, ctx, "Assets:Checking", ledger.Asset, ledger.Checking)
	// NETFLIX repeats verbatim (Exact); the CARREFOUR pair scores 0.9125 (Probable)
	for src, shop := range map[string]string{"bank": "CARREFOUR", "card": "CARREFOUR MARKET"} {
		_, err := f.ingest.ImportProposals(ctx, ImportRequest{
			TargetPath: "Assets:Checking",
			Source:     src,
			Proposals: []Proposal{
				{Line: 2, Date: day0, Description: "NETFLIX", Amount: dec("-15.99")},
				{Line: 3, Date: day0, Description: shop, Amount: dec("-42.17")},
			},
		})
		require.NoError(t, err)
	}

	confirmed, err := f.rec.ListMatches(ctx, repository.MatchFilters{Status: ledger.Confirmed})
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	require.Equal(t, ledger.Exact, confirmed[0].Type)

	pending, err := f.rec.ListMatches(ctx, repository.MatchFilters{Status: ledger.Pending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, ledger.Probable, pending[0].Type)
}

func TestCompareTransactions(t *testing.T) {
	t.Parallel()
	f, ctx := newFixture(t)
	c := newCarrefour(t, ctx, f)
	far := f.post(t, ctx, "CARREFOUR", c.groceries, c.checking, "42.17", day0.AddDate(0, 0, 10))

	cmp, err := f.rec.CompareTransactions(ctx, c.bank.ID, c.card.ID)
	require.NoError(t, err)
	require.True(t, cmp.WithinTolerance)
	requireDec(t, "0.9125", cmp.Result.Confidence)
	requireDec(t, "0.5625", cmp.DescriptionSimilarity)
	require.Nil(t, cmp.Match)

	cmp, err = f.rec.CompareTransactions(ctx, c.bank.ID, far.ID)
	require.NoError(t, err)
	require.False(t, cmp.WithinTolerance)
	require.Nil(t, cmp.Result)
	require.Equal(t, 10, cmp.DateDifferenceDays)
	requireDec(t, "1", cmp.DescriptionSimilarity)
}

func TestFindPotentialDuplicatesZeroOptionsUseDefaults(t *testing.T) {
	t.Parallel()
	f, ctx := newFixture(t)

	checking := f.account(t, ctx, "Checking", ledger.Asset, ledger.Checking)
	groceries := f.account(t, ctx, "Groceries", ledger.Expense, ledger.Food)
	bank := f.post(t, ctx, "CARREFOUR", groceries, checking, "42.17", day0, ledger.WithImport("bank", "", ""))
	card := f.post(t, ctx, "CARREFOUR", groceries, checking, "42.17", day0.AddDate(0, 0, 1), ledger.WithImport("card", "", ""))

	results, err := f.rec.FindPotentialDuplicates(ctx, bank.ID, matcher.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, card.ID, results[0].CandidateID)
	requireDec(t, "0.925", results[0].Confidence)
	require.Equal(t, 1, results[0].Criteria.DateDifferenceDays)
}
