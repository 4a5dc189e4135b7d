package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jask/jaskledger/internal/database/repository"
	"github.com/jask/jaskledger/internal/ledger"
	"github.com/jask/jaskledger/internal/matcher"
	"github.com/jask/jaskledger/internal/service"
)

var duplicatesCmd = &cobra.Command{
	Use:     "duplicates",
	Aliases: []string{"dup", "dups"},
	Short:   "Find, review and merge duplicate transactions",
}

var (
	dupRecord      bool
	dupAutoConfirm bool
	dupStatus      string
	dupType        string
	dupLimit       int
	dupByTx        bool
)

var duplicatesFindCmd = &cobra.Command{
	Use:   "find TX_ID",
	Short: "Score every nearby transaction against TX_ID",
	Long: `Score every visible transaction within the configured amount and
date tolerances against TX_ID and print the candidates, most confident
first. Nothing is stored unless --record is set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			id, err := a.transactions.ResolveTransactionID(ctx, args[0])
			if err != nil {
				return err
			}
			results, err := a.reconciler.FindPotentialDuplicates(ctx, id, a.reconciler.Options)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "no candidates")
				return nil
			}
			t := newTable("CANDIDATE", "CONFIDENCE", "TYPE", "STORED")
			for _, res := range results {
				stored := ""
				if dupRecord {
					m, created, err := a.reconciler.CreateMatch(ctx, res.CandidateID, id, res)
					if err != nil {
						return err
					}
					stored = shortID(m.ID)
					if !created {
						stored += " (existing)"
					}
				}
				t.add(shortID(res.CandidateID), res.Confidence.StringFixed(4), styleMatchType(res.Type), stored)
			}
			t.render(out)
			return nil
		})
	},
}

var duplicatesDetectCmd = &cobra.Command{
	Use:   "detect BATCH_ID",
	Short: "Run duplicate detection over an import batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			auto := a.cfg.Reconcile.AutoConfirmExact
			if cmd.Flags().Changed("auto-confirm") {
				auto = dupAutoConfirm
			}
			sum, err := a.reconciler.DetectDuplicatesForBatch(ctx, args[0], auto)
			if err != nil {
				return err
			}
			printDetection(cmd.OutOrStdout(), sum)
			return nil
		})
	},
}

var duplicatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded matches",
	Long: `List recorded matches, most confident first. With --by-transaction,
list transactions with their match counts instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			out := cmd.OutOrStdout()
			if dupByTx {
				rows, err := a.reconciler.TransactionsWithDuplicates(ctx, dupLimit, true)
				if err != nil {
					return err
				}
				t := newTable("ID", "DATE", "DESCRIPTION", "MATCHES", "PENDING").alignRight(3, 4)
				for _, r := range rows {
					t.add(shortID(r.Transaction.ID), r.Transaction.Date.Format(ledger.DateLayout),
						r.Transaction.Description, fmt.Sprint(r.Matches), fmt.Sprint(r.Pending))
				}
				t.render(out)
				return nil
			}

			f := repository.MatchFilters{Limit: dupLimit}
			if dupStatus != "" {
				s, err := ledger.ParseMatchStatus(dupStatus)
				if err != nil {
					return err
				}
				f.Status = s
			}
			if dupType != "" {
				mt, err := ledger.ParseMatchType(strings.ToUpper(dupType))
				if err != nil {
					return err
				}
				f.Type = mt
			}
			matches, err := a.reconciler.ListMatches(ctx, f)
			if err != nil {
				return err
			}
			printMatches(out, matches)
			return nil
		})
	},
}

func statusCommand(use, short string, status ledger.MatchStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " MATCH_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				id, err := a.reconciler.ResolveMatchID(ctx, args[0])
				if err != nil {
					return err
				}
				m, err := a.reconciler.UpdateMatchStatus(ctx, id, status)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "match %s %s\n", shortID(m.ID), styleMatchStatus(m.Status))
				return nil
			})
		},
	}
}

var duplicatesMergeCmd = &cobra.Command{
	Use:   "merge MATCH_ID | PRIMARY_TX_ID DUPLICATE_TX_ID",
	Short: "Hide a duplicate behind its primary",
	Long: `With one argument, merge the pair of a confirmed match. With two,
merge DUPLICATE_TX_ID into PRIMARY_TX_ID directly. The duplicate keeps its
entries but stops counting in balances. Pending matches of the pair are
confirmed and other pending matches of the duplicate are rejected.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			var res service.MergeResult
			if len(args) == 1 {
				id, err := a.reconciler.ResolveMatchID(ctx, args[0])
				if err != nil {
					return err
				}
				if res, err = a.reconciler.MergeMatch(ctx, id); err != nil {
					return err
				}
			} else {
				primary, err := a.transactions.ResolveTransactionID(ctx, args[0])
				if err != nil {
					return err
				}
				dup, err := a.transactions.ResolveTransactionID(ctx, args[1])
				if err != nil {
					return err
				}
				if res, err = a.reconciler.Merge(ctx, primary, dup); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			if !res.Changed {
				fmt.Fprintf(out, "%s already merged into %s\n", shortID(res.DuplicateID), shortID(res.PrimaryID))
				return nil
			}
			fmt.Fprintf(out, "merged %s into %s (%d confirmed, %d rejected)\n",
				shortID(res.DuplicateID), shortID(res.PrimaryID), res.Confirmed, res.Rejected)
			return nil
		})
	},
}

var duplicatesUnmergeCmd = &cobra.Command{
	Use:   "unmerge TX_ID",
	Short: "Make a merged duplicate visible again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			id, err := a.transactions.ResolveTransactionID(ctx, args[0])
			if err != nil {
				return err
			}
			changed, err := a.reconciler.Unmerge(ctx, id)
			if err != nil {
				return err
			}
			if !changed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not merged\n", shortID(id))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unmerged %s\n", shortID(id))
			return nil
		})
	},
}

var duplicatesCompareCmd = &cobra.Command{
	Use:   "compare TX_ID TX_ID",
	Short: "Compare two transactions side by side",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			var ids [2]string
			for i, arg := range args {
				id, err := a.transactions.ResolveTransactionID(ctx, arg)
				if err != nil {
					return err
				}
				ids[i] = id
			}
			cmp, err := a.reconciler.CompareTransactions(ctx, ids[0], ids[1])
			if err != nil {
				return err
			}
			printComparison(cmd.OutOrStdout(), cmp, a.cfg.Ledger.DefaultCurrency)
			return nil
		})
	},
}

func printDetection(out io.Writer, sum service.DetectionSummary) {
	fmt.Fprintf(out, "scanned %d, %d candidates: %d new, %d existing, %d auto-confirmed\n",
		sum.Scanned, sum.Candidates, sum.Created, sum.Existing, sum.AutoConfirmed)
	types := make([]ledger.MatchType, 0, len(sum.ByType))
	for mt := range sum.ByType {
		types = append(types, mt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, mt := range types {
		fmt.Fprintf(out, "  %s: %d\n", styleMatchType(mt), sum.ByType[mt])
	}
}

func printMatches(out io.Writer, matches []ledger.Match) {
	t := newTable("MATCH", "PRIMARY", "DUPLICATE", "CONFIDENCE", "TYPE", "STATUS").alignRight(3)
	for _, m := range matches {
		t.add(shortID(m.ID), shortID(m.PrimaryTransactionID), shortID(m.DuplicateTransactionID),
			m.Confidence.StringFixed(4), styleMatchType(m.Type), styleMatchStatus(m.Status))
	}
	t.render(out)
}

// printTransactionMatches lists the matches of one transaction from its
// point of view.
func printTransactionMatches(out io.Writer, id string, matches []ledger.Match) {
	t := newTable("MATCH", "ROLE", "OTHER", "CONFIDENCE", "TYPE", "STATUS").alignRight(3)
	for _, m := range matches {
		role := "duplicate"
		if m.PrimaryTransactionID == id {
			role = "primary"
		}
		t.add(shortID(m.ID), role, shortID(m.Other(id)),
			m.Confidence.StringFixed(4), styleMatchType(m.Type), styleMatchStatus(m.Status))
	}
	t.render(out)
}

func printComparison(out io.Writer, cmp service.Comparison, currency string) {
	printTransaction(out, cmp.A, currency)
	fmt.Fprintln(out)
	printTransaction(out, cmp.B, currency)
	fmt.Fprintln(out)

	fmt.Fprintf(out, "amount difference:      %s\n", formatMoney(cmp.AmountDifference, currency))
	fmt.Fprintf(out, "date difference:        %d days\n", cmp.DateDifferenceDays)
	fmt.Fprintf(out, "description similarity: %s\n", cmp.DescriptionSimilarity.StringFixed(4))
	fmt.Fprintf(out, "source:                 %s\n", cmp.SourceRelation)
	if cmp.Result == nil {
		fmt.Fprintln(out, mutedStyle.Render("outside the amount or date tolerance"))
	} else {
		printCriteria(out, *cmp.Result)
	}
	if cmp.Match != nil {
		fmt.Fprintf(out, "recorded match %s: %s\n", shortID(cmp.Match.ID), styleMatchStatus(cmp.Match.Status))
	}
}

func printCriteria(out io.Writer, res matcher.Result) {
	label := "below threshold"
	if res.Type != "" {
		label = styleMatchType(res.Type)
	}
	fmt.Fprintf(out, "confidence:             %s (%s)\n", res.Confidence.StringFixed(4), label)
	t := newTable("FIELD", "WEIGHT", "SCORE", "CONTRIBUTION").alignRight(1, 2, 3)
	for _, c := range res.Criteria.Contributions {
		t.add(c.Field, c.Weight.StringFixed(2), c.Score.StringFixed(4), c.Contribution.StringFixed(4))
	}
	t.render(out)
}

func init() {
	duplicatesFindCmd.Flags().BoolVar(&dupRecord, "record", false, "store the candidates as pending matches")
	duplicatesDetectCmd.Flags().BoolVar(&dupAutoConfirm, "auto-confirm", true, "confirm exact matches (default: reconcile.auto_confirm_exact)")

	duplicatesListCmd.Flags().StringVar(&dupStatus, "status", "", "pending, confirmed or rejected")
	duplicatesListCmd.Flags().StringVar(&dupType, "type", "", "exact, probable or possible")
	duplicatesListCmd.Flags().IntVar(&dupLimit, "limit", 50, "maximum rows, 0 for all")
	duplicatesListCmd.Flags().BoolVar(&dupByTx, "by-transaction", false, "list transactions with their match counts")

	duplicatesCmd.AddCommand(
		duplicatesFindCmd,
		duplicatesDetectCmd,
		duplicatesListCmd,
		statusCommand("confirm", "Confirm a pending match", ledger.Confirmed),
		statusCommand("reject", "Reject a pending match", ledger.Rejected),
		duplicatesMergeCmd,
		duplicatesUnmergeCmd,
		duplicatesCompareCmd,
	)
}
