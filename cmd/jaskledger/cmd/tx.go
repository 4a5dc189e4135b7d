package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jask/jaskledger/internal/database/repository"
	"github.com/jask/jaskledger/internal/ledger"
)

var txCmd = &cobra.Command{
	Use:     "tx",
	Aliases: []string{"transactions"},
	Short:   "Record and inspect transactions",
}

var (
	txDate   string
	txFrom   string
	txTo     string
	txRef    string
	txBatch  string
	txHidden bool
	txLimit  int
)

var txAddCmd = &cobra.Command{
	Use:   "add DESCRIPTION AMOUNT FROM_PATH TO_PATH",
	Short: "Move AMOUNT from one account to another",
	Long: `Record a two-entry transaction: TO_PATH is debited and FROM_PATH
credited by AMOUNT. Accounts that do not exist yet are created when the
path starts with a root account type name.

Example:
  jaskledger tx add "Weekly shop" 42.17 Assets:Bank:Checking Expenses:Food:Groceries
  jaskledger tx add "Salary" 3200 Income:Salary Assets:Bank:Checking --date 2024-03-01`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("amount %q: %w", args[1], err)
		}
		date, err := parseDateFlag(txDate, time.Now())
		if err != nil {
			return err
		}
		opts := []ledger.DraftOption{ledger.WithCreatedBy("cli")}
		if txRef != "" {
			opts = append(opts, ledger.WithReference(txRef))
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			t, err := a.transactions.CreateTransactionByPath(ctx,
				ledger.SimpleTransfer(args[0], date, args[2], args[3], amount), opts...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", shortID(t.ID), t.Date.Format(ledger.DateLayout), t.Description)
			return nil
		})
	},
}

var txShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a transaction, its entries and recorded matches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			id, err := a.transactions.ResolveTransactionID(ctx, args[0])
			if err != nil {
				return err
			}
			t, err := a.transactions.GetTransaction(ctx, id)
			if err != nil {
				return err
			}
			if t == nil {
				return &ledger.NotFoundError{Kind: "transaction", ID: id}
			}
			out := cmd.OutOrStdout()
			printTransaction(out, *t, a.cfg.Ledger.DefaultCurrency)

			hidden, err := a.reconciler.HiddenBehind(ctx, id)
			if err != nil {
				return err
			}
			for _, h := range hidden {
				fmt.Fprintf(out, "merged:     %s  %s\n", shortID(h.ID), mutedStyle.Render(h.Description))
			}

			matches, err := a.reconciler.MatchesForTransaction(ctx, id)
			if err != nil {
				return err
			}
			if len(matches) > 0 {
				fmt.Fprintln(out)
				printTransactionMatches(out, id, matches)
			}
			return nil
		})
	},
}

var txListCmd = &cobra.Command{
	Use:   "list [ACCOUNT_PATH]",
	Short: "List transactions, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := repository.TransactionFilters{ImportBatchID: txBatch, IncludeHidden: txHidden, Limit: txLimit}
		var err error
		if txFrom != "" {
			if f.From, err = parseDateFlag(txFrom, time.Time{}); err != nil {
				return err
			}
		}
		if txTo != "" {
			if f.To, err = parseDateFlag(txTo, time.Time{}); err != nil {
				return err
			}
		}
		if len(args) == 1 {
			if f.AccountPath, err = ledger.NormalizePath(args[0]); err != nil {
				return err
			}
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			txs, err := a.transactions.ListTransactions(ctx, f)
			if err != nil {
				return err
			}
			t := newTable("ID", "DATE", "DESCRIPTION", "AMOUNT", "ACCOUNTS", "SOURCE").alignRight(3)
			for _, tx := range txs {
				desc := tx.Description
				if !tx.Visibility().IsVisible() {
					desc = mutedStyle.Render(desc + " (merged)")
				}
				source := ""
				if tx.ImportSource != nil {
					source = *tx.ImportSource
				}
				t.add(shortID(tx.ID), tx.Date.Format(ledger.DateLayout), desc,
					formatMoney(tx.TotalDebits(), a.cfg.Ledger.DefaultCurrency), entryPaths(tx), source)
			}
			t.render(cmd.OutOrStdout())
			return nil
		})
	},
}

func entryPaths(t ledger.TransactionWithEntries) string {
	paths := make([]string, 0, len(t.Entries))
	for _, e := range t.Entries {
		paths = append(paths, e.AccountPath)
	}
	return strings.Join(paths, ", ")
}

func printTransaction(out io.Writer, t ledger.TransactionWithEntries, currency string) {
	printTitle(out, "%s  %s", t.Date.Format(ledger.DateLayout), t.Description)
	fmt.Fprintf(out, "id:         %s\n", t.ID)
	if t.Reference != nil {
		fmt.Fprintf(out, "reference:  %s\n", *t.Reference)
	}
	if t.ImportSource != nil {
		fmt.Fprintf(out, "source:     %s\n", *t.ImportSource)
	}
	if t.ImportBatchID != nil {
		fmt.Fprintf(out, "batch:      %s\n", shortID(*t.ImportBatchID))
	}
	if t.ExternalReference != nil {
		fmt.Fprintf(out, "external:   %s\n", *t.ExternalReference)
	}
	fmt.Fprintf(out, "visibility: %s\n", t.Visibility())
	tbl := newTable("ACCOUNT", "DEBIT", "CREDIT").alignRight(1, 2)
	for _, e := range t.Entries {
		if e.Amount.IsNegative() {
			tbl.add(e.AccountPath, "", formatMoney(e.Amount.Neg(), currency))
		} else {
			tbl.add(e.AccountPath, formatMoney(e.Amount, currency), "")
		}
	}
	tbl.render(out)
}

func init() {
	txAddCmd.Flags().StringVar(&txDate, "date", "", "effective date YYYY-MM-DD (default: today)")
	txAddCmd.Flags().StringVar(&txRef, "ref", "", "reference such as a cheque or invoice number")

	txListCmd.Flags().StringVar(&txFrom, "from", "", "first date, inclusive")
	txListCmd.Flags().StringVar(&txTo, "to", "", "last date, inclusive")
	txListCmd.Flags().StringVar(&txBatch, "batch", "", "only transactions from this import batch id")
	txListCmd.Flags().BoolVar(&txHidden, "hidden", false, "include merged duplicates")
	txListCmd.Flags().IntVar(&txLimit, "limit", 50, "maximum rows, 0 for all")

	txCmd.AddCommand(txAddCmd, txShowCmd, txListCmd)
}
