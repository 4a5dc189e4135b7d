package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jask/jaskledger/internal/ledger"
)

var (
	balanceAsOf  string
	balanceSince string
	balanceAll   bool
)

var balanceCmd = &cobra.Command{
	Use:   "balance [PATH]",
	Short: "Show balances as of a date",
	Long: `Without PATH, print the trial balance of every account. With PATH,
print the balance of that account and its descendants. With --since,
print the running daily balance of PATH between --since and --as-of.
Merged duplicates never count.

Example:
  jaskledger balance
  jaskledger balance Expenses:Food --as-of 2024-03-31
  jaskledger balance Assets:Bank:Checking --since 2024-03-01`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := parseDateFlag(balanceAsOf, time.Now())
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			out := cmd.OutOrStdout()
			currency := a.cfg.Ledger.DefaultCurrency

			if len(args) == 0 {
				rows, err := a.balances.Balances(ctx, asOf, balanceAll)
				if err != nil {
					return err
				}
				printTitle(out, "Trial balance as of %s", asOf.Format(ledger.DateLayout))
				t := newTable("ACCOUNT", "BALANCE").alignRight(1)
				total := decimal.Zero
				for _, r := range rows {
					total = total.Add(r.Balance)
					t.add(r.Account.FullPath, signedMoney(r.Display, r.Account.Currency))
				}
				t.add("", formatMoney(total, currency))
				t.render(out)
				return nil
			}

			if balanceSince != "" {
				since, err := parseDateFlag(balanceSince, time.Time{})
				if err != nil {
					return err
				}
				acct, err := a.accounts.GetByPath(ctx, args[0])
				if err != nil {
					return err
				}
				opening, days, err := a.balances.DailyBalances(ctx, acct.ID, since, asOf)
				if err != nil {
					return err
				}
				printTitle(out, "%s", acct.FullPath)
				t := newTable("DATE", "CHANGE", "BALANCE").alignRight(1, 2)
				t.add("opening", "", formatMoney(ledger.DisplayAmount(acct.Type, opening), acct.Currency))
				for _, d := range days {
					t.add(d.Date.Format(ledger.DateLayout),
						signedMoney(ledger.DisplayAmount(acct.Type, d.Change), acct.Currency),
						formatMoney(ledger.DisplayAmount(acct.Type, d.Balance), acct.Currency))
				}
				t.render(out)
				return nil
			}

			sub, err := a.balances.SubtreeBalance(ctx, args[0], asOf)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s  %s\n", sub.Account.FullPath, signedMoney(sub.Display, sub.Account.Currency))
			return nil
		})
	},
}

func init() {
	balanceCmd.Flags().StringVar(&balanceAsOf, "as-of", "", "balance at the end of this date (default: today)")
	balanceCmd.Flags().StringVar(&balanceSince, "since", "", "print daily balances of PATH from this date")
	balanceCmd.Flags().BoolVar(&balanceAll, "all", false, "include inactive accounts in the trial balance")
}
