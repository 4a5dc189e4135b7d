package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jask/jaskledger/internal/database/repository"
	"github.com/jask/jaskledger/internal/ledger"
)

var accountsCmd = &cobra.Command{
	Use:     "accounts",
	Aliases: []string{"account", "acct"},
	Short:   "Manage the chart of accounts",
}

var (
	acctType     string
	acctSubtype  string
	acctCurrency string
	acctNotes    string
	acctSymbol   string
	acctQuantity string
	acctCost     string

	listType string
	listAll  bool
	showAll  bool
)

var accountsCreateCmd = &cobra.Command{
	Use:   "create PATH",
	Short: "Create an account and any missing parents",
	Long: `Create the account at PATH. Missing parents are created as category
nodes of the same type. An existing account of the same type is reused.

Example:
  jaskledger accounts create Assets:Bank:Checking --type asset --subtype checking
  jaskledger accounts create Assets:Broker:VWCE --type asset --subtype etf --symbol VWCE --quantity 12`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := ledger.ParseAccountType(acctType)
		if err != nil {
			return err
		}
		sub := ledger.Category
		if acctSubtype != "" {
			if sub, err = ledger.ParseAccountSubtype(acctSubtype); err != nil {
				return err
			}
		}
		attrs := ledger.AccountAttrs{Currency: acctCurrency}
		if acctNotes != "" {
			attrs.Notes = &acctNotes
		}
		if acctSymbol != "" {
			attrs.Symbol = &acctSymbol
		}
		if attrs.Quantity, err = optionalDecimal("quantity", acctQuantity); err != nil {
			return err
		}
		if attrs.AverageCost, err = optionalDecimal("average-cost", acctCost); err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			acct, err := a.accounts.ResolveOrCreate(ctx, args[0], typ, sub, attrs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s/%s  %s\n", acct.FullPath, acct.Type, acct.Subtype, shortID(acct.ID))
			return nil
		})
	},
}

var accountsListCmd = &cobra.Command{
	Use:   "list [PATH]",
	Short: "List accounts, optionally under PATH",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := repository.AccountFilters{IncludeInactive: listAll}
		if listType != "" {
			typ, err := ledger.ParseAccountType(listType)
			if err != nil {
				return err
			}
			f.Type = typ
		}
		if len(args) == 1 {
			norm, err := ledger.NormalizePath(args[0])
			if err != nil {
				return err
			}
			f.PathPrefix = norm
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			accounts, err := a.accounts.ListAccounts(ctx, f)
			if err != nil {
				return err
			}
			t := newTable("PATH", "TYPE", "SUBTYPE", "CURRENCY", "ID")
			for _, acct := range accounts {
				path := acct.FullPath
				if !acct.Active {
					path = mutedStyle.Render(path + " (inactive)")
				}
				t.add(path, string(acct.Type), string(acct.Subtype), acct.Currency, shortID(acct.ID))
			}
			t.render(cmd.OutOrStdout())
			return nil
		})
	},
}

var accountsShowCmd = &cobra.Command{
	Use:   "show PATH",
	Short: "Show an account with its balance and children",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			acct, err := a.resolveAccount(ctx, args[0], true)
			if err != nil {
				return err
			}
			bal, err := a.balances.Balance(ctx, acct.ID, time.Now())
			if err != nil {
				return err
			}
			children, err := a.accounts.Children(ctx, acct.ID, showAll)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printTitle(out, "%s", acct.FullPath)
			fmt.Fprintf(out, "id:       %s\n", acct.ID)
			fmt.Fprintf(out, "type:     %s/%s\n", acct.Type, acct.Subtype)
			fmt.Fprintf(out, "currency: %s\n", acct.Currency)
			side := "credit"
			if acct.Type.IncreasesWithDebit() {
				side = "debit"
			}
			fmt.Fprintf(out, "normal:   %s\n", side)
			fmt.Fprintf(out, "active:   %t\n", acct.Active)
			if acct.Symbol != nil {
				fmt.Fprintf(out, "symbol:   %s\n", *acct.Symbol)
			}
			if acct.Quantity != nil {
				fmt.Fprintf(out, "quantity: %s\n", acct.Quantity)
			}
			if acct.Address != nil {
				fmt.Fprintf(out, "address:  %s\n", *acct.Address)
			}
			if acct.Notes != nil {
				fmt.Fprintf(out, "notes:    %s\n", *acct.Notes)
			}
			fmt.Fprintf(out, "balance:  %s\n", signedMoney(ledger.DisplayAmount(acct.Type, bal), acct.Currency))
			for _, c := range children {
				fmt.Fprintf(out, "  %s\n", c.Name)
			}
			return nil
		})
	},
}

var accountsRenameCmd = &cobra.Command{
	Use:   "rename PATH NEW_NAME",
	Short: "Rename an account; descendants follow",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			acct, err := a.accounts.GetByPath(ctx, args[0])
			if err != nil {
				return err
			}
			name := args[1]
			updated, err := a.accounts.UpdateAccount(ctx, acct.ID, ledger.AccountUpdates{Name: &name})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", acct.FullPath, updated.FullPath)
			return nil
		})
	},
}

var accountsDeactivateCmd = &cobra.Command{
	Use:   "deactivate PATH",
	Short: "Deactivate an account without active children",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			acct, err := a.accounts.GetByPath(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.accounts.Deactivate(ctx, acct.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated %s\n", acct.FullPath)
			return nil
		})
	},
}

var accountsReactivateCmd = &cobra.Command{
	Use:   "reactivate PATH",
	Short: "Reactivate an inactive account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			acct, err := a.resolveAccount(ctx, args[0], true)
			if err != nil {
				return err
			}
			if err := a.accounts.Reactivate(ctx, acct.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reactivated %s\n", acct.FullPath)
			return nil
		})
	},
}

func optionalDecimal(name, s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("--%s %q: %w", name, s, err)
	}
	return &d, nil
}

func init() {
	accountsCreateCmd.Flags().StringVar(&acctType, "type", "", "account type: asset, liability, equity, income or expense")
	accountsCreateCmd.Flags().StringVar(&acctSubtype, "subtype", "", "account subtype (default: category)")
	accountsCreateCmd.Flags().StringVar(&acctCurrency, "currency", "", "ISO 4217 currency (default: ledger.default_currency)")
	accountsCreateCmd.Flags().StringVar(&acctNotes, "notes", "", "free-form notes")
	accountsCreateCmd.Flags().StringVar(&acctSymbol, "symbol", "", "ticker symbol for investment accounts")
	accountsCreateCmd.Flags().StringVar(&acctQuantity, "quantity", "", "units held for investment accounts")
	accountsCreateCmd.Flags().StringVar(&acctCost, "average-cost", "", "average cost per unit for investment accounts")
	_ = accountsCreateCmd.MarkFlagRequired("type")

	accountsListCmd.Flags().StringVar(&listType, "type", "", "only accounts of this type")
	accountsListCmd.Flags().BoolVar(&listAll, "all", false, "include inactive accounts")
	accountsShowCmd.Flags().BoolVar(&showAll, "all", false, "include inactive children")

	accountsCmd.AddCommand(accountsCreateCmd, accountsListCmd, accountsShowCmd,
		accountsRenameCmd, accountsDeactivateCmd, accountsReactivateCmd)
}
