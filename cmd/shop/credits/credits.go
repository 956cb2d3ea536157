package credits

import (
	"fmt"
	"time"

	"github.com/pioneerstudio/patternshop/cmd/internal"
	ledgercredits "github.com/pioneerstudio/patternshop/credits"
	"github.com/pioneerstudio/patternshop/ledger"
	"github.com/spf13/cobra"
)

// CreditsCmd represents the credits command group
var CreditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Commands for the subscription credit ledger (expiry, balances).",
}

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Expire every grant past its expiry date, the same job the cron endpoint runs.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt := internal.From(cmd)
		res, err := rt.Credits.ExpireOld(cmd.Context())
		if err != nil {
			return err
		}
		if res.ExpiredCount == 0 {
			internal.Note(cmd, "nothing to expire")
			return nil
		}
		internal.Done(cmd, "expired %d grants, %d credits", res.ExpiredCount, res.CreditsExpired)
		return nil
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance <user-id>",
	Short: "Show a user's balance, both the stored aggregate and a replay of the full ledger.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt := internal.From(cmd)
		ctx := cmd.Context()
		available, err := rt.Credits.Available(ctx, args[0])
		if err != nil {
			return err
		}
		rows, err := rt.Store.CreditHistory(ctx, args[0], 0)
		if err != nil {
			return err
		}
		replayed := ledger.Balance(ledgercredits.Entries(rows), time.Now())
		fmt.Fprintf(cmd.OutOrStdout(), "user:      %s\nentries:   %d\navailable: %d\nreplayed:  %d\n",
			args[0], len(rows), available, replayed)
		if replayed != available {
			internal.Note(cmd, "stored balance and replay disagree")
		}
		return nil
	},
}

func init() {
	CreditsCmd.AddCommand(expireCmd)
	CreditsCmd.AddCommand(balanceCmd)
}
