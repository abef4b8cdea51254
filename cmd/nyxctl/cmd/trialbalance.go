package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nyxlight/ledger/internal/adapters/sqlitestore"
	"github.com/nyxlight/ledger/internal/bootstrap"
	"github.com/nyxlight/ledger/internal/domain/ledger"
)

func newTrialBalanceCommand() *cobra.Command {
	var throughDate string

	cmd := &cobra.Command{
		Use:   "trial-balance",
		Short: "print the trial balance through an optional date (YYYY-MM-DD)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap.LoadConfig()
			if err != nil {
				return err
			}

			store, err := sqlitestore.Open(cfg.DBPath, 1)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer store.Close()

			gl := ledger.New(store)

			transactions, err := store.LoadTransactionsInOrder()
			if err != nil {
				return fmt.Errorf("failed to load transactions: %w", err)
			}

			gl.Restore(transactions)

			tb := gl.TrialBalance(throughDate)

			out, err := json.MarshalIndent(tb, "", "  ")
			if err != nil {
				return err
			}

			fmt.Println(string(out))

			return nil
		},
	}

	cmd.Flags().StringVar(&throughDate, "through", "", "only include transactions up to this date (YYYY-MM-DD)")

	return cmd
}
