package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nyxlight/ledger/internal/adapters/sqlitestore"
	"github.com/nyxlight/ledger/internal/bootstrap"
	"github.com/nyxlight/ledger/internal/domain/ledger"
)

func newVerifyChainCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-chain",
		Short: "verify the ledger's chain-hash sequence end to end",
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

			result := gl.VerifyChain()

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}

			fmt.Println(string(out))

			if !result.Ok {
				return fmt.Errorf("chain verification failed, %d break(s): %v", len(result.Breaks), result.Breaks)
			}

			return nil
		},
	}
}
