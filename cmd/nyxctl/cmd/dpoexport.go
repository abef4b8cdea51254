package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nyxlight/ledger/internal/adapters/sqlitestore"
	"github.com/nyxlight/ledger/internal/bootstrap"
)

func newDPOExportCommand() *cobra.Command {
	dpo := &cobra.Command{
		Use:   "dpo-export",
		Short: "run the nightly preference-pair export job outside its schedule",
	}

	dpo.AddCommand(&cobra.Command{
		Use:   "now",
		Short: "write today's corrections to a JSONL preference-pair file",
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

			result, err := bootstrap.RunDPOExportNow(cmd.Context(), store, cfg.DPODatasetDir)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}

			fmt.Println(string(out))

			return nil
		},
	})

	return dpo
}
