package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nyxlight/ledger/internal/adapters/sqlitestore"
	"github.com/nyxlight/ledger/internal/bootstrap"
)

func newBackupCommand() *cobra.Command {
	backup := &cobra.Command{
		Use:   "backup",
		Short: "run the backup job outside its nightly schedule",
	}

	backup.AddCommand(&cobra.Command{
		Use:   "now",
		Short: "snapshot the store immediately via VACUUM INTO",
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

			result, err := bootstrap.RunBackupNow(cmd.Context(), store, cfg.BackupDir, cfg.BackupKeep)
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

	return backup
}
