package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nyxlight/ledger/internal/adapters/sqlitestore"
	"github.com/nyxlight/ledger/internal/domain/scheduler"
)

// preferencePairRow is one (prompt, chosen, rejected) JSONL row the
// nightly DPO export writes, derived from an operator correction
// (spec.md §3 "Preference pair").
type preferencePairRow struct {
	Timestamp string `json:"timestamp"`
	ProposalID string `json:"proposal_id"`
	Prompt    string `json:"prompt"`
	Chosen    string `json:"chosen"`
	Rejected  string `json:"rejected"`
}

// dpoExportTask writes every correction recorded today to a timestamped
// JSONL file under datasetDir (spec.md §4.I "02:00 nightly preference-pair
// export", "queries corrections from today"). It reads the durable store
// directly rather than an in-memory cache, so a restart or a separate
// process (nyxctl's "dpo-export now") sees the same rows the server would.
func dpoExportTask(store *sqlitestore.Store, datasetDir string) scheduler.TaskFunc {
	return func(ctx context.Context) (map[string]any, error) {
		since := truncateDay(time.Now().UTC())

		corrections, err := store.LoadCorrections(since)
		if err != nil {
			return nil, fmt.Errorf("failed to load corrections: %w", err)
		}

		if err := os.MkdirAll(datasetDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create dataset dir: %w", err)
		}

		filename := fmt.Sprintf("corrections_%s.jsonl", time.Now().UTC().Format("20060102"))
		path := filepath.Join(datasetDir, filename)

		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create dataset file: %w", err)
		}
		defer f.Close()

		enc := json.NewEncoder(f)

		written := 0

		for _, c := range corrections {
			row := preferencePairRow{
				Timestamp:  c.CreatedAt.Format(time.RFC3339),
				ProposalID: c.ProposalID,
				Prompt:     c.Description,
				Chosen:     c.CorrectedKonto,
				Rejected:   c.OriginalKonto,
			}

			if err := enc.Encode(row); err != nil {
				return nil, err
			}

			written++
		}

		return map[string]any{"file": path, "rows": written}, nil
	}
}

// backupTask snapshots the store into a timestamped file under backupDir
// via SQLite's VACUUM INTO, then prunes snapshots beyond keep (spec.md
// §4.I "03:00 backup" + §9 "retention of 30").
func backupTask(store *sqlitestore.Store, backupDir string, keep int) scheduler.TaskFunc {
	return func(ctx context.Context) (map[string]any, error) {
		if err := os.MkdirAll(backupDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create backup dir: %w", err)
		}

		filename := fmt.Sprintf("nyx_%s.db", time.Now().UTC().Format("20060102T150405"))
		path := filepath.Join(backupDir, filename)

		if err := store.VacuumBackup(path); err != nil {
			return nil, fmt.Errorf("failed to snapshot store: %w", err)
		}

		removed, err := pruneOldBackups(backupDir, keep)
		if err != nil {
			return nil, err
		}

		return map[string]any{"file": path, "pruned": removed}, nil
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func pruneOldBackups(backupDir string, keep int) (int, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return 0, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	if len(names) <= keep {
		return 0, nil
	}

	toRemove := names[:len(names)-keep]
	for _, n := range toRemove {
		_ = os.Remove(filepath.Join(backupDir, n))
	}

	return len(toRemove), nil
}

// pruneLogsTask deletes audit rows older than maxDays (spec.md §4.I "05:00
// log pruning (>90 days old)").
func pruneLogsTask(store *sqlitestore.Store, maxDays int) scheduler.TaskFunc {
	return func(ctx context.Context) (map[string]any, error) {
		removed, err := store.PruneAuditLog(maxDays)
		if err != nil {
			return nil, fmt.Errorf("failed to prune audit log: %w", err)
		}

		return map[string]any{"removed": removed}, nil
	}
}

// RunDPOExportNow runs the nightly preference-pair export job immediately,
// for nyxctl's "dpo-export now". It reads corrections from the store, so it
// sees rows recorded by the running server process, not just its own.
func RunDPOExportNow(ctx context.Context, store *sqlitestore.Store, datasetDir string) (map[string]any, error) {
	return dpoExportTask(store, datasetDir)(ctx)
}

// RunBackupNow runs the nightly backup job immediately, for nyxctl's
// "backup now".
func RunBackupNow(ctx context.Context, store *sqlitestore.Store, backupDir string, keep int) (map[string]any, error) {
	return backupTask(store, backupDir, keep)(ctx)
}

// RunPruneLogsNow runs the nightly log-pruning job immediately.
func RunPruneLogsNow(ctx context.Context, store *sqlitestore.Store, maxDays int) (map[string]any, error) {
	return pruneLogsTask(store, maxDays)(ctx)
}
