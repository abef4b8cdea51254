// Package sqlitestore is the durable persistence port (spec.md §4.A): a
// single embedded WAL-mode SQLite file behind a bounded connection pool,
// backing both the ledger's committed Transactions and the proposal
// pipeline's pending/approved bookings.
//
// Grounded on
// _examples/original_source/src/nyx_light/storage/sqlite_store.py
// (schema shape: bookings/corrections/audit_log tables, PRAGMA
// journal_mode=WAL, save_booking/approve_booking/get_pending_bookings) and
// the teacher's pkg/dbtx (context-carried *sql.Tx executor pattern) and
// pkg/mmigration (ordered migration application).
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nyxlight/ledger/internal/apperr"
	"github.com/nyxlight/ledger/internal/domain/audit"
	"github.com/nyxlight/ledger/internal/domain/ledger"
	"github.com/nyxlight/ledger/internal/domain/proposal"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	date TEXT NOT NULL,
	description TEXT NOT NULL,
	document_ref TEXT,
	client_id TEXT,
	created_by TEXT,
	source TEXT,
	status TEXT NOT NULL DEFAULT 'committed',
	lines_json TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	chain_hash TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date);
CREATE INDEX IF NOT EXISTS idx_transactions_client ON transactions(client_id);

CREATE TABLE IF NOT EXISTS proposals (
	id TEXT PRIMARY KEY,
	client_id TEXT NOT NULL,
	document_type TEXT,
	lines_json TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	confidence REAL DEFAULT 0,
	reasoning TEXT,
	approver TEXT,
	approved_at TEXT,
	erp_target TEXT,
	rejection_reason TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_proposals_client ON proposals(client_id);
CREATE INDEX IF NOT EXISTS idx_proposals_status ON proposals(status);

CREATE TABLE IF NOT EXISTS corrections (
	id TEXT PRIMARY KEY,
	proposal_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	original_konto TEXT,
	corrected_konto TEXT,
	description TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_corrections_proposal ON corrections(proposal_id);

CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	user_id TEXT NOT NULL,
	action TEXT NOT NULL,
	module TEXT DEFAULT '',
	details TEXT DEFAULT '',
	entity_id TEXT DEFAULT '',
	client_id TEXT DEFAULT '',
	risk_level TEXT DEFAULT 'low',
	fingerprint TEXT NOT NULL,
	chain_hash TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_log(user_id);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);
CREATE INDEX IF NOT EXISTS idx_audit_time ON audit_log(timestamp);
`

// Store is the embedded SQLite backend. *sql.DB already pools connections;
// maxOpen bounds it the way the teacher's pkg/dbtx expects a single shared
// pool rather than one connection per goroutine.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) the SQLite file at path in WAL mode and applies
// the schema. maxOpenConns bounds the pool (spec.md's ~20-connection
// budget for fifteen concurrent users plus background jobs).
func Open(path string, maxOpenConns int) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 20
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// withBusyRetry retries fn with exponential backoff (50ms initial interval)
// while SQLite reports "database is locked", making at most three attempts
// in total.
func withBusyRetry(ctx context.Context, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond

	policy := backoff.WithContext(backoff.WithMaxRetries(b, 2), ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}

		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			return err // retryable
		}

		return backoff.Permanent(err)
	}, policy)
}

// isBusy reports whether the final error, after retries are exhausted, is
// still a lock contention error — surfaced to callers as StorageBusy rather
// than a generic StorageError.
func isBusy(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY"))
}

// --- ledger.Store ---

func encodeLines(lines []ledger.Line) (string, error) {
	b, err := json.Marshal(lines)
	return string(b), err
}

func decodeLines(raw string) ([]ledger.Line, error) {
	var lines []ledger.Line
	err := json.Unmarshal([]byte(raw), &lines)

	return lines, err
}

// SaveTransaction persists a committed ledger Transaction, satisfying
// ledger.Store.
func (s *Store) SaveTransaction(t *ledger.Transaction) error {
	linesJSON, err := encodeLines(t.Lines)
	if err != nil {
		return err
	}

	ctx := context.Background()

	err = withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO transactions
				(id, date, description, document_ref, client_id, created_by, source,
				 status, lines_json, fingerprint, chain_hash, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Date, t.Description, t.DocumentRef, t.ClientID, t.CreatedBy, t.Source,
			string(t.Status), linesJSON, t.Fingerprint, t.ChainHash, t.CreatedAt.Format(time.RFC3339Nano))

		return err
	})

	if isBusy(err) {
		return errStorageBusy(err)
	}

	return err
}

// UpdateTransactionStatus flips a transaction's status (e.g. to reversed),
// satisfying ledger.Store.
func (s *Store) UpdateTransactionStatus(id string, status ledger.Status) error {
	ctx := context.Background()

	err := withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE transactions SET status = ? WHERE id = ?`, string(status), id)
		return err
	})

	if isBusy(err) {
		return errStorageBusy(err)
	}

	return err
}

func errStorageBusy(err error) error {
	return apperr.StorageBusy(err.Error())
}

// --- proposal.Store ---

// SaveProposal persists a new pending proposal, satisfying proposal.Store.
func (s *Store) SaveProposal(p *proposal.BookingProposal) error {
	linesJSON, err := encodeLines(p.Lines)
	if err != nil {
		return err
	}

	ctx := context.Background()

	err = withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO proposals
				(id, client_id, document_type, lines_json, status, confidence, reasoning, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.ClientID, p.DocumentType, linesJSON, string(p.Status), p.Confidence, p.Reasoning,
			p.CreatedAt.Format(time.RFC3339Nano))

		return err
	})

	if isBusy(err) {
		return errStorageBusy(err)
	}

	return err
}

// UpdateProposalStatus flips a proposal's status, satisfying proposal.Store.
func (s *Store) UpdateProposalStatus(id string, status proposal.Status) error {
	ctx := context.Background()

	err := withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE proposals SET status = ? WHERE id = ?`, string(status), id)
		return err
	})

	if isBusy(err) {
		return errStorageBusy(err)
	}

	return err
}

// SaveCorrection persists a correction row, satisfying proposal.Store.
func (s *Store) SaveCorrection(c *proposal.Correction) error {
	ctx := context.Background()

	err := withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO corrections (id, proposal_id, user_id, original_konto, corrected_konto, description, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.ProposalID, c.User, c.OriginalKonto, c.CorrectedKonto, c.Description,
			c.CreatedAt.Format(time.RFC3339Nano))

		return err
	})

	if isBusy(err) {
		return errStorageBusy(err)
	}

	return err
}

// LoadCorrections returns every correction recorded at or after since,
// ordered by creation time — the nightly DPO export's "queries corrections
// from today" query (spec.md §4.I), reading durable state directly rather
// than an in-memory cache that resets across process restarts.
func (s *Store) LoadCorrections(since time.Time) ([]*proposal.Correction, error) {
	rows, err := s.db.Query(`
		SELECT id, proposal_id, user_id, original_konto, corrected_konto, description, created_at
		FROM corrections WHERE created_at >= ? ORDER BY created_at ASC`,
		since.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*proposal.Correction

	for rows.Next() {
		var c proposal.Correction
		var createdAt string

		if err := rows.Scan(&c.ID, &c.ProposalID, &c.User, &c.OriginalKonto, &c.CorrectedKonto,
			&c.Description, &createdAt); err != nil {
			return nil, err
		}

		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			c.CreatedAt = t
		}

		out = append(out, &c)
	}

	return out, rows.Err()
}

// LoadAllProposals rebuilds the in-memory proposal map on startup, ordered
// by creation time — spec.md §7.6's crash-recovery scenario: "restart. GET
// /api/pending returns the same three, in the same order by creation time."
func (s *Store) LoadAllProposals() ([]*proposal.BookingProposal, error) {
	rows, err := s.db.Query(`
		SELECT id, client_id, document_type, lines_json, status, confidence, reasoning,
		       approver, approved_at, erp_target, rejection_reason, created_at
		FROM proposals ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*proposal.BookingProposal

	for rows.Next() {
		var (
			p                                         proposal.BookingProposal
			linesJSON, status, createdAt               string
			approver, approvedAt, erpTarget, rejReason sql.NullString
		)

		if err := rows.Scan(&p.ID, &p.ClientID, &p.DocumentType, &linesJSON, &status, &p.Confidence,
			&p.Reasoning, &approver, &approvedAt, &erpTarget, &rejReason, &createdAt); err != nil {
			return nil, err
		}

		lines, err := decodeLines(linesJSON)
		if err != nil {
			return nil, err
		}

		p.Lines = lines
		p.Status = proposal.Status(status)
		p.Approver = approver.String
		p.ERPTarget = erpTarget.String
		p.RejectionReason = rejReason.String

		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			p.CreatedAt = t
		}

		if approvedAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, approvedAt.String); err == nil {
				p.ApprovedAt = t
			}
		}

		out = append(out, &p)
	}

	return out, rows.Err()
}

// LoadTransactionsInOrder rebuilds the ledger's chain in commit order, used
// by GeneralLedger on restart to repopulate its append-only chain slice.
func (s *Store) LoadTransactionsInOrder() ([]*ledger.Transaction, error) {
	rows, err := s.db.Query(`
		SELECT id, date, description, document_ref, client_id, created_by, source,
		       status, lines_json, fingerprint, chain_hash, created_at
		FROM transactions ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledger.Transaction

	for rows.Next() {
		var (
			t                                  ledger.Transaction
			status, linesJSON, createdAt       string
			documentRef, clientID, createdBy, source sql.NullString
		)

		if err := rows.Scan(&t.ID, &t.Date, &t.Description, &documentRef, &clientID, &createdBy, &source,
			&status, &linesJSON, &t.Fingerprint, &t.ChainHash, &createdAt); err != nil {
			return nil, err
		}

		lines, err := decodeLines(linesJSON)
		if err != nil {
			return nil, err
		}

		t.Lines = lines
		t.Status = ledger.Status(status)
		t.DocumentRef = documentRef.String
		t.ClientID = clientID.String
		t.CreatedBy = createdBy.String
		t.Source = source.String

		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			t.CreatedAt = ts
		}

		out = append(out, &t)
	}

	return out, rows.Err()
}

// --- audit log ---

// AppendAudit inserts one audit row. Chain linkage is computed by the
// caller (internal/domain/audit), which holds the chain mutex; this method
// only persists the already-hashed row.
func (s *Store) AppendAudit(e audit.EntryRecord) error {
	ctx := context.Background()

	return withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO audit_log
				(timestamp, user_id, action, module, details, entity_id, client_id, risk_level, fingerprint, chain_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.Timestamp.Format(time.RFC3339Nano), e.UserID, e.Action, e.Module, e.Details,
			e.EntityID, e.ClientID, e.RiskLevel, e.Fingerprint, e.ChainHash)

		return err
	})
}

// AuditRows returns every audit row in insertion order, used to rebuild the
// chain hash on restart and to verify it on demand.
func (s *Store) AuditRows() ([]audit.EntryRecord, error) {
	rows, err := s.db.Query(`
		SELECT timestamp, user_id, action, module, details, entity_id, client_id, risk_level, fingerprint, chain_hash
		FROM audit_log ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.EntryRecord

	for rows.Next() {
		var e audit.EntryRecord
		var ts string

		if err := rows.Scan(&ts, &e.UserID, &e.Action, &e.Module, &e.Details, &e.EntityID,
			&e.ClientID, &e.RiskLevel, &e.Fingerprint, &e.ChainHash); err != nil {
			return nil, err
		}

		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = t
		}

		out = append(out, e)
	}

	return out, rows.Err()
}

// VacuumBackup runs SQLite's VACUUM INTO, producing a consistent snapshot
// file without blocking concurrent readers — the nightly backup job's
// mechanism (spec.md §4.I).
func (s *Store) VacuumBackup(destPath string) error {
	_, err := s.db.Exec(fmt.Sprintf("VACUUM INTO '%s'", strings.ReplaceAll(destPath, "'", "''")))
	return err
}

// PruneAuditLog deletes audit rows older than olderThanDays, the nightly
// log-pruning job's mechanism (spec.md §4.I "05:00 log pruning (>90 days
// old)"). Returns the number of rows removed.
func (s *Store) PruneAuditLog(olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays).Format(time.RFC3339)

	res, err := s.db.Exec(`DELETE FROM audit_log WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
