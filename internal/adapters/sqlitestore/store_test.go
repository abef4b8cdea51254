package sqlitestore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nyxlight/ledger/internal/domain/audit"
	"github.com/nyxlight/ledger/internal/domain/ledger"
	"github.com/nyxlight/ledger/internal/domain/proposal"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "nyx.db")

	s, err := Open(path, 1)
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func sampleLines() []ledger.Line {
	return []ledger.Line{
		{Konto: "7200", Side: ledger.Debit, Amount: decimal.NewFromInt(1000), Description: "usluga"},
		{Konto: "2200", Side: ledger.Credit, Amount: decimal.NewFromInt(1000), Description: "obveza"},
	}
}

func TestSaveTransaction_RoundTripsThroughLoadTransactionsInOrder(t *testing.T) {
	s := openTestStore(t)

	tx := ledger.NewTransaction("2026-07-30", "prvi unos", "doc/1", "client-a", sampleLines())
	tx.Fingerprint = "fingerprint000001"
	tx.ChainHash = "chainhash0000001"
	tx.Status = ledger.StatusCommitted

	require.NoError(t, s.SaveTransaction(tx))

	loaded, err := s.LoadTransactionsInOrder()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, tx.ID, loaded[0].ID)
	require.Equal(t, tx.Fingerprint, loaded[0].Fingerprint)
	require.Len(t, loaded[0].Lines, 2)
}

func TestUpdateTransactionStatus_ChangesStoredStatus(t *testing.T) {
	s := openTestStore(t)

	tx := ledger.NewTransaction("2026-07-30", "unos", "doc/1", "client-a", sampleLines())
	tx.Fingerprint = "fp"
	tx.ChainHash = "ch"
	require.NoError(t, s.SaveTransaction(tx))

	require.NoError(t, s.UpdateTransactionStatus(tx.ID, ledger.StatusReversed))

	loaded, err := s.LoadTransactionsInOrder()
	require.NoError(t, err)
	require.Equal(t, ledger.StatusReversed, loaded[0].Status)
}

func TestSaveProposal_RoundTripsThroughLoadAllProposals(t *testing.T) {
	s := openTestStore(t)

	p := &proposal.BookingProposal{
		ID:           "prop-1",
		ClientID:     "client-a",
		DocumentType: "ulazni_racun",
		Lines:        sampleLines(),
		Status:       proposal.StatusPending,
		Confidence:   0.9,
		Reasoning:    "ai klasifikacija",
		CreatedAt:    time.Now().UTC(),
	}

	require.NoError(t, s.SaveProposal(p))

	loaded, err := s.LoadAllProposals()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, p.ID, loaded[0].ID)
	require.Equal(t, proposal.StatusPending, loaded[0].Status)
	require.Len(t, loaded[0].Lines, 2)
}

func TestUpdateProposalStatus_PersistsAcrossReload(t *testing.T) {
	s := openTestStore(t)

	p := &proposal.BookingProposal{
		ID: "prop-1", ClientID: "client-a", Lines: sampleLines(),
		Status: proposal.StatusPending, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveProposal(p))
	require.NoError(t, s.UpdateProposalStatus(p.ID, proposal.StatusApproved))

	loaded, err := s.LoadAllProposals()
	require.NoError(t, err)
	require.Equal(t, proposal.StatusApproved, loaded[0].Status)
}

func TestSaveCorrection_Persists(t *testing.T) {
	s := openTestStore(t)

	p := &proposal.BookingProposal{
		ID: "prop-1", ClientID: "client-a", Lines: sampleLines(),
		Status: proposal.StatusPending, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveProposal(p))

	c := &proposal.Correction{
		ID: "corr-1", ProposalID: p.ID, User: "ana",
		OriginalKonto: "7200", CorrectedKonto: "7800", Description: "ispravak",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveCorrection(c))
}

func TestLoadCorrections_RoundTripsAndFiltersBySince(t *testing.T) {
	s := openTestStore(t)

	p := &proposal.BookingProposal{
		ID: "prop-1", ClientID: "client-a", Lines: sampleLines(),
		Status: proposal.StatusPending, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveProposal(p))

	old := &proposal.Correction{
		ID: "corr-old", ProposalID: p.ID, User: "ana",
		OriginalKonto: "7200", CorrectedKonto: "7800", Description: "stari ispravak",
		CreatedAt: time.Now().UTC().AddDate(0, 0, -2),
	}
	require.NoError(t, s.SaveCorrection(old))

	recent := &proposal.Correction{
		ID: "corr-new", ProposalID: p.ID, User: "ana",
		OriginalKonto: "7200", CorrectedKonto: "7800", Description: "novi ispravak",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveCorrection(recent))

	since := time.Now().UTC().AddDate(0, 0, -1)

	loaded, err := s.LoadCorrections(since)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "corr-new", loaded[0].ID)
}

func TestAppendAudit_RoundTripsThroughAuditRows(t *testing.T) {
	s := openTestStore(t)

	e := audit.EntryRecord{
		Timestamp: time.Now().UTC(), UserID: "ana", Action: "login",
		Module: "auth", RiskLevel: "low", Fingerprint: "fp1", ChainHash: "ch1",
	}
	require.NoError(t, s.AppendAudit(e))

	rows, err := s.AuditRows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "ana", rows[0].UserID)
}

func TestPruneAuditLog_RemovesOnlyOldRows(t *testing.T) {
	s := openTestStore(t)

	recent := audit.EntryRecord{
		Timestamp: time.Now().UTC(), UserID: "ana", Action: "login",
		Fingerprint: "fp1", ChainHash: "ch1",
	}
	old := audit.EntryRecord{
		Timestamp: time.Now().UTC().AddDate(0, 0, -120), UserID: "ana", Action: "login",
		Fingerprint: "fp2", ChainHash: "ch2",
	}
	require.NoError(t, s.AppendAudit(old))
	require.NoError(t, s.AppendAudit(recent))

	removed, err := s.PruneAuditLog(90)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	rows, err := s.AuditRows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "fp1", rows[0].Fingerprint)
}

func TestVacuumBackup_WritesSnapshotFile(t *testing.T) {
	s := openTestStore(t)

	tx := ledger.NewTransaction("2026-07-30", "unos", "doc/1", "client-a", sampleLines())
	tx.Fingerprint = "fp"
	tx.ChainHash = "ch"
	require.NoError(t, s.SaveTransaction(tx))

	dest := filepath.Join(t.TempDir(), "backup.db")
	require.NoError(t, s.VacuumBackup(dest))

	backup, err := Open(dest, 1)
	require.NoError(t, err)
	defer backup.Close()

	loaded, err := backup.LoadTransactionsInOrder()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
}
