package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	saved    []*Transaction
	statuses map[string]Status
}

func newFakeStore() *fakeStore {
	return &fakeStore{statuses: make(map[string]Status)}
}

func (f *fakeStore) SaveTransaction(t *Transaction) error {
	f.saved = append(f.saved, t)
	return nil
}

func (f *fakeStore) UpdateTransactionStatus(id string, status Status) error {
	f.statuses[id] = status
	return nil
}

func balancedLines() []Line {
	return []Line{
		{Konto: "7200", Side: Debit, Amount: decimal.NewFromInt(1000), Description: "usluga"},
		{Konto: "2200", Side: Credit, Amount: decimal.NewFromInt(1000), Description: "obveza"},
	}
}

func TestCommit_BalancedTransactionAdvancesChain(t *testing.T) {
	store := newFakeStore()
	gl := New(store)

	tx1 := NewTransaction("2026-07-30", "prvi unos", "doc/1", "client-a", balancedLines())

	committed1, err := gl.Commit(tx1, "ana")
	require.NoError(t, err)
	require.Equal(t, genesisHash, "GENESIS")
	require.NotEqual(t, genesisHash, committed1.ChainHash)

	tx2 := NewTransaction("2026-07-30", "drugi unos", "doc/2", "client-a", balancedLines())

	committed2, err := gl.Commit(tx2, "ana")
	require.NoError(t, err)
	require.Equal(t, nextChainHash(committed1.ChainHash, committed2.Fingerprint), committed2.ChainHash)

	verify := gl.VerifyChain()
	require.True(t, verify.Ok)
	require.Empty(t, verify.Breaks)
}

func TestCommit_UnbalancedTransactionRejected(t *testing.T) {
	store := newFakeStore()
	gl := New(store)

	lines := []Line{
		{Konto: "7200", Side: Debit, Amount: decimal.NewFromInt(1000)},
		{Konto: "2200", Side: Credit, Amount: decimal.NewFromInt(999)},
	}

	tx := NewTransaction("2026-07-30", "neuravnoteženo", "doc/3", "client-a", lines)

	_, err := gl.Commit(tx, "ana")
	require.Error(t, err)
	require.Equal(t, 1, gl.RejectedCount())
	require.Empty(t, store.saved)
}

func TestVerifyChain_DetectsTamperedFingerprint(t *testing.T) {
	store := newFakeStore()
	gl := New(store)

	tx := NewTransaction("2026-07-30", "unos", "doc/1", "client-a", balancedLines())

	committed, err := gl.Commit(tx, "ana")
	require.NoError(t, err)

	committed.Fingerprint = "tampered0000000"

	verify := gl.VerifyChain()
	require.False(t, verify.Ok)
	require.Contains(t, verify.Breaks, committed.ID)
}

func TestTrialBalance_SumsDebitsAndCredits(t *testing.T) {
	store := newFakeStore()
	gl := New(store)

	tx := NewTransaction("2026-07-30", "unos", "doc/1", "client-a", balancedLines())

	_, err := gl.Commit(tx, "ana")
	require.NoError(t, err)

	tb := gl.TrialBalance("")
	require.True(t, tb.Balanced)
	require.True(t, tb.TotalDebit.Equal(decimal.NewFromInt(1000)))
	require.True(t, tb.TotalCredit.Equal(decimal.NewFromInt(1000)))
}

func TestRestore_ContinuesChainFromPersistedTransactions(t *testing.T) {
	store := newFakeStore()
	gl := New(store)

	tx := NewTransaction("2026-07-30", "unos", "doc/1", "client-a", balancedLines())

	committed, err := gl.Commit(tx, "ana")
	require.NoError(t, err)

	restored := New(store)
	restored.Restore([]*Transaction{committed})

	tx2 := NewTransaction("2026-07-30", "drugi", "doc/2", "client-a", balancedLines())

	committed2, err := restored.Commit(tx2, "ana")
	require.NoError(t, err)
	require.Equal(t, nextChainHash(committed.ChainHash, committed2.Fingerprint), committed2.ChainHash)
}
