package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nyxlight/ledger/internal/apperr"
)

const genesisHash = "GENESIS"

// Store is the durable persistence port the Ledger writes through to. It is
// satisfied by internal/adapters/sqlitestore. Kept narrow so the ledger's
// own tests can use an in-memory fake.
type Store interface {
	SaveTransaction(t *Transaction) error
	UpdateTransactionStatus(id string, status Status) error
}

// KontoBalance is one row of a trial balance.
type KontoBalance struct {
	Debit   decimal.Decimal
	Credit  decimal.Decimal
	Balance decimal.Decimal
}

// TrialBalance is the result of GeneralLedger.TrialBalance.
type TrialBalance struct {
	Konta        map[string]KontoBalance
	TotalDebit   decimal.Decimal
	TotalCredit  decimal.Decimal
	Balanced     bool
	Difference   decimal.Decimal
}

// ChainVerification is the result of GeneralLedger.VerifyChain.
type ChainVerification struct {
	Ok     bool
	Breaks []string // tx IDs where the recomputed chain hash diverges
}

// GeneralLedger is the strict, single-writer double-entry ledger. Every
// commit takes chainMu, reads the previous chain hash, appends the new row,
// and releases — spec.md §5 "The audit chain is globally serialized".
type GeneralLedger struct {
	store Store

	chainMu   sync.Mutex
	chainHash string
	chain     []*Transaction // append-only, in chain order

	mu           sync.RWMutex
	byID         map[string]*Transaction
	rejectedCt   int
}

// New builds an empty ledger backed by store.
func New(store Store) *GeneralLedger {
	return &GeneralLedger{
		store:     store,
		chainHash: genesisHash,
		byID:      make(map[string]*Transaction),
	}
}

// Restore repopulates the in-memory chain and index from transactions
// already committed to the store, in the order they were persisted — used
// on startup so a restart doesn't lose the chain-hash continuity (spec.md
// §7.6 crash-recovery scenario).
func (g *GeneralLedger) Restore(transactions []*Transaction) {
	g.chainMu.Lock()
	defer g.chainMu.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, t := range transactions {
		g.chain = append(g.chain, t)
		g.byID[t.ID] = t
		g.chainHash = t.ChainHash
	}
}

// Validate runs Transaction.Validate and returns the ordered errors, or nil
// if the transaction is committable.
func (g *GeneralLedger) Validate(t *Transaction) []string {
	return t.Validate()
}

// Commit persists a balanced transaction and links it into the chain.
// Rejects with an InvalidInput/BalanceError apperr if validation fails.
func (g *GeneralLedger) Commit(t *Transaction, user string) (*Transaction, error) {
	errs := t.Validate()
	if len(errs) > 0 {
		g.mu.Lock()
		g.rejectedCt++
		g.mu.Unlock()

		if !t.IsBalanced() {
			return nil, apperr.Balance(joinErrs(errs))
		}

		return nil, apperr.InvalidInput(joinErrs(errs))
	}

	t.Status = StatusCommitted
	t.CreatedBy = firstNonEmpty(user, t.CreatedBy, "system")
	t.Fingerprint = t.ComputeFingerprint()

	g.chainMu.Lock()
	defer g.chainMu.Unlock()

	t.ChainHash = nextChainHash(g.chainHash, t.Fingerprint)

	if err := g.store.SaveTransaction(t); err != nil {
		return nil, apperr.Storage(err)
	}

	g.chainHash = t.ChainHash
	g.chain = append(g.chain, t)

	g.mu.Lock()
	g.byID[t.ID] = t
	g.mu.Unlock()

	return t, nil
}

func nextChainHash(prev, fingerprint string) string {
	sum := sha256.Sum256([]byte(prev + "|" + fingerprint))
	return hex.EncodeToString(sum[:])[:16]
}

// Reverse creates a compensating transaction that flips every line's side,
// referencing the original. The original is marked StatusReversed but never
// deleted (spec.md §3).
func (g *GeneralLedger) Reverse(txID, user, reason string) (*Transaction, error) {
	g.mu.RLock()
	original, ok := g.byID[txID]
	g.mu.RUnlock()

	if !ok || original.Status != StatusCommitted {
		return nil, apperr.NotFound("transakcija %s ne postoji ili nije proknjižena", txID)
	}

	reversedLines := make([]Line, 0, len(original.Lines))
	for _, l := range original.Lines {
		flipped := Debit
		if l.Side == Debit {
			flipped = Credit
		}

		reversedLines = append(reversedLines, Line{
			Konto:       l.Konto,
			Side:        flipped,
			Amount:      l.Amount,
			Description: "STORNO: " + l.Description,
		})
	}

	desc := reason
	if desc == "" {
		desc = original.Description
	}

	reversal := NewTransaction(
		time.Now().UTC().Format("2006-01-02"),
		"STORNO #"+original.ID+": "+desc,
		"STORNO-"+original.DocumentRef,
		original.ClientID,
		reversedLines,
	)
	reversal.Source = "storno"

	committed, err := g.Commit(reversal, user)
	if err != nil {
		return nil, err
	}

	original.Status = StatusReversed

	if err := g.store.UpdateTransactionStatus(original.ID, StatusReversed); err != nil {
		return nil, apperr.Storage(err)
	}

	return committed, nil
}

// TrialBalance aggregates the lines of every committed or reversed
// transaction per konto (a reversed original and its STORNO transaction net
// to zero), optionally limited to dates <= throughDate ("" means no limit).
func (g *GeneralLedger) TrialBalance(throughDate string) TrialBalance {
	g.mu.RLock()
	defer g.mu.RUnlock()

	konta := make(map[string]KontoBalance)
	totalD, totalC := decimal.Zero, decimal.Zero

	for _, t := range g.byID {
		if t.Status != StatusCommitted && t.Status != StatusReversed {
			continue
		}

		if throughDate != "" && t.Date > throughDate {
			continue
		}

		for _, l := range t.Lines {
			kb := konta[l.Konto]

			switch l.Side {
			case Debit:
				kb.Debit = kb.Debit.Add(l.Amount)
				totalD = totalD.Add(l.Amount)
			case Credit:
				kb.Credit = kb.Credit.Add(l.Amount)
				totalC = totalC.Add(l.Amount)
			}

			kb.Balance = kb.Debit.Sub(kb.Credit)
			konta[l.Konto] = kb
		}
	}

	return TrialBalance{
		Konta:       konta,
		TotalDebit:  totalD,
		TotalCredit: totalC,
		Balanced:    totalD.Equal(totalC),
		Difference:  totalD.Sub(totalC),
	}
}

// VerifyChain recomputes every chain hash from GENESIS forward and reports
// the id of every transaction whose stored hash diverges (spec.md §4.B).
func (g *GeneralLedger) VerifyChain() ChainVerification {
	g.chainMu.Lock()
	chain := make([]*Transaction, len(g.chain))
	copy(chain, g.chain)
	g.chainMu.Unlock()

	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].CreatedAt.Before(chain[j].CreatedAt)
	})

	prev := genesisHash

	var breaks []string

	for _, t := range chain {
		want := nextChainHash(prev, t.Fingerprint)
		if want != t.ChainHash {
			breaks = append(breaks, t.ID)
		}

		prev = t.ChainHash
	}

	return ChainVerification{Ok: len(breaks) == 0, Breaks: breaks}
}

// RejectedCount returns how many commits have failed validation so far.
func (g *GeneralLedger) RejectedCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.rejectedCt
}

func joinErrs(errs []string) string {
	out := errs[0]
	for _, e := range errs[1:] {
		out += "; " + e
	}

	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}

	return ""
}
