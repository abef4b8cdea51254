// Package ledger implements the double-entry ledger: balancing validation,
// chain-hashed commit, reversal and trial balance (spec.md §4.B).
//
// Grounded on _examples/original_source/src/nyx_light/modules/ledger/__init__.py
// (Transaction/LedgerEntry validate+fingerprint, GeneralLedger.book/propose/
// approve/storno/trial_balance/verify_integrity) and
// .../modules/audit/__init__.py (chain_hash = SHA256(prev|fingerprint)).
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is which side of a ledger line an amount sits on.
type Side string

const (
	Debit  Side = "debit"
	Credit Side = "credit"
)

// Status is the lifecycle state of a Transaction (spec.md §3).
type Status string

const (
	StatusDraft     Status = "draft"
	StatusValidated Status = "validated"
	StatusCommitted Status = "committed"
	StatusReversed  Status = "reversed"
)

// Line is one entry of a double-entry Transaction.
type Line struct {
	Konto          string
	Side           Side
	Amount         decimal.Decimal
	Description    string
	CounterpartyID string // optional counterparty tax ID
}

// Transaction is a proposal that has been approved and committed, or is in
// the process of becoming one (spec.md §3 "Transaction (committed)").
type Transaction struct {
	ID          string
	Date        string // YYYY-MM-DD
	Description string
	DocumentRef string
	ClientID    string
	CreatedBy   string
	Source      string
	Status      Status
	Lines       []Line
	CreatedAt   time.Time

	Fingerprint string
	ChainHash   string
}

// NewTransaction builds a draft transaction with a fresh ID.
func NewTransaction(date, description, documentRef, clientID string, lines []Line) *Transaction {
	return &Transaction{
		ID:          uuid.NewString(),
		Date:        date,
		Description: description,
		DocumentRef: documentRef,
		ClientID:    clientID,
		Status:      StatusDraft,
		Lines:       lines,
		CreatedAt:   time.Now().UTC(),
	}
}

// TotalDebit sums every debit line to cent precision.
func (t *Transaction) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range t.Lines {
		if l.Side == Debit {
			total = total.Add(l.Amount)
		}
	}

	return total
}

// TotalCredit sums every credit line to cent precision.
func (t *Transaction) TotalCredit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range t.Lines {
		if l.Side == Credit {
			total = total.Add(l.Amount)
		}
	}

	return total
}

// IsBalanced reports whether debits equal credits exactly.
func (t *Transaction) IsBalanced() bool {
	return t.TotalDebit().Equal(t.TotalCredit())
}

// Validate checks every invariant in spec.md §4.B and returns the ordered,
// human-readable list of violations (empty if the transaction is valid).
func (t *Transaction) Validate() []string {
	var errs []string

	if len(t.Lines) < 2 {
		errs = append(errs, "transakcija mora imati barem dvije stavke (duguje + potražuje)")
	}

	hasDebit, hasCredit := false, false

	for i, l := range t.Lines {
		if l.Amount.LessThanOrEqual(decimal.Zero) {
			errs = append(errs, fmt.Sprintf("stavka %d: iznos mora biti veći od nule", i+1))
		}

		if len(strings.TrimSpace(l.Konto)) < 3 {
			errs = append(errs, fmt.Sprintf("stavka %d: konto mora imati barem 3 znamenke", i+1))
		}

		switch l.Side {
		case Debit:
			hasDebit = true
		case Credit:
			hasCredit = true
		}
	}

	if !hasDebit {
		errs = append(errs, "nema stavke na dugovnoj strani")
	}

	if !hasCredit {
		errs = append(errs, "nema stavke na potražnoj strani")
	}

	if !t.IsBalanced() {
		d, p := t.TotalDebit(), t.TotalCredit()
		errs = append(errs, fmt.Sprintf(
			"NERAVNOTEŽA: duguje=%s potražuje=%s razlika=%s", d, p, d.Sub(p)))
	}

	if strings.TrimSpace(t.Date) == "" {
		errs = append(errs, "datum je obavezan")
	}

	if strings.TrimSpace(t.Description) == "" {
		errs = append(errs, "opis transakcije je obavezan")
	}

	return errs
}

// ComputeFingerprint hashes the canonicalised content of the transaction:
// id, date, description, doc ref, and every (konto, side, amount) tuple
// sorted for determinism — spec.md §4.B.
func (t *Transaction) ComputeFingerprint() string {
	lines := make([]Line, len(t.Lines))
	copy(lines, t.Lines)
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Konto != lines[j].Konto {
			return lines[i].Konto < lines[j].Konto
		}

		return lines[i].Side < lines[j].Side
	})

	parts := []string{t.ID, t.Date, t.Description, t.DocumentRef}
	for _, l := range lines {
		parts = append(parts, l.Konto, string(l.Side), l.Amount.StringFixed(2))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))

	return hex.EncodeToString(sum[:])[:16]
}
