// Package proposal implements the booking proposal pipeline: submit,
// approve, reject, correct, export — the "Proposal Pipeline" component
// (spec.md §4.C), grounded on the commit/status-transition shape of
// _examples/original_source/src/nyx_light/modules/ledger/__init__.py's
// GeneralLedger.propose/approve/storno and on the in-memory-plus-write-through
// duality of components/ledger's repository layer.
package proposal

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nyxlight/ledger/internal/apperr"
	"github.com/nyxlight/ledger/internal/domain/ledger"
)

// Status is the lifecycle state of a BookingProposal (spec.md §4.C).
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCorrected Status = "corrected"
	StatusExported  Status = "exported"
)

// BookingProposal is a draft double-entry record awaiting approval
// (spec.md §3 "Booking proposal").
type BookingProposal struct {
	ID              string
	ClientID        string
	DocumentType    string
	Lines           []ledger.Line
	Status          Status
	Confidence      float64
	Reasoning       string
	Approver        string
	ApprovedAt      time.Time
	ERPTarget       string
	RejectionReason string
	CreatedAt       time.Time

	committedTxID string
}

// totalDebit and totalCredit mirror ledger.Transaction's helpers so a
// proposal can be validated before it ever becomes a Transaction.
func (p *BookingProposal) totalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range p.Lines {
		if l.Side == ledger.Debit {
			total = total.Add(l.Amount)
		}
	}

	return total
}

func (p *BookingProposal) totalCredit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range p.Lines {
		if l.Side == ledger.Credit {
			total = total.Add(l.Amount)
		}
	}

	return total
}

// Correction records an operator's change to a proposal's suggested konto,
// fed to the nightly preference-pair export as a (chosen, rejected) tuple
// (spec.md §3 "Correction").
type Correction struct {
	ID             string
	ProposalID     string
	User           string
	OriginalKonto  string
	CorrectedKonto string
	Description    string
	CreatedAt      time.Time
}

// Store is the durable write-through persistence port. The in-memory map is
// a cache, never the source of truth — on startup it is rebuilt from here
// (spec.md §4.C "Dual representation").
type Store interface {
	SaveProposal(p *BookingProposal) error
	UpdateProposalStatus(id string, status Status) error
	SaveCorrection(c *Correction) error
	LoadAllProposals() ([]*BookingProposal, error)
}

// Ledger is the narrow slice of the general ledger the pipeline needs to
// turn an approved proposal into a committed Transaction.
type Ledger interface {
	Commit(t *ledger.Transaction, user string) (*ledger.Transaction, error)
}

// Exporter emits approved proposals in an ERP-specific wire format. The
// control plane never speaks the ERP protocol directly — it delegates.
type Exporter interface {
	Export(proposals []*BookingProposal, fmt string) ([]byte, error)
}

// Pipeline is the C component: submit/approve/reject/correct/list/export
// over a mutex-protected in-memory map, write-through to Store.
type Pipeline struct {
	store    Store
	ledger   Ledger
	exporter Exporter

	mu          sync.RWMutex
	byID        map[string]*BookingProposal
	corrections []*Correction
}

// New builds a Pipeline and restores its in-memory map from store, per
// spec.md's crash-recovery scenario (§7.6): "kill the process mid-heartbeat;
// restart. GET /api/pending returns the same three, in the same order".
func New(store Store, lg Ledger, exporter Exporter) (*Pipeline, error) {
	p := &Pipeline{
		store:  store,
		ledger: lg,
		byID:   make(map[string]*BookingProposal),
	}

	existing, err := store.LoadAllProposals()
	if err != nil {
		return nil, apperr.Storage(err)
	}

	for _, bp := range existing {
		p.byID[bp.ID] = bp
	}

	p.exporter = exporter

	return p, nil
}

// Submit validates and persists a new pending proposal.
func (p *Pipeline) Submit(clientID, documentType string, lines []ledger.Line, confidence float64, reasoning string) (*BookingProposal, error) {
	bp := &BookingProposal{
		ID:           uuid.NewString(),
		ClientID:     clientID,
		DocumentType: documentType,
		Lines:        lines,
		Status:       StatusPending,
		Confidence:   confidence,
		Reasoning:    reasoning,
		CreatedAt:    time.Now().UTC(),
	}

	if errs := validateLines(bp.Lines); len(errs) > 0 {
		if !bp.totalDebit().Equal(bp.totalCredit()) {
			d, c := bp.totalDebit(), bp.totalCredit()
			return nil, apperr.Balance("NERAVNOTEŽA: duguje=%s potražuje=%s razlika=%s", d, c, d.Sub(c))
		}

		return nil, apperr.InvalidInput(strings.Join(errs, "; "))
	}

	if err := p.store.SaveProposal(bp); err != nil {
		return nil, apperr.Storage(err)
	}

	p.mu.Lock()
	p.byID[bp.ID] = bp
	p.mu.Unlock()

	return bp, nil
}

func validateLines(lines []ledger.Line) []string {
	var errs []string

	if len(lines) < 2 {
		errs = append(errs, "prijedlog mora imati barem dvije stavke")
	}

	hasDebit, hasCredit := false, false
	total := decimal.Zero
	signed := decimal.Zero

	for _, l := range lines {
		if l.Amount.LessThanOrEqual(decimal.Zero) {
			errs = append(errs, "iznos stavke mora biti veći od nule")
		}

		total = total.Add(l.Amount)

		switch l.Side {
		case ledger.Debit:
			hasDebit = true
			signed = signed.Add(l.Amount)
		case ledger.Credit:
			hasCredit = true
			signed = signed.Sub(l.Amount)
		}
	}

	if !hasDebit {
		errs = append(errs, "nema stavke na dugovnoj strani")
	}

	if !hasCredit {
		errs = append(errs, "nema stavke na potražnoj strani")
	}

	if !signed.Equal(decimal.Zero) {
		errs = append(errs, "stavke nisu u ravnoteži")
	}

	return errs
}

// Get returns a proposal by id.
func (p *Pipeline) Get(id string) (*BookingProposal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	bp, ok := p.byID[id]
	if !ok {
		return nil, apperr.NotFound("prijedlog %s ne postoji", id)
	}

	return bp, nil
}

// Approve commits a pending proposal's lines as a ledger Transaction and
// marks it approved. Fails with InvalidState if the proposal is not pending
// (spec.md §4.C state machine).
func (p *Pipeline) Approve(id, user string) (*BookingProposal, error) {
	p.mu.Lock()
	bp, ok := p.byID[id]
	if !ok {
		p.mu.Unlock()
		return nil, apperr.NotFound("prijedlog %s ne postoji", id)
	}

	if bp.Status != StatusPending && bp.Status != StatusCorrected {
		p.mu.Unlock()
		return nil, apperr.InvalidState("prijedlog %s nije na čekanju (status=%s)", id, bp.Status)
	}
	p.mu.Unlock()

	tx := ledger.NewTransaction(
		time.Now().UTC().Format("2006-01-02"),
		bp.Reasoning,
		bp.DocumentType+"/"+bp.ID,
		bp.ClientID,
		bp.Lines,
	)
	tx.Source = "proposal:" + bp.ID

	committed, err := p.ledger.Commit(tx, user)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	bp.Status = StatusApproved
	bp.Approver = user
	bp.ApprovedAt = time.Now().UTC()
	bp.committedTxID = committed.ID
	p.mu.Unlock()

	if err := p.store.UpdateProposalStatus(id, StatusApproved); err != nil {
		return nil, apperr.Storage(err)
	}

	return bp, nil
}

// Reject marks a pending proposal rejected with a reason. Terminal: rejected
// proposals never transition again (spec.md invariant P6).
func (p *Pipeline) Reject(id, user, reason string) (*BookingProposal, error) {
	p.mu.Lock()
	bp, ok := p.byID[id]
	if !ok {
		p.mu.Unlock()
		return nil, apperr.NotFound("prijedlog %s ne postoji", id)
	}

	if bp.Status != StatusPending && bp.Status != StatusCorrected {
		p.mu.Unlock()
		return nil, apperr.InvalidState("prijedlog %s nije na čekanju (status=%s)", id, bp.Status)
	}

	bp.Status = StatusRejected
	bp.RejectionReason = reason
	p.mu.Unlock()

	if err := p.store.UpdateProposalStatus(id, StatusRejected); err != nil {
		return nil, apperr.Storage(err)
	}

	return bp, nil
}

// Correct records an (original_konto, corrected_konto) pair and rewrites the
// pending proposal's lines, but does not itself advance the status — the
// operator must still call Approve (spec.md §4.C).
func (p *Pipeline) Correct(id, user, originalKonto, correctedKonto, description string) (*BookingProposal, error) {
	p.mu.Lock()
	bp, ok := p.byID[id]
	if !ok {
		p.mu.Unlock()
		return nil, apperr.NotFound("prijedlog %s ne postoji", id)
	}

	if bp.Status != StatusPending && bp.Status != StatusCorrected {
		p.mu.Unlock()
		return nil, apperr.InvalidState("prijedlog %s nije na čekanju (status=%s)", id, bp.Status)
	}

	for i := range bp.Lines {
		if bp.Lines[i].Konto == originalKonto {
			bp.Lines[i].Konto = correctedKonto
		}
	}

	bp.Status = StatusCorrected
	p.mu.Unlock()

	c := &Correction{
		ID:             uuid.NewString(),
		ProposalID:     id,
		User:           user,
		OriginalKonto:  originalKonto,
		CorrectedKonto: correctedKonto,
		Description:    description,
		CreatedAt:      time.Now().UTC(),
	}

	if err := p.store.SaveCorrection(c); err != nil {
		return nil, apperr.Storage(err)
	}

	if err := p.store.UpdateProposalStatus(id, StatusCorrected); err != nil {
		return nil, apperr.Storage(err)
	}

	p.mu.Lock()
	p.corrections = append(p.corrections, c)
	p.mu.Unlock()

	return bp, nil
}

// ListPending returns every pending (or corrected-but-not-yet-approved)
// proposal, optionally filtered by client, ordered by creation time —
// required for the crash-recovery ordering guarantee in spec.md §7.6.
func (p *Pipeline) ListPending(client string) []*BookingProposal {
	return p.listByStatus(client, StatusPending, StatusCorrected)
}

// ListApproved returns every approved-but-not-exported proposal, optionally
// filtered by client.
func (p *Pipeline) ListApproved(client string) []*BookingProposal {
	return p.listByStatus(client, StatusApproved)
}

func (p *Pipeline) listByStatus(client string, statuses ...Status) []*BookingProposal {
	p.mu.RLock()
	defer p.mu.RUnlock()

	want := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	var out []*BookingProposal

	for _, bp := range p.byID {
		if !want[bp.Status] {
			continue
		}

		if client != "" && bp.ClientID != client {
			continue
		}

		out = append(out, bp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out
}

// ExportApproved delegates file emission to the external ERP exporter and,
// on success, marks those proposals exported — terminal per P6.
func (p *Pipeline) ExportApproved(client, erp, format string) ([]byte, []string, error) {
	approved := p.ListApproved(client)
	if len(approved) == 0 {
		return nil, nil, apperr.InvalidState("nema odobrenih prijedloga za izvoz")
	}

	payload, err := p.exporter.Export(approved, format)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}

	var ids []string

	p.mu.Lock()
	for _, bp := range approved {
		bp.Status = StatusExported
		bp.ERPTarget = erp
		ids = append(ids, bp.ID)
	}
	p.mu.Unlock()

	for _, id := range ids {
		if err := p.store.UpdateProposalStatus(id, StatusExported); err != nil {
			return nil, nil, apperr.Storage(err)
		}
	}

	return payload, ids, nil
}

// Corrections returns every correction recorded by this process. The
// nightly preference-pair export job does not use it; it reads corrections
// from the store.
func (p *Pipeline) Corrections() []*Correction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Correction, len(p.corrections))
	copy(out, p.corrections)

	return out
}
