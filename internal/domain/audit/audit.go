// Package audit implements the immutable, chain-linked audit trail and
// transaction anomaly detection (spec.md component A's audit stream,
// supplemented per SPEC_FULL.md §4 "Audit anomaly flags").
//
// Grounded on
// _examples/original_source/src/nyx_light/modules/audit/__init__.py
// (AuditEntry fingerprinting, AuditTrail.log/verify_chain/query,
// AnomalyDetector.check_transaction/_check_duplicate/_check_amount/
// _check_iban_change/_check_timing/_benford_test). That file's DataMasker
// has no counterpart here.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Action is the kind of event being recorded.
type Action string

const (
	ActionBooking    Action = "knjizenje"
	ActionStorno     Action = "storno"
	ActionApprove    Action = "odobrenje"
	ActionReject     Action = "odbijanje"
	ActionChange     Action = "promjena"
	ActionLogin      Action = "login"
	ActionExport     Action = "export"
	ActionAIProposal Action = "ai_prijedlog"
	ActionAICorrect  Action = "ai_korekcija"
	ActionReview     Action = "pregled"
)

// Risk is the severity tier attached to an audit entry.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// Entry is one immutable row of the audit trail.
type Entry struct {
	Timestamp   time.Time
	UserID      string
	Action      Action
	Module      string
	Details     string
	EntityID    string
	ClientID    string
	RiskLevel   Risk
	Fingerprint string
	ChainHash   string
}

func (e *Entry) computeFingerprint() string {
	raw := fmt.Sprintf("%s|%s|%s|%s", e.Timestamp.Format(time.RFC3339Nano), e.UserID, e.Action, e.Details)
	sum := sha256.Sum256([]byte(raw))

	return hex.EncodeToString(sum[:])[:16]
}

// Store is the durable sink for audit rows.
type Store interface {
	AppendAudit(e EntryRecord) error
	AuditRows() ([]EntryRecord, error)
}

// EntryRecord is the storage-layer shape of an Entry (kept distinct so this
// package never imports the storage adapter directly).
type EntryRecord struct {
	Timestamp   time.Time
	UserID      string
	Action      string
	Module      string
	Details     string
	EntityID    string
	ClientID    string
	RiskLevel   string
	Fingerprint string
	ChainHash   string
}

const genesisHash = "GENESIS"

// Trail is the immutable, chain-linked audit log — COSO-style: every
// append takes one mutex, reads the previous chain hash, writes, releases
// (spec.md §5's global chain serialization, reused here for the audit
// stream's own chain distinct from the ledger's).
type Trail struct {
	store Store

	mu        sync.Mutex
	chainHash string
	count     int
}

// New builds a Trail and restores its chain hash from the last row in
// store, if any.
func New(store Store) (*Trail, error) {
	t := &Trail{store: store, chainHash: genesisHash}

	rows, err := store.AuditRows()
	if err != nil {
		return nil, err
	}

	t.count = len(rows)
	if len(rows) > 0 {
		t.chainHash = rows[len(rows)-1].ChainHash
	}

	return t, nil
}

// Log appends one entry to the chain and persists it.
func (t *Trail) Log(userID string, action Action, module, details, entityID, clientID string, risk Risk) (*Entry, error) {
	e := &Entry{
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		Action:    action,
		Module:    module,
		Details:   details,
		EntityID:  entityID,
		ClientID:  clientID,
		RiskLevel: risk,
	}
	e.Fingerprint = e.computeFingerprint()

	t.mu.Lock()
	defer t.mu.Unlock()

	sum := sha256.Sum256([]byte(t.chainHash + "|" + e.Fingerprint))
	e.ChainHash = hex.EncodeToString(sum[:])[:16]

	if err := t.store.AppendAudit(EntryRecord{
		Timestamp: e.Timestamp, UserID: e.UserID, Action: string(e.Action), Module: e.Module,
		Details: e.Details, EntityID: e.EntityID, ClientID: e.ClientID, RiskLevel: string(e.RiskLevel),
		Fingerprint: e.Fingerprint, ChainHash: e.ChainHash,
	}); err != nil {
		return nil, err
	}

	t.chainHash = e.ChainHash
	t.count++

	return e, nil
}

// VerifyResult is the result of VerifyChain.
type VerifyResult struct {
	Valid   bool
	Entries int
	Breaks  []int // row positions where the chain hash diverges
}

// VerifyChain recomputes every chain hash from GENESIS and reports breaks.
func (t *Trail) VerifyChain() (VerifyResult, error) {
	rows, err := t.store.AuditRows()
	if err != nil {
		return VerifyResult{}, err
	}

	if len(rows) == 0 {
		return VerifyResult{Valid: true}, nil
	}

	prev := genesisHash

	var breaks []int

	for i, r := range rows {
		sum := sha256.Sum256([]byte(prev + "|" + r.Fingerprint))
		expected := hex.EncodeToString(sum[:])[:16]

		if expected != r.ChainHash {
			breaks = append(breaks, i)
		}

		prev = r.ChainHash
	}

	return VerifyResult{Valid: len(breaks) == 0, Entries: len(rows), Breaks: breaks}, nil
}

// Rows returns the audit log in insertion order, the backing query for
// GET /api/audit (spec.md §4.K "A audit-log query").
func (t *Trail) Rows() ([]EntryRecord, error) {
	return t.store.AuditRows()
}

// Stats is the audit trail's summary for the monitoring endpoint.
func (t *Trail) Stats() (map[string]any, error) {
	v, err := t.VerifyChain()
	if err != nil {
		return nil, err
	}

	return map[string]any{"module": "audit_trail", "entries": t.count, "chain_valid": v.Valid}, nil
}

// --- Anomaly detection ---

// Anomaly is one suspicious pattern flagged while checking a transaction.
type Anomaly struct {
	Kind           string
	Risk           Risk
	Description    string
	EntityID       string
	Amount         decimal.Decimal
	Recommendation string
}

type txHistoryItem struct {
	amount      decimal.Decimal
	partnerOIB  string
	date        time.Time
	description string
	konto       string
}

// Detector watches the stream of committed transactions for duplicates,
// abnormal amounts, IBAN changes, and off-hours entry, plus a Benford's-law
// check over a batch.
type Detector struct {
	mu           sync.Mutex
	history      []txHistoryItem
	partnerIBANs map[string]map[string]bool
	detections   int
	anomalies    []Anomaly
}

// NewDetector builds an empty Detector.
func NewDetector() *Detector {
	return &Detector{partnerIBANs: make(map[string]map[string]bool)}
}

// CheckTransaction runs every anomaly check against one transaction and
// records it into history for future duplicate/IBAN-change detection.
func (d *Detector) CheckTransaction(amount decimal.Decimal, partnerOIB, partnerIBAN string, date time.Time, description, konto string) []Anomaly {
	d.mu.Lock()
	defer d.mu.Unlock()

	var anomalies []Anomaly

	if a := d.checkDuplicate(amount, partnerOIB, date); a != nil {
		anomalies = append(anomalies, *a)
	}

	anomalies = append(anomalies, d.checkAmount(amount, konto)...)

	if partnerOIB != "" && partnerIBAN != "" {
		if a := d.checkIBANChange(partnerOIB, partnerIBAN); a != nil {
			anomalies = append(anomalies, *a)
		}
	}

	if a := d.checkTiming(date); a != nil {
		anomalies = append(anomalies, *a)
	}

	d.history = append(d.history, txHistoryItem{amount: amount, partnerOIB: partnerOIB, date: date, description: description, konto: konto})

	if partnerOIB != "" && partnerIBAN != "" {
		if d.partnerIBANs[partnerOIB] == nil {
			d.partnerIBANs[partnerOIB] = make(map[string]bool)
		}

		d.partnerIBANs[partnerOIB][partnerIBAN] = true
	}

	d.detections += len(anomalies)
	d.anomalies = append(d.anomalies, anomalies...)

	return anomalies
}

func (d *Detector) checkDuplicate(amount decimal.Decimal, partnerOIB string, date time.Time) *Anomaly {
	if partnerOIB == "" || amount.IsZero() {
		return nil
	}

	start := 0
	if len(d.history) > 200 {
		start = len(d.history) - 200
	}

	for _, h := range d.history[start:] {
		if h.partnerOIB != partnerOIB {
			continue
		}

		if h.amount.Sub(amount).Abs().GreaterThanOrEqual(decimal.NewFromFloat(0.01)) {
			continue
		}

		if h.date.IsZero() || date.IsZero() {
			continue
		}

		days := math.Abs(date.Sub(h.date).Hours() / 24)
		if days <= 7 {
			return &Anomaly{
				Kind: "DUPLIKAT", Risk: RiskHigh,
				Description:    fmt.Sprintf("Moguće duplicirano plaćanje: %s EUR za OIB %s", amount.StringFixed(2), partnerOIB),
				Amount:         amount,
				Recommendation: "Provjerite nije li plaćanje već izvršeno",
			}
		}
	}

	return nil
}

var (
	highAmountThreshold = decimal.NewFromInt(50000)
	amlThreshold        = decimal.NewFromInt(15000)
)

func (d *Detector) checkAmount(amount decimal.Decimal, konto string) []Anomaly {
	var out []Anomaly

	if amount.GreaterThan(highAmountThreshold) {
		out = append(out, Anomaly{
			Kind: "VISOKI_IZNOS", Risk: RiskMedium,
			Description:    fmt.Sprintf("Iznos %s EUR prelazi prag (50.000 EUR)", amount.StringFixed(2)),
			Amount:         amount,
			Recommendation: "Dodatna autorizacija za visoke iznose",
		})
	}

	if amount.GreaterThanOrEqual(amlThreshold) && strings.HasPrefix(konto, "10") {
		out = append(out, Anomaly{
			Kind: "AML_PRAG", Risk: RiskCritical,
			Description:    fmt.Sprintf("Gotovinska transakcija %s EUR — AML obveza", amount.StringFixed(2)),
			Amount:         amount,
			Recommendation: "Obvezna prijava AMLD",
		})
	}

	if amount.GreaterThanOrEqual(decimal.NewFromInt(1000)) {
		mod := amount.Mod(decimal.NewFromInt(100))
		if amount.Equal(amount.Truncate(0)) && mod.IsZero() {
			out = append(out, Anomaly{
				Kind: "OKRUGLI_IZNOS", Risk: RiskLow,
				Description:    fmt.Sprintf("Sumnjivo okrugli iznos: %s EUR", amount.StringFixed(0)),
				Amount:         amount,
				Recommendation: "Okrugli iznosi mogu indicirati procjenu",
			})
		}
	}

	return out
}

func (d *Detector) checkIBANChange(partnerOIB, partnerIBAN string) *Anomaly {
	known := d.partnerIBANs[partnerOIB]
	if len(known) > 0 && !known[partnerIBAN] {
		return &Anomaly{
			Kind: "IBAN_PROMJENA", Risk: RiskCritical,
			Description:    fmt.Sprintf("Dobavljač OIB %s koristi novi IBAN: %s", partnerOIB, partnerIBAN),
			Recommendation: "HITNO: Provjerite s dobavljačem telefonom!",
		}
	}

	return nil
}

func (d *Detector) checkTiming(date time.Time) *Anomaly {
	if date.IsZero() {
		return nil
	}

	if date.Hour() < 6 || date.Hour() > 22 {
		return &Anomaly{
			Kind: "NOCNI_UNOS", Risk: RiskMedium,
			Description:    fmt.Sprintf("Transakcija u %02d:%02d — izvan radnog vremena", date.Hour(), date.Minute()),
			Recommendation: "Pregledajte tko je unosio podatke noću",
		}
	}

	if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
		return &Anomaly{
			Kind: "VIKEND_UNOS", Risk: RiskLow,
			Description:    fmt.Sprintf("Transakcija tijekom vikenda (%s)", date.Weekday()),
			Recommendation: "Provjerite legitimnost vikend unosa",
		}
	}

	return nil
}

// BenfordResult is the outcome of a first-digit distribution test over a
// batch of amounts.
type BenfordResult struct {
	Applicable  bool
	Reason      string
	Expected    map[int]float64
	Actual      map[int]float64
	ChiSquared  float64
	Suspicious  bool
}

var benfordExpected = map[int]float64{1: 30.1, 2: 17.6, 3: 12.5, 4: 9.7, 5: 7.9, 6: 6.7, 7: 5.8, 8: 5.1, 9: 4.6}

// BenfordTest checks whether a batch of amounts' leading digits follow
// Benford's law, flagging a chi-squared statistic above the 8-degrees-of-
// freedom 0.05 critical value (15.51) as suspicious.
func BenfordTest(amounts []decimal.Decimal) BenfordResult {
	if len(amounts) < 30 {
		return BenfordResult{Applicable: false, Reason: "Premalo podataka (min 30)"}
	}

	counts := make(map[int]int)
	total := 0

	for _, a := range amounts {
		if a.LessThanOrEqual(decimal.Zero) {
			continue
		}

		s := strings.TrimLeft(a.Abs().String(), "0.")
		if s == "" {
			continue
		}

		d := s[0]
		if d < '1' || d > '9' {
			continue
		}

		counts[int(d-'0')]++
		total++
	}

	if total < 30 {
		return BenfordResult{Applicable: false, Reason: "Premalo valjanih iznosa"}
	}

	actual := make(map[int]float64, 9)
	chi2 := 0.0

	for digit := 1; digit <= 9; digit++ {
		pct := round1(float64(counts[digit]) / float64(total) * 100)
		actual[digit] = pct
		chi2 += math.Pow(pct-benfordExpected[digit], 2) / benfordExpected[digit]
	}

	suspicious := chi2 > 15.51

	return BenfordResult{
		Applicable: true, Expected: benfordExpected, Actual: actual,
		ChiSquared: round2(chi2), Suspicious: suspicious,
	}
}

func round1(f float64) float64 { return math.Round(f*10) / 10 }
func round2(f float64) float64 { return math.Round(f*100) / 100 }

// RiskSummary tallies anomalies by risk tier.
func RiskSummary(anomalies []Anomaly) map[Risk]int {
	out := map[Risk]int{RiskLow: 0, RiskMedium: 0, RiskHigh: 0, RiskCritical: 0}
	for _, a := range anomalies {
		out[a.Risk]++
	}

	return out
}

// Detections returns the running anomaly count.
func (d *Detector) Detections() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.detections
}

// Anomalies returns every anomaly flagged so far, for the read-only
// GET /api/audit/anomalies surface (SPEC_FULL.md §4).
func (d *Detector) Anomalies() []Anomaly {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Anomaly, len(d.anomalies))
	copy(out, d.anomalies)

	return out
}

// Amounts returns every transaction amount seen so far, the input batch for
// BenfordTest.
func (d *Detector) Amounts() []decimal.Decimal {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]decimal.Decimal, len(d.history))
	for i, h := range d.history {
		out[i] = h.amount
	}

	return out
}
