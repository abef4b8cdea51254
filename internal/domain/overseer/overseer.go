// Package overseer implements the safety gate in front of chat and booking
// actions (spec.md §4.J): three hard boundaries — no legal advice outside
// accounting (with a payroll-context carve-out for labor-law terms used for
// payslip calculation), no autonomous posting, no cloud API access — plus
// soft booking-validation warnings that never block approval.
//
// Grounded verbatim on
// _examples/original_source/src/nyx_light/safety/overseer.py
// (FORBIDDEN_DOMAINS, RADNO_PRAVO_PAYROLL_CONTEXT/ALWAYS_FORBIDDEN,
// WARNING_KEYWORDS, AccountingOverseer.evaluate/validate_booking).
package overseer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// BoundaryType names which hard boundary an evaluation tripped.
type BoundaryType string

const (
	BoundaryLaborLaw    BoundaryType = "labor_law"
	BoundaryLegalDomain BoundaryType = "legal_domain"
	BoundaryAutonomous  BoundaryType = "autonomous_booking"
	BoundaryPrivacy     BoundaryType = "privacy"
)

// forbiddenDomains trip an immediate refusal unless the payroll-context
// carve-out applies.
var forbiddenDomains = []string{
	"sastavljanje ugovora", "sastavi mi ugovor", "sastavi ugovor",
	"napravi ugovor", "napiši ugovor",
	"tužb", "sud ",
	"kazneno pravo", "prekršajno pravo",
	"ovrha ", "ovršni postupak",
	"brak", "razvod", "nasljedstvo", "ostavina",
	"odvjetnik", "advokat", "pravni savjet",
	"spajanje poduzeća", "preuzimanje poduzeća",
	"burza", "dionice",
	"utaja poreza",
}

// laborLawPayrollContext are labor-law terms allowed when the message is
// clearly about payslip calculation, not legal advice.
var laborLawPayrollContext = []string{
	"otpremnina", "bolovanje", "godišnji odmor",
	"ugovor o radu",
	"neodređeno", "određeno", "nepuno radno vrijeme",
	"trudnička prava", "rodiljni", "roditeljski",
	"otkaz",
	"prestanak radnog odnosa",
}

// laborLawAlwaysForbidden are refused even inside a payroll context. "tužb"
// (lawsuit) deliberately sits only in forbiddenDomains above, not here: it's
// a general legal-domain term, not specific to labor disputes, so a bare
// "sastavi mi tužbu" request reports BoundaryLegalDomain rather than
// BoundaryLaborLaw.
var laborLawAlwaysForbidden = []string{
	"radni spor", "inspekcija rada",
	"kolektivni ugovor savjetovanje",
}

// payrollIndicators, alongside a laborLawPayrollContext hit, establish that
// the message is actually about payslip calculation.
var payrollIndicators = []string{
	"obračun", "plaća", "neto", "bruto", "doprinos",
	"joppd", "isplata", "naknada", "kalkulacija",
}

// warningKeywords signal an attempt to bypass human approval.
var warningKeywords = []string{
	"automatski proknjiži", "proknjiži bez odobrenja",
	"zaobiđi provjeru", "preskoči odobrenje",
	"pošalji u cpp", "pošalji u synesis",
}

// cloudKeywords signal an attempt to route data to a hosted LLM API.
var cloudKeywords = []string{
	"openai", "anthropic", "chatgpt", "cloud api", "external api",
}

// Verdict is the result of Evaluate.
type Verdict struct {
	Approved     bool
	Reason       string
	HardBoundary bool
	BoundaryType BoundaryType
}

// Overseer is the accounting-domain safety gate — three hard boundaries
// plus a running evaluation/block counter.
type Overseer struct {
	mu          sync.Mutex
	evaluations int
	blocks      int
}

// New builds an Overseer with its three hard boundaries active.
func New() *Overseer {
	return &Overseer{}
}

func containsAny(haystack string, needles []string) (string, bool) {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return n, true
		}
	}

	return "", false
}

// Evaluate checks content against the three hard boundaries. actionType is
// accepted for parity with callers that distinguish "query" from other
// action kinds, though every boundary currently applies uniformly.
func (o *Overseer) Evaluate(content, actionType string) Verdict {
	o.mu.Lock()
	o.evaluations++
	o.mu.Unlock()

	lower := strings.ToLower(content)

	if hit, ok := containsAny(lower, laborLawAlwaysForbidden); ok {
		o.block()

		return Verdict{
			Approved: false,
			Reason: fmt.Sprintf(
				"⛔ TVRDA GRANICA: Upit o '%s' zahtijeva pravnog stručnjaka. "+
					"Nyx Light pokriva isključivo računovodstveni i porezni aspekt radnog odnosa.", hit),
			HardBoundary: true,
			BoundaryType: BoundaryLaborLaw,
		}
	}

	_, isPayrollContext := containsAny(lower, laborLawPayrollContext)
	_, hasPayrollIndicator := containsAny(lower, payrollIndicators)

	for _, forbidden := range forbiddenDomains {
		if !strings.Contains(lower, forbidden) {
			continue
		}

		if isPayrollContext && hasPayrollIndicator {
			continue // payroll-context carve-out
		}

		o.block()

		return Verdict{
			Approved: false,
			Reason: fmt.Sprintf(
				"⛔ TVRDA GRANICA: Upit se odnosi na '%s' što je izvan domene računovodstva. "+
					"Molimo obratite se odgovarajućem stručnjaku — Nyx Light ne pruža pravne savjete.", forbidden),
			HardBoundary: true,
			BoundaryType: BoundaryLegalDomain,
		}
	}

	if hit, ok := containsAny(lower, warningKeywords); ok {
		_ = hit
		o.block()

		return Verdict{
			Approved: false,
			Reason: "⛔ TVRDA GRANICA: Zahtjev za autonomno knjiženje. " +
				"Svako knjiženje MORA biti odobreno klikom 'Odobri' od strane računovođe. " +
				"Human-in-the-Loop je obavezan.",
			HardBoundary: true,
			BoundaryType: BoundaryAutonomous,
		}
	}

	if hit, ok := containsAny(lower, cloudKeywords); ok {
		_ = hit
		o.block()

		return Verdict{
			Approved: false,
			Reason: "⛔ TVRDA GRANICA: Pristup cloud API-jima je zabranjen. " +
				"Svi podaci (OIB, plaće, poslovne tajne) moraju ostati 100% lokalno.",
			HardBoundary: true,
			BoundaryType: BoundaryPrivacy,
		}
	}

	return Verdict{Approved: true, Reason: "Upit je unutar dozvoljene domene računovodstva."}
}

func (o *Overseer) block() {
	o.mu.Lock()
	o.blocks++
	o.mu.Unlock()
}

// BookingCheck is the subset of a booking proposal validate_booking needs.
type BookingCheck struct {
	DocumentType string
	Amount       decimal.Decimal
	KmRate       decimal.Decimal
	Description  string
}

// BookingValidation is the result of ValidateBooking — soft warnings that
// never block approval; requires_approval is always true (spec.md §4.J).
type BookingValidation struct {
	Valid             bool
	Warnings          []string
	RequiresApproval  bool
}

var cashLimit = decimal.NewFromInt(10000)
var kmRateLimit = decimal.NewFromFloat(0.30)

// ValidateBooking adds soft warnings (cash handling over 10,000 EUR,
// per-km allowance over 0.30 EUR, representation costs) but never itself
// approves — approval is always left to a human.
func (o *Overseer) ValidateBooking(b BookingCheck) BookingValidation {
	var warnings []string

	if b.DocumentType == "blagajna" && b.Amount.GreaterThan(cashLimit) {
		warnings = append(warnings, fmt.Sprintf(
			"⚠️ Iznos blagajne (%s EUR) prelazi limit od 10.000 EUR!", b.Amount.StringFixed(2)))
	}

	if b.DocumentType == "putni_nalog" && b.KmRate.GreaterThan(kmRateLimit) {
		warnings = append(warnings, fmt.Sprintf(
			"⚠️ Km-naknada (%s EUR) prelazi max 0,30 EUR/km!", b.KmRate.StringFixed(2)))
	}

	if strings.Contains(strings.ToLower(b.Description), "reprezentacija") {
		warnings = append(warnings,
			"⚠️ Troškovi reprezentacije — porezno nepriznati iznad limita. Provjeriti primjenjivost odbitka.")
	}

	return BookingValidation{
		Valid:            len(warnings) == 0,
		Warnings:         warnings,
		RequiresApproval: true,
	}
}

// Stats is the evaluation/block counter snapshot.
type Stats struct {
	Evaluations int
	Blocks      int
	BlockRate   float64
}

func (o *Overseer) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	rate := 0.0
	if o.evaluations > 0 {
		rate = float64(o.blocks) / float64(o.evaluations)
	}

	return Stats{Evaluations: o.evaluations, Blocks: o.blocks, BlockRate: rate}
}
