// Package document implements the Document Pipeline (spec.md §4.D):
// classify an inbound document, match it to a client, and route it to the
// module that owns that document type.
//
// Grounded on
// _examples/original_source/src/nyx_light/pipeline/multi_client.py
// (DocumentInfo, ClientMatcher._build_indices/match, DocumentClassifier.PATTERNS/classify)
// and .../router/__init__.py (INTENT_PATTERNS keyword routing shape).
package document

import (
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Status is a document's processing lifecycle state.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusRouted     Status = "routed"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Document is metadata about an inbound document as it moves through the
// pipeline (spec.md §3 analogue of DocumentInfo).
type Document struct {
	ID       string
	Filename string
	FileType string
	Source   string // email, folder, upload, api
	Received time.Time

	DetectedClientID string
	DetectedType     string
	Confidence       float64

	Status         Status
	AssignedModule string
	NeedsReview    bool
	Error          string
}

// New builds a Document with a content-derived id, matching the original's
// md5(filename_timestamp_filepath)[:12] scheme.
func New(filename, filetype, source string) *Document {
	now := time.Now().UTC()
	raw := fmt.Sprintf("%s_%d_%s", filename, now.UnixNano(), source)
	sum := md5.Sum([]byte(raw)) //nolint:gosec

	return &Document{
		ID:       hex.EncodeToString(sum[:])[:12],
		Filename: filename,
		FileType: filetype,
		Source:   source,
		Received: now,
		Status:   StatusQueued,
	}
}

// Client is the subset of client-registry fields the matcher needs.
type Client struct {
	ID      string
	Name    string
	OIB     string
	IBANs   []string
	Aliases []string
}

var oibRe = regexp.MustCompile(`\b\d{11}\b`)
var ibanRe = regexp.MustCompile(`HR\d{19}`)

// ClientMatcher identifies which client a document belongs to, in
// descending-confidence priority order: OIB, IBAN, name/alias, folder hint.
type ClientMatcher struct {
	oibIndex   map[string]Client
	ibanIndex  map[string]Client
	namePats   []namePattern
	folderHint map[string]string // folder path -> client id, lowest-confidence fallback
}

type namePattern struct {
	re     *regexp.Regexp
	client Client
}

// NewClientMatcher builds the lookup indices the original's
// ClientMatcher._build_indices constructs eagerly at registration time.
func NewClientMatcher(clients []Client) *ClientMatcher {
	m := &ClientMatcher{
		oibIndex:   make(map[string]Client),
		ibanIndex:  make(map[string]Client),
		folderHint: make(map[string]string),
	}
	m.Update(clients)

	return m
}

// Update rebuilds every index from a fresh client list.
func (m *ClientMatcher) Update(clients []Client) {
	m.oibIndex = make(map[string]Client, len(clients))
	m.ibanIndex = make(map[string]Client)
	m.namePats = m.namePats[:0]

	for _, c := range clients {
		if c.OIB != "" {
			m.oibIndex[c.OIB] = c
		}

		for _, iban := range c.IBANs {
			m.ibanIndex[iban] = c
		}

		if c.Name != "" {
			if re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(c.Name)); err == nil {
				m.namePats = append(m.namePats, namePattern{re: re, client: c})
			}
		}

		for _, alias := range c.Aliases {
			if re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(alias)); err == nil {
				m.namePats = append(m.namePats, namePattern{re: re, client: c})
			}
		}
	}
}

// SetFolderHint registers a low-confidence fallback: documents ingested from
// this folder path belong to clientID absent any stronger signal.
func (m *ClientMatcher) SetFolderHint(folder, clientID string) {
	m.folderHint[folder] = clientID
}

// Match identifies the client referenced by a document's extracted text,
// trying the strongest signal first: OIB (0.95) > IBAN (0.90) > name/alias
// (0.75) > folder (0.5) > filename keyword (0.4) > none.
func (m *ClientMatcher) Match(text, folder, filename string) (Client, float64) {
	for _, oib := range oibRe.FindAllString(text, -1) {
		if c, ok := m.oibIndex[oib]; ok {
			return c, 0.95
		}
	}

	for _, iban := range ibanRe.FindAllString(text, -1) {
		if c, ok := m.ibanIndex[iban]; ok {
			return c, 0.90
		}
	}

	for _, np := range m.namePats {
		if np.re.MatchString(text) {
			return np.client, 0.75
		}
	}

	if folder != "" {
		if id, ok := m.folderHint[folder]; ok {
			return Client{ID: id}, 0.5
		}
	}

	for _, np := range m.namePats {
		if np.re.MatchString(filename) {
			return np.client, 0.4
		}
	}

	return Client{}, 0
}

// docType is one classification outcome with its content regexes.
type docType struct {
	name     string
	patterns []*regexp.Regexp
}

var classifierTypes = buildClassifierTypes(map[string][]string{
	"bankovni_izvod": {
		`izvod\s+br`, `mt940`, `swift`, `promet\s+računa`,
		`početno\s+stanje`, `završno\s+stanje`, `valuta\s+terećenja`,
	},
	"ulazni_racun": {
		`račun\s+br`, `r-\d+`, `faktura`, `invoice`,
		`pdv\s+\d+%`, `ukupno\s+s\s+pdv`, `rok\s+plaćanja`,
	},
	"putni_nalog": {
		`putni\s+nalog`, `dnevnica`, `km\s+naknada`,
		`relacija`, `svrha\s+put`, `prijevozno\s+sredstvo`,
	},
	"ios_obrazac": {
		`ios`, `izvod\s+otvorenih\s+stavk`, `usklađivanje\s+stanja`,
		`otvorene\s+stavke`, `datum\s+usklađ`,
	},
	"e_racun": {
		`ubl`, `crossindustry`, `eračun`, `e-račun`,
		`en\s*16931`, `invoicetypecode`,
	},
	"joppd": {
		`joppd`, `obrazac\s+joppd`, `strana\s+[ab]`,
		`oznaka\s+stjecatelja`, `mio\s+i`, `dohodak`,
	},
	"blagajna": {
		`blagajna`, `blagajnički`, `uplatnica`, `isplatnica`,
		`gotovinski`, `blagajn`,
	},
	"kompenzacija": {
		`kompenzacij`, `prijeboj`, `cesija`, `asignacij`,
		`izjava\s+o\s+kompenzacij`,
	},
})

func buildClassifierTypes(m map[string][]string) []docType {
	out := make([]docType, 0, len(m))

	for name, pats := range m {
		dt := docType{name: name}
		for _, p := range pats {
			dt.patterns = append(dt.patterns, regexp.MustCompile(p))
		}

		out = append(out, dt)
	}

	return out
}

// Classify determines a document's type from its extracted text and
// filename, trying file-extension shortcuts first, then keyword scoring
// across every known type, returning "other" at low confidence when no
// pattern hits — spec.md §4.D "Classify, match client, emit a proposal or
// route to external module".
func Classify(text, filename string) (string, float64) {
	lower := strings.ToLower(text + " " + filename)
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".sta", ".mt940":
		return "bankovni_izvod", 0.95
	case ".xml":
		if strings.Contains(lower, "ubl") || strings.Contains(lower, "crossindustry") {
			return "e_racun", 0.90
		}
	}

	bestType := ""
	bestScore := 0

	for _, dt := range classifierTypes {
		score := 0
		for _, p := range dt.patterns {
			if p.MatchString(lower) {
				score++
			}
		}

		if score > bestScore {
			bestScore = score
			bestType = dt.name
		}
	}

	if bestScore == 0 {
		return "other", 0.3
	}

	confidence := 0.5 + float64(bestScore)*0.15
	if confidence > 0.95 {
		confidence = 0.95
	}

	return bestType, confidence
}

// Routes maps a classified document type to the external module that
// handles it, mirroring router.INTENT_PATTERNS' module set.
var Routes = map[string]string{
	"bankovni_izvod": "bank_parser",
	"ulazni_racun":    "invoice_ocr",
	"putni_nalog":     "putni_nalozi",
	"ios_obrazac":     "ios",
	"e_racun":         "e_racun",
	"joppd":           "place",
	"blagajna":        "blagajna",
	"kompenzacija":    "kompenzacije",
	"other":           "general",
}

// reviewThreshold is the confidence floor below which a document's
// classification is flagged for manual triage rather than auto-routed.
const reviewThreshold = 0.6

// clientReviewThreshold is the confidence floor for the client match — a
// name/alias hit (lower confidence than an OIB/IBAN hit) still needs a
// human to confirm before the document is filed under that client.
const clientReviewThreshold = 0.8

// Route classifies and client-matches a document, assigns it a module, and
// flags it for human review when either confidence is below threshold.
func Route(d *Document, matcher *ClientMatcher, text, folder string) {
	docType, docConf := Classify(text, d.Filename)
	client, clientConf := matcher.Match(text, folder, d.Filename)

	d.DetectedType = docType
	d.Confidence = docConf
	d.DetectedClientID = client.ID
	d.AssignedModule = Routes[docType]
	d.Status = StatusRouted
	d.NeedsReview = docConf < reviewThreshold || clientConf < clientReviewThreshold || client.ID == ""
}
