// router.go supplements the Document Pipeline with the coarse sub-intent
// label the distilled spec drops (SPEC_FULL.md §4 "Routing sub-intents and
// entity extraction").
//
// Grounded on
// _examples/original_source/src/nyx_light/router/__init__.py
// (INTENT_PATTERNS' per-module sub_intents keyword groups).
package document

import "regexp"

var subIntentPatterns = map[string]*regexp.Regexp{
	"book":   regexp.MustCompile(`(?i)proknjiž|kontira|knjižen|zaduž|odobri`),
	"scan":   regexp.MustCompile(`(?i)sken|prepozn|očitaj|pročitaj|ekstrahi`),
	"match":  regexp.MustCompile(`(?i)sparivanj|usklad|match|mapira`),
	"export": regexp.MustCompile(`(?i)izvez|export|generiraj`),
}

// SubIntent returns a coarse intent label for text ("book", "scan", "match",
// "export") or "query" when nothing matches. The Control API's upload
// handler returns it alongside the routing result; nothing else acts on it.
func SubIntent(text string) string {
	for _, label := range []string{"book", "export", "match", "scan"} {
		if subIntentPatterns[label].MatchString(text) {
			return label
		}
	}

	return "query"
}

var entityPatterns = struct {
	oib, iban, amount *regexp.Regexp
}{
	oib:    oibRe,
	iban:   ibanRe,
	amount: regexp.MustCompile(`\d{1,3}(?:\.\d{3})*,\d{2}`),
}

// ExtractEntities pulls the tax IDs, IBANs, and decimal amounts literally
// present in text, for the router result's entities map (spec.md §4.D
// "the pipeline returns the target module name and extracted entities").
func ExtractEntities(text string) map[string][]string {
	out := map[string][]string{
		"oib":    entityPatterns.oib.FindAllString(text, -1),
		"iban":   entityPatterns.iban.FindAllString(text, -1),
		"amount": entityPatterns.amount.FindAllString(text, -1),
	}

	return out
}
