package document

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_AssignsShortContentID(t *testing.T) {
	d := New("izvod.sta", "sta", "email")

	require.Len(t, d.ID, 12)
	require.Equal(t, StatusQueued, d.Status)
	require.Equal(t, "izvod.sta", d.Filename)
}

func TestClassify_FileExtensionShortcut(t *testing.T) {
	typ, conf := Classify("irrelevant body", "izvod_01.sta")
	require.Equal(t, "bankovni_izvod", typ)
	require.InDelta(t, 0.95, conf, 0.001)
}

func TestClassify_KeywordScoring(t *testing.T) {
	text := "Račun br 2026-001, PDV 25%, rok plaćanja 15 dana, ukupno s PDV 1.250,00"
	typ, conf := Classify(text, "ulazni.pdf")
	require.Equal(t, "ulazni_racun", typ)
	require.Greater(t, conf, 0.6)
}

func TestClassify_FallsBackToOther(t *testing.T) {
	typ, conf := Classify("nešto sasvim nepovezano", "dokument.pdf")
	require.Equal(t, "other", typ)
	require.InDelta(t, 0.3, conf, 0.001)
}

func testClients() []Client {
	return []Client{
		{ID: "c1", Name: "Alfa d.o.o.", OIB: "12345678901", IBANs: []string{"HR1234567890123456789"}},
		{ID: "c2", Name: "Beta obrt", Aliases: []string{"Beta j.d.o.o."}},
	}
}

func TestClientMatcher_PrefersOIBOverIBANOverName(t *testing.T) {
	m := NewClientMatcher(testClients())

	text := "OIB: 12345678901 IBAN: HR1234567890123456789 Alfa d.o.o."
	c, conf := m.Match(text, "", "")
	require.Equal(t, "c1", c.ID)
	require.InDelta(t, 0.95, conf, 0.001)
}

func TestClientMatcher_MatchesByIBANWhenNoOIB(t *testing.T) {
	m := NewClientMatcher(testClients())

	c, conf := m.Match("uplata na HR1234567890123456789", "", "")
	require.Equal(t, "c1", c.ID)
	require.InDelta(t, 0.90, conf, 0.001)
}

func TestClientMatcher_MatchesByNameOrAlias(t *testing.T) {
	m := NewClientMatcher(testClients())

	c, conf := m.Match("račun izdao Beta j.d.o.o.", "", "")
	require.Equal(t, "c2", c.ID)
	require.InDelta(t, 0.75, conf, 0.001)
}

func TestClientMatcher_FolderHintIsLowestConfidenceAboveFilename(t *testing.T) {
	m := NewClientMatcher(testClients())
	m.SetFolderHint("/inbox/c2", "c2")

	c, conf := m.Match("nema nikakvih identifikatora", "/inbox/c2", "")
	require.Equal(t, "c2", c.ID)
	require.InDelta(t, 0.5, conf, 0.001)
}

func TestClientMatcher_FilenameKeywordIsLastResort(t *testing.T) {
	m := NewClientMatcher(testClients())

	c, conf := m.Match("nema identifikatora u tekstu", "", "Alfa d.o.o. racun.pdf")
	require.Equal(t, "c1", c.ID)
	require.InDelta(t, 0.4, conf, 0.001)
}

func TestClientMatcher_NoMatch(t *testing.T) {
	m := NewClientMatcher(testClients())

	c, conf := m.Match("sasvim nepoznat tekst", "", "nepoznato.pdf")
	require.Equal(t, "", c.ID)
	require.Equal(t, 0.0, conf)
}

func TestRoute_FlagsLowConfidenceForReview(t *testing.T) {
	m := NewClientMatcher(testClients())
	d := New("nepoznato.pdf", "pdf", "upload")

	Route(d, m, "sasvim nejasan tekst bez podataka", "")

	require.Equal(t, StatusRouted, d.Status)
	require.True(t, d.NeedsReview)
	require.Equal(t, "other", d.DetectedType)
	require.Equal(t, "general", d.AssignedModule)
}

func TestRoute_HighConfidenceNotFlagged(t *testing.T) {
	m := NewClientMatcher(testClients())
	d := New("izvod.sta", "sta", "email")

	text := "OIB: 12345678901 izvod br 4 mt940 promet računa"
	Route(d, m, text, "")

	require.Equal(t, "bankovni_izvod", d.DetectedType)
	require.Equal(t, "bank_parser", d.AssignedModule)
	require.Equal(t, "c1", d.DetectedClientID)
	require.False(t, d.NeedsReview)
}

func TestSubIntent_ClassifiesKeywords(t *testing.T) {
	require.Equal(t, "book", SubIntent("molim proknjiži ovaj izvod"))
	require.Equal(t, "scan", SubIntent("skeniraj ovaj dokument"))
	require.Equal(t, "match", SubIntent("treba sparivanje stavki"))
	require.Equal(t, "export", SubIntent("izvezi u knjigovodstveni program"))
	require.Equal(t, "query", SubIntent("kakvo je stanje računa?"))
}

func TestExtractEntities_PullsOIBIBANAndAmounts(t *testing.T) {
	text := "OIB 12345678901, IBAN HR1234567890123456789, iznos 1.250,00 kn"

	ents := ExtractEntities(text)
	require.Equal(t, []string{"12345678901"}, ents["oib"])
	require.Equal(t, []string{"HR1234567890123456789"}, ents["iban"])
	require.Equal(t, []string{"1.250,00"}, ents["amount"])
}
