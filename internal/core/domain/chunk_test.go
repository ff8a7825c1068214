package domain

import (
	"encoding/json"
	"testing"
)

func TestDomainIDGroupsEquivalentDomainSpellings(t *testing.T) {
	want := DomainID("example.com")
	if len(want) != DomainIDLength {
		t.Fatalf("expected %d hex chars, got %q", DomainIDLength, want)
	}
	for _, spelling := range []string{"Example.com", " example.com ", "https://www.example.com/about", "example.com:443", "www.example.com."} {
		if got := DomainID(spelling); got != want {
			t.Fatalf("DomainID(%q) = %q, want %q", spelling, got, want)
		}
	}
	if DomainID("other-firm.com") == want {
		t.Fatalf("different domains must not share a domain id")
	}
	if DomainID("   ") != "" {
		t.Fatalf("blank domain must have empty id")
	}
}

func TestInferDomain(t *testing.T) {
	cases := map[string]string{
		"https://WWW.Smith-Law.com/contact": "smith-law.com",
		"http://firm.example.org":           "firm.example.org",
		"smithlaw.com/about/team.md":        "smithlaw.com",
		"smithlaw.com":                      "smithlaw.com",
		"uploads/page.md":                   "",
		"doc-123":                           "",
		"":                                  "",
	}
	for in, want := range cases {
		if got := InferDomain(in); got != want {
			t.Fatalf("InferDomain(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestChunksFromDifferentDocumentsShareDomainID(t *testing.T) {
	a := DomainID(InferDomain("smithlaw.com/index.md"))
	b := DomainID(InferDomain("https://smithlaw.com/contact-us"))
	if a == "" || a != b {
		t.Fatalf("expected equal domain ids, got %q and %q", a, b)
	}
}

func TestSearchFilterValidate(t *testing.T) {
	if err := (SearchFilter{DomainID: "abc"}).Validate(); err != nil {
		t.Fatalf("domain filter: %v", err)
	}
	if err := (SearchFilter{DocumentID: "doc"}).Validate(); err != nil {
		t.Fatalf("document filter: %v", err)
	}
	if err := (SearchFilter{DomainID: "abc", DocumentID: "doc"}).Validate(); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for both set, got %v", err)
	}
	if err := (SearchFilter{}).Validate(); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for none set, got %v", err)
	}
}

func TestPatternSignalsPersistAsFlatMetadata(t *testing.T) {
	signals := PatternSignals{
		Addresses: NewPatternSignal(2),
		Phones:    NewPatternSignal(1),
		Contact:   NewPatternSignal(1),
		Hours:     true,
		Length:    420,
	}
	raw, err := json.Marshal(signals)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		t.Fatalf("unmarshal flat: %v", err)
	}
	if flat["contains_addresses"] != true || flat["address_count"] != float64(2) {
		t.Fatalf("unexpected address keys: %v", flat)
	}
	if flat["contains_phone_numbers"] != true || flat["chunk_length"] != float64(420) {
		t.Fatalf("unexpected phone/length keys: %v", flat)
	}

	var decoded PatternSignals
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != signals {
		t.Fatalf("decoded %+v, want %+v", decoded, signals)
	}
	if fromStrings := PatternSignalsFromStrings(signals.StringMap()); fromStrings != signals {
		t.Fatalf("string map round trip %+v, want %+v", fromStrings, signals)
	}
}

func TestParseBoostFieldAcceptsPersistedKeys(t *testing.T) {
	cases := map[string]BoostField{
		"addresses":              BoostAddresses,
		"contains_addresses":     BoostAddresses,
		"contains_phone_numbers": BoostPhones,
		"Contact":                BoostContact,
		"":                       BoostNone,
	}
	for in, want := range cases {
		got, err := ParseBoostField(in)
		if err != nil || got != want {
			t.Fatalf("ParseBoostField(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseBoostField("zipcodes"); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
