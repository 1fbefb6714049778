package pipeline

import (
	"errors"
	"testing"

	"rosterparse/internal"
	"rosterparse/internal/ner"
)

type stubRecognizer struct {
	entities []ner.Entity
	err      error
}

func (s *stubRecognizer) Recognize(string) ([]ner.Entity, error) {
	return s.entities, s.err
}

func TestEntityExtractorMapsLabels(t *testing.T) {
	text := "Please add Dr. Jane Smith from Sunrise Medical Group."
	stub := &stubRecognizer{entities: []ner.Entity{
		{Text: "Jane Smith", Label: ner.LabelPerson, Start: 15, Score: 0.8},
		{Text: "Sunrise Medical Group", Label: ner.LabelOrg, Start: 31, Score: 0.7},
	}}

	e := NewEntityExtractor(stub, 0.15)
	candidates, err := e.Extract(internal.Section{Text: text})
	if err != nil {
		t.Fatal(err)
	}

	person := findCandidate(candidates, internal.FieldProviderName, "Jane Smith")
	if person == nil {
		t.Fatalf("person missing: %+v", candidates)
	}
	// "Dr." sits in the window, so the recognizer score gets the boost.
	if !almostEqual(person.Confidence, 0.95) {
		t.Fatalf("person confidence = %v, want 0.95", person.Confidence)
	}
	if findCandidate(candidates, internal.FieldOrganization, "Sunrise Medical Group") == nil {
		t.Fatalf("org missing: %+v", candidates)
	}
}

func TestEntityExtractorSignaturePenalty(t *testing.T) {
	text := "Regards, Jane Smith"
	stub := &stubRecognizer{entities: []ner.Entity{
		{Text: "Jane Smith", Label: ner.LabelPerson, Start: 9, Score: 0.8},
	}}

	e := NewEntityExtractor(stub, 0.15)
	candidates, _ := e.Extract(internal.Section{Text: text})
	got := findCandidate(candidates, internal.FieldProviderName, "Jane Smith")
	if got == nil {
		t.Fatalf("person missing: %+v", candidates)
	}
	if got.Confidence >= 0.8 {
		t.Fatalf("signature context not penalized: %v", got.Confidence)
	}
}

func TestEntityExtractorDegradesQuietly(t *testing.T) {
	e := NewEntityExtractor(nil, 0.15)
	candidates, err := e.Extract(internal.Section{Text: "Dr. Jane Smith"})
	if err != nil || len(candidates) != 0 {
		t.Fatalf("nil recognizer: candidates=%v err=%v", candidates, err)
	}

	e = NewEntityExtractor(&stubRecognizer{err: errors.New("model unavailable")}, 0.15)
	candidates, err = e.Extract(internal.Section{Text: "Dr. Jane Smith"})
	if err != nil || len(candidates) != 0 {
		t.Fatalf("failing recognizer: candidates=%v err=%v", candidates, err)
	}
}

func TestEntityExtractorClampsConfidence(t *testing.T) {
	stub := &stubRecognizer{entities: []ner.Entity{
		{Text: "Jane Smith", Label: ner.LabelPerson, Start: 4, Score: 0.95},
	}}
	e := NewEntityExtractor(stub, 0.15)
	candidates, _ := e.Extract(internal.Section{Text: "Dr. Jane Smith, MD"})
	got := findCandidate(candidates, internal.FieldProviderName, "Jane Smith")
	if got == nil || got.Confidence != 1 {
		t.Fatalf("confidence not clamped to 1: %+v", candidates)
	}
}
