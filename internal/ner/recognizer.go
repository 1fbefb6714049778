// Package ner defines the named-entity recognition capability consumed by the
// entity extractor. The recognizer is injected, never reached through a global,
// so tests can substitute a stub and a missing model degrades to zero
// candidates instead of failing the pipeline.
package ner

const (
	LabelPerson = "PERSON"
	LabelOrg    = "ORG"
)

type Entity struct {
	Text  string
	Label string
	Start int
	Score float64
}

// Recognizer must be safe for concurrent use by multiple workers.
type Recognizer interface {
	Recognize(text string) ([]Entity, error)
}
