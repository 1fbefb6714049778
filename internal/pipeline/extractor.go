package pipeline

import "rosterparse/internal"

// Extractor produces field candidates for one section. Implementations must
// be safe for concurrent use: the three extractors for a section run in
// parallel against the same read-only Section.
type Extractor interface {
	Name() string
	Source() internal.CandidateSource
	Extract(section internal.Section) ([]internal.FieldCandidate, error)
}
