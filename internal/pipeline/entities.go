package pipeline

import (
	"strings"

	"rosterparse/internal"
	"rosterparse/internal/ner"
)

var (
	personBoostWords = []string{"dr", "dr.", "md", "m.d.", "do", "physician", "doctor", "provider", "np", "pa"}
	personPenalty    = []string{"regards", "sincerely", "thanks", "thank you"}
	orgBoostWords    = []string{"group", "clinic", "practice", "organization", "facility", "hospital", "health"}
)

// EntityExtractor wraps the injected recognizer capability and maps
// PERSON/ORG entities onto roster fields, adjusting the recognizer's own
// score by a fixed delta when the surrounding context supports or undercuts
// the classification. A nil or failing recognizer degrades to zero
// candidates; this extractor is never allowed to take the pipeline down.
type EntityExtractor struct {
	recognizer   ner.Recognizer
	contextDelta float64
}

func NewEntityExtractor(recognizer ner.Recognizer, contextDelta float64) *EntityExtractor {
	return &EntityExtractor{recognizer: recognizer, contextDelta: contextDelta}
}

func (e *EntityExtractor) Name() string { return "entity" }

func (e *EntityExtractor) Source() internal.CandidateSource { return internal.SourceEntity }

func (e *EntityExtractor) Extract(section internal.Section) ([]internal.FieldCandidate, error) {
	if e.recognizer == nil {
		return nil, nil
	}
	entities, err := e.recognizer.Recognize(section.Text)
	if err != nil {
		// Degraded, not fatal: the other extractors carry the section.
		return nil, nil
	}

	out := []internal.FieldCandidate{}
	for _, entity := range entities {
		var field internal.Field
		var boosts, penalties []string
		switch entity.Label {
		case ner.LabelPerson:
			field = internal.FieldProviderName
			boosts, penalties = personBoostWords, personPenalty
		case ner.LabelOrg:
			field = internal.FieldOrganization
			boosts, penalties = orgBoostWords, nil
		default:
			continue
		}

		confidence := entity.Score + e.contextScore(section.Text, entity, boosts, penalties)
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		if confidence == 0 {
			continue
		}

		out = append(out, internal.FieldCandidate{
			Field:      field,
			Value:      cleanEntityValue(entity.Text),
			Source:     internal.SourceEntity,
			Confidence: confidence,
			Pos:        entity.Start,
			Context:    matchContext(section.Text, entity.Start),
		})
	}
	return out, nil
}

// contextScore returns +delta when the window around the entity contains a
// supporting keyword, -delta when it contains a contradicting one.
func (e *EntityExtractor) contextScore(text string, entity ner.Entity, boosts, penalties []string) float64 {
	window := strings.ToLower(contextWindow(text, entity.Start, len(entity.Text), 40))
	for _, w := range penalties {
		if strings.Contains(window, w) {
			return -e.contextDelta
		}
	}
	for _, w := range boosts {
		if containsToken(window, w) {
			return e.contextDelta
		}
	}
	return 0
}

func contextWindow(text string, pos, length, span int) string {
	start := pos - span
	if start < 0 {
		start = 0
	}
	end := pos + length + span
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}

func containsToken(window, token string) bool {
	for _, t := range strings.Fields(window) {
		if strings.Trim(t, ".,;:()") == strings.TrimSuffix(token, ".") {
			return true
		}
	}
	return false
}

func cleanEntityValue(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "Dr. ")
	value = strings.TrimPrefix(value, "Dr ")
	return strings.Trim(value, " ,.")
}
