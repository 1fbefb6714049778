package ner

import (
	"regexp"
	"strings"
)

// LexiconRecognizer is the bundled fallback recognizer: deterministic
// title/suffix heuristics over capitalized token runs. It stands in when no
// pretrained model is configured and doubles as the test recognizer, since its
// output is stable across runs.
type LexiconRecognizer struct{}

func NewLexiconRecognizer() *LexiconRecognizer { return &LexiconRecognizer{} }

var (
	rePersonTitled = regexp.MustCompile(`\b(?:Dr\.?|Doctor)\s+([A-Z][a-z]+(?:\s+[A-Z]\.?)?(?:\s+[A-Z][a-z]+){1,2})`)
	rePersonSuffix = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z]\.?)?(?:\s+[A-Z][a-z]+){1,2}),?\s+(?:MD|M\.D\.|DO|D\.O\.|NP|PA|DDS|PhD)\b`)
	rePersonLabel  = regexp.MustCompile(`(?im)^\s*(?:provider|physician|doctor)(?:\s+name)?\s*:\s*(?:Dr\.?\s+)?([A-Z][A-Za-z.'-]+(?:\s+[A-Z][A-Za-z.'-]+){1,3})`)

	orgSuffixes = []string{
		"Medical Group", "Medical Center", "Health System", "Healthcare",
		"Clinic", "Practice", "Associates", "Physicians", "Hospital",
		"Health Partners", "Medical Associates", "Health Network", "IPA",
	}
)

func (r *LexiconRecognizer) Recognize(text string) ([]Entity, error) {
	out := []Entity{}

	for _, m := range rePersonLabel.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, Entity{Text: text[m[2]:m[3]], Label: LabelPerson, Start: m[2], Score: 0.85})
	}
	for _, m := range rePersonTitled.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, Entity{Text: text[m[2]:m[3]], Label: LabelPerson, Start: m[2], Score: 0.8})
	}
	for _, m := range rePersonSuffix.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, Entity{Text: text[m[2]:m[3]], Label: LabelPerson, Start: m[2], Score: 0.8})
	}

	out = append(out, r.recognizeOrgs(text)...)
	return dedupe(out), nil
}

func (r *LexiconRecognizer) recognizeOrgs(text string) []Entity {
	out := []Entity{}
	for _, suffix := range orgSuffixes {
		idx := 0
		for {
			pos := strings.Index(text[idx:], suffix)
			if pos < 0 {
				break
			}
			pos += idx
			start := orgStart(text, pos)
			name := strings.TrimSpace(text[start : pos+len(suffix)])
			if strings.Contains(name, " ") || name != suffix {
				out = append(out, Entity{Text: name, Label: LabelOrg, Start: start, Score: 0.7})
			}
			idx = pos + len(suffix)
		}
	}
	return out
}

// orgStart walks backwards over capitalized words preceding an org suffix,
// e.g. "Sunrise Valley" in "Sunrise Valley Medical Group".
func orgStart(text string, suffixPos int) int {
	start := suffixPos
	for start > 0 {
		i := start - 1
		for i > 0 && text[i-1] == ' ' {
			i--
		}
		wordEnd := i
		for i > 0 && text[i-1] != ' ' && text[i-1] != '\n' && text[i-1] != '\t' {
			i--
		}
		word := text[i:wordEnd]
		if len(word) == 0 || word[0] < 'A' || word[0] > 'Z' || len(word) > 20 {
			return start
		}
		if strings.Trim(word, "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz&'-") != "" {
			return start
		}
		start = i
	}
	return start
}

func dedupe(entities []Entity) []Entity {
	seen := map[string]struct{}{}
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		key := e.Label + "|" + strings.ToLower(e.Text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}
