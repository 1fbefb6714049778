package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"rosterparse/internal"
	"rosterparse/internal/util"
)

// fieldPattern is one regex template for one field. Confidence is calibrated
// by format strictness: labeled matches score higher than bare ones.
type fieldPattern struct {
	field      internal.Field
	re         *regexp.Regexp
	confidence float64
}

var fieldPatterns = []fieldPattern{
	{internal.FieldGroupNPI, regexp.MustCompile(`(?i)Group\s+NPI\s*#?[:\s]*(\d{10})`), 0.9},
	{internal.FieldProviderNPI, regexp.MustCompile(`(?i)NPI\s*#?[:\s]*(\d{10})`), 0.9},
	{internal.FieldProviderNPI, regexp.MustCompile(`(?i)National\s+Provider\s+Identifier[:\s]*(\d{10})`), 0.9},
	{internal.FieldProviderNPI, regexp.MustCompile(`(?i)Provider\s+ID[:\s]*(\d{10})`), 0.85},
	{internal.FieldProviderNPI, regexp.MustCompile(`(?:^|[^\d-])(\d{10})(?:[^\d-]|$)`), 0.5},

	{internal.FieldTIN, regexp.MustCompile(`(?i)(?:TIN|Tax\s+ID|Federal\s+ID|EIN|Employer\s+ID)\s*#?[:\s]*(\d{2}\s?-?\s?\d{7})`), 0.9},
	{internal.FieldTIN, regexp.MustCompile(`(?:^|\s)(\d{2}-\d{7})(?:\s|$)`), 0.7},

	{internal.FieldPhone, regexp.MustCompile(`(?i)(?:Phone|Telephone|Tel|Contact)(?:\s+Number)?\s*#?[:\s]*(\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4})`), 0.9},
	{internal.FieldPhone, regexp.MustCompile(`(\(\d{3}\)\s*\d{3}[-.\s]?\d{4})`), 0.7},
	{internal.FieldFax, regexp.MustCompile(`(?i)(?:Fax|Facsimile)(?:\s+Number)?\s*#?[:\s]*(\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4})`), 0.9},

	{internal.FieldLicense, regexp.MustCompile(`(?i)(?:State\s+|Medical\s+)?Lic(?:ense)?\s*#?[:\s]*([A-Z]\d{5,6})\b`), 0.9},
	{internal.FieldLicense, regexp.MustCompile(`\b([A-Z]\d{5,6})\b`), 0.6},

	{internal.FieldEffectiveDate, regexp.MustCompile(`(?i)(?:Effective|Start|Begin)\s+Date[:\s]*(\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4})`), 0.9},
	{internal.FieldTermDate, regexp.MustCompile(`(?i)(?:Term(?:ination)?|End)\s+Date[:\s]*(\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4})`), 0.9},

	{internal.FieldPPGID, regexp.MustCompile(`(?i)(?:PPG(?:\s+ID)?|Provider\s+Practice\s+Group|Group\s+ID)\s*#?'?s?[:\s]*([A-Za-z0-9]{2,6})\b`), 0.8},

	{internal.FieldSpecialty, regexp.MustCompile(`\b([12]\d{2}[A-Z]\d{5}X)\b`), 0.85},
	{internal.FieldSpecialty, regexp.MustCompile(`(?i)Specialt?y[:\s]+([A-Za-z][A-Za-z /&-]{2,40}?)(?:\n|$|,)`), 0.8},

	{internal.FieldAddress, regexp.MustCompile(`(?i)(?:Complete\s+|Practice\s+|Office\s+|Mailing\s+)?Address[:\s]+(.{10,100}?)(?:\n|$)`), 0.8},

	{internal.FieldOrganization, regexp.MustCompile(`(?i)(?:Organization|Org|Group)\s+Name[:\s]+(.{3,60}?)(?:\n|$)`), 0.85},
	{internal.FieldProviderName, regexp.MustCompile(`(?i)Provider(?:\s+Name)?[:\s]+((?:Dr\.?\s+)?[A-Z][A-Za-z.'-]+(?:\s+[A-Z][A-Za-z.'-]+){1,3})`), 0.85},

	{internal.FieldTermReason, regexp.MustCompile(`(?i)(?:Term(?:ination)?\s+)?Reason[:\s]+(.{3,60}?)(?:\n|$|\.)`), 0.85},
}

var (
	lobGazetteer = []string{
		"Medicare", "Medicaid", "Medi-Cal", "Commercial", "HMO", "PPO", "EPO",
		"POS", "Exchange",
	}

	negationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)not?\s+terminate`),
		regexp.MustCompile(`(?i)no\s+changes`),
		regexp.MustCompile(`(?i)will\s+not\b`),
		regexp.MustCompile(`(?i)don'?t\s+`),
	}

	termReasonLexicon = []struct {
		keywords []string
		label    string
	}{
		{[]string{"voluntar", "by choice", "own choice"}, "Voluntary"},
		{[]string{"retire"}, "Retired"},
		{[]string{"contract end", "contract expir", "agreement end"}, "Contract Ended"},
		{[]string{"non-renewal", "not renewed"}, "Contract Not Renewed"},
		{[]string{"performance", "quality concern", "disciplinary"}, "Performance Issues"},
		{[]string{"credential", "licensing issue"}, "Credentialing Issues"},
		{[]string{"relocat", "moved", "moving", "out of area"}, "Relocation"},
		{[]string{"practice sold", "practice closed", "consolidation"}, "Business Decision"},
		{[]string{"deceased", "death", "disability"}, "Death/Disability"},
		{[]string{"network restructur", "panel"}, "Network Changes"},
	}
)

// PatternExtractor is the deterministic rule library. It never fails: text
// that matches nothing simply produces no candidates.
type PatternExtractor struct{}

func NewPatternExtractor() *PatternExtractor { return &PatternExtractor{} }

func (e *PatternExtractor) Name() string { return "pattern" }

func (e *PatternExtractor) Source() internal.CandidateSource { return internal.SourcePattern }

func (e *PatternExtractor) Extract(section internal.Section) ([]internal.FieldCandidate, error) {
	text := section.Text
	out := []internal.FieldCandidate{}

	for _, fp := range fieldPatterns {
		for _, m := range fp.re.FindAllStringSubmatchIndex(text, -1) {
			value := strings.TrimSpace(text[m[2]:m[3]])
			if value == "" {
				continue
			}
			confidence := fp.confidence
			field := fp.field

			value, confidence, field, ok := refineMatch(field, value, confidence)
			if !ok {
				continue
			}
			out = append(out, internal.FieldCandidate{
				Field:      field,
				Value:      value,
				Source:     internal.SourcePattern,
				Confidence: confidence,
				Pos:        m[2],
				Context:    matchContext(text, m[2]),
			})
		}
	}

	out = dropGroupNPIShadows(out)
	out = append(out, extractBareDates(section, out)...)

	if c := extractTransactionType(text); c != nil {
		out = append(out, *c)
	}
	if c := extractLOB(text); c != nil {
		out = append(out, *c)
	}
	if c := extractTermReason(text); c != nil {
		out = append(out, *c)
	}

	return out, nil
}

// refineMatch applies per-field cleanup and the format pre-checks that adjust
// confidence before fusion: the NPI Luhn pre-check tags checksum-consistent
// values at 0.9 and the rest at 0.5.
func refineMatch(field internal.Field, value string, confidence float64) (string, float64, internal.Field, bool) {
	switch field {
	case internal.FieldProviderNPI, internal.FieldGroupNPI:
		digits := util.DigitsOnly(value)
		if len(digits) != 10 {
			return "", 0, field, false
		}
		if util.ValidNPI(digits) {
			confidence = 0.9
		} else {
			confidence = 0.5
		}
		return digits, confidence, field, true
	case internal.FieldTIN:
		digits := util.DigitsOnly(value)
		if len(digits) != 9 {
			return "", 0, field, false
		}
		return fmt.Sprintf("%s-%s", digits[:2], digits[2:]), confidence, field, true
	case internal.FieldPhone, internal.FieldFax:
		digits := util.DigitsOnly(value)
		if len(digits) != 10 {
			return "", 0, field, false
		}
		return fmt.Sprintf("%s-%s-%s", digits[:3], digits[3:6], digits[6:]), confidence, field, true
	case internal.FieldPPGID:
		upper := strings.ToUpper(value)
		for _, fp := range []string{"PPG", "ID", "TIN", "NPI", "MD", "DR", "HMO", "PPO"} {
			if upper == fp {
				return "", 0, field, false
			}
		}
		return value, confidence, field, true
	default:
		return value, confidence, field, true
	}
}

// dropGroupNPIShadows removes Provider NPI candidates whose match position
// is claimed by a Group NPI candidate: "Group NPI: x" also satisfies the
// plain "NPI: x" pattern, and the group reading wins.
func dropGroupNPIShadows(candidates []internal.FieldCandidate) []internal.FieldCandidate {
	groupPos := map[int]struct{}{}
	for _, c := range candidates {
		if c.Field == internal.FieldGroupNPI {
			groupPos[c.Pos] = struct{}{}
		}
	}
	if len(groupPos) == 0 {
		return candidates
	}
	out := candidates[:0]
	for _, c := range candidates {
		if c.Field == internal.FieldProviderNPI {
			if _, ok := groupPos[c.Pos]; ok {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

var reBareDate = regexp.MustCompile(`(?:^|[^\d/\-])(\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}|\d{4}-\d{2}-\d{2})(?:[^\d/\-]|$)`)

// extractBareDates surfaces unlabeled dates at low confidence, routed to the
// date field the section's transaction hint makes more plausible. Positions
// already claimed by a labeled date are skipped.
func extractBareDates(section internal.Section, labeled []internal.FieldCandidate) []internal.FieldCandidate {
	claimed := map[string]struct{}{}
	for _, c := range labeled {
		if c.Field == internal.FieldEffectiveDate || c.Field == internal.FieldTermDate {
			claimed[util.DigitsOnly(c.Value)] = struct{}{}
		}
	}

	target := internal.FieldEffectiveDate
	if section.Hint == internal.TxTerm {
		target = internal.FieldTermDate
	}

	out := []internal.FieldCandidate{}
	for _, m := range reBareDate.FindAllStringSubmatchIndex(section.Text, -1) {
		value := section.Text[m[2]:m[3]]
		if _, ok := claimed[util.DigitsOnly(value)]; ok {
			continue
		}
		out = append(out, internal.FieldCandidate{
			Field:      target,
			Value:      value,
			Source:     internal.SourcePattern,
			Confidence: 0.55,
			Pos:        m[2],
			Context:    matchContext(section.Text, m[2]),
		})
	}
	return out
}

func extractTransactionType(text string) *internal.FieldCandidate {
	lower := strings.ToLower(text)
	for _, re := range negationPatterns {
		if re.MatchString(lower) {
			return nil
		}
	}

	scores := map[internal.TransactionType]int{
		internal.TxTerm:   countClues(lower, termClues),
		internal.TxAdd:    countClues(lower, addClues),
		internal.TxUpdate: countClues(lower, updateClues),
	}

	best := internal.TxUnknown
	bestScore := 0
	for _, t := range []internal.TransactionType{internal.TxTerm, internal.TxAdd, internal.TxUpdate} {
		if scores[t] > bestScore {
			best = t
			bestScore = scores[t]
		}
	}
	if best == internal.TxUnknown {
		return nil
	}

	confidence := float64(bestScore) * 0.3
	if confidence > 0.9 {
		confidence = 0.9
	}
	return &internal.FieldCandidate{
		Field:      internal.FieldTransactionType,
		Value:      string(best),
		Source:     internal.SourcePattern,
		Confidence: confidence,
		Pos:        -1,
	}
}

func extractLOB(text string) *internal.FieldCandidate {
	lower := strings.ToLower(text)
	found := []string{}
	for _, lob := range lobGazetteer {
		if countWord(lower, strings.ToLower(lob)) > 0 {
			found = append(found, canonicalLOB(lob))
		}
	}
	if len(found) == 0 {
		return nil
	}
	found = uniqueStrings(found)
	sort.Strings(found)
	return &internal.FieldCandidate{
		Field:      internal.FieldLineOfBusiness,
		Value:      strings.Join(found, ", "),
		Source:     internal.SourcePattern,
		Confidence: 0.85,
		Pos:        -1,
	}
}

func canonicalLOB(lob string) string {
	switch lob {
	case "Medi-Cal":
		return "Medicaid"
	case "HMO", "PPO", "EPO", "POS", "Exchange":
		return "Commercial"
	default:
		return lob
	}
}

func extractTermReason(text string) *internal.FieldCandidate {
	lower := strings.ToLower(text)
	for _, entry := range termReasonLexicon {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return &internal.FieldCandidate{
					Field:      internal.FieldTermReason,
					Value:      entry.label,
					Source:     internal.SourcePattern,
					Confidence: 0.8,
					Pos:        -1,
				}
			}
		}
	}
	return nil
}

func matchContext(text string, pos int) string {
	start := pos - 25
	if start < 0 {
		start = 0
	}
	end := pos + 25
	if end > len(text) {
		end = len(text)
	}
	return strings.ReplaceAll(text[start:end], "\n", " ")
}

func uniqueStrings(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
