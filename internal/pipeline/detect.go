package pipeline

import "strings"

type DetectResult struct {
	IsRoster bool
	Score    float64
	Reason   string
}

var detectKeywords = []string{
	"roster", "provider", "npi", "termination", "credential", "demographic",
	"add provider", "term provider", "effective date", "tax id", "ppg",
}

// DetectRosterRequest scores how roster-like an email is before the heavy
// extraction stages run. Non-roster mail (newsletters, EOB notices, general
// correspondence) is skipped, not failed.
func DetectRosterRequest(subject, text, html string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(subject)
	text = strings.ToLower(text)
	html = strings.ToLower(html)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(text, kw) || strings.Contains(html, kw) {
			score += 0.1
		}
	}

	npiHits := countNPILike(text)
	if npiHits >= 2 {
		score += 0.4
	} else if npiHits == 1 {
		score += 0.2
	}

	for _, name := range attachmentNames {
		ln := strings.ToLower(name)
		if strings.HasSuffix(ln, ".xlsx") || strings.HasSuffix(ln, ".xls") || strings.HasSuffix(ln, ".pdf") {
			score += 0.25
			break
		}
	}

	if strings.Contains(html, "<table") {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}

	isRoster := score >= 0.45
	reason := "rules_negative"
	if isRoster {
		reason = "rules_positive"
	}

	return DetectResult{IsRoster: isRoster, Score: score, Reason: reason}
}

// countNPILike counts standalone 10-digit runs, the strongest single signal
// a body of text is roster traffic.
func countNPILike(text string) int {
	count := 0
	run := 0
	for i := 0; i <= len(text); i++ {
		if i < len(text) && text[i] >= '0' && text[i] <= '9' {
			run++
			continue
		}
		if run == 10 {
			count++
		}
		run = 0
	}
	return count
}
