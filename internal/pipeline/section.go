package pipeline

import (
	"regexp"
	"strings"

	"rosterparse/internal"
)

var (
	reSeparatorLine = regexp.MustCompile(`^[-=_*~]{3,}$`)
	reNumberedBlock = regexp.MustCompile(`(?i)^(?:provider|physician|doctor)\s*#?\d+\s*[:.\-]`)
	reHardCue       = regexp.MustCompile(`(?i)^(?:provider|physician|doctor)(?:\s+name)?\s*:`)
	reLabelLine     = regexp.MustCompile(`(?i)^(?:-\s*)?([a-z][a-z /#]{2,30}):\s*\S`)

	addClues    = []string{"add", "new", "include", "enroll", "register", "join", "welcome", "onboard"}
	termClues   = []string{"term", "terminate", "terminated", "termination", "remove", "discontinue", "cease", "withdraw", "cancel", "expire", "no longer"}
	updateClues = []string{"update", "modify", "change", "revise", "amend", "correct", "relocate", "transfer"}
)

// SectionMessage splits the canonical message text into ordered provider
// sections. Boundary heuristics run in priority order: explicit separator
// lines and numbered provider markers, then a recurring field-label sequence,
// then the whole message as a single section. A message with no extractable
// text yields no sections; anything else yields at least one.
func SectionMessage(msg internal.Message) []internal.Section {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")

	starts := separatorBoundaries(lines)
	if len(starts) < 2 {
		starts = repeatedLabelBoundaries(lines)
	}
	if len(starts) < 2 {
		starts = []int{0}
	}

	messageHint := detectHint(text)
	sections := make([]internal.Section, 0, len(starts))
	for i, start := range starts {
		end := len(lines)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		body := strings.TrimSpace(strings.Join(trimSeparators(lines[start:end]), "\n"))
		if body == "" {
			continue
		}
		hint := detectHint(body)
		if hint == internal.TxUnknown {
			hint = messageHint
		}
		sections = append(sections, internal.Section{
			Index: len(sections),
			Text:  body,
			Start: start,
			End:   end,
			Hint:  hint,
		})
	}

	if len(sections) == 0 {
		sections = append(sections, internal.Section{Index: 0, Text: text, Start: 0, End: len(lines), Hint: messageHint})
	}

	// A salutation or cover paragraph before the first labeled block belongs
	// with that block, not in a section of its own.
	if len(sections) > 1 && !hasLabelLine(sections[0].Text) {
		merged := strings.TrimSpace(sections[0].Text + "\n" + sections[1].Text)
		sections[1].Text = merged
		sections[1].Start = sections[0].Start
		if hint := detectHint(merged); hint != internal.TxUnknown {
			sections[1].Hint = hint
		} else {
			sections[1].Hint = messageHint
		}
		sections = sections[1:]
		for i := range sections {
			sections[i].Index = i
		}
	}
	if len(sections) == 1 {
		sections[0].HTML = msg.HTML
	}
	return sections
}

// separatorBoundaries finds section starts from horizontal rules, numbered
// provider markers, and hard "Provider:" cues.
func separatorBoundaries(lines []string) []int {
	starts := []int{0}
	afterSeparator := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case reSeparatorLine.MatchString(trimmed):
			afterSeparator = true
		case trimmed == "":
			// blank lines do not open a section on their own
		case afterSeparator:
			starts = appendStart(starts, i)
			afterSeparator = false
		case reNumberedBlock.MatchString(trimmed) && i > 0:
			starts = appendStart(starts, i)
		case reHardCue.MatchString(trimmed) && i > 0:
			starts = appendStart(starts, i)
		}
	}
	return starts
}

// repeatedLabelBoundaries detects a recurring field-label sequence: when the
// same leading label opens more than one labeled run, each recurrence starts a
// new section.
func repeatedLabelBoundaries(lines []string) []int {
	firstLabels := []string{}
	positions := []int{}
	prevLabeled := false
	for i, line := range lines {
		m := reLabelLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			prevLabeled = false
			continue
		}
		if !prevLabeled {
			firstLabels = append(firstLabels, strings.ToLower(strings.TrimSpace(m[1])))
			positions = append(positions, i)
		}
		prevLabeled = true
	}

	counts := map[string]int{}
	for _, label := range firstLabels {
		counts[label]++
	}
	starts := []int{0}
	for i, label := range firstLabels {
		if counts[label] > 1 && positions[i] > 0 {
			starts = appendStart(starts, positions[i])
		}
	}
	return starts
}

func hasLabelLine(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if reLabelLine.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

func appendStart(starts []int, i int) []int {
	if len(starts) > 0 && starts[len(starts)-1] == i {
		return starts
	}
	return append(starts, i)
}

func trimSeparators(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if reSeparatorLine.MatchString(strings.TrimSpace(line)) {
			continue
		}
		out = append(out, line)
	}
	return out
}

// detectHint scores the transaction-type lexicons over the text. The hint is
// advisory; the fused Transaction Type field wins when they disagree.
func detectHint(text string) internal.TransactionType {
	lower := strings.ToLower(text)
	scores := map[internal.TransactionType]int{
		internal.TxAdd:    countClues(lower, addClues),
		internal.TxTerm:   countClues(lower, termClues),
		internal.TxUpdate: countClues(lower, updateClues),
	}

	best := internal.TxUnknown
	bestScore := 0
	// Deterministic order: term beats add beats update on ties, since term
	// language is the most specific of the three lexicons.
	for _, t := range []internal.TransactionType{internal.TxTerm, internal.TxAdd, internal.TxUpdate} {
		if scores[t] > bestScore {
			best = t
			bestScore = scores[t]
		}
	}
	return best
}

func countClues(lower string, clues []string) int {
	count := 0
	for _, clue := range clues {
		count += countWord(lower, clue)
	}
	return count
}

func countWord(lower, word string) int {
	count := 0
	idx := 0
	for {
		pos := strings.Index(lower[idx:], word)
		if pos < 0 {
			return count
		}
		pos += idx
		before := pos == 0 || !isWordByte(lower[pos-1])
		afterIdx := pos + len(word)
		after := afterIdx >= len(lower) || !isWordByte(lower[afterIdx])
		if before && after {
			count++
		}
		idx = pos + len(word)
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
