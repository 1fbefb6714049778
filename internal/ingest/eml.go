// Package ingest decodes raw RFC 5322 mail into the canonical Message the
// pipeline consumes: normalized text, raw HTML, and pre-extracted attachment
// tables. It is the only package that touches MIME or attachment binary
// formats.
package ingest

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"

	"rosterparse/internal"
	"rosterparse/internal/util"
)

var (
	replyMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^-{2,}\s*Original Message\s*-{2,}`),
		regexp.MustCompile(`(?m)^_{10,}\s*$`),
		regexp.MustCompile(`(?m)^On .{1,120} wrote:\s*$`),
		regexp.MustCompile(`(?m)^From:\s+\S.*\n(?:Sent|Date):\s+`),
	}

	boilerplatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^this (e-?mail|message) .*confidential`),
		regexp.MustCompile(`(?i)^confidentiality notice`),
		regexp.MustCompile(`(?i)^disclaimer\b`),
		regexp.MustCompile(`(?i)unsubscribe`),
	}
)

// ParseEML decodes a raw message into a canonical Message. HTML is preserved
// for the table extractor; the text body is thread-trimmed and whitespace
// normalized. Attachment decoding failures are tolerated per attachment.
func ParseEML(raw []byte) (internal.Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return internal.Message{}, err
	}

	msg := internal.Message{
		Subject: env.GetHeader("Subject"),
		Sender:  env.GetHeader("From"),
		HTML:    env.HTML,
	}

	text := env.Text
	if text == "" && env.HTML != "" {
		text = htmlToText(env.HTML)
	}
	msg.Text = NormalizeText(TrimThread(text))

	for _, att := range env.Attachments {
		name := strings.TrimSpace(att.FileName)
		if name == "" {
			name = "attachment"
		}
		msg.Attachments = append(msg.Attachments, internal.Attachment{Filename: name, Content: att.Content})
	}
	msg.AttachmentTables = ExtractAttachmentTables(msg.Attachments)

	return msg, nil
}

// NormalizeText collapses line whitespace and drops boilerplate lines while
// preserving line structure, which the sectioner depends on.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, " ", " ")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = util.NormalizeSpaces(line)
		if isBoilerplate(line) {
			continue
		}
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// TrimThread cuts the body at the first reply/forward marker so quoted older
// messages do not contribute stale provider blocks.
func TrimThread(text string) string {
	cut := len(text)
	for _, re := range replyMarkers {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] < cut {
			cut = loc[0]
		}
	}
	trimmed := text[:cut]

	// Quoted-line runs ("> ...") are also thread remnants.
	lines := strings.Split(trimmed, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func isBoilerplate(line string) bool {
	for _, re := range boilerplatePatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("br").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithHtml("\n")
	})
	var sb strings.Builder
	doc.Find("p,div,tr,li,h1,h2,h3").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Filter("p,div,tr,li").Length() > 0 {
			return
		}
		line := util.NormalizeSpaces(s.Text())
		if line != "" {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	})
	if sb.Len() == 0 {
		return doc.Text()
	}
	return sb.String()
}
