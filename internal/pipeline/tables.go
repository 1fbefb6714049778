package pipeline

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"rosterparse/internal"
	"rosterparse/internal/util"
)

// headerLexicon maps each roster field to the header spellings seen across
// payer rosters. Matching is fuzzy (bigram Dice over normalized text) so
// close variants like "Provider NPI#" or "Eff Date" still land.
var headerLexicon = map[internal.Field][]string{
	internal.FieldTransactionType: {"transaction type", "action", "change type", "request type", "add/term"},
	internal.FieldProviderName:    {"provider name", "provider", "physician name", "practitioner name", "name", "rendering provider", "first name last name"},
	internal.FieldProviderNPI:     {"provider npi", "npi", "individual npi", "rendering npi", "npi number"},
	internal.FieldSpecialty:       {"specialty", "provider specialty", "taxonomy", "taxonomy code", "provider type"},
	internal.FieldLicense:         {"license", "license number", "license no", "state license", "lic"},
	internal.FieldOrganization:    {"organization name", "organization", "group name", "practice name", "facility name", "billing name"},
	internal.FieldTIN:             {"tin", "tax id", "tax id number", "federal tax id", "ein"},
	internal.FieldGroupNPI:        {"group npi", "organization npi", "billing npi", "type 2 npi"},
	internal.FieldPhone:           {"phone", "phone number", "telephone", "office phone", "contact phone"},
	internal.FieldFax:             {"fax", "fax number", "office fax"},
	internal.FieldAddress:         {"address", "service address", "practice address", "location", "service location", "street address"},
	internal.FieldPPGID:           {"ppg", "ppg id", "ppg number", "provider group id", "ipa id"},
	internal.FieldLineOfBusiness:  {"line of business", "lob", "product", "product line", "network", "plan type"},
	internal.FieldEffectiveDate:   {"effective date", "eff date", "start date", "add date", "effective"},
	internal.FieldTermDate:        {"term date", "termination date", "end date", "term"},
	internal.FieldTermReason:      {"term reason", "termination reason", "reason", "reason for term"},
}

// TableExtractor pulls field candidates out of tabular structures: HTML
// tables in the section body, plain-text tables, vertical label:value runs,
// and tables decoded from spreadsheet or PDF attachments. It is built per
// message so attachment tables can be matched against the section at hand.
type TableExtractor struct {
	attachmentTables []internal.TableData
	sectionCount     int

	headerThreshold float64
	exactConfidence float64
	fuzzyConfidence float64
}

func NewTableExtractor(attachmentTables []internal.TableData, sectionCount int, headerThreshold, exactConfidence, fuzzyConfidence float64) *TableExtractor {
	return &TableExtractor{
		attachmentTables: attachmentTables,
		sectionCount:     sectionCount,
		headerThreshold:  headerThreshold,
		exactConfidence:  exactConfidence,
		fuzzyConfidence:  fuzzyConfidence,
	}
}

func (t *TableExtractor) Name() string { return "table" }

func (t *TableExtractor) Source() internal.CandidateSource { return internal.SourceTable }

func (t *TableExtractor) Extract(section internal.Section) ([]internal.FieldCandidate, error) {
	out := []internal.FieldCandidate{}

	if section.HTML != "" {
		for _, table := range parseHTMLTables(section.HTML) {
			out = append(out, t.tableCandidates(table, section)...)
		}
	}
	for _, table := range parseTextTables(section.Text) {
		out = append(out, t.tableCandidates(table, section)...)
	}
	out = append(out, t.verticalCandidates(section)...)

	for _, table := range t.attachmentTables {
		if !t.tableBelongsToSection(table, section) {
			continue
		}
		out = append(out, t.tableCandidates(table, section)...)
	}
	return out, nil
}

// tableBelongsToSection decides whether an attachment table's rows should
// contribute to this section. An attachment is not anchored to any one
// section of the body, so a table is attributed to a section only when one
// of its cell values also appears in the section text. Single-section
// messages take every attachment table.
func (t *TableExtractor) tableBelongsToSection(table internal.TableData, section internal.Section) bool {
	if t.sectionCount <= 1 {
		return true
	}
	sectionNorm := util.NormalizeValue(section.Text)
	for _, row := range table.Rows {
		for _, cell := range row {
			norm := util.NormalizeValue(cell)
			if len(norm) >= 4 && strings.Contains(sectionNorm, norm) {
				return true
			}
		}
	}
	return false
}

// tableCandidates maps table headers onto roster fields and emits one
// candidate per mapped cell. Headers that match no field are skipped.
func (t *TableExtractor) tableCandidates(table internal.TableData, section internal.Section) []internal.FieldCandidate {
	type mapping struct {
		field      internal.Field
		confidence float64
	}
	columns := make(map[int]mapping)
	for i, header := range table.Headers {
		field, exact, ok := t.matchHeader(header)
		if !ok {
			continue
		}
		confidence := t.fuzzyConfidence
		if exact {
			confidence = t.exactConfidence
		}
		columns[i] = mapping{field: field, confidence: confidence}
	}
	if len(columns) == 0 {
		return nil
	}

	out := []internal.FieldCandidate{}
	lastSeen := make(map[int]string)
	for _, row := range table.Rows {
		for i, cell := range row {
			m, ok := columns[i]
			if !ok {
				continue
			}
			value := strings.TrimSpace(cell)
			if value == "" {
				// Merged cells render as blanks; carry the value down.
				value = lastSeen[i]
			} else {
				lastSeen[i] = value
			}
			if value == "" {
				continue
			}
			out = append(out, internal.FieldCandidate{
				Field:      m.field,
				Value:      value,
				Source:     internal.SourceTable,
				Confidence: m.confidence,
				Pos:        strings.Index(section.Text, value),
				Context:    table.Origin,
			})
		}
	}
	return out
}

// matchHeader resolves a header cell to a roster field: exact normalized
// equality first, then the best Dice score at or above the threshold.
func (t *TableExtractor) matchHeader(header string) (internal.Field, bool, bool) {
	norm := util.NormalizeValue(header)
	if norm == "" {
		return "", false, false
	}
	for _, field := range internal.FieldOrder {
		for _, spelling := range headerLexicon[field] {
			if norm == util.NormalizeValue(spelling) {
				return field, true, true
			}
		}
	}

	var best internal.Field
	bestScore := 0.0
	for _, field := range internal.FieldOrder {
		for _, spelling := range headerLexicon[field] {
			score := util.DiceCoefficient(norm, util.NormalizeValue(spelling))
			if score > bestScore {
				bestScore = score
				best = field
			}
		}
	}
	if bestScore >= t.headerThreshold {
		return best, false, true
	}
	return "", false, false
}

func parseHTMLTables(html string) []internal.TableData {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	tables := []internal.TableData{}
	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		rows := [][]string{}
		sel.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			row := []string{}
			tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				row = append(row, util.NormalizeSpaces(cell.Text()))
			})
			if len(row) > 0 {
				rows = append(rows, row)
			}
		})
		if len(rows) == 0 {
			return
		}
		tables = append(tables, orientTable(rows)...)
	})
	return tables
}

// orientTable decides whether a grid is a horizontal table (header row on
// top) or a vertical one (label column on the left) and normalizes it to
// headers plus data rows. Horizontal grids are split again wherever a
// header-looking row repeats, so rosters stacked inside one <table> come
// out as separate tables instead of header text posing as data.
func orientTable(rows [][]string) []internal.TableData {
	if len(rows) >= 2 && headerRowScore(rows[0]) >= headerColumnScore(rows) {
		tables := []internal.TableData{}
		current := internal.TableData{Headers: rows[0], Origin: "html"}
		for _, row := range rows[1:] {
			if headerRowScore(row) >= 2 && len(current.Rows) > 0 {
				tables = append(tables, current)
				current = internal.TableData{Headers: row, Origin: "html"}
				continue
			}
			current.Rows = append(current.Rows, row)
		}
		return append(tables, current)
	}
	// Vertical: each row is label, value. Transpose into one data row.
	headers := []string{}
	values := []string{}
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		headers = append(headers, strings.TrimSuffix(row[0], ":"))
		values = append(values, row[1])
	}
	if len(headers) == 0 {
		return nil
	}
	return []internal.TableData{{Headers: headers, Rows: [][]string{values}, Origin: "html"}}
}

func headerRowScore(row []string) int {
	score := 0
	for _, cell := range row {
		if headerLike(cell) {
			score++
		}
	}
	return score
}

func headerColumnScore(rows [][]string) int {
	score := 0
	for _, row := range rows {
		if len(row) > 0 && headerLike(strings.TrimSuffix(row[0], ":")) {
			score++
		}
	}
	return score
}

func headerLike(cell string) bool {
	norm := util.NormalizeValue(cell)
	if norm == "" {
		return false
	}
	for _, spellings := range headerLexicon {
		for _, spelling := range spellings {
			if util.DiceCoefficient(norm, util.NormalizeValue(spelling)) >= 0.7 {
				return true
			}
		}
	}
	return false
}

var (
	rePipeRow    = regexp.MustCompile(`^\s*\|?.*\|.*\|?\s*$`)
	reRuleLine   = regexp.MustCompile(`^[\s|:+=-]+$`)
	reMultiSpace = regexp.MustCompile(`\s{2,}`)
)

// parseTextTables recovers tables from plain text. Pipe and tab separated
// rows are taken as-is; runs of two or more spaces act as a separator for
// aligned columns. A new header-looking row mid-table starts a new table,
// which handles rosters pasted one under another.
func parseTextTables(text string) []internal.TableData {
	lines := strings.Split(text, "\n")
	tables := []internal.TableData{}

	var current *internal.TableData
	flush := func() {
		if current != nil && len(current.Rows) > 0 {
			tables = append(tables, *current)
		}
		current = nil
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" || reRuleLine.MatchString(line) {
			continue
		}
		cells := splitTextRow(line)
		if len(cells) < 2 {
			flush()
			continue
		}
		if current == nil || (headerRowScore(cells) >= 2 && len(current.Rows) > 0) {
			flush()
			current = &internal.TableData{Headers: cells, Origin: "text"}
			continue
		}
		current.Rows = append(current.Rows, cells)
	}
	flush()
	return tables
}

func splitTextRow(line string) []string {
	var parts []string
	switch {
	case strings.Contains(line, "|"):
		if !rePipeRow.MatchString(line) {
			return nil
		}
		parts = strings.Split(strings.Trim(strings.TrimSpace(line), "|"), "|")
	case strings.Contains(line, "\t"):
		parts = strings.Split(line, "\t")
	default:
		parts = reMultiSpace.Split(strings.TrimSpace(line), -1)
	}
	cells := []string{}
	for _, p := range parts {
		cells = append(cells, strings.TrimSpace(p))
	}
	return cells
}

var reVerticalRow = regexp.MustCompile(`(?m)^\s*([A-Za-z][A-Za-z0-9 /#.()-]{1,40}?)\s*[:=]\s*(\S.*?)\s*$`)

// verticalCandidates handles label: value runs that are really one-column
// tables. Only labels that fuzzy-match a known header contribute, so prose
// lines with a stray colon stay out.
func (t *TableExtractor) verticalCandidates(section internal.Section) []internal.FieldCandidate {
	out := []internal.FieldCandidate{}
	for _, m := range reVerticalRow.FindAllStringSubmatchIndex(section.Text, -1) {
		label := section.Text[m[2]:m[3]]
		value := section.Text[m[4]:m[5]]
		field, exact, ok := t.matchHeader(label)
		if !ok {
			continue
		}
		confidence := t.fuzzyConfidence
		if exact {
			confidence = t.exactConfidence
		}
		out = append(out, internal.FieldCandidate{
			Field:      field,
			Value:      value,
			Source:     internal.SourceTable,
			Confidence: confidence,
			Pos:        m[4],
			Context:    matchContext(section.Text, m[2]),
		})
	}
	return out
}
