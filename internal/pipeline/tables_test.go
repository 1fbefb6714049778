package pipeline

import (
	"strings"
	"testing"

	"rosterparse/internal"
)

func newTestTableExtractor(tables []internal.TableData, sectionCount int) *TableExtractor {
	return NewTableExtractor(tables, sectionCount, 0.78, 0.95, 0.75)
}

func TestMatchHeader(t *testing.T) {
	e := newTestTableExtractor(nil, 1)

	field, exact, ok := e.matchHeader("Provider NPI")
	if !ok || !exact || field != internal.FieldProviderNPI {
		t.Fatalf("exact: field=%v exact=%v ok=%v", field, exact, ok)
	}

	// Punctuation noise still lands exactly after normalization.
	field, exact, ok = e.matchHeader("Provider NPI#")
	if !ok || !exact || field != internal.FieldProviderNPI {
		t.Fatalf("normalized exact: field=%v exact=%v ok=%v", field, exact, ok)
	}

	field, exact, ok = e.matchHeader("Effective Dt")
	if !ok || exact || field != internal.FieldEffectiveDate {
		t.Fatalf("fuzzy: field=%v exact=%v ok=%v", field, exact, ok)
	}

	if _, _, ok = e.matchHeader("Notes"); ok {
		t.Fatal("unmappable header matched")
	}
	if _, _, ok = e.matchHeader(""); ok {
		t.Fatal("empty header matched")
	}
}

func TestHTMLTableCandidates(t *testing.T) {
	html := `<table>
<tr><th>Provider Name</th><th>NPI</th><th>Notes</th></tr>
<tr><td>Jane Smith</td><td>1234567893</td><td>priority</td></tr>
<tr><td>Robert Chen</td><td>1234567801</td><td></td></tr>
</table>`
	e := newTestTableExtractor(nil, 1)
	candidates, err := e.Extract(internal.Section{Text: "roster below", HTML: html})
	if err != nil {
		t.Fatal(err)
	}

	if got := findCandidate(candidates, internal.FieldProviderName, "Jane Smith"); got == nil || got.Confidence != 0.95 {
		t.Fatalf("name candidate: %+v", candidates)
	}
	if findCandidate(candidates, internal.FieldProviderNPI, "1234567801") == nil {
		t.Fatalf("second row NPI missing: %+v", candidates)
	}
	for _, c := range candidates {
		if c.Value == "priority" {
			t.Fatalf("unmapped column leaked: %+v", c)
		}
	}
}

func TestStackedHTMLTables(t *testing.T) {
	// Two rosters stacked in one <table>, header row repeated in the middle.
	html := `<table>
<tr><th>Provider Name</th><th>NPI</th></tr>
<tr><td>Jane Smith</td><td>1234567893</td></tr>
<tr><td>Provider Name</td><td>NPI</td></tr>
<tr><td>Robert Chen</td><td>1234567801</td></tr>
</table>`
	e := newTestTableExtractor(nil, 1)
	candidates, err := e.Extract(internal.Section{HTML: html})
	if err != nil {
		t.Fatal(err)
	}

	if findCandidate(candidates, internal.FieldProviderName, "Jane Smith") == nil {
		t.Fatalf("first block name missing: %+v", candidates)
	}
	if findCandidate(candidates, internal.FieldProviderNPI, "1234567801") == nil {
		t.Fatalf("second block NPI missing: %+v", candidates)
	}
	for _, c := range candidates {
		if c.Value == "NPI" || c.Value == "Provider Name" {
			t.Fatalf("repeated header row leaked as data: %+v", c)
		}
	}
}

func TestVerticalHTMLTable(t *testing.T) {
	html := `<table>
<tr><td>Provider Name:</td><td>Jane Smith</td></tr>
<tr><td>Tax ID:</td><td>12-3456789</td></tr>
</table>`
	e := newTestTableExtractor(nil, 1)
	candidates, err := e.Extract(internal.Section{HTML: html})
	if err != nil {
		t.Fatal(err)
	}
	if findCandidate(candidates, internal.FieldProviderName, "Jane Smith") == nil {
		t.Fatalf("vertical name missing: %+v", candidates)
	}
	if findCandidate(candidates, internal.FieldTIN, "12-3456789") == nil {
		t.Fatalf("vertical TIN missing: %+v", candidates)
	}
}

func TestTextPipeTable(t *testing.T) {
	text := strings.Join([]string{
		"| Provider Name | NPI        | Term Date  |",
		"|---------------|------------|------------|",
		"| Jane Smith    | 1234567893 | 09/30/2026 |",
		"| Robert Chen   | 1234567801 | 10/15/2026 |",
	}, "\n")
	e := newTestTableExtractor(nil, 1)
	candidates, err := e.Extract(internal.Section{Text: text})
	if err != nil {
		t.Fatal(err)
	}
	if findCandidate(candidates, internal.FieldTermDate, "10/15/2026") == nil {
		t.Fatalf("pipe table term date missing: %+v", candidates)
	}
	if findCandidate(candidates, internal.FieldProviderName, "Robert Chen") == nil {
		t.Fatalf("pipe table name missing: %+v", candidates)
	}
}

func TestTextTableMergedCells(t *testing.T) {
	text := strings.Join([]string{
		"Provider Name\tGroup Name\tNPI",
		"Jane Smith\tSunrise Medical\t1234567893",
		"Robert Chen\t\t1234567801",
	}, "\n")
	e := newTestTableExtractor(nil, 1)
	candidates, err := e.Extract(internal.Section{Text: text})
	if err != nil {
		t.Fatal(err)
	}

	// The blank group cell inherits the value above it.
	count := 0
	for _, c := range candidates {
		if c.Field == internal.FieldOrganization && c.Value == "Sunrise Medical" {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("merged cell not carried down, got %d: %+v", count, candidates)
	}
}

func TestAttachmentTableSectionFilter(t *testing.T) {
	table := internal.TableData{
		Headers: []string{"Provider Name", "NPI"},
		Rows:    [][]string{{"Jane Smith", "1234567893"}},
		Origin:  "roster.xlsx",
	}

	// Multi-section message: the table only contributes to the section that
	// mentions one of its values.
	e := newTestTableExtractor([]internal.TableData{table}, 2)
	candidates, _ := e.Extract(internal.Section{Text: "Termination for Jane Smith per the attached."})
	if findCandidate(candidates, internal.FieldProviderNPI, "1234567893") == nil {
		t.Fatalf("matching section should take the table: %+v", candidates)
	}

	candidates, _ = e.Extract(internal.Section{Text: "Unrelated provider block."})
	if findCandidate(candidates, internal.FieldProviderNPI, "1234567893") != nil {
		t.Fatalf("non-matching section took the table: %+v", candidates)
	}

	// Single-section messages take every attachment table.
	e = newTestTableExtractor([]internal.TableData{table}, 1)
	candidates, _ = e.Extract(internal.Section{Text: "See attached roster."})
	if findCandidate(candidates, internal.FieldProviderNPI, "1234567893") == nil {
		t.Fatalf("single section should take the table: %+v", candidates)
	}
}

func TestVerticalTextRun(t *testing.T) {
	text := "Group Name: Sunrise Valley Medical Group\nFax Number: 555-987-6543"
	e := newTestTableExtractor(nil, 1)
	candidates, err := e.Extract(internal.Section{Text: text})
	if err != nil {
		t.Fatal(err)
	}
	if findCandidate(candidates, internal.FieldOrganization, "Sunrise Valley Medical Group") == nil {
		t.Fatalf("vertical org missing: %+v", candidates)
	}
	if findCandidate(candidates, internal.FieldFax, "555-987-6543") == nil {
		t.Fatalf("vertical fax missing: %+v", candidates)
	}
}
