package ingest

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"rosterparse/internal"
)

func mkXLSX(rows [][]any) []byte {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func TestExtractAttachmentTablesXLSX(t *testing.T) {
	blob := mkXLSX([][]any{
		{"Provider Name", "NPI", "Effective Date"},
		{"Jane Smith", "1234567893", "01/01/2026"},
		{"Robert Chen", "1234567801", "02/01/2026"},
	})
	attachments := []internal.Attachment{{Filename: "roster.xlsx", Content: blob}}

	tables := ExtractAttachmentTables(attachments)
	if len(tables) != 1 {
		t.Fatalf("tables = %d", len(tables))
	}
	tbl := tables[0]
	if len(tbl.Headers) != 3 || tbl.Headers[1] != "NPI" {
		t.Fatalf("headers = %v", tbl.Headers)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("rows = %d", len(tbl.Rows))
	}
	if tbl.Rows[0][1] != "1234567893" {
		t.Fatalf("row 0 = %v", tbl.Rows[0])
	}
	if tbl.Origin != "roster.xlsx/Sheet1" {
		t.Fatalf("origin = %q", tbl.Origin)
	}
}

func TestExtractAttachmentTablesRaggedRows(t *testing.T) {
	blob := mkXLSX([][]any{
		{"Provider Name", "NPI", "Phone"},
		{"Jane Smith", "1234567893"},
	})
	tables := ExtractAttachmentTables([]internal.Attachment{{Filename: "r.xlsx", Content: blob}})
	if len(tables) != 1 {
		t.Fatalf("tables = %d", len(tables))
	}
	row := tables[0].Rows[0]
	if len(row) != 3 || row[2] != "" {
		t.Fatalf("ragged row not padded: %v", row)
	}
}

func TestExtractAttachmentTablesHeaderOnly(t *testing.T) {
	blob := mkXLSX([][]any{{"Provider Name", "NPI"}})
	tables := ExtractAttachmentTables([]internal.Attachment{{Filename: "r.xlsx", Content: blob}})
	if len(tables) != 0 {
		t.Fatalf("header-only sheet produced %d tables", len(tables))
	}
}

func TestExtractAttachmentTablesCorruptBlob(t *testing.T) {
	attachments := []internal.Attachment{
		{Filename: "broken.xlsx", Content: []byte("not a zip")},
		{Filename: "broken.pdf", Content: []byte("not a pdf")},
		{Filename: "notes.txt", Content: []byte("ignored format")},
	}
	tables := ExtractAttachmentTables(attachments)
	if len(tables) != 0 {
		t.Fatalf("corrupt attachments produced %d tables", len(tables))
	}
}
