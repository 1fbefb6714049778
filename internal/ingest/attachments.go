package ingest

import (
	"bytes"
	"strings"

	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"rosterparse/internal"
	"rosterparse/internal/util"
)

// ExtractAttachmentTables recovers tabular structures from XLSX attachments
// and line-oriented text from PDF attachments. A failure in one attachment
// never aborts the message; the attachment simply contributes nothing.
func ExtractAttachmentTables(attachments []internal.Attachment) []internal.TableData {
	out := []internal.TableData{}
	for _, att := range attachments {
		lower := strings.ToLower(att.Filename)
		switch {
		case strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xls"):
			tables, err := parseXLSXTables(att.Content, att.Filename)
			if err == nil {
				out = append(out, tables...)
			}
		case strings.HasSuffix(lower, ".pdf"):
			table, err := parsePDFTable(att.Content, att.Filename)
			if err == nil && table != nil {
				out = append(out, *table)
			}
		}
	}
	return out
}

func parseXLSXTables(content []byte, origin string) ([]internal.TableData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := []internal.TableData{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) < 2 {
			continue
		}

		headers := normalizeCells(rows[0])
		if len(headers) == 0 {
			continue
		}
		data := make([][]string, 0, len(rows)-1)
		for _, row := range rows[1:] {
			cells := normalizeCells(row)
			if len(cells) == 0 {
				continue
			}
			for len(cells) < len(headers) {
				cells = append(cells, "")
			}
			data = append(data, cells[:len(headers)])
		}
		if len(data) == 0 {
			continue
		}
		out = append(out, internal.TableData{Headers: headers, Rows: data, Origin: origin + "/" + sheet})
	}
	return out, nil
}

// parsePDFTable extracts page text and reuses the text-table heuristics only
// at a line level: rows split on runs of two or more spaces. PDFs with no
// consistent column alignment yield nothing.
func parsePDFTable(content []byte, origin string) (*internal.TableData, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	lines := []string{}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			if strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		}
	}
	if len(lines) < 2 {
		return nil, nil
	}

	split := func(line string) []string {
		parts := strings.Split(line, "  ")
		cells := []string{}
		for _, p := range parts {
			if s := util.NormalizeSpaces(p); s != "" {
				cells = append(cells, s)
			}
		}
		return cells
	}

	headers := split(lines[0])
	if len(headers) < 2 {
		return nil, nil
	}
	rows := [][]string{}
	for _, line := range lines[1:] {
		cells := split(line)
		if len(cells) < 2 {
			continue
		}
		for len(cells) < len(headers) {
			cells = append(cells, "")
		}
		rows = append(rows, cells[:len(headers)])
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &internal.TableData{Headers: headers, Rows: rows, Origin: origin}, nil
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	trailingEmpty := 0
	for _, c := range row {
		norm := util.NormalizeSpaces(c)
		out = append(out, norm)
		if norm == "" {
			trailingEmpty++
		} else {
			trailingEmpty = 0
		}
	}
	out = out[:len(out)-trailingEmpty]
	if len(out) == 0 {
		return nil
	}
	return out
}
