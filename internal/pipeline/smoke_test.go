package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rosterparse/internal"
	"rosterparse/internal/config"
	"rosterparse/internal/metrics"
	"rosterparse/internal/ner"
	"rosterparse/internal/storage"
)

func TestSmokeEmailToXLSX(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	rawSrc := filepath.Join("testdata", "sample_roster.eml")
	rawBlob, err := os.ReadFile(rawSrc)
	if err != nil {
		t.Fatal(err)
	}
	rawPath := filepath.Join(tmp, "fixture.eml")
	if err := os.WriteFile(rawPath, rawBlob, 0o644); err != nil {
		t.Fatal(err)
	}

	email, err := db.UpsertEmail("gmail", "<fixture-roster-1@example.com>", "Provider Roster Update - Termination", "pno@healthplan.example.com", "2026-08-20T00:00:00Z", "hash", rawPath, "fetched")
	if err != nil {
		t.Fatal(err)
	}

	cfg, _ := config.Load()
	proc := NewProcessingService(db, cfg, ner.NewLexiconRecognizer())
	rec := metrics.NewRecorder()
	res, err := proc.ProcessEmail(email, rec)
	if err != nil {
		t.Fatal(err)
	}
	if res.Transactions != 1 {
		t.Fatalf("transactions = %d", res.Transactions)
	}
	if res.Partial {
		t.Fatal("unexpected partial")
	}

	stored, err := db.GetEmailByID(email.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != "processed" {
		t.Fatalf("status = %s", stored.Status)
	}

	rows, err := db.GetExportRows(email.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("export rows = %d", len(rows))
	}
	row := rows[0]
	if got := row.Values[internal.FieldTransactionType]; got != string(internal.TxTerm) {
		t.Fatalf("transaction type = %q", got)
	}
	if got := row.Values[internal.FieldProviderNPI]; got != "1234567893" {
		t.Fatalf("NPI = %q", got)
	}
	if got := row.Statuses[internal.FieldProviderNPI]; got != internal.StatusValid {
		t.Fatalf("NPI status = %q", got)
	}
	if got := row.Values[internal.FieldTIN]; got != "12-3456789" {
		t.Fatalf("TIN = %q", got)
	}
	if got := row.Values[internal.FieldPhone]; got != "555-123-4567" {
		t.Fatalf("phone = %q", got)
	}
	if got := row.Values[internal.FieldTermDate]; got != "09/30/2026" {
		t.Fatalf("term date = %q", got)
	}
	if got := row.Values[internal.FieldLineOfBusiness]; got != "Medicaid, Medicare" {
		t.Fatalf("LOB = %q", got)
	}
	if got := row.Values[internal.FieldProviderName]; !strings.Contains(got, "Jane Smith") {
		t.Fatalf("provider name = %q", got)
	}

	out := filepath.Join(tmp, "result.xlsx")
	if err := ExportRowsToXLSX(rows, out); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatal(err)
	}
}

func TestSmokeReprocessIsIdempotent(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	rawBlob, err := os.ReadFile(filepath.Join("testdata", "sample_roster.eml"))
	if err != nil {
		t.Fatal(err)
	}
	rawPath := filepath.Join(tmp, "fixture.eml")
	if err := os.WriteFile(rawPath, rawBlob, 0o644); err != nil {
		t.Fatal(err)
	}
	email, err := db.UpsertEmail("imap", "<fixture-roster-1@example.com>", "", "", "", "hash", rawPath, "fetched")
	if err != nil {
		t.Fatal(err)
	}

	cfg, _ := config.Load()
	proc := NewProcessingService(db, cfg, ner.NewLexiconRecognizer())
	for i := 0; i < 2; i++ {
		if _, err := proc.ProcessEmail(email, metrics.NewRecorder()); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := db.GetExportRows(email.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("reprocessing duplicated rows: %d", len(rows))
	}
}

func TestSmokeBatchSurvivesFailedEmail(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	rawBlob, err := os.ReadFile(filepath.Join("testdata", "sample_roster.eml"))
	if err != nil {
		t.Fatal(err)
	}
	goodPath := filepath.Join(tmp, "good.eml")
	if err := os.WriteFile(goodPath, rawBlob, 0o644); err != nil {
		t.Fatal(err)
	}

	// The broken email is received first so a single worker hits it before
	// the healthy ones.
	bad, err := db.UpsertEmail("gmail", "<bad-1@example.com>", "Provider Roster Update", "pno@healthplan.example.com", "2026-08-20T00:00:00Z", "hash-bad", filepath.Join(tmp, "missing.eml"), "fetched")
	if err != nil {
		t.Fatal(err)
	}
	good1, err := db.UpsertEmail("gmail", "<good-1@example.com>", "Provider Roster Update", "pno@healthplan.example.com", "2026-08-21T00:00:00Z", "hash-1", goodPath, "fetched")
	if err != nil {
		t.Fatal(err)
	}
	good2, err := db.UpsertEmail("gmail", "<good-2@example.com>", "Provider Roster Update", "pno@healthplan.example.com", "2026-08-22T00:00:00Z", "hash-2", goodPath, "fetched")
	if err != nil {
		t.Fatal(err)
	}

	cfg, _ := config.Load()
	cfg.WorkerCount = 1
	proc := NewProcessingService(db, cfg, ner.NewLexiconRecognizer())
	rec := metrics.NewRecorder()

	emails, lines, err := proc.ProcessPending(10, "gmail", rec)
	if err == nil {
		t.Fatal("missing raw file must surface an error")
	}
	if emails != 2 {
		t.Fatalf("processed emails = %d", emails)
	}
	if lines != 2 {
		t.Fatalf("processed lines = %d", lines)
	}

	for _, check := range []struct {
		id   int
		want string
	}{{bad.ID, "failed"}, {good1.ID, "processed"}, {good2.ID, "processed"}} {
		stored, err := db.GetEmailByID(check.id)
		if err != nil {
			t.Fatal(err)
		}
		if stored.Status != check.want {
			t.Fatalf("email %d status = %s, want %s", check.id, stored.Status, check.want)
		}
	}

	// The unreadable email still counts as a failed ingest.
	if report := rec.Report(); !strings.Contains(report, "failed=1") {
		t.Fatalf("report missing failed ingest:\n%s", report)
	}
}

func TestSmokeNonRosterSkipped(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	raw := strings.Join([]string{
		"From: newsletter@example.com",
		"To: pno@healthplan.example.com",
		"Subject: Weekly team lunch",
		"Message-ID: <lunch-1@example.com>",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Pizza on Friday at noon. See you there!",
	}, "\r\n")
	rawPath := filepath.Join(tmp, "lunch.eml")
	if err := os.WriteFile(rawPath, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	email, err := db.UpsertEmail("gmail", "<lunch-1@example.com>", "Weekly team lunch", "newsletter@example.com", "", "hash", rawPath, "fetched")
	if err != nil {
		t.Fatal(err)
	}

	cfg, _ := config.Load()
	proc := NewProcessingService(db, cfg, ner.NewLexiconRecognizer())
	res, err := proc.ProcessEmail(email, metrics.NewRecorder())
	if err != nil {
		t.Fatal(err)
	}
	if res.Transactions != 0 {
		t.Fatalf("transactions = %d", res.Transactions)
	}

	stored, err := db.GetEmailByID(email.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != "skipped" {
		t.Fatalf("status = %s", stored.Status)
	}
}
