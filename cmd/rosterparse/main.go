package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"rosterparse/internal"
	"rosterparse/internal/config"
	"rosterparse/internal/connectors"
	gmailconnector "rosterparse/internal/connectors/gmail"
	imapconnector "rosterparse/internal/connectors/imap"
	"rosterparse/internal/ingest"
	"rosterparse/internal/listener"
	"rosterparse/internal/metrics"
	"rosterparse/internal/ner"
	"rosterparse/internal/pipeline"
	"rosterparse/internal/registry"
	"rosterparse/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	recognizer := ner.NewLexiconRecognizer()

	cmd := os.Args[1]
	switch cmd {
	case "parse":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "path to .eml file")
		output := fs.String("output", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--input is required"))
		}

		raw, err := os.ReadFile(*input)
		must(err)
		msg, err := ingest.ParseEML(raw)
		must(err)

		processor := pipeline.NewProcessingService(db, cfg, recognizer)
		rec := metrics.NewRecorder()
		rec.RecordMessage()
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.MessageTimeoutMs)*time.Millisecond)
		defer cancel()
		transactions, partial := processor.ProcessMessage(ctx, msg, rec)

		if strings.TrimSpace(*output) != "" {
			rows := make([]internal.ExportRow, 0, len(transactions))
			for _, tx := range transactions {
				rows = append(rows, exportRow(tx))
			}
			must(pipeline.ExportRowsToXLSX(rows, *output))
		}
		printTransactions(transactions)
		fmt.Printf("parse done transactions=%d partial=%t\n", len(transactions), partial)
	case "batch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		dir := fs.String("dir", "", "directory of .eml files")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*dir) == "" {
			must(fmt.Errorf("--dir is required"))
		}

		paths, err := filepath.Glob(filepath.Join(*dir, "*.eml"))
		must(err)
		if len(paths) == 0 {
			must(fmt.Errorf("no .eml files in %s", *dir))
		}
		for _, path := range paths {
			abs, err := filepath.Abs(path)
			must(err)
			email, err := db.UpsertEmail("file", "<file:"+filepath.Base(path)+">", "", "", "", "", abs, "fetched")
			must(err)
			must(db.UpdateEmailStatus(email.ID, "fetched"))
		}

		processor := pipeline.NewProcessingService(db, cfg, recognizer)
		rec := metrics.NewRecorder()
		processedEmails, transactions, err := processor.ProcessPending(len(paths), "file", rec)
		must(err)
		fmt.Printf("batch done emails=%d transactions=%d\n", processedEmails, transactions)
		fmt.Print(rec.Report())
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "gmail", "gmail|imap")
		label := fs.String("label", "INBOX", "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := makeConnector(cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn)
		result, err := fetch.FetchAndStore(*label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d new=%d\n", *provider, result.Fetched, result.Stored, result.New)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "", "gmail|imap (empty = all)")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		processor := pipeline.NewProcessingService(db, cfg, recognizer)
		if strings.TrimSpace(*messageID) != "" {
			res, err := processor.ProcessByProviderMessageID(*provider, *messageID)
			must(err)
			fmt.Printf("processed email id=%d transactions=%d partial=%t\n", res.EmailID, res.Transactions, res.Partial)
			return
		}
		rec := metrics.NewRecorder()
		processedEmails, transactions, err := processor.ProcessPending(*batch, *provider, rec)
		must(err)
		fmt.Printf("processed pending emails=%d transactions=%d\n", processedEmails, transactions)
		fmt.Print(rec.Report())
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		emailID := fs.Int("emailId", 0, "internal email id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if *emailID == 0 {
			must(fmt.Errorf("--emailId is required"))
		}
		rows, err := db.GetExportRows(*emailID)
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("no export rows for emailId=%d", *emailID))
		}
		outputPath := strings.TrimSpace(*out)
		if outputPath == "" {
			outputPath = filepath.Join(cfg.OutputDir, fmt.Sprintf("roster_%d.xlsx", *emailID))
		}
		must(pipeline.ExportRowsToXLSX(rows, outputPath))
		fmt.Printf("exported %d rows to %s\n", len(rows), outputPath)
	case "registry:verify":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		npi := fs.String("npi", "", "10-digit NPI")
		emailID := fs.Int("emailId", 0, "verify all NPIs in one email's transactions")
		_ = fs.Parse(os.Args[2:])

		verifier := registry.NewVerifyService(registry.NewClient(cfg), db, 0)
		switch {
		case strings.TrimSpace(*npi) != "":
			record, cached, err := verifier.Verify(context.Background(), strings.TrimSpace(*npi))
			must(err)
			printRegistryRecord(record, cached)
		case *emailID != 0:
			rows, err := db.GetExportRows(*emailID)
			must(err)
			for _, n := range collectNPIs(rows) {
				record, cached, err := verifier.Verify(context.Background(), n)
				must(err)
				printRegistryRecord(record, cached)
			}
		default:
			must(fmt.Errorf("--npi or --emailId is required"))
		}
	case "metrics:report":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 100, "most recent runs to include")
		_ = fs.Parse(os.Args[2:])
		runs, timings, counts, err := db.AggregateRuns(*limit)
		must(err)
		fmt.Printf("runs=%d\n", runs)
		for _, k := range sortedKeys(counts) {
			fmt.Printf("count %-14s %d\n", k, counts[k])
		}
		for _, k := range sortedFloatKeys(timings) {
			fmt.Printf("timing %-13s %.1fms\n", k, timings[k])
		}
	case "mail:listen":
		s := listener.NewService(db, cfg, recognizer)
		must(s.Run(context.Background()))
	default:
		usage()
		os.Exit(1)
	}
}

func exportRow(tx internal.Transaction) internal.ExportRow {
	row := internal.ExportRow{
		SectionIndex: tx.SectionIndex,
		Values:       map[internal.Field]string{},
		Confidences:  map[internal.Field]float64{},
		Statuses:     map[internal.Field]internal.ValidationStatus{},
		FieldsValid:  tx.FieldsValid,
		FieldsFound:  tx.FieldsFound,
		Partial:      tx.Partial,
	}
	for field, fused := range tx.Fields {
		row.Values[field] = fused.Value
		row.Confidences[field] = fused.Confidence
		row.Statuses[field] = fused.Status
	}
	return row
}

func printTransactions(transactions []internal.Transaction) {
	for _, tx := range transactions {
		fmt.Printf("section %d type=%s found=%d valid=%d\n", tx.SectionIndex, tx.Type, tx.FieldsFound, tx.FieldsValid)
		for _, field := range internal.FieldOrder {
			fused := tx.Fields[field]
			if fused.Value == "" {
				continue
			}
			fmt.Printf("  %-18s %-30s conf=%.2f status=%s\n", field, fused.Value, fused.Confidence, fused.Status)
		}
	}
}

func printRegistryRecord(record internal.RegistryRecord, cached bool) {
	source := "nppes"
	if cached {
		source = "cache"
	}
	if record.Found {
		fmt.Printf("npi=%s found name=%q type=%s source=%s\n", record.NPI, record.Name, record.Type, source)
	} else {
		fmt.Printf("npi=%s NOT FOUND source=%s\n", record.NPI, source)
	}
}

func collectNPIs(rows []internal.ExportRow) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, row := range rows {
		for _, field := range []internal.Field{internal.FieldProviderNPI, internal.FieldGroupNPI} {
			if row.Statuses[field] != internal.StatusValid {
				continue
			}
			npi := row.Values[field]
			if _, ok := seen[npi]; ok {
				continue
			}
			seen[npi] = struct{}{}
			out = append(out, npi)
		}
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedFloatKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func makeConnector(cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func usage() {
	fmt.Println("usage: rosterparse <command>")
	fmt.Println("commands:")
	fmt.Println("  parse --input=./mail.eml [--output=./out/roster.xlsx]")
	fmt.Println("  batch --dir=./mail")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process [--provider=gmail|imap] [--messageId=...] [--batch=20]")
	fmt.Println("  mail:listen")
	fmt.Println("  export:xlsx --emailId=1 [--out=./out/result.xlsx]")
	fmt.Println("  registry:verify --npi=1234567893 | --emailId=1")
	fmt.Println("  metrics:report [--limit=100]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
