package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"rosterparse/internal"
	"rosterparse/internal/config"
	"rosterparse/internal/ingest"
	"rosterparse/internal/metrics"
	"rosterparse/internal/ner"
	"rosterparse/internal/storage"
)

type ProcessingService struct {
	db         *storage.DB
	cfg        config.Config
	recognizer ner.Recognizer
}

func NewProcessingService(db *storage.DB, cfg config.Config, recognizer ner.Recognizer) *ProcessingService {
	return &ProcessingService{db: db, cfg: cfg, recognizer: recognizer}
}

type ProcessResult struct {
	EmailID      int
	Transactions int
	Partial      bool
}

func (s *ProcessingService) ProcessByProviderMessageID(provider, messageID string) (ProcessResult, error) {
	email, err := s.db.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessEmail(email, metrics.NewRecorder())
}

// ProcessPending works the fetched backlog with a bounded worker pool. Each
// worker keeps its own metrics recorder; the recorders are merged into rec
// once the pool drains. A failing email is marked failed and its worker
// moves on; the first error is reported after the whole batch drains.
func (s *ProcessingService) ProcessPending(limit int, provider string, rec *metrics.Recorder) (int, int, error) {
	pending, err := s.db.ListEmailsByStatus("fetched", limit)
	if err != nil {
		return 0, 0, err
	}

	queue := make([]internal.EmailRow, 0, len(pending))
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		queue = append(queue, email)
	}
	if len(queue) == 0 {
		return 0, 0, nil
	}

	workers := s.cfg.WorkerCount
	if workers < 1 {
		workers = 1
	}
	if workers > len(queue) {
		workers = len(queue)
	}

	jobs := make(chan internal.EmailRow)
	type workerOut struct {
		rec    *metrics.Recorder
		emails int
		lines  int
		err    error
	}
	outs := make([]workerOut, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			workerRec := metrics.NewRecorder()
			outs[w].rec = workerRec
			for email := range jobs {
				res, err := s.ProcessEmail(email, workerRec)
				if err != nil {
					if outs[w].err == nil {
						outs[w].err = err
					}
					continue
				}
				outs[w].emails++
				outs[w].lines += res.Transactions
			}
		}(w)
	}
	for _, email := range queue {
		jobs <- email
	}
	close(jobs)
	wg.Wait()

	processedEmails, processedLines := 0, 0
	var firstErr error
	for _, out := range outs {
		rec.Merge(out.rec)
		processedEmails += out.emails
		processedLines += out.lines
		if out.err != nil && firstErr == nil {
			firstErr = out.err
		}
	}
	return processedEmails, processedLines, firstErr
}

func (s *ProcessingService) ProcessEmail(email internal.EmailRow, rec *metrics.Recorder) (ProcessResult, error) {
	start := time.Now()
	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		rec.RecordStage(internal.StageMetric{Stage: "ingest", Millis: millisSince(start), Outcome: internal.OutcomeFailed})
		_ = s.db.UpdateEmailStatus(email.ID, "failed")
		return ProcessResult{}, fmt.Errorf("read %s: %w", email.RawRef, err)
	}

	ingestStart := time.Now()
	msg, err := ingest.ParseEML(raw)
	if err != nil {
		rec.RecordStage(internal.StageMetric{Stage: "ingest", Millis: millisSince(ingestStart), Outcome: internal.OutcomeFailed})
		_ = s.db.UpdateEmailStatus(email.ID, "failed")
		return ProcessResult{}, fmt.Errorf("parse %s: %w", email.RawRef, err)
	}
	rec.RecordStage(internal.StageMetric{Stage: "ingest", Millis: millisSince(ingestStart), Outcome: internal.OutcomeOK})
	rec.RecordMessage()

	if msg.Subject == "" {
		msg.Subject = email.Subject
	}
	attachmentNames := make([]string, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		attachmentNames = append(attachmentNames, att.Filename)
	}

	detect := DetectRosterRequest(firstNonEmpty(msg.Subject, email.Subject), msg.Text, msg.HTML, attachmentNames)
	if err := s.db.ClearEmailProcessing(email.ID); err != nil {
		return ProcessResult{}, err
	}

	if !detect.IsRoster {
		_ = s.db.UpdateEmailStatus(email.ID, "skipped")
		_ = s.db.InsertRun(traceID(), email.ID, map[string]float64{"totalMs": millisSince(start)}, map[string]int{"transactions": 0})
		return ProcessResult{EmailID: email.ID, Transactions: 0}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.MessageTimeoutMs)*time.Millisecond)
	defer cancel()

	transactions, partial := s.ProcessMessage(ctx, msg, rec)

	validCount := 0
	for _, tx := range transactions {
		if _, err := s.db.InsertTransaction(email.ID, tx); err != nil {
			return ProcessResult{}, err
		}
		validCount += tx.FieldsValid
	}

	status := "processed"
	if partial {
		status = "partial"
	}
	if err := s.db.UpdateEmailStatus(email.ID, status); err != nil {
		return ProcessResult{}, err
	}
	_ = s.db.InsertRun(traceID(), email.ID,
		map[string]float64{"totalMs": millisSince(start)},
		map[string]int{"transactions": len(transactions), "fieldsValid": validCount})

	return ProcessResult{EmailID: email.ID, Transactions: len(transactions), Partial: partial}, nil
}

// ProcessMessage runs the in-memory pipeline over one decoded message:
// section, extract, fuse, validate, assemble. When the context deadline
// lands mid-message the sections already finished are returned and the
// result is flagged partial; a message never vanishes because it was slow.
func (s *ProcessingService) ProcessMessage(ctx context.Context, msg internal.Message, rec *metrics.Recorder) ([]internal.Transaction, bool) {
	sectionStart := time.Now()
	sections := SectionMessage(msg)
	rec.RecordStage(internal.StageMetric{Stage: "section", Millis: millisSince(sectionStart), Outcome: internal.OutcomeOK})

	fuser := NewFuser(s.cfg.AgreementBonus)
	validator := NewValidator()
	extractors := []Extractor{
		NewPatternExtractor(),
		NewTableExtractor(msg.AttachmentTables, len(sections), s.cfg.HeaderMatchThreshold, s.cfg.TableExactConfidence, s.cfg.TableFuzzyConfidence),
		NewEntityExtractor(s.recognizer, s.cfg.EntityContextDelta),
	}

	transactions := make([]internal.Transaction, 0, len(sections))
	partial := false
	for _, section := range sections {
		if ctx.Err() != nil {
			partial = true
			break
		}

		extractStart := time.Now()
		candidates, degraded, timedOut := runExtractors(ctx, extractors, section)
		if timedOut {
			rec.RecordStage(internal.StageMetric{Stage: "extract", Millis: millisSince(extractStart), Outcome: internal.OutcomePartial})
			partial = true
			break
		}
		outcome := internal.OutcomeOK
		if degraded {
			outcome = internal.OutcomePartial
		}
		rec.RecordStage(internal.StageMetric{Stage: "extract", Millis: millisSince(extractStart), Outcome: outcome})

		fuseStart := time.Now()
		fields := fuser.Fuse(candidates)
		rec.RecordStage(internal.StageMetric{Stage: "fuse", Millis: millisSince(fuseStart), Outcome: internal.OutcomeOK})

		validateStart := time.Now()
		validator.Validate(fields)
		rec.RecordStage(internal.StageMetric{Stage: "validate", Millis: millisSince(validateStart), Outcome: internal.OutcomeOK})

		tx := Assemble(section, fields)
		tx.Partial = degraded
		transactions = append(transactions, tx)
		rec.RecordTransaction(tx)
	}
	return transactions, partial
}

// runExtractors fans the three extractors out over one section. A panicking
// or erroring extractor contributes nothing and marks the section degraded;
// the other extractors' candidates survive. When ctx expires before the
// fan-out finishes, the stragglers are abandoned and timedOut is reported
// instead of whatever subset had completed.
func runExtractors(ctx context.Context, extractors []Extractor, section internal.Section) (candidates []internal.FieldCandidate, degraded, timedOut bool) {
	results := make([][]internal.FieldCandidate, len(extractors))
	failures := make([]bool, len(extractors))

	var wg sync.WaitGroup
	for i, ex := range extractors {
		wg.Add(1)
		go func(i int, ex Extractor) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					failures[i] = true
				}
			}()
			cands, err := ex.Extract(section)
			if err != nil {
				failures[i] = true
				return
			}
			results[i] = cands
		}(i, ex)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// results and failures stay with the abandoned goroutines.
		return nil, true, true
	}

	candidates = []internal.FieldCandidate{}
	for i := range extractors {
		candidates = append(candidates, results[i]...)
		if failures[i] {
			degraded = true
		}
	}
	return candidates, degraded, false
}

func millisSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}

func traceID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
