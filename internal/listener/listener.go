// Package listener runs the fetch-process-export loop as a daemon: poll the
// mailbox, work the backlog, export finished rosters, sleep, repeat.
package listener

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"rosterparse/internal/config"
	"rosterparse/internal/connectors"
	gmailconnector "rosterparse/internal/connectors/gmail"
	imapconnector "rosterparse/internal/connectors/imap"
	"rosterparse/internal/metrics"
	"rosterparse/internal/ner"
	"rosterparse/internal/pipeline"
	"rosterparse/internal/storage"
)

type Service struct {
	db         *storage.DB
	cfg        config.Config
	recognizer ner.Recognizer
}

func NewService(db *storage.DB, cfg config.Config, recognizer ner.Recognizer) *Service {
	return &Service{db: db, cfg: cfg, recognizer: recognizer}
}

func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.runCycle(); err != nil {
			fmt.Printf("listener cycle error: %v\n", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(s.cfg.MailListenerIntervalSec) * time.Second):
		}
	}
}

func (s *Service) runCycle() error {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
	mailConnector, err := s.makeConnector(provider)
	if err != nil {
		return err
	}

	fetchService := connectors.NewFetchService(s.db, s.cfg.RawMailDir, mailConnector)
	fetchResult, err := fetchService.FetchAndStore(s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return err
	}

	processor := pipeline.NewProcessingService(s.db, s.cfg, s.recognizer)
	rec := metrics.NewRecorder()
	processedEmails, transactions, err := processor.ProcessPending(s.cfg.MailListenerProcessBatch, provider, rec)
	if err != nil {
		return err
	}

	if s.cfg.MailListenerAutoExport {
		if err := s.exportProcessed(provider); err != nil {
			return err
		}
	}

	fmt.Printf("listener cycle done provider=%s fetched=%d stored=%d processed=%d transactions=%d\n",
		provider, fetchResult.Fetched, fetchResult.Stored, processedEmails, transactions)
	return nil
}

func (s *Service) exportProcessed(provider string) error {
	// Partial results are exported too; a timed-out roster still needs review.
	for _, status := range []string{"processed", "partial"} {
		emails, err := s.db.ListEmailsByStatus(status, 200)
		if err != nil {
			return err
		}

		for _, email := range emails {
			if email.Provider != provider {
				continue
			}
			rows, err := s.db.GetExportRows(email.ID)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				continue
			}
			filename := fmt.Sprintf("%d_%s.xlsx", email.ID, sanitizeMessageID(email.MessageID))
			outputPath := filepath.Join(s.cfg.OutputDir, "listener", filename)
			if err := pipeline.ExportRowsToXLSX(rows, outputPath); err != nil {
				return err
			}
			_ = s.db.UpdateEmailStatus(email.ID, "exported")
		}
	}
	return nil
}

func (s *Service) makeConnector(provider string) (connectors.MailConnector, error) {
	switch provider {
	case "gmail":
		return gmailconnector.NewConnector(s.cfg)
	case "imap":
		return imapconnector.NewConnector(s.cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}

func sanitizeMessageID(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
