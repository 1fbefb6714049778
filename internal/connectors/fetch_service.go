package connectors

import (
	"strings"

	"rosterparse/internal/storage"
)

// FetchService pulls new mail from a connector and stores it for the
// processing backlog. Messages that are already stored count as fetched but
// not as new.
type FetchService struct {
	connector MailConnector
	store     *MailStoreService
}

type FetchResult struct {
	Fetched int
	Stored  int
	New     int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector) *FetchService {
	return &FetchService{
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
	}
}

func (s *FetchService) FetchAndStore(label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(label, max)
	if err != nil {
		return FetchResult{}, err
	}

	result := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		msg.MessageID = normalizeMessageID(msg.MessageID)
		_, isNew, err := s.store.Store(msg)
		if err != nil {
			return result, err
		}
		result.Stored++
		if isNew {
			result.New++
		}
	}

	return result, nil
}

// normalizeMessageID strips angle brackets so Gmail and IMAP spellings of
// the same Message-ID dedupe against each other.
func normalizeMessageID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}
