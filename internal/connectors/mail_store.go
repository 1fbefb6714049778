package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"

	"rosterparse/internal"
	"rosterparse/internal/storage"
)

// MailStoreService lands a fetched message durably before anything looks at
// it: raw RFC 5322 bytes under rawDir/<provider>/<content-hash>.eml, metadata
// row in the database. Refetching the same message touches nothing on disk.
type MailStoreService struct {
	db     *storage.DB
	rawDir string
}

func NewMailStoreService(db *storage.DB, rawDir string) *MailStoreService {
	return &MailStoreService{db: db, rawDir: rawDir}
}

// Store persists one fetched message and reports whether it was new to the
// database, so fetch counters can distinguish refetches from arrivals.
func (s *MailStoreService) Store(msg internal.FetchedMailMessage) (internal.EmailRow, bool, error) {
	sum := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(sum[:])

	dir := filepath.Join(s.rawDir, msg.Provider)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return internal.EmailRow{}, false, err
	}
	rawPath := filepath.Join(dir, hash+".eml")
	if _, err := os.Stat(rawPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return internal.EmailRow{}, false, err
		}
	}

	existing, err := s.db.GetEmailByProviderMessageID(msg.Provider, msg.MessageID)
	if err != nil {
		return internal.EmailRow{}, false, err
	}
	row, err := s.db.UpsertEmail(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, rawPath, "fetched")
	if err != nil {
		return internal.EmailRow{}, false, err
	}
	return row, existing == nil, nil
}
