package registry

import (
	"context"
	"time"

	"rosterparse/internal"
)

// Store is the cache surface the verifier needs from storage.
type Store interface {
	GetRegistryRecord(npi string) (*internal.RegistryRecord, error)
	UpsertRegistryRecord(rec internal.RegistryRecord) error
}

// VerifyService answers "is this NPI enumerated" with a write-through cache,
// so a roster that repeats the same group NPI forty times costs one lookup.
type VerifyService struct {
	client *Client
	store  Store
	maxAge time.Duration
}

func NewVerifyService(client *Client, store Store, maxAge time.Duration) *VerifyService {
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	return &VerifyService{client: client, store: store, maxAge: maxAge}
}

// Verify returns the registry record for an NPI, from cache when fresh. The
// bool reports whether the answer came from cache.
func (s *VerifyService) Verify(ctx context.Context, npi string) (internal.RegistryRecord, bool, error) {
	cached, err := s.store.GetRegistryRecord(npi)
	if err != nil {
		return internal.RegistryRecord{}, false, err
	}
	if cached != nil && s.fresh(cached.VerifiedAt) {
		return *cached, true, nil
	}

	record, err := s.client.Lookup(ctx, npi)
	if err != nil {
		// A stale cache entry beats no answer when the registry is down.
		if cached != nil {
			return *cached, true, nil
		}
		return internal.RegistryRecord{}, false, err
	}

	if err := s.store.UpsertRegistryRecord(record); err != nil {
		return internal.RegistryRecord{}, false, err
	}
	return record, false, nil
}

func (s *VerifyService) fresh(verifiedAt string) bool {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, verifiedAt); err == nil {
			return time.Since(t) < s.maxAge
		}
	}
	return false
}
